// Package ordering maintains contiguous, zero-based order indexes for
// entities partitioned into groups.
//
// Every function in this package is pure: inputs are never mutated and
// results are freshly allocated slices. Callers persist the returned lists
// as a unit (bulk overwrite) so the contiguity invariant holds once the
// write settles.
package ordering

import (
	"cmp"
	"slices"
	"time"
)

// Entity is the orderable projection of a record.
type Entity struct {
	ID        string    `json:"id"`
	Group     string    `json:"group"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Sorted returns a copy of list sorted by Order ascending.
//
// Ties should not occur once the invariant holds; when they do, the
// earlier CreatedAt wins, then the lexically smaller ID.
func Sorted(list []Entity) []Entity {
	out := slices.Clone(list)
	slices.SortStableFunc(out, compareEntities)
	return out
}

func compareEntities(a, b Entity) int {
	if c := cmp.Compare(a.Order, b.Order); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// ListGroup returns the members of group sorted by Order.
func ListGroup(entities []Entity, group string) []Entity {
	out := make([]Entity, 0, len(entities))
	for _, e := range entities {
		if e.Group == group {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, compareEntities)
	return out
}

// Renumber reassigns Order as 0..n-1 following the current sequence of list.
func Renumber(list []Entity) []Entity {
	out := slices.Clone(list)
	for i := range out {
		out[i].Order = i
	}
	return out
}

// IsContiguous reports whether the orders of list are exactly 0..n-1 in sequence.
func IsContiguous(list []Entity) bool {
	for i, e := range list {
		if e.Order != i {
			return false
		}
	}
	return true
}

// IndexOf returns the position of id in list, or -1.
func IndexOf(list []Entity, id string) int {
	return slices.IndexFunc(list, func(e Entity) bool { return e.ID == id })
}

// MaxOrder returns the largest Order in list, or -1 when list is empty.
func MaxOrder(list []Entity) int {
	maxOrder := -1
	for _, e := range list {
		maxOrder = max(maxOrder, e.Order)
	}
	return maxOrder
}

// Remove returns list without the entity identified by id.
func Remove(list []Entity, id string) []Entity {
	out := make([]Entity, 0, len(list))
	for _, e := range list {
		if e.ID != id {
			out = append(out, e)
		}
	}
	return out
}

// Touch sets UpdatedAt to now on every member of list.
func Touch(list []Entity, now time.Time) []Entity {
	out := slices.Clone(list)
	for i := range out {
		out[i].UpdatedAt = now
	}
	return out
}

// Changed returns the members of after whose Order or Group differ from
// the same ID in before. Members absent from before are always included.
func Changed(before, after []Entity) []Entity {
	prior := make(map[string]Entity, len(before))
	for _, e := range before {
		prior[e.ID] = e
	}
	var out []Entity
	for _, e := range after {
		p, ok := prior[e.ID]
		if !ok || p.Order != e.Order || p.Group != e.Group {
			out = append(out, e)
		}
	}
	return out
}
