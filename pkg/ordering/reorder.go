package ordering

import (
	"fmt"
	"strings"
	"time"
)

// Position places a moving entity relative to its destination.
type Position string

const (
	PositionBefore Position = "before"
	PositionAfter  Position = "after"
)

// ParsePosition converts a raw token to a Position.
func ParsePosition(s string) (Position, error) {
	switch p := Position(strings.ToLower(strings.TrimSpace(s))); p {
	case PositionBefore, PositionAfter:
		return p, nil
	}
	return "", fmt.Errorf("%w: invalid position %q (expected before or after)", ErrBadRequest, s)
}

// Move describes a same-group reorder.
//
// Exactly one target form is used: ToOrder (absolute index) when set,
// otherwise DestinationID with Position.
type Move struct {
	SourceID      string   `json:"sourceId"`
	DestinationID string   `json:"destinationId,omitempty"`
	Position      Position `json:"position,omitempty"`
	ToOrder       *int     `json:"toOrder,omitempty"`
}

// Validate checks the descriptor shape without consulting any list.
func (m Move) Validate() error {
	if strings.TrimSpace(m.SourceID) == "" {
		return fmt.Errorf("%w: sourceId is required", ErrBadRequest)
	}
	if m.ToOrder != nil {
		return nil
	}
	if strings.TrimSpace(m.DestinationID) == "" {
		return fmt.Errorf("%w: destinationId or toOrder is required", ErrBadRequest)
	}
	if m.DestinationID == m.SourceID {
		return fmt.Errorf("%w: destinationId must differ from sourceId", ErrBadRequest)
	}
	if _, err := ParsePosition(string(m.Position)); err != nil {
		return err
	}
	return nil
}

// InsertionIndex returns the index at which the source is reinserted after
// it has been removed from the list.
//
// from and to are positions in the list before removal. Removing the source
// shifts every later element left by one, which is why the result depends
// on whether the source sits before or after the destination.
func InsertionIndex(from, to int, pos Position) int {
	if pos == PositionAfter {
		if from < to {
			return to
		}
		return to + 1
	}
	if from < to {
		return to - 1
	}
	return to
}

// Reorder moves m.SourceID within list and returns the renumbered group.
//
// list must hold the members of a single group; it is sorted before use so
// callers may pass rows in any order. Every member of the result carries
// UpdatedAt = now, because the whole group is rewritten.
func Reorder(list []Entity, m Move, now time.Time) ([]Entity, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	sorted := Sorted(list)
	from := IndexOf(sorted, m.SourceID)
	if from < 0 {
		return nil, fmt.Errorf("%w: source %s is not in the group", ErrNotFound, m.SourceID)
	}

	var insertAt int
	if m.ToOrder != nil {
		insertAt = clamp(*m.ToOrder, 0, len(sorted)-1)
	} else {
		to := IndexOf(sorted, m.DestinationID)
		if to < 0 {
			return nil, fmt.Errorf("%w: destination %s is not in the group", ErrNotFound, m.DestinationID)
		}
		pos, _ := ParsePosition(string(m.Position))
		insertAt = InsertionIndex(from, to, pos)
	}

	moved := sorted[from]
	rest := Remove(sorted, moved.ID)
	insertAt = clamp(insertAt, 0, len(rest))

	out := make([]Entity, 0, len(sorted))
	out = append(out, rest[:insertAt]...)
	out = append(out, moved)
	out = append(out, rest[insertAt:]...)

	return Touch(Renumber(out), now), nil
}

// Place inserts e into list at index and returns the renumbered group.
// It is the single-step equivalent of transferring e to the group and then
// reordering it to index.
func Place(list []Entity, e Entity, index int, now time.Time) []Entity {
	sorted := Remove(Sorted(list), e.ID)
	index = clamp(index, 0, len(sorted))
	out := make([]Entity, 0, len(sorted)+1)
	out = append(out, sorted[:index]...)
	out = append(out, e)
	out = append(out, sorted[index:]...)
	return Touch(Renumber(out), now)
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return min(max(v, lo), hi)
}
