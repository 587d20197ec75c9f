package ordering

import "time"

// Transfer moves e into group dest, placing it at the tail.
//
// destination holds the current members of dest. The returned entity has
// Order = MaxOrder(destination)+1 (0 for an empty group). The origin group
// is left untouched; callers that persist the result renumber it with
// Renumber(Remove(origin, e.ID)).
//
// Transferring into the entity's current group returns e unchanged.
func Transfer(e Entity, destination []Entity, dest string, now time.Time) Entity {
	if e.Group == dest {
		return e
	}
	e.Group = dest
	e.Order = MaxOrder(Remove(destination, e.ID)) + 1
	e.UpdatedAt = now
	return e
}

// TransferResult is the full effect of a transfer on both groups.
type TransferResult struct {
	Moved  Entity
	Origin []Entity
}

// TransferWithOrigin applies Transfer and renumbers what remains of the
// origin group. Only origin members whose Order changed get UpdatedAt = now.
func TransferWithOrigin(e Entity, origin, destination []Entity, dest string, now time.Time) TransferResult {
	moved := Transfer(e, destination, dest, now)
	if moved.Group == e.Group {
		return TransferResult{Moved: moved, Origin: Sorted(origin)}
	}

	before := Remove(Sorted(origin), e.ID)
	after := Renumber(before)
	for i := range after {
		if after[i].Order != before[i].Order {
			after[i].UpdatedAt = now
		}
	}
	return TransferResult{Moved: moved, Origin: after}
}
