package pipeline

import (
	"context"
	"errors"
	"time"
)

// ErrConflict indicates a uniqueness violation such as a duplicate job slug.
var ErrConflict = errors.New("conflict")

// OrderUpdate is one row of a bulk order overwrite.
type OrderUpdate struct {
	ID    string
	Order int
	// Group moves the row when non-empty.
	Group     string
	UpdatedAt time.Time
}

// Gateway is the persistence boundary of the ordering subsystem.
//
// Implementations return errors wrapping ordering.ErrNotFound for missing
// rows and ordering.ErrTransient for retryable storage failures.
type Gateway interface {
	// GetGroup returns the members of group sorted by order ascending.
	GetGroup(ctx context.Context, kind Kind, group string) ([]Item, error)

	// Get returns a single item.
	Get(ctx context.Context, kind Kind, id string) (Item, error)

	// BulkOverwriteOrder applies every update as a unit.
	BulkOverwriteOrder(ctx context.Context, kind Kind, updates []OrderUpdate) error

	// MaxOrder returns the largest order in group, or -1 when it is empty.
	MaxOrder(ctx context.Context, kind Kind, group string) (int, error)

	// Insert stores a new item.
	Insert(ctx context.Context, item Item) error

	// SlugExists reports whether a job with slug is stored.
	SlugExists(ctx context.Context, slug string) (bool, error)

	// UpdateDetails overwrites the non-ordering fields of an existing item:
	// name, title, slug, status, tags and UpdatedAt. A slug held by another
	// job is ErrConflict.
	UpdateDetails(ctx context.Context, item Item) error

	// Count returns the number of stored items of kind.
	Count(ctx context.Context, kind Kind) (int, error)
}

func updatesFor(items []Item) []OrderUpdate {
	out := make([]OrderUpdate, len(items))
	for i, it := range items {
		out[i] = OrderUpdate{ID: it.ID, Order: it.Order, UpdatedAt: it.UpdatedAt}
	}
	return out
}
