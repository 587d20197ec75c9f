package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/3leaps/hirelane/pkg/ordering"
)

// MemoryGateway is a Gateway backed by a map. It is safe for concurrent use
// and is intended for tests and for serving a seeded board without a store.
type MemoryGateway struct {
	mu    sync.RWMutex
	items map[Kind]map[string]Item
}

// NewMemoryGateway returns a gateway holding copies of items.
func NewMemoryGateway(items ...Item) *MemoryGateway {
	g := &MemoryGateway{items: make(map[Kind]map[string]Item)}
	for _, it := range items {
		g.put(it)
	}
	return g
}

func (g *MemoryGateway) put(it Item) {
	byID, ok := g.items[it.Kind]
	if !ok {
		byID = make(map[string]Item)
		g.items[it.Kind] = byID
	}
	byID[it.ID] = it.Clone()
}

// GetGroup implements Gateway.
func (g *MemoryGateway) GetGroup(ctx context.Context, kind Kind, group string) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Item
	for _, it := range g.items[kind] {
		if it.Group == group {
			out = append(out, it.Clone())
		}
	}
	return SortItems(out), nil
}

// Get implements Gateway.
func (g *MemoryGateway) Get(ctx context.Context, kind Kind, id string) (Item, error) {
	if err := ctx.Err(); err != nil {
		return Item{}, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	it, ok := g.items[kind][id]
	if !ok {
		return Item{}, fmt.Errorf("%w: %s %s", ordering.ErrNotFound, kind, id)
	}
	return it.Clone(), nil
}

// BulkOverwriteOrder implements Gateway. Either every update applies or none does.
func (g *MemoryGateway) BulkOverwriteOrder(ctx context.Context, kind Kind, updates []OrderUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	byID := g.items[kind]
	for _, u := range updates {
		if _, ok := byID[u.ID]; !ok {
			return fmt.Errorf("%w: %s %s", ordering.ErrNotFound, kind, u.ID)
		}
	}
	for _, u := range updates {
		it := byID[u.ID]
		it.Order = u.Order
		if u.Group != "" {
			it.Group = u.Group
		}
		it.UpdatedAt = u.UpdatedAt
		byID[u.ID] = it
	}
	return nil
}

// MaxOrder implements Gateway.
func (g *MemoryGateway) MaxOrder(ctx context.Context, kind Kind, group string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()

	maxOrder := -1
	for _, it := range g.items[kind] {
		if it.Group == group {
			maxOrder = max(maxOrder, it.Order)
		}
	}
	return maxOrder, nil
}

// Insert implements Gateway.
func (g *MemoryGateway) Insert(ctx context.Context, it Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.items[it.Kind][it.ID]; ok {
		return fmt.Errorf("%w: %s %s already exists", ErrConflict, it.Kind, it.ID)
	}
	if it.Kind == KindJob && g.slugExistsLocked(it.Slug) {
		return fmt.Errorf("%w: slug %q already exists", ErrConflict, it.Slug)
	}
	g.put(it)
	return nil
}

// UpdateDetails implements Gateway.
func (g *MemoryGateway) UpdateDetails(ctx context.Context, it Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	cur, ok := g.items[it.Kind][it.ID]
	if !ok {
		return fmt.Errorf("%w: %s %s", ordering.ErrNotFound, it.Kind, it.ID)
	}
	if it.Kind == KindJob && it.Slug != cur.Slug && g.slugExistsLocked(it.Slug) {
		return fmt.Errorf("%w: slug %q already exists", ErrConflict, it.Slug)
	}
	cur.Name = it.Name
	cur.Title = it.Title
	cur.Slug = it.Slug
	cur.Status = it.Status
	cur.Tags = it.Tags
	cur.UpdatedAt = it.UpdatedAt
	g.put(cur)
	return nil
}

// Count implements Gateway.
func (g *MemoryGateway) Count(ctx context.Context, kind Kind) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.items[kind]), nil
}

// SlugExists implements Gateway.
func (g *MemoryGateway) SlugExists(ctx context.Context, slug string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.slugExistsLocked(slug), nil
}

func (g *MemoryGateway) slugExistsLocked(slug string) bool {
	for _, it := range g.items[KindJob] {
		if it.Slug == slug {
			return true
		}
	}
	return false
}
