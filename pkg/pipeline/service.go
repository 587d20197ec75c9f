package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/3leaps/hirelane/pkg/ordering"
)

// Service executes reorder and transfer operations against a Gateway.
//
// Every mutation reads the full group, computes the new order, and writes
// the affected rows back in one BulkOverwriteOrder call. Two processes
// mutating the same group concurrently are last-write-wins.
type Service struct {
	gw      Gateway
	logger  *zap.Logger
	metrics *Metrics
	now     func() time.Time
	newID   func() string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides id generation for new items.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewService builds a Service over gw.
func NewService(gw Gateway, opts ...Option) *Service {
	s := &Service{
		gw:     gw,
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListGroup returns the members of group in order.
func (s *Service) ListGroup(ctx context.Context, kind Kind, group string) ([]Item, error) {
	g, err := ValidateGroup(kind, group)
	if err != nil {
		return nil, err
	}
	items, err := s.gw.GetGroup(ctx, kind, g)
	if err != nil {
		return nil, err
	}
	return SortItems(items), nil
}

// Get returns a single item.
func (s *Service) Get(ctx context.Context, kind Kind, id string) (Item, error) {
	if strings.TrimSpace(id) == "" {
		return Item{}, fmt.Errorf("%w: id is required", ordering.ErrBadRequest)
	}
	return s.gw.Get(ctx, kind, id)
}

// ReorderWithinGroup moves move.SourceID within its current group and
// returns the whole group as persisted.
//
// A destination in a different group is rejected; cross-group moves go
// through TransferToGroup first.
func (s *Service) ReorderWithinGroup(ctx context.Context, kind Kind, move Move) (out []Item, err error) {
	started := time.Now()
	defer func() { s.metrics.observe(kind, "reorder", started, err) }()

	if err := move.Validate(); err != nil {
		return nil, err
	}

	src, err := s.gw.Get(ctx, kind, move.SourceID)
	if err != nil {
		return nil, err
	}
	if move.ToOrder == nil {
		dst, err := s.gw.Get(ctx, kind, move.DestinationID)
		if err != nil {
			return nil, err
		}
		if dst.Group != src.Group {
			return nil, fmt.Errorf("%w: %s is in %q but %s is in %q; transfer first",
				ordering.ErrBadRequest, src.ID, src.Group, dst.ID, dst.Group)
		}
	}

	members, err := s.gw.GetGroup(ctx, kind, src.Group)
	if err != nil {
		return nil, err
	}

	reordered, err := ordering.Reorder(Entities(members), move, s.now())
	if err != nil {
		return nil, err
	}
	out = ApplyEntities(members, reordered)

	if err := s.gw.BulkOverwriteOrder(ctx, kind, updatesFor(out)); err != nil {
		return nil, err
	}
	s.metrics.rewritten(kind, len(out))

	s.logger.Debug("Reordered group",
		zap.String("kind", string(kind)),
		zap.String("group", src.Group),
		zap.String("source_id", move.SourceID),
		zap.Int("size", len(out)))
	return out, nil
}

// TransferToGroup moves id into group, placing it at the tail. The origin
// group is renumbered in the same bulk overwrite.
func (s *Service) TransferToGroup(ctx context.Context, kind Kind, id, group string) (moved Item, err error) {
	started := time.Now()
	defer func() { s.metrics.observe(kind, "transfer", started, err) }()

	dest, err := ValidateGroup(kind, group)
	if err != nil {
		return Item{}, err
	}
	src, err := s.Get(ctx, kind, id)
	if err != nil {
		return Item{}, err
	}
	if src.Group == dest {
		return src, nil
	}

	origin, err := s.gw.GetGroup(ctx, kind, src.Group)
	if err != nil {
		return Item{}, err
	}
	destination, err := s.gw.GetGroup(ctx, kind, dest)
	if err != nil {
		return Item{}, err
	}

	res := ordering.TransferWithOrigin(src.Entity, Entities(origin), Entities(destination), dest, s.now())

	moved = src.Clone()
	moved.Entity = res.Moved

	updates := []OrderUpdate{{ID: moved.ID, Order: moved.Order, Group: moved.Group, UpdatedAt: moved.UpdatedAt}}
	for _, e := range ordering.Changed(Entities(origin), res.Origin) {
		updates = append(updates, OrderUpdate{ID: e.ID, Order: e.Order, UpdatedAt: e.UpdatedAt})
	}
	if err := s.gw.BulkOverwriteOrder(ctx, kind, updates); err != nil {
		return Item{}, err
	}
	s.metrics.rewritten(kind, len(updates))

	s.logger.Debug("Transferred item",
		zap.String("kind", string(kind)),
		zap.String("id", id),
		zap.String("from", src.Group),
		zap.String("to", dest),
		zap.Int("order", moved.Order))
	return moved, nil
}

// TransferAndPlace transfers id into group and then reorders it relative
// to destinationID. These are two sequential writes; after the first the
// item is observable at the tail of group.
func (s *Service) TransferAndPlace(ctx context.Context, kind Kind, id, group, destinationID string, pos ordering.Position) ([]Item, error) {
	if _, err := s.TransferToGroup(ctx, kind, id, group); err != nil {
		return nil, err
	}
	return s.ReorderWithinGroup(ctx, kind, Move{SourceID: id, DestinationID: destinationID, Position: pos})
}

// RenumberGroup rewrites group so its orders are contiguous. Rows whose
// order is already correct are left untouched.
func (s *Service) RenumberGroup(ctx context.Context, kind Kind, group string) (out []Item, err error) {
	started := time.Now()
	defer func() { s.metrics.observe(kind, "renumber", started, err) }()

	g, err := ValidateGroup(kind, group)
	if err != nil {
		return nil, err
	}
	members, err := s.gw.GetGroup(ctx, kind, g)
	if err != nil {
		return nil, err
	}

	before := ordering.Sorted(Entities(members))
	after := ordering.Renumber(before)
	changed := ordering.Touch(ordering.Changed(before, after), s.now())
	out = ApplyEntities(members, mergeEntities(after, changed))
	if len(changed) == 0 {
		return out, nil
	}

	updates := make([]OrderUpdate, len(changed))
	for i, e := range changed {
		updates[i] = OrderUpdate{ID: e.ID, Order: e.Order, UpdatedAt: e.UpdatedAt}
	}
	if err := s.gw.BulkOverwriteOrder(ctx, kind, updates); err != nil {
		return nil, err
	}
	s.metrics.rewritten(kind, len(changed))
	return out, nil
}

func mergeEntities(base, overrides []ordering.Entity) []ordering.Entity {
	byID := make(map[string]ordering.Entity, len(overrides))
	for _, e := range overrides {
		byID[e.ID] = e
	}
	out := make([]ordering.Entity, len(base))
	for i, e := range base {
		if o, ok := byID[e.ID]; ok {
			e = o
		}
		out[i] = e
	}
	return out
}
