// Package optimistic applies reorder and transfer predictions to a local
// snapshot immediately, then reconciles with the authoritative Remote.
//
// Each group keeps an immutable snapshot, a generation counter and a FIFO
// chain of in-flight mutations. Only the newest mutation of a group writes
// its outcome to the snapshot. An older one that finishes hands its restore
// point to the next mutation in the chain, so a rollback always lands on
// the last state the Remote accepted. Loads and refreshes carrying an older
// generation are discarded.
package optimistic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/3leaps/hirelane/pkg/ordering"
	"github.com/3leaps/hirelane/pkg/pipeline"
)

// DefaultTimeout bounds each Remote call issued for a mutation.
const DefaultTimeout = 10 * time.Second

// Remote is the authoritative side of the board. *pipeline.Service and
// *boardclient.Client both satisfy it.
type Remote interface {
	ListGroup(ctx context.Context, kind pipeline.Kind, group string) ([]pipeline.Item, error)
	ReorderWithinGroup(ctx context.Context, kind pipeline.Kind, move pipeline.Move) ([]pipeline.Item, error)
	TransferToGroup(ctx context.Context, kind pipeline.Kind, id, group string) (pipeline.Item, error)
}

// GroupKey identifies one cached group.
type GroupKey struct {
	Kind  pipeline.Kind
	Group string
}

func (k GroupKey) String() string {
	return string(k.Kind) + "/" + k.Group
}

// EventType classifies snapshot changes.
type EventType string

const (
	EventLoaded     EventType = "loaded"
	EventApplied    EventType = "applied"
	EventConfirmed  EventType = "confirmed"
	EventRolledBack EventType = "rolled_back"
	EventRefreshed  EventType = "refreshed"
)

// Event reports a snapshot change. Items is the new snapshot of Key.
type Event struct {
	Type  EventType
	Key   GroupKey
	Items []pipeline.Item
	Err   error
}

type groupState struct {
	items  []pipeline.Item
	loaded bool
	gen    uint64
	chain  []*mutation
}

// unlink removes m from the chain. It reports whether m was the newest
// mutation and otherwise returns the mutation queued right after it.
func (st *groupState) unlink(m *mutation) (newest bool, next *mutation) {
	idx := -1
	for i, cur := range st.chain {
		if cur == m {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}
	st.chain = append(st.chain[:idx], st.chain[idx+1:]...)
	if idx == len(st.chain) {
		return true, nil
	}
	return false, st.chain[idx]
}

// Coordinator is safe for concurrent use.
type Coordinator struct {
	remote  Remote
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time

	mu      sync.Mutex
	groups  map[GroupKey]*groupState
	subs    map[int]func(Event)
	nextSub int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout sets the per-call Remote timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the coordinator logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides the time source used for predictions.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// New builds a Coordinator over remote.
func New(remote Remote, opts ...Option) *Coordinator {
	c := &Coordinator{
		remote:  remote,
		logger:  zap.NewNop(),
		timeout: DefaultTimeout,
		now:     func() time.Time { return time.Now().UTC() },
		groups:  make(map[GroupKey]*groupState),
		subs:    make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers fn for every snapshot change and returns a function
// that removes it. fn runs on the goroutine that caused the change and
// must not block.
func (c *Coordinator) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Snapshot returns a copy of the cached group, if loaded.
func (c *Coordinator) Snapshot(kind pipeline.Kind, group string) ([]pipeline.Item, bool) {
	g, err := pipeline.ValidateGroup(kind, group)
	if err != nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.groups[GroupKey{Kind: kind, Group: g}]
	if !ok || !st.loaded {
		return nil, false
	}
	return pipeline.CloneItems(st.items), true
}

// Load fetches group from the Remote and caches it. While a mutation on
// the group is in flight the fetched list is returned but not cached.
func (c *Coordinator) Load(ctx context.Context, kind pipeline.Kind, group string) ([]pipeline.Item, error) {
	g, err := pipeline.ValidateGroup(kind, group)
	if err != nil {
		return nil, err
	}
	key := GroupKey{Kind: kind, Group: g}

	c.mu.Lock()
	gen := c.state(key).gen
	c.mu.Unlock()

	items, err := c.list(ctx, key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	var events []Event
	if st := c.state(key); st.gen == gen && len(st.chain) == 0 {
		st.items = items
		st.loaded = true
		events = append(events, c.eventLocked(EventLoaded, key, nil))
	}
	c.mu.Unlock()
	c.emit(events)

	return pipeline.CloneItems(items), nil
}

// Reorder predicts move on the cached group holding move.SourceID, then
// issues it to the Remote. On failure the group is restored to its exact
// pre-mutation snapshot unless a newer mutation has since touched it.
func (c *Coordinator) Reorder(ctx context.Context, kind pipeline.Kind, move pipeline.Move) ([]pipeline.Item, error) {
	if err := move.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	key, err := c.locateLocked(kind, move.SourceID)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	st := c.groups[key]
	if move.ToOrder == nil && ordering.IndexOf(pipeline.Entities(st.items), move.DestinationID) < 0 {
		c.mu.Unlock()
		if other, lerr := c.locate(kind, move.DestinationID); lerr == nil {
			return nil, fmt.Errorf("%w: %s is in %q but %s is in %q; transfer first",
				ordering.ErrBadRequest, move.SourceID, key.Group, move.DestinationID, other.Group)
		}
		return nil, fmt.Errorf("%w: destination %s is not in %s", ordering.ErrNotFound, move.DestinationID, key)
	}
	predicted, err := ordering.Reorder(pipeline.Entities(st.items), move, c.now())
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	m := c.beginLocked(map[GroupKey][]pipeline.Item{
		key: pipeline.ApplyEntities(st.items, predicted),
	})
	c.mu.Unlock()
	c.emit(m.events)

	var confirmed []pipeline.Item
	err = c.issue(ctx, m, func(ctx context.Context) error {
		out, err := c.remote.ReorderWithinGroup(ctx, kind, move)
		confirmed = pipeline.SortItems(out)
		return err
	})
	if err != nil {
		c.refresh(ctx, key)
		return nil, err
	}

	c.settle(m, map[GroupKey][]pipeline.Item{key: confirmed})
	c.refresh(ctx, key)

	c.logger.Debug("Reorder confirmed",
		zap.String("group", key.String()),
		zap.String("source_id", move.SourceID))
	return pipeline.CloneItems(confirmed), nil
}

// Transfer predicts moving id to the tail of group, then issues the
// transfer. Both the origin and destination groups are locked in one step
// so they stay ordered relative to other mutations touching either.
func (c *Coordinator) Transfer(ctx context.Context, kind pipeline.Kind, id, group string) (pipeline.Item, error) {
	dest, err := pipeline.ValidateGroup(kind, group)
	if err != nil {
		return pipeline.Item{}, err
	}
	destKey := GroupKey{Kind: kind, Group: dest}

	c.mu.Lock()
	originKey, err := c.locateLocked(kind, id)
	if err != nil {
		c.mu.Unlock()
		return pipeline.Item{}, err
	}
	origin := c.groups[originKey]
	idx := ordering.IndexOf(pipeline.Entities(origin.items), id)
	src := origin.items[idx]
	if originKey == destKey {
		c.mu.Unlock()
		return src.Clone(), nil
	}

	destState := c.state(destKey)
	res := ordering.TransferWithOrigin(src.Entity, pipeline.Entities(origin.items),
		pipeline.Entities(destState.items), dest, c.now())
	moved := src.Clone()
	moved.Entity = res.Moved

	predictions := map[GroupKey][]pipeline.Item{
		originKey: pipeline.ApplyEntities(origin.items, res.Origin),
	}
	if destState.loaded {
		predictions[destKey] = append(pipeline.CloneItems(destState.items), moved)
	} else {
		// Unloaded destinations are still serialized; they are filled by the refresh.
		predictions[destKey] = nil
	}
	m := c.beginLocked(predictions)
	c.mu.Unlock()
	c.emit(m.events)

	var confirmed pipeline.Item
	err = c.issue(ctx, m, func(ctx context.Context) error {
		out, err := c.remote.TransferToGroup(ctx, kind, id, dest)
		confirmed = out
		return err
	})
	if err != nil {
		c.refresh(ctx, originKey, destKey)
		return pipeline.Item{}, err
	}

	c.settle(m, nil)
	c.refresh(ctx, originKey, destKey)

	c.logger.Debug("Transfer confirmed",
		zap.String("id", id),
		zap.String("from", originKey.Group),
		zap.String("to", dest),
		zap.Int("order", confirmed.Order))
	return confirmed, nil
}

// TransferAndPlace transfers id into group and reorders it relative to
// destinationID. The intermediate tail placement is observable between
// the two mutations.
func (c *Coordinator) TransferAndPlace(ctx context.Context, kind pipeline.Kind, id, group, destinationID string, pos ordering.Position) ([]pipeline.Item, error) {
	if _, err := c.Transfer(ctx, kind, id, group); err != nil {
		return nil, err
	}
	return c.Reorder(ctx, kind, pipeline.Move{SourceID: id, DestinationID: destinationID, Position: pos})
}

// mutation is the bookkeeping of one in-flight optimistic change.
type mutation struct {
	gens   map[GroupKey]uint64
	prev   map[GroupKey][]pipeline.Item
	loaded map[GroupKey]bool
	waits  []chan struct{}
	done   chan struct{}
	events []Event
}

// beginLocked applies predictions, bumps generations and joins the FIFO
// chain of every affected group. A nil prediction leaves an unloaded
// group empty.
func (c *Coordinator) beginLocked(predictions map[GroupKey][]pipeline.Item) *mutation {
	m := &mutation{
		gens:   make(map[GroupKey]uint64, len(predictions)),
		prev:   make(map[GroupKey][]pipeline.Item, len(predictions)),
		loaded: make(map[GroupKey]bool, len(predictions)),
		done:   make(chan struct{}),
	}
	for key, items := range predictions {
		st := c.state(key)
		m.prev[key] = st.items
		m.loaded[key] = st.loaded
		st.gen++
		m.gens[key] = st.gen
		if n := len(st.chain); n > 0 {
			m.waits = append(m.waits, st.chain[n-1].done)
		}
		st.chain = append(st.chain, m)
		if items != nil || st.loaded {
			st.items = items
			st.loaded = true
			m.events = append(m.events, c.eventLocked(EventApplied, key, nil))
		}
	}
	return m
}

// issue waits for predecessors, runs fn under the timeout and rolls back
// on failure. On success the caller must settle m, which closes m.done.
func (c *Coordinator) issue(ctx context.Context, m *mutation, fn func(context.Context) error) error {
	for i, w := range m.waits {
		select {
		case <-w:
		case <-ctx.Done():
			rest := m.waits[i:]
			go func() {
				for _, w := range rest {
					<-w
				}
				close(m.done)
			}()
			err := fmt.Errorf("%w: %w", ordering.ErrTransient, ctx.Err())
			c.rollback(m, err)
			return err
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	err := fn(callCtx)
	cancel()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !ordering.IsRetryable(err) {
			err = fmt.Errorf("%w: %w", ordering.ErrTransient, err)
		}
		c.rollback(m, err)
		close(m.done)
		return err
	}
	return nil
}

// rollback restores m's restore point on groups where m is the newest
// mutation. Elsewhere the successor inherits it, since m's prediction was
// never accepted.
func (c *Coordinator) rollback(m *mutation, cause error) {
	c.mu.Lock()
	var events []Event
	for key := range m.gens {
		st := c.state(key)
		newest, next := st.unlink(m)
		if !newest {
			if next != nil {
				next.prev[key] = m.prev[key]
				next.loaded[key] = m.loaded[key]
			}
			continue
		}
		st.items = m.prev[key]
		st.loaded = m.loaded[key]
		if st.loaded {
			events = append(events, c.eventLocked(EventRolledBack, key, cause))
		}
	}
	c.mu.Unlock()
	c.emit(events)

	c.logger.Debug("Optimistic mutation rolled back", zap.Error(cause))
}

// settle releases m's hold on its groups and closes m.done. Confirmed
// lists are applied where m is the newest mutation and otherwise become
// the successor's restore point.
func (c *Coordinator) settle(m *mutation, confirmed map[GroupKey][]pipeline.Item) {
	c.mu.Lock()
	var events []Event
	for key := range m.gens {
		st := c.state(key)
		newest, next := st.unlink(m)
		items, ok := confirmed[key]
		if !ok {
			continue
		}
		if !newest {
			if next != nil {
				next.prev[key] = items
				next.loaded[key] = true
			}
			continue
		}
		st.items = items
		st.loaded = true
		events = append(events, c.eventLocked(EventConfirmed, key, nil))
	}
	c.mu.Unlock()
	close(m.done)
	c.emit(events)
}

// refresh reloads keys from the Remote. A refresh is applied only when no
// mutation started on the group after it was requested and none is in
// flight; the last such refresh wins.
func (c *Coordinator) refresh(ctx context.Context, keys ...GroupKey) {
	for _, key := range keys {
		c.mu.Lock()
		st := c.state(key)
		gen, busy := st.gen, len(st.chain) > 0
		c.mu.Unlock()
		if busy {
			continue
		}

		items, err := c.list(ctx, key)
		if err != nil {
			c.logger.Warn("Refresh failed", zap.String("group", key.String()), zap.Error(err))
			continue
		}

		c.mu.Lock()
		var events []Event
		if st := c.state(key); st.gen == gen && len(st.chain) == 0 {
			st.items = items
			st.loaded = true
			events = append(events, c.eventLocked(EventRefreshed, key, nil))
		}
		c.mu.Unlock()
		c.emit(events)
	}
}

func (c *Coordinator) list(ctx context.Context, key GroupKey) ([]pipeline.Item, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	items, err := c.remote.ListGroup(callCtx, key.Kind, key.Group)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !ordering.IsRetryable(err) {
			err = fmt.Errorf("%w: %w", ordering.ErrTransient, err)
		}
		return nil, err
	}
	return pipeline.SortItems(items), nil
}

func (c *Coordinator) state(key GroupKey) *groupState {
	st, ok := c.groups[key]
	if !ok {
		st = &groupState{}
		c.groups[key] = st
	}
	return st
}

func (c *Coordinator) locate(kind pipeline.Kind, id string) (GroupKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locateLocked(kind, id)
}

// locateLocked finds the loaded group holding id.
func (c *Coordinator) locateLocked(kind pipeline.Kind, id string) (GroupKey, error) {
	for key, st := range c.groups {
		if key.Kind != kind || !st.loaded {
			continue
		}
		if ordering.IndexOf(pipeline.Entities(st.items), id) >= 0 {
			return key, nil
		}
	}
	return GroupKey{}, fmt.Errorf("%w: %s %s is not in any loaded group", ordering.ErrNotFound, kind, id)
}

func (c *Coordinator) eventLocked(t EventType, key GroupKey, err error) Event {
	return Event{Type: t, Key: key, Items: pipeline.CloneItems(c.groups[key].items), Err: err}
}

func (c *Coordinator) emit(events []Event) {
	if len(events) == 0 {
		return
	}
	c.mu.Lock()
	subs := make([]func(Event), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	for _, ev := range events {
		for _, fn := range subs {
			fn(ev)
		}
	}
}
