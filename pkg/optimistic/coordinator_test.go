package optimistic

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/hirelane/pkg/ordering"
	"github.com/3leaps/hirelane/pkg/pipeline"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func item(kind pipeline.Kind, id, group string, order int) pipeline.Item {
	return pipeline.Item{
		Entity: ordering.Entity{ID: id, Group: group, Order: order, CreatedAt: t0, UpdatedAt: t0},
		Kind:   kind,
		Name:   id,
	}
}

func jobs(ids ...string) []pipeline.Item {
	out := make([]pipeline.Item, len(ids))
	for i, id := range ids {
		out[i] = item(pipeline.KindJob, id, pipeline.GlobalGroup, i)
	}
	return out
}

func idsOf(items []pipeline.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) ofType(t EventType) []Event {
	var out []Event
	for _, ev := range r.all() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// gatedRemote holds the first reorder until gate is closed.
type gatedRemote struct {
	*pipeline.Service

	gate    chan struct{}
	entered chan struct{}

	mu    sync.Mutex
	calls []string
}

func (r *gatedRemote) ReorderWithinGroup(ctx context.Context, kind pipeline.Kind, move pipeline.Move) ([]pipeline.Item, error) {
	r.mu.Lock()
	r.calls = append(r.calls, move.SourceID)
	first := len(r.calls) == 1
	r.mu.Unlock()

	if first && r.gate != nil {
		close(r.entered)
		select {
		case <-r.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return r.Service.ReorderWithinGroup(ctx, kind, move)
}

// brokenRemote rejects every reorder, holding the first until gate is
// closed. Once listing is disabled ListGroup fails too.
type brokenRemote struct {
	*pipeline.Service

	gate    chan struct{}
	entered chan struct{}

	mu       sync.Mutex
	calls    int
	listDown bool
}

func (r *brokenRemote) ReorderWithinGroup(_ context.Context, _ pipeline.Kind, _ pipeline.Move) ([]pipeline.Item, error) {
	r.mu.Lock()
	r.calls++
	first := r.calls == 1
	r.mu.Unlock()

	if first {
		close(r.entered)
		<-r.gate
	}
	return nil, ordering.ErrTransient
}

func (r *brokenRemote) ListGroup(ctx context.Context, kind pipeline.Kind, group string) ([]pipeline.Item, error) {
	r.mu.Lock()
	disabled := r.listDown
	r.mu.Unlock()
	if disabled {
		return nil, ordering.ErrTransient
	}
	return r.Service.ListGroup(ctx, kind, group)
}

// stuckRemote never answers a mutation before its context ends.
type stuckRemote struct {
	*pipeline.Service
}

func (stuckRemote) ReorderWithinGroup(ctx context.Context, _ pipeline.Kind, _ pipeline.Move) ([]pipeline.Item, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestReorder_AppliesAndConfirms(t *testing.T) {
	ctx := context.Background()
	svc := pipeline.NewService(pipeline.NewMemoryGateway(jobs("J1", "J2", "J3", "J4")...))
	c := New(svc)
	rec := &recorder{}
	defer c.Subscribe(rec.record)()

	_, err := c.Load(ctx, pipeline.KindJob, "")
	require.NoError(t, err)

	out, err := c.Reorder(ctx, pipeline.KindJob, pipeline.Move{
		SourceID: "J1", DestinationID: "J4", Position: ordering.PositionAfter,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"J2", "J3", "J4", "J1"}, idsOf(out))

	snap, ok := c.Snapshot(pipeline.KindJob, pipeline.GlobalGroup)
	require.True(t, ok)
	assert.Equal(t, []string{"J2", "J3", "J4", "J1"}, idsOf(snap))

	applied := rec.ofType(EventApplied)
	require.Len(t, applied, 1)
	assert.Equal(t, []string{"J2", "J3", "J4", "J1"}, idsOf(applied[0].Items), "prediction matches server")
	assert.Len(t, rec.ofType(EventConfirmed), 1)
	assert.Len(t, rec.ofType(EventRefreshed), 1)
	assert.Len(t, rec.ofType(EventLoaded), 1)
}

func TestReorder_FailureRestoresExactSnapshot(t *testing.T) {
	ctx := context.Background()
	mem := pipeline.NewMemoryGateway(jobs("J1", "J2", "J3")...)
	flaky := pipeline.NewFlakyGateway(mem, pipeline.FaultConfig{FailureRate: 1}, 7)
	c := New(pipeline.NewService(flaky))
	rec := &recorder{}
	defer c.Subscribe(rec.record)()

	before, err := c.Load(ctx, pipeline.KindJob, "")
	require.NoError(t, err)

	_, err = c.Reorder(ctx, pipeline.KindJob, pipeline.Move{
		SourceID: "J3", DestinationID: "J1", Position: ordering.PositionBefore,
	})
	require.Error(t, err)
	assert.True(t, ordering.IsRetryable(err))

	applied := rec.ofType(EventApplied)
	require.Len(t, applied, 1)
	assert.Equal(t, []string{"J3", "J1", "J2"}, idsOf(applied[0].Items))

	rolled := rec.ofType(EventRolledBack)
	require.Len(t, rolled, 1)
	assert.Equal(t, before, rolled[0].Items)
	assert.ErrorIs(t, rolled[0].Err, ordering.ErrTransient)

	snap, ok := c.Snapshot(pipeline.KindJob, pipeline.GlobalGroup)
	require.True(t, ok)
	assert.Equal(t, before, snap)
}

func TestReorder_TimeoutIsTransient(t *testing.T) {
	ctx := context.Background()
	svc := pipeline.NewService(pipeline.NewMemoryGateway(jobs("J1", "J2")...))
	c := New(stuckRemote{svc}, WithTimeout(20*time.Millisecond))

	before, err := c.Load(ctx, pipeline.KindJob, "")
	require.NoError(t, err)

	_, err = c.Reorder(ctx, pipeline.KindJob, pipeline.Move{
		SourceID: "J1", DestinationID: "J2", Position: ordering.PositionAfter,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ordering.ErrTransient)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	snap, _ := c.Snapshot(pipeline.KindJob, pipeline.GlobalGroup)
	assert.Equal(t, idsOf(before), idsOf(snap))
}

func TestReorder_StaleResponseIgnored(t *testing.T) {
	ctx := context.Background()
	remote := &gatedRemote{
		Service: pipeline.NewService(pipeline.NewMemoryGateway(jobs("J1", "J2", "J3")...)),
		gate:    make(chan struct{}),
		entered: make(chan struct{}),
	}
	c := New(remote)
	rec := &recorder{}
	defer c.Subscribe(rec.record)()

	_, err := c.Load(ctx, pipeline.KindJob, "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[0] = c.Reorder(ctx, pipeline.KindJob, pipeline.Move{
			SourceID: "J3", DestinationID: "J1", Position: ordering.PositionBefore,
		})
	}()
	<-remote.entered

	zero := 0
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[1] = c.Reorder(ctx, pipeline.KindJob, pipeline.Move{SourceID: "J2", ToOrder: &zero})
	}()

	final := []string{"J2", "J3", "J1"}
	require.Eventually(t, func() bool {
		snap, _ := c.Snapshot(pipeline.KindJob, pipeline.GlobalGroup)
		return assert.ObjectsAreEqual(final, idsOf(snap))
	}, time.Second, time.Millisecond, "second prediction stacks on the first")

	close(remote.gate)
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	remote.mu.Lock()
	assert.Equal(t, []string{"J3", "J2"}, remote.calls, "issued in FIFO order")
	remote.mu.Unlock()

	events := rec.all()
	second := -1
	for i, ev := range events {
		if ev.Type == EventApplied && assert.ObjectsAreEqual(final, idsOf(ev.Items)) {
			second = i
		}
	}
	require.GreaterOrEqual(t, second, 0)
	for _, ev := range events[second:] {
		assert.Equal(t, final, idsOf(ev.Items), "no %s event regressed the snapshot", ev.Type)
	}
	assert.Len(t, rec.ofType(EventConfirmed), 1, "only the newest response is applied")
}

func TestReorder_StackedFailuresRestoreConfirmedState(t *testing.T) {
	ctx := context.Background()
	remote := &brokenRemote{
		Service: pipeline.NewService(pipeline.NewMemoryGateway(jobs("J1", "J2", "J3")...)),
		gate:    make(chan struct{}),
		entered: make(chan struct{}),
	}
	c := New(remote)
	rec := &recorder{}
	defer c.Subscribe(rec.record)()

	_, err := c.Load(ctx, pipeline.KindJob, "")
	require.NoError(t, err)

	remote.mu.Lock()
	remote.listDown = true
	remote.mu.Unlock()

	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[0] = c.Reorder(ctx, pipeline.KindJob, pipeline.Move{
			SourceID: "J3", DestinationID: "J1", Position: ordering.PositionBefore,
		})
	}()
	<-remote.entered

	zero := 0
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[1] = c.Reorder(ctx, pipeline.KindJob, pipeline.Move{SourceID: "J2", ToOrder: &zero})
	}()

	require.Eventually(t, func() bool {
		snap, _ := c.Snapshot(pipeline.KindJob, pipeline.GlobalGroup)
		return assert.ObjectsAreEqual([]string{"J2", "J3", "J1"}, idsOf(snap))
	}, time.Second, time.Millisecond)

	close(remote.gate)
	wg.Wait()
	require.ErrorIs(t, errs[0], ordering.ErrTransient)
	require.ErrorIs(t, errs[1], ordering.ErrTransient)

	snap, ok := c.Snapshot(pipeline.KindJob, pipeline.GlobalGroup)
	require.True(t, ok)
	assert.Equal(t, []string{"J1", "J2", "J3"}, idsOf(snap), "no failed prediction survives without a refresh")
	assert.Empty(t, rec.ofType(EventRefreshed))

	rolled := rec.ofType(EventRolledBack)
	require.Len(t, rolled, 1, "only the newest mutation writes its rollback")
	assert.Equal(t, []string{"J1", "J2", "J3"}, idsOf(rolled[0].Items))
}

func TestReorder_CanceledWhileQueuedKeepsPredecessorOutcome(t *testing.T) {
	ctx := context.Background()
	remote := &gatedRemote{
		Service: pipeline.NewService(pipeline.NewMemoryGateway(jobs("J1", "J2", "J3")...)),
		gate:    make(chan struct{}),
		entered: make(chan struct{}),
	}
	c := New(remote)

	_, err := c.Load(ctx, pipeline.KindJob, "")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := c.Reorder(ctx, pipeline.KindJob, pipeline.Move{
			SourceID: "J3", DestinationID: "J1", Position: ordering.PositionBefore,
		})
		done <- err
	}()
	<-remote.entered

	queuedCtx, cancel := context.WithCancel(ctx)
	cancel()
	zero := 0
	_, err = c.Reorder(queuedCtx, pipeline.KindJob, pipeline.Move{SourceID: "J2", ToOrder: &zero})
	require.ErrorIs(t, err, ordering.ErrTransient)

	snap, _ := c.Snapshot(pipeline.KindJob, pipeline.GlobalGroup)
	assert.Equal(t, []string{"J3", "J1", "J2"}, idsOf(snap), "first prediction still pending")

	close(remote.gate)
	require.NoError(t, <-done)

	snap, _ = c.Snapshot(pipeline.KindJob, pipeline.GlobalGroup)
	assert.Equal(t, []string{"J3", "J1", "J2"}, idsOf(snap))
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	k := pipeline.KindCandidate
	mem := pipeline.NewMemoryGateway(
		item(k, "A0", "applied", 0),
		item(k, "C5", "applied", 1),
		item(k, "A2", "applied", 2),
		item(k, "O0", "offer", 0),
		item(k, "O1", "offer", 1),
		item(k, "O2", "offer", 2),
	)
	c := New(pipeline.NewService(mem))

	_, err := c.Load(ctx, k, "applied")
	require.NoError(t, err)
	_, err = c.Load(ctx, k, "offer")
	require.NoError(t, err)

	moved, err := c.Transfer(ctx, k, "C5", "offer")
	require.NoError(t, err)
	assert.Equal(t, "offer", moved.Group)
	assert.Equal(t, 3, moved.Order)

	offer, _ := c.Snapshot(k, "offer")
	assert.Equal(t, []string{"O0", "O1", "O2", "C5"}, idsOf(offer))
	applied, _ := c.Snapshot(k, "applied")
	assert.Equal(t, []string{"A0", "A2"}, idsOf(applied))
	assert.Equal(t, 1, applied[1].Order)
}

func TestTransfer_FailureRestoresBothGroups(t *testing.T) {
	ctx := context.Background()
	k := pipeline.KindCandidate
	mem := pipeline.NewMemoryGateway(
		item(k, "A0", "applied", 0),
		item(k, "A1", "applied", 1),
		item(k, "O0", "offer", 0),
	)
	flaky := pipeline.NewFlakyGateway(mem, pipeline.FaultConfig{FailureRate: 1}, 3)
	c := New(pipeline.NewService(flaky))
	rec := &recorder{}
	defer c.Subscribe(rec.record)()

	applied, err := c.Load(ctx, k, "applied")
	require.NoError(t, err)
	offer, err := c.Load(ctx, k, "offer")
	require.NoError(t, err)

	_, err = c.Transfer(ctx, k, "A0", "offer")
	require.Error(t, err)

	rolled := rec.ofType(EventRolledBack)
	require.Len(t, rolled, 2)
	for _, ev := range rolled {
		switch ev.Key.Group {
		case "applied":
			assert.Equal(t, applied, ev.Items)
		case "offer":
			assert.Equal(t, offer, ev.Items)
		default:
			t.Fatalf("unexpected group %s", ev.Key)
		}
	}
}

func TestTransferAndPlace(t *testing.T) {
	ctx := context.Background()
	k := pipeline.KindCandidate
	mem := pipeline.NewMemoryGateway(
		item(k, "A0", "applied", 0),
		item(k, "O0", "offer", 0),
		item(k, "O1", "offer", 1),
	)
	c := New(pipeline.NewService(mem))
	_, err := c.Load(ctx, k, "applied")
	require.NoError(t, err)
	_, err = c.Load(ctx, k, "offer")
	require.NoError(t, err)

	out, err := c.TransferAndPlace(ctx, k, "A0", "offer", "O1", ordering.PositionBefore)
	require.NoError(t, err)
	assert.Equal(t, []string{"O0", "A0", "O1"}, idsOf(out))
}

func TestCoordinatorErrors(t *testing.T) {
	ctx := context.Background()
	k := pipeline.KindCandidate
	mem := pipeline.NewMemoryGateway(
		item(k, "A0", "applied", 0),
		item(k, "A1", "applied", 1),
		item(k, "O0", "offer", 0),
	)
	c := New(pipeline.NewService(mem))

	_, err := c.Reorder(ctx, k, pipeline.Move{SourceID: "A0", DestinationID: "A1", Position: ordering.PositionAfter})
	assert.ErrorIs(t, err, ordering.ErrNotFound, "group not loaded")

	_, err = c.Load(ctx, k, "applied")
	require.NoError(t, err)
	_, err = c.Load(ctx, k, "offer")
	require.NoError(t, err)

	tests := []struct {
		name string
		move pipeline.Move
		want error
	}{
		{"cross group", pipeline.Move{SourceID: "A0", DestinationID: "O0", Position: ordering.PositionAfter}, ordering.ErrBadRequest},
		{"unknown destination", pipeline.Move{SourceID: "A0", DestinationID: "zz", Position: ordering.PositionAfter}, ordering.ErrNotFound},
		{"bad position", pipeline.Move{SourceID: "A0", DestinationID: "A1", Position: "over"}, ordering.ErrBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Reorder(ctx, k, tt.move)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	_, err = c.Transfer(ctx, k, "A0", "limbo")
	assert.ErrorIs(t, err, ordering.ErrBadRequest)

	snap, _ := c.Snapshot(k, "applied")
	assert.Equal(t, []string{"A0", "A1"}, idsOf(snap), "rejected moves change nothing")
}
