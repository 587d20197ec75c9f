package pipeline

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/3leaps/hirelane/pkg/ordering"
)

// FaultConfig controls FlakyGateway behaviour.
type FaultConfig struct {
	// FailureRate is the probability in [0,1] that a write fails.
	FailureRate float64
	// MinLatency and MaxLatency bound the delay added to every call.
	MinLatency time.Duration
	MaxLatency time.Duration
}

// Enabled reports whether the config injects anything.
func (c FaultConfig) Enabled() bool {
	return c.FailureRate > 0 || c.MaxLatency > 0
}

// FlakyGateway wraps a Gateway with random latency and transient write
// failures. Reads are delayed but never fail.
type FlakyGateway struct {
	next Gateway
	cfg  FaultConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewFlakyGateway wraps next. A seed of 0 draws a random seed.
func NewFlakyGateway(next Gateway, cfg FaultConfig, seed uint64) *FlakyGateway {
	if seed == 0 {
		seed = rand.Uint64()
	}
	cfg.FailureRate = min(max(cfg.FailureRate, 0), 1)
	if cfg.MaxLatency < cfg.MinLatency {
		cfg.MaxLatency = cfg.MinLatency
	}
	return &FlakyGateway{
		next: next,
		cfg:  cfg,
		rng:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (f *FlakyGateway) delay(ctx context.Context) error {
	f.mu.Lock()
	d := f.cfg.MinLatency
	if span := f.cfg.MaxLatency - f.cfg.MinLatency; span > 0 {
		d += time.Duration(f.rng.Int64N(int64(span)))
	}
	f.mu.Unlock()
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ordering.ErrTransient, ctx.Err())
	case <-t.C:
		return nil
	}
}

func (f *FlakyGateway) fail(op string) error {
	f.mu.Lock()
	roll := f.rng.Float64()
	f.mu.Unlock()
	if roll < f.cfg.FailureRate {
		return fmt.Errorf("%w: injected %s failure", ordering.ErrTransient, op)
	}
	return nil
}

// GetGroup implements Gateway.
func (f *FlakyGateway) GetGroup(ctx context.Context, kind Kind, group string) ([]Item, error) {
	if err := f.delay(ctx); err != nil {
		return nil, err
	}
	return f.next.GetGroup(ctx, kind, group)
}

// Get implements Gateway.
func (f *FlakyGateway) Get(ctx context.Context, kind Kind, id string) (Item, error) {
	if err := f.delay(ctx); err != nil {
		return Item{}, err
	}
	return f.next.Get(ctx, kind, id)
}

// BulkOverwriteOrder implements Gateway.
func (f *FlakyGateway) BulkOverwriteOrder(ctx context.Context, kind Kind, updates []OrderUpdate) error {
	if err := f.delay(ctx); err != nil {
		return err
	}
	if err := f.fail("bulk overwrite"); err != nil {
		return err
	}
	return f.next.BulkOverwriteOrder(ctx, kind, updates)
}

// MaxOrder implements Gateway.
func (f *FlakyGateway) MaxOrder(ctx context.Context, kind Kind, group string) (int, error) {
	if err := f.delay(ctx); err != nil {
		return 0, err
	}
	return f.next.MaxOrder(ctx, kind, group)
}

// Insert implements Gateway.
func (f *FlakyGateway) Insert(ctx context.Context, it Item) error {
	if err := f.delay(ctx); err != nil {
		return err
	}
	if err := f.fail("insert"); err != nil {
		return err
	}
	return f.next.Insert(ctx, it)
}

// SlugExists implements Gateway.
func (f *FlakyGateway) SlugExists(ctx context.Context, slug string) (bool, error) {
	if err := f.delay(ctx); err != nil {
		return false, err
	}
	return f.next.SlugExists(ctx, slug)
}

// UpdateDetails implements Gateway.
func (f *FlakyGateway) UpdateDetails(ctx context.Context, it Item) error {
	if err := f.delay(ctx); err != nil {
		return err
	}
	if err := f.fail("update"); err != nil {
		return err
	}
	return f.next.UpdateDetails(ctx, it)
}

// Count implements Gateway.
func (f *FlakyGateway) Count(ctx context.Context, kind Kind) (int, error) {
	if err := f.delay(ctx); err != nil {
		return 0, err
	}
	return f.next.Count(ctx, kind)
}
