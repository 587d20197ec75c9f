package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/3leaps/hirelane/internal/config"
	"github.com/3leaps/hirelane/internal/observability"
	"github.com/3leaps/hirelane/internal/server/handlers"
	"github.com/3leaps/hirelane/pkg/boardclient"
	"github.com/3leaps/hirelane/pkg/boardstore"
	"github.com/3leaps/hirelane/pkg/optimistic"
	"github.com/3leaps/hirelane/pkg/output"
	"github.com/3leaps/hirelane/pkg/pipeline"
)

// board is what CLI commands drive: the local service or a remote API.
type board interface {
	handlers.Board
	optimistic.Remote
}

type session struct {
	board  board
	source string
	store  *boardstore.Store
	close  func()
}

// openSession connects to --server when set, otherwise opens the local
// store described by cfg.
func openSession(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*session, error) {
	if serverURL != "" {
		hc := &http.Client{Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxConnsPerHost:     cfg.Workers,
			MaxIdleConnsPerHost: cfg.Workers,
			IdleConnTimeout:     90 * time.Second,
		}}
		c, err := boardclient.New(serverURL, boardclient.WithHTTPClient(hc), boardclient.WithLogger(logger))
		if err != nil {
			return nil, exitError(foundry.ExitInvalidArgument, "Invalid --server value", err)
		}
		return &session{board: c, source: serverURL, close: func() {}}, nil
	}

	svc, store, err := openLocalService(ctx, cfg, logger, nil)
	if err != nil {
		return nil, exitError(foundry.ExitExternalServiceUnavailable, "Failed to open board store", err)
	}
	return &session{
		board:  svc,
		source: "local",
		store:  store,
		close:  func() { _ = store.Close() },
	}, nil
}

// openLocalService opens the store, wraps it with fault injection when
// configured, and builds the authoritative service over it.
func openLocalService(ctx context.Context, cfg *config.Config, logger *zap.Logger, metrics *pipeline.Metrics) (*pipeline.Service, *boardstore.Store, error) {
	store, err := boardstore.Open(ctx, boardstore.Config{
		Path:      cfg.Store.Path,
		URL:       cfg.Store.URL,
		AuthToken: cfg.Store.AuthToken,
	})
	if err != nil {
		return nil, nil, err
	}

	var gw pipeline.Gateway = store
	faults := pipeline.FaultConfig{
		FailureRate: cfg.Faults.FailureRate,
		MinLatency:  cfg.Faults.MinLatency,
		MaxLatency:  cfg.Faults.MaxLatency,
	}
	if faults.Enabled() {
		logger.Info("Fault injection enabled",
			zap.Float64("failure_rate", faults.FailureRate),
			zap.Duration("min_latency", faults.MinLatency),
			zap.Duration("max_latency", faults.MaxLatency))
		gw = pipeline.NewFlakyGateway(store, faults, cfg.Faults.Seed)
	}

	opts := []pipeline.Option{pipeline.WithLogger(logger)}
	if metrics != nil {
		opts = append(opts, pipeline.WithMetrics(metrics))
	}
	return pipeline.NewService(gw, opts...), store, nil
}

// loadedConfig returns the configuration initConfig loaded.
func loadedConfig() (*config.Config, error) {
	cfg := config.GetConfig()
	if cfg == nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Configuration not loaded", fmt.Errorf("run through the root command"))
	}
	return cfg, nil
}

// runOutput couples a JSONL writer with summary bookkeeping.
type runOutput struct {
	*output.JSONLWriter
	started time.Time
	items   int64
	errors  int64
	closeFn func()
}

// newRunOutput writes to path, or stdout when path is empty or "-".
func newRunOutput(path, source string) (*runOutput, error) {
	var w io.Writer = os.Stdout
	closeFn := func() {}
	if path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return nil, exitError(foundry.ExitFileWriteError, "Failed to create output", err)
		}
		w = f
		closeFn = func() { _ = f.Close() }
	}
	return &runOutput{
		JSONLWriter: output.NewJSONLWriter(w, uuid.NewString(), source),
		started:     time.Now(),
		closeFn:     closeFn,
	}, nil
}

func (o *runOutput) emit(ctx context.Context, items []pipeline.Item) error {
	if err := o.WriteItems(ctx, items); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
	}
	o.items += int64(len(items))
	return nil
}

func (o *runOutput) fail(ctx context.Context, err error, id, group string) {
	o.errors++
	_ = o.WriteError(ctx, output.NewErrorRecord(err, id, group))
}

func (o *runOutput) finish(ctx context.Context, op string, kind pipeline.Kind, group string) {
	d := time.Since(o.started)
	_ = o.WriteSummary(ctx, &output.SummaryRecord{
		Operation:     op,
		Kind:          string(kind),
		Group:         group,
		Items:         o.items,
		Errors:        o.errors,
		Duration:      d,
		DurationHuman: d.Round(time.Millisecond).String(),
	})
	_ = o.Close()
	o.closeFn()
}

// eventSink mirrors coordinator events into the output stream.
func (o *runOutput) eventSink(ctx context.Context) func(optimistic.Event) {
	return func(ev optimistic.Event) {
		rec := &output.EventRecord{
			Event: string(ev.Type),
			Kind:  string(ev.Key.Kind),
			Group: ev.Key.Group,
			IDs:   make([]string, len(ev.Items)),
		}
		for i, it := range ev.Items {
			rec.IDs[i] = it.ID
		}
		if ev.Err != nil {
			rec.Error = ev.Err.Error()
		}
		if err := o.WriteEvent(ctx, rec); err != nil {
			observability.CLILogger.Debug("Dropped event record", zap.Error(err))
		}
	}
}

// exitCodeFor maps board errors onto process exit codes.
func exitCodeFor(err error) int {
	switch output.ErrorCode(err) {
	case output.ErrCodeNotFound, output.ErrCodeBadRequest, output.ErrCodeConflict:
		return foundry.ExitInvalidArgument
	case output.ErrCodeTimeout, output.ErrCodeTransient:
		return foundry.ExitExternalServiceUnavailable
	}
	return 1
}
