package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/3leaps/hirelane/internal/config"
	"github.com/3leaps/hirelane/internal/observability"
	"github.com/3leaps/hirelane/internal/server"
	"github.com/3leaps/hirelane/internal/server/handlers"
	"github.com/3leaps/hirelane/internal/server/middleware"
	"github.com/3leaps/hirelane/pkg/boardstore"
	"github.com/3leaps/hirelane/pkg/pipeline"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the board HTTP API",
	Long: `Serve the board over HTTP.

Routes:
  GET   /api/_counts                               {jobs, candidates}
  GET   /api/{candidates|jobs}                     paged listing (page, limit, q, stage)
  GET   /api/{candidates|jobs}/groups/{group}      ordered group (filters via query)
  GET   /api/{kind}/{id}
  POST  /api/{kind}                                create at tail
  PATCH /api/{kind}/{id}                           edit details
  POST  /api/{kind}/reorder                        {sourceId, destinationId, position}
  PATCH /api/{kind}/{id}/reorder                   {toOrder} or {destinationId, position}
  PATCH /api/{kind}/{id}/stage                     {stage}
  POST  /api/{kind}/groups/{group}/renumber
  GET   /health, /health/live, /health/ready, /health/startup, /version, /metrics

Set faults.failure_rate and faults.min_latency/max_latency to exercise
client rollback against an unreliable board.

Examples:
  hirelane serve
  hirelane serve --port 9000 --failure-rate 0.08 --max-latency 600ms`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	f.String("host", "", "Listen host (overrides server.host)")
	f.Int("port", 0, "Listen port (overrides server.port)")
	f.Float64("failure-rate", 0, "Probability in [0,1] that a write fails")
	f.Duration("min-latency", 0, "Minimum latency added to board calls")
	f.Duration("max-latency", 0, "Maximum latency added to board calls")
	f.Float64("rate-limit", 0, "Mutation requests per second (0 disables)")

	extraOverrides = append(extraOverrides, serveOverrides)
}

func serveOverrides(cmd *cobra.Command, out map[string]any) {
	if cmd != serveCmd {
		return
	}
	pairs := []struct{ flag, section, key string }{
		{"host", "server", "host"},
		{"port", "server", "port"},
		{"failure-rate", "faults", "failure_rate"},
		{"min-latency", "faults", "min_latency"},
		{"max-latency", "faults", "max_latency"},
		{"rate-limit", "api", "rate_limit"},
	}
	for _, p := range pairs {
		f := cmd.Flags().Lookup(p.flag)
		if f == nil || !f.Changed {
			continue
		}
		node, ok := out[p.section].(map[string]any)
		if !ok {
			node = map[string]any{}
			out[p.section] = node
		}
		node[p.key] = f.Value.String()
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}
	identity := GetAppIdentity()
	if identity == nil {
		id := config.DefaultIdentity
		identity = &id
	}

	if err := observability.InitServerLogger(identity.BinaryName, cfg.Logging.Level, cfg.Logging.Profile); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid logging configuration", err)
	}
	logger := observability.ServerLogger
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metrics *pipeline.Metrics
	if cfg.Metrics.Enabled {
		metrics = pipeline.NewMetrics(observability.InitMetrics())
	}

	svc, store, err := openLocalService(ctx, cfg, logger, metrics)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to open board store", err)
	}
	defer func() { _ = store.Close() }()

	hm := handlers.InitHealthManager(versionInfo.Version)
	hm.RegisterChecker("shutdown", shutdownHealthChecker{done: ctx.Done()})
	hm.RegisterChecker("identity", identityHealthChecker{
		binaryName: identity.BinaryName,
		envPrefix:  identity.EnvPrefix,
		configName: identity.ConfigName,
	})
	hm.RegisterChecker("store", storeHealthChecker{store: store})
	hm.RegisterChecker("board", handlers.BoardHealthChecker(svc))
	if cfg.Metrics.Enabled {
		hm.RegisterChecker("metrics", metricsHealthChecker{})
	}

	var limiter *rate.Limiter
	if cfg.API.RateLimit > 0 {
		limiter = middleware.NewLimiter(cfg.API.RateLimit, cfg.API.RateBurst)
	}

	opts := []server.Option{
		server.WithBoard(svc),
		server.WithLogger(logger),
		server.WithRateLimit(limiter),
		server.WithProfiler(cfg.Debug.PprofEnabled),
		server.WithVersion(handlers.VersionInfo{
			Version:   versionInfo.Version,
			Commit:    versionInfo.Commit,
			BuildDate: versionInfo.BuildDate,
		}),
		server.WithTimeouts(server.Timeouts{
			Read:  cfg.Server.ReadTimeout,
			Write: cfg.Server.WriteTimeout,
			Idle:  cfg.Server.IdleTimeout,
		}),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, server.WithRegistry(observability.Registry))
	}
	srv := server.New(cfg.Server.Host, cfg.Server.Port, opts...)

	errCh := make(chan error, 2)
	go func() { errCh <- srv.Start() }()

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled && cfg.Metrics.Port > 0 && cfg.Metrics.Port != cfg.Server.Port {
		metricsSrv = &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Metrics.Port)),
			Handler:           promhttp.HandlerFor(observability.Registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("Starting metrics server", zap.String("addr", metricsSrv.Addr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	logger.Info("Board API ready",
		zap.String("addr", srv.Addr()),
		zap.String("store", storeLabel(cfg.Store)),
		zap.String("version", versionInfo.Version))

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown incomplete", zap.Error(err))
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	if runErr != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", runErr)
	}
	return nil
}

// shutdownHealthChecker fails once SIGINT or SIGTERM has been received, so
// readiness drops while in-flight requests drain.
type shutdownHealthChecker struct {
	done <-chan struct{}
}

func (c shutdownHealthChecker) CheckHealth(context.Context) error {
	select {
	case <-c.done:
		return errors.New("shutting down")
	default:
		return nil
	}
}

// identityHealthChecker verifies the app identity is fully populated.
type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (c identityHealthChecker) CheckHealth(context.Context) error {
	switch {
	case c.binaryName == "":
		return errors.New("identity: missing binary name")
	case c.envPrefix == "":
		return errors.New("identity: missing env prefix")
	case c.configName == "":
		return errors.New("identity: missing config name")
	}
	return nil
}

// metricsHealthChecker verifies the metrics registry is initialized and gatherable.
type metricsHealthChecker struct{}

func (metricsHealthChecker) CheckHealth(context.Context) error {
	reg := observability.Registry
	if reg == nil {
		return errors.New("metrics registry not initialized")
	}
	if _, err := reg.Gather(); err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	return nil
}

// storeHealthChecker pings the board database.
type storeHealthChecker struct {
	store *boardstore.Store
}

func (c storeHealthChecker) CheckHealth(ctx context.Context) error {
	if c.store == nil {
		return errors.New("board store not open")
	}
	return c.store.DB().PingContext(ctx)
}
