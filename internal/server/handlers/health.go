package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	apperrors "github.com/3leaps/hirelane/internal/errors"
	"github.com/3leaps/hirelane/pkg/pipeline"
)

const checkTimeout = 2 * time.Second

// HealthChecker is a named dependency check.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthCheckerFunc adapts a function to HealthChecker.
type HealthCheckerFunc func(ctx context.Context) error

// CheckHealth implements HealthChecker.
func (f HealthCheckerFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

// BoardHealthChecker fails while the board cannot count its jobs and
// candidates, which reads both kinds through the gateway.
func BoardHealthChecker(board interface {
	Counts(ctx context.Context) (pipeline.Counts, error)
}) HealthChecker {
	return HealthCheckerFunc(func(ctx context.Context) error {
		_, err := board.Counts(ctx)
		return err
	})
}

// HealthResponse is the body of a passing health check.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthManager runs registered checkers for the health endpoints.
type HealthManager struct {
	version string
	started time.Time

	mu       sync.RWMutex
	checkers map[string]HealthChecker
}

// NewHealthManager returns a manager reporting version.
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		version:  version,
		started:  time.Now(),
		checkers: make(map[string]HealthChecker),
	}
}

// RegisterChecker adds or replaces a named checker.
func (m *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = checker
}

func (m *HealthManager) runChecks(ctx context.Context) map[string]string {
	m.mu.RLock()
	names := make([]string, 0, len(m.checkers))
	for name := range m.checkers {
		names = append(names, name)
	}
	checkers := make(map[string]HealthChecker, len(m.checkers))
	for k, v := range m.checkers {
		checkers[k] = v
	}
	m.mu.RUnlock()
	sort.Strings(names)

	results := make(map[string]string, len(names))
	for _, name := range names {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := checkers[name].CheckHealth(cctx)
		cancel()
		switch {
		case err == nil:
			results[name] = "healthy"
		case errors.Is(err, context.DeadlineExceeded):
			results[name] = "timeout"
		default:
			results[name] = "unhealthy"
		}
	}
	return results
}

// determineOverallStatus folds check results: any unhealthy check makes the
// service unhealthy; timeouts only degrade it.
func (m *HealthManager) determineOverallStatus(checks map[string]string) string {
	status := "healthy"
	for _, s := range checks {
		switch s {
		case "unhealthy":
			return "unhealthy"
		case "timeout":
			status = "degraded"
		}
	}
	return status
}

// HealthHandler runs every checker.
func (m *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	checks := m.runChecks(r.Context())
	m.respond(w, r, m.determineOverallStatus(checks), checks)
}

// LivenessHandler reports that the process is serving requests.
func (m *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	m.respond(w, r, "healthy", nil)
}

// ReadinessHandler runs every checker; the service is ready unless one fails.
func (m *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	m.HealthHandler(w, r)
}

// StartupHandler reports that startup completed.
func (m *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	m.respond(w, r, "healthy", nil)
}

func (m *HealthManager) respond(w http.ResponseWriter, r *http.Request, status string, checks map[string]string) {
	if status == "unhealthy" {
		apperrors.WriteError(w, r, http.StatusServiceUnavailable, apperrors.CodeServiceUnavailable,
			"one or more health checks failed", map[string]any{"checks": checks})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    status,
		Version:   m.version,
		Uptime:    time.Since(m.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	})
}

var globalHealthManager *HealthManager

// InitHealthManager sets the manager behind the package-level handlers.
func InitHealthManager(version string) *HealthManager {
	globalHealthManager = NewHealthManager(version)
	return globalHealthManager
}

// GetHealthManager returns the package-level manager, or nil.
func GetHealthManager() *HealthManager {
	return globalHealthManager
}

func withGlobal(fn func(*HealthManager, http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m := globalHealthManager
		if m == nil {
			apperrors.WriteError(w, r, http.StatusServiceUnavailable, apperrors.CodeServiceUnavailable,
				"health manager not initialized", nil)
			return
		}
		fn(m, w, r)
	}
}

// HealthHandler serves /health from the package-level manager.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	withGlobal((*HealthManager).HealthHandler)(w, r)
}

// LivenessHandler serves /health/live from the package-level manager.
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	withGlobal((*HealthManager).LivenessHandler)(w, r)
}

// ReadinessHandler serves /health/ready from the package-level manager.
func ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	withGlobal((*HealthManager).ReadinessHandler)(w, r)
}

// StartupHandler serves /health/startup from the package-level manager.
func StartupHandler(w http.ResponseWriter, r *http.Request) {
	withGlobal((*HealthManager).StartupHandler)(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
