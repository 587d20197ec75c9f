// Package config loads hirelane configuration.
//
// Values are layered with precedence runtime overrides > environment
// (HIRELANE_*) > config file > defaults.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config is the decoded application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Health      HealthConfig      `mapstructure:"health"`
	Debug       DebugConfig       `mapstructure:"debug"`
	Workers     int               `mapstructure:"workers"`
	Store       StoreConfig       `mapstructure:"store"`
	Faults      FaultsConfig      `mapstructure:"faults"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	API         APIConfig         `mapstructure:"api"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type DebugConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}

// StoreConfig locates the board database. URL wins over Path.
type StoreConfig struct {
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// FaultsConfig injects latency and write failures into the board.
type FaultsConfig struct {
	FailureRate float64       `mapstructure:"failure_rate"`
	MinLatency  time.Duration `mapstructure:"min_latency"`
	MaxLatency  time.Duration `mapstructure:"max_latency"`
	Seed        uint64        `mapstructure:"seed"`
}

type CoordinatorConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// APIConfig throttles mutation endpoints. A RateLimit of 0 disables it.
type APIConfig struct {
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// AppIdentity names the binary, its env prefix and its config directory.
type AppIdentity struct {
	BinaryName string
	EnvPrefix  string
	ConfigName string
}

// DefaultIdentity is the identity Load uses.
var DefaultIdentity = AppIdentity{
	BinaryName: "hirelane",
	EnvPrefix:  "HIRELANE",
	ConfigName: "hirelane",
}

// EnvSpec maps one environment variable to a config path.
type EnvSpec struct {
	Name string
	Path []string
}

var (
	configMu    sync.RWMutex
	appIdentity *AppIdentity
	appConfig   *Config
	configFile  string
)

// SetConfigFile pins the config file Load reads. Empty restores discovery.
func SetConfigFile(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	configFile = path
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("health.enabled", true)

	v.SetDefault("workers", 4)

	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.pprof_enabled", false)

	v.SetDefault("store.path", "")
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	v.SetDefault("faults.failure_rate", 0.0)
	v.SetDefault("faults.min_latency", "0s")
	v.SetDefault("faults.max_latency", "0s")
	v.SetDefault("faults.seed", 0)

	v.SetDefault("coordinator.timeout", "10s")

	v.SetDefault("api.rate_limit", 0.0)
	v.SetDefault("api.rate_burst", 20)
}

// Load builds the configuration and makes it available via GetConfig.
// Later overrides win over earlier ones.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	configMu.Lock()
	defer configMu.Unlock()

	if appIdentity == nil {
		id := DefaultIdentity
		appIdentity = &id
	}

	v := viper.New()
	SetDefaults(v)

	path, err := resolveConfigFile()
	if err != nil {
		return nil, err
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if env := envLayer(); len(env) > 0 {
		if err := v.MergeConfigMap(env); err != nil {
			return nil, fmt.Errorf("merge environment: %w", err)
		}
	}
	for _, o := range overrides {
		if len(o) == 0 {
			continue
		}
		if err := v.MergeConfigMap(o); err != nil {
			return nil, fmt.Errorf("merge overrides: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Store.Path == "" && cfg.Store.URL == "" {
		cfg.Store.Path = filepath.Join(gfconfig.GetAppDataDir(appIdentity.ConfigName), "board.db")
	}
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.Logging.Profile = strings.ToLower(strings.TrimSpace(cfg.Logging.Profile))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	appConfig = &cfg
	return &cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// Identity returns the identity used by the last Load, or nil.
func Identity() *AppIdentity {
	configMu.RLock()
	defer configMu.RUnlock()
	return appIdentity
}

// Validate rejects values the server and board cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		errs = append(errs, fmt.Errorf("metrics.port %d out of range", c.Metrics.Port))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q must be debug, info, warn or error", c.Logging.Level))
	}
	if c.Faults.FailureRate < 0 || c.Faults.FailureRate > 1 {
		errs = append(errs, fmt.Errorf("faults.failure_rate %v must be within [0,1]", c.Faults.FailureRate))
	}
	if c.Faults.MaxLatency > 0 && c.Faults.MaxLatency < c.Faults.MinLatency {
		errs = append(errs, errors.New("faults.max_latency must not be below faults.min_latency"))
	}
	if c.Coordinator.Timeout <= 0 {
		errs = append(errs, errors.New("coordinator.timeout must be positive"))
	}
	if c.API.RateLimit < 0 {
		errs = append(errs, errors.New("api.rate_limit must not be negative"))
	}
	if c.Workers < 1 {
		errs = append(errs, errors.New("workers must be at least 1"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func resolveConfigFile() (string, error) {
	if configFile != "" {
		if _, err := os.Stat(configFile); err != nil {
			return "", fmt.Errorf("config file: %w", err)
		}
		return configFile, nil
	}
	if appIdentity != nil {
		if p := os.Getenv(appIdentity.EnvPrefix + "_CONFIG"); p != "" {
			return p, nil
		}
	}
	for _, p := range getUserConfigPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// getUserConfigPaths lists candidate config files, most specific first.
func getUserConfigPaths() []string {
	if appIdentity == nil {
		return []string{}
	}
	name := appIdentity.ConfigName
	paths := []string{}
	if dir, err := os.UserConfigDir(); err == nil {
		for _, ext := range []string{"yaml", "yml", "json"} {
			paths = append(paths, filepath.Join(dir, name, "config."+ext))
		}
	}
	return paths
}

func getEnvSpecs() []EnvSpec {
	if appIdentity == nil {
		return []EnvSpec{}
	}
	p := appIdentity.EnvPrefix + "_"
	return []EnvSpec{
		{Name: p + "HOST", Path: []string{"server", "host"}},
		{Name: p + "PORT", Path: []string{"server", "port"}},
		{Name: p + "READ_TIMEOUT", Path: []string{"server", "read_timeout"}},
		{Name: p + "WRITE_TIMEOUT", Path: []string{"server", "write_timeout"}},
		{Name: p + "IDLE_TIMEOUT", Path: []string{"server", "idle_timeout"}},
		{Name: p + "SHUTDOWN_TIMEOUT", Path: []string{"server", "shutdown_timeout"}},
		{Name: p + "LOG_LEVEL", Path: []string{"logging", "level"}},
		{Name: p + "LOG_PROFILE", Path: []string{"logging", "profile"}},
		{Name: p + "METRICS_ENABLED", Path: []string{"metrics", "enabled"}},
		{Name: p + "METRICS_PORT", Path: []string{"metrics", "port"}},
		{Name: p + "HEALTH_ENABLED", Path: []string{"health", "enabled"}},
		{Name: p + "WORKERS", Path: []string{"workers"}},
		{Name: p + "DEBUG", Path: []string{"debug", "enabled"}},
		{Name: p + "STORE_PATH", Path: []string{"store", "path"}},
		{Name: p + "STORE_URL", Path: []string{"store", "url"}},
		{Name: p + "STORE_AUTH_TOKEN", Path: []string{"store", "auth_token"}},
		{Name: p + "FAILURE_RATE", Path: []string{"faults", "failure_rate"}},
		{Name: p + "MIN_LATENCY", Path: []string{"faults", "min_latency"}},
		{Name: p + "MAX_LATENCY", Path: []string{"faults", "max_latency"}},
		{Name: p + "COORDINATOR_TIMEOUT", Path: []string{"coordinator", "timeout"}},
		{Name: p + "RATE_LIMIT", Path: []string{"api", "rate_limit"}},
		{Name: p + "RATE_BURST", Path: []string{"api", "rate_burst"}},
	}
}

// envLayer collects set environment variables into a nested map.
func envLayer() map[string]any {
	out := map[string]any{}
	for _, spec := range getEnvSpecs() {
		val, ok := os.LookupEnv(spec.Name)
		if !ok {
			continue
		}
		node := out
		for _, key := range spec.Path[:len(spec.Path)-1] {
			next, ok := node[key].(map[string]any)
			if !ok {
				next = map[string]any{}
				node[key] = next
			}
			node = next
		}
		node[spec.Path[len(spec.Path)-1]] = val
	}
	return out
}
