// Package cmd implements the hirelane command line.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/3leaps/hirelane/internal/config"
	"github.com/3leaps/hirelane/internal/observability"
)

// VersionInfo is stamped at build time.
type VersionInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

var versionInfo = VersionInfo{
	Version:   "dev",
	Commit:    "unknown",
	BuildDate: "unknown",
}

var (
	cfgFile     string
	serverURL   string
	verbose     bool
	appIdentity *config.AppIdentity
)

var rootCmd = &cobra.Command{
	Use:   "hirelane",
	Short: "Recruiting pipeline board with stable per-group ordering",
	Long: `hirelane keeps candidates ordered within their pipeline stage and jobs
ordered in one global list. Reorders and stage transfers renumber the
affected groups so every group stays contiguous from zero.

Commands work against a local board database by default, or against a
running 'hirelane serve' instance with --server.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default: user config dir)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	pf.String("store", "", "Board database path (overrides store.path)")
	pf.String("log-level", "", "Server log level (debug, info, warn, error)")
	pf.StringVar(&serverURL, "server", "", "Base URL of a running hirelane API (default: local store)")

	_ = viper.BindPFlag("store.path", pf.Lookup("store"))
	_ = viper.BindPFlag("logging.level", pf.Lookup("log-level"))

	setDefaults()
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		code := 1
		var ce *cliError
		if errors.As(err, &ce) {
			code = ce.code
		}
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err.Error())
		os.Exit(code)
	}
}

// SetVersionInfo records build metadata for version output.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// GetAppIdentity returns the identity resolved by initConfig, or nil.
func GetAppIdentity() *config.AppIdentity {
	return appIdentity
}

func setDefaults() {
	config.SetDefaults(viper.GetViper())
}

// initConfig loads configuration with flag values layered on top.
func initConfig(cmd *cobra.Command, _ []string) error {
	observability.InitCLILogger("hirelane", verbose)

	config.SetConfigFile(cfgFile)
	cfg, err := config.Load(cmd.Context(), flagOverrides(cmd))
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	appIdentity = config.Identity()

	observability.CLILogger.Debug("Configuration loaded",
		zap.String("store", storeLabel(cfg.Store)),
		zap.String("log_level", cfg.Logging.Level))
	return nil
}

// flagOverrides collects explicitly set flags as a runtime override layer.
func flagOverrides(cmd *cobra.Command) map[string]any {
	out := map[string]any{}
	set := func(section, key, flag string) {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			return
		}
		node, ok := out[section].(map[string]any)
		if !ok {
			node = map[string]any{}
			out[section] = node
		}
		node[key] = f.Value.String()
	}
	set("store", "path", "store")
	set("logging", "level", "log-level")
	for _, fn := range extraOverrides {
		fn(cmd, out)
	}
	return out
}

// extraOverrides lets subcommands contribute their own flag overrides.
var extraOverrides []func(cmd *cobra.Command, out map[string]any)

func storeLabel(s config.StoreConfig) string {
	if s.URL != "" {
		return s.URL
	}
	return s.Path
}

type cliError struct {
	code int
	msg  string
	err  error
}

func (e *cliError) Error() string {
	return fmt.Sprintf("%s: %v (exit code %d)", e.msg, e.err, e.code)
}

func (e *cliError) Unwrap() error { return e.err }

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	if err == nil {
		err = errors.New("failed")
	}
	return &cliError{code: code, msg: message, err: err}
}

// ExitWithCode logs msg and err and terminates the process.
func ExitWithCode(logger *zap.Logger, code int, msg string, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Error(msg, zap.Error(err), zap.Int("exit_code", code))
	_ = logger.Sync()
	os.Exit(code)
}
