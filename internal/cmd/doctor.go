package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	errwrap "github.com/3leaps/hirelane/internal/errors"
	"github.com/3leaps/hirelane/internal/observability"
	"github.com/3leaps/hirelane/pkg/boardstore"
)

var doctorStore bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the system and suggest fixes for common issues.

Examples:
  hirelane doctor          # Environment check
  hirelane doctor --store  # Also open the board and check group contiguity`,
	Run: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorStore, "store", false, "Open the board store and verify every group is contiguous")
}

func runDoctor(cmd *cobra.Command, args []string) {
	identity := GetAppIdentity()
	bannerName := "doctor"
	if identity != nil && identity.BinaryName != "" {
		bannerName = identity.BinaryName + " doctor"
	}
	observability.CLILogger.Info("=== " + bannerName + " ===")
	observability.CLILogger.Info("")
	observability.CLILogger.Info("Running diagnostic checks...")
	observability.CLILogger.Info("")

	allChecks := true
	checkNum := 1
	totalChecks := 5
	if doctorStore {
		totalChecks = 7
	}

	// Check 1: Go version
	goVersion := runtime.Version()
	if goVersion >= "go1.23" {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking Go version... ✅ %s", checkNum, totalChecks, goVersion),
			zap.String("go_version", goVersion))
	} else {
		observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking Go version... ⚠️  %s (recommended: go1.23+)", checkNum, totalChecks, goVersion),
			zap.String("go_version", goVersion))
		allChecks = false
	}
	checkNum++

	// Check 2: Crucible access
	version := crucible.GetVersion()
	if version.Crucible != "" {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking Crucible access... ✅ v%s", checkNum, totalChecks, version.Crucible),
			zap.String("crucible_version", version.Crucible))
	} else {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking Crucible access... ❌ Cannot access Crucible", checkNum, totalChecks))
		ExitWithCode(observability.CLILogger, foundry.ExitExternalServiceUnavailable, "Cannot access Crucible",
			errwrap.NewExternalServiceError("Crucible service unavailable"))
		allChecks = false
	}
	checkNum++

	// Check 3: Gofulmen access
	if version.Gofulmen != "" {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking Gofulmen access... ✅ v%s", checkNum, totalChecks, version.Gofulmen),
			zap.String("gofulmen_version", version.Gofulmen))
	} else {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking Gofulmen access... ❌ Cannot access Gofulmen", checkNum, totalChecks))
		allChecks = false
	}
	checkNum++

	// Check 4: Config directory
	configDir, err := os.UserConfigDir()
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking config directory... ❌ Cannot find config directory", checkNum, totalChecks),
			zap.Error(err))
		ExitWithCode(observability.CLILogger, foundry.ExitFileNotFound, "Cannot find config directory",
			errwrap.WrapInternal(cmd.Context(), err, "Cannot find config directory"))
		allChecks = false
	} else {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking config directory... ✅ %s", checkNum, totalChecks, configDir),
			zap.String("config_dir", configDir))
	}
	checkNum++

	// Check 5: Environment
	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking environment... ✅ %s/%s", checkNum, totalChecks, runtime.GOOS, runtime.GOARCH),
		zap.String("os", runtime.GOOS),
		zap.String("arch", runtime.GOARCH))
	checkNum++

	if doctorStore {
		allChecks = runStoreChecks(cmd.Context(), checkNum, totalChecks) && allChecks
	}

	observability.CLILogger.Info("")
	if allChecks {
		observability.CLILogger.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", bannerName))
	} else {
		observability.CLILogger.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	observability.CLILogger.Info("")
	observability.CLILogger.Info("=== End Diagnostics ===")
}

// runStoreChecks opens the board and reports groups whose order has gaps.
func runStoreChecks(ctx context.Context, checkNum, totalChecks int) bool {
	observability.CLILogger.Info("")
	observability.CLILogger.Info("Board Store Checks:")

	cfg, err := loadedConfig()
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Opening board store... ❌ No configuration", checkNum, totalChecks), zap.Error(err))
		return false
	}
	store, err := boardstore.Open(ctx, boardstore.Config{
		Path:      cfg.Store.Path,
		URL:       cfg.Store.URL,
		AuthToken: cfg.Store.AuthToken,
	})
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Opening board store... ❌ %s", checkNum, totalChecks, storeLabel(cfg.Store)),
			zap.Error(err))
		printStoreHelp()
		return false
	}
	defer func() { _ = store.Close() }()

	schema, _ := boardstore.CurrentSchemaVersion(ctx, store.DB())
	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Opening board store... ✅ %s", checkNum, totalChecks, storeLabel(cfg.Store)),
		zap.Int("schema_version", schema))
	checkNum++

	counts, err := store.CountGroups(ctx)
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking group order... ❌ Cannot read groups", checkNum, totalChecks),
			zap.Error(err))
		return false
	}
	broken := brokenGroups(counts)
	if len(broken) == 0 {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking group order... ✅ %d groups contiguous", checkNum, totalChecks, len(counts)))
		return true
	}
	observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking group order... ⚠️  %d groups have gaps", checkNum, totalChecks, len(broken)))
	for _, c := range broken {
		observability.CLILogger.Warn(fmt.Sprintf("  %s/%s: %d items, max order %d", c.Kind, c.Group, c.Count, c.MaxOrder))
		observability.CLILogger.Info(fmt.Sprintf("  fix: %s renumber %s %s", bannerBinary(), c.Kind.Plural(), c.Group))
	}
	return false
}

func brokenGroups(counts []boardstore.GroupCount) []boardstore.GroupCount {
	var out []boardstore.GroupCount
	for _, c := range counts {
		if !c.Contiguous() {
			out = append(out, c)
		}
	}
	return out
}

func bannerBinary() string {
	if id := GetAppIdentity(); id != nil && id.BinaryName != "" {
		return id.BinaryName
	}
	return "hirelane"
}

// printStoreHelp prints help for locating the board database.
func printStoreHelp() {
	observability.CLILogger.Info("")
	observability.CLILogger.Info("To configure the board store:")
	observability.CLILogger.Info("  1. Pass --store <path> for a local database, or")
	observability.CLILogger.Info("  2. Set HIRELANE_STORE_PATH, or HIRELANE_STORE_URL with HIRELANE_STORE_AUTH_TOKEN for libsql")
	observability.CLILogger.Info("")
}
