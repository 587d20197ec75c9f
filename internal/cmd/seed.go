package cmd

import (
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/hirelane/internal/observability"
	"github.com/3leaps/hirelane/pkg/manifest"
	"github.com/3leaps/hirelane/pkg/pipeline"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Populate the board from a seed manifest",
	Long: `Create jobs and candidates listed or generated by a seed manifest.

Without --manifest a built-in manifest generates 1000 candidates spread
across the stages and 10 jobs. Generation is deterministic for a given
seed. Jobs are created first, then candidates, each at the tail of its
group.

Example manifest:
  version: "1.0"
  jobs:
    - title: Backend Lead
      tags: [remote]
  candidates:
    - name: Ada Lovelace
      email: ada@acme.io
      stage: screening
  generate:
    candidates: 200
    seed: 7

Examples:
  hirelane seed
  hirelane seed --manifest seed.yaml --skip-existing
  hirelane seed --candidates 50 --jobs 3 --dry-run
  hirelane seed --server http://localhost:8080`,
	Args: cobra.NoArgs,
	RunE: runSeed,
}

var (
	seedManifestPath string
	seedCandidates   int
	seedJobs         int
	seedSeed         uint64
	seedSkipExisting bool
	seedDryRun       bool
)

func init() {
	rootCmd.AddCommand(seedCmd)

	f := seedCmd.Flags()
	f.StringVarP(&seedManifestPath, "manifest", "m", "", "Path to seed manifest (YAML or JSON)")
	f.IntVar(&seedCandidates, "candidates", -1, "Override generated candidate count")
	f.IntVar(&seedJobs, "jobs", -1, "Override generated job count")
	f.Uint64Var(&seedSeed, "seed", 0, "Override generator seed")
	f.BoolVar(&seedSkipExisting, "skip-existing", false, "Skip jobs whose slug already exists")
	f.BoolVar(&seedDryRun, "dry-run", false, "Validate and show the plan without writing")
}

func runSeed(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	m := manifest.Default()
	if seedManifestPath != "" {
		loaded, err := manifest.Load(seedManifestPath)
		if err != nil {
			observability.CLILogger.Error("Failed to load manifest",
				zap.String("path", seedManifestPath),
				zap.Error(err))
			return exitError(foundry.ExitInvalidArgument, "Invalid manifest", err)
		}
		m = loaded
	}
	applySeedOverrides(m)

	plan, err := m.Plan(time.Now().UTC())
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid manifest", err)
	}

	if seedDryRun {
		printSeedPlan(plan)
		return nil
	}

	cfg, err := loadedConfig()
	if err != nil {
		return err
	}
	sess, err := openSession(ctx, cfg, observability.CLILogger)
	if err != nil {
		return err
	}
	defer sess.close()

	start := time.Now()
	res, err := manifest.Apply(ctx, sess.board, plan, manifest.ApplyOptions{
		SkipExisting: seedSkipExisting,
		Logger:       observability.CLILogger,
	})
	fields := []zap.Field{
		zap.Int("jobs", res.Jobs),
		zap.Int("candidates", res.Candidates),
		zap.Int("skipped", res.Skipped),
		zap.Duration("took", time.Since(start).Round(time.Millisecond)),
	}
	if err != nil {
		observability.CLILogger.Error("Seed stopped", append(fields, zap.Error(err))...)
		if ctx.Err() != nil {
			return exitError(foundry.ExitSignalInt, "Seed cancelled", err)
		}
		return exitError(exitCodeFor(err), "Seed failed", err)
	}
	observability.CLILogger.Info("Seed complete", fields...)
	return nil
}

func applySeedOverrides(m *manifest.Manifest) {
	if seedCandidates < 0 && seedJobs < 0 && seedSeed == 0 {
		return
	}
	if m.Generate == nil {
		m.Generate = &manifest.GenerateConfig{}
	}
	if seedCandidates >= 0 {
		m.Generate.Candidates = seedCandidates
	}
	if seedJobs >= 0 {
		m.Generate.Jobs = seedJobs
	}
	if seedSeed != 0 {
		m.Generate.Seed = seedSeed
	}
}

func printSeedPlan(p manifest.Plan) {
	perStage := map[string]int{}
	for _, c := range p.Candidates {
		st := pipeline.StageApplied
		if c.Stage != "" {
			parsed, err := pipeline.ParseStage(c.Stage)
			if err != nil {
				continue
			}
			st = parsed
		}
		perStage[string(st)]++
	}
	fmt.Println("=== Seed Plan (dry-run) ===")
	fmt.Println()
	fmt.Printf("Jobs:        %d\n", len(p.Jobs))
	fmt.Printf("Candidates:  %d\n", len(p.Candidates))
	for _, st := range pipeline.Stages {
		fmt.Printf("  %-11s %d\n", string(st)+":", perStage[string(st)])
	}
}
