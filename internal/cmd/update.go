package cmd

import (
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/hirelane/internal/observability"
	"github.com/3leaps/hirelane/pkg/pipeline"
)

var updateCmd = &cobra.Command{
	Use:   "update <candidates|jobs> <id>",
	Short: "Edit a candidate or job",
	Long: `Edit the details of one item. Only flags that are given change.

A new job title regenerates the slug; the update fails if another job
already holds it. A candidate --stage different from the current one
moves the candidate to the tail of that stage. --tag replaces the whole
tag set; pass --tag "" to clear it.

Examples:
  hirelane update jobs 3f2a --title "Staff SRE" --status open
  hirelane update candidates 91bc --name "Ada King" --tag go --tag remote
  hirelane update candidates 91bc --stage interview`,
	Args: cobra.ExactArgs(2),
	RunE: runUpdate,
}

var (
	updateName   string
	updateTitle  string
	updateStatus string
	updateStage  string
	updateTags   []string
	updateOutput string
)

func init() {
	rootCmd.AddCommand(updateCmd)

	f := updateCmd.Flags()
	f.StringVar(&updateName, "name", "", "Candidate name")
	f.StringVar(&updateTitle, "title", "", "Job title")
	f.StringVar(&updateStatus, "status", "", "Job status: open, closed or archived")
	f.StringVar(&updateStage, "stage", "", "Candidate stage")
	f.StringSliceVar(&updateTags, "tag", nil, "Tag (repeatable, replaces existing tags)")
	f.StringVarP(&updateOutput, "output", "o", "", "Write JSONL to file instead of stdout")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	kind, err := pipeline.ParseKind(args[0])
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid arguments", err)
	}
	id := args[1]

	changed := func(name string) bool { return cmd.Flags().Changed(name) }
	var tags *[]string
	if changed("tag") {
		tags = &updateTags
	}

	var apply func(board) (pipeline.Item, error)
	switch kind {
	case pipeline.KindJob:
		if changed("name") || changed("stage") {
			return exitError(foundry.ExitInvalidArgument, "Invalid flags", fmt.Errorf("jobs take --title, --status and --tag"))
		}
		p := pipeline.JobPatch{Tags: tags}
		if changed("title") {
			p.Title = &updateTitle
		}
		if changed("status") {
			p.Status = &updateStatus
		}
		apply = func(b board) (pipeline.Item, error) { return b.UpdateJob(ctx, id, p) }
	default:
		if changed("title") || changed("status") {
			return exitError(foundry.ExitInvalidArgument, "Invalid flags", fmt.Errorf("candidates take --name, --stage and --tag"))
		}
		p := pipeline.CandidatePatch{Tags: tags}
		if changed("name") {
			p.Name = &updateName
		}
		if changed("stage") {
			p.Stage = &updateStage
		}
		apply = func(b board) (pipeline.Item, error) { return b.UpdateCandidate(ctx, id, p) }
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
	it, err := apply(sess.board)
	if err != nil {
		return exitError(exitCodeFor(err), "Update failed", err)
	}
	observability.CLILogger.Info("Updated",
		zap.String("kind", string(kind)),
		zap.String("id", it.ID),
		zap.String("group", it.Group),
		zap.Duration("took", time.Since(start)))

	out, err := newRunOutput(updateOutput, sess.source)
	if err != nil {
		return err
	}
	defer out.finish(ctx, "update", kind, it.Group)
	return out.emit(ctx, []pipeline.Item{it})
}
