package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/hirelane/internal/observability"
)

var renumberCmd = &cobra.Command{
	Use:   "renumber <candidates|jobs> [group]",
	Short: "Rewrite a group's order as 0..n-1",
	Long: `Rewrite every member's order to its index in the current sort
(order, then creation time, then id). Use after external writes left gaps
or duplicates; 'hirelane doctor' reports groups that need it.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRenumber,
}

var renumberOutput string

func init() {
	rootCmd.AddCommand(renumberCmd)
	renumberCmd.Flags().StringVarP(&renumberOutput, "output", "o", "", "Write JSONL to file instead of stdout")
}

func runRenumber(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	kind, group, err := kindAndGroup(args)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid arguments", err)
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

	items, err := sess.board.RenumberGroup(ctx, kind, group)
	if err != nil {
		return exitError(exitCodeFor(err), "Renumber failed", err)
	}
	observability.CLILogger.Info("Renumbered",
		zap.String("kind", string(kind)),
		zap.String("group", group),
		zap.Int("members", len(items)))

	out, err := newRunOutput(renumberOutput, sess.source)
	if err != nil {
		return err
	}
	defer out.finish(ctx, "renumber", kind, group)
	return out.emit(ctx, items)
}
