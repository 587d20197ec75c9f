package cmd

import (
	"errors"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/hirelane/internal/observability"
	"github.com/3leaps/hirelane/pkg/ordering"
	"github.com/3leaps/hirelane/pkg/pipeline"
)

var transferCmd = &cobra.Command{
	Use:   "transfer <candidates|jobs> <id> <stage>",
	Short: "Move an item to another group",
	Long: `Move an item to the tail of another group. The origin group is
renumbered so it stays contiguous.

With --before or --after the item is then placed next to a member of the
destination group; the tail placement is visible in between.

Jobs only have the global group, so transferring a job is a no-op.

Examples:
  hirelane transfer candidates 5f0c... interview
  hirelane transfer candidates 5f0c... offer --before 9a1b... --events`,
	Args: cobra.ExactArgs(3),
	RunE: runTransfer,
}

var (
	transferBefore string
	transferAfter  string
	transferEvents bool
	transferOutput string
)

func init() {
	rootCmd.AddCommand(transferCmd)

	f := transferCmd.Flags()
	f.StringVar(&transferBefore, "before", "", "Then place before this destination item")
	f.StringVar(&transferAfter, "after", "", "Then place after this destination item")
	f.BoolVar(&transferEvents, "events", false, "Emit coordinator events")
	f.StringVarP(&transferOutput, "output", "o", "", "Write JSONL to file instead of stdout")
}

func runTransfer(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	kind, err := pipeline.ParseKind(args[0])
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid kind", err)
	}
	id := args[1]
	dest, err := pipeline.ValidateGroup(kind, args[2])
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid destination", err)
	}
	if transferBefore != "" && transferAfter != "" {
		return exitError(foundry.ExitInvalidArgument, "Invalid placement", errors.New("--before and --after are mutually exclusive"))
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

	out, err := newRunOutput(transferOutput, sess.source)
	if err != nil {
		return err
	}
	defer out.finish(ctx, "transfer", kind, dest)

	coord := newCoordinator(sess, cfg.Coordinator.Timeout, 0)
	if transferEvents {
		defer coord.Subscribe(out.eventSink(ctx))()
	}

	origin, err := loadGroupOf(ctx, sess, coord, kind, id)
	if err == nil {
		_, err = coord.Load(ctx, kind, dest)
	}
	if err != nil {
		out.fail(ctx, err, id, dest)
		return exitError(exitCodeFor(err), "Transfer failed", err)
	}

	switch {
	case transferBefore != "" || transferAfter != "":
		target, pos := transferBefore, ordering.PositionBefore
		if transferAfter != "" {
			target, pos = transferAfter, ordering.PositionAfter
		}
		_, err = coord.TransferAndPlace(ctx, kind, id, dest, target, pos)
	default:
		_, err = coord.Transfer(ctx, kind, id, dest)
	}
	if err != nil {
		out.fail(ctx, err, id, dest)
		return exitError(exitCodeFor(err), "Transfer failed", err)
	}

	observability.CLILogger.Info("Transferred",
		zap.String("kind", string(kind)),
		zap.String("id", id),
		zap.String("from", origin),
		zap.String("to", dest))

	items, _ := coord.Snapshot(kind, dest)
	return out.emit(ctx, items)
}
