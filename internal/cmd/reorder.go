package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/hirelane/internal/observability"
	"github.com/3leaps/hirelane/pkg/optimistic"
	"github.com/3leaps/hirelane/pkg/ordering"
	"github.com/3leaps/hirelane/pkg/pipeline"
)

var reorderCmd = &cobra.Command{
	Use:   "reorder <candidates|jobs> <id>",
	Short: "Move an item within its group",
	Long: `Move an item before or after another member of its group, or to an
absolute position. The whole group is renumbered contiguously.

The move is applied optimistically, sent to the board, and rolled back if
the board rejects it or does not answer within the coordinator timeout.
With --events the coordinator's snapshot changes are emitted as
hirelane.event.v1 records.

Examples:
  hirelane reorder jobs 5f0c... --after 9a1b...
  hirelane reorder candidates 5f0c... --to 0
  hirelane reorder jobs 5f0c... --before 9a1b... --server http://localhost:8080 --events`,
	Args: cobra.ExactArgs(2),
	RunE: runReorder,
}

var (
	reorderBefore  string
	reorderAfter   string
	reorderTo      int
	reorderEvents  bool
	reorderOutput  string
	reorderTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(reorderCmd)

	f := reorderCmd.Flags()
	f.StringVar(&reorderBefore, "before", "", "Place before this item")
	f.StringVar(&reorderAfter, "after", "", "Place after this item")
	f.IntVar(&reorderTo, "to", -1, "Absolute zero-based position (clamped to the group)")
	f.BoolVar(&reorderEvents, "events", false, "Emit coordinator events")
	f.StringVarP(&reorderOutput, "output", "o", "", "Write JSONL to file instead of stdout")
	f.DurationVar(&reorderTimeout, "timeout", 0, "Board call timeout (default coordinator.timeout)")
}

// moveFromFlags builds a Move from exactly one of --before, --after, --to.
func moveFromFlags(source, before, after string, to int) (pipeline.Move, error) {
	move := pipeline.Move{SourceID: source}
	set := 0
	if before != "" {
		move.DestinationID, move.Position = before, ordering.PositionBefore
		set++
	}
	if after != "" {
		move.DestinationID, move.Position = after, ordering.PositionAfter
		set++
	}
	if to >= 0 {
		pos := to
		move.ToOrder = &pos
		set++
	}
	if set != 1 {
		return pipeline.Move{}, errors.New("exactly one of --before, --after or --to is required")
	}
	return move, nil
}

func runReorder(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	kind, err := pipeline.ParseKind(args[0])
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid kind", err)
	}
	move, err := moveFromFlags(args[1], reorderBefore, reorderAfter, reorderTo)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid move", err)
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

	out, err := newRunOutput(reorderOutput, sess.source)
	if err != nil {
		return err
	}

	coord := newCoordinator(sess, cfg.Coordinator.Timeout, reorderTimeout)
	if reorderEvents {
		defer coord.Subscribe(out.eventSink(ctx))()
	}

	group, err := loadGroupOf(ctx, sess, coord, kind, move.SourceID)
	if err != nil {
		out.fail(ctx, err, move.SourceID, "")
		out.finish(ctx, "reorder", kind, "")
		return exitError(exitCodeFor(err), "Reorder failed", err)
	}

	items, err := coord.Reorder(ctx, kind, move)
	if err != nil {
		out.fail(ctx, err, move.SourceID, group)
		out.finish(ctx, "reorder", kind, group)
		return exitError(exitCodeFor(err), "Reorder failed", err)
	}

	observability.CLILogger.Info("Reordered",
		zap.String("kind", string(kind)),
		zap.String("group", group),
		zap.String("id", move.SourceID),
		zap.Int("members", len(items)))

	defer out.finish(ctx, "reorder", kind, group)
	return out.emit(ctx, items)
}

func newCoordinator(sess *session, configured, override time.Duration) *optimistic.Coordinator {
	timeout := configured
	if override > 0 {
		timeout = override
	}
	return optimistic.New(sess.board,
		optimistic.WithTimeout(timeout),
		optimistic.WithLogger(observability.CLILogger))
}

// loadGroupOf resolves the group holding id and loads it into coord.
func loadGroupOf(ctx context.Context, sess *session, coord *optimistic.Coordinator, kind pipeline.Kind, id string) (string, error) {
	it, err := sess.board.Get(ctx, kind, id)
	if err != nil {
		return "", fmt.Errorf("lookup %s: %w", id, err)
	}
	if _, err := coord.Load(ctx, kind, it.Group); err != nil {
		return "", fmt.Errorf("load group %s: %w", it.Group, err)
	}
	return it.Group, nil
}
