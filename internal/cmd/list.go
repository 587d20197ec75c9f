package cmd

import (
	"fmt"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/hirelane/internal/observability"
	"github.com/3leaps/hirelane/pkg/boardclient"
	"github.com/3leaps/hirelane/pkg/match"
	"github.com/3leaps/hirelane/pkg/pipeline"
)

var listCmd = &cobra.Command{
	Use:   "list <candidates|jobs> [group]",
	Short: "List an ordered group",
	Long: `List the members of one group in board order.

Candidates are grouped by stage (applied, screening, interview, offer,
hired, rejected). Jobs have a single group, "global", which is the default.

Output is JSONL: one hirelane.item.v1 record per member followed by a
hirelane.summary.v1 record. Use --table for a human-readable view.

Match patterns apply to job slugs and candidate emails and accept
doublestar globs.

Examples:
  hirelane list jobs
  hirelane list candidates applied --match '*@acme.io'
  hirelane list candidates interview --tag go --applied-after 2024-01-01
  hirelane list jobs --status open --table
  hirelane list candidates offer --search ada`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runList,
}

var (
	listMatch         []string
	listExclude       []string
	listTags          []string
	listStatus        []string
	listName          string
	listSearch        string
	listAppliedAfter  string
	listAppliedBefore string
	listCreatedAfter  string
	listCreatedBefore string
	listTable         bool
	listOutput        string
)

func init() {
	rootCmd.AddCommand(listCmd)

	f := listCmd.Flags()
	f.StringSliceVar(&listMatch, "match", nil, "Include pattern (repeatable)")
	f.StringSliceVar(&listExclude, "exclude", nil, "Exclude pattern (repeatable)")
	f.StringSliceVar(&listTags, "tag", nil, "Require tag (repeatable, all must match)")
	f.StringSliceVar(&listStatus, "status", nil, "Job status (open, closed, archived)")
	f.StringVar(&listName, "name", "", "Regular expression on name or title")
	f.StringVarP(&listSearch, "search", "q", "", "Case-insensitive text in name, email, title or slug")
	f.StringVar(&listAppliedAfter, "applied-after", "", "Applied on or after date")
	f.StringVar(&listAppliedBefore, "applied-before", "", "Applied before date")
	f.StringVar(&listCreatedAfter, "created-after", "", "Created on or after date")
	f.StringVar(&listCreatedBefore, "created-before", "", "Created before date")
	f.BoolVar(&listTable, "table", false, "Print a table instead of JSONL")
	f.StringVarP(&listOutput, "output", "o", "", "Write JSONL to file instead of stdout")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	kind, group, err := kindAndGroup(args)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid arguments", err)
	}

	m, f, err := listSelection()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid filters", err)
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

	var items []pipeline.Item
	if c, ok := sess.board.(*boardclient.Client); ok {
		items, err = c.ListGroupFiltered(ctx, kind, group, selectionQuery())
	} else if items, err = sess.board.ListGroup(ctx, kind, group); err == nil {
		items = match.Select(items, m, f)
	}
	if err != nil {
		return exitError(exitCodeFor(err), "List failed", err)
	}

	observability.CLILogger.Debug("Listed group",
		zap.String("kind", string(kind)),
		zap.String("group", group),
		zap.Int("items", len(items)),
		zap.String("filters", f.String()))

	if listTable {
		return printItemTable(items)
	}

	out, err := newRunOutput(listOutput, sess.source)
	if err != nil {
		return err
	}
	defer out.finish(ctx, "list", kind, group)
	return out.emit(ctx, items)
}

// kindAndGroup parses "<kind> [group]"; jobs default to the global group.
func kindAndGroup(args []string) (pipeline.Kind, string, error) {
	kind, err := pipeline.ParseKind(args[0])
	if err != nil {
		return "", "", err
	}
	raw := ""
	if len(args) > 1 {
		raw = args[1]
	}
	if kind == pipeline.KindCandidate && raw == "" {
		return "", "", fmt.Errorf("candidates need a stage")
	}
	group, err := pipeline.ValidateGroup(kind, raw)
	if err != nil {
		return "", "", err
	}
	return kind, group, nil
}

func listSelection() (*match.Matcher, *match.CompositeFilter, error) {
	var m *match.Matcher
	mcfg := match.Config{Includes: listMatch, Excludes: listExclude}
	if !mcfg.Empty() {
		var err error
		if m, err = match.New(mcfg); err != nil {
			return nil, nil, err
		}
	}

	fcfg := &match.FilterConfig{Tags: listTags, Status: listStatus, NameRegex: listName, Search: listSearch}
	if listAppliedAfter != "" || listAppliedBefore != "" {
		fcfg.Applied = &match.DateFilterConfig{After: listAppliedAfter, Before: listAppliedBefore}
	}
	if listCreatedAfter != "" || listCreatedBefore != "" {
		fcfg.Created = &match.DateFilterConfig{After: listCreatedAfter, Before: listCreatedBefore}
	}
	f, err := match.NewFilterFromConfig(fcfg)
	if err != nil {
		return nil, nil, err
	}
	return m, f, nil
}

// selectionQuery renders the list flags as API query parameters.
func selectionQuery() url.Values {
	q := url.Values{}
	for _, v := range listMatch {
		q.Add("match", v)
	}
	for _, v := range listExclude {
		q.Add("exclude", v)
	}
	for _, v := range listTags {
		q.Add("tag", v)
	}
	for _, v := range listStatus {
		q.Add("status", v)
	}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("name", listName)
	set("q", listSearch)
	set("applied_after", listAppliedAfter)
	set("applied_before", listAppliedBefore)
	set("created_after", listCreatedAfter)
	set("created_before", listCreatedBefore)
	return q
}

func printItemTable(items []pipeline.Item) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ORDER\tID\tGROUP\tNAME\tKEY\tUPDATED")
	for _, it := range items {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			it.Order, it.ID, it.Group, it.Label(), match.Key(it), it.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
