package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/hirelane/internal/config"
	"github.com/3leaps/hirelane/pkg/output"
)

// resetFlags restores every flag under c to its default so commands can
// run repeatedly in one process.
func resetFlags(c *cobra.Command) {
	reset := func(fs *pflag.FlagSet) {
		fs.VisitAll(func(f *pflag.Flag) {
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				_ = sv.Replace(nil)
			} else {
				_ = f.Value.Set(f.DefValue)
			}
			f.Changed = false
		})
	}
	reset(c.Flags())
	reset(c.PersistentFlags())
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// isolateConfig hides user config files and HIRELANE_* variables.
func isolateConfig(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HIRELANE_CONFIG", "")
	config.SetConfigFile("")
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	resetFlags(rootCmd)
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(context.Background())
}

type records struct {
	items   []output.ItemRecord
	events  []output.EventRecord
	errors  []output.ErrorRecord
	summary *output.SummaryRecord
}

func readRecords(t *testing.T, path string) records {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	var out records
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec output.Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		switch rec.Type {
		case output.TypeItem:
			var it output.ItemRecord
			require.NoError(t, json.Unmarshal(rec.Data, &it))
			out.items = append(out.items, it)
		case output.TypeEvent:
			var ev output.EventRecord
			require.NoError(t, json.Unmarshal(rec.Data, &ev))
			out.events = append(out.events, ev)
		case output.TypeError:
			var e output.ErrorRecord
			require.NoError(t, json.Unmarshal(rec.Data, &e))
			out.errors = append(out.errors, e)
		case output.TypeSummary:
			var s output.SummaryRecord
			require.NoError(t, json.Unmarshal(rec.Data, &s))
			out.summary = &s
		}
	}
	require.NoError(t, sc.Err())
	return out
}

func idsOf(items []output.ItemRecord) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

func ordersOf(items []output.ItemRecord) []int {
	orders := make([]int, len(items))
	for i, it := range items {
		orders[i] = it.Order
	}
	return orders
}

const cliManifest = `version: "1.0"
jobs:
  - title: Backend Lead
  - title: Ops Engineer
  - title: Data Analyst
  - title: Designer
candidates:
  - name: Ada
    email: ada@acme.io
  - name: Bo
    email: bo@acme.io
    tags: [go]
  - name: Cy
    email: cy@other.io
  - name: Di
    email: di@acme.io
    stage: interview
`

func TestCLI_BoardWorkflow(t *testing.T) {
	isolateConfig(t)
	dir := t.TempDir()
	db := filepath.Join(dir, "board.db")
	manifestPath := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(manifestPath, []byte(cliManifest), 0o600))
	out := func(name string) string { return filepath.Join(dir, name+".jsonl") }

	require.NoError(t, execute(t, "--store", db, "seed", "--manifest", manifestPath))

	require.NoError(t, execute(t, "--store", db, "list", "jobs", "-o", out("jobs")))
	jobs := readRecords(t, out("jobs"))
	require.Len(t, jobs.items, 4)
	assert.Equal(t, []int{0, 1, 2, 3}, ordersOf(jobs.items))
	require.NotNil(t, jobs.summary)
	assert.Equal(t, "list", jobs.summary.Operation)
	assert.EqualValues(t, 4, jobs.summary.Items)
	ids := idsOf(jobs.items)

	t.Run("reorder", func(t *testing.T) {
		require.NoError(t, execute(t, "--store", db, "reorder", "jobs", ids[0], "--after", ids[3], "--events", "-o", out("reorder")))
		res := readRecords(t, out("reorder"))
		assert.Equal(t, []string{ids[1], ids[2], ids[3], ids[0]}, idsOf(res.items))
		assert.Equal(t, []int{0, 1, 2, 3}, ordersOf(res.items))
		var applied []output.EventRecord
		for _, ev := range res.events {
			if ev.Event == "applied" {
				applied = append(applied, ev)
			}
		}
		require.Len(t, applied, 1)
		assert.Equal(t, "global", applied[0].Group)
		assert.Equal(t, []string{ids[1], ids[2], ids[3], ids[0]}, applied[0].IDs)

		require.NoError(t, execute(t, "--store", db, "reorder", "jobs", ids[0], "--to", "0", "-o", out("reorder2")))
		res = readRecords(t, out("reorder2"))
		assert.Equal(t, ids, idsOf(res.items))
	})

	t.Run("filtered list", func(t *testing.T) {
		require.NoError(t, execute(t, "--store", db, "list", "candidates", "applied", "--match", "*@acme.io", "-o", out("acme")))
		res := readRecords(t, out("acme"))
		var emails []string
		for _, it := range res.items {
			emails = append(emails, it.Email)
		}
		assert.Equal(t, []string{"ada@acme.io", "bo@acme.io"}, emails)

		require.NoError(t, execute(t, "--store", db, "list", "candidates", "applied", "--tag", "go", "-o", out("tagged")))
		assert.Len(t, readRecords(t, out("tagged")).items, 1)
	})

	t.Run("transfer", func(t *testing.T) {
		require.NoError(t, execute(t, "--store", db, "list", "candidates", "applied", "-o", out("applied")))
		applied := readRecords(t, out("applied")).items
		require.Len(t, applied, 3)

		require.NoError(t, execute(t, "--store", db, "transfer", "candidates", applied[0].ID, "interview", "-o", out("transfer")))
		res := readRecords(t, out("transfer"))
		require.Len(t, res.items, 2)
		assert.Equal(t, applied[0].ID, res.items[1].ID)
		assert.Equal(t, 1, res.items[1].Order)
		assert.Equal(t, "interview", res.items[1].Group)

		require.NoError(t, execute(t, "--store", db, "list", "candidates", "applied", "-o", out("applied2")))
		rest := readRecords(t, out("applied2")).items
		assert.Equal(t, []string{applied[1].ID, applied[2].ID}, idsOf(rest))
		assert.Equal(t, []int{0, 1}, ordersOf(rest))
	})

	t.Run("renumber", func(t *testing.T) {
		require.NoError(t, execute(t, "--store", db, "renumber", "jobs", "-o", out("renumber")))
		res := readRecords(t, out("renumber"))
		assert.Equal(t, []int{0, 1, 2, 3}, ordersOf(res.items))
	})

	t.Run("errors", func(t *testing.T) {
		err := execute(t, "--store", db, "reorder", "jobs", "missing", "--to", "0", "-o", out("missing"))
		require.Error(t, err)
		var ce *cliError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, foundry.ExitInvalidArgument, ce.code)
		res := readRecords(t, out("missing"))
		require.Len(t, res.errors, 1)
		assert.Equal(t, output.ErrCodeNotFound, res.errors[0].Code)

		err = execute(t, "--store", db, "reorder", "jobs", ids[0], "--to", "1", "--after", ids[1])
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exactly one")

		err = execute(t, "--store", db, "list", "candidates")
		require.Error(t, err)

		err = execute(t, "--store", db, "transfer", "candidates", ids[0], "limbo")
		require.Error(t, err)
	})
}

func TestCLI_SeedDryRunWritesNothing(t *testing.T) {
	isolateConfig(t)
	db := filepath.Join(t.TempDir(), "board.db")

	require.NoError(t, execute(t, "--store", db, "seed", "--candidates", "5", "--jobs", "2", "--dry-run"))
	_, err := os.Stat(db)
	assert.True(t, os.IsNotExist(err))
}

func TestCLI_InvalidConfig(t *testing.T) {
	isolateConfig(t)
	t.Setenv("HIRELANE_FAILURE_RATE", "3")

	err := execute(t, "version")
	require.Error(t, err)
	var ce *cliError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, foundry.ExitInvalidArgument, ce.code)
}

func TestCLI_UpdateAndSearch(t *testing.T) {
	isolateConfig(t)
	dir := t.TempDir()
	db := filepath.Join(dir, "board.db")
	manifestPath := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(manifestPath, []byte(cliManifest), 0o600))
	out := func(name string) string { return filepath.Join(dir, name+".jsonl") }

	require.NoError(t, execute(t, "--store", db, "seed", "--manifest", manifestPath))
	require.NoError(t, execute(t, "--store", db, "list", "jobs", "-o", out("jobs")))
	jobs := readRecords(t, out("jobs")).items
	require.Len(t, jobs, 4)

	require.NoError(t, execute(t, "--store", db, "update", "jobs", jobs[1].ID, "--title", "Site Reliability", "--status", "closed", "-o", out("job")))
	res := readRecords(t, out("job"))
	require.Len(t, res.items, 1)
	assert.Equal(t, "site-reliability", res.items[0].Slug)
	assert.Equal(t, "closed", res.items[0].Status)
	assert.Equal(t, 1, res.items[0].Order)
	require.NotNil(t, res.summary)
	assert.Equal(t, "update", res.summary.Operation)

	err := execute(t, "--store", db, "update", "jobs", jobs[2].ID, "--title", "backend lead")
	require.Error(t, err)
	var ce *cliError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, foundry.ExitInvalidArgument, ce.code)

	err = execute(t, "--store", db, "update", "candidates", jobs[0].ID, "--title", "Nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--name")

	require.NoError(t, execute(t, "--store", db, "list", "candidates", "applied", "--search", "ACME", "-o", out("acme")))
	acme := readRecords(t, out("acme")).items
	require.Len(t, acme, 2)
	assert.Equal(t, "Ada", acme[0].Label)

	require.NoError(t, execute(t, "--store", db, "update", "candidates", acme[0].ID, "--name", "Ada King", "--stage", "interview", "-o", out("ada")))
	res = readRecords(t, out("ada"))
	require.Len(t, res.items, 1)
	assert.Equal(t, "Ada King", res.items[0].Label)
	assert.Equal(t, "interview", res.items[0].Group)
	assert.Equal(t, 1, res.items[0].Order, "tail of interview after Di")
}
