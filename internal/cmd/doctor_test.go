package cmd

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/hirelane/internal/config"
	"github.com/3leaps/hirelane/internal/observability"
	"github.com/3leaps/hirelane/pkg/boardstore"
	"github.com/3leaps/hirelane/pkg/pipeline"
)

func TestBrokenGroups(t *testing.T) {
	counts := []boardstore.GroupCount{
		{Kind: pipeline.KindJob, Group: "global", Count: 3, MaxOrder: 2},
		{Kind: pipeline.KindCandidate, Group: "applied", Count: 2, MaxOrder: 5},
		{Kind: pipeline.KindCandidate, Group: "offer", Count: 1, MaxOrder: 0},
	}
	broken := brokenGroups(counts)
	require.Len(t, broken, 1)
	assert.Equal(t, "applied", broken[0].Group)

	assert.Empty(t, brokenGroups(nil))
}

func TestRunStoreChecks(t *testing.T) {
	observability.InitCLILogger("test", false)
	isolateConfig(t)
	ctx := context.Background()

	dbPath := filepath.Join(t.TempDir(), "board.db")
	_, err := config.Load(ctx, map[string]any{"store": map[string]any{"path": dbPath}})
	require.NoError(t, err)

	store, err := boardstore.Open(ctx, boardstore.Config{Path: dbPath})
	require.NoError(t, err)
	svc := pipeline.NewService(store)
	for _, title := range []string{"A", "B"} {
		_, err := svc.CreateJob(ctx, pipeline.NewJob{Title: title})
		require.NoError(t, err)
	}
	require.NoError(t, store.Close())

	assert.True(t, runStoreChecks(ctx, 6, 7))
}

func TestPrintStoreHelp(t *testing.T) {
	observability.InitCLILogger("test", false)
	assert.NotPanics(t, printStoreHelp)
}
