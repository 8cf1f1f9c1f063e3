package metaindex

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sl4m3/agentmem/internal/types"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func activeDecisionRow(id, target string) Row {
	return Row{ID: id, Target: target, Status: types.StatusActive, Kind: types.KindDecision, Timestamp: "2026-01-01T00:00:00Z"}
}

func TestUpsertInsertsAndUpdates(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, activeDecisionRow("dec-1", "db-engine"), true))

	row, ok, err := idx.Get(ctx, "dec-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "db-engine", row.Target)

	updated := activeDecisionRow("dec-1", "db-engine")
	updated.Status = types.StatusSuperseded
	updated.SupersededBy = "dec-2"
	require.NoError(t, idx.Upsert(ctx, updated, true))

	row, ok, err = idx.Get(ctx, "dec-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.StatusSuperseded, row.Status)
	require.Equal(t, "dec-2", row.SupersededBy)
}

func TestUpsertRejectsSecondActiveDecisionForSameTarget(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, activeDecisionRow("dec-1", "db-engine"), true))

	err := idx.Upsert(ctx, activeDecisionRow("dec-2", "db-engine"), true)
	require.Error(t, err)
	var conflictErr *types.ConflictError
	require.ErrorAs(t, err, &conflictErr)
	require.Equal(t, "db-engine", conflictErr.Target)
	require.Equal(t, "dec-1", conflictErr.ExistingID)
}

func TestUpsertAllowsTransientSecondActiveRowWhenUniqueNotEnforced(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, activeDecisionRow("dec-1", "db-engine"), true))

	// Inside a semantic.Store.Transaction, the new active record is saved
	// before the old one is demoted (spec §4.11 step 4), so the index must
	// tolerate a transient second active row for the same target.
	require.NoError(t, idx.Upsert(ctx, activeDecisionRow("dec-2", "db-engine"), false))

	row, ok, err := idx.Get(ctx, "dec-2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.StatusActive, row.Status)
}

func TestUpsertAllowsMultipleNonActiveRowsForSameTarget(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	first := activeDecisionRow("dec-1", "db-engine")
	first.Status = types.StatusSuperseded
	second := activeDecisionRow("dec-2", "db-engine")
	second.Status = types.StatusSuperseded

	require.NoError(t, idx.Upsert(ctx, first, true))
	require.NoError(t, idx.Upsert(ctx, second, true))
}

func TestGetActiveReturnsEmptyWhenNone(t *testing.T) {
	idx := openTestIndex(t)
	id, err := idx.GetActive(context.Background(), "unknown-target")
	require.NoError(t, err)
	require.Empty(t, id)
}

func TestListAllAndCount(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, activeDecisionRow("dec-1", "db-engine"), true))
	require.NoError(t, idx.Upsert(ctx, activeDecisionRow("dec-2", "cache-layer"), true))

	rows, err := idx.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestDeleteRemovesRow(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, activeDecisionRow("dec-1", "db-engine"), true))
	require.NoError(t, idx.Delete(ctx, "dec-1"))

	_, ok, err := idx.Get(ctx, "dec-1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClearEmptiesIndex(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, activeDecisionRow("dec-1", "db-engine"), true))
	require.NoError(t, idx.Clear(ctx))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestRebuildFromDiskReplacesContentsAndIgnoresActiveConflicts(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, activeDecisionRow("stale", "old-target"), true))

	rows := []Row{
		activeDecisionRow("dec-1", "db-engine"),
		activeDecisionRow("dec-2", "db-engine"), // duplicate active target, simulating a crash artifact
	}
	require.NoError(t, idx.RebuildFromDisk(ctx, rows))

	all, err := idx.ListAll(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(all))
	for _, r := range all {
		ids = append(ids, r.ID)
	}
	require.Contains(t, ids, "dec-1")
	require.NotContains(t, ids, "stale")
}
