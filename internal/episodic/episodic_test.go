package episodic

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sl4m3/agentmem/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "episodic.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func resultEvent(content string) types.Event {
	return types.Event{SchemaVersion: 1, Source: types.SourceAgent, Kind: types.KindResult, Content: content, Timestamp: time.Now()}
}

func TestAppendAndQueryRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Append(ctx, resultEvent("ran the migration"), "")
	require.NoError(t, err)
	require.Greater(t, id, int64(0))

	rows, err := s.Query(ctx, 10, "", nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "ran the migration", rows[0].Event.Content)
	require.Equal(t, types.EpisodicActive, rows[0].Status)
}

func TestQueryOrdersNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	older := resultEvent("first")
	older.Timestamp = time.Now().Add(-time.Hour)
	newer := resultEvent("second")
	newer.Timestamp = time.Now()

	_, err := s.Append(ctx, older, "")
	require.NoError(t, err)
	_, err = s.Append(ctx, newer, "")
	require.NoError(t, err)

	rows, err := s.Query(ctx, 10, "", nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "second", rows[0].Event.Content)
	require.Equal(t, "first", rows[1].Event.Content)
}

func TestQueryFiltersByStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id, err := s.Append(ctx, resultEvent("archived me"), "")
	require.NoError(t, err)
	require.NoError(t, s.MarkArchived(ctx, []int64{id}))

	active, err := s.Query(ctx, 10, types.EpisodicActive, nil, nil)
	require.NoError(t, err)
	require.Empty(t, active)

	archived, err := s.Query(ctx, 10, types.EpisodicArchived, nil, nil)
	require.NoError(t, err)
	require.Len(t, archived, 1)
}

func TestLinkToSemanticSetsLinkedID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id, err := s.Append(ctx, resultEvent("linked"), "")
	require.NoError(t, err)

	require.NoError(t, s.LinkToSemantic(ctx, id, "decision_abc.md"))

	rows, err := s.Query(ctx, 10, "", nil, nil)
	require.NoError(t, err)
	require.Equal(t, "decision_abc.md", rows[0].LinkedSemanticID)
}

func TestPhysicalPruneRemovesRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id, err := s.Append(ctx, resultEvent("to be pruned"), "")
	require.NoError(t, err)

	require.NoError(t, s.PhysicalPrune(ctx, []int64{id}))

	rows, err := s.Query(ctx, 10, "", nil, nil)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestAllForDecayReturnsEveryRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_, err := s.Append(ctx, resultEvent("a"), "")
	require.NoError(t, err)
	_, err = s.Append(ctx, resultEvent("b"), "")
	require.NoError(t, err)

	rows, err := s.AllForDecay(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}
