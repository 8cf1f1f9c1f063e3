package facade

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sl4m3/agentmem/internal/types"
)

func newTestMemory(t *testing.T, role Role) *Memory {
	t.Helper()
	m, err := New(Config{StoragePath: t.TempDir(), Role: role})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestRecordDecisionPersistsAndIsListed(t *testing.T) {
	m := newTestMemory(t, RoleAgent)
	ctx := context.Background()

	dec, err := m.RecordDecision(ctx, "use postgres", "db-engine", "simplicity", nil)
	require.NoError(t, err)
	require.True(t, dec.ShouldPersist)

	ids, err := m.GetDecisions(ctx)
	require.NoError(t, err)
	require.Contains(t, ids, dec.FileID)
}

func TestRecordDecisionRequiresAgentRole(t *testing.T) {
	m := newTestMemory(t, RoleViewer)
	_, err := m.RecordDecision(context.Background(), "x", "y", "z", nil)
	require.Error(t, err)
	var permErr *types.PermissionError
	require.ErrorAs(t, err, &permErr)
}

func TestSupersedeDecisionRejectsNonActiveOldID(t *testing.T) {
	m := newTestMemory(t, RoleAgent)
	ctx := context.Background()

	_, err := m.SupersedeDecision(ctx, "new", "db-engine", "why", []string{"decision_does_not_exist.md"}, nil)
	require.Error(t, err)
}

func TestSupersedeDecisionSucceedsForActiveTarget(t *testing.T) {
	m := newTestMemory(t, RoleAgent)
	ctx := context.Background()

	first, err := m.RecordDecision(ctx, "use postgres", "db-engine", "simplicity", nil)
	require.NoError(t, err)

	second, err := m.SupersedeDecision(ctx, "use mysql", "db-engine", "perf", []string{first.FileID}, nil)
	require.NoError(t, err)
	require.True(t, second.ShouldPersist)
}

func TestSearchDecisionsStrictModeExcludesNonActive(t *testing.T) {
	m := newTestMemory(t, RoleAgent)
	ctx := context.Background()

	first, err := m.RecordDecision(ctx, "use postgres", "db-engine", "simplicity", nil)
	require.NoError(t, err)
	_, err = m.SupersedeDecision(ctx, "use mysql", "db-engine", "perf", []string{first.FileID}, nil)
	require.NoError(t, err)

	hits, err := m.SearchDecisions(ctx, "database engine", 10, ModeStrict)
	require.NoError(t, err)
	for _, h := range hits {
		require.NotEqual(t, first.FileID, h.ID)
	}
}

func TestSearchDecisionsBalancedModeDedupesPerTarget(t *testing.T) {
	m := newTestMemory(t, RoleAgent)
	ctx := context.Background()

	_, err := m.RecordDecision(ctx, "use postgres", "db-engine", "simplicity", nil)
	require.NoError(t, err)

	hits, err := m.SearchDecisions(ctx, "database", 10, ModeBalanced)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestRunDecayDryRunDoesNotMutate(t *testing.T) {
	m := newTestMemory(t, RoleAgent)
	ctx := context.Background()
	_, err := m.ProcessEvent(ctx, types.SourceAgent, types.KindResult, "ran it", map[string]any{"reused": true}, nil)
	require.NoError(t, err)

	m.cfg.DecayPolicy.TTL = time.Nanosecond
	report, err := m.RunDecay(ctx, true)
	require.NoError(t, err)
	require.NotEmpty(t, report.ToArchive)

	events, err := m.GetRecentEvents(ctx, 0, false, nil, nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestGetRecentEventsRespectsSinceUntilWindow(t *testing.T) {
	m := newTestMemory(t, RoleAgent)
	ctx := context.Background()
	_, err := m.ProcessEvent(ctx, types.SourceAgent, types.KindResult, "ran it", map[string]any{"reused": true}, nil)
	require.NoError(t, err)

	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	events, err := m.GetRecentEvents(ctx, 0, false, &past, &future)
	require.NoError(t, err)
	require.Len(t, events, 1)

	events, err = m.GetRecentEvents(ctx, 0, false, &future, nil)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestAcceptProposalRequiresAdminRole(t *testing.T) {
	m := newTestMemory(t, RoleAgent)
	_, err := m.AcceptProposal(context.Background(), "proposal_does_not_exist.md")
	require.Error(t, err)
	var permErr *types.PermissionError
	require.ErrorAs(t, err, &permErr)
}

func TestAcceptProposalMaterializesActiveDecision(t *testing.T) {
	m := newTestMemory(t, RoleAdmin)
	ctx := context.Background()

	event := types.Event{
		SchemaVersion: 1, Source: types.SourceSystem, Kind: types.KindProposal, Content: "try redis",
		Timestamp: time.Now(),
		Context:   &types.DecisionContent{Title: "try redis", Target: "cache-layer", Rationale: "observed latency win", Status: types.StatusDraft},
	}
	proposalID, err := m.semantic.Save(ctx, event)
	require.NoError(t, err)

	dec, err := m.AcceptProposal(ctx, proposalID)
	require.NoError(t, err)
	require.True(t, dec.ShouldPersist)

	proposal, err := m.semantic.Get(ctx, proposalID)
	require.NoError(t, err)
	require.Equal(t, types.StatusActive, proposal.Content.Status)
}

func TestListQuarantinedReturnsEmptySliceByDefault(t *testing.T) {
	m := newTestMemory(t, RoleViewer)
	names, err := m.ListQuarantined()
	require.NoError(t, err)
	require.Empty(t, names)
}
