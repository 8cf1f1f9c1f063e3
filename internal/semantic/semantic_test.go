package semantic

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sl4m3/agentmem/internal/types"
)

func openTestStore(t *testing.T, tb TrustBoundary) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), tb)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func decisionEvent(target string) types.Event {
	return types.Event{
		SchemaVersion: 1,
		Source:        types.SourceAgent,
		Kind:          types.KindDecision,
		Content:       "use postgres",
		Timestamp:     time.Now(),
		Context: &types.DecisionContent{
			Title: "use postgres", Target: target, Rationale: "simplicity", Status: types.StatusActive,
		},
	}
}

func TestSavePersistsAndIsRetrievable(t *testing.T) {
	s := openTestStore(t, TrustAgentWithIntent)
	ctx := context.Background()

	id, err := s.Save(ctx, decisionEvent("db-engine"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	d, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "db-engine", d.Content.Target)
	require.Equal(t, types.StatusActive, d.Content.Status)
}

func TestSaveRejectsSecondActiveDecisionForSameTarget(t *testing.T) {
	s := openTestStore(t, TrustAgentWithIntent)
	ctx := context.Background()

	_, err := s.Save(ctx, decisionEvent("db-engine"))
	require.NoError(t, err)

	_, err = s.Save(ctx, decisionEvent("db-engine"))
	require.Error(t, err)
	var conflictErr *types.ConflictError
	require.ErrorAs(t, err, &conflictErr)
}

func TestSaveRejectsAgentDecisionUnderHumanOnlyTrustBoundary(t *testing.T) {
	s := openTestStore(t, TrustHumanOnly)
	_, err := s.Save(context.Background(), decisionEvent("db-engine"))
	require.Error(t, err)
	var permErr *types.PermissionError
	require.ErrorAs(t, err, &permErr)
}

func TestUpdateDecisionSupersedesAndEnforcesTransitionMatrix(t *testing.T) {
	s := openTestStore(t, TrustAgentWithIntent)
	ctx := context.Background()

	id, err := s.Save(ctx, decisionEvent("db-engine"))
	require.NoError(t, err)

	superseded := types.StatusSuperseded
	require.NoError(t, s.UpdateDecision(ctx, id, DecisionUpdates{Status: &superseded}, "supersede"))

	d, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, types.StatusSuperseded, d.Content.Status)

	active := types.StatusActive
	err = s.UpdateDecision(ctx, id, DecisionUpdates{Status: &active}, "illegal revive")
	require.Error(t, err)
	var transErr *types.TransitionError
	require.ErrorAs(t, err, &transErr)
}

func TestUpdateDecisionUnknownIDReturnsNotFound(t *testing.T) {
	s := openTestStore(t, TrustAgentWithIntent)
	active := types.StatusActive
	err := s.UpdateDecision(context.Background(), "decision_does_not_exist.md", DecisionUpdates{Status: &active}, "msg")
	var notFound *types.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestTransactionCommitsAllWritesAtomically(t *testing.T) {
	s := openTestStore(t, TrustAgentWithIntent)
	ctx := context.Background()

	var firstID string
	err := s.Transaction(ctx, "batch save", func(ctx context.Context) error {
		id, err := s.saveLocked(ctx, decisionEvent("db-engine"))
		if err != nil {
			return err
		}
		firstID = id
		_, err = s.saveLocked(ctx, decisionEvent("cache-layer"))
		return err
	})
	require.NoError(t, err)

	decisions, err := s.ListDecisions(ctx)
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	require.NotEmpty(t, firstID)
}

func TestTransactionRollsBackOnFailure(t *testing.T) {
	s := openTestStore(t, TrustAgentWithIntent)
	ctx := context.Background()

	err := s.Transaction(ctx, "batch save", func(ctx context.Context) error {
		if _, err := s.saveLocked(ctx, decisionEvent("db-engine")); err != nil {
			return err
		}
		// second save with the same target leaves two active decisions for
		// it; the integrity check at commit rejects that, forcing the whole
		// transaction to abort.
		_, err := s.saveLocked(ctx, decisionEvent("db-engine"))
		return err
	})
	require.Error(t, err)

	decisions, lerr := s.ListDecisions(ctx)
	require.NoError(t, lerr)
	require.Empty(t, decisions)
}

func TestListActiveConflictsReturnsOnlyActiveForTarget(t *testing.T) {
	s := openTestStore(t, TrustAgentWithIntent)
	ctx := context.Background()

	_, err := s.Save(ctx, decisionEvent("db-engine"))
	require.NoError(t, err)
	_, err = s.Save(ctx, decisionEvent("cache-layer"))
	require.NoError(t, err)

	conflicts, err := s.ListActiveConflicts(ctx, "db-engine")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	require.Equal(t, "db-engine", conflicts[0].Content.Target)
}

func TestOpenQuarantinesUnparsableFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "garbage.md"), []byte("not a record"), 0o644))

	s, err := Open(dir, TrustAgentWithIntent)
	require.NoError(t, err)
	defer s.Close()

	quarantined, err := s.ListQuarantined()
	require.NoError(t, err)
	require.Contains(t, quarantined, "garbage.md")
}

func TestFindProposalReturnsMostRecentForTarget(t *testing.T) {
	s := openTestStore(t, TrustAgentWithIntent)
	ctx := context.Background()

	proposal := decisionEvent("db-engine")
	proposal.Kind = types.KindProposal
	proposal.Context.(*types.DecisionContent).Status = types.StatusDraft

	_, err := s.Save(ctx, proposal)
	require.NoError(t, err)

	found, ok, err := s.FindProposal(ctx, "db-engine")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "db-engine", found.Content.Target)
}
