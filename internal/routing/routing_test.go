package routing

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sl4m3/agentmem/internal/episodic"
	"github.com/sl4m3/agentmem/internal/semantic"
	"github.com/sl4m3/agentmem/internal/types"
)

func newTestStores(t *testing.T) (*semantic.Store, *episodic.Store) {
	t.Helper()
	sem, err := semantic.Open(filepath.Join(t.TempDir(), "semantic"), semantic.TrustAgentWithIntent)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sem.Close() })

	epi, err := episodic.Open(filepath.Join(t.TempDir(), "episodic.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = epi.Close() })

	return sem, epi
}

func decisionEvent(target string) types.Event {
	return types.Event{
		SchemaVersion: 1, Source: types.SourceAgent, Kind: types.KindDecision, Content: "use postgres",
		Timestamp: time.Now(),
		Context:   &types.DecisionContent{Title: "use postgres", Target: target, Rationale: "simplicity", Status: types.StatusActive},
	}
}

func TestRouteRejectsUnpersistedKinds(t *testing.T) {
	sem, epi := newTestStores(t)
	event := types.Event{SchemaVersion: 1, Source: types.SourceAgent, Kind: types.KindAssumption, Content: "maybe", Timestamp: time.Now()}

	dec, err := Route(context.Background(), sem, epi, event, nil)
	require.NoError(t, err)
	require.False(t, dec.ShouldPersist)
	require.Equal(t, StoreNone, dec.StoreType)
}

func TestRouteSendsResultToEpisodicOnlyWhenReused(t *testing.T) {
	sem, epi := newTestStores(t)
	notReused := types.Event{SchemaVersion: 1, Source: types.SourceAgent, Kind: types.KindResult, Content: "ok", Timestamp: time.Now(),
		Context: map[string]any{"reused": false}}

	dec, err := Route(context.Background(), sem, epi, notReused, nil)
	require.NoError(t, err)
	require.False(t, dec.ShouldPersist)

	reused := types.Event{SchemaVersion: 1, Source: types.SourceAgent, Kind: types.KindResult, Content: "ok", Timestamp: time.Now(),
		Context: map[string]any{"reused": true}}
	dec, err = Route(context.Background(), sem, epi, reused, nil)
	require.NoError(t, err)
	require.True(t, dec.ShouldPersist)
	require.Equal(t, StoreEpisodic, dec.StoreType)
}

func TestRoutePersistsDecisionToSemanticStore(t *testing.T) {
	sem, epi := newTestStores(t)
	dec, err := Route(context.Background(), sem, epi, decisionEvent("db-engine"), nil)
	require.NoError(t, err)
	require.True(t, dec.ShouldPersist)
	require.Equal(t, StoreSemantic, dec.StoreType)
	require.NotEmpty(t, dec.FileID)
}

func TestRouteRefusesConflictingDecisionWithoutIntent(t *testing.T) {
	sem, epi := newTestStores(t)
	_, err := Route(context.Background(), sem, epi, decisionEvent("db-engine"), nil)
	require.NoError(t, err)

	dec, err := Route(context.Background(), sem, epi, decisionEvent("db-engine"), nil)
	require.NoError(t, err)
	require.False(t, dec.ShouldPersist)
	require.NotEmpty(t, dec.Conflicts)
}

func TestRoutePersistsSupersedeIntentAndUpdatesOldDecision(t *testing.T) {
	sem, epi := newTestStores(t)
	first, err := Route(context.Background(), sem, epi, decisionEvent("db-engine"), nil)
	require.NoError(t, err)
	require.True(t, first.ShouldPersist)

	intent := &types.ResolutionIntent{
		ResolutionType:    types.ResolutionSupersede,
		Rationale:         "switching engines",
		TargetDecisionIDs: []string{first.FileID},
	}
	second, err := Route(context.Background(), sem, epi, decisionEvent("db-engine"), intent)
	require.NoError(t, err)
	require.True(t, second.ShouldPersist)
	require.NotEqual(t, first.FileID, second.FileID)

	oldDecision, err := sem.Get(context.Background(), first.FileID)
	require.NoError(t, err)
	require.Equal(t, types.StatusSuperseded, oldDecision.Content.Status)
	require.Equal(t, second.FileID, oldDecision.Content.SupersededBy)
}
