package conflict

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sl4m3/agentmem/internal/semantic"
	"github.com/sl4m3/agentmem/internal/types"
)

type fakeSource struct {
	byTarget map[string][]semantic.Decision
}

func (f fakeSource) ListActiveConflicts(_ context.Context, target string) ([]semantic.Decision, error) {
	return f.byTarget[target], nil
}

func decisionEvent(target string) types.Event {
	return types.Event{
		SchemaVersion: 1,
		Source:        types.SourceAgent,
		Kind:          types.KindDecision,
		Content:       "use postgres",
		Timestamp:     time.Now(),
		Context:       &types.DecisionContent{Title: "use postgres", Target: target, Rationale: "simplicity"},
	}
}

func TestDetectFindsActiveConflicts(t *testing.T) {
	src := fakeSource{byTarget: map[string][]semantic.Decision{
		"db-engine": {{ID: "dec-1"}, {ID: "dec-2"}},
	}}
	ids, err := Detect(context.Background(), src, decisionEvent("db-engine"))
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"dec-1", "dec-2"}, ids)
}

func TestDetectNoConflictsForUnrelatedTarget(t *testing.T) {
	src := fakeSource{byTarget: map[string][]semantic.Decision{
		"db-engine": {{ID: "dec-1"}},
	}}
	ids, err := Detect(context.Background(), src, decisionEvent("cache-layer"))
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestDetectIgnoresNonDecisionKinds(t *testing.T) {
	src := fakeSource{byTarget: map[string][]semantic.Decision{"db-engine": {{ID: "dec-1"}}}}
	event := types.Event{SchemaVersion: 1, Source: types.SourceAgent, Kind: types.KindResult, Content: "ok", Timestamp: time.Now()}
	ids, err := Detect(context.Background(), src, event)
	require.NoError(t, err)
	require.Nil(t, ids)
}
