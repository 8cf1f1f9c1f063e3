package recordio

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sl4m3/agentmem/internal/types"
)

func sampleDecisionEvent() types.Event {
	return types.Event{
		SchemaVersion: 1,
		Source:        types.SourceAgent,
		Kind:          types.KindDecision,
		Content:       "Auth V1",
		Timestamp:     time.Date(2025, 1, 1, 12, 34, 56, 0, time.UTC),
		Context: &types.DecisionContent{
			Title:     "Auth V1",
			Target:    "auth",
			Rationale: "Initial decision",
			Status:    types.StatusActive,
		},
	}
}

func TestEncodeDecodeDecision(t *testing.T) {
	e := sampleDecisionEvent()
	text, err := Encode(e, DefaultBody(e))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(text, "---\n"))

	got, body, err := Decode(text)
	require.NoError(t, err)
	require.Equal(t, e.Kind, got.Kind)
	require.Equal(t, e.Source, got.Source)
	require.Equal(t, e.Content, got.Content)
	require.True(t, e.Timestamp.Equal(got.Timestamp))
	require.Contains(t, body, "Initial decision")

	dc := got.DecisionContext()
	require.NotNil(t, dc)
	require.Equal(t, "auth", dc.Target)
	require.Equal(t, types.StatusActive, dc.Status)
}

func TestEncodeDecodeGenericContext(t *testing.T) {
	e := types.Event{
		SchemaVersion: 1,
		Source:        types.SourceSystem,
		Kind:          types.KindError,
		Content:       "panic in worker",
		Timestamp:     time.Now().UTC(),
		Context:       map[string]any{"target": "worker_pool", "stack": "..."},
	}
	text, err := Encode(e, DefaultBody(e))
	require.NoError(t, err)

	got, _, err := Decode(text)
	require.NoError(t, err)
	m, ok := got.Context.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "worker_pool", m["target"])
}

func TestNewIDFormat(t *testing.T) {
	id, err := NewID(types.KindDecision, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(id, "decision_20250102_030405_"))
	require.True(t, strings.HasSuffix(id, ".md"))
	require.Equal(t, types.KindDecision, KindFromID(id))
}

func TestNewIDUnique(t *testing.T) {
	now := time.Now()
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id, err := NewID(types.KindDecision, now)
		require.NoError(t, err)
		require.False(t, seen[id], "duplicate id generated")
		seen[id] = true
	}
}
