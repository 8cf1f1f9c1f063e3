package schema

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sl4m3/agentmem/internal/rpc"
)

func TestTableCoversEveryRPCOperation(t *testing.T) {
	want := []string{
		rpc.OpProcessEvent, rpc.OpRecordDecision, rpc.OpSupersedeDecision, rpc.OpGetDecisions,
		rpc.OpGetRecentEvents, rpc.OpSearchDecisions, rpc.OpRunDecay, rpc.OpRunReflection,
		rpc.OpAcceptProposal, rpc.OpListQuarantined,
	}
	have := make(map[string]bool, len(Table))
	for _, op := range Table {
		have[op.Name] = true
		require.NotEmpty(t, op.Description)
		require.NotNil(t, op.ArgsSchema)
	}
	for _, name := range want {
		require.True(t, have[name], "missing schema entry for %s", name)
	}
}

func TestTableHasNoDuplicateNames(t *testing.T) {
	seen := make(map[string]bool, len(Table))
	for _, op := range Table {
		require.False(t, seen[op.Name], "duplicate schema entry for %s", op.Name)
		seen[op.Name] = true
	}
}
