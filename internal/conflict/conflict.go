// Package conflict is the Conflict Engine (spec §4.9): for a decision-kind
// event, it identifies every active decision on the same target. Grounded
// on ashita-ai-akashi/internal/conflicts' candidate-detection-then-validate
// split, simplified to the metadata-query form this spec calls for (no LLM
// classification — the conflict predicate here is purely structural: same
// target, same kind, status=active).
package conflict

import (
	"context"

	"github.com/sl4m3/agentmem/internal/semantic"
	"github.com/sl4m3/agentmem/internal/types"
)

// ConflictSource queries the active decisions for a target. *semantic.Store
// satisfies this via its ListActiveConflicts method.
type ConflictSource interface {
	ListActiveConflicts(ctx context.Context, target string) ([]semantic.Decision, error)
}

// Detect returns the ids of every active decision conflicting with event.
// Only decision-kind events can conflict; every other kind yields no
// conflicts (spec §4.9).
func Detect(ctx context.Context, src ConflictSource, event types.Event) ([]string, error) {
	if event.Kind != types.KindDecision {
		return nil, nil
	}
	dc := event.DecisionContext()
	if dc == nil {
		return nil, nil
	}
	decisions, err := src.ListActiveConflicts(ctx, dc.Target)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(decisions))
	for _, d := range decisions {
		ids = append(ids, d.ID)
	}
	return ids, nil
}
