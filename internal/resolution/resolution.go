// Package resolution is the Resolution Engine (spec §4.10): it checks that
// a caller-supplied ResolutionIntent actually covers the conflicts the
// Conflict Engine found for a candidate event.
package resolution

import "github.com/sl4m3/agentmem/internal/types"

// ValidateIntent reports whether intent legally resolves conflictSet.
// "abort" never covers anything (the caller must not persist); "supersede"
// and "deprecate" are valid iff every conflicting id is named in the
// intent's target_decision_ids.
func ValidateIntent(intent types.ResolutionIntent, conflictSet []string) bool {
	switch intent.ResolutionType {
	case types.ResolutionAbort:
		return false
	case types.ResolutionSupersede, types.ResolutionDeprecate:
		return coveredBy(conflictSet, intent.TargetDecisionIDs)
	default:
		return false
	}
}

func coveredBy(conflictSet, targets []string) bool {
	targetSet := make(map[string]bool, len(targets))
	for _, t := range targets {
		targetSet[t] = true
	}
	for _, c := range conflictSet {
		if !targetSet[c] {
			return false
		}
	}
	return true
}
