// Package transition validates per-record update legality (spec §4.4):
// immutable fields may never change, and status changes must follow a fixed
// matrix. Grounded on the teacher's small, independently testable validator
// style in internal/validation/bead.go (ValidateIDFormat,
// ValidatePrefixWithAllowed) — one function per rule, composed by the
// caller.
package transition

import (
	"github.com/sl4m3/agentmem/internal/types"
)

// Header is the subset of a record's identity and decision fields relevant
// to transition legality.
type Header struct {
	Target    string
	Kind      types.Kind
	Timestamp string
	Status    types.Status
	// DecisionFieldsPresent reports whether Title/Target/Rationale are all
	// non-empty on the proposed header — required for a draft->active move.
	DecisionFieldsPresent bool
}

// allowedTransitions is the fixed status matrix from spec §4.4.
var allowedTransitions = map[types.Status]map[types.Status]bool{
	types.StatusActive: {
		types.StatusSuperseded: true,
		types.StatusDeprecated: true,
	},
	types.StatusDraft: {
		types.StatusActive:    true,
		types.StatusRejected:  true,
		types.StatusFalsified: true,
	},
	// Superseded, Rejected, Deprecated, Falsified are terminal: no entry
	// means no outgoing transitions are permitted.
}

// Validate checks that changing from oldHdr to newHdr is legal. Returns a
// *types.TransitionError describing the first violated rule, or nil.
func Validate(oldHdr, newHdr Header) error {
	if oldHdr.Target != newHdr.Target {
		return &types.TransitionError{Reason: "target is immutable"}
	}
	if oldHdr.Kind != newHdr.Kind {
		return &types.TransitionError{Reason: "kind is immutable"}
	}
	if oldHdr.Timestamp != newHdr.Timestamp {
		return &types.TransitionError{Reason: "timestamp is immutable"}
	}

	if oldHdr.Status == newHdr.Status {
		return nil
	}

	if oldHdr.Status.IsTerminal() {
		return &types.TransitionError{Reason: "status " + string(oldHdr.Status) + " is terminal"}
	}

	allowed := allowedTransitions[oldHdr.Status]
	if !allowed[newHdr.Status] {
		return &types.TransitionError{
			Reason: "illegal status transition " + string(oldHdr.Status) + " -> " + string(newHdr.Status),
		}
	}

	if oldHdr.Status == types.StatusDraft && newHdr.Status == types.StatusActive && !newHdr.DecisionFieldsPresent {
		return &types.TransitionError{Reason: "draft->active requires title, target, and rationale"}
	}

	return nil
}
