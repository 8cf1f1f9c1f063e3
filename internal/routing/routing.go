// Package routing is the Routing Engine (spec §4.11): given an event, a
// policy, and an optional resolution intent, it decides whether to
// persist, into which store, and orchestrates the cross-store write
// (including back-pointers) atomically. Grounded on the teacher's own
// "routing" integration test naming and persist-or-reject decision shape
// in internal/beads/routing_integration_test.go.
package routing

import (
	"context"
	"fmt"

	"github.com/sl4m3/agentmem/internal/conflict"
	"github.com/sl4m3/agentmem/internal/episodic"
	"github.com/sl4m3/agentmem/internal/resolution"
	"github.com/sl4m3/agentmem/internal/semantic"
	"github.com/sl4m3/agentmem/internal/types"
)

// StoreType identifies which store a persisted event landed in.
type StoreType string

const (
	StoreNone     StoreType = ""
	StoreSemantic StoreType = "semantic"
	StoreEpisodic StoreType = "episodic"
)

// Decision is the Routing Engine's verdict for one event (spec §4.11 step 5).
type Decision struct {
	ShouldPersist bool
	StoreType     StoreType
	Reason        string
	Priority      int
	FileID        string   // set when StoreType == StoreSemantic and the write succeeded
	EpisodicID    int64    // set whenever an episodic row was appended
	Conflicts     []string // set when persistence was refused due to unresolved conflicts
}

// kindPriority assigns a coarse priority so callers can triage a backlog of
// routed events; decisions and constraints outrank transient results.
var kindPriority = map[types.Kind]int{
	types.KindDecision:     3,
	types.KindConstraint:   3,
	types.KindConfigChange: 2,
	types.KindProposal:     1,
	types.KindResult:       1,
	types.KindError:        1,
	types.KindAssumption:   1,
}

// shouldPersist implements spec §4.11 step 1.
func shouldPersist(event types.Event) bool {
	switch event.Kind {
	case types.KindDecision, types.KindConstraint, types.KindConfigChange:
		return true
	case types.KindResult:
		if m, ok := event.Context.(map[string]any); ok {
			reused, _ := m["reused"].(bool)
			return reused
		}
		return false
	default:
		return false
	}
}

// storeTypeFor implements spec §4.11 step 2.
func storeTypeFor(k types.Kind) StoreType {
	if types.SemanticKinds[k] {
		return StoreSemantic
	}
	return StoreEpisodic
}

// Route decides and executes persistence for event, per spec §4.11.
func Route(ctx context.Context, store *semantic.Store, episodicStore *episodic.Store, event types.Event, intent *types.ResolutionIntent) (Decision, error) {
	priority := kindPriority[event.Kind]

	if !shouldPersist(event) {
		return Decision{ShouldPersist: false, Reason: "policy: this kind/context is not persisted", Priority: priority}, nil
	}

	st := storeTypeFor(event.Kind)
	if st == StoreEpisodic {
		id, err := episodicStore.Append(ctx, event, "")
		if err != nil {
			return Decision{}, err
		}
		return Decision{ShouldPersist: true, StoreType: StoreEpisodic, Reason: "persisted to episodic log",
			Priority: priority, EpisodicID: id}, nil
	}

	conflicts, err := conflict.Detect(ctx, store, event)
	if err != nil {
		return Decision{}, err
	}
	if len(conflicts) > 0 {
		if intent == nil || !resolution.ValidateIntent(*intent, conflicts) {
			return Decision{
				ShouldPersist: false,
				StoreType:     StoreSemantic,
				Reason:        "conflict: active decision(s) exist for this target and no covering resolution intent was supplied",
				Priority:      priority,
				Conflicts:     conflicts,
			}, nil
		}
	}

	var newID string
	txErr := store.Transaction(ctx, "route: "+event.Content, func(ctx context.Context) error {
		saveEvent := event
		if intent != nil && intent.ResolutionType == types.ResolutionSupersede && len(intent.TargetDecisionIDs) > 0 {
			dc := saveEvent.DecisionContext()
			if dc == nil {
				return fmt.Errorf("routing: supersede intent on event without DecisionContent")
			}
			newDC := *dc
			newDC.Supersedes = intent.TargetDecisionIDs
			saveEvent.Context = &newDC
		}

		id, err := store.Save(ctx, saveEvent)
		if err != nil {
			return err
		}
		newID = id

		if intent != nil {
			var newStatus types.Status
			switch intent.ResolutionType {
			case types.ResolutionSupersede:
				newStatus = types.StatusSuperseded
			case types.ResolutionDeprecate:
				newStatus = types.StatusDeprecated
			default:
				return nil
			}
			for _, oldID := range intent.TargetDecisionIDs {
				updates := semantic.DecisionUpdates{Status: &newStatus}
				if intent.ResolutionType == types.ResolutionSupersede {
					supersededBy := newID
					updates.SupersededBy = &supersededBy
				}
				if err := store.UpdateDecision(ctx, oldID, updates, "routing: "+string(intent.ResolutionType)+" by "+newID); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if txErr != nil {
		return Decision{}, txErr
	}

	epID, err := episodicStore.Append(ctx, event, newID)
	if err != nil {
		return Decision{}, err
	}

	return Decision{
		ShouldPersist: true,
		StoreType:     StoreSemantic,
		Reason:        "persisted to semantic store",
		Priority:      priority,
		FileID:        newID,
		EpisodicID:    epID,
	}, nil
}
