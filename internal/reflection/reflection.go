// Package reflection is the Reflection Engine (spec §4.12): a periodic
// analyzer that distills evidence into proposals, clusters episodic
// evidence by target, evaluates and generates competing hypotheses with
// falsification-aware confidence, and decays drafts that go untouched.
// Grounded on the teacher's cyclic batch-analysis-and-rewrite structure in
// internal/compact/compactor.go (injected collaborator interfaces, a single
// Run-a-cycle entrypoint) and ashita-ai-akashi's confidence-over-clusters
// idiom in internal/conflicts/scorer.go.
package reflection

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sl4m3/agentmem/internal/semantic"
	"github.com/sl4m3/agentmem/internal/types"
)

// Policy configures the thresholds spec §4.12 names.
type Policy struct {
	ReadyThreshold    float64       // default 0.8
	ObservationWindow time.Duration // default 12h
	ErrorThreshold    int           // default 3
	DecayRate         float64       // default 0.05
	MinConfidence     float64       // default 0.3
}

// DefaultPolicy returns the spec's stated defaults.
func DefaultPolicy() Policy {
	return Policy{
		ReadyThreshold:    0.8,
		ObservationWindow: 12 * time.Hour,
		ErrorThreshold:    3,
		DecayRate:         0.05,
		MinConfidence:     0.3,
	}
}

// Distiller is the external distill_trajectories() collaborator (spec
// §4.12 step 1): it inspects recent activity and proposes zero or more new
// draft DecisionContent values.
type Distiller interface {
	DistillTrajectories(ctx context.Context) ([]types.DecisionContent, error)
}

// NoopDistiller performs no distillation. Used when no external pipeline is
// configured.
type NoopDistiller struct{}

func (NoopDistiller) DistillTrajectories(context.Context) ([]types.DecisionContent, error) {
	return nil, nil
}

// EvidenceSource supplies the recent episodic rows a cycle clusters.
type EvidenceSource interface {
	RecentEvidence(ctx context.Context, since time.Time) ([]types.EpisodicRow, error)
}

// cluster is the per-target tally produced by evidence clustering (spec
// §4.12 step 2).
type cluster struct {
	target    string
	errors    int
	successes int
	lastSeen  time.Time
	eventIDs  []string
}

// Engine runs reflection cycles against a semantic store.
type Engine struct {
	store     *semantic.Store
	distiller Distiller
	evidence  EvidenceSource
	policy    Policy
	now       func() time.Time
}

// New constructs an Engine. now defaults to time.Now if nil.
func New(store *semantic.Store, distiller Distiller, evidence EvidenceSource, policy Policy) *Engine {
	return &Engine{store: store, distiller: distiller, evidence: evidence, policy: policy, now: time.Now}
}

// Run executes one reflection cycle and returns the ids of every record
// touched (spec §4.12).
func (e *Engine) Run(ctx context.Context) ([]string, error) {
	touched := map[string]bool{}
	touchedThisCycle := map[string]bool{}
	now := e.now()

	// Step 1: distillation.
	distilled, err := e.distiller.DistillTrajectories(ctx)
	if err != nil {
		return nil, fmt.Errorf("reflection: distill: %w", err)
	}
	for _, dc := range distilled {
		id, err := e.saveDraft(ctx, dc, now)
		if err != nil {
			return nil, err
		}
		touched[id] = true
		touchedThisCycle[id] = true
	}

	// Step 2: evidence clustering.
	rows, err := e.evidence.RecentEvidence(ctx, now.Add(-e.policy.ObservationWindow*4))
	if err != nil {
		return nil, fmt.Errorf("reflection: evidence: %w", err)
	}
	clusters := clusterEvidence(rows)

	drafts, err := e.store.ListAllProposals(ctx)
	if err != nil {
		return nil, fmt.Errorf("reflection: list proposals: %w", err)
	}
	draftsByTarget := map[string][]semantic.Decision{}
	for _, d := range drafts {
		if d.Content.Status != types.StatusDraft {
			continue
		}
		draftsByTarget[d.Content.Target] = append(draftsByTarget[d.Content.Target], d)
	}

	// Step 3: hypothesis evaluation.
	for target, cl := range clusters {
		for _, d := range draftsByTarget[target] {
			if err := e.evaluateHypothesis(ctx, d, cl, now); err != nil {
				return nil, err
			}
			touched[d.ID] = true
			touchedThisCycle[d.ID] = true
		}
	}

	// Step 4: hypothesis generation.
	for target, cl := range clusters {
		if cl.errors < e.policy.ErrorThreshold {
			continue
		}
		hasStrongDraft := false
		for _, d := range draftsByTarget[target] {
			if d.Content.Confidence > 0.7 {
				hasStrongDraft = true
				break
			}
		}
		if hasStrongDraft {
			continue
		}
		fixID, observeID, err := e.generateCompetingHypotheses(ctx, target, cl, now)
		if err != nil {
			return nil, err
		}
		touched[fixID] = true
		touched[observeID] = true
		touchedThisCycle[fixID] = true
		touchedThisCycle[observeID] = true
	}

	// Step 5: global decay over every draft not touched this cycle.
	allDrafts, err := e.store.ListAllProposals(ctx)
	if err != nil {
		return nil, fmt.Errorf("reflection: list proposals (decay pass): %w", err)
	}
	for _, d := range allDrafts {
		if d.Content.Status != types.StatusDraft || touchedThisCycle[d.ID] {
			continue
		}
		if err := e.decayDraft(ctx, d); err != nil {
			return nil, err
		}
		touched[d.ID] = true
	}

	ids := make([]string, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	return ids, nil
}

func (e *Engine) saveDraft(ctx context.Context, dc types.DecisionContent, now time.Time) (string, error) {
	dc.Status = types.StatusDraft
	firstSeen := now
	dc.FirstObservedAt = &firstSeen
	dc.LastObservedAt = &firstSeen
	event := types.Event{
		SchemaVersion: 1,
		Source:        types.SourceSystem,
		Kind:          types.KindProposal,
		Content:       dc.Title,
		Context:       &dc,
		Timestamp:     now,
	}
	return e.store.Save(ctx, event)
}

// clusterEvidence groups active episodic rows by context.target, counting
// errors vs results (spec §4.12 step 2).
func clusterEvidence(rows []types.EpisodicRow) map[string]*cluster {
	out := map[string]*cluster{}
	for _, row := range rows {
		if row.Status != types.EpisodicActive {
			continue
		}
		target := targetOf(row.Event)
		if target == "" {
			continue
		}
		cl, ok := out[target]
		if !ok {
			cl = &cluster{target: target}
			out[target] = cl
		}
		switch row.Event.Kind {
		case types.KindError:
			cl.errors++
		case types.KindResult:
			cl.successes++
		}
		if row.Event.Timestamp.After(cl.lastSeen) {
			cl.lastSeen = row.Event.Timestamp
		}
		cl.eventIDs = append(cl.eventIDs, fmt.Sprint(row.ID))
	}
	return out
}

func targetOf(event types.Event) string {
	if dc := event.DecisionContext(); dc != nil {
		return dc.Target
	}
	if m, ok := event.Context.(map[string]any); ok {
		if t, ok := m["target"].(string); ok {
			return t
		}
	}
	return ""
}

// evaluateHypothesis implements spec §4.12 step 3 for one draft against its
// cluster.
func (e *Engine) evaluateHypothesis(ctx context.Context, d semantic.Decision, cl *cluster, now time.Time) error {
	dc := d.Content

	if cl.successes > 2*cl.errors && dc.Confidence > 0.5 {
		status := types.StatusFalsified
		conf := 0.1
		rationale := dc.Rationale + " [falsified: observed successes outweigh prior error evidence]"
		return e.store.UpdateDecision(ctx, d.ID, semantic.DecisionUpdates{
			Status:     &status,
			Confidence: &conf,
		}, "reflection: falsify "+d.ID+": "+rationale)
	}

	newConfidence := 0.0
	denom := cl.errors + cl.successes + 1
	if denom > 0 {
		c := float64(cl.errors-cl.successes) / float64(denom)
		if c > 0 {
			newConfidence = c
		}
	}

	firstObserved := now
	if dc.FirstObservedAt != nil {
		firstObserved = *dc.FirstObservedAt
	}
	ready := newConfidence >= e.policy.ReadyThreshold && cl.lastSeen.Sub(firstObserved) >= e.policy.ObservationWindow

	updates := semantic.DecisionUpdates{
		Confidence:       &newConfidence,
		ReadyForReview:   &ready,
		EvidenceEventIDs: append(append([]string{}, dc.EvidenceEventIDs...), cl.eventIDs...),
		LastObservedAt:   &cl.lastSeen,
	}
	return e.store.UpdateDecision(ctx, d.ID, updates, "reflection: update "+d.ID)
}

// generateCompetingHypotheses implements spec §4.12 step 4: two competing
// drafts (a "fix" and an "observe-for-transient" hypothesis) cross-linked
// via competing_proposal_ids.
func (e *Engine) generateCompetingHypotheses(ctx context.Context, target string, cl *cluster, now time.Time) (string, string, error) {
	corrID := uuid.NewString()

	fixDC := types.DecisionContent{
		Title:           fmt.Sprintf("Fix recurring errors on %s", target),
		Target:          target,
		Rationale:       fmt.Sprintf("Observed %d errors vs %d successes on %s; proposing a corrective fix (cycle %s)", cl.errors, cl.successes, target, corrID),
		Status:          types.StatusDraft,
		EvidenceEventIDs: cl.eventIDs,
	}
	observeDC := types.DecisionContent{
		Title:           fmt.Sprintf("Observe %s for transient errors", target),
		Target:          target,
		Rationale:       fmt.Sprintf("Observed %d errors vs %d successes on %s; proposing to observe before acting, in case errors are transient (cycle %s)", cl.errors, cl.successes, target, corrID),
		Status:          types.StatusDraft,
		EvidenceEventIDs: cl.eventIDs,
	}

	fixID, err := e.saveDraft(ctx, fixDC, now)
	if err != nil {
		return "", "", err
	}
	observeID, err := e.saveDraft(ctx, observeDC, now)
	if err != nil {
		return "", "", err
	}

	if err := e.store.UpdateDecision(ctx, fixID, semantic.DecisionUpdates{
		CompetingProposals: []string{observeID},
	}, "reflection: cross-link "+fixID); err != nil {
		return "", "", err
	}
	if err := e.store.UpdateDecision(ctx, observeID, semantic.DecisionUpdates{
		CompetingProposals: []string{fixID},
	}, "reflection: cross-link "+observeID); err != nil {
		return "", "", err
	}

	return fixID, observeID, nil
}

// decayDraft implements spec §4.12 step 5 for a single untouched draft.
func (e *Engine) decayDraft(ctx context.Context, d semantic.Decision) error {
	newConfidence := d.Content.Confidence - e.policy.DecayRate
	if newConfidence < 0 {
		newConfidence = 0
	}
	updates := semantic.DecisionUpdates{Confidence: &newConfidence}
	msg := "reflection: decay " + d.ID
	if newConfidence < e.policy.MinConfidence {
		rejected := types.StatusRejected
		updates.Status = &rejected
		msg = "reflection: reject " + d.ID
	}
	return e.store.UpdateDecision(ctx, d.ID, updates, msg)
}
