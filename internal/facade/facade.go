// Package facade is the Memory object (spec §6.3): the public entry point
// composing the Semantic Store, Episodic Store, Routing Engine, and
// Reflection Engine behind a single lifecycle, with role/trust-boundary
// enforcement (spec §6.5). Grounded on ashita-ai-akashi/internal/authz's
// role-gated operation dispatch.
package facade

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sl4m3/agentmem/internal/decay"
	"github.com/sl4m3/agentmem/internal/embedder"
	"github.com/sl4m3/agentmem/internal/episodic"
	"github.com/sl4m3/agentmem/internal/reflection"
	"github.com/sl4m3/agentmem/internal/routing"
	"github.com/sl4m3/agentmem/internal/semantic"
	"github.com/sl4m3/agentmem/internal/types"
)

// Role is the RPC-level trust tier a Memory instance is bound to for its
// lifetime (spec §6.5).
type Role string

const (
	RoleViewer Role = "viewer"
	RoleAgent  Role = "agent"
	RoleAdmin  Role = "admin"
)

var roleRank = map[Role]int{RoleViewer: 0, RoleAgent: 1, RoleAdmin: 2}

// SearchMode controls how search_decisions filters and deduplicates hits
// (spec §6.3).
type SearchMode string

const (
	ModeStrict   SearchMode = "strict"
	ModeBalanced SearchMode = "balanced"
	ModeAudit    SearchMode = "audit"
)

// Config configures a Memory instance.
type Config struct {
	StoragePath      string // root directory; semantic/ and episodic.db live under it
	Role             Role
	Source           types.Source // the event source this instance records as
	TrustBoundary     semantic.TrustBoundary
	Embedder         embedder.Embedder
	Distiller        reflection.Distiller
	ReflectionPolicy reflection.Policy
	DecayPolicy      decay.Policy
}

// Memory is the public façade over the memory system.
type Memory struct {
	cfg        Config
	semantic   *semantic.Store
	episodic   *episodic.Store
	reflection *reflection.Engine
}

// New opens (or creates) a memory store rooted at cfg.StoragePath.
func New(cfg Config) (*Memory, error) {
	if cfg.Role == "" {
		cfg.Role = RoleAgent
	}
	if cfg.Source == "" {
		if cfg.Role == RoleAgent {
			cfg.Source = types.SourceAgent
		} else {
			cfg.Source = types.SourceUser
		}
	}
	if cfg.TrustBoundary == "" {
		cfg.TrustBoundary = semantic.TrustAgentWithIntent
	}
	if cfg.Embedder == nil {
		cfg.Embedder = embedder.HashEmbedder{}
	}
	if cfg.Distiller == nil {
		cfg.Distiller = reflection.NoopDistiller{}
	}
	if cfg.ReflectionPolicy == (reflection.Policy{}) {
		cfg.ReflectionPolicy = reflection.DefaultPolicy()
	}
	if cfg.DecayPolicy.TTL == 0 {
		cfg.DecayPolicy.TTL = 30 * 24 * time.Hour
	}

	if err := os.MkdirAll(cfg.StoragePath, 0o755); err != nil {
		return nil, fmt.Errorf("facade: mkdir %s: %w", cfg.StoragePath, err)
	}

	sem, err := semantic.Open(filepath.Join(cfg.StoragePath, "semantic"), cfg.TrustBoundary)
	if err != nil {
		return nil, err
	}
	epi, err := episodic.Open(filepath.Join(cfg.StoragePath, "episodic.db"))
	if err != nil {
		_ = sem.Close()
		return nil, err
	}

	m := &Memory{cfg: cfg, semantic: sem, episodic: epi}
	m.reflection = reflection.New(sem, cfg.Distiller, evidenceAdapter{epi}, cfg.ReflectionPolicy)
	return m, nil
}

// Close releases the underlying stores.
func (m *Memory) Close() error {
	err1 := m.semantic.Close()
	err2 := m.episodic.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

func (m *Memory) checkMinRole(min Role) error {
	if roleRank[m.cfg.Role] < roleRank[min] {
		return &types.PermissionError{Reason: fmt.Sprintf("operation requires role %q or higher, caller has %q", min, m.cfg.Role)}
	}
	return nil
}

// evidenceAdapter adapts *episodic.Store to reflection.EvidenceSource.
type evidenceAdapter struct{ store *episodic.Store }

func (a evidenceAdapter) RecentEvidence(ctx context.Context, since time.Time) ([]types.EpisodicRow, error) {
	return a.store.Query(ctx, 0, types.EpisodicActive, &since, nil)
}

// ProcessEvent ingests an event through the Routing Engine (spec §6.3).
func (m *Memory) ProcessEvent(ctx context.Context, source types.Source, kind types.Kind, content string, evCtx any, intent *types.ResolutionIntent) (routing.Decision, error) {
	if err := m.checkMinRole(RoleAgent); err != nil {
		return routing.Decision{ShouldPersist: false, Reason: err.Error()}, nil
	}
	event := types.Event{
		SchemaVersion: 1,
		Source:        source,
		Kind:          kind,
		Content:       content,
		Context:       evCtx,
		Timestamp:     time.Now().UTC(),
	}
	if err := event.Validate(); err != nil {
		return routing.Decision{}, &types.SchemaError{Detail: err.Error()}
	}
	dec, err := routing.Route(ctx, m.semantic, m.episodic, event, intent)
	if pe, ok := err.(*types.PermissionError); ok {
		return routing.Decision{ShouldPersist: false, Reason: pe.Reason}, nil
	}
	return dec, err
}

// RecordDecision records a new active decision (spec §6.3).
func (m *Memory) RecordDecision(ctx context.Context, title, target, rationale string, consequences []string) (routing.Decision, error) {
	if err := m.checkMinRole(RoleAgent); err != nil {
		return routing.Decision{}, err
	}
	dc := &types.DecisionContent{Title: title, Target: target, Rationale: rationale, Status: types.StatusActive, Consequences: consequences}
	event := types.Event{SchemaVersion: 1, Source: m.cfg.Source, Kind: types.KindDecision, Content: title, Context: dc, Timestamp: time.Now().UTC()}
	return routing.Route(ctx, m.semantic, m.episodic, event, nil)
}

// SupersedeDecision records a new decision that supersedes oldDecisionIDs
// (spec §6.3). Fails with a validation error when any listed id is not
// currently active for target.
func (m *Memory) SupersedeDecision(ctx context.Context, title, target, rationale string, oldDecisionIDs []string, consequences []string) (routing.Decision, error) {
	if err := m.checkMinRole(RoleAgent); err != nil {
		return routing.Decision{}, err
	}
	active, err := m.semantic.ListActiveConflicts(ctx, target)
	if err != nil {
		return routing.Decision{}, err
	}
	activeSet := make(map[string]bool, len(active))
	for _, d := range active {
		activeSet[d.ID] = true
	}
	for _, id := range oldDecisionIDs {
		if !activeSet[id] {
			return routing.Decision{}, fmt.Errorf("facade: supersede_decision: %q is not an active decision for target %q", id, target)
		}
	}

	dc := &types.DecisionContent{Title: title, Target: target, Rationale: rationale, Status: types.StatusActive, Consequences: consequences}
	event := types.Event{SchemaVersion: 1, Source: m.cfg.Source, Kind: types.KindDecision, Content: title, Context: dc, Timestamp: time.Now().UTC()}
	intent := &types.ResolutionIntent{ResolutionType: types.ResolutionSupersede, Rationale: rationale, TargetDecisionIDs: oldDecisionIDs}
	return routing.Route(ctx, m.semantic, m.episodic, event, intent)
}

// GetDecisions returns the ids of every decision record (spec §6.3).
func (m *Memory) GetDecisions(ctx context.Context) ([]string, error) {
	decisions, err := m.semantic.ListDecisions(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(decisions))
	for _, d := range decisions {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

// GetRecentEvents returns the most recent episodic rows (spec §6.3),
// optionally bounded to the [since, until) window.
func (m *Memory) GetRecentEvents(ctx context.Context, limit int, includeArchived bool, since, until *time.Time) ([]types.EpisodicRow, error) {
	status := types.EpisodicActive
	if includeArchived {
		status = ""
	}
	return m.episodic.Query(ctx, limit, status, since, until)
}

// SearchHit is one ranked result from SearchDecisions.
type SearchHit struct {
	ID      string
	Score   float64
	Content types.DecisionContent
}

// SearchDecisions delegates to the embedder and ranks decisions by cosine
// similarity (spec §6.3).
func (m *Memory) SearchDecisions(ctx context.Context, query string, limit int, mode SearchMode) ([]SearchHit, error) {
	if mode == "" {
		mode = ModeBalanced
	}
	decisions, err := m.semantic.ListDecisions(ctx)
	if err != nil {
		return nil, err
	}

	queryVec, err := m.cfg.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("facade: embed query: %w", err)
	}

	var candidates []semantic.Decision
	for _, d := range decisions {
		if mode == ModeStrict && d.Content.Status != types.StatusActive {
			continue
		}
		candidates = append(candidates, d)
	}

	if mode == ModeBalanced {
		candidates = dedupeLatestActivePerTarget(candidates)
	}

	hits := make([]SearchHit, 0, len(candidates))
	for _, d := range candidates {
		text := d.Content.Title + "\n" + d.Content.Rationale
		vec, err := m.cfg.Embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("facade: embed %s: %w", d.ID, err)
		}
		hits = append(hits, SearchHit{ID: d.ID, Score: embedder.CosineSimilarity(queryVec, vec), Content: d.Content})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// dedupeLatestActivePerTarget keeps, per target, the record with the
// lexicographically greatest id among active records (ids are
// timestamp-prefixed, so this is also the most recent); targets with no
// active record keep all their (historical) entries, since "balanced" mode
// only deduplicates active candidates, per spec §6.3.
func dedupeLatestActivePerTarget(decisions []semantic.Decision) []semantic.Decision {
	latestActive := map[string]semantic.Decision{}
	nonActive := map[string][]semantic.Decision{}
	for _, d := range decisions {
		if d.Content.Status != types.StatusActive {
			nonActive[d.Content.Target] = append(nonActive[d.Content.Target], d)
			continue
		}
		if cur, ok := latestActive[d.Content.Target]; !ok || d.ID > cur.ID {
			latestActive[d.Content.Target] = d
		}
	}
	var out []semantic.Decision
	for target, ds := range nonActive {
		if _, ok := latestActive[target]; !ok {
			out = append(out, ds...)
		}
	}
	for _, d := range latestActive {
		out = append(out, d)
	}
	return out
}

// RunDecay runs the Decay Engine over the episodic log (spec §6.3).
func (m *Memory) RunDecay(ctx context.Context, dryRun bool) (decay.Report, error) {
	rows, err := m.episodic.AllForDecay(ctx)
	if err != nil {
		return decay.Report{}, err
	}
	decisions, err := m.semantic.ListDecisions(ctx)
	if err != nil {
		return decay.Report{}, err
	}
	referenced := make(map[string]bool, len(decisions))
	for _, d := range decisions {
		referenced[d.ID] = true
	}

	report := decay.Evaluate(rows, time.Now().UTC(), m.cfg.DecayPolicy, referenced)
	if dryRun {
		return report, nil
	}
	if len(report.ToArchive) > 0 {
		if err := m.episodic.MarkArchived(ctx, report.ToArchive); err != nil {
			return decay.Report{}, err
		}
	}
	if len(report.ToPrune) > 0 {
		if err := m.episodic.PhysicalPrune(ctx, report.ToPrune); err != nil {
			return decay.Report{}, err
		}
	}
	return report, nil
}

// RunReflection runs one Reflection Engine cycle.
func (m *Memory) RunReflection(ctx context.Context) ([]string, error) {
	return m.reflection.Run(ctx)
}

// ListQuarantined lists files crash recovery set aside for manual review.
func (m *Memory) ListQuarantined() ([]string, error) {
	return m.semantic.ListQuarantined()
}

// ExportDecisions returns every decision-kind record, for the `export`
// CLI subcommand's JSONL dump.
func (m *Memory) ExportDecisions(ctx context.Context) ([]semantic.Decision, error) {
	return m.semantic.ListDecisions(ctx)
}

// ImportDecision replays a previously-exported record through the Semantic
// Store's normal save path (lock + index + version log intact, no bypass).
// Admin-only: a raw import can reintroduce records the routing/conflict
// engines never saw.
func (m *Memory) ImportDecision(ctx context.Context, event types.Event) (string, error) {
	if err := m.checkMinRole(RoleAdmin); err != nil {
		return "", err
	}
	return m.semantic.Save(ctx, event)
}

// AcceptProposal transitions a draft proposal into an active decision,
// wiring supersedes from its suggested_supersedes (spec §6.3). Admin-only.
//
// The draft record's own status flips draft->active (a transition the
// matrix already permits) to close out its hypothesis lifecycle, and a new
// decision record materializes the actual decision the rest of the system
// (I3/I4) reasons about — kind is immutable (I6), so a draft cannot become
// a decision record in place.
func (m *Memory) AcceptProposal(ctx context.Context, proposalID string) (routing.Decision, error) {
	if err := m.checkMinRole(RoleAdmin); err != nil {
		return routing.Decision{}, err
	}
	proposal, err := m.semantic.Get(ctx, proposalID)
	if err != nil {
		return routing.Decision{}, err
	}
	if proposal.Event.Kind != types.KindProposal {
		return routing.Decision{}, fmt.Errorf("facade: accept_proposal: %q is not a proposal", proposalID)
	}
	dc := proposal.Content

	event := types.Event{
		SchemaVersion: 1,
		Source:        m.cfg.Source,
		Kind:          types.KindDecision,
		Content:       dc.Title,
		Context:       &types.DecisionContent{Title: dc.Title, Target: dc.Target, Rationale: dc.Rationale, Status: types.StatusActive, Consequences: dc.Consequences},
		Timestamp:     time.Now().UTC(),
	}
	var intent *types.ResolutionIntent
	if len(dc.SuggestedSupersedes) > 0 {
		intent = &types.ResolutionIntent{ResolutionType: types.ResolutionSupersede, Rationale: dc.Rationale, TargetDecisionIDs: dc.SuggestedSupersedes}
	}

	dec, err := routing.Route(ctx, m.semantic, m.episodic, event, intent)
	if err != nil {
		return routing.Decision{}, err
	}

	active := types.StatusActive
	if err := m.semantic.UpdateDecision(ctx, proposalID, semantic.DecisionUpdates{Status: &active}, "accept proposal "+proposalID); err != nil {
		return routing.Decision{}, err
	}
	return dec, nil
}
