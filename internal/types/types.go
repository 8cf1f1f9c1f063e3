// Package types defines the data model shared across the memory store:
// events, the typed decision context they may carry, on-disk records,
// episodic rows, and resolution intents.
package types

import (
	"fmt"
	"time"
)

// Source identifies who originated an Event.
type Source string

const (
	SourceUser   Source = "user"
	SourceAgent  Source = "agent"
	SourceSystem Source = "system"
)

// IsValid reports whether s is one of the known sources.
func (s Source) IsValid() bool {
	switch s {
	case SourceUser, SourceAgent, SourceSystem:
		return true
	}
	return false
}

// Kind identifies the category of an Event.
type Kind string

const (
	KindDecision     Kind = "decision"
	KindError        Kind = "error"
	KindConfigChange Kind = "config_change"
	KindAssumption   Kind = "assumption"
	KindConstraint   Kind = "constraint"
	KindResult       Kind = "result"
	KindProposal     Kind = "proposal"
)

// IsValid reports whether k is one of the known kinds.
func (k Kind) IsValid() bool {
	switch k {
	case KindDecision, KindError, KindConfigChange, KindAssumption, KindConstraint, KindResult, KindProposal:
		return true
	}
	return false
}

// HasDecisionContent reports whether events of this kind carry a
// DecisionContent context rather than a free-form mapping.
func (k Kind) HasDecisionContent() bool {
	switch k {
	case KindDecision, KindConstraint, KindAssumption, KindProposal:
		return true
	}
	return false
}

// SemanticKinds are the kinds the Routing Engine persists to the semantic
// store when a save is warranted; everything else goes to the episodic log.
var SemanticKinds = map[Kind]bool{
	KindDecision:   true,
	KindConstraint: true,
}

// Status is the lifecycle state of a DecisionContent.
type Status string

const (
	StatusActive      Status = "active"
	StatusSuperseded  Status = "superseded"
	StatusDeprecated  Status = "deprecated"
	StatusDraft       Status = "draft"
	StatusRejected    Status = "rejected"
	StatusFalsified   Status = "falsified"
)

// IsValid reports whether st is one of the known statuses.
func (st Status) IsValid() bool {
	switch st {
	case StatusActive, StatusSuperseded, StatusDeprecated, StatusDraft, StatusRejected, StatusFalsified:
		return true
	}
	return false
}

// IsTerminal reports whether st permits no further transitions (§4.4).
func (st Status) IsTerminal() bool {
	switch st {
	case StatusSuperseded, StatusRejected, StatusDeprecated, StatusFalsified:
		return true
	}
	return false
}

// DefaultStatus returns the default status for a record of the given kind,
// per spec §3: "active" for decisions, "draft" for proposals.
func DefaultStatus(k Kind) Status {
	if k == KindProposal {
		return StatusDraft
	}
	return StatusActive
}

// ResolutionType identifies how a ResolutionIntent addresses a conflict.
type ResolutionType string

const (
	ResolutionSupersede ResolutionType = "supersede"
	ResolutionDeprecate ResolutionType = "deprecate"
	ResolutionAbort     ResolutionType = "abort"
)

// IsValid reports whether rt is one of the known resolution types.
func (rt ResolutionType) IsValid() bool {
	switch rt {
	case ResolutionSupersede, ResolutionDeprecate, ResolutionAbort:
		return true
	}
	return false
}

// DecisionContent is the typed context carried by decision/constraint/
// assumption/proposal kind events (spec §3).
type DecisionContent struct {
	Title        string   `yaml:"title" json:"title"`
	Target       string   `yaml:"target" json:"target"`
	Rationale    string   `yaml:"rationale" json:"rationale"`
	Status       Status   `yaml:"status,omitempty" json:"status,omitempty"`
	Consequences []string `yaml:"consequences,omitempty" json:"consequences,omitempty"`
	Supersedes   []string `yaml:"supersedes,omitempty" json:"supersedes,omitempty"`
	SupersededBy string   `yaml:"superseded_by,omitempty" json:"superseded_by,omitempty"`

	// Proposal-specific fields.
	Confidence               float64  `yaml:"confidence,omitempty" json:"confidence,omitempty"`
	HitCount                 int      `yaml:"hit_count,omitempty" json:"hit_count,omitempty"`
	MissCount                int      `yaml:"miss_count,omitempty" json:"miss_count,omitempty"`
	EvidenceEventIDs         []string `yaml:"evidence_event_ids,omitempty" json:"evidence_event_ids,omitempty"`
	CounterEvidenceEventIDs  []string `yaml:"counter_evidence_event_ids,omitempty" json:"counter_evidence_event_ids,omitempty"`
	CompetingProposalIDs     []string `yaml:"competing_proposal_ids,omitempty" json:"competing_proposal_ids,omitempty"`
	FirstObservedAt          *time.Time `yaml:"first_observed_at,omitempty" json:"first_observed_at,omitempty"`
	LastObservedAt           *time.Time `yaml:"last_observed_at,omitempty" json:"last_observed_at,omitempty"`
	ReadyForReview           bool     `yaml:"ready_for_review,omitempty" json:"ready_for_review,omitempty"`

	// SuggestedSupersedes is populated on proposals to record which active
	// decisions accept_proposal should supersede if the proposal is accepted.
	SuggestedSupersedes []string `yaml:"suggested_supersedes,omitempty" json:"suggested_supersedes,omitempty"`
}

// Validate enforces I1 on the required textual fields.
func (d DecisionContent) Validate() error {
	if d.Title == "" {
		return fmt.Errorf("decision content: title is required")
	}
	if d.Target == "" {
		return fmt.Errorf("decision content: target is required")
	}
	if d.Rationale == "" {
		return fmt.Errorf("decision content: rationale is required")
	}
	if d.Status != "" && !d.Status.IsValid() {
		return fmt.Errorf("decision content: invalid status %q", d.Status)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("decision content: confidence %v out of [0,1]", d.Confidence)
	}
	return nil
}

// Event is the unit ingested by the memory system (spec §3). Events are
// immutable once created.
type Event struct {
	SchemaVersion int            `yaml:"schema_version" json:"schema_version"`
	Source        Source         `yaml:"source" json:"source"`
	Kind          Kind           `yaml:"kind" json:"kind"`
	Content       string         `yaml:"content" json:"content"`
	Context       any            `yaml:"context,omitempty" json:"context,omitempty"`
	Timestamp     time.Time      `yaml:"timestamp" json:"timestamp"`
}

// DecisionContext returns Context as a *DecisionContent, or nil if this
// event's kind does not carry one or Context is not of that shape.
func (e Event) DecisionContext() *DecisionContent {
	switch c := e.Context.(type) {
	case *DecisionContent:
		return c
	case DecisionContent:
		return &c
	default:
		return nil
	}
}

// Validate enforces I1: schema conformance and non-empty required fields.
func (e Event) Validate() error {
	if e.SchemaVersion <= 0 {
		return fmt.Errorf("event: schema_version must be positive")
	}
	if !e.Source.IsValid() {
		return fmt.Errorf("event: invalid source %q", e.Source)
	}
	if !e.Kind.IsValid() {
		return fmt.Errorf("event: invalid kind %q", e.Kind)
	}
	if e.Content == "" {
		return fmt.Errorf("event: content is required")
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("event: timestamp is required")
	}
	if e.Kind.HasDecisionContent() {
		dc := e.DecisionContext()
		if dc == nil {
			return fmt.Errorf("event: kind %q requires a DecisionContent context", e.Kind)
		}
		if err := dc.Validate(); err != nil {
			return fmt.Errorf("event: %w", err)
		}
	}
	return nil
}

// Record is an on-disk artifact carrying one Event plus a human-readable
// body. ID is the globally-unique, time-stamped, kind-prefixed filename.
type Record struct {
	ID    string
	Event Event
	Body  string
}

// EpisodicStatus is the lifecycle state of an EpisodicRow.
type EpisodicStatus string

const (
	EpisodicActive   EpisodicStatus = "active"
	EpisodicArchived EpisodicStatus = "archived"
)

// EpisodicRow is one ingested event plus bookkeeping fields (spec §3).
type EpisodicRow struct {
	ID                int64
	Event             Event
	Status            EpisodicStatus
	LinkedSemanticID  string
	IngestedAt        time.Time
}

// ResolutionIntent accompanies an event through the Routing Engine when the
// caller already knows how to resolve any conflicts the event will raise.
type ResolutionIntent struct {
	ResolutionType    ResolutionType
	Rationale         string
	TargetDecisionIDs []string
}

// Validate checks that the intent is internally well-formed (not that it
// covers any particular conflict set — that is ResolutionEngine's job).
func (ri ResolutionIntent) Validate() error {
	if !ri.ResolutionType.IsValid() {
		return fmt.Errorf("resolution intent: invalid resolution_type %q", ri.ResolutionType)
	}
	if ri.ResolutionType != ResolutionAbort && ri.Rationale == "" {
		return fmt.Errorf("resolution intent: rationale is required")
	}
	return nil
}
