// Package configstore persists the memory system's tunable policy —
// reflection thresholds, decay TTLs, trust boundary — as a small TOML
// document, independent of the CLI-facing viper configuration. Grounded on
// the teacher's cmd/bd/formula.go TOML encode/decode pattern
// (BurntSushi/toml, via a bytes.Buffer encoder and DecodeFile).
package configstore

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/sl4m3/agentmem/internal/decay"
	"github.com/sl4m3/agentmem/internal/reflection"
	"github.com/sl4m3/agentmem/internal/semantic"
)

// Document is the on-disk shape of a policy file.
type Document struct {
	TrustBoundary string `toml:"trust_boundary"`

	ReflectionReadyThreshold    float64 `toml:"reflection_ready_threshold"`
	ReflectionObservationWindow string  `toml:"reflection_observation_window"`
	ReflectionErrorThreshold    int     `toml:"reflection_error_threshold"`
	ReflectionDecayRate         float64 `toml:"reflection_decay_rate"`
	ReflectionMinConfidence     float64 `toml:"reflection_min_confidence"`

	DecayTTL string `toml:"decay_ttl"`
}

// FromDefaults builds a Document from the package defaults, suitable as a
// starting point for `agentmem init`-style first writes.
func FromDefaults() Document {
	rp := reflection.DefaultPolicy()
	return Document{
		TrustBoundary:               string(semantic.TrustAgentWithIntent),
		ReflectionReadyThreshold:    rp.ReadyThreshold,
		ReflectionObservationWindow: rp.ObservationWindow.String(),
		ReflectionErrorThreshold:    rp.ErrorThreshold,
		ReflectionDecayRate:         rp.DecayRate,
		ReflectionMinConfidence:     rp.MinConfidence,
		DecayTTL:                    (30 * 24 * time.Hour).String(),
	}
}

// Load reads a Document from path. If path does not exist, the defaults are
// returned.
func Load(path string) (Document, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return FromDefaults(), nil
	}
	var doc Document
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return Document{}, fmt.Errorf("configstore: decode %s: %w", path, err)
	}
	return doc, nil
}

// Save writes doc to path as TOML.
func Save(path string, doc Document) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return fmt.Errorf("configstore: encode: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("configstore: write %s: %w", path, err)
	}
	return nil
}

// ReflectionPolicy converts the document into a reflection.Policy, falling
// back to package defaults for any zero-valued or unparsable duration field.
func (d Document) ReflectionPolicy() reflection.Policy {
	defaults := reflection.DefaultPolicy()
	p := reflection.Policy{
		ReadyThreshold: d.ReflectionReadyThreshold,
		ErrorThreshold: d.ReflectionErrorThreshold,
		DecayRate:      d.ReflectionDecayRate,
		MinConfidence:  d.ReflectionMinConfidence,
	}
	if p.ReadyThreshold == 0 {
		p.ReadyThreshold = defaults.ReadyThreshold
	}
	if p.ErrorThreshold == 0 {
		p.ErrorThreshold = defaults.ErrorThreshold
	}
	if p.DecayRate == 0 {
		p.DecayRate = defaults.DecayRate
	}
	if p.MinConfidence == 0 {
		p.MinConfidence = defaults.MinConfidence
	}
	if w, err := time.ParseDuration(d.ReflectionObservationWindow); err == nil && w > 0 {
		p.ObservationWindow = w
	} else {
		p.ObservationWindow = defaults.ObservationWindow
	}
	return p
}

// DecayPolicy converts the document into a decay.Policy.
func (d Document) DecayPolicy() decay.Policy {
	if ttl, err := time.ParseDuration(d.DecayTTL); err == nil && ttl > 0 {
		return decay.Policy{TTL: ttl}
	}
	return decay.Policy{TTL: 30 * 24 * time.Hour}
}

// TrustBoundaryValue converts the document's trust_boundary string into a
// semantic.TrustBoundary, defaulting to agent_with_intent for anything else.
func (d Document) TrustBoundaryValue() semantic.TrustBoundary {
	if semantic.TrustBoundary(d.TrustBoundary) == semantic.TrustHumanOnly {
		return semantic.TrustHumanOnly
	}
	return semantic.TrustAgentWithIntent
}
