// Package recordio maps typed Events onto the generic record-file envelope
// from internal/codec: filename generation, header field naming, and the
// DecisionContent-vs-free-form-map polymorphism described in spec §9.
package recordio

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/sl4m3/agentmem/internal/codec"
	"github.com/sl4m3/agentmem/internal/types"
)

// NewID generates a globally-unique, time-stamped, kind-prefixed filename
// for a record of the given kind, per the on-disk layout in spec §6.1:
// "<kind>_<YYYYMMDD_HHMMSS_ffffff>_<8-hex>.md".
func NewID(k types.Kind, now time.Time) (string, error) {
	suffix, err := randomHex(4)
	if err != nil {
		return "", fmt.Errorf("recordio: generate suffix: %w", err)
	}
	ts := now.UTC()
	return fmt.Sprintf("%s_%s_%06d_%s.md", k, ts.Format("20060102_150405"), ts.Nanosecond()/1000, suffix), nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Encode renders an Event and body into full record-file text (header +
// body), ready to be written to disk under the filename returned by NewID.
func Encode(e types.Event, body string) (string, error) {
	h := codec.NewHeader()
	if err := h.Set("schema_version", e.SchemaVersion); err != nil {
		return "", err
	}
	if err := h.Set("source", string(e.Source)); err != nil {
		return "", err
	}
	if err := h.Set("kind", string(e.Kind)); err != nil {
		return "", err
	}
	if err := h.Set("content", e.Content); err != nil {
		return "", err
	}
	if err := h.Set("timestamp", e.Timestamp.UTC().Format(time.RFC3339Nano)); err != nil {
		return "", err
	}
	if e.Context != nil {
		if err := h.Set("context", e.Context); err != nil {
			return "", err
		}
	}
	return codec.Stringify(h, body)
}

// Decode parses full record-file text back into an Event and body. When the
// event's kind carries a DecisionContent, Context is decoded as one;
// otherwise it is left as a generic map[string]any.
func Decode(text string) (types.Event, string, error) {
	h, body, err := codec.Parse(text)
	if err != nil {
		return types.Event{}, "", err
	}
	var e types.Event

	if _, err := h.Get("schema_version", &e.SchemaVersion); err != nil {
		return types.Event{}, "", err
	}
	var source, kind, timestamp string
	if _, err := h.Get("source", &source); err != nil {
		return types.Event{}, "", err
	}
	e.Source = types.Source(source)
	if _, err := h.Get("kind", &kind); err != nil {
		return types.Event{}, "", err
	}
	e.Kind = types.Kind(kind)
	if _, err := h.Get("content", &e.Content); err != nil {
		return types.Event{}, "", err
	}
	if _, err := h.Get("timestamp", &timestamp); err != nil {
		return types.Event{}, "", err
	}
	if timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, timestamp)
		if err != nil {
			return types.Event{}, "", fmt.Errorf("recordio: parse timestamp: %w", err)
		}
		e.Timestamp = ts
	}

	if e.Kind.HasDecisionContent() {
		var dc types.DecisionContent
		if ok, err := h.Get("context", &dc); err != nil {
			return types.Event{}, "", err
		} else if ok {
			e.Context = &dc
		}
	} else {
		var m map[string]any
		if ok, err := h.Get("context", &m); err != nil {
			return types.Event{}, "", err
		} else if ok {
			e.Context = m
		}
	}

	return e, body, nil
}

// KindFromID extracts the kind prefix from a record id/filename, e.g.
// "decision_20250101_123456_000000_abcd1234.md" -> "decision".
func KindFromID(id string) types.Kind {
	base := strings.TrimSuffix(id, ".md")
	if idx := strings.IndexByte(base, '_'); idx >= 0 {
		return types.Kind(base[:idx])
	}
	return ""
}

// DefaultBody renders the spec §6.2 body template for a decision-bearing
// event.
func DefaultBody(e types.Event) string {
	dc := e.DecisionContext()
	if dc == nil {
		return fmt.Sprintf("Recorded from source: %s\n", e.Source)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", dc.Title)
	fmt.Fprintf(&b, "Recorded from source: %s\n\n", e.Source)
	b.WriteString("## Rationale\n")
	b.WriteString(dc.Rationale)
	b.WriteString("\n")
	return b.String()
}
