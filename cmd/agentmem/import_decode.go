package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sl4m3/agentmem/internal/types"
)

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// importedEvent mirrors types.Event's JSON shape with Context left raw so it
// can be decoded into the right concrete type once Kind is known.
type importedEvent struct {
	SchemaVersion int             `json:"schema_version"`
	Source        string          `json:"source"`
	Kind          string          `json:"kind"`
	Content       string          `json:"content"`
	Context       json.RawMessage `json:"context,omitempty"`
	Timestamp     string          `json:"timestamp"`
}

// decodeImportedEvent parses one exported event back into types.Event.
// Every record this CLI imports is a decision-kind record (export only
// emits decisions), so Context always decodes as a DecisionContent.
func decodeImportedEvent(raw json.RawMessage) (types.Event, error) {
	var ie importedEvent
	if err := json.Unmarshal(raw, &ie); err != nil {
		return types.Event{}, err
	}
	ts, err := parseTimestamp(ie.Timestamp)
	if err != nil {
		return types.Event{}, fmt.Errorf("timestamp: %w", err)
	}
	event := types.Event{
		SchemaVersion: ie.SchemaVersion,
		Source:        types.Source(ie.Source),
		Kind:          types.Kind(ie.Kind),
		Content:       ie.Content,
		Timestamp:     ts,
	}
	if len(ie.Context) > 0 {
		var dc types.DecisionContent
		if err := json.Unmarshal(ie.Context, &dc); err != nil {
			return types.Event{}, fmt.Errorf("context: %w", err)
		}
		event.Context = &dc
	}
	return event, nil
}
