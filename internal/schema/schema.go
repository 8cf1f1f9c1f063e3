// Package schema hand-describes each RPC operation's JSON Schema for the
// export-schema CLI command. Full tool-schema generation from Go types is an
// explicitly out-of-scope collaborator surface, so this is a small static
// table rather than a reflection-driven generator (see DESIGN.md).
package schema

import "github.com/sl4m3/agentmem/internal/rpc"

// Operation describes one RPC operation's argument shape.
type Operation struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ArgsSchema  any    `json:"args_schema"`
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func arrayOfStrings(desc string) map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": desc}
}

// Table is every RPC operation's schema, one entry per operation name.
var Table = []Operation{
	{
		Name:        rpc.OpProcessEvent,
		Description: "Route an arbitrary event through the Routing Engine.",
		ArgsSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"source":  stringProp("one of user, agent, system"),
				"kind":    stringProp("one of decision, error, config_change, assumption, constraint, result, proposal"),
				"content": stringProp("free-form summary text"),
				"context": map[string]any{"type": "object", "description": "kind-specific structured payload"},
				"intent":  map[string]any{"type": "object", "description": "optional resolution intent covering target conflicts"},
			},
			"required": []string{"source", "kind", "content"},
		},
	},
	{
		Name:        rpc.OpRecordDecision,
		Description: "Record a new active decision.",
		ArgsSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title":        stringProp("short decision title"),
				"target":       stringProp("the subject this decision governs"),
				"rationale":    stringProp("why this decision was made"),
				"consequences": arrayOfStrings("known effects of this decision"),
			},
			"required": []string{"title", "target", "rationale"},
		},
	},
	{
		Name:        rpc.OpSupersedeDecision,
		Description: "Record a decision that supersedes one or more currently active decisions for the same target.",
		ArgsSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title":            stringProp("short decision title"),
				"target":           stringProp("the subject this decision governs"),
				"rationale":        stringProp("why the prior decision(s) no longer hold"),
				"old_decision_ids": arrayOfStrings("ids that must currently be active for target"),
				"consequences":     arrayOfStrings("known effects of this decision"),
			},
			"required": []string{"title", "target", "rationale", "old_decision_ids"},
		},
	},
	{
		Name:        rpc.OpGetDecisions,
		Description: "List the ids of every decision record.",
		ArgsSchema:  map[string]any{"type": "object", "properties": map[string]any{}},
	},
	{
		Name:        rpc.OpGetRecentEvents,
		Description: "List the most recent episodic rows.",
		ArgsSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"limit":            map[string]any{"type": "integer", "description": "0 means no limit"},
				"include_archived": map[string]any{"type": "boolean"},
				"since":            stringProp("RFC3339 lower bound; the CLI resolves natural-language --since into this"),
				"until":            stringProp("RFC3339 upper bound; the CLI resolves natural-language --until into this"),
			},
		},
	},
	{
		Name:        rpc.OpSearchDecisions,
		Description: "Semantically rank decisions against a query.",
		ArgsSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": stringProp("free-form search text"),
				"limit": map[string]any{"type": "integer"},
				"mode":  stringProp("one of strict, balanced, audit"),
			},
			"required": []string{"query"},
		},
	},
	{
		Name:        rpc.OpRunDecay,
		Description: "Evaluate TTL and reference-count decay over the episodic log.",
		ArgsSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"dry_run": map[string]any{"type": "boolean"}},
		},
	},
	{
		Name:        rpc.OpRunReflection,
		Description: "Run one reflection cycle: distill, cluster, evaluate, generate, decay.",
		ArgsSchema:  map[string]any{"type": "object", "properties": map[string]any{}},
	},
	{
		Name:        rpc.OpAcceptProposal,
		Description: "Transition a draft proposal into an active decision. Admin-only.",
		ArgsSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"proposal_id": stringProp("id of a kind=proposal record")},
			"required":   []string{"proposal_id"},
		},
	},
	{
		Name:        rpc.OpListQuarantined,
		Description: "List filenames set aside by crash recovery for manual review.",
		ArgsSchema:  map[string]any{"type": "object", "properties": map[string]any{}},
	},
}
