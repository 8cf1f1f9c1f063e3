// Package rpc is a stdio JSON protocol server exposing facade.Memory's
// operations to an external caller (an agent runtime or another process),
// one newline-delimited Request/Response pair at a time. Grounded on the
// teacher's internal/rpc/protocol.go Request/Response envelope and operation
// constant style, scaled down to the facade's operation set and moved from
// a Unix socket daemon onto stdio.
package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/sl4m3/agentmem/internal/facade"
	"github.com/sl4m3/agentmem/internal/types"
)

// Operation constants, one per facade.Memory method exposed over RPC.
const (
	OpProcessEvent      = "process_event"
	OpRecordDecision    = "record_decision"
	OpSupersedeDecision = "supersede_decision"
	OpGetDecisions      = "get_decisions"
	OpGetRecentEvents   = "get_recent_events"
	OpSearchDecisions   = "search_decisions"
	OpRunDecay          = "run_decay"
	OpRunReflection     = "run_reflection"
	OpAcceptProposal    = "accept_proposal"
	OpListQuarantined   = "list_quarantined"
)

// Request is one RPC call from client to server.
type Request struct {
	Operation string          `json:"operation"`
	Args      json.RawMessage `json:"args"`
	RequestID string          `json:"request_id,omitempty"`
}

// Response is the server's reply to a Request. RequestID echoes the
// request's, generated server-side if the caller did not supply one.
type Response struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

type processEventArgs struct {
	Source  string          `json:"source"`
	Kind    string          `json:"kind"`
	Content string          `json:"content"`
	Context json.RawMessage `json:"context,omitempty"`
	Intent  *intentArgs     `json:"intent,omitempty"`
}

type intentArgs struct {
	ResolutionType    string   `json:"resolution_type"`
	Rationale         string   `json:"rationale"`
	TargetDecisionIDs []string `json:"target_decision_ids,omitempty"`
}

type recordDecisionArgs struct {
	Title        string   `json:"title"`
	Target       string   `json:"target"`
	Rationale    string   `json:"rationale"`
	Consequences []string `json:"consequences,omitempty"`
}

type supersedeDecisionArgs struct {
	Title          string   `json:"title"`
	Target         string   `json:"target"`
	Rationale      string   `json:"rationale"`
	OldDecisionIDs []string `json:"old_decision_ids"`
	Consequences   []string `json:"consequences,omitempty"`
}

type getRecentEventsArgs struct {
	Limit           int    `json:"limit,omitempty"`
	IncludeArchived bool   `json:"include_archived,omitempty"`
	Since           string `json:"since,omitempty"` // RFC3339; use the CLI's --since for natural-language input
	Until           string `json:"until,omitempty"`
}

type searchDecisionsArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
	Mode  string `json:"mode,omitempty"`
}

type runDecayArgs struct {
	DryRun bool `json:"dry_run,omitempty"`
}

type acceptProposalArgs struct {
	ProposalID string `json:"proposal_id"`
}

// Server dispatches newline-delimited Request/Response JSON over an
// io.Reader/io.Writer pair against a single facade.Memory instance.
type Server struct {
	memory *facade.Memory
}

// NewServer constructs a Server bound to memory.
func NewServer(memory *facade.Memory) *Server {
	return &Server{memory: memory}
}

// Serve reads newline-delimited Requests from r and writes newline-delimited
// Responses to w until r returns io.EOF.
func (s *Server) Serve(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		resp := s.handle(line)
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("rpc: encode response: %w", err)
		}
	}
	return scanner.Err()
}

func (s *Server) handle(line []byte) Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Response{Success: false, Error: fmt.Sprintf("rpc: malformed request: %v", err)}
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	data, err := s.dispatch(req)
	if err != nil {
		return Response{Success: false, Error: err.Error(), RequestID: req.RequestID}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Response{Success: false, Error: fmt.Sprintf("rpc: marshal result: %v", err), RequestID: req.RequestID}
	}
	return Response{Success: true, Data: raw, RequestID: req.RequestID}
}

func (s *Server) dispatch(req Request) (any, error) {
	ctx := context.Background()

	switch req.Operation {
	case OpProcessEvent:
		var a processEventArgs
		if err := json.Unmarshal(req.Args, &a); err != nil {
			return nil, fmt.Errorf("rpc: %s: bad args: %w", req.Operation, err)
		}
		var evCtx any
		if len(a.Context) > 0 {
			if err := json.Unmarshal(a.Context, &evCtx); err != nil {
				return nil, fmt.Errorf("rpc: %s: bad context: %w", req.Operation, err)
			}
		}
		intent := toResolutionIntent(a.Intent)
		return s.memory.ProcessEvent(ctx, types.Source(a.Source), types.Kind(a.Kind), a.Content, evCtx, intent)

	case OpRecordDecision:
		var a recordDecisionArgs
		if err := json.Unmarshal(req.Args, &a); err != nil {
			return nil, fmt.Errorf("rpc: %s: bad args: %w", req.Operation, err)
		}
		return s.memory.RecordDecision(ctx, a.Title, a.Target, a.Rationale, a.Consequences)

	case OpSupersedeDecision:
		var a supersedeDecisionArgs
		if err := json.Unmarshal(req.Args, &a); err != nil {
			return nil, fmt.Errorf("rpc: %s: bad args: %w", req.Operation, err)
		}
		return s.memory.SupersedeDecision(ctx, a.Title, a.Target, a.Rationale, a.OldDecisionIDs, a.Consequences)

	case OpGetDecisions:
		return s.memory.GetDecisions(ctx)

	case OpGetRecentEvents:
		var a getRecentEventsArgs
		if len(req.Args) > 0 {
			if err := json.Unmarshal(req.Args, &a); err != nil {
				return nil, fmt.Errorf("rpc: %s: bad args: %w", req.Operation, err)
			}
		}
		since, err := parseRFC3339Ptr(a.Since)
		if err != nil {
			return nil, fmt.Errorf("rpc: %s: bad since: %w", req.Operation, err)
		}
		until, err := parseRFC3339Ptr(a.Until)
		if err != nil {
			return nil, fmt.Errorf("rpc: %s: bad until: %w", req.Operation, err)
		}
		return s.memory.GetRecentEvents(ctx, a.Limit, a.IncludeArchived, since, until)

	case OpSearchDecisions:
		var a searchDecisionsArgs
		if err := json.Unmarshal(req.Args, &a); err != nil {
			return nil, fmt.Errorf("rpc: %s: bad args: %w", req.Operation, err)
		}
		return s.memory.SearchDecisions(ctx, a.Query, a.Limit, facade.SearchMode(a.Mode))

	case OpRunDecay:
		var a runDecayArgs
		if len(req.Args) > 0 {
			if err := json.Unmarshal(req.Args, &a); err != nil {
				return nil, fmt.Errorf("rpc: %s: bad args: %w", req.Operation, err)
			}
		}
		return s.memory.RunDecay(ctx, a.DryRun)

	case OpRunReflection:
		return s.memory.RunReflection(ctx)

	case OpAcceptProposal:
		var a acceptProposalArgs
		if err := json.Unmarshal(req.Args, &a); err != nil {
			return nil, fmt.Errorf("rpc: %s: bad args: %w", req.Operation, err)
		}
		return s.memory.AcceptProposal(ctx, a.ProposalID)

	case OpListQuarantined:
		return s.memory.ListQuarantined()

	default:
		return nil, fmt.Errorf("rpc: unknown operation %q", req.Operation)
	}
}

// parseRFC3339Ptr parses an RFC3339 timestamp, returning nil for an empty
// string. Natural-language values are resolved to RFC3339 by the CLI before
// reaching the wire protocol.
func parseRFC3339Ptr(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func toResolutionIntent(a *intentArgs) *types.ResolutionIntent {
	if a == nil {
		return nil
	}
	return &types.ResolutionIntent{
		ResolutionType:    types.ResolutionType(a.ResolutionType),
		Rationale:         a.Rationale,
		TargetDecisionIDs: a.TargetDecisionIDs,
	}
}
