package mcptool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/agentperch/perchgate/internal/domain/policy"
	"github.com/agentperch/perchgate/internal/service"
)

// EvaluateInput defines parameters for the perchgate_evaluate tool.
type EvaluateInput struct {
	Tool   string          `json:"tool" jsonschema:"name of the mutating tool about to be called"`
	Params json.RawMessage `json:"params,omitempty" jsonschema:"tool call parameters as a JSON object"`
	Source string          `json:"source,omitempty" jsonschema:"origin of the mutation (agent_tool/scheduler/api)"`
}

// EvaluateOutput contains the gateway decision.
type EvaluateOutput struct {
	Decision              string `json:"decision"`
	CorrelationID         string `json:"correlation_id,omitempty"`
	Reason                string `json:"reason,omitempty"`
	RuleID                string `json:"rule_id,omitempty"`
	ResetAt               string `json:"reset_at,omitempty"`
	QueueID               int64  `json:"queue_id,omitempty"`
	OriginalCorrelationID string `json:"original_correlation_id,omitempty"`
	CachedResult          string `json:"cached_result,omitempty"`
}

// CompleteInput defines parameters for the perchgate_complete tool.
type CompleteInput struct {
	CorrelationID string `json:"correlation_id" jsonschema:"correlation_id from a proceed decision"`
	Outcome       string `json:"outcome" jsonschema:"success or failure"`
	ResultSummary string `json:"result_summary,omitempty" jsonschema:"short description of what happened, e.g. the created tweet id"`
	RollbackHint  string `json:"rollback_hint,omitempty" jsonschema:"how to undo the mutation, e.g. delete_tweet <id>"`
	ErrorMessage  string `json:"error_message,omitempty" jsonschema:"failure detail when outcome is failure"`
	ElapsedMS     int64  `json:"elapsed_ms,omitempty" jsonschema:"time the mutation took in milliseconds"`
}

// CompleteOutput confirms the audit record was finalized.
type CompleteOutput struct {
	CorrelationID string `json:"correlation_id"`
	Status        string `json:"status"`
}

// PendingInput is empty.
type PendingInput struct{}

// PendingOutput lists issued tickets awaiting completion.
type PendingOutput struct {
	Pending []PendingItem `json:"pending"`
}

// PendingItem describes one uncompleted ticket.
type PendingItem struct {
	CorrelationID string `json:"correlation_id"`
	Tool          string `json:"tool"`
	IssuedAt      string `json:"issued_at"`
}

// PolicyInput is empty.
type PolicyInput struct{}

// PolicyOutput describes the active policy snapshot.
type PolicyOutput struct {
	Version    string           `json:"version"`
	Template   string           `json:"template"`
	Mode       string           `json:"mode"`
	Enforcing  bool             `json:"enforcing"`
	DryRun     bool             `json:"dry_run"`
	Rules      []PolicyRuleItem `json:"rules"`
	RateLimits []RateLimitItem  `json:"rate_limits"`
	HourlyCap  int              `json:"legacy_hourly_cap,omitempty"`
}

// PolicyRuleItem is one effective rule in evaluation order.
type PolicyRuleItem struct {
	ID       string `json:"id"`
	Priority int    `json:"priority"`
	Action   string `json:"action"`
	Label    string `json:"label,omitempty"`
}

// RateLimitItem is one effective rate limit.
type RateLimitItem struct {
	Dimension string `json:"dimension"`
	Match     string `json:"match,omitempty"`
	MaxCount  int    `json:"max_count"`
	Period    string `json:"period"`
}

func (s *Server) handleEvaluate(ctx context.Context, req *mcpsdk.CallToolRequest, input EvaluateInput) (*mcpsdk.CallToolResult, EvaluateOutput, error) {
	if input.Tool == "" {
		return &mcpsdk.CallToolResult{IsError: true}, EvaluateOutput{}, fmt.Errorf("tool is required")
	}
	source := input.Source
	if source == "" {
		source = "agent_tool"
	}

	decision, err := s.gateway.Evaluate(ctx, service.Request{
		Config:   s.cfg,
		Mode:     s.mode,
		ToolName: input.Tool,
		Params:   input.Params,
		Source:   source,
	})
	if err != nil {
		s.logger.Error("evaluation failed", "tool", input.Tool, "error", err)
		return &mcpsdk.CallToolResult{IsError: true}, EvaluateOutput{}, err
	}

	out := EvaluateOutput{
		Decision: string(decision.Kind),
		Reason:   decision.Reason,
		RuleID:   decision.RuleID,
	}

	switch decision.Kind {
	case service.DecisionProceed:
		s.trackTicket(decision.Ticket)
		out.CorrelationID = decision.Ticket.CorrelationID
		return nil, out, nil

	case service.DecisionDenied:
		if decision.ResetAt != nil {
			out.ResetAt = decision.ResetAt.UTC().Format(time.RFC3339)
		}
		// Denials are reported as error results so agent loops treat them
		// as a blocked call, not a successful one.
		return &mcpsdk.CallToolResult{IsError: true}, out, nil

	case service.DecisionRoutedToApproval:
		out.QueueID = decision.QueueID
		return nil, out, nil

	case service.DecisionDuplicate:
		out.OriginalCorrelationID = decision.OriginalCorrelationID
		out.CachedResult = decision.CachedResult
		return nil, out, nil

	default: // dry_run
		return nil, out, nil
	}
}

func (s *Server) handleComplete(ctx context.Context, req *mcpsdk.CallToolRequest, input CompleteInput) (*mcpsdk.CallToolResult, CompleteOutput, error) {
	ticket, ok := s.takeTicket(input.CorrelationID)
	if !ok {
		return &mcpsdk.CallToolResult{IsError: true}, CompleteOutput{},
			fmt.Errorf("no pending mutation with correlation_id %q", input.CorrelationID)
	}

	elapsed := time.Duration(input.ElapsedMS) * time.Millisecond
	var err error
	switch input.Outcome {
	case "success":
		err = s.gateway.CompleteSuccess(ctx, ticket, input.ResultSummary, input.RollbackHint, elapsed)
	case "failure":
		err = s.gateway.CompleteFailure(ctx, ticket, input.ErrorMessage, elapsed)
	default:
		// Put the ticket back so a malformed call does not orphan it.
		s.trackTicket(ticket)
		return &mcpsdk.CallToolResult{IsError: true}, CompleteOutput{},
			fmt.Errorf("outcome must be success or failure, got %q", input.Outcome)
	}
	if err != nil {
		s.logger.Error("completion failed",
			"correlation_id", input.CorrelationID, "outcome", input.Outcome, "error", err)
		return &mcpsdk.CallToolResult{IsError: true}, CompleteOutput{}, err
	}

	return nil, CompleteOutput{
		CorrelationID: input.CorrelationID,
		Status:        input.Outcome,
	}, nil
}

func (s *Server) handlePending(ctx context.Context, req *mcpsdk.CallToolRequest, input PendingInput) (*mcpsdk.CallToolResult, PendingOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := PendingOutput{Pending: []PendingItem{}}
	for id, pt := range s.pending {
		out.Pending = append(out.Pending, PendingItem{
			CorrelationID: id,
			Tool:          pt.ticket.ToolName,
			IssuedAt:      pt.issued.UTC().Format(time.RFC3339),
		})
	}
	return nil, out, nil
}

func (s *Server) handlePolicy(ctx context.Context, req *mcpsdk.CallToolRequest, input PolicyInput) (*mcpsdk.CallToolResult, PolicyOutput, error) {
	out := PolicyOutput{
		Version:   s.cfg.Version,
		Template:  string(s.cfg.Template),
		Mode:      string(s.mode),
		Enforcing: s.cfg.EnforceForMutations,
		DryRun:    s.cfg.DryRun,
		HourlyCap: s.cfg.LegacyHourlyCap,
	}

	for _, r := range policy.BuildEffectiveRules(s.cfg, s.mode) {
		out.Rules = append(out.Rules, PolicyRuleItem{
			ID:       r.ID,
			Priority: r.Priority,
			Action:   string(r.Action.Kind),
			Label:    r.Label,
		})
	}
	for _, l := range s.cfg.EffectiveLimits() {
		out.RateLimits = append(out.RateLimits, RateLimitItem{
			Dimension: string(l.Dimension),
			Match:     l.MatchValue,
			MaxCount:  l.MaxCount,
			Period:    l.Period.String(),
		})
	}
	return nil, out, nil
}
