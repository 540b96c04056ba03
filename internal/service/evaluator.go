// Package service contains the mutation governance application services.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	celeval "github.com/agentperch/perchgate/internal/adapter/outbound/cel"
	"github.com/agentperch/perchgate/internal/domain/audit"
	"github.com/agentperch/perchgate/internal/domain/policy"
	"github.com/agentperch/perchgate/internal/domain/ratelimit"
)

// legacyPeriod is the fixed period of the legacy single global counter.
const legacyPeriod = time.Hour

// Evaluator adjudicates one proposed mutation: rule matching, then
// per-dimension rate limits, then the legacy global counter. It is a
// stateless facade over the counter store; safe for concurrent use.
type Evaluator struct {
	counters  ratelimit.CounterStore
	actions   audit.ActionLog
	snapshots *snapshotCache
	logger    *slog.Logger

	// now is a test seam for time-window rules and counter periods.
	now func() time.Time
}

// NewEvaluator creates a policy evaluator over the given counter store and
// best-effort action log.
func NewEvaluator(counters ratelimit.CounterStore, actions audit.ActionLog, logger *slog.Logger) (*Evaluator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "evaluator")

	celEval, err := celeval.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("create expression evaluator: %w", err)
	}

	return &Evaluator{
		counters:  counters,
		actions:   actions,
		snapshots: newSnapshotCache(celEval, logger),
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Evaluate runs the decision pipeline for one proposed mutation and writes a
// best-effort decision log line. Store errors propagate so the caller fails
// closed; they are never converted into an Allow.
func (e *Evaluator) Evaluate(ctx context.Context, cfg *policy.Config, mode policy.Mode, toolName string, params json.RawMessage) (policy.Decision, error) {
	dec, err := e.decide(ctx, cfg, mode, toolName, params)

	// Fire-and-forget: attempt, discard error. A decision that cannot be
	// logged is still a decision.
	e.logDecision(ctx, toolName, mode, dec, err)

	return dec, err
}

func (e *Evaluator) decide(ctx context.Context, cfg *policy.Config, mode policy.Mode, toolName string, params json.RawMessage) (policy.Decision, error) {
	// Master kill switch: bypasses rules, limits, and the legacy counter.
	if !cfg.EnforceForMutations {
		return policy.Decision{Kind: policy.DecideAllow}, nil
	}

	category := policy.CategorizeTool(toolName)
	snap := e.snapshots.get(cfg, mode)
	cand := policy.Candidate{
		Tool:     toolName,
		Category: category,
		Mode:     mode,
		Params:   params,
		Now:      e.now(),
	}

	if rule, ok := policy.FindMatchingRule(snap.rules, cand, snap); ok {
		switch rule.Action.Kind {
		case policy.ActionDeny:
			return policy.Decision{
				Kind:       policy.DecideDeny,
				DenyReason: classifyDeny(rule),
				Reason:     denyReasonText(rule),
				RuleID:     rule.ID,
			}, nil
		case policy.ActionRequireApproval:
			// Approval bypasses rate limiting: an approved item is
			// rate-limited when it is actually executed, not here.
			return policy.Decision{
				Kind:   policy.DecideRouteToApproval,
				Reason: rule.Action.Reason,
				RuleID: rule.ID,
			}, nil
		case policy.ActionDryRun:
			return policy.Decision{
				Kind:   policy.DecideDryRun,
				RuleID: rule.ID,
			}, nil
		case policy.ActionAllow:
			// Fall through to rate limiting.
		}
	}

	// Rule said Allow, or nothing matched: check every relevant limit.
	engType := policy.EngagementType(toolName)
	for _, limit := range cfg.EffectiveLimits() {
		if !limitApplies(limit, toolName, category, engType) {
			continue
		}
		counter, err := e.counters.Peek(ctx, limit.CounterKey(), limit.Period)
		if err != nil {
			return policy.Decision{}, fmt.Errorf("check rate limit %s: %w", limit.CounterKey(), err)
		}
		if counter.Count >= limit.MaxCount {
			resetAt := counter.ResetAt(limit.Period)
			return policy.Decision{
				Kind:       policy.DecideDeny,
				DenyReason: policy.DenyRateLimited,
				Reason: fmt.Sprintf("rate limit %s exhausted (%d/%d); resets at %s",
					limit.CounterKey(), counter.Count, limit.MaxCount, resetAt.UTC().Format(time.RFC3339)),
				RuleID:  limit.CounterKey(),
				ResetAt: &resetAt,
			}, nil
		}
	}

	// Legacy single global counter, kept for backward compatibility.
	if cfg.LegacyHourlyCap > 0 {
		counter, err := e.counters.Peek(ctx, ratelimit.LegacyCounterKey, legacyPeriod)
		if err != nil {
			return policy.Decision{}, fmt.Errorf("check legacy counter: %w", err)
		}
		if counter.Count >= cfg.LegacyHourlyCap {
			resetAt := counter.ResetAt(legacyPeriod)
			return policy.Decision{
				Kind:       policy.DecideDeny,
				DenyReason: policy.DenyRateLimited,
				Reason: fmt.Sprintf("hourly mutation cap exhausted (%d/%d); resets at %s",
					counter.Count, cfg.LegacyHourlyCap, resetAt.UTC().Format(time.RFC3339)),
				ResetAt: &resetAt,
			}, nil
		}
	}

	return policy.Decision{Kind: policy.DecideAllow}, nil
}

// RecordMutation is called only after the caller's side effect actually
// succeeded. It increments the legacy global counter and every configured
// counter whose dimension matches this tool.
func (e *Evaluator) RecordMutation(ctx context.Context, toolName string, limits []ratelimit.Limit) error {
	if err := e.counters.Increment(ctx, ratelimit.LegacyCounterKey, legacyPeriod); err != nil {
		return fmt.Errorf("increment legacy counter: %w", err)
	}

	category := policy.CategorizeTool(toolName)
	engType := policy.EngagementType(toolName)
	for _, limit := range limits {
		if !limitApplies(limit, toolName, category, engType) {
			continue
		}
		if err := e.counters.Increment(ctx, limit.CounterKey(), limit.Period); err != nil {
			return fmt.Errorf("increment counter %s: %w", limit.CounterKey(), err)
		}
	}
	return nil
}

// limitApplies reports whether a configured limit is relevant to this tool.
func limitApplies(l ratelimit.Limit, tool string, category policy.ToolCategory, engType string) bool {
	switch l.Dimension {
	case ratelimit.DimensionTool:
		return l.MatchValue == tool
	case ratelimit.DimensionCategory:
		return l.MatchValue == string(category)
	case ratelimit.DimensionEngagementType:
		return engType != "" && l.MatchValue == engType
	case ratelimit.DimensionGlobal:
		return true
	default:
		return false
	}
}

// classifyDeny maps a denying rule to its deny reason: blocked-tool config
// entries, then hard built-ins, then everything template- or user-authored.
func classifyDeny(rule policy.Rule) policy.DenyReason {
	if strings.HasPrefix(rule.ID, policy.BlockedToolRulePrefix) {
		return policy.DenyToolBlocked
	}
	if rule.Priority < policy.PriorityHardMax {
		return policy.DenyHardRule
	}
	return policy.DenyUserRule
}

func denyReasonText(rule policy.Rule) string {
	if rule.Action.Reason != "" {
		return rule.Action.Reason
	}
	return fmt.Sprintf("denied by rule %s (%s)", rule.ID, rule.Label)
}

// logDecision writes one best-effort row to the general action log. A
// failure here is logged and otherwise ignored; it never fails the
// evaluation.
func (e *Evaluator) logDecision(ctx context.Context, toolName string, mode policy.Mode, dec policy.Decision, evalErr error) {
	if e.actions == nil {
		return
	}

	status := string(dec.Kind)
	detail := dec.Reason
	if evalErr != nil {
		status = "error"
		detail = evalErr.Error()
	}
	metadata := map[string]interface{}{
		"tool":     toolName,
		"category": string(policy.CategorizeTool(toolName)),
		"mode":     string(mode),
	}
	if dec.RuleID != "" {
		metadata["rule_id"] = dec.RuleID
	}
	if dec.DenyReason != "" {
		metadata["deny_reason"] = string(dec.DenyReason)
	}

	if err := e.actions.LogAction(ctx, "policy_decision", status, detail, metadata); err != nil {
		e.logger.Warn("failed to write decision log", "tool", toolName, "error", err)
	}
}
