package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/agentperch/perchgate/internal/domain/approval"
	"github.com/agentperch/perchgate/internal/domain/audit"
	"github.com/agentperch/perchgate/internal/domain/policy"
	"github.com/agentperch/perchgate/internal/domain/ratelimit"
	"github.com/agentperch/perchgate/internal/observe"
)

// GatewayDecisionKind discriminates GatewayDecision variants.
type GatewayDecisionKind string

const (
	// DecisionProceed hands the caller a ticket; the caller performs the
	// side effect and must complete the ticket exactly once.
	DecisionProceed GatewayDecisionKind = "proceed"
	// DecisionDenied blocks the mutation.
	DecisionDenied GatewayDecisionKind = "denied"
	// DecisionRoutedToApproval enqueued the mutation for human review.
	DecisionRoutedToApproval GatewayDecisionKind = "routed_to_approval"
	// DecisionDryRun recorded the intent without executing.
	DecisionDryRun GatewayDecisionKind = "dry_run"
	// DecisionDuplicate answered from the idempotency window.
	DecisionDuplicate GatewayDecisionKind = "duplicate"
)

// Ticket is the handle returned on Proceed. The caller is contractually
// required to call exactly one of CompleteSuccess or CompleteFailure with it
// after performing (or failing to perform) the side effect. An uncompleted
// ticket leaves its audit row permanently Pending; that is a caller bug the
// tests catch, not something the gateway tolerates at runtime.
type Ticket struct {
	AuditID       int64
	CorrelationID string
	ToolName      string

	// limits is the rate-limit snapshot captured at evaluation time, so
	// completion increments the same counters evaluation checked.
	limits []ratelimit.Limit
}

// GatewayDecision is the outcome of one gateway evaluation. Kind selects the
// variant; switch over it exhaustively.
type GatewayDecision struct {
	Kind GatewayDecisionKind

	// Ticket is set only on Proceed.
	Ticket *Ticket

	// Denied fields.
	DenyReason policy.DenyReason
	Reason     string
	RuleID     string
	ResetAt    *time.Time

	// RoutedToApproval fields.
	QueueID int64

	// Duplicate fields.
	OriginalCorrelationID string
	CachedResult          string
	AuditID               int64
}

// Request is one proposed mutation submitted to the gateway.
type Request struct {
	Config   *policy.Config
	Mode     policy.Mode
	ToolName string
	Params   json.RawMessage
	// Source labels the mutation path for the approval queue, e.g.
	// "agent_tool", "scheduler", "api".
	Source string
}

// Gateway is the single chokepoint every mutation path passes through.
// Stateless facade over the durable stores; safe for concurrent use from
// any number of tasks.
type Gateway struct {
	evaluator *Evaluator
	trail     audit.TrailStore
	queue     approval.Queue
	metrics   *observe.Metrics
	tracer    trace.Tracer
	logger    *slog.Logger

	// dedupWindow is the trailing idempotency span.
	dedupWindow time.Duration

	now func() time.Time
}

// GatewayOption configures optional gateway collaborators.
type GatewayOption func(*Gateway)

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *observe.Metrics) GatewayOption {
	return func(g *Gateway) { g.metrics = m }
}

// WithTracer attaches an OpenTelemetry tracer.
func WithTracer(t trace.Tracer) GatewayOption {
	return func(g *Gateway) { g.tracer = t }
}

// WithDedupWindow overrides the default idempotency window.
func WithDedupWindow(d time.Duration) GatewayOption {
	return func(g *Gateway) { g.dedupWindow = d }
}

// NewGateway creates the governance gateway facade.
func NewGateway(evaluator *Evaluator, trail audit.TrailStore, queue approval.Queue, logger *slog.Logger, opts ...GatewayOption) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		evaluator:   evaluator,
		trail:       trail,
		queue:       queue,
		tracer:      noop.NewTracerProvider().Tracer("perchgate"),
		logger:      logger.With("component", "gateway"),
		dedupWindow: DefaultDedupWindow * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Evaluate adjudicates one proposed mutation. On Proceed the returned ticket
// must be completed exactly once. Store errors propagate; the caller fails
// closed, never open.
func (g *Gateway) Evaluate(ctx context.Context, req Request) (GatewayDecision, error) {
	start := g.now()
	ctx, span := g.tracer.Start(ctx, "gateway.evaluate",
		trace.WithAttributes(attribute.String("tool", req.ToolName)))
	defer span.End()

	decision, err := g.evaluate(ctx, req)

	outcome := string(decision.Kind)
	if err != nil {
		outcome = "error"
	}
	span.SetAttributes(attribute.String("outcome", outcome))
	if g.metrics != nil {
		g.metrics.DecisionsTotal.WithLabelValues(outcome).Inc()
		g.metrics.EvalDuration.WithLabelValues(outcome).Observe(g.now().Sub(start).Seconds())
		if err == nil {
			switch decision.Kind {
			case DecisionDuplicate:
				g.metrics.DuplicatesTotal.Inc()
			case DecisionDenied:
				if decision.DenyReason == policy.DenyRateLimited {
					g.metrics.RateLimitDenials.WithLabelValues(decision.RuleID).Inc()
				}
			case DecisionProceed:
				g.metrics.PendingMutations.Inc()
			case DecisionRoutedToApproval, DecisionDryRun:
			}
		}
	}
	return decision, err
}

func (g *Gateway) evaluate(ctx context.Context, req Request) (GatewayDecision, error) {
	dec, err := g.evaluator.Evaluate(ctx, req.Config, req.Mode, req.ToolName, req.Params)
	if err != nil {
		return GatewayDecision{}, err
	}

	switch dec.Kind {
	case policy.DecideDeny:
		return GatewayDecision{
			Kind:       DecisionDenied,
			DenyReason: dec.DenyReason,
			Reason:     dec.Reason,
			RuleID:     dec.RuleID,
			ResetAt:    dec.ResetAt,
		}, nil

	case policy.DecideRouteToApproval:
		queueID, err := g.queue.Enqueue(ctx, approval.Request{
			ToolName:       req.ToolName,
			TargetID:       targetID(req.Params),
			TargetLabel:    targetLabel(req.ToolName, req.Params),
			ParamsJSON:     req.Params,
			Source:         req.Source,
			ReasonCategory: dec.Reason,
			CreatedAt:      g.now(),
		})
		if err != nil {
			return GatewayDecision{}, fmt.Errorf("enqueue for approval: %w", err)
		}
		return GatewayDecision{
			Kind:    DecisionRoutedToApproval,
			QueueID: queueID,
			Reason:  dec.Reason,
			RuleID:  dec.RuleID,
		}, nil

	case policy.DecideDryRun:
		return GatewayDecision{
			Kind:   DecisionDryRun,
			RuleID: dec.RuleID,
		}, nil

	case policy.DecideAllow:
		return g.admit(ctx, req)

	default:
		return GatewayDecision{}, fmt.Errorf("unknown decision kind %q", dec.Kind)
	}
}

// admit runs the idempotency check and opens the audit record for an allowed
// mutation.
func (g *Gateway) admit(ctx context.Context, req Request) (GatewayDecision, error) {
	paramsHash, err := ComputeParamsHash(req.ToolName, req.Params)
	if err != nil {
		return GatewayDecision{}, err
	}

	correlationID := uuid.NewString()
	rec := &audit.MutationRecord{
		CorrelationID: correlationID,
		ToolName:      req.ToolName,
		ParamsHash:    paramsHash,
		ParamsSummary: audit.SummarizeParams(req.Params),
		Status:        audit.StatusPending,
		CreatedAt:     g.now(),
	}

	auditID, original, err := g.trail.CheckAndInsertPending(ctx, rec, g.dedupWindow)
	if err != nil {
		return GatewayDecision{}, fmt.Errorf("open audit record: %w", err)
	}

	if original != nil {
		dupRec := &audit.MutationRecord{
			CorrelationID:         uuid.NewString(),
			OriginalCorrelationID: original.CorrelationID,
			ToolName:              req.ToolName,
			ParamsHash:            paramsHash,
			ParamsSummary:         rec.ParamsSummary,
			Status:                audit.StatusDuplicate,
			ResultSummary:         original.ResultSummary,
			CreatedAt:             g.now(),
		}
		dupID, err := g.trail.InsertDuplicate(ctx, dupRec)
		if err != nil {
			return GatewayDecision{}, fmt.Errorf("record duplicate: %w", err)
		}
		g.logger.Debug("duplicate mutation absorbed",
			"tool", req.ToolName,
			"original_correlation_id", original.CorrelationID)
		return GatewayDecision{
			Kind:                  DecisionDuplicate,
			OriginalCorrelationID: original.CorrelationID,
			CachedResult:          original.ResultSummary,
			AuditID:               dupID,
		}, nil
	}

	return GatewayDecision{
		Kind: DecisionProceed,
		Ticket: &Ticket{
			AuditID:       auditID,
			CorrelationID: correlationID,
			ToolName:      req.ToolName,
			limits:        req.Config.EffectiveLimits(),
		},
	}, nil
}

// CompleteSuccess finalizes a ticket after the side effect succeeded: the
// audit row turns Success and the rate counters are incremented so they
// reflect only effects that actually happened.
func (g *Gateway) CompleteSuccess(ctx context.Context, ticket *Ticket, resultSummary, rollbackHint string, elapsed time.Duration) error {
	if ticket == nil {
		return fmt.Errorf("nil ticket")
	}
	if err := g.trail.CompleteSuccess(ctx, ticket.AuditID, resultSummary, rollbackHint, elapsed); err != nil {
		return fmt.Errorf("complete audit record %d: %w", ticket.AuditID, err)
	}
	if g.metrics != nil {
		g.metrics.CompletionsTotal.WithLabelValues("success").Inc()
		g.metrics.PendingMutations.Dec()
	}
	if err := g.evaluator.RecordMutation(ctx, ticket.ToolName, ticket.limits); err != nil {
		return err
	}
	return nil
}

// CompleteFailure finalizes a ticket after the side effect failed. Counters
// are untouched: nothing happened on the platform.
func (g *Gateway) CompleteFailure(ctx context.Context, ticket *Ticket, errorMessage string, elapsed time.Duration) error {
	if ticket == nil {
		return fmt.Errorf("nil ticket")
	}
	if err := g.trail.CompleteFailure(ctx, ticket.AuditID, errorMessage, elapsed); err != nil {
		return fmt.Errorf("complete audit record %d: %w", ticket.AuditID, err)
	}
	if g.metrics != nil {
		g.metrics.CompletionsTotal.WithLabelValues("failure").Inc()
		g.metrics.PendingMutations.Dec()
	}
	return nil
}

// targetID pulls the platform object id a mutation is aimed at, when the
// params carry one under a conventional key.
func targetID(params json.RawMessage) string {
	if len(params) == 0 {
		return ""
	}
	var m map[string]interface{}
	if err := json.Unmarshal(params, &m); err != nil {
		return ""
	}
	for _, key := range []string{"tweet_id", "user_id", "target_id", "media_id"} {
		if v, ok := m[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// targetLabel builds a short human label for approval queue entries.
func targetLabel(toolName string, params json.RawMessage) string {
	if id := targetID(params); id != "" {
		return toolName + " " + id
	}
	return toolName
}
