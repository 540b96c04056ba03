package service

import (
	"log/slog"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/google/cel-go/cel"

	celeval "github.com/agentperch/perchgate/internal/adapter/outbound/cel"
	"github.com/agentperch/perchgate/internal/domain/policy"
)

// compiledSnapshot is an immutable effective rule set with its compiled
// expression programs, built once per (config version, mode) and reused
// until the configuration changes.
type compiledSnapshot struct {
	key       uint64
	rules     []policy.Rule
	programs  map[string]cel.Program
	evaluator *celeval.Evaluator
}

// MatchExpression implements policy.ExpressionMatcher using the snapshot's
// pre-compiled programs. A rule whose expression failed to compile has no
// program and never matches.
func (s *compiledSnapshot) MatchExpression(rule policy.Rule, cand policy.Candidate) (bool, error) {
	prg, ok := s.programs[rule.ID]
	if !ok {
		return false, nil
	}
	return s.evaluator.Evaluate(prg, cand)
}

var _ policy.ExpressionMatcher = (*compiledSnapshot)(nil)

// snapshotCache holds the most recent compiled snapshot. Configuration
// changes rarely relative to evaluations, so one slot is enough; a miss
// rebuilds and replaces.
type snapshotCache struct {
	current atomic.Value // *compiledSnapshot
	cel     *celeval.Evaluator
	logger  *slog.Logger
}

func newSnapshotCache(celEval *celeval.Evaluator, logger *slog.Logger) *snapshotCache {
	return &snapshotCache{cel: celEval, logger: logger}
}

// snapshotKey hashes the inputs that determine the effective rule set.
func snapshotKey(cfg *policy.Config, mode policy.Mode) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(cfg.Version)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(string(cfg.Template))
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(string(mode))
	return d.Sum64()
}

// get returns the compiled snapshot for (cfg, mode), rebuilding on miss.
func (c *snapshotCache) get(cfg *policy.Config, mode policy.Mode) *compiledSnapshot {
	key := snapshotKey(cfg, mode)
	if snap, ok := c.current.Load().(*compiledSnapshot); ok && snap.key == key {
		return snap
	}

	snap := &compiledSnapshot{
		key:       key,
		rules:     policy.BuildEffectiveRules(cfg, mode),
		programs:  make(map[string]cel.Program),
		evaluator: c.cel,
	}
	for _, r := range snap.rules {
		expr := r.Conditions.Expression
		if expr == "" {
			continue
		}
		if r.Priority < policy.PriorityTemplateMax {
			// Expressions are a user-rule feature only.
			continue
		}
		prg, err := c.cel.Compile(expr)
		if err != nil {
			c.logger.Warn("rule expression failed to compile; rule will not match",
				"rule_id", r.ID, "error", err)
			continue
		}
		snap.programs[r.ID] = prg
	}
	c.current.Store(snap)
	return snap
}
