package service

import (
	"testing"

	celeval "github.com/agentperch/perchgate/internal/adapter/outbound/cel"
	"github.com/agentperch/perchgate/internal/domain/policy"
)

func newTestSnapshotCache(t *testing.T) *snapshotCache {
	t.Helper()
	ev, err := celeval.NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error = %v", err)
	}
	return newSnapshotCache(ev, testLogger())
}

func TestSnapshotCacheReuse(t *testing.T) {
	c := newTestSnapshotCache(t)
	cfg := &policy.Config{Version: "v1", EnforceForMutations: true}

	first := c.get(cfg, policy.ModeSupervised)
	second := c.get(cfg, policy.ModeSupervised)
	if first != second {
		t.Error("same version and mode must return the cached snapshot")
	}
}

func TestSnapshotCacheRebuildsOnVersionChange(t *testing.T) {
	c := newTestSnapshotCache(t)
	cfg := &policy.Config{Version: "v1", EnforceForMutations: true}

	first := c.get(cfg, policy.ModeSupervised)
	cfg.Version = "v2"
	second := c.get(cfg, policy.ModeSupervised)
	if first == second {
		t.Error("version change must rebuild the snapshot")
	}
}

func TestSnapshotCacheRebuildsOnModeChange(t *testing.T) {
	c := newTestSnapshotCache(t)
	cfg := &policy.Config{Version: "v1", EnforceForMutations: true}

	manual := c.get(cfg, policy.ModeManual)
	auto := c.get(cfg, policy.ModeAutonomous)
	if manual == auto {
		t.Error("mode change must rebuild the snapshot")
	}
}

func TestSnapshotCompilesUserExpressionsOnly(t *testing.T) {
	c := newTestSnapshotCache(t)
	cfg := &policy.Config{
		Version:             "v1",
		EnforceForMutations: true,
		UserRules: []policy.Rule{
			{
				ID: "user-expr", Priority: 200, Enabled: true,
				Conditions: policy.RuleConditions{Expression: `tool == "post_tweet"`},
				Action:     policy.Deny("no posting"),
			},
		},
	}

	snap := c.get(cfg, policy.ModeAutonomous)
	if _, ok := snap.programs["user-expr"]; !ok {
		t.Error("user rule expression should be compiled")
	}
}

func TestSnapshotSkipsInvalidExpression(t *testing.T) {
	c := newTestSnapshotCache(t)
	cfg := &policy.Config{
		Version:             "v1",
		EnforceForMutations: true,
		UserRules: []policy.Rule{
			{
				ID: "user-bad", Priority: 200, Enabled: true,
				Conditions: policy.RuleConditions{Expression: `tool == `},
				Action:     policy.Deny("broken"),
			},
		},
	}

	snap := c.get(cfg, policy.ModeAutonomous)
	if _, ok := snap.programs["user-bad"]; ok {
		t.Fatal("invalid expression must not produce a program")
	}

	// And the matcher treats a missing program as a non-match.
	rule := snap.rules[len(snap.rules)-1]
	matched, err := snap.MatchExpression(rule, policy.Candidate{Tool: "post_tweet"})
	if err != nil {
		t.Fatalf("MatchExpression() error = %v", err)
	}
	if matched {
		t.Error("rule without a compiled program must never match")
	}
}
