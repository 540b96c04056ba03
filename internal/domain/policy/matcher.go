package policy

import (
	"encoding/json"
	"sort"
	"time"
)

// BlockedToolRulePrefix prefixes the ids of hard rules generated from the
// blocked-tool config list. The evaluator uses it to classify denials.
const BlockedToolRulePrefix = "blocked-tool:"

// approvalToolRulePrefix prefixes rules generated from the
// approval-required-tools config list.
const approvalToolRulePrefix = "approval-tool:"

// Hard rule ids. Priorities inside the hard band fix their relative order.
const (
	hardRuleManualDryRun = "hard-manual-dry-run"
	hardRuleDryRunAll    = "hard-dry-run-all"
)

// hardRules builds the fixed set of non-overridable rules. They are derived
// from config lists but cannot be disabled by configuration.
func hardRules(cfg *Config) []Rule {
	rules := []Rule{
		{
			ID:       hardRuleManualDryRun,
			Priority: 20,
			Label:    "Manual mode never executes",
			Enabled:  true,
			Conditions: RuleConditions{
				Modes: []Mode{ModeManual},
			},
			Action: DryRun(),
		},
	}
	for _, tool := range cfg.BlockedTools {
		rules = append(rules, Rule{
			ID:       BlockedToolRulePrefix + tool,
			Priority: 30,
			Label:    "Blocked tool " + tool,
			Enabled:  true,
			Conditions: RuleConditions{
				Tools: []string{tool},
			},
			Action: Deny("tool " + tool + " is blocked by configuration"),
		})
	}
	for _, tool := range cfg.ApprovalRequiredTools {
		rules = append(rules, Rule{
			ID:       approvalToolRulePrefix + tool,
			Priority: 40,
			Label:    "Approval required for " + tool,
			Enabled:  true,
			Conditions: RuleConditions{
				Tools: []string{tool},
			},
			Action: RequireApproval("tool " + tool + " requires approval by configuration"),
		})
	}
	if cfg.DryRun {
		rules = append(rules, Rule{
			ID:       hardRuleDryRunAll,
			Priority: 50,
			Label:    "Global dry-run",
			Enabled:  true,
			Action:   DryRun(),
		})
	}
	return rules
}

// BuildEffectiveRules merges hard rules, the configured template's rules,
// and user overrides into one priority-ordered list, skipping disabled
// non-hard rules and any rule whose id was already taken by an earlier band.
//
// The sort is stable, so equal-priority rules keep declaration order within
// hard -> template -> user. That tie-break is intentional and load-bearing:
// tests pin it, and callers may rely on it.
func BuildEffectiveRules(cfg *Config, mode Mode) []Rule {
	merged := hardRules(cfg)
	if t, ok := TemplateByName(cfg.Template); ok {
		for _, r := range t.Rules {
			if r.Enabled {
				merged = append(merged, r)
			}
		}
	}
	for _, r := range cfg.UserRules {
		if r.Enabled {
			merged = append(merged, r)
		}
	}

	seen := make(map[string]bool, len(merged))
	rules := merged[:0]
	for _, r := range merged {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		rules = append(rules, r)
	}

	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority < rules[j].Priority
	})

	_ = mode // the effective set is mode-independent; mode filters at match time
	return rules
}

// Candidate is one proposed mutation being matched against rules.
type Candidate struct {
	Tool     string
	Category ToolCategory
	Mode     Mode
	Params   json.RawMessage
	Now      time.Time
}

// ExpressionMatcher evaluates a rule's optional CEL expression against a
// candidate. Implemented outside the domain so compiled programs can be
// cached per snapshot.
type ExpressionMatcher interface {
	MatchExpression(rule Rule, cand Candidate) (bool, error)
}

// FindMatchingRule scans rules ascending by priority and returns the first
// rule whose conditions all match, or false when none does. Rules carrying
// an expression only match when exprs evaluates it to true; when exprs is
// nil or errors, such a rule is skipped rather than matched blind.
//
// Pure function of its inputs; safe to call concurrently.
func FindMatchingRule(rules []Rule, cand Candidate, exprs ExpressionMatcher) (Rule, bool) {
	for _, r := range rules {
		if !r.Conditions.Matches(cand.Tool, cand.Category, cand.Mode, cand.Now) {
			continue
		}
		if r.Conditions.Expression != "" {
			if exprs == nil {
				continue
			}
			ok, err := exprs.MatchExpression(r, cand)
			if err != nil || !ok {
				continue
			}
		}
		return r, true
	}
	return Rule{}, false
}
