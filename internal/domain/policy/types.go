// Package policy contains domain types for mutation policy evaluation.
package policy

import (
	"fmt"
	"time"
)

// Mode is the agent operating mode the gateway is evaluating under.
type Mode string

const (
	// ModeManual means a human drives every action; agent mutations only dry-run.
	ModeManual Mode = "manual"
	// ModeSupervised means the agent acts but sensitive actions route to approval.
	ModeSupervised Mode = "supervised"
	// ModeAutonomous means the agent acts without a human in the loop.
	ModeAutonomous Mode = "autonomous"
)

// IsValid returns true if the mode is a known operating mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeManual, ModeSupervised, ModeAutonomous:
		return true
	default:
		return false
	}
}

// ActionKind discriminates RuleAction variants.
type ActionKind string

const (
	// ActionAllow permits the mutation to proceed to rate limiting.
	ActionAllow ActionKind = "allow"
	// ActionDeny blocks the mutation.
	ActionDeny ActionKind = "deny"
	// ActionRequireApproval routes the mutation to the approval queue.
	ActionRequireApproval ActionKind = "require_approval"
	// ActionDryRun records the mutation without executing it.
	ActionDryRun ActionKind = "dry_run"
)

// RuleAction is the closed set of outcomes a matched rule can produce.
// Exactly one kind applies per rule; Reason is populated for Deny and
// RequireApproval variants.
type RuleAction struct {
	Kind   ActionKind
	Reason string
}

// Allow returns the Allow action.
func Allow() RuleAction { return RuleAction{Kind: ActionAllow} }

// Deny returns a Deny action with a human-readable reason.
func Deny(reason string) RuleAction { return RuleAction{Kind: ActionDeny, Reason: reason} }

// RequireApproval returns a RequireApproval action with a reason shown to reviewers.
func RequireApproval(reason string) RuleAction {
	return RuleAction{Kind: ActionRequireApproval, Reason: reason}
}

// DryRun returns the DryRun action.
func DryRun() RuleAction { return RuleAction{Kind: ActionDryRun} }

// Priority bands. Hard rules cannot be disabled by configuration; template
// rules come from the selected PolicyTemplate; user rules are config overrides.
const (
	// PriorityHardMax is the exclusive upper bound for hard rule priorities.
	PriorityHardMax = 100
	// PriorityTemplateMax is the exclusive upper bound for template rule priorities.
	PriorityTemplateMax = 200
)

// TimeWindow restricts a rule to a time-of-day range on given weekdays,
// interpreted in an IANA timezone. Start and End are "HH:MM" (24h). A window
// whose End is before Start wraps across midnight. Empty Days means every day.
type TimeWindow struct {
	Start    string
	End      string
	Days     []time.Weekday
	Timezone string
}

// RuleConditions are the match dimensions of a rule. Each populated set is
// OR'd internally; all populated dimensions are AND'd together. An empty set
// matches anything on that dimension. Expression is an optional CEL predicate
// over {tool, category, mode, params}; it is only honored on user rules.
type RuleConditions struct {
	Tools      []string
	Categories []ToolCategory
	Modes      []Mode
	Window     *TimeWindow
	Expression string
}

// Rule is one immutable policy rule. Priority determines evaluation order,
// lowest number wins; the first matching rule stops the scan.
type Rule struct {
	// ID is stable and unique within an effective rule set.
	ID string
	// Priority band: <100 hard, 100-199 template, >=200 user.
	Priority int
	// Label is a human-readable name shown in denials and audit rows.
	Label string
	// Enabled rules participate in matching; disabled rules are skipped.
	// Hard rules ignore this flag.
	Enabled bool
	// Conditions that must all match for the rule to apply.
	Conditions RuleConditions
	// Action taken when the rule matches.
	Action RuleAction
}

// DenyReason classifies why a mutation was denied.
type DenyReason string

const (
	// DenyToolBlocked means a blocked-tool config entry matched.
	DenyToolBlocked DenyReason = "tool_blocked"
	// DenyHardRule means a built-in non-overridable rule matched.
	DenyHardRule DenyReason = "hard_rule"
	// DenyUserRule means a template or user-authored rule matched.
	DenyUserRule DenyReason = "user_rule"
	// DenyRateLimited means a rate limit was exhausted.
	DenyRateLimited DenyReason = "rate_limited"
)

// DecisionKind discriminates Decision variants.
type DecisionKind string

const (
	// DecideAllow permits the mutation.
	DecideAllow DecisionKind = "allow"
	// DecideDeny blocks the mutation.
	DecideDeny DecisionKind = "deny"
	// DecideRouteToApproval defers the mutation to human review.
	DecideRouteToApproval DecisionKind = "route_to_approval"
	// DecideDryRun records the mutation without executing it.
	DecideDryRun DecisionKind = "dry_run"
)

// Decision is the outcome of one policy evaluation.
type Decision struct {
	Kind DecisionKind
	// DenyReason classifies denials; empty otherwise.
	DenyReason DenyReason
	// Reason is the human-readable explanation. Always set on Deny.
	Reason string
	// RuleID is the matched rule id, or the rate limit key for rate-limit
	// denials. Empty when no rule matched (e.g. legacy counter denial).
	RuleID string
	// ResetAt is when the exhausted rate limit resets. Only set for
	// rate-limit denials so callers can present "try again at HH:MM".
	ResetAt *time.Time
}

// Matches reports whether the rule's conditions all hold for the given tool,
// category, and mode at time now. The optional CEL expression needs a
// compiled program and is evaluated by the matcher; this method covers the
// set and time-window dimensions only.
func (c RuleConditions) Matches(tool string, category ToolCategory, mode Mode, now time.Time) bool {
	if len(c.Tools) > 0 && !containsString(c.Tools, tool) {
		return false
	}
	if len(c.Categories) > 0 && !containsCategory(c.Categories, category) {
		return false
	}
	if len(c.Modes) > 0 && !containsMode(c.Modes, mode) {
		return false
	}
	if c.Window != nil && !c.Window.Contains(now) {
		return false
	}
	return true
}

// Contains reports whether t falls inside the window. An unparseable
// timezone or time-of-day makes the window match nothing, which is the
// conservative reading for a restriction that cannot be interpreted.
func (w *TimeWindow) Contains(t time.Time) bool {
	loc := time.UTC
	if w.Timezone != "" {
		l, err := time.LoadLocation(w.Timezone)
		if err != nil {
			return false
		}
		loc = l
	}
	local := t.In(loc)

	if len(w.Days) > 0 {
		found := false
		for _, d := range w.Days {
			if local.Weekday() == d {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	start, ok := parseMinutes(w.Start)
	if !ok {
		return false
	}
	end, ok := parseMinutes(w.End)
	if !ok {
		return false
	}
	cur := local.Hour()*60 + local.Minute()

	if start <= end {
		return cur >= start && cur < end
	}
	// Wraps across midnight, e.g. 22:00-06:00.
	return cur >= start || cur < end
}

// Validate reports whether the window is interpretable: parseable HH:MM
// bounds and a loadable timezone. Contains treats an invalid window as
// matching nothing, so rejecting it at configuration time is kinder.
func (w *TimeWindow) Validate() error {
	if _, ok := parseMinutes(w.Start); !ok {
		return fmt.Errorf("invalid start time %q, want HH:MM", w.Start)
	}
	if _, ok := parseMinutes(w.End); !ok {
		return fmt.Errorf("invalid end time %q, want HH:MM", w.End)
	}
	if w.Timezone != "" {
		if _, err := time.LoadLocation(w.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", w.Timezone, err)
		}
	}
	return nil
}

// parseMinutes parses "HH:MM" into minutes since midnight.
func parseMinutes(s string) (int, bool) {
	if len(s) != 5 || s[2] != ':' {
		return 0, false
	}
	for _, i := range []int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	if h > 23 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func containsCategory(set []ToolCategory, v ToolCategory) bool {
	for _, c := range set {
		if c == v {
			return true
		}
	}
	return false
}

func containsMode(set []Mode, v Mode) bool {
	for _, m := range set {
		if m == v {
			return true
		}
	}
	return false
}
