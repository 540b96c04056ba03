// Package config provides file-based configuration for perchgate.
//
// Configuration is an immutable snapshot: the loaded file produces one
// policy.Config with a content-derived version, and a changed file produces
// a new snapshot with a new version. Nothing mutates a snapshot in place.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/agentperch/perchgate/internal/domain/policy"
	"github.com/agentperch/perchgate/internal/domain/ratelimit"
)

// Config is the top-level perchgate configuration.
type Config struct {
	// Mode is the agent operating mode: manual, supervised, or autonomous.
	Mode string `yaml:"mode" mapstructure:"mode" validate:"required,oneof=manual supervised autonomous"`

	// LogLevel controls slog verbosity: debug, info, warn, error.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`

	// Store configures the SQLite durable store.
	Store StoreConfig `yaml:"store" mapstructure:"store"`

	// DedupWindow is the idempotency window; identical mutations inside it
	// are answered from the audit trail instead of re-executed.
	DedupWindow time.Duration `yaml:"dedup_window" mapstructure:"dedup_window"`

	// Telemetry toggles OpenTelemetry stdout export.
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`

	// Policy is the governance policy applied to every mutation.
	Policy PolicyConfig `yaml:"policy" mapstructure:"policy"`
}

// StoreConfig configures the SQLite store.
type StoreConfig struct {
	// Path is the database file path.
	Path string `yaml:"path" mapstructure:"path"`
}

// TelemetryConfig toggles span/metric export.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// PolicyConfig is the YAML shape of the policy snapshot.
type PolicyConfig struct {
	// EnforceForMutations is the master kill switch.
	EnforceForMutations bool `yaml:"enforce_for_mutations" mapstructure:"enforce_for_mutations"`

	// Template names the built-in baseline stance.
	Template string `yaml:"template" mapstructure:"template" validate:"omitempty,oneof=safe_default growth_aggressive agency_mode"`

	// BlockedTools are denied outright.
	BlockedTools []string `yaml:"blocked_tools" mapstructure:"blocked_tools"`

	// ApprovalRequiredTools always route to approval.
	ApprovalRequiredTools []string `yaml:"approval_required_tools" mapstructure:"approval_required_tools"`

	// DryRun forces every mutation to dry-run.
	DryRun bool `yaml:"dry_run" mapstructure:"dry_run"`

	// LegacyHourlyCap bounds the legacy global counter; zero disables it.
	LegacyHourlyCap int `yaml:"legacy_hourly_cap" mapstructure:"legacy_hourly_cap" validate:"min=0"`

	// RateLimits are user-configured limits on top of the template's.
	RateLimits []RateLimitConfig `yaml:"rate_limits" mapstructure:"rate_limits" validate:"omitempty,dive"`

	// UserRules are user-authored overrides, priority 200 and up.
	UserRules []RuleConfig `yaml:"user_rules" mapstructure:"user_rules" validate:"omitempty,dive"`
}

// RateLimitConfig is the YAML shape of one rate limit.
type RateLimitConfig struct {
	Dimension string        `yaml:"dimension" mapstructure:"dimension" validate:"required,oneof=tool category engagement_type global"`
	Match     string        `yaml:"match" mapstructure:"match"`
	MaxCount  int           `yaml:"max_count" mapstructure:"max_count" validate:"gt=0"`
	Period    time.Duration `yaml:"period" mapstructure:"period" validate:"gt=0"`
}

// RuleConfig is the YAML shape of one user rule.
type RuleConfig struct {
	ID         string            `yaml:"id" mapstructure:"id" validate:"required"`
	Priority   int               `yaml:"priority" mapstructure:"priority" validate:"gte=200"`
	Label      string            `yaml:"label" mapstructure:"label"`
	Disabled   bool              `yaml:"disabled" mapstructure:"disabled"`
	Tools      []string          `yaml:"tools" mapstructure:"tools"`
	Categories []string          `yaml:"categories" mapstructure:"categories" validate:"omitempty,dive,oneof=read write engage media thread delete"`
	Modes      []string          `yaml:"modes" mapstructure:"modes" validate:"omitempty,dive,oneof=manual supervised autonomous"`
	Window     *TimeWindowConfig `yaml:"window" mapstructure:"window"`
	Expression string            `yaml:"expression" mapstructure:"expression"`
	Action     string            `yaml:"action" mapstructure:"action" validate:"required,oneof=allow deny require_approval dry_run"`
	Reason     string            `yaml:"reason" mapstructure:"reason"`
}

// TimeWindowConfig is the YAML shape of a rule time window.
type TimeWindowConfig struct {
	Start    string   `yaml:"start" mapstructure:"start" validate:"required"`
	End      string   `yaml:"end" mapstructure:"end" validate:"required"`
	Days     []string `yaml:"days" mapstructure:"days" validate:"omitempty,dive,oneof=mon tue wed thu fri sat sun"`
	Timezone string   `yaml:"timezone" mapstructure:"timezone"`
}

// SetDefaults applies default values for optional fields.
func (c *Config) SetDefaults() {
	if c.Mode == "" {
		c.Mode = string(policy.ModeSupervised)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Store.Path == "" {
		c.Store.Path = "perchgate.db"
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = 300 * time.Second
	}
	if c.Policy.Template == "" {
		c.Policy.Template = string(policy.TemplateSafeDefault)
	}
}

// OperatingMode returns the configured mode as a domain value.
func (c *Config) OperatingMode() policy.Mode {
	return policy.Mode(c.Mode)
}

// ToPolicy converts the YAML policy into the immutable domain snapshot. The
// version is a content hash, so any edit to the policy section produces a
// distinct snapshot version.
func (c *Config) ToPolicy() *policy.Config {
	p := &policy.Config{
		EnforceForMutations:   c.Policy.EnforceForMutations,
		Template:              policy.TemplateName(c.Policy.Template),
		BlockedTools:          append([]string(nil), c.Policy.BlockedTools...),
		ApprovalRequiredTools: append([]string(nil), c.Policy.ApprovalRequiredTools...),
		DryRun:                c.Policy.DryRun,
		LegacyHourlyCap:       c.Policy.LegacyHourlyCap,
	}
	for _, rl := range c.Policy.RateLimits {
		p.RateLimits = append(p.RateLimits, ratelimit.Limit{
			Dimension:  ratelimit.Dimension(rl.Dimension),
			MatchValue: rl.Match,
			MaxCount:   rl.MaxCount,
			Period:     rl.Period,
		})
	}
	for _, rc := range c.Policy.UserRules {
		p.UserRules = append(p.UserRules, rc.toRule())
	}
	p.Version = c.policyVersion()
	return p
}

func (rc RuleConfig) toRule() policy.Rule {
	rule := policy.Rule{
		ID:       rc.ID,
		Priority: rc.Priority,
		Label:    rc.Label,
		Enabled:  !rc.Disabled,
		Conditions: policy.RuleConditions{
			Tools:      append([]string(nil), rc.Tools...),
			Expression: rc.Expression,
		},
	}
	for _, cat := range rc.Categories {
		rule.Conditions.Categories = append(rule.Conditions.Categories, policy.ToolCategory(cat))
	}
	for _, m := range rc.Modes {
		rule.Conditions.Modes = append(rule.Conditions.Modes, policy.Mode(m))
	}
	if rc.Window != nil {
		rule.Conditions.Window = &policy.TimeWindow{
			Start:    rc.Window.Start,
			End:      rc.Window.End,
			Days:     parseDays(rc.Window.Days),
			Timezone: rc.Window.Timezone,
		}
	}
	switch rc.Action {
	case "deny":
		rule.Action = policy.Deny(rc.Reason)
	case "require_approval":
		rule.Action = policy.RequireApproval(rc.Reason)
	case "dry_run":
		rule.Action = policy.DryRun()
	default:
		rule.Action = policy.Allow()
	}
	return rule
}

var dayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
	"sat": time.Saturday,
}

func parseDays(days []string) []time.Weekday {
	var out []time.Weekday
	for _, d := range days {
		if wd, ok := dayNames[strings.ToLower(d)]; ok {
			out = append(out, wd)
		}
	}
	return out
}

// policyVersion hashes the policy section into a short stable version tag.
func (c *Config) policyVersion() string {
	d := xxhash.New()
	w := func(parts ...string) {
		for _, p := range parts {
			_, _ = d.WriteString(p)
			_, _ = d.WriteString("\x1f")
		}
	}
	w(fmt.Sprintf("%t", c.Policy.EnforceForMutations), c.Policy.Template,
		fmt.Sprintf("%t", c.Policy.DryRun), fmt.Sprintf("%d", c.Policy.LegacyHourlyCap))

	blocked := append([]string(nil), c.Policy.BlockedTools...)
	sort.Strings(blocked)
	w(blocked...)
	approvals := append([]string(nil), c.Policy.ApprovalRequiredTools...)
	sort.Strings(approvals)
	w(approvals...)

	for _, rl := range c.Policy.RateLimits {
		w(rl.Dimension, rl.Match, fmt.Sprintf("%d", rl.MaxCount), rl.Period.String())
	}
	for _, r := range c.Policy.UserRules {
		w(r.ID, fmt.Sprintf("%d", r.Priority), fmt.Sprintf("%t", r.Disabled),
			r.Action, r.Reason, r.Expression)
		w(r.Tools...)
		w(r.Categories...)
		w(r.Modes...)
		if r.Window != nil {
			w(r.Window.Start, r.Window.End, r.Window.Timezone)
			w(r.Window.Days...)
		}
	}
	return fmt.Sprintf("%016x", d.Sum64())
}
