package policy

import "github.com/agentperch/perchgate/internal/domain/ratelimit"

// Config is the immutable policy configuration snapshot passed into every
// evaluation. Callers never mutate a snapshot in place; a changed
// configuration is propagated as a new snapshot with a new Version.
type Config struct {
	// Version tags the snapshot for compiled-rule caching. Any change to
	// the configuration must change the version.
	Version string

	// EnforceForMutations is the master kill switch. When false, every
	// mutation is allowed and nothing below applies.
	EnforceForMutations bool

	// Template selects the built-in baseline stance.
	Template TemplateName

	// BlockedTools are tool names denied outright. They materialize as
	// hard rules with the blocked-tool id prefix.
	BlockedTools []string

	// ApprovalRequiredTools are tool names that always route to approval.
	ApprovalRequiredTools []string

	// DryRun forces every mutation to dry-run regardless of other rules.
	DryRun bool

	// LegacyHourlyCap bounds the legacy single global counter. Zero
	// disables the legacy check.
	LegacyHourlyCap int

	// RateLimits are user-configured limits, applied in addition to the
	// selected template's limits.
	RateLimits []ratelimit.Limit

	// UserRules are user-authored overrides. Priorities below
	// PriorityTemplateMax are rejected at config validation.
	UserRules []Rule
}

// EffectiveLimits returns the template limits followed by the user limits.
func (c *Config) EffectiveLimits() []ratelimit.Limit {
	var out []ratelimit.Limit
	if t, ok := TemplateByName(c.Template); ok {
		out = append(out, t.RateLimits...)
	}
	out = append(out, c.RateLimits...)
	return out
}
