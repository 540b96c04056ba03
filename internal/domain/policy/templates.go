package policy

import (
	"time"

	"github.com/agentperch/perchgate/internal/domain/ratelimit"
)

// TemplateName identifies a built-in policy template.
type TemplateName string

const (
	// TemplateSafeDefault routes all content creation to approval and keeps
	// tight engagement caps. The stance for a newly onboarded account.
	TemplateSafeDefault TemplateName = "safe_default"
	// TemplateGrowthAggressive lets the agent post and engage on its own
	// with generous caps, but destructive actions still need approval.
	TemplateGrowthAggressive TemplateName = "growth_aggressive"
	// TemplateAgencyMode is for operator-managed accounts: everything runs
	// autonomously under high caps, deletes included.
	TemplateAgencyMode TemplateName = "agency_mode"
)

// IsValid returns true if the name refers to a built-in template.
func (n TemplateName) IsValid() bool {
	_, ok := templates[n]
	return ok
}

// Template is a named, versioned bundle of rules and rate limits
// representing a baseline policy stance. Pure data, defined in code,
// selected by name at configuration time.
type Template struct {
	Name        TemplateName
	Description string
	Rules       []Rule
	RateLimits  []ratelimit.Limit
}

var templates = map[TemplateName]Template{
	TemplateSafeDefault: {
		Name:        TemplateSafeDefault,
		Description: "Conservative stance: content creation and media go to approval, deletes are blocked, engagement is tightly capped.",
		Rules: []Rule{
			{
				ID:       "tpl-safe-deny-delete",
				Priority: 105,
				Label:    "Block deletions",
				Enabled:  true,
				Conditions: RuleConditions{
					Categories: []ToolCategory{CategoryDelete},
				},
				Action: Deny("deletions are disabled by the safe_default template"),
			},
			{
				ID:       "tpl-safe-approve-content",
				Priority: 110,
				Label:    "Review all content",
				Enabled:  true,
				Conditions: RuleConditions{
					Categories: []ToolCategory{CategoryWrite, CategoryThread, CategoryMedia},
				},
				Action: RequireApproval("safe_default template reviews all published content"),
			},
		},
		RateLimits: []ratelimit.Limit{
			{Dimension: ratelimit.DimensionGlobal, MaxCount: 10, Period: time.Hour},
			{Dimension: ratelimit.DimensionCategory, MatchValue: string(CategoryEngage), MaxCount: 30, Period: 24 * time.Hour},
			{Dimension: ratelimit.DimensionEngagementType, MatchValue: "follow", MaxCount: 10, Period: 24 * time.Hour},
		},
	},
	TemplateGrowthAggressive: {
		Name:        TemplateGrowthAggressive,
		Description: "Growth stance: autonomous posting and engagement under generous caps; destructive actions still reviewed.",
		Rules: []Rule{
			{
				ID:       "tpl-growth-approve-delete",
				Priority: 120,
				Label:    "Review deletions",
				Enabled:  true,
				Conditions: RuleConditions{
					Categories: []ToolCategory{CategoryDelete},
				},
				Action: RequireApproval("growth_aggressive template reviews destructive actions"),
			},
		},
		RateLimits: []ratelimit.Limit{
			{Dimension: ratelimit.DimensionGlobal, MaxCount: 60, Period: time.Hour},
			{Dimension: ratelimit.DimensionCategory, MatchValue: string(CategoryWrite), MaxCount: 48, Period: 24 * time.Hour},
			{Dimension: ratelimit.DimensionCategory, MatchValue: string(CategoryEngage), MaxCount: 200, Period: 24 * time.Hour},
			{Dimension: ratelimit.DimensionEngagementType, MatchValue: "follow", MaxCount: 50, Period: 24 * time.Hour},
		},
	},
	TemplateAgencyMode: {
		Name:        TemplateAgencyMode,
		Description: "Operator-managed stance: fully autonomous, deletes allowed, platform-shaped caps only.",
		Rules:       nil,
		RateLimits: []ratelimit.Limit{
			{Dimension: ratelimit.DimensionGlobal, MaxCount: 120, Period: time.Hour},
			{Dimension: ratelimit.DimensionCategory, MatchValue: string(CategoryDelete), MaxCount: 10, Period: 24 * time.Hour},
		},
	},
}

// TemplateByName returns the built-in template, or false when unknown.
func TemplateByName(name TemplateName) (Template, bool) {
	t, ok := templates[name]
	return t, ok
}

// TemplateNames lists all built-in template names.
func TemplateNames() []TemplateName {
	return []TemplateName{TemplateSafeDefault, TemplateGrowthAggressive, TemplateAgencyMode}
}
