package policy

import (
	"testing"
	"time"

	"github.com/agentperch/perchgate/internal/domain/ratelimit"
)

func TestTemplateByName(t *testing.T) {
	for _, name := range TemplateNames() {
		tpl, ok := TemplateByName(name)
		if !ok {
			t.Fatalf("TemplateByName(%q) not found", name)
		}
		if tpl.Name != name {
			t.Errorf("template %q reports name %q", name, tpl.Name)
		}
		if !name.IsValid() {
			t.Errorf("TemplateNames() returned invalid name %q", name)
		}
	}
	if _, ok := TemplateByName("custom"); ok {
		t.Error("unknown template name should not resolve")
	}
	if TemplateName("custom").IsValid() {
		t.Error("unknown template name should not be valid")
	}
}

// Template rules must live inside the template priority band so hard rules
// always win and user rules always lose ties against them.
func TestTemplateRulePriorityBand(t *testing.T) {
	for _, name := range TemplateNames() {
		tpl, _ := TemplateByName(name)
		for _, r := range tpl.Rules {
			if r.Priority < PriorityHardMax || r.Priority >= PriorityTemplateMax {
				t.Errorf("template %q rule %q priority %d outside [%d, %d)",
					name, r.ID, r.Priority, PriorityHardMax, PriorityTemplateMax)
			}
			if !r.Enabled {
				t.Errorf("template %q rule %q is disabled", name, r.ID)
			}
		}
	}
}

func TestSafeDefaultStance(t *testing.T) {
	tpl, _ := TemplateByName(TemplateSafeDefault)

	var denyDelete, approveContent bool
	for _, r := range tpl.Rules {
		switch r.ID {
		case "tpl-safe-deny-delete":
			denyDelete = r.Action.Kind == ActionDeny
		case "tpl-safe-approve-content":
			approveContent = r.Action.Kind == ActionRequireApproval
		}
	}
	if !denyDelete {
		t.Error("safe_default should deny deletions")
	}
	if !approveContent {
		t.Error("safe_default should route content to approval")
	}
	if len(tpl.RateLimits) == 0 {
		t.Error("safe_default should carry rate limits")
	}
}

func TestAgencyModeHasNoRules(t *testing.T) {
	tpl, _ := TemplateByName(TemplateAgencyMode)
	if len(tpl.Rules) != 0 {
		t.Errorf("agency_mode should have no rules, got %d", len(tpl.Rules))
	}
	if len(tpl.RateLimits) == 0 {
		t.Error("agency_mode should still carry rate limits")
	}
}

func TestEffectiveLimitsMergesTemplateAndUser(t *testing.T) {
	cfg := &Config{
		Template: TemplateSafeDefault,
		RateLimits: []ratelimit.Limit{
			{Dimension: ratelimit.DimensionTool, MatchValue: "post_tweet", MaxCount: 5, Period: time.Hour},
		},
	}
	tpl, _ := TemplateByName(TemplateSafeDefault)

	limits := cfg.EffectiveLimits()
	if len(limits) != len(tpl.RateLimits)+1 {
		t.Fatalf("EffectiveLimits() returned %d limits, want %d", len(limits), len(tpl.RateLimits)+1)
	}
	last := limits[len(limits)-1]
	if last.MatchValue != "post_tweet" {
		t.Errorf("user limit should come after template limits, got %+v", last)
	}
}
