package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/agentperch/perchgate/internal/config"
	"github.com/agentperch/perchgate/internal/domain/policy"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Print the effective policy",
	Long: `Print the resolved policy as YAML: the effective rule list in
evaluation order (hard rules, template rules, user rules) and the effective
rate limits, after the template and user configuration are merged.

Useful to verify what a config change actually does before running the
gateway.

Examples:
  # Show the effective policy for the configured mode
  perchgate policy

  # Show what autonomous mode would evaluate
  perchgate policy --mode autonomous`,
	RunE: runPolicy,
}

var policyModeFlag string

func init() {
	policyCmd.Flags().StringVar(&policyModeFlag, "mode", "", "override operating mode (manual/supervised/autonomous)")
	rootCmd.AddCommand(policyCmd)
}

// effectivePolicyDoc is the YAML document printed by the policy command.
type effectivePolicyDoc struct {
	Version   string              `yaml:"version"`
	Template  string              `yaml:"template"`
	Mode      string              `yaml:"mode"`
	Enforcing bool                `yaml:"enforcing"`
	DryRun    bool                `yaml:"dry_run,omitempty"`
	HourlyCap int                 `yaml:"legacy_hourly_cap,omitempty"`
	Rules     []effectiveRuleDoc  `yaml:"rules"`
	Limits    []effectiveLimitDoc `yaml:"rate_limits"`
}

type effectiveRuleDoc struct {
	ID       string `yaml:"id"`
	Priority int    `yaml:"priority"`
	Action   string `yaml:"action"`
	Label    string `yaml:"label,omitempty"`
	Reason   string `yaml:"reason,omitempty"`
}

type effectiveLimitDoc struct {
	Dimension string `yaml:"dimension"`
	Match     string `yaml:"match,omitempty"`
	MaxCount  int    `yaml:"max_count"`
	Period    string `yaml:"period"`
}

func runPolicy(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if policyModeFlag != "" {
		cfg.Mode = policyModeFlag
		if !cfg.OperatingMode().IsValid() {
			return fmt.Errorf("invalid mode %q", policyModeFlag)
		}
	}

	pol := cfg.ToPolicy()
	mode := cfg.OperatingMode()

	doc := effectivePolicyDoc{
		Version:   pol.Version,
		Template:  string(pol.Template),
		Mode:      string(mode),
		Enforcing: pol.EnforceForMutations,
		DryRun:    pol.DryRun,
		HourlyCap: pol.LegacyHourlyCap,
	}
	for _, r := range policy.BuildEffectiveRules(pol, mode) {
		doc.Rules = append(doc.Rules, effectiveRuleDoc{
			ID:       r.ID,
			Priority: r.Priority,
			Action:   string(r.Action.Kind),
			Label:    r.Label,
			Reason:   r.Action.Reason,
		})
	}
	for _, l := range pol.EffectiveLimits() {
		doc.Limits = append(doc.Limits, effectiveLimitDoc{
			Dimension: string(l.Dimension),
			Match:     l.MatchValue,
			MaxCount:  l.MaxCount,
			Period:    l.Period.String(),
		})
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to render policy: %w", err)
	}
	_, err = os.Stdout.Write(out)
	return err
}
