package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	celeval "github.com/agentperch/perchgate/internal/adapter/outbound/cel"
	"github.com/agentperch/perchgate/internal/domain/policy"
)

// Validate validates the Config using struct tags and cross-field rules.
// Returns an error with actionable messages if validation fails.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateRuleIDs(); err != nil {
		return err
	}

	if err := c.validateWindows(); err != nil {
		return err
	}

	return c.validateExpressions()
}

// validateRuleIDs ensures user rule IDs are unique and do not collide with
// the reserved hard-rule and template namespaces.
func (c *Config) validateRuleIDs() error {
	seen := make(map[string]struct{}, len(c.Policy.UserRules))
	for i, r := range c.Policy.UserRules {
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("user_rules[%d]: duplicate rule id %q", i, r.ID)
		}
		seen[r.ID] = struct{}{}
		if strings.HasPrefix(r.ID, "hard-") || strings.HasPrefix(r.ID, "tpl-") ||
			strings.HasPrefix(r.ID, policy.BlockedToolRulePrefix) {
			return fmt.Errorf("user_rules[%d]: rule id %q uses a reserved prefix", i, r.ID)
		}
	}
	return nil
}

// validateWindows checks that time windows parse: HH:MM bounds and a loadable
// timezone. Unparseable windows would silently never match at evaluation
// time, so they are rejected at load instead.
func (c *Config) validateWindows() error {
	for i, r := range c.Policy.UserRules {
		if r.Window == nil {
			continue
		}
		w := policy.TimeWindow{
			Start:    r.Window.Start,
			End:      r.Window.End,
			Days:     parseDays(r.Window.Days),
			Timezone: r.Window.Timezone,
		}
		if err := w.Validate(); err != nil {
			return fmt.Errorf("user_rules[%d].window: %w", i, err)
		}
	}
	return nil
}

// validateExpressions compiles every user rule expression so syntax and cost
// problems surface at load time rather than on the request path.
func (c *Config) validateExpressions() error {
	var ev *celeval.Evaluator
	for i, r := range c.Policy.UserRules {
		if r.Expression == "" {
			continue
		}
		if ev == nil {
			var err error
			ev, err = celeval.NewEvaluator()
			if err != nil {
				return fmt.Errorf("expression environment: %w", err)
			}
		}
		if err := ev.ValidateExpression(r.Expression); err != nil {
			return fmt.Errorf("user_rules[%d].expression: %w", i, err)
		}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly
// messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single
// validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, e.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
