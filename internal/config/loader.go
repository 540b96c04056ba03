package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for perchgate.yaml/.yml in
// standard locations. The search requires an explicit YAML extension to avoid
// matching the binary itself, which Viper's SetConfigName would match.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location. Set name/type
		// without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("perchgate")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: PERCHGATE_POLICY_DRY_RUN
	viper.SetEnvPrefix("PERCHGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a perchgate config file with
// an explicit YAML extension (.yaml or .yml).
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".perchgate"),
		"/etc/perchgate",
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for perchgate.yaml or
// .yml. Returns the full path of the first match, or empty string.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "perchgate"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds nested config keys for environment variable
// support. Example: PERCHGATE_POLICY_TEMPLATE overrides policy.template.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("mode")
	_ = viper.BindEnv("log_level")
	_ = viper.BindEnv("dedup_window")

	_ = viper.BindEnv("store.path")

	_ = viper.BindEnv("telemetry.enabled")

	_ = viper.BindEnv("policy.enforce_for_mutations")
	_ = viper.BindEnv("policy.template")
	_ = viper.BindEnv("policy.dry_run")
	_ = viper.BindEnv("policy.legacy_hourly_cap")
	// Note: blocked_tools, approval_required_tools, rate_limits and
	// user_rules are arrays; use the config file for those.
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, and validates. Callers get a ready-to-use Config.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars only.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was loaded.
// Returns an empty string if no config file was found (env vars only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
