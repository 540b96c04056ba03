// Package cmd provides the CLI commands for perchgate.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentperch/perchgate/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "perchgate",
	Short: "perchgate - mutation governance gateway",
	Long: `Perchgate gates every mutating action an autonomous social agent performs.

Each proposed mutation is checked against policy rules, rate limits, and an
idempotency window, and every outcome is written to a durable audit trail.
The gateway is exposed over MCP on stdio so agent runtimes can consult it
before touching the platform.

Quick start:
  1. Create a config file: perchgate.yaml
  2. Run: perchgate run

Configuration:
  Config is loaded from perchgate.yaml in the current directory,
  $HOME/.perchgate/, or /etc/perchgate/.

  Environment variables can override config values with the PERCHGATE_ prefix.
  Example: PERCHGATE_POLICY_DRY_RUN=true

Commands:
  run         Serve the governance gateway over MCP stdio
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./perchgate.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
