package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/ensemble/internal/config"
	"github.com/ShayCichocki/ensemble/internal/logx"
)

var cfg *config.Config

// checkAgentCLI verifies that the configured agent executable is in PATH.
func checkAgentCLI() error {
	_, err := exec.LookPath(cfg.Agent.Executable)
	if err != nil {
		return fmt.Errorf("agent executable %q not found in PATH\n\n"+
			"Ensemble orchestrates agent subprocesses and needs the agent CLI installed.\n"+
			"Set agent.executable in the config if it lives under a different name.",
			cfg.Agent.Executable)
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "ensemble",
	Short: "Parallel agent orchestrator",
	Long: `Ensemble runs many long-lived agent subprocesses concurrently and
coordinates their inputs and outputs.

Execution modes:
- single:   one task, one agent
- parallel: many tasks under a concurrency bound
- chain:    sequential steps, each fed the previous output
- race:     one task under several agent configurations, first success wins
- team:     a task dependency graph with member roles, reviews, and approval gates`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if cfg.Debug {
			logx.SetDebug(true)
		}
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}
