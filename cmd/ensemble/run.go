package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/ensemble/internal/agents"
	"github.com/ShayCichocki/ensemble/internal/config"
	"github.com/ShayCichocki/ensemble/internal/executor"
	"github.com/ShayCichocki/ensemble/internal/history"
	"github.com/ShayCichocki/ensemble/internal/orchestrator"
	"github.com/ShayCichocki/ensemble/internal/render"
	"github.com/ShayCichocki/ensemble/internal/team"
	"github.com/ShayCichocki/ensemble/pkg/models"
)

var (
	runMode        string
	runAgent       string
	runModel       string
	runProvider    string
	runTools       []string
	runThinking    string
	runConcurrency int
	runTeamFile    string
	runRaceAgents  []string
	runCwd         string
	runTimeoutMs   int64
	runMaxRetries  int
	runBackoffMs   int64
	runVerbose     bool
)

var runCmd = &cobra.Command{
	Use:   "run [task...]",
	Short: "Execute tasks under a mode",
	Long: `Execute one or more tasks under the selected mode.

single and race take one task; parallel takes many; chain treats each
argument as a step and substitutes {previous} with the prior step's output;
team reads the graph from --team and ignores positional tasks.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkAgentCLI(); err != nil {
			return err
		}

		registry, err := loadAgents()
		if err != nil {
			return err
		}

		req, err := buildRequest(args)
		if err != nil {
			return err
		}

		agent := executor.New(cfg.Agent.Executable)
		agent.MaxOutputBytes = cfg.Output.MaxBytes
		agent.MaxOutputLines = cfg.Output.MaxLines

		printer := render.NewPrinter(os.Stdout)
		printer.Verbose = runVerbose

		o := &orchestrator.Orchestrator{
			Runner:     agent,
			Agents:     registry,
			OnProgress: printer.Progress,
		}

		if cfg.History.Enabled {
			if store, err := history.Open(cfg.History.Path); err == nil {
				defer store.Close()
				o.History = store
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		summary, err := o.Run(ctx, req)
		if err != nil {
			return err
		}

		printer.Summary(summary)
		if code := summary.ExitCode(); code != 0 {
			os.Exit(code)
		}
		return nil
	},
}

// loadAgents discovers and resolves the agent registry.
func loadAgents() (map[string]*models.AgentConfig, error) {
	registry, err := agents.Discover(cfg.AgentsUserDir(), config.AgentsProjectDir())
	if err != nil {
		return nil, err
	}
	if err := agents.ResolveInheritance(registry); err != nil {
		return nil, err
	}
	return registry, nil
}

// buildRequest turns flags and args into the tagged mode request.
func buildRequest(args []string) (orchestrator.Request, error) {
	overrides := agents.Settings{
		Model:    runModel,
		Provider: runProvider,
		Tools:    runTools,
		Thinking: runThinking,
	}
	if runTimeoutMs > 0 {
		overrides.ResourceLimits.MaxDurationMs = runTimeoutMs
	}
	if runMaxRetries > 0 {
		overrides.Retry = &models.RetryConfig{
			MaxAttempts: runMaxRetries,
			BackoffMs:   runBackoffMs,
		}
	}

	cwd := runCwd
	if cwd == "" {
		cwd, _ = os.Getwd()
	}

	mode := orchestrator.Mode(runMode)
	switch mode {
	case orchestrator.ModeSingle:
		if len(args) != 1 {
			return orchestrator.Request{}, fmt.Errorf("single mode takes exactly one task")
		}
		return orchestrator.Request{Mode: mode, Single: &orchestrator.SingleSpec{
			Task: args[0], Agent: runAgent, Cwd: cwd, Overrides: overrides,
		}}, nil

	case orchestrator.ModeParallel:
		if len(args) == 0 {
			return orchestrator.Request{}, fmt.Errorf("parallel mode takes at least one task")
		}
		return orchestrator.Request{Mode: mode, Parallel: &orchestrator.ParallelSpec{
			Tasks: args, Agent: runAgent, Cwd: cwd,
			Concurrency: runConcurrency, Overrides: overrides,
		}}, nil

	case orchestrator.ModeChain:
		if len(args) == 0 {
			return orchestrator.Request{}, fmt.Errorf("chain mode takes at least one step")
		}
		return orchestrator.Request{Mode: mode, Chain: &orchestrator.ChainSpec{
			Steps: args, Agent: runAgent, Cwd: cwd, Overrides: overrides,
		}}, nil

	case orchestrator.ModeRace:
		if len(args) != 1 {
			return orchestrator.Request{}, fmt.Errorf("race mode takes exactly one task")
		}
		if len(runRaceAgents) < 2 {
			return orchestrator.Request{}, fmt.Errorf("race mode needs at least two --race-agent configurations")
		}
		return orchestrator.Request{Mode: mode, Race: &orchestrator.RaceSpec{
			Task: args[0], Agents: runRaceAgents, Cwd: cwd, Overrides: overrides,
		}}, nil

	case orchestrator.ModeTeam:
		if runTeamFile == "" {
			return orchestrator.Request{}, fmt.Errorf("team mode needs --team <file>")
		}
		teamCfg, err := team.Load(runTeamFile)
		if err != nil {
			return orchestrator.Request{}, err
		}
		return orchestrator.Request{Mode: mode, Team: &orchestrator.TeamSpec{
			Config:        teamCfg,
			Cwd:           cwd,
			WorkspaceRoot: cfg.Defaults.WorkspaceRoot,
			Approve:       terminalApprove,
		}}, nil

	default:
		return orchestrator.Request{}, fmt.Errorf("unknown mode %q", runMode)
	}
}

// terminalApprove prompts on the terminal for plan-node approval.
func terminalApprove(taskID, output string) (team.Approval, error) {
	fmt.Printf("\n--- approval required for %s ---\n%s\n--- approve? [y/N/feedback] ---\n", taskID, output)

	var line string
	if _, err := fmt.Scanln(&line); err != nil {
		line = ""
	}
	switch line {
	case "y", "Y", "yes":
		return team.Approval{Approved: true}, nil
	case "", "n", "N", "no":
		return team.Approval{Approved: false, Feedback: "rejected without feedback"}, nil
	default:
		return team.Approval{Approved: false, Feedback: line}, nil
	}
}

func init() {
	runCmd.Flags().StringVarP(&runMode, "mode", "m", "single", "execution mode: single, parallel, chain, race, team")
	runCmd.Flags().StringVarP(&runAgent, "agent", "a", "", "named agent configuration to run with")
	runCmd.Flags().StringVar(&runModel, "model", "", "model override")
	runCmd.Flags().StringVar(&runProvider, "provider", "", "model provider override")
	runCmd.Flags().StringSliceVar(&runTools, "tools", nil, "tool allowlist override")
	runCmd.Flags().StringVar(&runThinking, "thinking", "", "thinking budget (tokens or low/medium/high)")
	runCmd.Flags().IntVarP(&runConcurrency, "concurrency", "c", 0, "parallel mode concurrency (0 = one worker per task)")
	runCmd.Flags().StringVar(&runTeamFile, "team", "", "team definition file (YAML)")
	runCmd.Flags().StringSliceVar(&runRaceAgents, "race-agent", nil, "agent configurations to race (repeatable)")
	runCmd.Flags().StringVar(&runCwd, "cwd", "", "working directory for agent processes")
	runCmd.Flags().Int64Var(&runTimeoutMs, "timeout-ms", 0, "per-task duration limit in milliseconds")
	runCmd.Flags().IntVar(&runMaxRetries, "max-retries", 0, "retry attempts per task")
	runCmd.Flags().Int64Var(&runBackoffMs, "retry-backoff-ms", 1000, "base retry backoff in milliseconds")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "echo every progress event")
}
