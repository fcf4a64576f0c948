// Package orchestrator drives the five execution modes over the shared
// executor: single, parallel, chain, race, and team. The mode input is a
// tagged union dispatched once; the modes are independent drivers, not a
// hierarchy.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ShayCichocki/ensemble/internal/agents"
	"github.com/ShayCichocki/ensemble/internal/executor"
	"github.com/ShayCichocki/ensemble/internal/history"
	"github.com/ShayCichocki/ensemble/internal/logx"
	"github.com/ShayCichocki/ensemble/internal/team"
	"github.com/ShayCichocki/ensemble/pkg/models"
)

// Mode selects an execution strategy.
type Mode string

const (
	// ModeSingle runs one task once.
	ModeSingle Mode = "single"
	// ModeParallel runs many tasks under a concurrency bound.
	ModeParallel Mode = "parallel"
	// ModeChain runs steps sequentially, feeding each step the previous output.
	ModeChain Mode = "chain"
	// ModeRace runs one task under several agent configurations, first success wins.
	ModeRace Mode = "race"
	// ModeTeam executes a task dependency graph with member roles.
	ModeTeam Mode = "team"
)

// Valid returns true if the mode is a known value.
func (m Mode) Valid() bool {
	switch m {
	case ModeSingle, ModeParallel, ModeChain, ModeRace, ModeTeam:
		return true
	default:
		return false
	}
}

// Runner executes a single agent invocation. The executor's Agent satisfies
// this; tests substitute stubs.
type Runner interface {
	Run(ctx context.Context, opts executor.Options) models.TaskResult
}

// SingleSpec parameterizes single mode.
type SingleSpec struct {
	Task      string
	Agent     string
	Cwd       string
	Overrides agents.Settings
}

// ParallelSpec parameterizes parallel mode.
type ParallelSpec struct {
	Tasks       []string
	Agent       string
	Cwd         string
	Concurrency int
	Overrides   agents.Settings
}

// ChainSpec parameterizes chain mode. Each step may reference the previous
// step's output with the {previous} placeholder.
type ChainSpec struct {
	Steps     []string
	Agent     string
	Cwd       string
	Overrides agents.Settings
}

// RaceSpec parameterizes race mode: the same task under each named agent
// configuration.
type RaceSpec struct {
	Task      string
	Agents    []string
	Cwd       string
	Overrides agents.Settings
}

// TeamSpec parameterizes team mode.
type TeamSpec struct {
	Config        team.Config
	Cwd           string
	WorkspaceRoot string
	Approve       team.ApproveFunc
}

// Request is the tagged mode input. Exactly the field matching Mode is read.
type Request struct {
	Mode     Mode
	Single   *SingleSpec
	Parallel *ParallelSpec
	Chain    *ChainSpec
	Race     *RaceSpec
	Team     *TeamSpec
}

// Orchestrator coordinates mode execution over a shared runner.
type Orchestrator struct {
	// Runner executes individual tasks. Required.
	Runner Runner
	// Agents is the resolved agent registry used by settings resolution.
	Agents map[string]*models.AgentConfig
	// OnProgress receives progress snapshots from every task.
	OnProgress func(models.TaskProgress)
	// History records finished results when non-nil.
	History *history.Store
}

// Run dispatches one request to its mode driver.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Summary, error) {
	runID := uuid.New().String()[:8]
	logx.Debugf("[orchestrator] run %s: mode=%s", runID, req.Mode)

	var (
		summary *Summary
		err     error
	)
	switch req.Mode {
	case ModeSingle:
		if req.Single == nil {
			return nil, fmt.Errorf("single mode requires a single spec")
		}
		summary, err = o.runSingle(ctx, runID, req.Single)
	case ModeParallel:
		if req.Parallel == nil {
			return nil, fmt.Errorf("parallel mode requires a parallel spec")
		}
		summary, err = o.runParallel(ctx, runID, req.Parallel)
	case ModeChain:
		if req.Chain == nil {
			return nil, fmt.Errorf("chain mode requires a chain spec")
		}
		summary, err = o.runChain(ctx, runID, req.Chain)
	case ModeRace:
		if req.Race == nil {
			return nil, fmt.Errorf("race mode requires a race spec")
		}
		summary, err = o.runRace(ctx, runID, req.Race)
	case ModeTeam:
		if req.Team == nil {
			return nil, fmt.Errorf("team mode requires a team spec")
		}
		summary, err = o.runTeam(ctx, runID, req.Team)
	default:
		return nil, fmt.Errorf("unknown mode %q", req.Mode)
	}

	if err != nil {
		return nil, err
	}

	o.record(summary)
	return summary, nil
}

// buildOptions resolves the named agent plus overrides into executor options.
func (o *Orchestrator) buildOptions(agentName string, overrides agents.Settings, id, task, cwd string) (executor.Options, error) {
	settings, err := agents.ResolveSettings(o.Agents, agentName, overrides)
	if err != nil {
		return executor.Options{}, err
	}
	return executor.Options{
		Task:         task,
		Cwd:          cwd,
		ID:           id,
		Provider:     settings.Provider,
		Model:        settings.Model,
		Tools:        settings.Tools,
		SystemPrompt: settings.SystemPrompt,
		Thinking:     settings.Thinking,
		Retry:        settings.Retry,
		Limits:       settings.ResourceLimits,
		OnProgress:   o.OnProgress,
	}, nil
}

// record appends the summary's results to the run history.
func (o *Orchestrator) record(summary *Summary) {
	if o.History == nil {
		return
	}
	for _, result := range summary.Results {
		if err := o.History.Record(summary.RunID, string(summary.Mode), result); err != nil {
			logx.Debugf("[orchestrator] history record failed: %v", err)
		}
	}
}
