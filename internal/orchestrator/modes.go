package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/ShayCichocki/ensemble/internal/pool"
	"github.com/ShayCichocki/ensemble/internal/team"
	"github.com/ShayCichocki/ensemble/internal/workspace"
	"github.com/ShayCichocki/ensemble/pkg/models"
)

// runSingle executes one task.
func (o *Orchestrator) runSingle(ctx context.Context, runID string, spec *SingleSpec) (*Summary, error) {
	opts, err := o.buildOptions(spec.Agent, spec.Overrides, "task-1", spec.Task, spec.Cwd)
	if err != nil {
		return nil, err
	}

	result := o.Runner.Run(ctx, opts)
	return newSummary(ModeSingle, runID, []models.TaskResult{result}, result.Aborted), nil
}

// runParallel executes tasks under a bounded worker pool. The executor never
// returns an error, so individual failures land in their results instead of
// tripping the pool's fail-fast path.
func (o *Orchestrator) runParallel(ctx context.Context, runID string, spec *ParallelSpec) (*Summary, error) {
	outcome, err := pool.MapBounded(ctx, spec.Tasks, spec.Concurrency,
		func(ctx context.Context, task string, idx int) (models.TaskResult, error) {
			opts, err := o.buildOptions(spec.Agent, spec.Overrides, fmt.Sprintf("task-%d", idx+1), task, spec.Cwd)
			if err != nil {
				return models.TaskResult{}, err
			}
			return o.Runner.Run(ctx, opts), nil
		})
	if err != nil {
		return nil, err
	}

	results := make([]models.TaskResult, 0, len(outcome.Results))
	for i, r := range outcome.Results {
		if !outcome.Filled[i] {
			// Never started before the abort.
			r = models.TaskResult{
				ID:      fmt.Sprintf("task-%d", i+1),
				Task:    spec.Tasks[i],
				Aborted: true,
			}
		}
		results = append(results, r)
	}
	return newSummary(ModeParallel, runID, results, outcome.Aborted), nil
}

// runChain executes steps sequentially. Each step's text may reference the
// previous output via {previous}; the previous output is also passed as
// context. The chain stops at the first failure or abort.
func (o *Orchestrator) runChain(ctx context.Context, runID string, spec *ChainSpec) (*Summary, error) {
	var results []models.TaskResult
	previous := ""
	aborted := false

	for i, step := range spec.Steps {
		task := strings.ReplaceAll(step, "{previous}", previous)

		opts, err := o.buildOptions(spec.Agent, spec.Overrides, fmt.Sprintf("step-%d", i+1), task, spec.Cwd)
		if err != nil {
			return nil, err
		}
		opts.Step = i + 1
		if previous != "" {
			opts.Context = previous
		}

		result := o.Runner.Run(ctx, opts)
		results = append(results, result)

		if result.Aborted {
			aborted = true
			break
		}
		if result.Failed() {
			break
		}
		previous = result.Output
	}

	return newSummary(ModeChain, runID, results, aborted), nil
}

// runRace executes the same task once per agent configuration; the first
// successful result wins and the losers are cancelled.
func (o *Orchestrator) runRace(ctx context.Context, runID string, spec *RaceSpec) (*Summary, error) {
	contenders := make([]pool.Contender[models.TaskResult], 0, len(spec.Agents))
	for _, agentName := range spec.Agents {
		opts, err := o.buildOptions(agentName, spec.Overrides, agentName, spec.Task, spec.Cwd)
		if err != nil {
			return nil, err
		}
		contenders = append(contenders, pool.Contender[models.TaskResult]{
			ID: agentName,
			Run: func(ctx context.Context) (models.TaskResult, error) {
				result := o.Runner.Run(ctx, opts)
				if result.Aborted {
					return result, context.Canceled
				}
				if result.Failed() {
					return result, fmt.Errorf("%s", result.Error)
				}
				return result, nil
			},
		})
	}

	outcome, err := pool.Race(ctx, contenders)
	if err != nil {
		return nil, err
	}
	if outcome.Aborted {
		return newSummary(ModeRace, runID, nil, true), nil
	}

	summary := newSummary(ModeRace, runID, []models.TaskResult{outcome.Result}, false)
	summary.Winner = outcome.Winner
	return summary, nil
}

// runTeam builds and executes the team DAG, persisting node outputs into a
// fresh workspace when a root is configured.
func (o *Orchestrator) runTeam(ctx context.Context, runID string, spec *TeamSpec) (*Summary, error) {
	dag, err := team.Build(spec.Config)
	if err != nil {
		return nil, err
	}

	engine := &team.Engine{
		Runner:         o.Runner,
		MaxConcurrency: spec.Config.MaxConcurrency,
		Cwd:            spec.Cwd,
		OnProgress:     o.OnProgress,
		Approve:        spec.Approve,
	}

	if spec.WorkspaceRoot != "" {
		ws, err := workspace.New(spec.WorkspaceRoot, spec.Config.Name)
		if err != nil {
			return nil, err
		}
		engine.Workspace = ws
	}

	teamResult := engine.Execute(ctx, dag)

	results := make([]models.TaskResult, 0, len(dag.Order))
	for _, id := range dag.Order {
		node := teamResult.Nodes[id]
		results = append(results, models.TaskResult{
			ID:       id,
			Task:     dag.Nodes[id].Task.Task,
			ExitCode: node.ExitCode,
			Output:   node.Output,
			Error:    node.Error,
			Usage:    node.Usage,
			Aborted:  node.Status == models.NodeStatusSkipped,
		})
	}

	summary := newSummary(ModeTeam, runID, results, teamResult.Aborted)
	summary.Team = teamResult
	summary.TeamDag = dag
	return summary, nil
}
