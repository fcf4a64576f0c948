package orchestrator

import (
	"github.com/ShayCichocki/ensemble/internal/team"
	"github.com/ShayCichocki/ensemble/pkg/models"
)

// Summary is the aggregated outcome of one orchestrator run.
type Summary struct {
	// Mode is the execution mode that produced this summary.
	Mode Mode
	// RunID identifies the run in history and logs.
	RunID string
	// Results holds the per-task results, in task order.
	Results []models.TaskResult
	// Team carries the per-node detail for team mode.
	Team *team.Result
	// TeamDag is the validated graph behind Team, for dependency reporting.
	TeamDag *team.Dag
	// Winner is the winning agent configuration in race mode.
	Winner string
	// Aborted is set when cancellation ended the run early.
	Aborted bool
	// Succeeded and Failed count terminal task outcomes.
	Succeeded int
	Failed    int
	// Skipped counts results marked aborted, in any mode (in team mode this
	// includes the nodes that never ran).
	Skipped int
}

// newSummary aggregates results into a summary with outcome counts.
func newSummary(mode Mode, runID string, results []models.TaskResult, aborted bool) *Summary {
	s := &Summary{
		Mode:    mode,
		RunID:   runID,
		Results: results,
		Aborted: aborted,
	}
	for _, r := range results {
		switch {
		case r.Aborted:
			s.Skipped++
		case r.Failed():
			s.Failed++
		default:
			s.Succeeded++
		}
	}
	return s
}

// ExitCode maps the summary to the process exit contract: zero for success
// or a requested abort, non-zero when any task failed without recovery.
func (s *Summary) ExitCode() int {
	if s.Failed > 0 {
		return 1
	}
	return 0
}

// SkippedNode describes a team node that never ran and the upstream failure
// that caused it.
type SkippedNode struct {
	// ID is the skipped node.
	ID string
	// Cause is the failed upstream node, or "" when cancellation skipped it.
	Cause string
}

// SkippedNodes lists team nodes skipped because of an upstream failure,
// each with the originating failed node.
func (s *Summary) SkippedNodes() []SkippedNode {
	dag := s.TeamDag
	if s.Team == nil || dag == nil {
		return nil
	}

	var skipped []SkippedNode
	for _, id := range dag.Order {
		node := s.Team.Nodes[id]
		if node.Status != models.NodeStatusSkipped {
			continue
		}
		skipped = append(skipped, SkippedNode{
			ID:    id,
			Cause: findFailedUpstream(dag, s.Team, id, map[string]bool{}),
		})
	}
	return skipped
}

// findFailedUpstream walks dependencies to the nearest failed ancestor.
func findFailedUpstream(dag *team.Dag, result *team.Result, id string, seen map[string]bool) string {
	if seen[id] {
		return ""
	}
	seen[id] = true

	for _, dep := range dag.Nodes[id].Depends {
		switch result.Nodes[dep].Status {
		case models.NodeStatusFailed:
			return dep
		case models.NodeStatusSkipped:
			if cause := findFailedUpstream(dag, result, dep, seen); cause != "" {
				return cause
			}
		}
	}
	return ""
}
