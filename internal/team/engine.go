package team

import (
	"context"
	"fmt"
	"strings"

	"github.com/ShayCichocki/ensemble/internal/executor"
	"github.com/ShayCichocki/ensemble/internal/logx"
	"github.com/ShayCichocki/ensemble/pkg/models"
)

// DefaultMaxApprovalRounds bounds human-approval re-runs when the task does
// not configure its own review iteration cap.
const DefaultMaxApprovalRounds = 5

// Runner executes a single agent invocation. The executor's Agent satisfies
// this; tests substitute stubs.
type Runner interface {
	Run(ctx context.Context, opts executor.Options) models.TaskResult
}

// ResultWriter persists a finished node's output. The workspace satisfies
// this; a nil writer disables persistence.
type ResultWriter interface {
	WriteTaskResult(id, output, status string) error
}

// Approval is a human reviewer's verdict on a node's output.
type Approval struct {
	// Approved accepts the output as-is.
	Approved bool
	// Feedback is appended to the task text when not approved.
	Feedback string
}

// ApproveFunc solicits a human verdict for a node that requires approval.
type ApproveFunc func(taskID, output string) (Approval, error)

// NodeResult is the per-node outcome of a team execution.
type NodeResult struct {
	// Status is the node's final state.
	Status models.NodeStatus
	// Output is the node's last produced output.
	Output string
	// ExitCode is the last execution's exit code.
	ExitCode int
	// Error is the failure description, empty on success.
	Error string
	// Iteration counts primary executions, including review re-runs.
	Iteration int
	// Usage accumulates token counters across the node's executions.
	Usage models.UsageStats
}

// Result is the outcome of a team execution.
type Result struct {
	// Nodes maps task ID to its final result.
	Nodes map[string]NodeResult
	// Aborted is set when external cancellation stopped the team early.
	Aborted bool
}

// Engine executes a validated Dag. Independent branches keep running when a
// node fails; only its dependents are skipped. Execute never returns an
// error: structural problems are caught by Build, everything later is
// reported per node.
type Engine struct {
	// Runner executes individual nodes. Required.
	Runner Runner
	// Workspace persists node outputs when non-nil.
	Workspace ResultWriter
	// MaxConcurrency bounds simultaneous node executions.
	MaxConcurrency int
	// Cwd is the working directory handed to every node execution.
	Cwd string
	// OnProgress receives progress snapshots from all node executions.
	OnProgress func(models.TaskProgress)
	// Approve solicits human approval for nodes that require it. A nil
	// func disables the gate.
	Approve ApproveFunc
	// ReviewApproved decides whether a reviewer's output approves the work.
	// Defaults to looking for the "APPROVED" marker.
	ReviewApproved func(reviewerOutput string) bool
	// MaxApprovalRounds bounds approval-driven re-runs of tasks without a
	// review iteration cap; defaults to DefaultMaxApprovalRounds.
	MaxApprovalRounds int
}

// nodeOutcome is what a node execution goroutine reports back to the
// scheduler. Node fields are only mutated by the scheduler goroutine.
type nodeOutcome struct {
	id        string
	status    models.NodeStatus
	output    string
	errMsg    string
	exitCode  int
	iteration int
	usage     models.UsageStats
}

// Execute schedules the DAG until every node reaches a terminal state or
// the context is cancelled.
func (e *Engine) Execute(ctx context.Context, dag *Dag) *Result {
	limit := e.MaxConcurrency
	if limit <= 0 {
		limit = DefaultMaxConcurrency
	}
	if limit > MaxConcurrencyCap {
		limit = MaxConcurrencyCap
	}

	doneCh := make(chan nodeOutcome)
	running := 0
	aborted := false

	for {
		promote(dag)

		if ctx.Err() == nil {
			for _, id := range dag.Order {
				if running >= limit {
					break
				}
				node := dag.Nodes[id]
				if node.Status != models.NodeStatusReady {
					continue
				}
				node.Status = models.NodeStatusRunning
				running++
				logx.Debugf("[team] launching node %s (running=%d)", id, running)
				go func(n *Node) {
					doneCh <- e.runNode(ctx, dag, n)
				}(node)
			}
		}

		if running == 0 {
			break
		}

		select {
		case out := <-doneCh:
			running--
			e.applyOutcome(dag, out)
		case <-ctx.Done():
			aborted = true
			// Running nodes observe the cancellation through their own
			// executions; drain them before returning.
			for running > 0 {
				out := <-doneCh
				running--
				e.applyOutcome(dag, out)
			}
		}

		if aborted {
			break
		}
	}

	if ctx.Err() != nil {
		aborted = true
	}

	result := &Result{Nodes: make(map[string]NodeResult, len(dag.Nodes)), Aborted: aborted}
	for id, node := range dag.Nodes {
		switch node.Status {
		case models.NodeStatusPending, models.NodeStatusReady, models.NodeStatusRunning:
			node.Status = models.NodeStatusSkipped
		}
		result.Nodes[id] = NodeResult{
			Status:    node.Status,
			Output:    node.Output,
			ExitCode:  node.ExitCode,
			Error:     node.Error,
			Iteration: node.Iteration,
			Usage:     node.Usage,
		}
	}
	return result
}

// promote advances pending nodes whose dependencies completed to ready and
// skips nodes downstream of failures, propagating transitively.
func promote(dag *Dag) {
	for changed := true; changed; {
		changed = false
		for _, id := range dag.Order {
			node := dag.Nodes[id]
			if node.Status != models.NodeStatusPending {
				continue
			}

			allCompleted := true
			blocked := false
			for _, dep := range node.Depends {
				switch dag.Nodes[dep].Status {
				case models.NodeStatusCompleted:
				case models.NodeStatusFailed, models.NodeStatusSkipped:
					blocked = true
				default:
					allCompleted = false
				}
			}

			switch {
			case blocked:
				node.Status = models.NodeStatusSkipped
				changed = true
				logx.Debugf("[team] node %s skipped (upstream failure)", id)
			case allCompleted:
				node.Status = models.NodeStatusReady
				changed = true
			}
		}
	}
}

// applyOutcome folds a finished execution back into the node. Only the
// scheduler goroutine touches node state.
func (e *Engine) applyOutcome(dag *Dag, out nodeOutcome) {
	node := dag.Nodes[out.id]
	node.Status = out.status
	node.Output = out.output
	node.Error = out.errMsg
	node.ExitCode = out.exitCode
	node.Iteration = out.iteration
	node.Usage = out.usage

	if e.Workspace != nil && (out.status == models.NodeStatusCompleted || out.status == models.NodeStatusFailed) {
		if err := e.Workspace.WriteTaskResult(out.id, out.output, string(out.status)); err != nil {
			logx.Debugf("[team] persist node %s: %v", out.id, err)
		}
	}
	logx.Debugf("[team] node %s finished: %s", out.id, out.status)
}

// runNode executes one node: the primary run, the review loop, and the
// human approval gate. Approval encloses review: a rejected output restarts
// the whole primary-plus-review sequence with the feedback appended.
func (e *Engine) runNode(ctx context.Context, dag *Dag, node *Node) nodeOutcome {
	taskContext := assembleContext(dag, node)
	baseTask := node.Task.Task

	out := nodeOutcome{id: node.Task.ID}

	maxRounds := e.MaxApprovalRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxApprovalRounds
	}
	if review := node.Task.Review; review != nil && review.MaxIterations > 0 {
		maxRounds = review.MaxIterations
	}

	taskText := baseTask
	for round := 0; ; round++ {
		res := e.runReviewed(ctx, dag, node, taskText, taskContext, &out)
		if out.status == models.NodeStatusFailed || out.status == models.NodeStatusSkipped {
			return out
		}

		if !node.Task.RequiresApproval || e.Approve == nil {
			break
		}
		approval, err := e.Approve(node.Task.ID, res.Output)
		if err != nil {
			out.status = models.NodeStatusFailed
			out.errMsg = fmt.Sprintf("approval failed: %v", err)
			return out
		}
		if approval.Approved || round+1 >= maxRounds {
			break
		}
		taskText = baseTask + "\n\nReviewer feedback:\n" + approval.Feedback
	}

	out.status = models.NodeStatusCompleted
	return out
}

// runReviewed performs one primary execution plus the configured review
// loop, re-running the primary task with reviewer feedback until approval
// or the iteration cap. Exhausting the cap still leaves the node completed
// with its last output.
func (e *Engine) runReviewed(ctx context.Context, dag *Dag, node *Node, taskText, taskContext string, out *nodeOutcome) models.TaskResult {
	res := e.runPrimary(ctx, node, taskText, taskContext, out)
	if fillFailure(out, res) {
		return res
	}

	review := node.Task.Review
	if review == nil {
		out.output = res.Output
		return res
	}

	maxIter := review.MaxIterations
	if maxIter < 1 {
		maxIter = 1
	}

	currentTask := taskText
	for iter := 1; iter <= maxIter; iter++ {
		rev := e.runReviewer(ctx, dag, node, review, res.Output)
		out.usage.Add(rev.Usage)
		if rev.Failed() || rev.Aborted {
			// A broken reviewer does not fail the work itself.
			logx.Debugf("[team] node %s: reviewer failed (%s), keeping last output", node.Task.ID, rev.Error)
			break
		}
		if e.reviewApproved(rev.Output) {
			break
		}
		if iter == maxIter {
			break
		}

		currentTask = currentTask + "\n\nReviewer feedback:\n" + rev.Output
		res = e.runPrimary(ctx, node, currentTask, taskContext, out)
		if fillFailure(out, res) {
			return res
		}
	}

	out.output = res.Output
	return res
}

// runPrimary executes the node's task once under its merged settings.
func (e *Engine) runPrimary(ctx context.Context, node *Node, taskText, taskContext string, out *nodeOutcome) models.TaskResult {
	out.iteration++

	opts := executor.Options{
		Task:         taskText,
		Cwd:          e.Cwd,
		ID:           node.Task.ID,
		Name:         node.Task.ID,
		Context:      taskContext,
		SystemPrompt: node.Member.SystemPrompt,
		Thinking:     node.Member.Thinking,
		OnProgress:   e.OnProgress,
	}
	applyOverrides(&opts, node)

	res := e.Runner.Run(ctx, opts)
	out.usage.Add(res.Usage)
	out.exitCode = res.ExitCode
	return res
}

// runReviewer executes the review prompt under the reviewer member's settings.
func (e *Engine) runReviewer(ctx context.Context, dag *Dag, node *Node, review *models.ReviewSpec, output string) models.TaskResult {
	reviewer := dag.Members[review.Assignee]

	return e.Runner.Run(ctx, executor.Options{
		Task: review.Task,
		Cwd:  e.Cwd,
		ID:   node.Task.ID + ":review",
		Name: node.Task.ID + ":review",
		Context: fmt.Sprintf("Original task:\n%s\n\nProduced output:\n%s",
			node.Task.Task, output),
		Model:        reviewer.Model,
		Tools:        reviewer.Tools,
		SystemPrompt: reviewer.SystemPrompt,
		Thinking:     reviewer.Thinking,
		OnProgress:   e.OnProgress,
	})
}

// reviewApproved applies the configured approval predicate.
func (e *Engine) reviewApproved(reviewerOutput string) bool {
	if e.ReviewApproved != nil {
		return e.ReviewApproved(reviewerOutput)
	}
	return strings.Contains(reviewerOutput, "APPROVED")
}

// fillFailure records a failed or aborted execution in the outcome.
// Aborted executions map to skipped: the node never finished its work.
func fillFailure(out *nodeOutcome, res models.TaskResult) bool {
	if res.Aborted {
		out.status = models.NodeStatusSkipped
		out.output = res.Output
		out.errMsg = res.Error
		return true
	}
	if res.Failed() {
		out.status = models.NodeStatusFailed
		out.output = res.Output
		out.errMsg = res.Error
		return true
	}
	return false
}

// assembleContext concatenates direct dependency outputs in depends order,
// each under a header naming the producing task.
func assembleContext(dag *Dag, node *Node) string {
	if len(node.Depends) == 0 {
		return ""
	}
	sections := make([]string, 0, len(node.Depends))
	for _, dep := range node.Depends {
		sections = append(sections, fmt.Sprintf("### Output of task %s\n\n%s", dep, dag.Nodes[dep].Output))
	}
	return strings.Join(sections, "\n\n")
}

// applyOverrides merges member defaults and task-level overrides into the
// executor options, task overrides winning.
func applyOverrides(opts *executor.Options, node *Node) {
	opts.Model = node.Member.Model
	if node.Task.Model != "" {
		opts.Model = node.Task.Model
	}

	opts.Tools = node.Member.Tools
	if len(node.Task.Tools) > 0 {
		opts.Tools = node.Task.Tools
	}

	if node.Member.ResourceLimits != nil {
		opts.Limits = *node.Member.ResourceLimits
	}
	if node.Task.ResourceLimits != nil {
		opts.Limits = *node.Task.ResourceLimits
	}

	opts.Retry = node.Member.Retry
	if node.Task.Retry != nil {
		opts.Retry = node.Task.Retry
	}
}
