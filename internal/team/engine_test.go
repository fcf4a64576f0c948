package team

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ShayCichocki/ensemble/internal/executor"
	"github.com/ShayCichocki/ensemble/pkg/models"
)

// stubRunner is a Runner that records every invocation and delegates to a
// configurable handler.
type stubRunner struct {
	mu      sync.Mutex
	calls   []executor.Options
	handler func(opts executor.Options) models.TaskResult
}

func (s *stubRunner) Run(ctx context.Context, opts executor.Options) models.TaskResult {
	s.mu.Lock()
	s.calls = append(s.calls, opts)
	s.mu.Unlock()

	if s.handler != nil {
		return s.handler(opts)
	}
	return models.TaskResult{ID: opts.ID, ExitCode: 0, Output: "out:" + opts.ID}
}

func (s *stubRunner) callsFor(id string) []executor.Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []executor.Options
	for _, c := range s.calls {
		if c.ID == id {
			out = append(out, c)
		}
	}
	return out
}

func mustBuild(t *testing.T, cfg Config) *Dag {
	t.Helper()
	dag, err := Build(cfg)
	if err != nil {
		t.Fatalf("Build error = %v", err)
	}
	return dag
}

func TestExecuteLinearChain(t *testing.T) {
	dag := mustBuild(t, twoMemberConfig([]models.TeamTask{
		{ID: "plan", Task: "plan it", Assignee: "planner"},
		{ID: "build", Task: "build it", Assignee: "builder", Depends: []string{"plan"}},
	}))

	runner := &stubRunner{}
	engine := &Engine{Runner: runner}

	result := engine.Execute(context.Background(), dag)

	if result.Aborted {
		t.Fatal("Aborted = true, want false")
	}
	for _, id := range []string{"plan", "build"} {
		if got := result.Nodes[id].Status; got != models.NodeStatusCompleted {
			t.Errorf("node %s status = %q, want completed", id, got)
		}
	}

	// The dependent sees its dependency's output under a task header.
	buildCalls := runner.callsFor("build")
	if len(buildCalls) != 1 {
		t.Fatalf("build ran %d times, want 1", len(buildCalls))
	}
	if !strings.Contains(buildCalls[0].Context, "### Output of task plan") {
		t.Errorf("build context missing dependency header: %q", buildCalls[0].Context)
	}
	if !strings.Contains(buildCalls[0].Context, "out:plan") {
		t.Errorf("build context missing dependency output: %q", buildCalls[0].Context)
	}
}

// Scenario: a review loop that gives feedback once, then approves. The
// reviewed node runs twice (initial plus one revision) and completes.
func TestExecuteReviewLoop(t *testing.T) {
	dag := mustBuild(t, twoMemberConfig([]models.TeamTask{
		{ID: "plan", Task: "plan it", Assignee: "planner"},
		{ID: "build", Task: "build it", Assignee: "builder", Depends: []string{"plan"},
			Review: &models.ReviewSpec{Assignee: "planner", MaxIterations: 2, Task: "review"}},
	}))

	var reviews atomic.Int64
	runner := &stubRunner{}
	runner.handler = func(opts executor.Options) models.TaskResult {
		if opts.ID == "build:review" {
			if reviews.Add(1) == 1 {
				return models.TaskResult{ID: opts.ID, ExitCode: 0, Output: "add tests"}
			}
			return models.TaskResult{ID: opts.ID, ExitCode: 0, Output: "APPROVED"}
		}
		return models.TaskResult{ID: opts.ID, ExitCode: 0, Output: "out:" + opts.ID}
	}

	engine := &Engine{Runner: runner}
	result := engine.Execute(context.Background(), dag)

	build := result.Nodes["build"]
	if build.Status != models.NodeStatusCompleted {
		t.Fatalf("build status = %q, want completed", build.Status)
	}
	if build.Iteration != 2 {
		t.Errorf("build iteration = %d, want 2 (initial + 1 revision)", build.Iteration)
	}
	if reviews.Load() != 2 {
		t.Errorf("reviewer ran %d times, want 2", reviews.Load())
	}

	// The revision carries the reviewer feedback in its task text.
	buildCalls := runner.callsFor("build")
	if len(buildCalls) != 2 {
		t.Fatalf("build ran %d times, want 2", len(buildCalls))
	}
	if !strings.Contains(buildCalls[1].Task, "add tests") {
		t.Errorf("revision task missing feedback: %q", buildCalls[1].Task)
	}
}

func TestExecuteReviewExhaustionStillCompletes(t *testing.T) {
	dag := mustBuild(t, twoMemberConfig([]models.TeamTask{
		{ID: "work", Task: "do it", Assignee: "builder",
			Review: &models.ReviewSpec{Assignee: "planner", MaxIterations: 2, Task: "review"}},
	}))

	runner := &stubRunner{}
	runner.handler = func(opts executor.Options) models.TaskResult {
		if opts.ID == "work:review" {
			return models.TaskResult{ID: opts.ID, ExitCode: 0, Output: "still not good"}
		}
		return models.TaskResult{ID: opts.ID, ExitCode: 0, Output: "attempt"}
	}

	engine := &Engine{Runner: runner}
	result := engine.Execute(context.Background(), dag)

	work := result.Nodes["work"]
	if work.Status != models.NodeStatusCompleted {
		t.Errorf("status = %q, want completed despite review exhaustion", work.Status)
	}
	if work.Output != "attempt" {
		t.Errorf("output = %q, want the last attempt", work.Output)
	}
	if work.Iteration != 2 {
		t.Errorf("iteration = %d, want 2", work.Iteration)
	}
}

// Scenario: a mid-graph failure skips its dependents while independent
// branches keep running.
func TestExecuteFailureSkipsDownstream(t *testing.T) {
	cfg := twoMemberConfig([]models.TeamTask{
		{ID: "A", Task: "a", Assignee: "planner"},
		{ID: "B", Task: "b", Assignee: "builder", Depends: []string{"A"}},
		{ID: "C", Task: "c", Assignee: "builder", Depends: []string{"B"}},
		{ID: "D", Task: "d", Assignee: "builder", Depends: []string{"A"}},
	})
	dag := mustBuild(t, cfg)

	runner := &stubRunner{}
	runner.handler = func(opts executor.Options) models.TaskResult {
		if opts.ID == "B" {
			return models.TaskResult{ID: opts.ID, ExitCode: 1, Error: "B exploded"}
		}
		return models.TaskResult{ID: opts.ID, ExitCode: 0, Output: "out:" + opts.ID}
	}

	engine := &Engine{Runner: runner}
	result := engine.Execute(context.Background(), dag)

	if result.Aborted {
		t.Fatal("Aborted = true, want false: independent branches continue")
	}

	expect := map[string]models.NodeStatus{
		"A": models.NodeStatusCompleted,
		"B": models.NodeStatusFailed,
		"C": models.NodeStatusSkipped,
		"D": models.NodeStatusCompleted,
	}
	for id, want := range expect {
		if got := result.Nodes[id].Status; got != want {
			t.Errorf("node %s status = %q, want %q", id, got, want)
		}
	}
	if result.Nodes["B"].Error != "B exploded" {
		t.Errorf("B error = %q, want the failure", result.Nodes["B"].Error)
	}
	if len(runner.callsFor("C")) != 0 {
		t.Error("skipped node C must never run")
	}
}

func TestExecuteCancellationSkipsUnfinished(t *testing.T) {
	dag := mustBuild(t, twoMemberConfig([]models.TeamTask{
		{ID: "slow", Task: "a", Assignee: "planner"},
		{ID: "after", Task: "b", Assignee: "builder", Depends: []string{"slow"}},
	}))

	ctx, cancel := context.WithCancel(context.Background())

	runner := &stubRunner{}
	runner.handler = func(opts executor.Options) models.TaskResult {
		cancel()
		return models.TaskResult{ID: opts.ID, Aborted: true}
	}

	engine := &Engine{Runner: runner}
	result := engine.Execute(ctx, dag)

	if !result.Aborted {
		t.Fatal("Aborted = false, want true")
	}
	if got := result.Nodes["slow"].Status; got != models.NodeStatusSkipped {
		t.Errorf("slow status = %q, want skipped", got)
	}
	if got := result.Nodes["after"].Status; got != models.NodeStatusSkipped {
		t.Errorf("after status = %q, want skipped", got)
	}
}

func TestExecuteConcurrencyBound(t *testing.T) {
	tasks := []models.TeamTask{
		{ID: "t1", Task: "x", Assignee: "planner"},
		{ID: "t2", Task: "x", Assignee: "planner"},
		{ID: "t3", Task: "x", Assignee: "planner"},
		{ID: "t4", Task: "x", Assignee: "planner"},
		{ID: "t5", Task: "x", Assignee: "planner"},
		{ID: "t6", Task: "x", Assignee: "planner"},
	}
	dag := mustBuild(t, twoMemberConfig(tasks))

	var live, peak atomic.Int64
	runner := &stubRunner{}
	runner.handler = func(opts executor.Options) models.TaskResult {
		n := live.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		live.Add(-1)
		return models.TaskResult{ID: opts.ID, ExitCode: 0}
	}

	engine := &Engine{Runner: runner, MaxConcurrency: 2}
	engine.Execute(context.Background(), dag)

	if peak.Load() > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak.Load())
	}
}

func TestExecuteApprovalGate(t *testing.T) {
	dag := mustBuild(t, twoMemberConfig([]models.TeamTask{
		{ID: "plan", Task: "make a plan", Assignee: "planner", RequiresApproval: true},
	}))

	runner := &stubRunner{}
	var verdicts atomic.Int64
	engine := &Engine{
		Runner: runner,
		Approve: func(taskID, output string) (Approval, error) {
			if verdicts.Add(1) == 1 {
				return Approval{Approved: false, Feedback: "tighten the scope"}, nil
			}
			return Approval{Approved: true}, nil
		},
	}

	result := engine.Execute(context.Background(), dag)

	plan := result.Nodes["plan"]
	if plan.Status != models.NodeStatusCompleted {
		t.Fatalf("status = %q, want completed", plan.Status)
	}
	if verdicts.Load() != 2 {
		t.Errorf("approval asked %d times, want 2", verdicts.Load())
	}

	calls := runner.callsFor("plan")
	if len(calls) != 2 {
		t.Fatalf("plan ran %d times, want 2", len(calls))
	}
	if !strings.Contains(calls[1].Task, "tighten the scope") {
		t.Errorf("re-run task missing approval feedback: %q", calls[1].Task)
	}
}

func TestExecuteTaskOverridesWin(t *testing.T) {
	cfg := Config{
		Members: []models.TeamMember{
			{Role: "dev", Model: "default-model", Tools: []string{"read"}},
		},
		Tasks: []models.TeamTask{
			{ID: "a", Task: "x", Assignee: "dev", Model: "override-model", Tools: []string{"read", "write"}},
			{ID: "b", Task: "y", Assignee: "dev"},
		},
	}
	dag := mustBuild(t, cfg)

	runner := &stubRunner{}
	engine := &Engine{Runner: runner}
	engine.Execute(context.Background(), dag)

	a := runner.callsFor("a")[0]
	if a.Model != "override-model" {
		t.Errorf("a model = %q, want the task override", a.Model)
	}
	if len(a.Tools) != 2 {
		t.Errorf("a tools = %v, want the task override", a.Tools)
	}

	b := runner.callsFor("b")[0]
	if b.Model != "default-model" {
		t.Errorf("b model = %q, want the member default", b.Model)
	}
}

type recordingWriter struct {
	mu      sync.Mutex
	entries map[string]string // id -> status
}

func (w *recordingWriter) WriteTaskResult(id, output, status string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.entries == nil {
		w.entries = make(map[string]string)
	}
	w.entries[id] = status
	return nil
}

func TestExecutePersistsResults(t *testing.T) {
	dag := mustBuild(t, twoMemberConfig([]models.TeamTask{
		{ID: "good", Task: "x", Assignee: "planner"},
		{ID: "bad", Task: "y", Assignee: "builder"},
	}))

	runner := &stubRunner{}
	runner.handler = func(opts executor.Options) models.TaskResult {
		if opts.ID == "bad" {
			return models.TaskResult{ID: opts.ID, ExitCode: 1, Error: "boom"}
		}
		return models.TaskResult{ID: opts.ID, ExitCode: 0, Output: "ok"}
	}

	writer := &recordingWriter{}
	engine := &Engine{Runner: runner, Workspace: writer}
	engine.Execute(context.Background(), dag)

	if got := writer.entries["good"]; got != "completed" {
		t.Errorf("good persisted as %q, want completed", got)
	}
	if got := writer.entries["bad"]; got != "failed" {
		t.Errorf("bad persisted as %q, want failed", got)
	}
}
