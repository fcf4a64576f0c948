// Package executor runs a single agent subprocess, streams its NDJSON event
// output into typed progress, enforces resource guards, and applies the
// retry policy. Run never fails with an error: every outcome is encoded in
// the returned TaskResult.
package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ShayCichocki/ensemble/internal/guard"
	"github.com/ShayCichocki/ensemble/internal/logx"
	"github.com/ShayCichocki/ensemble/internal/retry"
	"github.com/ShayCichocki/ensemble/pkg/models"
)

// DefaultExecutable is the agent binary invoked for each task.
const DefaultExecutable = "pi"

// killDelay is how long a cancelled child gets to exit after SIGTERM
// before it is killed.
const killDelay = 5 * time.Second

// maxScanTokenSize bounds a single stream line.
const maxScanTokenSize = 1024 * 1024

// Agent executes tasks by spawning the agent subprocess.
type Agent struct {
	// Executable is the agent binary; DefaultExecutable when empty.
	Executable string
	// MaxOutputBytes caps the final output size; DefaultMaxOutputBytes when zero.
	MaxOutputBytes int
	// MaxOutputLines caps the final output line count; DefaultMaxOutputLines when zero.
	MaxOutputLines int
}

// New creates an Agent running the given executable.
func New(executable string) *Agent {
	if executable == "" {
		executable = DefaultExecutable
	}
	return &Agent{Executable: executable}
}

// Run executes one task and returns its result. When opts.Retry is set the
// execution is wrapped in the retry policy; the returned value is always the
// most recent attempt's result.
func (a *Agent) Run(ctx context.Context, opts Options) models.TaskResult {
	if opts.Retry != nil {
		return retry.Run(ctx, opts.Retry, func(ctx context.Context) models.TaskResult {
			return a.runOnce(ctx, opts)
		})
	}
	return a.runOnce(ctx, opts)
}

// runOnce performs a single attempt.
func (a *Agent) runOnce(ctx context.Context, opts Options) models.TaskResult {
	start := time.Now()

	acc := newAccumulator(opts)
	emit := func() {
		if opts.OnProgress != nil {
			acc.progress.DurationMs = time.Since(start).Milliseconds()
			opts.OnProgress(acc.progress.Snapshot())
		}
	}

	g := guard.New(ctx, opts.Limits)
	defer g.Stop()

	acc.progress.Status = models.TaskStatusRunning
	emit()

	args, cleanup, err := a.buildArgs(opts)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		return a.spawnFailure(acc, opts, start, err)
	}

	cmd := exec.CommandContext(g.Context(), a.executable(), args...)
	cmd.Dir = opts.Cwd
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = killDelay

	var stderr strings.Builder
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return a.spawnFailure(acc, opts, start, fmt.Errorf("create stdout pipe: %w", err))
	}

	if err := cmd.Start(); err != nil {
		failure := a.spawnFailure(acc, opts, start, fmt.Errorf("start agent process: %w", err))
		// Start refuses a context that is already done: that is an abort.
		failure.Aborted = g.Cancelled()
		return failure
	}

	logx.Debugf("[executor] task %s: started %s (pid %d)", opts.ID, a.executable(), cmd.Process.Pid)

	scanner := bufio.NewScanner(stdout)
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, maxScanTokenSize)

	for scanner.Scan() {
		ev, ok := parseEvent(scanner.Bytes())
		if !ok {
			continue
		}
		if acc.apply(ev, g) {
			emit()
		}
	}

	waitErr := cmd.Wait()
	aborted := g.Cancelled()

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			if code := exitErr.ExitCode(); code >= 0 {
				exitCode = code
			} else {
				// Terminated by signal.
				exitCode = 1
			}
		} else {
			exitCode = 1
		}
	}

	output, truncated := TruncateOutput(acc.finalOutput(), a.MaxOutputBytes, a.MaxOutputLines)

	result := models.TaskResult{
		ID:         opts.ID,
		Name:       opts.Name,
		Task:       opts.Task,
		Model:      opts.Model,
		ExitCode:   exitCode,
		Output:     output,
		Stderr:     stderr.String(),
		Truncated:  truncated,
		DurationMs: time.Since(start).Milliseconds(),
		Usage:      acc.progress.Usage,
		Step:       opts.Step,
		Aborted:    aborted,
		ToolUsage:  acc.toolUsage,
	}

	if exitCode != 0 && !aborted {
		if result.Stderr != "" {
			result.Error = result.Stderr
		} else {
			result.Error = fmt.Sprintf("Exit code: %d", exitCode)
		}
	}

	// The agent process may exit 0 on auth or API failures; surface the API
	// error it reported instead of a clean result.
	if acc.apiError != "" && result.Error == "" {
		result.Error = acc.apiError
		result.ExitCode = 1
	}

	if aborted {
		if reason := g.Reason(); reason != "" && reason != "cancelled" && result.Error == "" {
			result.Error = reason
		}
	}

	switch {
	case aborted:
		acc.progress.Status = models.TaskStatusAborted
	case result.ExitCode == 0:
		acc.progress.Status = models.TaskStatusCompleted
	default:
		acc.progress.Status = models.TaskStatusFailed
	}
	emit()

	logx.Debugf("[executor] task %s: exit=%d aborted=%v duration=%dms", opts.ID, result.ExitCode, aborted, result.DurationMs)

	return result
}

// buildArgs assembles the agent invocation and, when a system prompt is
// present, writes it to a 0600 temp file inside a unique directory. The
// returned cleanup removes that directory and must run on every exit path.
func (a *Agent) buildArgs(opts Options) (args []string, cleanup func(), err error) {
	args = []string{"--mode", "json", "-p", "--no-session"}

	if opts.Provider != "" {
		args = append(args, "--provider", opts.Provider)
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if len(opts.Tools) > 0 {
		args = append(args, "--tools", strings.Join(opts.Tools, ","))
	}
	if opts.Thinking != "" {
		args = append(args, "--thinking", opts.Thinking)
	}

	if strings.TrimSpace(opts.SystemPrompt) != "" {
		dir, err := os.MkdirTemp("", "ensemble-prompt-")
		if err != nil {
			return nil, nil, fmt.Errorf("create prompt directory: %w", err)
		}
		cleanup = func() { _ = os.RemoveAll(dir) }

		path := filepath.Join(dir, "system-prompt.md")
		if err := os.WriteFile(path, []byte(opts.SystemPrompt), 0o600); err != nil {
			return nil, cleanup, fmt.Errorf("write prompt file: %w", err)
		}
		args = append(args, "--append-system-prompt", path)
	}

	prompt := "Task: " + opts.Task
	if opts.Context != "" {
		prompt = opts.Context + "\n\n" + prompt
	}
	args = append(args, prompt)

	return args, cleanup, nil
}

// spawnFailure encodes a pre-spawn resource failure as a failed result.
func (a *Agent) spawnFailure(acc *accumulator, opts Options, start time.Time, err error) models.TaskResult {
	acc.progress.Status = models.TaskStatusFailed
	if opts.OnProgress != nil {
		acc.progress.DurationMs = time.Since(start).Milliseconds()
		opts.OnProgress(acc.progress.Snapshot())
	}
	return models.TaskResult{
		ID:         opts.ID,
		Name:       opts.Name,
		Task:       opts.Task,
		Model:      opts.Model,
		ExitCode:   1,
		Error:      err.Error(),
		DurationMs: time.Since(start).Milliseconds(),
		Step:       opts.Step,
		ToolUsage:  acc.toolUsage,
	}
}

func (a *Agent) executable() string {
	if a.Executable == "" {
		return DefaultExecutable
	}
	return a.Executable
}
