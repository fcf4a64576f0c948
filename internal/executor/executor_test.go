package executor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ShayCichocki/ensemble/pkg/models"
)

// writeFakeAgent writes an executable shell script standing in for the
// agent binary and returns its path.
func writeFakeAgent(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-agent")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write fake agent: %v", err)
	}
	return path
}

func TestRunHappyPath(t *testing.T) {
	script := `
echo '{"type":"message_end","message":{"role":"assistant","content":[{"type":"text","text":"working"}],"usage":{"input":100,"output":20,"cost":{"total":0.01},"totalTokens":120}}}'
echo '{"type":"tool_execution_start","toolName":"bash","args":{"command":"go test ./..."}}'
echo '{"type":"tool_execution_end"}'
echo 'this line is not json and must be skipped'
echo '{"type":"message_end","message":{"role":"assistant","content":[{"type":"text","text":"all done"}],"usage":{"input":50,"output":10,"totalTokens":180}}}'
exit 0`
	agent := New(writeFakeAgent(t, script))

	var snapshots []models.TaskProgress
	result := agent.Run(context.Background(), Options{
		ID:   "t1",
		Task: "run the tests",
		OnProgress: func(p models.TaskProgress) {
			snapshots = append(snapshots, p)
		},
	})

	if result.ExitCode != 0 {
		t.Fatalf("ExitCode = %d, want 0 (stderr: %s, error: %s)", result.ExitCode, result.Stderr, result.Error)
	}
	if result.Output != "all done" {
		t.Errorf("Output = %q, want %q", result.Output, "all done")
	}
	if result.Error != "" {
		t.Errorf("Error = %q, want empty", result.Error)
	}
	if result.Aborted {
		t.Error("Aborted = true, want false")
	}
	if result.Usage.Input != 150 || result.Usage.Output != 30 {
		t.Errorf("usage tokens = %d/%d, want 150/30", result.Usage.Input, result.Usage.Output)
	}
	if result.Usage.Turns != 2 {
		t.Errorf("Turns = %d, want 2", result.Usage.Turns)
	}
	if result.ToolUsage["bash"] != 1 {
		t.Errorf("ToolUsage[bash] = %d, want 1", result.ToolUsage["bash"])
	}

	if len(snapshots) == 0 {
		t.Fatal("no progress snapshots emitted")
	}
	final := snapshots[len(snapshots)-1]
	if final.Status != models.TaskStatusCompleted {
		t.Errorf("final status = %q, want completed", final.Status)
	}
}

func TestRunNonZeroExitUsesStderr(t *testing.T) {
	script := `
echo 'agent blew up' >&2
exit 3`
	agent := New(writeFakeAgent(t, script))

	result := agent.Run(context.Background(), Options{ID: "t1", Task: "x"})

	if result.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", result.ExitCode)
	}
	if !strings.Contains(result.Error, "agent blew up") {
		t.Errorf("Error = %q, want stderr content", result.Error)
	}
}

func TestRunNonZeroExitWithoutStderr(t *testing.T) {
	agent := New(writeFakeAgent(t, "exit 2"))

	result := agent.Run(context.Background(), Options{ID: "t1", Task: "x"})

	if result.ExitCode != 2 {
		t.Errorf("ExitCode = %d, want 2", result.ExitCode)
	}
	if result.Error != "Exit code: 2" {
		t.Errorf("Error = %q, want %q", result.Error, "Exit code: 2")
	}
}

func TestRunAPIErrorOverridesCleanExit(t *testing.T) {
	script := `
echo '{"type":"message_end","message":{"role":"assistant","content":[],"stopReason":"error","errorMessage":"authentication failed"}}'
exit 0`
	agent := New(writeFakeAgent(t, script))

	result := agent.Run(context.Background(), Options{ID: "t1", Task: "x"})

	if result.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1 (forced by API error)", result.ExitCode)
	}
	if result.Error != "authentication failed" {
		t.Errorf("Error = %q, want the API error", result.Error)
	}
}

func TestRunDurationLimitAborts(t *testing.T) {
	agent := New(writeFakeAgent(t, "sleep 30"))

	result := agent.Run(context.Background(), Options{
		ID:     "t1",
		Task:   "x",
		Limits: models.ResourceLimits{MaxDurationMs: 100},
	})

	if !result.Aborted {
		t.Fatal("Aborted = false, want true")
	}
	if result.Error != "duration limit exceeded" {
		t.Errorf("Error = %q, want the limit reason", result.Error)
	}
}

func TestRunExternalCancelAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() { cancel() }()

	agent := New(writeFakeAgent(t, "sleep 30"))
	result := agent.Run(ctx, Options{ID: "t1", Task: "x"})

	if !result.Aborted {
		t.Fatal("Aborted = false, want true")
	}
}

func TestRunCleansUpPromptFiles(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	agent := New(writeFakeAgent(t, "exit 0"))
	agent.Run(context.Background(), Options{
		ID:           "t1",
		Task:         "x",
		SystemPrompt: "You are a careful reviewer.",
	})

	entries, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "ensemble-prompt-") {
			t.Errorf("leftover prompt directory %s", e.Name())
		}
	}
}

func TestRunMissingExecutableEncodesFailure(t *testing.T) {
	agent := New(filepath.Join(t.TempDir(), "does-not-exist"))

	result := agent.Run(context.Background(), Options{ID: "t1", Task: "x"})

	if result.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", result.ExitCode)
	}
	if result.Error == "" {
		t.Error("Error is empty, want a spawn failure description")
	}
}

func TestRunWithRetryRecovers(t *testing.T) {
	// The fake agent fails until the marker file exists, then succeeds.
	marker := filepath.Join(t.TempDir(), "attempted")
	script := `
if [ -f "` + marker + `" ]; then
  echo '{"type":"message_end","message":{"role":"assistant","content":[{"type":"text","text":"recovered"}]}}'
  exit 0
fi
touch "` + marker + `"
echo 'network error: connection timeout' >&2
exit 1`
	agent := New(writeFakeAgent(t, script))

	result := agent.Run(context.Background(), Options{
		ID:   "t1",
		Task: "x",
		Retry: &models.RetryConfig{
			MaxAttempts: 3,
			BackoffMs:   10,
			RetryOn:     []string{"network error"},
		},
	})

	if result.ExitCode != 0 {
		t.Fatalf("ExitCode = %d, want 0 after retry (error: %s)", result.ExitCode, result.Error)
	}
	if result.Output != "recovered" {
		t.Errorf("Output = %q, want %q", result.Output, "recovered")
	}
}

func TestRunTruncatesLongOutput(t *testing.T) {
	// One assistant message whose text exceeds the configured byte cap.
	long := strings.Repeat("x", 4096)
	script := `
echo '{"type":"message_end","message":{"role":"assistant","content":[{"type":"text","text":"` + long + `"}]}}'
exit 0`
	agent := New(writeFakeAgent(t, script))
	agent.MaxOutputBytes = 1024
	agent.MaxOutputLines = 100

	result := agent.Run(context.Background(), Options{ID: "t1", Task: "x"})

	if !result.Truncated {
		t.Fatal("Truncated = false, want true")
	}
	if len(result.Output) > 1024 {
		t.Errorf("Output length = %d, want <= 1024", len(result.Output))
	}
}
