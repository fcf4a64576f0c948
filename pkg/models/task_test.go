package models

import (
	"strings"
	"testing"
)

func TestTaskStatusValid(t *testing.T) {
	tests := []struct {
		name     string
		status   TaskStatus
		expected bool
	}{
		{"pending", TaskStatusPending, true},
		{"running", TaskStatusRunning, true},
		{"completed", TaskStatusCompleted, true},
		{"failed", TaskStatusFailed, true},
		{"aborted", TaskStatusAborted, true},
		{"unknown", TaskStatus("bogus"), false},
		{"empty", TaskStatus(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Valid(); got != tt.expected {
				t.Errorf("Valid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestPushToolCapsFIFO(t *testing.T) {
	p := &TaskProgress{}

	for i := 0; i < RecentToolsCap+5; i++ {
		p.PushTool("bash", strings.Repeat("x", i))
	}

	if len(p.RecentTools) != RecentToolsCap {
		t.Fatalf("len(RecentTools) = %d, want %d", len(p.RecentTools), RecentToolsCap)
	}
	// Oldest entries are dropped, so the first retained entry is number 5.
	if got := p.RecentTools[0].Args; got != strings.Repeat("x", 5) {
		t.Errorf("RecentTools[0].Args = %q, want %q", got, strings.Repeat("x", 5))
	}
}

func TestPushOutputCapsAndTruncates(t *testing.T) {
	p := &TaskProgress{}

	long := strings.Repeat("a", OutputPreviewLen+50)
	for i := 0; i < RecentOutputCap+2; i++ {
		p.PushOutput(long)
	}

	if len(p.RecentOutput) != RecentOutputCap {
		t.Fatalf("len(RecentOutput) = %d, want %d", len(p.RecentOutput), RecentOutputCap)
	}
	want := strings.Repeat("a", OutputPreviewLen) + "..."
	if p.RecentOutput[0] != want {
		t.Errorf("RecentOutput[0] = %q, want %q", p.RecentOutput[0], want)
	}
}

func TestPushOutputShortTextUnchanged(t *testing.T) {
	p := &TaskProgress{}
	p.PushOutput("short")
	if p.RecentOutput[0] != "short" {
		t.Errorf("RecentOutput[0] = %q, want %q", p.RecentOutput[0], "short")
	}
}

func TestSnapshotIsolatesSlices(t *testing.T) {
	p := &TaskProgress{ID: "t1", Status: TaskStatusRunning}
	p.PushTool("read", "main.go")
	p.PushOutput("hello")

	snap := p.Snapshot()

	p.PushTool("write", "other.go")
	p.PushOutput("world")

	if len(snap.RecentTools) != 1 {
		t.Errorf("snapshot RecentTools length = %d, want 1", len(snap.RecentTools))
	}
	if len(snap.RecentOutput) != 1 {
		t.Errorf("snapshot RecentOutput length = %d, want 1", len(snap.RecentOutput))
	}
	if snap.ID != "t1" || snap.Status != TaskStatusRunning {
		t.Errorf("snapshot identity = %q/%q, want t1/running", snap.ID, snap.Status)
	}
}

func TestUsageStatsAdd(t *testing.T) {
	var total UsageStats

	total.Add(UsageStats{Input: 100, Output: 20, Cost: 0.5, Turns: 1})
	total.Add(UsageStats{Input: 50, CacheRead: 10, CacheWrite: 5})
	total.Add(UsageStats{}) // zero delta leaves everything unchanged

	if total.Input != 150 {
		t.Errorf("Input = %d, want 150", total.Input)
	}
	if total.Output != 20 {
		t.Errorf("Output = %d, want 20", total.Output)
	}
	if total.CacheRead != 10 || total.CacheWrite != 5 {
		t.Errorf("cache counters = %d/%d, want 10/5", total.CacheRead, total.CacheWrite)
	}
	if total.Cost != 0.5 {
		t.Errorf("Cost = %v, want 0.5", total.Cost)
	}
	if total.Turns != 1 {
		t.Errorf("Turns = %d, want 1", total.Turns)
	}
	if total.TotalTokens() != 170 {
		t.Errorf("TotalTokens() = %d, want 170", total.TotalTokens())
	}
}

func TestTaskResultFailed(t *testing.T) {
	tests := []struct {
		name     string
		result   TaskResult
		expected bool
	}{
		{"clean exit", TaskResult{ExitCode: 0}, false},
		{"nonzero exit", TaskResult{ExitCode: 1}, true},
		{"error with zero exit", TaskResult{ExitCode: 0, Error: "api error"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.Failed(); got != tt.expected {
				t.Errorf("Failed() = %v, want %v", got, tt.expected)
			}
		})
	}
}
