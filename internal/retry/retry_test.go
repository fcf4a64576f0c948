package retry

import (
	"context"
	"testing"

	"github.com/ShayCichocki/ensemble/pkg/models"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name     string
		errMsg   string
		cfg      *models.RetryConfig
		expected bool
	}{
		{"nil config never retries", "network error", nil, false},
		{"empty retryOn retries anything", "whatever happened", &models.RetryConfig{MaxAttempts: 3}, true},
		{"retryOn match", "network error: connection timeout", &models.RetryConfig{RetryOn: []string{"timeout"}}, true},
		{"retryOn match is case-insensitive", "Rate Limit Exceeded", &models.RetryConfig{RetryOn: []string{"rate limit"}}, true},
		{"retryOn no match", "syntax error", &models.RetryConfig{RetryOn: []string{"timeout", "network"}}, false},
		{"skipOn dominates retryOn", "fatal error: cannot recover", &models.RetryConfig{RetryOn: []string{"error"}, SkipOn: []string{"fatal error"}}, false},
		{"skipOn without retryOn", "authentication failed", &models.RetryConfig{SkipOn: []string{"authentication"}}, false},
		{"skipOn no match falls through", "network error", &models.RetryConfig{RetryOn: []string{"network"}, SkipOn: []string{"fatal"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldRetry(tt.errMsg, tt.cfg); got != tt.expected {
				t.Errorf("ShouldRetry(%q) = %v, want %v", tt.errMsg, got, tt.expected)
			}
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		name     string
		baseMs   int64
		attempt  int
		expected int64
	}{
		{"attempt 1 is base", 100, 1, 100},
		{"attempt 2 doubles", 100, 2, 200},
		{"attempt 3 doubles again", 100, 3, 400},
		{"capped at 60s", 1000, 10, 60000},
		{"huge attempt stays capped", 1000, 60, 60000},
		{"zero base", 0, 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateBackoff(tt.baseMs, tt.attempt); got != tt.expected {
				t.Errorf("CalculateBackoff(%d, %d) = %d, want %d", tt.baseMs, tt.attempt, got, tt.expected)
			}
		})
	}
}

func TestCalculateBackoffMonotone(t *testing.T) {
	prev := int64(0)
	for attempt := 1; attempt <= 30; attempt++ {
		got := CalculateBackoff(50, attempt)
		if got > MaxBackoffMs {
			t.Fatalf("CalculateBackoff(50, %d) = %d exceeds cap", attempt, got)
		}
		if got < prev {
			t.Fatalf("CalculateBackoff(50, %d) = %d decreased from %d", attempt, got, prev)
		}
		prev = got
	}
}

// Scenario: two transient failures then success; the stub must run exactly
// three times and the final result is the successful one.
func TestRunEventuallySucceeds(t *testing.T) {
	calls := 0
	runOnce := func(ctx context.Context) models.TaskResult {
		calls++
		if calls < 3 {
			return models.TaskResult{ExitCode: 1, Error: "network error: connection timeout"}
		}
		return models.TaskResult{ExitCode: 0, Output: "ok"}
	}

	cfg := &models.RetryConfig{
		MaxAttempts: 4,
		BackoffMs:   10,
		RetryOn:     []string{"network error", "timeout"},
	}

	result := Run(context.Background(), cfg, runOnce)

	if calls != 3 {
		t.Errorf("runOnce called %d times, want 3", calls)
	}
	if result.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", result.ExitCode)
	}
	if result.Output != "ok" {
		t.Errorf("Output = %q, want %q", result.Output, "ok")
	}
}

// Scenario: a skipOn match aborts retries after the first attempt.
func TestRunSkipOnStopsRetries(t *testing.T) {
	calls := 0
	runOnce := func(ctx context.Context) models.TaskResult {
		calls++
		return models.TaskResult{ExitCode: 1, Error: "fatal error: cannot recover"}
	}

	cfg := &models.RetryConfig{
		MaxAttempts: 3,
		BackoffMs:   10,
		RetryOn:     []string{"error"},
		SkipOn:      []string{"fatal error"},
	}

	result := Run(context.Background(), cfg, runOnce)

	if calls != 1 {
		t.Errorf("runOnce called %d times, want 1", calls)
	}
	if result.Error != "fatal error: cannot recover" {
		t.Errorf("Error = %q, want fatal error", result.Error)
	}
}

func TestRunNilConfigRunsOnce(t *testing.T) {
	calls := 0
	result := Run(context.Background(), nil, func(ctx context.Context) models.TaskResult {
		calls++
		return models.TaskResult{ExitCode: 1, Error: "boom"}
	})

	if calls != 1 {
		t.Errorf("runOnce called %d times, want 1", calls)
	}
	if result.Error != "boom" {
		t.Errorf("Error = %q, want boom", result.Error)
	}
}

func TestRunExhaustsAttempts(t *testing.T) {
	calls := 0
	cfg := &models.RetryConfig{MaxAttempts: 3, BackoffMs: 1}

	result := Run(context.Background(), cfg, func(ctx context.Context) models.TaskResult {
		calls++
		return models.TaskResult{ExitCode: 1, Error: "timeout"}
	})

	if calls != 3 {
		t.Errorf("runOnce called %d times, want 3", calls)
	}
	if !result.Failed() {
		t.Error("final result should be the last failing attempt")
	}
}

func TestRunCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	cfg := &models.RetryConfig{MaxAttempts: 5, BackoffMs: 60000}

	result := Run(ctx, cfg, func(ctx context.Context) models.TaskResult {
		calls++
		cancel()
		return models.TaskResult{ExitCode: 1, Error: "timeout"}
	})

	if calls != 1 {
		t.Errorf("runOnce called %d times, want 1", calls)
	}
	if result.Error != "timeout" {
		t.Errorf("Error = %q, want timeout", result.Error)
	}
}
