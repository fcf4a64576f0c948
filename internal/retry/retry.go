// Package retry implements the per-task retry policy: pattern-based
// retryability checks and exponential backoff with a hard cap.
package retry

import (
	"context"
	"strings"
	"time"

	"github.com/ShayCichocki/ensemble/internal/logx"
	"github.com/ShayCichocki/ensemble/pkg/models"
)

// MaxBackoffMs caps the delay between attempts.
const MaxBackoffMs int64 = 60000

// ShouldRetry reports whether errMsg is retryable under cfg.
// A nil cfg means never retry. SkipOn patterns dominate RetryOn patterns;
// all matching is case-insensitive substring matching. An empty RetryOn
// list makes every error retryable.
func ShouldRetry(errMsg string, cfg *models.RetryConfig) bool {
	if cfg == nil {
		return false
	}

	lower := strings.ToLower(errMsg)

	for _, pattern := range cfg.SkipOn {
		if pattern != "" && strings.Contains(lower, strings.ToLower(pattern)) {
			return false
		}
	}

	if len(cfg.RetryOn) == 0 {
		return true
	}

	for _, pattern := range cfg.RetryOn {
		if pattern != "" && strings.Contains(lower, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

// CalculateBackoff returns the delay in milliseconds before the given
// 1-based attempt is retried: baseMs doubled per attempt, capped at
// MaxBackoffMs. Attempt 1 yields baseMs.
func CalculateBackoff(baseMs int64, attempt int) int64 {
	if baseMs <= 0 {
		return 0
	}
	backoff := baseMs
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= MaxBackoffMs {
			return MaxBackoffMs
		}
	}
	if backoff > MaxBackoffMs {
		return MaxBackoffMs
	}
	return backoff
}

// Run invokes runOnce under the retry policy in cfg and returns the most
// recent attempt's result. A nil cfg runs exactly once. An attempt is
// successful when its exit code is zero or it carries no error. The backoff
// sleep is interruptible by ctx; cancellation returns the last result as-is.
func Run(ctx context.Context, cfg *models.RetryConfig, runOnce func(context.Context) models.TaskResult) models.TaskResult {
	if cfg == nil {
		return runOnce(ctx)
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var result models.TaskResult
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result = runOnce(ctx)

		if result.ExitCode == 0 || result.Error == "" {
			return result
		}
		if !ShouldRetry(result.Error, cfg) || attempt == maxAttempts {
			return result
		}

		backoff := CalculateBackoff(cfg.BackoffMs, attempt)
		logx.Debugf("[retry] task %s attempt %d failed (%s), retrying in %dms", result.ID, attempt, result.Error, backoff)

		timer := time.NewTimer(time.Duration(backoff) * time.Millisecond)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return result
		}
	}
	return result
}
