// Package guard composes per-task resource limits into a single cancellation
// signal. A Guard wraps the caller's context and cancels it when the duration
// cap, the heap cap, or the concurrent tool-call cap is breached. Any one
// signal cancels the whole composite.
package guard

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/ShayCichocki/ensemble/internal/logx"
	"github.com/ShayCichocki/ensemble/pkg/models"
)

// Cancellation causes reported through context.Cause.
var (
	// ErrDurationLimit indicates the wall-clock cap was exceeded.
	ErrDurationLimit = errors.New("duration limit exceeded")
	// ErrMemoryLimit indicates the heap cap was exceeded.
	ErrMemoryLimit = errors.New("memory limit exceeded")
	// ErrToolCallLimit indicates too many tool calls ran at once.
	ErrToolCallLimit = errors.New("concurrent tool call limit exceeded")
)

// DefaultMemoryPollInterval is how often the heap is sampled.
const DefaultMemoryPollInterval = 5 * time.Second

// Guard is the composite cancellation signal for one task execution.
// Callers must call Stop on every return path to tear down the timer
// and the memory poller.
type Guard struct {
	ctx    context.Context
	cancel context.CancelCauseFunc

	limits models.ResourceLimits

	timer *time.Timer

	pollInterval time.Duration
	pollStop     chan struct{}
	pollDone     chan struct{}

	mu        sync.Mutex
	liveTools int
	stopped   bool
}

// Option customizes a Guard.
type Option func(*Guard)

// WithMemoryPollInterval overrides the heap sampling interval.
func WithMemoryPollInterval(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.pollInterval = d
		}
	}
}

// New builds a Guard over parent with the given limits. MaxDurationMs is
// always enforced when present; MaxMemoryMB and MaxConcurrentToolCalls are
// wired to cancellation only when EnforceLimits is set.
func New(parent context.Context, limits models.ResourceLimits, opts ...Option) *Guard {
	ctx, cancel := context.WithCancelCause(parent)

	g := &Guard{
		ctx:          ctx,
		cancel:       cancel,
		limits:       limits,
		pollInterval: DefaultMemoryPollInterval,
	}
	for _, opt := range opts {
		opt(g)
	}

	if limits.MaxDurationMs > 0 {
		g.timer = time.AfterFunc(time.Duration(limits.MaxDurationMs)*time.Millisecond, func() {
			logx.Debugf("[guard] duration limit of %dms exceeded", limits.MaxDurationMs)
			cancel(ErrDurationLimit)
		})
	}

	if limits.EnforceLimits && limits.MaxMemoryMB > 0 {
		g.pollStop = make(chan struct{})
		g.pollDone = make(chan struct{})
		go g.pollMemory()
	}

	return g
}

// Context returns the composite cancellation context.
func (g *Guard) Context() context.Context {
	return g.ctx
}

// OnToolStart records a tool execution starting. When the live count
// exceeds the configured cap and limits are enforced, the guard cancels.
func (g *Guard) OnToolStart() {
	g.mu.Lock()
	g.liveTools++
	live := g.liveTools
	g.mu.Unlock()

	if g.limits.EnforceLimits && g.limits.MaxConcurrentToolCalls > 0 && live > g.limits.MaxConcurrentToolCalls {
		logx.Debugf("[guard] %d concurrent tool calls exceeds cap %d", live, g.limits.MaxConcurrentToolCalls)
		g.cancel(ErrToolCallLimit)
	}
}

// OnToolEnd records a tool execution finishing.
func (g *Guard) OnToolEnd() {
	g.mu.Lock()
	if g.liveTools > 0 {
		g.liveTools--
	}
	g.mu.Unlock()
}

// LiveTools returns the current number of in-flight tool calls.
func (g *Guard) LiveTools() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.liveTools
}

// Cancelled reports whether the composite signal has fired.
func (g *Guard) Cancelled() bool {
	return g.ctx.Err() != nil
}

// Reason returns the cancellation cause message, or "" when not cancelled.
// Parent cancellation reports the parent's cause.
func (g *Guard) Reason() string {
	cause := context.Cause(g.ctx)
	if cause == nil {
		return ""
	}
	if errors.Is(cause, context.Canceled) {
		return "cancelled"
	}
	return cause.Error()
}

// Stop tears down the duration timer and the memory poller. It does not
// cancel the context; a stopped guard simply no longer enforces anything.
// Stop is idempotent.
func (g *Guard) Stop() {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return
	}
	g.stopped = true
	g.mu.Unlock()

	if g.timer != nil {
		g.timer.Stop()
	}
	if g.pollStop != nil {
		close(g.pollStop)
		<-g.pollDone
	}
}

// pollMemory samples the orchestrator heap until stopped. The measured value
// is the supervisor's own heap, not the child's RSS, matching the per-task
// memory limit as the rest of the system understands it.
func (g *Guard) pollMemory() {
	defer close(g.pollDone)

	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			var stats runtime.MemStats
			runtime.ReadMemStats(&stats)
			usedMB := int(stats.HeapAlloc / (1024 * 1024))
			if usedMB > g.limits.MaxMemoryMB {
				logx.Debugf("[guard] heap %dMB exceeds cap %dMB", usedMB, g.limits.MaxMemoryMB)
				g.cancel(ErrMemoryLimit)
				return
			}
		case <-g.pollStop:
			return
		case <-g.ctx.Done():
			return
		}
	}
}
