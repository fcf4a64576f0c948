package executor

import (
	"github.com/ShayCichocki/ensemble/internal/guard"
	"github.com/ShayCichocki/ensemble/pkg/models"
)

// accumulator folds stream events into the live task progress.
type accumulator struct {
	progress  models.TaskProgress
	messages  []*streamMessage
	toolUsage map[string]int
	apiError  string
}

func newAccumulator(opts Options) *accumulator {
	return &accumulator{
		progress: models.TaskProgress{
			ID:     opts.ID,
			Name:   opts.Name,
			Status: models.TaskStatusPending,
			Task:   opts.Task,
			Model:  opts.Model,
		},
		toolUsage: make(map[string]int),
	}
}

// apply folds one recognized event into the progress state. It returns true
// when the event was recognized and a progress snapshot should be emitted.
func (a *accumulator) apply(ev streamEvent, g *guard.Guard) bool {
	switch ev.Type {
	case eventMessageEnd:
		if ev.Message == nil {
			return false
		}
		a.messages = append(a.messages, ev.Message)
		if ev.Message.Role == "assistant" {
			a.applyAssistant(ev.Message)
		}
		return true

	case eventToolExecutionStart:
		a.progress.CurrentTool = ev.ToolName
		a.progress.CurrentToolArgs = FormatToolArgs(ev.ToolName, ev.Args)
		g.OnToolStart()
		return true

	case eventToolExecutionEnd:
		if a.progress.CurrentTool != "" {
			a.progress.PushTool(a.progress.CurrentTool, a.progress.CurrentToolArgs)
			a.toolUsage[a.progress.CurrentTool]++
		}
		a.progress.ToolCount++
		a.progress.CurrentTool = ""
		a.progress.CurrentToolArgs = ""
		g.OnToolEnd()
		return true

	case eventToolResultEnd:
		if ev.Message == nil {
			return false
		}
		a.messages = append(a.messages, ev.Message)
		return true
	}

	return false
}

// applyAssistant accumulates usage and previews from an assistant message.
func (a *accumulator) applyAssistant(msg *streamMessage) {
	a.progress.Usage.Turns++

	if u := msg.Usage; u != nil {
		a.progress.Usage.Add(models.UsageStats{
			Input:      u.Input,
			Output:     u.Output,
			CacheRead:  u.CacheRead,
			CacheWrite: u.CacheWrite,
		})
		if u.Cost != nil {
			a.progress.Usage.Cost += u.Cost.Total
		}
		// Context occupancy is a level, not a counter; it never decreases
		// within a task lifetime.
		if u.TotalTokens > a.progress.Usage.ContextTokens {
			a.progress.Usage.ContextTokens = u.TotalTokens
		}
	}

	for _, part := range msg.Content {
		if part.Type == "text" && part.Text != "" {
			a.progress.PushOutput(part.Text)
		}
	}

	if msg.StopReason == "error" && msg.ErrorMessage != "" {
		a.apiError = msg.ErrorMessage
	}
}

// finalOutput returns the final text part of the most recent assistant
// message, or "" when no assistant message arrived.
func (a *accumulator) finalOutput() string {
	for i := len(a.messages) - 1; i >= 0; i-- {
		if a.messages[i].Role == "assistant" {
			return finalTextPart(a.messages[i])
		}
	}
	return ""
}
