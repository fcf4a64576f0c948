package executor

import "github.com/ShayCichocki/ensemble/pkg/models"

// Options describes a single agent invocation.
type Options struct {
	// Task is the task text; the composed prompt is "Task: " + Task.
	Task string
	// Cwd is the working directory for the agent process.
	Cwd string
	// ID is the unique identifier for this task.
	ID string
	// Name is an optional display name.
	Name string
	// Step is the chain position when the task runs as part of a chain.
	Step int
	// Provider selects the model provider passed to the agent.
	Provider string
	// Model selects the model passed to the agent.
	Model string
	// Tools restricts the agent to the listed tools.
	Tools []string
	// SystemPrompt is written to a temp file and appended to the agent's
	// system prompt when non-empty.
	SystemPrompt string
	// Context is prepended to the prompt, separated by a blank line.
	Context string
	// Thinking is the thinking budget passed to the agent.
	Thinking string
	// Retry wraps the execution in the retry policy when non-nil.
	Retry *models.RetryConfig
	// Limits bounds the execution.
	Limits models.ResourceLimits
	// OnProgress receives a progress snapshot after every recognized event.
	OnProgress func(models.TaskProgress)
}
