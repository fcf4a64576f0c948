package models

// AgentSource identifies where an agent definition was discovered.
type AgentSource string

const (
	// AgentSourceUser indicates the agent came from the user config directory.
	AgentSourceUser AgentSource = "user"
	// AgentSourceProject indicates the agent came from the project directory.
	AgentSourceProject AgentSource = "project"
)

// AgentConfig is a named agent definition loaded from a markdown file.
// The Resolved* fields are populated by inheritance resolution.
type AgentConfig struct {
	// Name is the unique key for this agent within a discovery scope.
	Name string `json:"name"`
	// Description is a short human-readable summary.
	Description string `json:"description"`
	// Tools is the ordered list of tool identifiers this agent may use.
	Tools []string `json:"tools,omitempty"`
	// Model is the model to run this agent with.
	Model string `json:"model,omitempty"`
	// SystemPrompt is the agent definition body.
	SystemPrompt string `json:"system_prompt,omitempty"`
	// Thinking is a token budget integer or one of "low", "medium", "high".
	Thinking string `json:"thinking,omitempty"`
	// Source records whether the definition is user- or project-level.
	Source AgentSource `json:"source"`
	// FilePath is where the definition was read from.
	FilePath string `json:"file_path"`
	// Extends names the base agent this one inherits from.
	Extends string `json:"extends,omitempty"`

	// ResolvedTools is the tool list after inheritance resolution.
	ResolvedTools []string `json:"resolved_tools,omitempty"`
	// ResolvedModel is the model after inheritance resolution.
	ResolvedModel string `json:"resolved_model,omitempty"`
	// ResolvedThinking is the thinking budget after inheritance resolution.
	ResolvedThinking string `json:"resolved_thinking,omitempty"`
}
