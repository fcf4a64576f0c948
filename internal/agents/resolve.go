package agents

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/ensemble/pkg/models"
)

// ResolveInheritance walks every agent's extends chain and fills the
// Resolved* fields in place. Chains are validated before any mutation, so a
// cycle or missing base leaves no partial resolution behind.
//
// Tools are the union of the base's resolved tools and the agent's own,
// deduplicated in first-seen order. Model and thinking fall through to the
// base when unset. The system prompt is never inherited.
func ResolveInheritance(agents map[string]*models.AgentConfig) error {
	for name := range agents {
		if err := checkChain(name, agents); err != nil {
			return err
		}
	}

	resolved := make(map[string]bool, len(agents))
	var resolve func(name string)
	resolve = func(name string) {
		if resolved[name] {
			return
		}
		agent := agents[name]

		if agent.Extends == "" {
			agent.ResolvedTools = append([]string(nil), agent.Tools...)
			agent.ResolvedModel = agent.Model
			agent.ResolvedThinking = agent.Thinking
			resolved[name] = true
			return
		}

		resolve(agent.Extends)
		base := agents[agent.Extends]

		agent.ResolvedTools = unionTools(base.ResolvedTools, agent.Tools)

		agent.ResolvedModel = agent.Model
		if agent.ResolvedModel == "" {
			agent.ResolvedModel = base.ResolvedModel
		}

		agent.ResolvedThinking = agent.Thinking
		if agent.ResolvedThinking == "" {
			agent.ResolvedThinking = base.ResolvedThinking
		}

		resolved[name] = true
	}

	for name := range agents {
		resolve(name)
	}
	return nil
}

// checkChain validates one agent's extends chain without mutating anything.
func checkChain(name string, agents map[string]*models.AgentConfig) error {
	visiting := map[string]bool{}
	var path []string

	for current := name; current != ""; {
		if visiting[current] {
			path = append(path, current)
			return fmt.Errorf("circular inheritance detected: %s", strings.Join(path, " -> "))
		}
		visiting[current] = true
		path = append(path, current)

		agent, ok := agents[current]
		if !ok {
			return fmt.Errorf("base agent not found: %q (required by %q)", current, path[len(path)-2])
		}
		current = agent.Extends
	}
	return nil
}

// unionTools merges two tool lists, deduplicated, preserving first-seen order.
func unionTools(base, own []string) []string {
	seen := make(map[string]bool, len(base)+len(own))
	var out []string
	for _, t := range base {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range own {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// Settings are the effective execution settings for one invocation.
type Settings struct {
	// Model is the model to run with.
	Model string
	// Provider is the model provider.
	Provider string
	// Tools is the allowed tool list.
	Tools []string
	// SystemPrompt is the system prompt body.
	SystemPrompt string
	// Thinking is the thinking budget.
	Thinking string
	// ResourceLimits bounds the execution.
	ResourceLimits models.ResourceLimits
	// Retry is the retry policy.
	Retry *models.RetryConfig
}

// ResolveSettings merges a named agent's resolved configuration with caller
// overrides, the overrides winning field by field. Resource limits and retry
// pass through from the overrides unchanged. An empty agentName applies the
// overrides alone.
func ResolveSettings(agents map[string]*models.AgentConfig, agentName string, overrides Settings) (Settings, error) {
	settings := Settings{
		ResourceLimits: overrides.ResourceLimits,
		Retry:          overrides.Retry,
	}

	if agentName != "" {
		agent, ok := agents[agentName]
		if !ok {
			return Settings{}, fmt.Errorf("agent not found: %q", agentName)
		}
		settings.Model = agent.ResolvedModel
		settings.Tools = append([]string(nil), agent.ResolvedTools...)
		settings.SystemPrompt = agent.SystemPrompt
		settings.Thinking = agent.ResolvedThinking
	}

	if overrides.Model != "" {
		settings.Model = overrides.Model
	}
	if overrides.Provider != "" {
		settings.Provider = overrides.Provider
	}
	if len(overrides.Tools) > 0 {
		settings.Tools = overrides.Tools
	}
	if overrides.SystemPrompt != "" {
		settings.SystemPrompt = overrides.SystemPrompt
	}
	if overrides.Thinking != "" {
		settings.Thinking = overrides.Thinking
	}

	return settings, nil
}
