// Package team implements team mode: validation of a task dependency graph
// and its execution under a global concurrency budget, with review loops and
// optional human approval gates.
package team

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ShayCichocki/ensemble/pkg/models"
)

// Concurrency bounds for a team.
const (
	DefaultMaxConcurrency = 4
	MaxConcurrencyCap     = 8
)

// ErrCycleDetected indicates a circular dependency in the team's tasks.
var ErrCycleDetected = errors.New("circular dependency detected")

// Config describes a team: an objective, its members, and the task graph.
type Config struct {
	// Name is the team name, used for the workspace directory.
	Name string `yaml:"name"`
	// Objective is free text describing the overall goal.
	Objective string `yaml:"objective"`
	// Members lists the team's roles and their execution defaults.
	Members []models.TeamMember `yaml:"members"`
	// Tasks is the dependency graph of work items.
	Tasks []models.TeamTask `yaml:"tasks"`
	// MaxConcurrency bounds simultaneous node executions across the DAG.
	// Defaults to DefaultMaxConcurrency, capped at MaxConcurrencyCap.
	MaxConcurrency int `yaml:"max_concurrency"`
}

// Node is the runtime state of one team task.
type Node struct {
	// Task is the task definition this node was built from.
	Task models.TeamTask
	// Member is the resolved member snapshot for the task's assignee.
	Member models.TeamMember
	// Depends is the list of upstream task IDs.
	Depends []string
	// Status is the node's scheduling state.
	Status models.NodeStatus
	// Iteration counts primary executions, including review re-runs.
	Iteration int
	// Output is the last produced output.
	Output string
	// Error is the last failure description.
	Error string
	// ExitCode is the last execution's exit code.
	ExitCode int
	// Usage accumulates token counters across all of the node's executions.
	Usage models.UsageStats
}

// Dag is a validated team task graph.
type Dag struct {
	// Nodes maps task ID to runtime node.
	Nodes map[string]*Node
	// Order preserves the input task order for deterministic scheduling.
	Order []string
	// Members maps role to member definition.
	Members map[string]models.TeamMember
}

// Build validates cfg and materializes the runtime graph. It fails on
// duplicate task IDs, unknown assignees or reviewers, dependencies that do
// not resolve, and dependency cycles.
func Build(cfg Config) (*Dag, error) {
	members := make(map[string]models.TeamMember, len(cfg.Members))
	for _, m := range cfg.Members {
		if _, exists := members[m.Role]; exists {
			return nil, fmt.Errorf("duplicate member role %q", m.Role)
		}
		members[m.Role] = m
	}

	nodes := make(map[string]*Node, len(cfg.Tasks))
	order := make([]string, 0, len(cfg.Tasks))
	for _, task := range cfg.Tasks {
		if _, exists := nodes[task.ID]; exists {
			return nil, fmt.Errorf("duplicate task id %q", task.ID)
		}
		member, ok := members[task.Assignee]
		if !ok {
			return nil, fmt.Errorf("task %q: unknown assignee %q", task.ID, task.Assignee)
		}
		if task.Review != nil {
			if _, ok := members[task.Review.Assignee]; !ok {
				return nil, fmt.Errorf("task %q: unknown review assignee %q", task.ID, task.Review.Assignee)
			}
		}
		nodes[task.ID] = &Node{
			Task:    task,
			Member:  member,
			Depends: append([]string(nil), task.Depends...),
			Status:  models.NodeStatusPending,
		}
		order = append(order, task.ID)
	}

	for _, id := range order {
		for _, dep := range nodes[id].Depends {
			if _, ok := nodes[dep]; !ok {
				return nil, fmt.Errorf("task %q depends on unknown task %q", id, dep)
			}
		}
	}

	if path := findCycle(nodes, order); path != nil {
		return nil, fmt.Errorf("%w: %s", ErrCycleDetected, strings.Join(path, " -> "))
	}

	return &Dag{Nodes: nodes, Order: order, Members: members}, nil
}

// findCycle runs a depth-first search with coloring and returns the
// offending path when a back edge is found, or nil for an acyclic graph.
func findCycle(nodes map[string]*Node, order []string) []string {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current path
		black = 2 // fully explored
	)
	colors := make(map[string]int, len(nodes))

	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = gray
		stack = append(stack, id)

		for _, dep := range nodes[id].Depends {
			switch colors[dep] {
			case gray:
				// Back edge: the cycle is the stack from dep onward.
				for i, s := range stack {
					if s == dep {
						cycle = append(append([]string(nil), stack[i:]...), dep)
						return true
					}
				}
				cycle = []string{id, dep}
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}

		stack = stack[:len(stack)-1]
		colors[id] = black
		return false
	}

	for _, id := range order {
		if colors[id] == white {
			if visit(id) {
				return cycle
			}
		}
	}
	return nil
}
