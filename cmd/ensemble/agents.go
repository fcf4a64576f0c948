package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/ensemble/internal/agents"
	"github.com/ShayCichocki/ensemble/internal/config"
)

var agentsWatch bool

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List discovered agent configurations",
	Long: `List the resolved agent registry: user-level agents shadowed by
project-level ones, with inheritance applied.

With --watch, keeps running and re-lists whenever a definition file changes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := listAgents(); err != nil {
			return err
		}
		if !agentsWatch {
			return nil
		}

		dirs := []string{cfg.AgentsUserDir(), config.AgentsProjectDir()}
		watcher, err := agents.Watch(dirs, func() {
			fmt.Println("\nagent definitions changed:")
			if err := listAgents(); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
		})
		if err != nil {
			return err
		}
		defer watcher.Close()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		return nil
	},
}

// listAgents prints the resolved registry.
func listAgents() error {
	registry, err := loadAgents()
	if err != nil {
		return err
	}
	if len(registry) == 0 {
		fmt.Println("no agents found")
		return nil
	}

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)

	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	for _, name := range names {
		agent := registry[name]
		fmt.Printf("%s %s\n", bold(name), dim("("+string(agent.Source)+")"))
		fmt.Printf("  %s\n", agent.Description)
		if agent.ResolvedModel != "" {
			fmt.Printf("  model: %s\n", agent.ResolvedModel)
		}
		if len(agent.ResolvedTools) > 0 {
			fmt.Printf("  tools: %s\n", strings.Join(agent.ResolvedTools, ", "))
		}
		if agent.Extends != "" {
			fmt.Printf("  extends: %s\n", agent.Extends)
		}
	}
	return nil
}

func init() {
	agentsCmd.Flags().BoolVarP(&agentsWatch, "watch", "w", false, "keep running and re-list on definition changes")
}
