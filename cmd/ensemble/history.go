package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/ensemble/internal/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent task results",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := store.List(historyLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("no history yet")
			return nil
		}

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()

		for _, e := range entries {
			marker := green("+")
			if e.Aborted {
				marker = yellow("~")
			} else if e.ExitCode != 0 || e.Error != "" {
				marker = red("x")
			}
			fmt.Printf("%s %s %s/%s %s (%.1fs, %d tok, $%.4f)\n",
				marker, e.CreatedAt.Format("2006-01-02 15:04"),
				e.Mode, e.RunID, e.TaskID,
				float64(e.DurationMs)/1000, e.InputTokens+e.OutputTokens, e.Cost)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of entries to show")
}
