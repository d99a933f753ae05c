package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dayplanhq/dayplan/internal/model"
	"github.com/dayplanhq/dayplan/internal/store"
)

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "plan",
	Short:   "List tasks",
	Run: func(cmd *cobra.Command, args []string) {
		app, err := newApp()
		if err != nil {
			fatal("%v", err)
		}
		defer app.Close()

		all, _ := cmd.Flags().GetBool("all")

		filter := store.ListTasksFilter{}
		if !all {
			filter.Status = model.StatusTodo
		}

		tasks, err := app.db.ListTasks(context.Background(), filter)
		if err != nil {
			fatal("failed to list tasks: %v", err)
		}
		if len(tasks) == 0 {
			fmt.Println("No tasks. Add one with 'dayplan add'.")
			return
		}

		for _, t := range tasks {
			due := ""
			if t.DueAt != nil {
				due = "  due " + t.DueAt.Format("Jan 2 15:04")
			}
			slot := ""
			if t.HasSlot() {
				slot = fmt.Sprintf("  [%s-%s]", t.StartAt.Format("15:04"), t.EndAt.Format("15:04"))
			}
			fmt.Printf("%s  %-12s %-6s %4dm  %s%s%s\n",
				t.ID[:8], t.Priority, t.Energy, t.EstimatedMinutes, t.Title, slot, due)
		}
	},
}

func init() {
	listCmd.Flags().BoolP("all", "a", false, "include completed and in-progress tasks")
	rootCmd.AddCommand(listCmd)
}
