package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dayplanhq/dayplan/internal/model"
	"github.com/dayplanhq/dayplan/internal/scheduler"
	"github.com/dayplanhq/dayplan/internal/store"
)

var startCmd = &cobra.Command{
	Use:     "start",
	GroupID: "plan",
	Short:   "Import today's remote items and print a time-blocked plan",
	Long: `Pull today's Google Calendar events and due Google Tasks into the
local list, then build an energy-aware time-blocked plan for the day.

Import failures are reported but never block planning: whatever is
already in the local list still gets scheduled.`,
	Run: func(cmd *cobra.Command, args []string) {
		app, err := newApp()
		if err != nil {
			fatal("%v", err)
		}
		defer app.Close()

		ctx := context.Background()
		day := time.Now()

		result := app.sync.Import(ctx, day)
		fmt.Printf("Imported %d events, %d tasks (%d new, %d updated)\n",
			result.EventsImported, result.TasksImported, result.Created, result.Updated)
		for _, e := range result.Errors {
			fmt.Printf("  import warning [%s]: %s\n", e.Stage, e.Message)
		}
		for _, c := range result.Conflicts {
			fmt.Printf("  conflict: %s\n", c.Description)
		}

		open, err := app.db.ListTasks(ctx, store.ListTasksFilter{Status: model.StatusTodo})
		if err != nil {
			fatal("failed to list tasks: %v", err)
		}

		var fixed, flexible []*model.Task
		for _, t := range open {
			if t.HasSlot() {
				fixed = append(fixed, t)
			} else {
				flexible = append(flexible, t)
			}
		}

		sched := scheduler.New(scheduler.Config{
			WorkdayStartHour: app.cfg.Workday.StartHour,
			WorkdayEndHour:   app.cfg.Workday.EndHour,
		}, nil)
		plan := sched.Generate(day, fixed, flexible, app.cfg.EnergyProfile())

		printPlan(plan)
	},
}

func printPlan(plan *scheduler.Plan) {
	fmt.Printf("\nPlan for today:\n")
	if len(plan.Blocks) == 0 {
		fmt.Println("  (nothing scheduled)")
	}
	for _, b := range plan.Blocks {
		marker := " "
		if b.Fixed {
			marker = "*"
		}
		fmt.Printf("  %s %s - %s  %s\n",
			marker, b.Start.Format("15:04"), b.End.Format("15:04"), b.Title)
	}
	if len(plan.Unscheduled) > 0 {
		fmt.Printf("\nCould not fit:\n")
		for _, t := range plan.Unscheduled {
			fmt.Printf("  - %s (%dm)\n", t.Title, t.EstimatedMinutes)
		}
	}
	for _, c := range plan.Conflicts {
		fmt.Printf("\nConflict: %s\n", c.Description)
	}
	for _, w := range plan.Warnings {
		fmt.Printf("Warning: %s\n", w)
	}
}

func init() {
	rootCmd.AddCommand(startCmd)
}
