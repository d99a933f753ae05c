package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/dayplanhq/dayplan/internal/model"
	"github.com/dayplanhq/dayplan/internal/syncer"
)

var addCmd = &cobra.Command{
	Use:     "add <title>",
	GroupID: "plan",
	Short:   "Add a task",
	Long: `Add a task to the local list and push it to Google Tasks.

The due date accepts natural language:
  dayplan add "Write report" --due "tomorrow 3pm" --energy high --estimate 90
  dayplan add "Email team" --due friday --priority nice-to-have

If the push fails the task is still saved locally and the export is
queued for retry.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app, err := newApp()
		if err != nil {
			fatal("%v", err)
		}
		defer app.Close()

		priority, _ := cmd.Flags().GetString("priority")
		energy, _ := cmd.Flags().GetString("energy")
		estimate, _ := cmd.Flags().GetInt("estimate")
		description, _ := cmd.Flags().GetString("description")
		due, _ := cmd.Flags().GetString("due")
		noSync, _ := cmd.Flags().GetBool("no-sync")

		task := &model.Task{
			ID:               uuid.NewString(),
			Title:            args[0],
			Description:      description,
			Priority:         model.Priority(priority),
			Energy:           model.Energy(energy),
			EstimatedMinutes: estimate,
		}
		task.SetDefaults()

		if due != "" {
			dueAt, err := parseDue(due)
			if err != nil {
				fatal("%v", err)
			}
			task.DueAt = &dueAt
		}

		if err := task.Validate(); err != nil {
			fatal("invalid task: %v", err)
		}

		ctx := context.Background()
		if err := app.db.UpsertTask(ctx, task); err != nil {
			fatal("failed to save task: %v", err)
		}
		fmt.Printf("Added %s: %s\n", task.ID[:8], task.Title)

		if noSync {
			return
		}
		if err := app.sync.ExportNewTask(ctx, task.ID); err != nil {
			if errors.Is(err, syncer.ErrPermanent) {
				fmt.Printf("Sync failed permanently: %v\n", err)
				return
			}
			fmt.Printf("Sync failed, queued for retry: %v\n", err)
			return
		}
		fmt.Println("Synced to Google Tasks")
	},
}

// parseDue turns natural-language date text into a concrete time.
func parseDue(text string) (time.Time, error) {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(text, time.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse due date %q: %w", text, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("could not understand due date %q", text)
	}
	return r.Time, nil
}

func init() {
	addCmd.Flags().StringP("priority", "p", string(model.PriorityShouldDo),
		"must-do, should-do, or nice-to-have")
	addCmd.Flags().StringP("energy", "e", string(model.EnergyMedium),
		"high, medium, or low")
	addCmd.Flags().IntP("estimate", "m", 30, "estimated minutes")
	addCmd.Flags().StringP("description", "d", "", "task description")
	addCmd.Flags().String("due", "", "due date (natural language ok)")
	addCmd.Flags().Bool("no-sync", false, "skip the immediate push to Google Tasks")
	rootCmd.AddCommand(addCmd)
}
