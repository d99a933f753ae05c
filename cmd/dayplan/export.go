package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dayplanhq/dayplan/internal/syncer"
)

var exportCmd = &cobra.Command{
	Use:     "export <task-id>",
	GroupID: "sync",
	Short:   "Push a local task change to Google",
	Long: `Push one local task to Google Tasks and Google Calendar.

By default the task is exported as new (create). Use a flag to push a
different kind of change:

  dayplan export a1b2c3d4              # create remotely
  dayplan export a1b2c3d4 --modify     # push local edits (local wins)
  dayplan export a1b2c3d4 --complete   # mark the remote task done
  dayplan export a1b2c3d4 --delete     # delete locally and remotely

Failures are queued for retry unless they are permanent (for example a
validation rejection from Google).`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app, err := newApp()
		if err != nil {
			fatal("%v", err)
		}
		defer app.Close()

		modify, _ := cmd.Flags().GetBool("modify")
		complete, _ := cmd.Flags().GetBool("complete")
		del, _ := cmd.Flags().GetBool("delete")

		set := 0
		for _, f := range []bool{modify, complete, del} {
			if f {
				set++
			}
		}
		if set > 1 {
			fatal("--modify, --complete, and --delete are mutually exclusive")
		}

		ctx := context.Background()
		taskID := args[0]

		var verb string
		switch {
		case modify:
			verb = "Modification"
			err = app.sync.ExportModification(ctx, taskID)
		case complete:
			verb = "Completion"
			err = app.sync.ExportCompletion(ctx, taskID)
		case del:
			verb = "Deletion"
			err = app.sync.ExportDeletion(ctx, taskID)
		default:
			verb = "Export"
			err = app.sync.ExportNewTask(ctx, taskID)
		}

		if err != nil {
			if errors.Is(err, syncer.ErrTaskIsFixed) {
				fatal("task %s comes from a calendar event; delete it in Google Calendar instead", taskID)
			}
			if errors.Is(err, syncer.ErrPermanent) {
				fatal("%s failed permanently: %v", verb, err)
			}
			fmt.Printf("%s failed, queued for retry: %v\n", verb, err)
			return
		}
		fmt.Printf("%s synced\n", verb)
	},
}

func init() {
	exportCmd.Flags().Bool("modify", false, "push local edits to the remote copies")
	exportCmd.Flags().Bool("complete", false, "mark the task completed remotely")
	exportCmd.Flags().Bool("delete", false, "delete the task locally and remotely")
	rootCmd.AddCommand(exportCmd)
}
