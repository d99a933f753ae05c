package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show sync connection and backlog status",
	Run: func(cmd *cobra.Command, args []string) {
		app, err := newApp()
		if err != nil {
			fatal("%v", err)
		}
		defer app.Close()

		st := app.sync.Status(context.Background())

		switch {
		case !st.HasTokens:
			fmt.Println("Connection: not connected (run 'dayplan connect')")
		case st.IsConnected:
			fmt.Println("Connection: connected")
		default:
			fmt.Printf("Connection: broken (%s)\n", st.ConnectionError)
		}

		if st.LastSyncTime != nil {
			fmt.Printf("Last sync:  %s\n", st.LastSyncTime.Format("2006-01-02 15:04:05"))
		} else {
			fmt.Println("Last sync:  never")
		}

		fmt.Printf("Pending:    %d operation(s) queued\n", st.PendingOperations)

		if len(st.FailedOperations) > 0 {
			fmt.Printf("Failed:     %d task(s)\n", len(st.FailedOperations))
			for _, f := range st.FailedOperations {
				fmt.Printf("  %s (retries: %d): %s\n", f.TaskID, f.RetryCount, f.Error)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
