package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var connectCmd = &cobra.Command{
	Use:     "connect",
	GroupID: "sync",
	Short:   "Authorize dayplan with your Google account",
	Long: `Run the Google OAuth flow and store the resulting token.

Requires credentials.json (a Google API OAuth client secret for a
desktop app) in the dayplan config directory. The token is refreshed
automatically afterwards; re-run this command only if sync status
reports a broken connection.`,
	Run: func(cmd *cobra.Command, args []string) {
		app, err := newApp()
		if err != nil {
			fatal("%v", err)
		}
		defer app.Close()

		if err := app.tokens.Authorize(context.Background(), app.cfg.UserID); err != nil {
			fatal("authorization failed: %v", err)
		}
		fmt.Println("Connected. Run 'dayplan start' to plan your day.")
	},
}

func init() {
	rootCmd.AddCommand(connectCmd)
}
