package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dayplanhq/dayplan/internal/daemon"
	"github.com/dayplanhq/dayplan/internal/dashboard"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the background sync worker",
	Long: `Run the background worker that drains the retry queue on an interval
and watches the OAuth token file for out-of-band re-authorization.

With --dashboard, a WebSocket server broadcasts drain results and status
snapshots for UIs:

  dayplan daemon --dashboard
  # then connect to ws://localhost:8990/ws`,
	Run: func(cmd *cobra.Command, args []string) {
		app, err := newApp()
		if err != nil {
			fatal("%v", err)
		}
		defer app.Close()

		withDashboard, _ := cmd.Flags().GetBool("dashboard")

		var dash *dashboard.Server
		if withDashboard || app.cfg.Dashboard.Enabled {
			dash = dashboard.NewServer(dashboard.Config{
				Addr:   app.cfg.Dashboard.Addr,
				Logger: log.New(os.Stderr, "[dashboard] ", log.LstdFlags),
			})
			if err := dash.Start(); err != nil {
				fatal("failed to start dashboard: %v", err)
			}
			fmt.Printf("Dashboard: ws://localhost%s/ws\n", app.cfg.Dashboard.Addr)
		}

		cfg := daemon.Config{
			UserID:        app.cfg.UserID,
			DrainInterval: app.cfg.Daemon.DrainInterval,
			TokenFile:     app.tokens.TokenPath(app.cfg.UserID),
			LogFile:       app.cfg.LogFile,
		}

		var broadcaster daemon.Broadcaster
		if dash != nil {
			broadcaster = dash
		}
		d, err := daemon.New(app.sync, app.tokens, broadcaster, cfg)
		if err != nil {
			fatal("failed to start daemon: %v", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		fmt.Printf("Sync daemon running (drain every %s). Press Ctrl+C to stop.\n",
			cfg.DrainInterval)

		if err := d.Run(ctx); err != nil && err != context.Canceled {
			fatal("daemon error: %v", err)
		}

		if dash != nil {
			if err := dash.Stop(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: dashboard shutdown: %v\n", err)
			}
		}
		fmt.Println("Daemon stopped")
	},
}

func init() {
	daemonCmd.Flags().Bool("dashboard", false, "serve the WebSocket dashboard")
	rootCmd.AddCommand(daemonCmd)
}
