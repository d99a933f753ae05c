// Command dayplan is an energy-aware day planner that syncs with Google
// Calendar and Google Tasks.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/dayplanhq/dayplan/internal/config"
	"github.com/dayplanhq/dayplan/internal/remote/google"
	"github.com/dayplanhq/dayplan/internal/store"
	"github.com/dayplanhq/dayplan/internal/syncer"
)

var rootCmd = &cobra.Command{
	Use:   "dayplan",
	Short: "Energy-aware day planning with Google Calendar/Tasks sync",
	Long: `dayplan keeps a local task list, builds an energy-aware time-blocked
plan for your day, and syncs bidirectionally with Google Calendar and
Google Tasks.

All commands work offline: remote failures are queued and retried by
'dayplan daemon' in the background.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "plan", Title: "Planning Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles everything a command needs. Close must be called when done.
type app struct {
	cfg    *config.Config
	db     *store.DB
	tokens *google.Manager
	sync   *syncer.Syncer
}

// newApp loads config and opens the store; it does not require Google
// credentials to exist yet.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(); err != nil {
		db.Close()
		return nil, err
	}

	// The manager reads credentials.json lazily, so local commands work
	// before any Google setup has happened.
	tokens := google.NewManager(cfg.CredentialsPath, nil)

	retry := syncer.RetryConfig{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  cfg.Retry.BaseDelay,
		MaxDelay:   cfg.Retry.MaxDelay,
	}
	sync := syncer.New(db,
		tokens,
		google.NewCalendar(cfg.CalendarID),
		google.NewTasks(cfg.TaskListID),
		cfg.UserID,
		syncer.Options{
			Retry:  &retry,
			Logger: log.New(os.Stderr, "[syncer] ", log.LstdFlags),
		})

	return &app{cfg: cfg, db: db, tokens: tokens, sync: sync}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
	}
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
