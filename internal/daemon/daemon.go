// Package daemon provides the background worker that drains the retry
// queue on a periodic tick and watches the token file for external
// re-authorization.
//
// The daemon is the only caller of Drain, which serializes drain passes per
// user as the sync engine requires. It owns no business logic: each tick is
// a plain call into the sync engine, and each outcome is broadcast to the
// dashboard when one is attached.
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dayplanhq/dayplan/internal/dashboard"
	"github.com/dayplanhq/dayplan/internal/syncer"
)

// Syncer is the slice of the sync engine the daemon drives.
type Syncer interface {
	Drain(ctx context.Context, now time.Time) (syncer.DrainStats, error)
	Status(ctx context.Context) syncer.Status
}

// Invalidator drops a cached credential handle so the next remote call
// rebuilds it from the token file.
type Invalidator interface {
	Invalidate(userID string)
}

// Broadcaster publishes daemon events to observers.
type Broadcaster interface {
	Broadcast(msg dashboard.Message)
}

// Config holds daemon configuration.
type Config struct {
	// UserID identifies whose queue this daemon drains.
	UserID string

	// DrainInterval is how often the retry queue is drained.
	DrainInterval time.Duration

	// TokenFile, when set, is watched so a re-authorization performed by
	// another process is picked up without a restart.
	TokenFile string

	// LogFile, when set, receives daemon logs with rotation.
	LogFile string

	// Logger overrides the default logger (stderr, or LogFile when set).
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{DrainInterval: 30 * time.Second}
}

// Daemon drains the retry queue until its context is cancelled.
type Daemon struct {
	sync   Syncer
	tokens Invalidator
	dash   Broadcaster
	cfg    Config
	logger *log.Logger

	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
}

// New creates a Daemon. tokens and dash may be nil; a nil tokens disables
// token-file watching, a nil dash disables broadcasting.
func New(sync Syncer, tokens Invalidator, dash Broadcaster, cfg Config) (*Daemon, error) {
	if sync == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = DefaultConfig().DrainInterval
	}

	logger := cfg.Logger
	if logger == nil {
		if cfg.LogFile != "" {
			logger = log.New(&lumberjack.Logger{
				Filename:   cfg.LogFile,
				MaxSize:    10, // megabytes
				MaxBackups: 3,
				MaxAge:     14, // days
			}, "[daemon] ", log.LstdFlags)
		} else {
			logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
		}
	}

	return &Daemon{
		sync:   sync,
		tokens: tokens,
		dash:   dash,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Run drains the queue on the configured interval until ctx is cancelled.
// It performs one drain immediately on startup so queued work from a
// previous session is not delayed by a full interval.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Printf("Daemon starting (drain every %s)", d.cfg.DrainInterval)

	if d.cfg.TokenFile != "" && d.tokens != nil {
		if err := d.watchTokenFile(ctx); err != nil {
			return err
		}
		defer d.watcher.Close()
	}

	d.drainOnce(ctx)

	ticker := time.NewTicker(d.cfg.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Println("Daemon stopping")
			d.wg.Wait()
			return ctx.Err()

		case <-ticker.C:
			d.drainOnce(ctx)
		}
	}
}

// drainOnce runs a single drain pass and reports the outcome.
func (d *Daemon) drainOnce(ctx context.Context) {
	stats, err := d.sync.Drain(ctx, time.Now())
	if err != nil {
		d.logger.Printf("Drain error: %v", err)
		return
	}

	if stats.Processed > 0 {
		d.logger.Printf("Drained queue: processed=%d completed=%d retried=%d failed=%d",
			stats.Processed, stats.Completed, stats.Retried, stats.Failed)
	}

	d.broadcastDrain(ctx, stats)
}

func (d *Daemon) broadcastDrain(ctx context.Context, stats syncer.DrainStats) {
	if d.dash == nil {
		return
	}

	if data, err := json.Marshal(stats); err == nil {
		d.dash.Broadcast(dashboard.Message{Type: dashboard.MessageTypeQueueDrain, Data: data})
	}

	status := d.sync.Status(ctx)
	if data, err := json.Marshal(status); err == nil {
		d.dash.Broadcast(dashboard.Message{Type: dashboard.MessageTypeStatus, Data: data})
	}
}

// watchTokenFile starts an fsnotify watcher on the token file's directory.
// Token files are typically replaced atomically (write + rename), so the
// directory is watched and events are filtered to the file itself.
func (d *Daemon) watchTokenFile(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create token watcher: %w", err)
	}
	d.watcher = watcher

	dir := filepath.Dir(d.cfg.TokenFile)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch token directory: %w", err)
	}

	d.logger.Printf("Watching token file %s", d.cfg.TokenFile)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(d.cfg.TokenFile) {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				d.logger.Printf("Token file changed (%s), resetting credential", event.Op)
				d.tokens.Invalidate(d.cfg.UserID)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				d.logger.Printf("Token watcher error: %v", err)
			}
		}
	}()

	return nil
}
