package syncer

import (
	"context"
	"log"
	"os"

	"github.com/dayplanhq/dayplan/internal/model"
	"github.com/dayplanhq/dayplan/internal/remote"
	"github.com/dayplanhq/dayplan/internal/store"
)

// Syncer coordinates import, export, and queue drain for one user.
//
// All methods are safe to call from a single goroutine. Concurrent drains
// for the same user are not safe and must be serialized by the caller.
type Syncer struct {
	db      *store.DB
	tokens  remote.TokenManager
	cal     remote.CalendarAPI
	tasks   remote.TaskAPI
	retrier *Retrier
	logger  *log.Logger
	userID  string
}

// Options configures optional Syncer behavior.
type Options struct {
	// Retry overrides the default retry policy.
	Retry *RetryConfig

	// Logger receives sync engine activity. Defaults to stderr.
	Logger *log.Logger
}

// New creates a Syncer for the given user.
//
// The database must be open with its schema initialized.
func New(db *store.DB, tokens remote.TokenManager, cal remote.CalendarAPI, tasks remote.TaskAPI, userID string, opts Options) *Syncer {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[syncer] ", log.LstdFlags)
	}

	cfg := DefaultRetryConfig()
	if opts.Retry != nil {
		cfg = *opts.Retry
	}

	return &Syncer{
		db:      db,
		tokens:  tokens,
		cal:     cal,
		tasks:   tasks,
		retrier: NewRetrier(cfg, logger),
		userID:  userID,
		logger:  logger,
	}
}

// origin records how an export operation was invoked. It is threaded as an
// explicit parameter so that operations replayed from inside a drain update
// their existing queue entry instead of enqueueing a duplicate.
type origin int

const (
	originDirect origin = iota
	originQueue
)

// audit appends an audit log entry. Audit failures are logged and swallowed:
// a broken audit trail must not abort the sync operation it describes.
func (s *Syncer) audit(ctx context.Context, operation, entityType, entityID, outcome, details string) {
	entry := &model.AuditLogEntry{
		Operation:  operation,
		EntityType: entityType,
		EntityID:   entityID,
		Outcome:    outcome,
		Details:    details,
	}
	if err := s.db.AppendAudit(ctx, entry); err != nil {
		s.logger.Printf("WARNING: failed to write audit entry for %s %s/%s: %v",
			operation, entityType, entityID, err)
	}
}
