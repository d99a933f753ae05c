package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dayplanhq/dayplan/internal/model"
)

const queueColumns = `id, operation, entity_type, entity_id, payload, status,
	retry_count, next_retry_at, last_error, created_at, updated_at`

// InsertQueueEntry appends a new retry queue entry and returns its id.
func (db *DB) InsertQueueEntry(ctx context.Context, entry *model.QueueEntry) (int64, error) {
	query := `
	INSERT INTO retry_queue (
		operation, entity_type, entity_id, payload, status,
		retry_count, next_retry_at, last_error, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := db.conn.ExecContext(ctx, query,
		string(entry.Operation),
		entry.EntityType,
		entry.EntityID,
		string(entry.Payload),
		string(entry.Status),
		entry.RetryCount,
		entry.NextRetryAt.Format(time.RFC3339),
		nullIfEmpty(entry.LastError),
		entry.CreatedAt.Format(time.RFC3339),
		entry.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert queue entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue entry id: %w", err)
	}
	entry.ID = id
	return id, nil
}

// GetQueueEntry retrieves a single queue entry by id.
// Returns sql.ErrNoRows if not found.
func (db *DB) GetQueueEntry(ctx context.Context, id int64) (*model.QueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM retry_queue WHERE id = ?`
	return scanQueueEntry(db.conn.QueryRowContext(ctx, query, id))
}

// DueQueueEntries returns all pending entries whose next_retry_at has passed,
// oldest first. These are the entries a drain pass will process.
func (db *DB) DueQueueEntries(ctx context.Context, now time.Time) ([]*model.QueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM retry_queue
		WHERE status = ? AND next_retry_at <= ?
		ORDER BY next_retry_at ASC, id ASC`

	rows, err := db.conn.QueryContext(ctx, query,
		string(model.QueuePending), now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to query due queue entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.QueueEntry
	for rows.Next() {
		entry, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue entries: %w", err)
	}

	return entries, nil
}

// UpdateQueueEntry persists the mutable fields of an entry: status,
// retry count, next retry time, and last error.
func (db *DB) UpdateQueueEntry(ctx context.Context, entry *model.QueueEntry) error {
	query := `
	UPDATE retry_queue SET
		status = ?,
		retry_count = ?,
		next_retry_at = ?,
		last_error = ?,
		updated_at = ?
	WHERE id = ?
	`

	_, err := db.conn.ExecContext(ctx, query,
		string(entry.Status),
		entry.RetryCount,
		entry.NextRetryAt.Format(time.RFC3339),
		nullIfEmpty(entry.LastError),
		time.Now().Format(time.RFC3339),
		entry.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update queue entry %d: %w", entry.ID, err)
	}
	return nil
}

// RequeueProcessingEntries flips every processing entry back to pending and
// returns how many were moved. A drain pass marks entries processing before
// replaying them; entries stranded there by a crash would otherwise never be
// selected again.
func (db *DB) RequeueProcessingEntries(ctx context.Context) (int, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE retry_queue SET status = ?, updated_at = ? WHERE status = ?`,
		string(model.QueuePending),
		time.Now().Format(time.RFC3339),
		string(model.QueueProcessing),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue processing entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count requeued entries: %w", err)
	}
	return int(n), nil
}

// CountQueueEntries returns the number of entries in the given state.
func (db *DB) CountQueueEntries(ctx context.Context, status model.QueueState) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM retry_queue WHERE status = ?`, string(status)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count queue entries: %w", err)
	}
	return count, nil
}

// PendingQueueEntryForEntity returns the open (pending or processing) entry
// for an operation/entity pair, or nil when none exists. The queue drain
// uses this to update an existing entry instead of double-queueing.
func (db *DB) PendingQueueEntryForEntity(ctx context.Context, op model.Operation, entityType, entityID string) (*model.QueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM retry_queue
		WHERE operation = ? AND entity_type = ? AND entity_id = ?
		  AND status IN (?, ?)
		ORDER BY id ASC LIMIT 1`

	row := db.conn.QueryRowContext(ctx, query,
		string(op), entityType, entityID,
		string(model.QueuePending), string(model.QueueProcessing))

	entry, err := scanQueueEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query queue entry for %s/%s: %w", entityType, entityID, err)
	}
	return entry, nil
}

func scanQueueEntry(row scanner) (*model.QueueEntry, error) {
	var entry model.QueueEntry
	var operation, status string
	var payload, lastError sql.NullString
	var nextRetryAt, createdAt, updatedAt string

	err := row.Scan(
		&entry.ID,
		&operation,
		&entry.EntityType,
		&entry.EntityID,
		&payload,
		&status,
		&entry.RetryCount,
		&nextRetryAt,
		&lastError,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.Operation = model.Operation(operation)
	entry.Status = model.QueueState(status)
	entry.Payload = []byte(payload.String)
	entry.LastError = lastError.String

	if t, err := time.Parse(time.RFC3339, nextRetryAt); err == nil {
		entry.NextRetryAt = t
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		entry.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		entry.UpdatedAt = t
	}

	return &entry, nil
}
