package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dayplanhq/dayplan/internal/model"
)

// AppendAudit writes one append-only audit log entry.
// Entries are write-once; there is deliberately no update or delete path.
func (db *DB) AppendAudit(ctx context.Context, entry *model.AuditLogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query := `
	INSERT INTO audit_log (operation, entity_type, entity_id, outcome, details, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`

	res, err := db.conn.ExecContext(ctx, query,
		entry.Operation,
		entry.EntityType,
		entry.EntityID,
		entry.Outcome,
		nullIfEmpty(entry.Details),
		entry.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}

// LatestAuditTime returns the timestamp of the most recent audit entry,
// or nil when the log is empty. The status reporter surfaces this as the
// last sync time.
func (db *DB) LatestAuditTime(ctx context.Context) (*time.Time, error) {
	var createdAt sql.NullString
	err := db.conn.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM audit_log`).Scan(&createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest audit time: %w", err)
	}
	return nullStringToTime(createdAt), nil
}

// RecentAudit returns the most recent audit entries, newest first.
func (db *DB) RecentAudit(ctx context.Context, limit int) ([]*model.AuditLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
	SELECT id, operation, entity_type, entity_id, outcome, details, created_at
	FROM audit_log
	ORDER BY id DESC
	LIMIT ?
	`

	rows, err := db.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []*model.AuditLogEntry
	for rows.Next() {
		var entry model.AuditLogEntry
		var details sql.NullString
		var createdAt string

		err := rows.Scan(
			&entry.ID,
			&entry.Operation,
			&entry.EntityType,
			&entry.EntityID,
			&entry.Outcome,
			&details,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}

		entry.Details = details.String
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			entry.CreatedAt = t
		}

		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log: %w", err)
	}

	return entries, nil
}
