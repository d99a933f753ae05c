package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dayplanhq/dayplan/internal/model"
)

const metaColumns = `task_id, remote_task_id, remote_event_id, is_fixed,
	sync_status, sync_error, retry_count, last_sync_time`

// UpsertSyncMetadata inserts or replaces the metadata row for a task.
// Metadata is 1:1 with tasks and mutated exclusively by the sync engine.
func (db *DB) UpsertSyncMetadata(ctx context.Context, meta *model.SyncMetadata) error {
	if err := meta.Validate(); err != nil {
		return fmt.Errorf("invalid sync metadata: %w", err)
	}

	query := `
	INSERT INTO sync_metadata (
		task_id, remote_task_id, remote_event_id, is_fixed,
		sync_status, sync_error, retry_count, last_sync_time
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(task_id) DO UPDATE SET
		remote_task_id = excluded.remote_task_id,
		remote_event_id = excluded.remote_event_id,
		is_fixed = excluded.is_fixed,
		sync_status = excluded.sync_status,
		sync_error = excluded.sync_error,
		retry_count = excluded.retry_count,
		last_sync_time = excluded.last_sync_time
	`

	_, err := db.conn.ExecContext(ctx, query,
		meta.TaskID,
		nullIfEmpty(meta.RemoteTaskID),
		nullIfEmpty(meta.RemoteEventID),
		boolToInt(meta.IsFixed),
		nullIfEmpty(string(meta.SyncStatus)),
		nullIfEmpty(meta.SyncError),
		meta.RetryCount,
		timeToNullString(meta.LastSyncTime),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert sync metadata: %w", err)
	}

	return nil
}

// GetSyncMetadata retrieves the metadata row for a task.
// Returns nil (no error) when the task has never been synced.
func (db *DB) GetSyncMetadata(ctx context.Context, taskID string) (*model.SyncMetadata, error) {
	return db.getMetaBy(ctx, "task_id", taskID)
}

// GetSyncMetadataByRemoteTaskID finds metadata referencing a remote task id.
// Returns nil (no error) when no row references it. This is the idempotency
// lookup used by import and export.
func (db *DB) GetSyncMetadataByRemoteTaskID(ctx context.Context, remoteTaskID string) (*model.SyncMetadata, error) {
	return db.getMetaBy(ctx, "remote_task_id", remoteTaskID)
}

// GetSyncMetadataByRemoteEventID finds metadata referencing a remote event id.
// Returns nil (no error) when no row references it.
func (db *DB) GetSyncMetadataByRemoteEventID(ctx context.Context, remoteEventID string) (*model.SyncMetadata, error) {
	return db.getMetaBy(ctx, "remote_event_id", remoteEventID)
}

func (db *DB) getMetaBy(ctx context.Context, column, value string) (*model.SyncMetadata, error) {
	query := `SELECT ` + metaColumns + ` FROM sync_metadata WHERE ` + column + ` = ?`
	row := db.conn.QueryRowContext(ctx, query, value)

	meta, err := scanMeta(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query sync metadata by %s: %w", column, err)
	}
	return meta, nil
}

// ListFailedSyncMetadata returns all metadata rows whose last sync failed,
// ordered by task id for stable output.
func (db *DB) ListFailedSyncMetadata(ctx context.Context) ([]*model.SyncMetadata, error) {
	query := `SELECT ` + metaColumns + ` FROM sync_metadata
		WHERE sync_status = ? ORDER BY task_id ASC`

	rows, err := db.conn.QueryContext(ctx, query, string(model.SyncStateFailed))
	if err != nil {
		return nil, fmt.Errorf("failed to list failed sync metadata: %w", err)
	}
	defer rows.Close()

	var metas []*model.SyncMetadata
	for rows.Next() {
		meta, err := scanMeta(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync metadata: %w", err)
		}
		metas = append(metas, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync metadata: %w", err)
	}

	return metas, nil
}

// DeleteSyncMetadata removes the metadata row for a task.
// Returns nil if no row exists (idempotent).
func (db *DB) DeleteSyncMetadata(ctx context.Context, taskID string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM sync_metadata WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("failed to delete sync metadata for %s: %w", taskID, err)
	}
	return nil
}

func scanMeta(row scanner) (*model.SyncMetadata, error) {
	var meta model.SyncMetadata
	var remoteTaskID, remoteEventID, syncStatus, syncError sql.NullString
	var isFixed int
	var lastSync sql.NullString

	err := row.Scan(
		&meta.TaskID,
		&remoteTaskID,
		&remoteEventID,
		&isFixed,
		&syncStatus,
		&syncError,
		&meta.RetryCount,
		&lastSync,
	)
	if err != nil {
		return nil, err
	}

	meta.RemoteTaskID = remoteTaskID.String
	meta.RemoteEventID = remoteEventID.String
	meta.IsFixed = isFixed != 0
	meta.SyncStatus = model.SyncState(syncStatus.String)
	meta.SyncError = syncError.String
	meta.LastSyncTime = nullStringToTime(lastSync)

	return &meta, nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
