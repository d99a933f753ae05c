package syncer

import (
	"context"
	"time"

	"github.com/dayplanhq/dayplan/internal/model"
)

// FailedOperation describes one task whose last sync attempt failed.
type FailedOperation struct {
	TaskID     string `json:"task_id"`
	Error      string `json:"error"`
	RetryCount int    `json:"retry_count"`
}

// Status is a point-in-time view of the sync connection and its backlog.
type Status struct {
	// IsConnected reports whether a credential handle is currently
	// obtainable.
	IsConnected bool `json:"is_connected"`

	// HasTokens reports whether credentials exist at all, even if
	// currently unusable. False means the user never connected.
	HasTokens bool `json:"has_tokens"`

	// ConnectionError carries the reason IsConnected is false.
	ConnectionError string `json:"connection_error,omitempty"`

	// LastSyncTime is the newest audit log timestamp, nil when no sync
	// activity has ever been recorded.
	LastSyncTime *time.Time `json:"last_sync_time,omitempty"`

	// PendingOperations counts queue entries waiting to be drained.
	PendingOperations int `json:"pending_operations"`

	// FailedOperations lists every task whose metadata records a failed
	// sync, with its error and retry count.
	FailedOperations []FailedOperation `json:"failed_operations,omitempty"`
}

// Status derives the current sync status for observers. It never returns
// an error: connection problems degrade to IsConnected=false with the
// failure captured in ConnectionError, and store errors are logged and
// leave the affected field zero-valued.
func (s *Syncer) Status(ctx context.Context) Status {
	var status Status

	status.HasTokens = s.tokens.HasTokens(s.userID)

	if _, err := s.tokens.Credential(ctx, s.userID); err != nil {
		status.ConnectionError = err.Error()
	} else {
		status.IsConnected = true
	}

	lastSync, err := s.db.LatestAuditTime(ctx)
	if err != nil {
		s.logger.Printf("WARNING: status: failed to read last sync time: %v", err)
	} else {
		status.LastSyncTime = lastSync
	}

	pending, err := s.db.CountQueueEntries(ctx, model.QueuePending)
	if err != nil {
		s.logger.Printf("WARNING: status: failed to count pending operations: %v", err)
	} else {
		status.PendingOperations = pending
	}

	failed, err := s.db.ListFailedSyncMetadata(ctx)
	if err != nil {
		s.logger.Printf("WARNING: status: failed to list failed operations: %v", err)
	} else {
		for _, meta := range failed {
			status.FailedOperations = append(status.FailedOperations, FailedOperation{
				TaskID:     meta.TaskID,
				Error:      meta.SyncError,
				RetryCount: meta.RetryCount,
			})
		}
	}

	return status
}
