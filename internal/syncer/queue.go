package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/dayplanhq/dayplan/internal/model"
)

// enqueue records a retryably-failed export for a later drain pass.
//
// Entries always start pending with retryCount 0 and a first retry
// scheduled one backoff step out. If an open entry already exists for the
// same operation and entity, it is refreshed in place rather than
// duplicated.
func (s *Syncer) enqueue(ctx context.Context, op model.Operation, entityType, entityID string, payload []byte, cause error) {
	existing, err := s.db.PendingQueueEntryForEntity(ctx, op, entityType, entityID)
	if err != nil {
		s.logger.Printf("WARNING: failed to check for existing queue entry (%s %s/%s): %v",
			op, entityType, entityID, err)
	}
	if existing != nil {
		existing.LastError = cause.Error()
		if len(payload) > 0 {
			existing.Payload = payload
		}
		if err := s.db.UpdateQueueEntry(ctx, existing); err != nil {
			s.logger.Printf("WARNING: failed to refresh queue entry %d: %v", existing.ID, err)
		}
		return
	}

	now := time.Now()
	entry := &model.QueueEntry{
		Operation:   op,
		EntityType:  entityType,
		EntityID:    entityID,
		Payload:     payload,
		Status:      model.QueuePending,
		RetryCount:  0,
		NextRetryAt: now.Add(s.retrier.Backoff(0)),
		LastError:   cause.Error(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if _, err := s.db.InsertQueueEntry(ctx, entry); err != nil {
		s.logger.Printf("WARNING: failed to enqueue %s %s/%s: %v", op, entityType, entityID, err)
		return
	}

	s.audit(ctx, "enqueue", entityType, entityID, model.OutcomeSuccess,
		fmt.Sprintf("operation %s queued after: %v", op, cause))
	s.logger.Printf("Queued %s for %s/%s (next retry %s)",
		op, entityType, entityID, entry.NextRetryAt.Format(time.RFC3339))
}

// DrainStats summarizes one drain pass.
type DrainStats struct {
	Processed int
	Completed int
	Retried   int
	Failed    int
}

// Drain processes all pending queue entries whose retry time has passed.
//
// Each entry is re-invoked through the same export code path a live caller
// would use, flagged with a queue origin so a repeated failure updates this
// entry instead of creating a duplicate. On success the entry completes; on
// failure it is rescheduled with exponential backoff until the retry
// ceiling, after which it is marked failed permanently and never drained
// again.
//
// Entries are processed sequentially. Concurrent drains for the same user
// must be serialized by the caller.
func (s *Syncer) Drain(ctx context.Context, now time.Time) (DrainStats, error) {
	var stats DrainStats

	// A crash between marking an entry processing and recording its outcome
	// would strand it where no drain selects it. Sweep survivors back first.
	requeued, err := s.db.RequeueProcessingEntries(ctx)
	if err != nil {
		s.logger.Printf("WARNING: failed to requeue stale processing entries: %v", err)
	} else if requeued > 0 {
		s.logger.Printf("Requeued %d stale processing entries", requeued)
	}

	entries, err := s.db.DueQueueEntries(ctx, now)
	if err != nil {
		return stats, fmt.Errorf("drain: %w", err)
	}
	if len(entries) == 0 {
		return stats, nil
	}

	s.logger.Printf("Draining %d due queue entries", len(entries))

	for _, entry := range entries {
		stats.Processed++

		entry.Status = model.QueueProcessing
		if err := s.db.UpdateQueueEntry(ctx, entry); err != nil {
			s.logger.Printf("WARNING: failed to mark queue entry %d processing: %v", entry.ID, err)
			continue
		}

		opErr := s.dispatch(ctx, entry)
		if opErr == nil {
			entry.Status = model.QueueCompleted
			entry.LastError = ""
			if err := s.db.UpdateQueueEntry(ctx, entry); err != nil {
				s.logger.Printf("WARNING: failed to complete queue entry %d: %v", entry.ID, err)
			}
			stats.Completed++
			s.audit(ctx, "drain", entry.EntityType, entry.EntityID, model.OutcomeSuccess,
				fmt.Sprintf("queued %s completed", entry.Operation))
			continue
		}

		entry.RetryCount++
		entry.LastError = opErr.Error()

		// A fatal replay outcome is terminal immediately; only retryable
		// failures go back on the backoff curve, and only up to the ceiling.
		if !queueable(opErr) || entry.RetryCount >= s.retrier.cfg.MaxRetries {
			entry.Status = model.QueueFailed
			stats.Failed++
			s.audit(ctx, "drain", entry.EntityType, entry.EntityID, model.OutcomeFailure,
				fmt.Sprintf("queued %s failed permanently after %d retries: %v",
					entry.Operation, entry.RetryCount, opErr))
			s.logger.Printf("Queue entry %d (%s %s) failed permanently: %v",
				entry.ID, entry.Operation, entry.EntityID, opErr)
		} else {
			entry.Status = model.QueuePending
			entry.NextRetryAt = now.Add(s.retrier.Backoff(entry.RetryCount))
			stats.Retried++
			s.audit(ctx, "drain", entry.EntityType, entry.EntityID, model.OutcomeFailure,
				fmt.Sprintf("queued %s rescheduled (retry %d): %v",
					entry.Operation, entry.RetryCount, opErr))
		}

		if err := s.db.UpdateQueueEntry(ctx, entry); err != nil {
			s.logger.Printf("WARNING: failed to update queue entry %d: %v", entry.ID, err)
		}
	}

	s.logger.Printf("Drain complete: processed=%d completed=%d retried=%d failed=%d",
		stats.Processed, stats.Completed, stats.Retried, stats.Failed)
	return stats, nil
}

// dispatch replays a queue entry through the export operation it snapshots.
func (s *Syncer) dispatch(ctx context.Context, entry *model.QueueEntry) error {
	switch entry.Operation {
	case model.OpCreate:
		return s.exportNewTask(ctx, entry.EntityID, originQueue)
	case model.OpUpdate:
		return s.exportModification(ctx, entry.EntityID, originQueue)
	case model.OpComplete:
		return s.exportCompletion(ctx, entry.EntityID, originQueue)
	case model.OpDelete:
		return s.dispatchDelete(ctx, entry)
	default:
		return fmt.Errorf("%w: unknown queued operation %q", ErrPermanent, entry.Operation)
	}
}

func (s *Syncer) dispatchDelete(ctx context.Context, entry *model.QueueEntry) error {
	payload, err := decodeDeletePayload(entry.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	return s.deleteRemote(ctx, entry.EntityID, payload)
}
