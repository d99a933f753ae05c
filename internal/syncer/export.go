package syncer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dayplanhq/dayplan/internal/model"
	"github.com/dayplanhq/dayplan/internal/remote"
)

// ErrTaskIsFixed is returned when a locally-forbidden mutation is attempted
// on a calendar-derived task.
var ErrTaskIsFixed = errors.New("task is fixed by a calendar event")

const entityTask = "task"

// deletePayload carries the remote identifiers a queued deletion needs,
// since the local task row is already gone by the time the drain runs.
type deletePayload struct {
	RemoteTaskID  string `json:"remote_task_id,omitempty"`
	RemoteEventID string `json:"remote_event_id,omitempty"`
}

func decodeDeletePayload(raw []byte) (deletePayload, error) {
	var payload deletePayload
	if len(raw) == 0 {
		return payload, fmt.Errorf("delete entry has no payload")
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, fmt.Errorf("malformed delete payload: %w", err)
	}
	return payload, nil
}

// ExportNewTask pushes a locally-created task to the provider: first the
// remote task, then a calendar event blocking out its estimated duration.
//
// If metadata already holds either remote id this is an idempotent no-op,
// which prevents duplicate remote resources on retry-queue redelivery. If
// the task step succeeds but the event step fails, the remote task id is
// persisted before the error returns, so a retried export never re-creates
// the already-successful remote task.
func (s *Syncer) ExportNewTask(ctx context.Context, taskID string) error {
	return s.exportNewTask(ctx, taskID, originDirect)
}

func (s *Syncer) exportNewTask(ctx context.Context, taskID string, from origin) error {
	task, err := s.db.GetTask(ctx, taskID)
	if err == sql.ErrNoRows {
		// The task was deleted before the export ran. Nothing to resume.
		s.audit(ctx, string(model.OpCreate), entityTask, taskID, model.OutcomeSkipped, "task no longer exists")
		return fmt.Errorf("export task %s: %w: task not found", taskID, ErrPermanent)
	}
	if err != nil {
		return fmt.Errorf("export task %s: %w", taskID, err)
	}

	meta, err := s.db.GetSyncMetadata(ctx, taskID)
	if err != nil {
		return fmt.Errorf("export task %s: %w", taskID, err)
	}
	if meta != nil && (meta.RemoteTaskID != "" || meta.RemoteEventID != "") {
		s.audit(ctx, string(model.OpCreate), entityTask, taskID, model.OutcomeSkipped, "already exported")
		return nil
	}

	handle, err := s.tokens.Credential(ctx, s.userID)
	if err != nil {
		return s.exportFailed(ctx, model.OpCreate, task, meta, "", err, from)
	}

	var remoteTaskID string
	err = s.retrier.Do(ctx, "create remote task", func() error {
		id, err := s.tasks.CreateTask(ctx, handle, remote.TaskRequest{
			Title: task.Title,
			Notes: task.Description,
			Due:   task.DueAt,
		})
		if err != nil {
			return err
		}
		remoteTaskID = id
		return nil
	})
	if err != nil {
		// Nothing was persisted; the whole operation can replay safely.
		return s.exportFailed(ctx, model.OpCreate, task, meta, "", err, from)
	}

	start, end := task.ExportWindow()
	var remoteEventID string
	err = s.retrier.Do(ctx, "create remote event", func() error {
		id, err := s.cal.CreateEvent(ctx, handle, remote.EventRequest{
			Summary:     task.Title,
			Description: task.Description,
			Start:       start,
			End:         end,
		})
		if err != nil {
			return err
		}
		remoteEventID = id
		return nil
	})
	if err != nil {
		// Partial failure: the remote task exists. Persist its id so the
		// next attempt's idempotency check refuses to create a second one.
		return s.exportFailed(ctx, model.OpCreate, task, meta, remoteTaskID, err, from)
	}

	now := time.Now()
	newMeta := &model.SyncMetadata{
		TaskID:        taskID,
		RemoteTaskID:  remoteTaskID,
		RemoteEventID: remoteEventID,
		SyncStatus:    model.SyncStateSynced,
		LastSyncTime:  &now,
	}
	if err := s.db.UpsertSyncMetadata(ctx, newMeta); err != nil {
		return fmt.Errorf("export task %s: %w", taskID, err)
	}

	s.audit(ctx, string(model.OpCreate), entityTask, taskID, model.OutcomeSuccess,
		fmt.Sprintf("remote task %s, remote event %s", remoteTaskID, remoteEventID))
	s.logger.Printf("Exported new task %s (%s)", taskID, task.Title)
	return nil
}

// ExportModification pushes local edits to whichever remote resources the
// task's metadata references. Local data always overwrites remote data: the
// exporter never reads the remote resource first, so concurrent remote
// edits are discarded.
//
// A task with no metadata has never been synced; that is a no-op, not an
// error.
func (s *Syncer) ExportModification(ctx context.Context, taskID string) error {
	return s.exportModification(ctx, taskID, originDirect)
}

func (s *Syncer) exportModification(ctx context.Context, taskID string, from origin) error {
	task, err := s.db.GetTask(ctx, taskID)
	if err == sql.ErrNoRows {
		s.audit(ctx, string(model.OpUpdate), entityTask, taskID, model.OutcomeSkipped, "task no longer exists")
		return fmt.Errorf("export modification %s: %w: task not found", taskID, ErrPermanent)
	}
	if err != nil {
		return fmt.Errorf("export modification %s: %w", taskID, err)
	}

	meta, err := s.db.GetSyncMetadata(ctx, taskID)
	if err != nil {
		return fmt.Errorf("export modification %s: %w", taskID, err)
	}
	if meta == nil {
		s.audit(ctx, string(model.OpUpdate), entityTask, taskID, model.OutcomeSkipped, "never synced")
		return nil
	}

	handle, err := s.tokens.Credential(ctx, s.userID)
	if err != nil {
		return s.exportFailedMeta(ctx, model.OpUpdate, task, meta, err, from)
	}

	// Each side is attempted independently so a task-only sync still
	// updates successfully when the event side fails, and vice versa.
	var sideErrs []error

	if meta.RemoteTaskID != "" {
		err := s.retrier.Do(ctx, "update remote task", func() error {
			return s.tasks.UpdateTask(ctx, handle, meta.RemoteTaskID, remote.TaskRequest{
				Title: task.Title,
				Notes: task.Description,
				Due:   task.DueAt,
			})
		})
		if err != nil {
			sideErrs = append(sideErrs, err)
		}
	}

	if meta.RemoteEventID != "" {
		start, end := task.ExportWindow()
		err := s.retrier.Do(ctx, "update remote event", func() error {
			return s.cal.UpdateEvent(ctx, handle, meta.RemoteEventID, remote.EventRequest{
				Summary:     task.Title,
				Description: task.Description,
				Start:       start,
				End:         end,
			})
		})
		if err != nil {
			sideErrs = append(sideErrs, err)
		}
	}

	if len(sideErrs) > 0 {
		return s.exportFailedMeta(ctx, model.OpUpdate, task, meta, errors.Join(sideErrs...), from)
	}

	now := time.Now()
	meta.SyncStatus = model.SyncStateSynced
	meta.SyncError = ""
	meta.RetryCount = 0
	meta.LastSyncTime = &now
	if err := s.db.UpsertSyncMetadata(ctx, meta); err != nil {
		return fmt.Errorf("export modification %s: %w", taskID, err)
	}

	s.audit(ctx, string(model.OpUpdate), entityTask, taskID, model.OutcomeSuccess, "")
	return nil
}

// ExportCompletion marks the remote task complete. The remote task is never
// deleted on completion so the change stays reversible and auditable on the
// provider side. Completing an already-completed remote task succeeds.
//
// Tasks with no metadata or no remote task id are a no-op.
func (s *Syncer) ExportCompletion(ctx context.Context, taskID string) error {
	return s.exportCompletion(ctx, taskID, originDirect)
}

func (s *Syncer) exportCompletion(ctx context.Context, taskID string, from origin) error {
	meta, err := s.db.GetSyncMetadata(ctx, taskID)
	if err != nil {
		return fmt.Errorf("export completion %s: %w", taskID, err)
	}
	if meta == nil || meta.RemoteTaskID == "" {
		s.audit(ctx, string(model.OpComplete), entityTask, taskID, model.OutcomeSkipped, "no remote task")
		return nil
	}

	handle, err := s.tokens.Credential(ctx, s.userID)
	if err != nil {
		return s.exportFailedMeta(ctx, model.OpComplete, nil, meta, err, from)
	}

	err = s.retrier.Do(ctx, "complete remote task", func() error {
		return s.tasks.CompleteTask(ctx, handle, meta.RemoteTaskID)
	})
	if err != nil {
		return s.exportFailedMeta(ctx, model.OpComplete, nil, meta, err, from)
	}

	now := time.Now()
	meta.SyncStatus = model.SyncStateSynced
	meta.SyncError = ""
	meta.RetryCount = 0
	meta.LastSyncTime = &now
	if err := s.db.UpsertSyncMetadata(ctx, meta); err != nil {
		return fmt.Errorf("export completion %s: %w", taskID, err)
	}

	s.audit(ctx, string(model.OpComplete), entityTask, taskID, model.OutcomeSuccess, "")
	return nil
}

// ExportDeletion removes the task locally and deletes its remote resources.
// Fixed tasks originate from calendar events and refuse local deletion.
// Tasks that were never synced are simply deleted locally.
func (s *Syncer) ExportDeletion(ctx context.Context, taskID string) error {
	meta, err := s.db.GetSyncMetadata(ctx, taskID)
	if err != nil {
		return fmt.Errorf("export deletion %s: %w", taskID, err)
	}
	if meta != nil && meta.IsFixed {
		return fmt.Errorf("delete task %s: %w", taskID, ErrTaskIsFixed)
	}

	var payload deletePayload
	if meta != nil {
		payload.RemoteTaskID = meta.RemoteTaskID
		payload.RemoteEventID = meta.RemoteEventID
	}

	// Local delete first: the user's intent is immediate, and the remote
	// cleanup can be replayed from the queued payload.
	if err := s.db.DeleteTask(ctx, taskID); err != nil {
		return fmt.Errorf("export deletion %s: %w", taskID, err)
	}

	if payload.RemoteTaskID == "" && payload.RemoteEventID == "" {
		s.audit(ctx, string(model.OpDelete), entityTask, taskID, model.OutcomeSuccess, "local only")
		return nil
	}

	if err := s.deleteRemote(ctx, taskID, payload); err != nil {
		if queueable(err) {
			raw, _ := json.Marshal(payload)
			s.enqueue(ctx, model.OpDelete, entityTask, taskID, raw, err)
		}
		s.audit(ctx, string(model.OpDelete), entityTask, taskID, model.OutcomeFailure, err.Error())
		return err
	}

	s.audit(ctx, string(model.OpDelete), entityTask, taskID, model.OutcomeSuccess, "")
	return nil
}

// deleteRemote removes whichever remote resources the payload references.
func (s *Syncer) deleteRemote(ctx context.Context, taskID string, payload deletePayload) error {
	handle, err := s.tokens.Credential(ctx, s.userID)
	if err != nil {
		return fmt.Errorf("delete remote for %s: %w", taskID, err)
	}

	var errs []error
	if payload.RemoteEventID != "" {
		err := s.retrier.Do(ctx, "delete remote event", func() error {
			return s.cal.DeleteEvent(ctx, handle, payload.RemoteEventID)
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	if payload.RemoteTaskID != "" {
		err := s.retrier.Do(ctx, "delete remote task", func() error {
			return s.tasks.DeleteTask(ctx, handle, payload.RemoteTaskID)
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// exportFailed records a failed creation export. When remoteTaskID is
// non-empty the partial-failure invariant applies: the id is persisted
// before the error surfaces.
func (s *Syncer) exportFailed(ctx context.Context, op model.Operation, task *model.Task, meta *model.SyncMetadata, remoteTaskID string, cause error, from origin) error {
	if remoteTaskID != "" {
		now := time.Now()
		retries := 1
		if meta != nil {
			retries = meta.RetryCount + 1
		}
		failedMeta := &model.SyncMetadata{
			TaskID:       task.ID,
			RemoteTaskID: remoteTaskID,
			SyncStatus:   model.SyncStateFailed,
			SyncError:    cause.Error(),
			RetryCount:   retries,
			LastSyncTime: &now,
		}
		if meta != nil {
			failedMeta.RemoteEventID = meta.RemoteEventID
			failedMeta.IsFixed = meta.IsFixed
		}
		if err := s.db.UpsertSyncMetadata(ctx, failedMeta); err != nil {
			s.logger.Printf("WARNING: failed to persist partial export for %s: %v", task.ID, err)
		}
	}

	if from == originDirect && queueable(cause) {
		var raw []byte
		if task != nil {
			raw, _ = json.Marshal(task)
		}
		s.enqueue(ctx, op, entityTask, task.ID, raw, cause)
	}

	s.audit(ctx, string(op), entityTask, task.ID, model.OutcomeFailure, cause.Error())
	return cause
}

// exportFailedMeta records a failed update/completion export on an existing
// metadata row.
func (s *Syncer) exportFailedMeta(ctx context.Context, op model.Operation, task *model.Task, meta *model.SyncMetadata, cause error, from origin) error {
	meta.SyncStatus = model.SyncStateFailed
	meta.SyncError = cause.Error()
	meta.RetryCount++
	if err := s.db.UpsertSyncMetadata(ctx, meta); err != nil {
		s.logger.Printf("WARNING: failed to persist sync failure for %s: %v", meta.TaskID, err)
	}

	if from == originDirect && queueable(cause) {
		var raw []byte
		if task != nil {
			raw, _ = json.Marshal(task)
		}
		s.enqueue(ctx, op, entityTask, meta.TaskID, raw, cause)
	}

	s.audit(ctx, string(op), entityTask, meta.TaskID, model.OutcomeFailure, cause.Error())
	return cause
}
