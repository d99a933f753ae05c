package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dayplanhq/dayplan/internal/model"
	"github.com/dayplanhq/dayplan/internal/remote"
)

// ImportError records one isolated failure inside an import run.
type ImportError struct {
	Stage    string `json:"stage"`
	EntityID string `json:"entity_id,omitempty"`
	Message  string `json:"message"`
}

// ImportResult summarizes one import run. Import fails open: errors are
// collected here instead of aborting the batch, so the caller can still use
// the app offline.
type ImportResult struct {
	EventsImported int
	TasksImported  int
	Created        int
	Updated        int
	Conflicts      []model.Conflict
	Errors         []ImportError
}

func (r *ImportResult) addError(stage, entityID string, err error) {
	r.Errors = append(r.Errors, ImportError{Stage: stage, EntityID: entityID, Message: err.Error()})
}

// Import pulls the given day's remote events and tasks and maps them onto
// local tasks.
//
// Per-item import is idempotent on the remote identifier: a remote event or
// task already referenced by sync metadata only refreshes the local task's
// mutable fields. Calendar events become fixed must-do tasks spanning the
// event's wall clock; remote tasks become flexible should-do tasks with a
// 30-minute default estimate.
//
// Conflict detection runs over the full event batch before any import and
// its findings are logged, not enforced: every event imports regardless.
// Import never returns a non-nil error for remote or credential failures;
// those are reported in the result's error list.
func (s *Syncer) Import(ctx context.Context, day time.Time) *ImportResult {
	result := &ImportResult{}

	handle, err := s.tokens.Credential(ctx, s.userID)
	if err != nil {
		// Fail open: no credentials means no import, not a crash.
		result.addError("credential", "", err)
		s.audit(ctx, "import", "sync", s.userID, model.OutcomeFailure, err.Error())
		return result
	}

	// Events and tasks are fetched independently; one side failing does
	// not stop the other.
	var events []remote.Event
	err = s.retrier.Do(ctx, "list remote events", func() error {
		var listErr error
		events, listErr = s.cal.ListEventsForDay(ctx, handle, day)
		return listErr
	})
	if err != nil {
		result.addError("list-events", "", err)
	} else {
		result.Conflicts = DetectEventConflicts(events)
		for _, c := range result.Conflicts {
			s.logger.Printf("Conflict detected: %s", c.Description)
			s.audit(ctx, "conflict", "event", c.EntityA+","+c.EntityB, model.OutcomeSuccess, c.Description)
		}

		for _, event := range events {
			created, err := s.importEvent(ctx, event)
			if err != nil {
				result.addError("import-event", event.ID, err)
				continue
			}
			result.EventsImported++
			if created {
				result.Created++
			} else {
				result.Updated++
			}
		}
	}

	var remoteTasks []remote.ProviderTask
	err = s.retrier.Do(ctx, "list remote tasks", func() error {
		var listErr error
		remoteTasks, listErr = s.tasks.ListTasksDueToday(ctx, handle, day)
		return listErr
	})
	if err != nil {
		result.addError("list-tasks", "", err)
	} else {
		for _, rt := range remoteTasks {
			created, err := s.importRemoteTask(ctx, rt)
			if err != nil {
				result.addError("import-task", rt.ID, err)
				continue
			}
			result.TasksImported++
			if created {
				result.Created++
			} else {
				result.Updated++
			}
		}
	}

	s.audit(ctx, "import", "sync", s.userID, model.OutcomeSuccess,
		fmt.Sprintf("events=%d tasks=%d created=%d updated=%d conflicts=%d errors=%d",
			result.EventsImported, result.TasksImported, result.Created,
			result.Updated, len(result.Conflicts), len(result.Errors)))
	s.logger.Printf("Import complete: %d events, %d tasks (%d created, %d updated, %d errors)",
		result.EventsImported, result.TasksImported, result.Created, result.Updated, len(result.Errors))

	return result
}

// importEvent maps one calendar event onto a local task, keyed by the
// remote event id. Returns true when a new task was created.
func (s *Syncer) importEvent(ctx context.Context, event remote.Event) (bool, error) {
	if !event.End.After(event.Start) {
		return false, fmt.Errorf("event %s has an empty time range", event.ID)
	}

	now := time.Now()
	span := int(event.End.Sub(event.Start) / time.Minute)

	meta, err := s.db.GetSyncMetadataByRemoteEventID(ctx, event.ID)
	if err != nil {
		return false, err
	}

	if meta != nil {
		task, err := s.db.GetTask(ctx, meta.TaskID)
		if err != nil {
			return false, fmt.Errorf("load task %s for event %s: %w", meta.TaskID, event.ID, err)
		}

		task.Title = event.Title
		task.Description = event.Description
		task.EstimatedMinutes = span
		start, end := event.Start, event.End
		task.StartAt, task.EndAt = &start, &end
		task.UpdatedAt = now
		if err := s.db.UpsertTask(ctx, task); err != nil {
			return false, err
		}

		meta.SyncStatus = model.SyncStateSynced
		meta.SyncError = ""
		meta.LastSyncTime = &now
		if err := s.db.UpsertSyncMetadata(ctx, meta); err != nil {
			return false, err
		}
		return false, nil
	}

	start, end := event.Start, event.End
	task := &model.Task{
		ID:               uuid.NewString(),
		Title:            event.Title,
		Description:      event.Description,
		Priority:         model.PriorityMustDo,
		Energy:           model.EnergyMedium,
		EstimatedMinutes: span,
		Status:           model.StatusTodo,
		StartAt:          &start,
		EndAt:            &end,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.db.UpsertTask(ctx, task); err != nil {
		return false, err
	}

	newMeta := &model.SyncMetadata{
		TaskID:        task.ID,
		RemoteEventID: event.ID,
		IsFixed:       true,
		SyncStatus:    model.SyncStateSynced,
		LastSyncTime:  &now,
	}
	if err := s.db.UpsertSyncMetadata(ctx, newMeta); err != nil {
		return false, err
	}
	return true, nil
}

// importRemoteTask maps one provider task onto a local task, keyed by the
// remote task id. Returns true when a new task was created.
func (s *Syncer) importRemoteTask(ctx context.Context, rt remote.ProviderTask) (bool, error) {
	now := time.Now()

	status := model.StatusTodo
	if rt.Completed {
		status = model.StatusDone
	}

	meta, err := s.db.GetSyncMetadataByRemoteTaskID(ctx, rt.ID)
	if err != nil {
		return false, err
	}

	if meta != nil {
		task, err := s.db.GetTask(ctx, meta.TaskID)
		if err != nil {
			return false, fmt.Errorf("load task %s for remote task %s: %w", meta.TaskID, rt.ID, err)
		}

		task.Title = rt.Title
		task.Description = rt.Notes
		task.DueAt = rt.Due
		task.Status = status
		task.UpdatedAt = now
		if err := s.db.UpsertTask(ctx, task); err != nil {
			return false, err
		}

		meta.SyncStatus = model.SyncStateSynced
		meta.SyncError = ""
		meta.LastSyncTime = &now
		if err := s.db.UpsertSyncMetadata(ctx, meta); err != nil {
			return false, err
		}
		return false, nil
	}

	task := &model.Task{
		ID:               uuid.NewString(),
		Title:            rt.Title,
		Description:      rt.Notes,
		Priority:         model.PriorityShouldDo,
		Energy:           model.EnergyMedium,
		EstimatedMinutes: 30,
		Status:           status,
		DueAt:            rt.Due,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.db.UpsertTask(ctx, task); err != nil {
		return false, err
	}

	newMeta := &model.SyncMetadata{
		TaskID:       task.ID,
		RemoteTaskID: rt.ID,
		SyncStatus:   model.SyncStateSynced,
		LastSyncTime: &now,
	}
	if err := s.db.UpsertSyncMetadata(ctx, newMeta); err != nil {
		return false, err
	}
	return true, nil
}
