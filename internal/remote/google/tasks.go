package google

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/tasks/v1"

	"github.com/dayplanhq/dayplan/internal/remote"
)

const (
	statusNeedsAction = "needsAction"
	statusCompleted   = "completed"
)

// Tasks implements remote.TaskAPI against the Google Tasks API.
type Tasks struct {
	tasklistID string
}

// NewTasks creates a task client for the given task list.
// Use "@default" for the user's default list.
func NewTasks(tasklistID string) *Tasks {
	if tasklistID == "" {
		tasklistID = "@default"
	}
	return &Tasks{tasklistID: tasklistID}
}

// ListTasksDueToday implements remote.TaskAPI: tasks due on the given local
// day or overdue relative to it. Completed (hidden) tasks are included so a
// re-import can flip the local status of a task finished on the provider.
func (t *Tasks) ListTasksDueToday(ctx context.Context, h remote.Handle, day time.Time) ([]remote.ProviderTask, error) {
	gh, err := asHandle(h)
	if err != nil {
		return nil, err
	}

	dayEnd := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location()).AddDate(0, 0, 1)

	var out []remote.ProviderTask
	pageToken := ""
	for {
		// Completed tasks are hidden by default; both flags are needed for
		// the provider to return them.
		call := gh.tasks.Tasks.List(t.tasklistID).
			ShowCompleted(true).
			ShowHidden(true).
			DueMax(dayEnd.Format(time.RFC3339)).
			MaxResults(100).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list tasks: %w", err)
		}

		for _, item := range resp.Items {
			if item.Title == "" {
				continue // Google Tasks allows empty placeholder rows
			}
			out = append(out, mapTask(item))
		}

		if resp.NextPageToken == "" {
			return out, nil
		}
		pageToken = resp.NextPageToken
	}
}

// CreateTask implements remote.TaskAPI.
func (t *Tasks) CreateTask(ctx context.Context, h remote.Handle, req remote.TaskRequest) (string, error) {
	gh, err := asHandle(h)
	if err != nil {
		return "", err
	}

	created, err := gh.tasks.Tasks.Insert(t.tasklistID, toGoogleTask(req)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create task: %w", err)
	}
	return created.Id, nil
}

// UpdateTask implements remote.TaskAPI. The stored fields overwrite the
// remote task unconditionally.
func (t *Tasks) UpdateTask(ctx context.Context, h remote.Handle, taskID string, req remote.TaskRequest) error {
	gh, err := asHandle(h)
	if err != nil {
		return err
	}

	_, err = gh.tasks.Tasks.Patch(t.tasklistID, taskID, toGoogleTask(req)).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update task %s: %w", taskID, err)
	}
	return nil
}

// CompleteTask implements remote.TaskAPI. The task is status-flipped, never
// deleted, and completing an already-completed task succeeds.
func (t *Tasks) CompleteTask(ctx context.Context, h remote.Handle, taskID string) error {
	gh, err := asHandle(h)
	if err != nil {
		return err
	}

	patch := &tasks.Task{Status: statusCompleted}
	_, err = gh.tasks.Tasks.Patch(t.tasklistID, taskID, patch).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to complete task %s: %w", taskID, err)
	}
	return nil
}

// DeleteTask implements remote.TaskAPI. Deleting a task that is already
// gone succeeds.
func (t *Tasks) DeleteTask(ctx context.Context, h remote.Handle, taskID string) error {
	gh, err := asHandle(h)
	if err != nil {
		return err
	}

	err = gh.tasks.Tasks.Delete(t.tasklistID, taskID).Context(ctx).Do()
	if isGone(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete task %s: %w", taskID, err)
	}
	return nil
}

func toGoogleTask(req remote.TaskRequest) *tasks.Task {
	task := &tasks.Task{
		Title:  req.Title,
		Notes:  req.Notes,
		Status: statusNeedsAction,
	}
	if req.Due != nil {
		task.Due = req.Due.Format(time.RFC3339)
	}
	return task
}

func mapTask(item *tasks.Task) remote.ProviderTask {
	out := remote.ProviderTask{
		ID:        item.Id,
		Title:     item.Title,
		Notes:     item.Notes,
		Completed: item.Status == statusCompleted,
	}
	if item.Due != "" {
		if due, err := time.Parse(time.RFC3339, item.Due); err == nil {
			out.Due = &due
		}
	}
	return out
}
