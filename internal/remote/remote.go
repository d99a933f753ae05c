// Package remote defines the contracts the sync engine requires from the
// external provider: a token manager, a calendar API, and a task API.
//
// The sync engine only depends on these interfaces; the Google
// implementation lives in the google subpackage, and tests substitute
// in-memory fakes. All calls are blocking-I/O-shaped and take a context;
// per-attempt timeouts are the transport's responsibility.
package remote

import (
	"context"
	"errors"
	"time"
)

// Common errors returned by remote collaborators.
//
// These errors can be checked using errors.Is() for proper error handling:
//
//	if errors.Is(err, remote.ErrNoTokens) {
//	    // User has never connected a provider account
//	}
var (
	// ErrNoTokens is returned by the token manager when the user has no
	// stored credentials at all.
	ErrNoTokens = errors.New("no tokens stored")

	// ErrRefreshFailed is returned when stored credentials exist but
	// could not be refreshed into a usable handle.
	ErrRefreshFailed = errors.New("token refresh failed")
)

// TokenManager supplies a live, auto-refreshing credential handle.
// It is opaque beyond this contract.
type TokenManager interface {
	// Credential returns a handle usable for remote calls, refreshing
	// stored tokens as needed. Returns ErrNoTokens when the user never
	// connected, or ErrRefreshFailed (possibly wrapped) when stored
	// credentials are unusable.
	Credential(ctx context.Context, userID string) (Handle, error)

	// HasTokens reports whether any credentials are stored for the user,
	// even if they are currently unusable. This distinguishes "never
	// connected" from "broken connection".
	HasTokens(userID string) bool
}

// Handle is an opaque credential usable for remote calls.
type Handle interface {
	// UserID identifies the user the handle was issued for.
	UserID() string
}

// Event is a provider calendar event.
type Event struct {
	ID          string
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Attendees   []string
}

// EventRequest carries the fields the sync engine writes to an event.
// Zero-valued optional fields are omitted from updates.
type EventRequest struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
}

// CalendarAPI lists and mutates timed events.
type CalendarAPI interface {
	// ListEventsForDay returns all timed events overlapping the given
	// local day.
	ListEventsForDay(ctx context.Context, h Handle, day time.Time) ([]Event, error)

	// CreateEvent creates an event and returns its provider id.
	CreateEvent(ctx context.Context, h Handle, req EventRequest) (string, error)

	// UpdateEvent overwrites the stored fields of an existing event.
	UpdateEvent(ctx context.Context, h Handle, eventID string, req EventRequest) error

	// DeleteEvent removes an event. Deleting an already-deleted event
	// is not an error.
	DeleteEvent(ctx context.Context, h Handle, eventID string) error
}

// ProviderTask is a provider task-list item.
type ProviderTask struct {
	ID        string
	Title     string
	Notes     string
	Due       *time.Time
	Completed bool
}

// TaskRequest carries the fields the sync engine writes to a task.
type TaskRequest struct {
	Title string
	Notes string
	Due   *time.Time
}

// TaskAPI lists and mutates provider tasks.
type TaskAPI interface {
	// ListTasksDueToday returns tasks due on the given local day or
	// overdue relative to it, including completed ones so an import can
	// flip the local status of tasks finished on the provider.
	ListTasksDueToday(ctx context.Context, h Handle, day time.Time) ([]ProviderTask, error)

	// CreateTask creates a task and returns its provider id.
	CreateTask(ctx context.Context, h Handle, req TaskRequest) (string, error)

	// UpdateTask overwrites the stored fields of an existing task.
	UpdateTask(ctx context.Context, h Handle, taskID string, req TaskRequest) error

	// CompleteTask marks a task complete. Completing an already-completed
	// task must succeed without error; tasks are never deleted on
	// completion so the change stays reversible on the provider side.
	CompleteTask(ctx context.Context, h Handle, taskID string) error

	// DeleteTask removes a task. Deleting an already-deleted task is not
	// an error.
	DeleteTask(ctx context.Context, h Handle, taskID string) error
}
