// Package model provides the domain types shared by the store, the sync
// engine, and the scheduler.
package model

import (
	"fmt"
	"time"
)

// Priority describes how important a task is to the user's day.
type Priority string

const (
	// PriorityMustDo marks work that has to happen today.
	PriorityMustDo Priority = "must-do"
	// PriorityShouldDo marks work that ought to happen today.
	PriorityShouldDo Priority = "should-do"
	// PriorityNiceToHave marks optional work.
	PriorityNiceToHave Priority = "nice-to-have"
)

// rank orders priorities for scheduling: higher is more important.
func (p Priority) rank() int {
	switch p {
	case PriorityMustDo:
		return 3
	case PriorityShouldDo:
		return 2
	case PriorityNiceToHave:
		return 1
	default:
		return 0
	}
}

// MoreImportant reports whether p outranks other.
func (p Priority) MoreImportant(other Priority) bool {
	return p.rank() > other.rank()
}

// Valid reports whether p is one of the known priority values.
func (p Priority) Valid() bool {
	return p.rank() > 0
}

// Energy describes how much focus a task demands.
type Energy string

const (
	// EnergyHigh is deep, demanding work.
	EnergyHigh Energy = "high"
	// EnergyMedium is ordinary work.
	EnergyMedium Energy = "medium"
	// EnergyLow is shallow work like email or filing.
	EnergyLow Energy = "low"
)

func (e Energy) rank() int {
	switch e {
	case EnergyHigh:
		return 3
	case EnergyMedium:
		return 2
	case EnergyLow:
		return 1
	default:
		return 0
	}
}

// Higher reports whether e demands more focus than other.
func (e Energy) Higher(other Energy) bool {
	return e.rank() > other.rank()
}

// Status is the lifecycle state of a task.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
	StatusDropped    Status = "dropped"
)

// Valid reports whether s is one of the known status values.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone, StatusDropped:
		return true
	}
	return false
}

// Task is an atomic unit of work owned by the local store.
//
// Tasks are created by user action or by calendar/task import, mutated by
// edits and completion, and never owned by the sync engine itself. Tasks
// derived from calendar events carry a concrete StartAt/EndAt slot and are
// fixed: the scheduler places them verbatim and the exporter refuses to
// delete them locally.
type Task struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Domain      string `json:"domain,omitempty"`

	Priority         Priority `json:"priority"`
	Energy           Energy   `json:"energy,omitempty"`
	EstimatedMinutes int      `json:"estimated_minutes"`
	Status           Status   `json:"status"`

	DueAt *time.Time `json:"due_at,omitempty"`

	// StartAt/EndAt hold the concrete slot for calendar-derived tasks.
	// Flexible tasks leave both nil and are placed by the scheduler.
	StartAt *time.Time `json:"start_at,omitempty"`
	EndAt   *time.Time `json:"end_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the task's field values.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(t.Title))
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("unknown priority %q", t.Priority)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("unknown status %q", t.Status)
	}
	if t.EstimatedMinutes < 0 {
		return fmt.Errorf("estimated minutes must be non-negative (got %d)", t.EstimatedMinutes)
	}
	if (t.StartAt == nil) != (t.EndAt == nil) {
		return fmt.Errorf("start and end must be set together")
	}
	if t.StartAt != nil && !t.StartAt.Before(*t.EndAt) {
		return fmt.Errorf("start must precede end")
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (t *Task) SetDefaults() {
	if t.Priority == "" {
		t.Priority = PriorityShouldDo
	}
	if t.Energy == "" {
		t.Energy = EnergyMedium
	}
	if t.Status == "" {
		t.Status = StatusTodo
	}
	if t.EstimatedMinutes == 0 {
		t.EstimatedMinutes = 30
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now()
	}
}

// HasSlot reports whether the task carries a concrete start/end pair.
func (t *Task) HasSlot() bool {
	return t.StartAt != nil && t.EndAt != nil
}

// ExportWindow returns the time block the exporter writes to the remote
// calendar: the task's own slot when it has one, otherwise a block starting
// at 09:00 on the due date (or today when no due date is set) spanning the
// estimated duration.
func (t *Task) ExportWindow() (time.Time, time.Time) {
	if t.HasSlot() {
		return *t.StartAt, *t.EndAt
	}

	base := time.Now()
	if t.DueAt != nil {
		base = *t.DueAt
	}
	start := time.Date(base.Year(), base.Month(), base.Day(), 9, 0, 0, 0, base.Location())

	minutes := t.EstimatedMinutes
	if minutes <= 0 {
		minutes = 30
	}
	return start, start.Add(time.Duration(minutes) * time.Minute)
}

// SyncState is the sync outcome recorded on a task's metadata.
type SyncState string

const (
	// SyncStateSynced means the last export/import round-trip succeeded.
	SyncStateSynced SyncState = "synced"
	// SyncStateFailed means the last attempt left remote state incomplete.
	SyncStateFailed SyncState = "failed"
)

// SyncMetadata is the per-task sync record, created lazily on the first
// export or import. Absence of a row means the task has never been synced.
// It is mutated exclusively by the sync engine and deleted only with its
// task.
type SyncMetadata struct {
	TaskID        string     `json:"task_id"`
	RemoteTaskID  string     `json:"remote_task_id,omitempty"`
	RemoteEventID string     `json:"remote_event_id,omitempty"`
	IsFixed       bool       `json:"is_fixed"`
	SyncStatus    SyncState  `json:"sync_status"`
	SyncError     string     `json:"sync_error,omitempty"`
	RetryCount    int        `json:"retry_count"`
	LastSyncTime  *time.Time `json:"last_sync_time,omitempty"`
}

// Validate enforces the metadata invariant: once a sync status is set,
// at least one remote identifier must be present.
func (m *SyncMetadata) Validate() error {
	if m.TaskID == "" {
		return fmt.Errorf("task id is required")
	}
	if m.SyncStatus != "" && m.RemoteTaskID == "" && m.RemoteEventID == "" {
		return fmt.Errorf("metadata for task %s has a sync status but no remote id", m.TaskID)
	}
	return nil
}

// Operation names a deferred or audited sync operation.
type Operation string

const (
	OpCreate   Operation = "create"
	OpUpdate   Operation = "update"
	OpComplete Operation = "complete"
	OpDelete   Operation = "delete"
)

// QueueState is the lifecycle state of a retry queue entry.
type QueueState string

const (
	QueuePending    QueueState = "pending"
	QueueProcessing QueueState = "processing"
	QueueCompleted  QueueState = "completed"
	QueueFailed     QueueState = "failed"
)

// Terminal reports whether the state will never transition again.
func (s QueueState) Terminal() bool {
	return s == QueueCompleted || s == QueueFailed
}

// QueueEntry is one durable unit of deferred sync work. Entries are created
// when an export fails retryably and are driven through their state machine
// only by the queue drain worker.
type QueueEntry struct {
	ID          int64      `json:"id"`
	Operation   Operation  `json:"operation"`
	EntityType  string     `json:"entity_type"`
	EntityID    string     `json:"entity_id"`
	Payload     []byte     `json:"payload,omitempty"`
	Status      QueueState `json:"status"`
	RetryCount  int        `json:"retry_count"`
	NextRetryAt time.Time  `json:"next_retry_at"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// AuditLogEntry is one append-only record of a sync engine operation.
// Entries are write-once and never mutated.
type AuditLogEntry struct {
	ID         int64     `json:"id"`
	Operation  string    `json:"operation"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Outcome    string    `json:"outcome"`
	Details    string    `json:"details,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Audit outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// Conflict is a detected overlap between two scheduled items. Conflicts are
// ephemeral: produced and logged per import or scheduling run, never stored.
type Conflict struct {
	Type        string `json:"type"`
	EntityA     string `json:"entity_a"`
	EntityB     string `json:"entity_b"`
	Description string `json:"description"`
}

// TimeBlock is one scheduling decision: a task occupying [Start, End).
// Blocks are ephemeral per scheduling run.
type TimeBlock struct {
	TaskID string    `json:"task_id"`
	Title  string    `json:"title"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Fixed  bool      `json:"fixed"`
}

// Overlaps reports whether two blocks overlap under half-open semantics:
// blocks that merely touch do not overlap.
func (b TimeBlock) Overlaps(other TimeBlock) bool {
	return b.Start.Before(other.End) && other.Start.Before(b.End)
}

// EnergyProfile maps hours of the day to the user's expected energy level.
type EnergyProfile struct {
	// PeakHours are hours (0-23) where demanding work lands best.
	PeakHours []int `json:"peak_hours"`
	// LowHours are hours where only shallow work is realistic.
	LowHours []int `json:"low_hours"`
}

// IsPeak reports whether hour is one of the profile's peak hours.
func (p EnergyProfile) IsPeak(hour int) bool {
	return containsHour(p.PeakHours, hour)
}

// IsLow reports whether hour is one of the profile's low hours.
func (p EnergyProfile) IsLow(hour int) bool {
	return containsHour(p.LowHours, hour)
}

func containsHour(hours []int, hour int) bool {
	for _, h := range hours {
		if h == hour {
			return true
		}
	}
	return false
}
