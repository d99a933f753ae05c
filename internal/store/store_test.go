package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/dayplanhq/dayplan/internal/model"
)

// testDB opens an initialized database in a temp dir
func testDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return db
}

func testTask(id string) *model.Task {
	task := &model.Task{ID: id, Title: "Task " + id}
	task.SetDefaults()
	return task
}

// TestInitSchema_Tables tests that all tables exist after initialization
func TestInitSchema_Tables(t *testing.T) {
	db := testDB(t)

	tables := []string{"tasks", "sync_metadata", "retry_queue", "audit_log"}
	for _, table := range tables {
		var count int
		query := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`
		if err := db.RawDB().QueryRow(query, table).Scan(&count); err != nil {
			t.Fatalf("Failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Table %s does not exist", table)
		}
	}
}

// TestInitSchema_Idempotent tests that schema initialization can run twice
func TestInitSchema_Idempotent(t *testing.T) {
	db := testDB(t)
	if err := db.InitSchema(); err != nil {
		t.Errorf("Second InitSchema() failed: %v", err)
	}
}

// TestUpsertTask_RoundTrip tests insert then read back
func TestUpsertTask_RoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	due := time.Date(2026, 3, 10, 17, 0, 0, 0, time.UTC)
	task := testTask("t1")
	task.Description = "details"
	task.Priority = model.PriorityMustDo
	task.Energy = model.EnergyHigh
	task.EstimatedMinutes = 90
	task.DueAt = &due

	if err := db.UpsertTask(ctx, task); err != nil {
		t.Fatalf("UpsertTask() failed: %v", err)
	}

	got, err := db.GetTask(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTask() failed: %v", err)
	}
	if got.Title != task.Title || got.Description != task.Description {
		t.Errorf("got %q/%q, want %q/%q", got.Title, got.Description, task.Title, task.Description)
	}
	if got.Priority != model.PriorityMustDo || got.Energy != model.EnergyHigh {
		t.Errorf("priority/energy = %q/%q", got.Priority, got.Energy)
	}
	if got.DueAt == nil || !got.DueAt.Equal(due) {
		t.Errorf("DueAt = %v, want %v", got.DueAt, due)
	}
}

// TestUpsertTask_Update tests that upserting twice overwrites
func TestUpsertTask_Update(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	task := testTask("t1")
	if err := db.UpsertTask(ctx, task); err != nil {
		t.Fatalf("UpsertTask() failed: %v", err)
	}

	task.Title = "renamed"
	task.Status = model.StatusDone
	if err := db.UpsertTask(ctx, task); err != nil {
		t.Fatalf("second UpsertTask() failed: %v", err)
	}

	got, err := db.GetTask(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTask() failed: %v", err)
	}
	if got.Title != "renamed" || got.Status != model.StatusDone {
		t.Errorf("got %q/%q after update", got.Title, got.Status)
	}
}

// TestGetTask_NotFound tests the sql.ErrNoRows passthrough
func TestGetTask_NotFound(t *testing.T) {
	db := testDB(t)

	_, err := db.GetTask(context.Background(), "missing")
	if err != sql.ErrNoRows {
		t.Errorf("GetTask() error = %v, want sql.ErrNoRows", err)
	}
}

// TestDeleteTask tests deletion and its idempotency
func TestDeleteTask(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.UpsertTask(ctx, testTask("t1")); err != nil {
		t.Fatalf("UpsertTask() failed: %v", err)
	}
	if err := db.DeleteTask(ctx, "t1"); err != nil {
		t.Fatalf("DeleteTask() failed: %v", err)
	}
	if _, err := db.GetTask(ctx, "t1"); err != sql.ErrNoRows {
		t.Errorf("task still present after delete")
	}

	// Deleting again is not an error.
	if err := db.DeleteTask(ctx, "t1"); err != nil {
		t.Errorf("second DeleteTask() failed: %v", err)
	}
}

// TestDeleteTask_CascadesMetadata tests the foreign key cascade
func TestDeleteTask_CascadesMetadata(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.UpsertTask(ctx, testTask("t1")); err != nil {
		t.Fatalf("UpsertTask() failed: %v", err)
	}
	meta := &model.SyncMetadata{TaskID: "t1", RemoteTaskID: "r1", SyncStatus: model.SyncStateSynced}
	if err := db.UpsertSyncMetadata(ctx, meta); err != nil {
		t.Fatalf("UpsertSyncMetadata() failed: %v", err)
	}

	if err := db.DeleteTask(ctx, "t1"); err != nil {
		t.Fatalf("DeleteTask() failed: %v", err)
	}

	got, err := db.GetSyncMetadata(ctx, "t1")
	if err != nil {
		t.Fatalf("GetSyncMetadata() failed: %v", err)
	}
	if got != nil {
		t.Error("metadata survived task deletion")
	}
}

// TestListTasks_Filters tests status and priority filtering
func TestListTasks_Filters(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	a := testTask("a")
	b := testTask("b")
	b.Status = model.StatusDone
	c := testTask("c")
	c.Priority = model.PriorityMustDo
	for _, task := range []*model.Task{a, b, c} {
		if err := db.UpsertTask(ctx, task); err != nil {
			t.Fatalf("UpsertTask(%s) failed: %v", task.ID, err)
		}
	}

	todo, err := db.ListTasks(ctx, ListTasksFilter{Status: model.StatusTodo})
	if err != nil {
		t.Fatalf("ListTasks() failed: %v", err)
	}
	if len(todo) != 2 {
		t.Errorf("todo count = %d, want 2", len(todo))
	}

	mustDo, err := db.ListTasks(ctx, ListTasksFilter{Priority: model.PriorityMustDo})
	if err != nil {
		t.Fatalf("ListTasks() failed: %v", err)
	}
	if len(mustDo) != 1 || mustDo[0].ID != "c" {
		t.Errorf("must-do filter returned %d tasks", len(mustDo))
	}

	all, err := db.ListTasks(ctx, ListTasksFilter{})
	if err != nil {
		t.Fatalf("ListTasks() failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("unfiltered count = %d, want 3", len(all))
	}
}

// TestSyncMetadata_RemoteIDLookups tests lookups by remote task and event id
func TestSyncMetadata_RemoteIDLookups(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.UpsertTask(ctx, testTask("t1")); err != nil {
		t.Fatalf("UpsertTask() failed: %v", err)
	}
	now := time.Now().UTC().Truncate(time.Second)
	meta := &model.SyncMetadata{
		TaskID:        "t1",
		RemoteTaskID:  "rt1",
		RemoteEventID: "re1",
		IsFixed:       true,
		SyncStatus:    model.SyncStateSynced,
		LastSyncTime:  &now,
	}
	if err := db.UpsertSyncMetadata(ctx, meta); err != nil {
		t.Fatalf("UpsertSyncMetadata() failed: %v", err)
	}

	byTask, err := db.GetSyncMetadataByRemoteTaskID(ctx, "rt1")
	if err != nil {
		t.Fatalf("GetSyncMetadataByRemoteTaskID() failed: %v", err)
	}
	if byTask == nil || byTask.TaskID != "t1" || !byTask.IsFixed {
		t.Errorf("lookup by remote task id returned %+v", byTask)
	}

	byEvent, err := db.GetSyncMetadataByRemoteEventID(ctx, "re1")
	if err != nil {
		t.Fatalf("GetSyncMetadataByRemoteEventID() failed: %v", err)
	}
	if byEvent == nil || byEvent.TaskID != "t1" {
		t.Errorf("lookup by remote event id returned %+v", byEvent)
	}

	missing, err := db.GetSyncMetadataByRemoteTaskID(ctx, "nope")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown remote id, got %+v", missing)
	}
}

// TestListFailedSyncMetadata tests the failed-state filter
func TestListFailedSyncMetadata(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for _, id := range []string{"ok", "bad"} {
		if err := db.UpsertTask(ctx, testTask(id)); err != nil {
			t.Fatalf("UpsertTask() failed: %v", err)
		}
	}
	if err := db.UpsertSyncMetadata(ctx, &model.SyncMetadata{
		TaskID: "ok", RemoteTaskID: "r-ok", SyncStatus: model.SyncStateSynced,
	}); err != nil {
		t.Fatalf("UpsertSyncMetadata() failed: %v", err)
	}
	if err := db.UpsertSyncMetadata(ctx, &model.SyncMetadata{
		TaskID: "bad", RemoteTaskID: "r-bad", SyncStatus: model.SyncStateFailed,
		SyncError: "boom", RetryCount: 2,
	}); err != nil {
		t.Fatalf("UpsertSyncMetadata() failed: %v", err)
	}

	failed, err := db.ListFailedSyncMetadata(ctx)
	if err != nil {
		t.Fatalf("ListFailedSyncMetadata() failed: %v", err)
	}
	if len(failed) != 1 || failed[0].TaskID != "bad" {
		t.Fatalf("failed list = %+v, want single entry for 'bad'", failed)
	}
	if failed[0].SyncError != "boom" || failed[0].RetryCount != 2 {
		t.Errorf("failed entry = %+v", failed[0])
	}
}

// TestQueue_StateRoundTrip tests insert, due lookup, and update
func TestQueue_StateRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	entry := &model.QueueEntry{
		Operation:   model.OpCreate,
		EntityType:  "task",
		EntityID:    "t1",
		Status:      model.QueuePending,
		NextRetryAt: now.Add(-time.Minute),
		LastError:   "network timeout",
	}
	id, err := db.InsertQueueEntry(ctx, entry)
	if err != nil {
		t.Fatalf("InsertQueueEntry() failed: %v", err)
	}
	if id == 0 {
		t.Fatal("InsertQueueEntry() returned id 0")
	}

	due, err := db.DueQueueEntries(ctx, now)
	if err != nil {
		t.Fatalf("DueQueueEntries() failed: %v", err)
	}
	if len(due) != 1 || due[0].ID != id {
		t.Fatalf("due entries = %+v, want the inserted entry", due)
	}
	if due[0].Operation != model.OpCreate || due[0].LastError != "network timeout" {
		t.Errorf("entry round trip lost fields: %+v", due[0])
	}

	got := due[0]
	got.Status = model.QueueCompleted
	if err := db.UpdateQueueEntry(ctx, got); err != nil {
		t.Fatalf("UpdateQueueEntry() failed: %v", err)
	}

	due, err = db.DueQueueEntries(ctx, now)
	if err != nil {
		t.Fatalf("DueQueueEntries() failed: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("completed entry still listed as due")
	}
}

// TestDueQueueEntries_FutureNotDue tests that future retries are excluded
func TestDueQueueEntries_FutureNotDue(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := db.InsertQueueEntry(ctx, &model.QueueEntry{
		Operation:   model.OpUpdate,
		EntityType:  "task",
		EntityID:    "t1",
		Status:      model.QueuePending,
		NextRetryAt: now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("InsertQueueEntry() failed: %v", err)
	}

	due, err := db.DueQueueEntries(ctx, now)
	if err != nil {
		t.Fatalf("DueQueueEntries() failed: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("entry with future retry time reported due")
	}
}

// TestRequeueProcessingEntries tests that stranded processing entries are
// swept back to pending while other states are untouched
func TestRequeueProcessingEntries(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	states := []model.QueueState{model.QueueProcessing, model.QueueProcessing, model.QueuePending, model.QueueFailed}
	for i, status := range states {
		_, err := db.InsertQueueEntry(ctx, &model.QueueEntry{
			Operation:   model.OpCreate,
			EntityType:  "task",
			EntityID:    string(rune('a' + i)),
			Status:      status,
			NextRetryAt: now.Add(-time.Minute),
		})
		if err != nil {
			t.Fatalf("InsertQueueEntry() failed: %v", err)
		}
	}

	n, err := db.RequeueProcessingEntries(ctx)
	if err != nil {
		t.Fatalf("RequeueProcessingEntries() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("requeued %d entries, want 2", n)
	}

	pending, _ := db.CountQueueEntries(ctx, model.QueuePending)
	if pending != 3 {
		t.Errorf("pending count = %d, want 3", pending)
	}
	processing, _ := db.CountQueueEntries(ctx, model.QueueProcessing)
	if processing != 0 {
		t.Errorf("processing count = %d, want 0", processing)
	}
	failed, _ := db.CountQueueEntries(ctx, model.QueueFailed)
	if failed != 1 {
		t.Errorf("failed count = %d, want 1", failed)
	}
}

// TestCountQueueEntries tests the per-status count
func TestCountQueueEntries(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, status := range []model.QueueState{model.QueuePending, model.QueuePending, model.QueueFailed} {
		_, err := db.InsertQueueEntry(ctx, &model.QueueEntry{
			Operation:   model.OpCreate,
			EntityType:  "task",
			EntityID:    string(rune('a' + i)),
			Status:      status,
			NextRetryAt: now,
		})
		if err != nil {
			t.Fatalf("InsertQueueEntry() failed: %v", err)
		}
	}

	pending, err := db.CountQueueEntries(ctx, model.QueuePending)
	if err != nil {
		t.Fatalf("CountQueueEntries() failed: %v", err)
	}
	if pending != 2 {
		t.Errorf("pending count = %d, want 2", pending)
	}
}

// TestPendingQueueEntryForEntity tests the enqueue dedupe lookup
func TestPendingQueueEntryForEntity(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	id, err := db.InsertQueueEntry(ctx, &model.QueueEntry{
		Operation:   model.OpCreate,
		EntityType:  "task",
		EntityID:    "t1",
		Status:      model.QueuePending,
		NextRetryAt: now,
	})
	if err != nil {
		t.Fatalf("InsertQueueEntry() failed: %v", err)
	}

	got, err := db.PendingQueueEntryForEntity(ctx, model.OpCreate, "task", "t1")
	if err != nil {
		t.Fatalf("PendingQueueEntryForEntity() failed: %v", err)
	}
	if got == nil || got.ID != id {
		t.Errorf("lookup = %+v, want entry %d", got, id)
	}

	// Different operation on the same entity does not match.
	other, err := db.PendingQueueEntryForEntity(ctx, model.OpDelete, "task", "t1")
	if err != nil {
		t.Fatalf("PendingQueueEntryForEntity() failed: %v", err)
	}
	if other != nil {
		t.Errorf("unexpected match for different operation: %+v", other)
	}
}

// TestAudit_AppendAndLatest tests the append-only audit log
func TestAudit_AppendAndLatest(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	latest, err := db.LatestAuditTime(ctx)
	if err != nil {
		t.Fatalf("LatestAuditTime() failed: %v", err)
	}
	if latest != nil {
		t.Errorf("LatestAuditTime() = %v on empty log, want nil", latest)
	}

	for _, outcome := range []string{model.OutcomeSuccess, model.OutcomeFailure} {
		err := db.AppendAudit(ctx, &model.AuditLogEntry{
			Operation:  "create",
			EntityType: "task",
			EntityID:   "t1",
			Outcome:    outcome,
		})
		if err != nil {
			t.Fatalf("AppendAudit() failed: %v", err)
		}
	}

	latest, err = db.LatestAuditTime(ctx)
	if err != nil {
		t.Fatalf("LatestAuditTime() failed: %v", err)
	}
	if latest == nil {
		t.Fatal("LatestAuditTime() = nil after appends")
	}

	recent, err := db.RecentAudit(ctx, 10)
	if err != nil {
		t.Fatalf("RecentAudit() failed: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("RecentAudit() returned %d entries, want 2", len(recent))
	}
}
