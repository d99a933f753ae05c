package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dayplanhq/dayplan/internal/model"
	"github.com/dayplanhq/dayplan/internal/remote"
)

// TestStatus_NeverConnected tests the pristine state
func TestStatus_NeverConnected(t *testing.T) {
	f := newFixture(t)
	f.toks.hasTokens = false
	f.toks.credentialErr = remote.ErrNoTokens

	st := f.sync.Status(context.Background())

	if st.HasTokens {
		t.Error("HasTokens = true, want false")
	}
	if st.IsConnected {
		t.Error("IsConnected = true, want false")
	}
	if st.ConnectionError == "" {
		t.Error("ConnectionError empty, want the credential failure")
	}
	if st.LastSyncTime != nil {
		t.Errorf("LastSyncTime = %v, want nil", st.LastSyncTime)
	}
	if st.PendingOperations != 0 || len(st.FailedOperations) != 0 {
		t.Errorf("backlog = %d/%d, want empty", st.PendingOperations, len(st.FailedOperations))
	}
}

// TestStatus_BrokenConnection tests tokens present but unusable
func TestStatus_BrokenConnection(t *testing.T) {
	f := newFixture(t)
	f.toks.credentialErr = remote.ErrRefreshFailed

	st := f.sync.Status(context.Background())

	if !st.HasTokens {
		t.Error("HasTokens = false, want true")
	}
	if st.IsConnected {
		t.Error("IsConnected = true for broken connection")
	}
	if st.ConnectionError == "" {
		t.Error("ConnectionError empty")
	}
}

// TestStatus_Healthy tests the connected path with activity recorded
func TestStatus_Healthy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addTask(t, "t1")

	if err := f.sync.ExportNewTask(ctx, "t1"); err != nil {
		t.Fatalf("ExportNewTask() failed: %v", err)
	}

	st := f.sync.Status(ctx)
	if !st.IsConnected || !st.HasTokens {
		t.Errorf("status = %+v, want connected", st)
	}
	if st.LastSyncTime == nil {
		t.Error("LastSyncTime nil after audited export")
	} else if time.Since(*st.LastSyncTime) > time.Minute {
		t.Errorf("LastSyncTime = %v, want recent", st.LastSyncTime)
	}
}

// TestStatus_Backlog tests pending and failed counting
func TestStatus_Backlog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addTask(t, "t1")

	f.tasks.createErr = errors.New("network down")
	if err := f.sync.ExportNewTask(ctx, "t1"); err == nil {
		t.Fatal("export unexpectedly succeeded")
	}

	// Record a failed metadata row separately.
	f.addTask(t, "t2")
	if err := f.db.UpsertSyncMetadata(ctx, &model.SyncMetadata{
		TaskID: "t2", RemoteTaskID: "r2",
		SyncStatus: model.SyncStateFailed, SyncError: "boom", RetryCount: 3,
	}); err != nil {
		t.Fatalf("UpsertSyncMetadata() failed: %v", err)
	}

	st := f.sync.Status(ctx)
	if st.PendingOperations != 1 {
		t.Errorf("PendingOperations = %d, want 1", st.PendingOperations)
	}
	if len(st.FailedOperations) != 1 {
		t.Fatalf("FailedOperations = %+v, want 1 entry", st.FailedOperations)
	}
	failed := st.FailedOperations[0]
	if failed.TaskID != "t2" || failed.Error != "boom" || failed.RetryCount != 3 {
		t.Errorf("failed operation = %+v", failed)
	}
}
