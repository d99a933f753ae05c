package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dayplanhq/dayplan/internal/dashboard"
	"github.com/dayplanhq/dayplan/internal/syncer"
)

// fakeSyncer counts drain calls.
type fakeSyncer struct {
	mu     sync.Mutex
	drains int
}

func (f *fakeSyncer) Drain(ctx context.Context, now time.Time) (syncer.DrainStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drains++
	return syncer.DrainStats{Processed: 1, Completed: 1}, nil
}

func (f *fakeSyncer) Status(ctx context.Context) syncer.Status {
	return syncer.Status{IsConnected: true, HasTokens: true}
}

func (f *fakeSyncer) drainCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drains
}

// fakeInvalidator records invalidated user ids.
type fakeInvalidator struct {
	mu    sync.Mutex
	users []string
}

func (f *fakeInvalidator) Invalidate(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(f.users, userID)
}

func (f *fakeInvalidator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

// fakeBroadcaster captures broadcast messages.
type fakeBroadcaster struct {
	mu   sync.Mutex
	msgs []dashboard.Message
}

func (f *fakeBroadcaster) Broadcast(msg dashboard.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
}

func (f *fakeBroadcaster) messages() []dashboard.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]dashboard.Message, len(f.msgs))
	copy(out, f.msgs)
	return out
}

// TestNew_RequiresSyncer tests the nil-syncer guard
func TestNew_RequiresSyncer(t *testing.T) {
	if _, err := New(nil, nil, nil, Config{}); err == nil {
		t.Error("New(nil, ...) succeeded, want error")
	}
}

// TestRun_DrainsImmediatelyAndOnTick tests the initial drain plus ticking
func TestRun_DrainsImmediatelyAndOnTick(t *testing.T) {
	fs := &fakeSyncer{}
	d, err := New(fs, nil, nil, Config{DrainInterval: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	if err := d.Run(ctx); err != context.DeadlineExceeded {
		t.Errorf("Run() error = %v, want context.DeadlineExceeded", err)
	}

	// One startup drain plus at least one tick.
	if got := fs.drainCount(); got < 2 {
		t.Errorf("drain count = %d, want >= 2", got)
	}
}

// TestRun_BroadcastsDrainAndStatus tests the dashboard message pair per pass
func TestRun_BroadcastsDrainAndStatus(t *testing.T) {
	fs := &fakeSyncer{}
	fb := &fakeBroadcaster{}
	d, err := New(fs, nil, fb, Config{DrainInterval: time.Minute})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = d.Run(ctx)

	msgs := fb.messages()
	if len(msgs) < 2 {
		t.Fatalf("got %d messages, want at least drain+status", len(msgs))
	}
	if msgs[0].Type != dashboard.MessageTypeQueueDrain {
		t.Errorf("first message type = %q, want %q", msgs[0].Type, dashboard.MessageTypeQueueDrain)
	}
	if msgs[1].Type != dashboard.MessageTypeStatus {
		t.Errorf("second message type = %q, want %q", msgs[1].Type, dashboard.MessageTypeStatus)
	}
}

// TestRun_TokenFileWatch tests that rewriting the token file invalidates
// the cached credential
func TestRun_TokenFileWatch(t *testing.T) {
	dir := t.TempDir()
	tokenFile := filepath.Join(dir, "user-1.token.json")
	if err := os.WriteFile(tokenFile, []byte("{}"), 0600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	fs := &fakeSyncer{}
	inv := &fakeInvalidator{}
	d, err := New(fs, inv, nil, Config{
		UserID:        "user-1",
		DrainInterval: time.Minute,
		TokenFile:     tokenFile,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()

	// Give the watcher a moment to attach, then rewrite the token file.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(tokenFile, []byte(`{"access_token":"new"}`), 0600); err != nil {
		t.Fatalf("rewrite failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for inv.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	if inv.count() == 0 {
		t.Error("token file rewrite did not invalidate the credential")
	}
}

// TestRun_IgnoresOtherFiles tests that changes to sibling files are filtered
func TestRun_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	tokenFile := filepath.Join(dir, "user-1.token.json")
	if err := os.WriteFile(tokenFile, []byte("{}"), 0600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	fs := &fakeSyncer{}
	inv := &fakeInvalidator{}
	d, err := New(fs, inv, nil, Config{
		UserID:        "user-1",
		DrainInterval: time.Minute,
		TokenFile:     tokenFile,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = d.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "other.json"), []byte("x"), 0600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	if inv.count() != 0 {
		t.Errorf("sibling file change invalidated the credential %d times", inv.count())
	}
}
