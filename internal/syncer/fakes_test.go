package syncer

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/dayplanhq/dayplan/internal/model"
	"github.com/dayplanhq/dayplan/internal/remote"
	"github.com/dayplanhq/dayplan/internal/store"
)

// fakeHandle is a trivial credential handle for tests.
type fakeHandle struct{ userID string }

func (h fakeHandle) UserID() string { return h.userID }

// fakeTokens is an in-memory token manager with injectable failures.
type fakeTokens struct {
	hasTokens     bool
	credentialErr error
}

func (f *fakeTokens) Credential(ctx context.Context, userID string) (remote.Handle, error) {
	if f.credentialErr != nil {
		return nil, f.credentialErr
	}
	return fakeHandle{userID: userID}, nil
}

func (f *fakeTokens) HasTokens(userID string) bool { return f.hasTokens }

// fakeCalendar is an in-memory calendar with per-call error injection and
// call counting.
type fakeCalendar struct {
	events  map[string]remote.EventRequest
	listing []remote.Event
	nextID  int

	listErr   error
	createErr error
	updateErr error
	deleteErr error

	// failCreates makes the first N creates fail with createErr, then
	// succeed. Zero means createErr (when set) always applies.
	failCreates int

	createCalls int
	updateCalls int
	deleteCalls int
}

func newFakeCalendar() *fakeCalendar {
	return &fakeCalendar{events: make(map[string]remote.EventRequest)}
}

func (f *fakeCalendar) ListEventsForDay(ctx context.Context, h remote.Handle, day time.Time) ([]remote.Event, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listing, nil
}

func (f *fakeCalendar) CreateEvent(ctx context.Context, h remote.Handle, req remote.EventRequest) (string, error) {
	f.createCalls++
	if f.createErr != nil && (f.failCreates == 0 || f.createCalls <= f.failCreates) {
		return "", f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("event-%d", f.nextID)
	f.events[id] = req
	return id, nil
}

func (f *fakeCalendar) UpdateEvent(ctx context.Context, h remote.Handle, eventID string, req remote.EventRequest) error {
	f.updateCalls++
	if f.updateErr != nil {
		return f.updateErr
	}
	f.events[eventID] = req
	return nil
}

func (f *fakeCalendar) DeleteEvent(ctx context.Context, h remote.Handle, eventID string) error {
	f.deleteCalls++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.events, eventID)
	return nil
}

// fakeTaskAPI is an in-memory provider task list.
type fakeTaskAPI struct {
	tasks     map[string]remote.TaskRequest
	completed map[string]bool
	listing   []remote.ProviderTask
	nextID    int

	listErr     error
	createErr   error
	updateErr   error
	completeErr error
	deleteErr   error

	createCalls   int
	completeCalls int
	deleteCalls   int
}

func newFakeTaskAPI() *fakeTaskAPI {
	return &fakeTaskAPI{
		tasks:     make(map[string]remote.TaskRequest),
		completed: make(map[string]bool),
	}
}

func (f *fakeTaskAPI) ListTasksDueToday(ctx context.Context, h remote.Handle, day time.Time) ([]remote.ProviderTask, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listing, nil
}

func (f *fakeTaskAPI) CreateTask(ctx context.Context, h remote.Handle, req remote.TaskRequest) (string, error) {
	f.createCalls++
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("rtask-%d", f.nextID)
	f.tasks[id] = req
	return id, nil
}

func (f *fakeTaskAPI) UpdateTask(ctx context.Context, h remote.Handle, taskID string, req remote.TaskRequest) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.tasks[taskID] = req
	return nil
}

func (f *fakeTaskAPI) CompleteTask(ctx context.Context, h remote.Handle, taskID string) error {
	f.completeCalls++
	if f.completeErr != nil {
		return f.completeErr
	}
	f.completed[taskID] = true
	return nil
}

func (f *fakeTaskAPI) DeleteTask(ctx context.Context, h remote.Handle, taskID string) error {
	f.deleteCalls++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.tasks, taskID)
	return nil
}

// fixture bundles a syncer with its fakes and store.
type fixture struct {
	db    *store.DB
	sync  *Syncer
	toks  *fakeTokens
	cal   *fakeCalendar
	tasks *fakeTaskAPI
}

// testRetry is a fast retry policy so failure paths don't sleep.
var testRetry = RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	toks := &fakeTokens{hasTokens: true}
	cal := newFakeCalendar()
	tasks := newFakeTaskAPI()
	retry := testRetry
	sync := New(db, toks, cal, tasks, "user-1", Options{Retry: &retry})

	return &fixture{db: db, sync: sync, toks: toks, cal: cal, tasks: tasks}
}

// addTask stores a default local task under the given id.
func (f *fixture) addTask(t *testing.T, id string) *model.Task {
	t.Helper()
	task := &model.Task{ID: id, Title: "Task " + id}
	task.SetDefaults()
	if err := f.db.UpsertTask(context.Background(), task); err != nil {
		t.Fatalf("UpsertTask(%s) failed: %v", id, err)
	}
	return task
}
