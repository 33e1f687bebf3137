package reminder

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"dayplan/backend"
	"dayplan/internal/localstore"
	"dayplan/internal/notification"
)

type staticTasks struct {
	tasks []backend.Task
}

func (s *staticTasks) Tasks() []backend.Task { return s.tasks }

type captureChannel struct {
	sent []notification.Notification
}

func (c *captureChannel) Send(n notification.Notification) error {
	c.sent = append(c.sent, n)
	return nil
}

func (c *captureChannel) Close() error { return nil }

func newTestScheduler(t *testing.T, tasks []backend.Task, at time.Time) (*Scheduler, *staticTasks, *captureChannel) {
	t.Helper()
	store, err := localstore.Open(filepath.Join(t.TempDir(), "local.db"))
	if err != nil {
		t.Fatalf("failed to open local store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	src := &staticTasks{tasks: tasks}
	capture := &captureChannel{}
	notifier := notification.NewManager(notification.Config{Enabled: true}, capture)

	s := NewScheduler(Config{Enabled: true}, "guest", src, store, notifier)
	s.now = func() time.Time { return at }
	s.loc = time.UTC
	return s, src, capture
}

func dueTask(id int64, title string, due time.Time) backend.Task {
	return backend.Task{
		ID:      backend.RemoteID(id),
		Title:   title,
		DueDate: due.Format(backend.DateLayout),
		DueTime: due.Format(backend.TimeLayout),
	}
}

func TestSweepFiresInsideWindow(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	tasks := []backend.Task{
		dueTask(1, "just due", now.Add(-time.Minute)),
		dueTask(2, "not yet", now.Add(time.Hour)),
		dueTask(3, "stale", now.Add(-7*time.Hour)), // past the 6h grace
	}
	s, _, capture := newTestScheduler(t, tasks, now)

	fired, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	if len(capture.sent) != 1 || capture.sent[0].Kind != notification.KindReminder {
		t.Fatalf("sent = %v, want one reminder", capture.sent)
	}
	if got := capture.sent[0].Body; got != "just due - due 2026-03-02 09:59" {
		t.Errorf("body = %q", got)
	}
}

func TestSweepSkipsDoneAndUndated(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	done := dueTask(1, "done", now.Add(-time.Minute))
	done.Done = true
	tasks := []backend.Task{
		done,
		{ID: backend.RemoteID(2), Title: "no due"},
		{ID: backend.RemoteID(3), Title: "date only", DueDate: "2026-03-02"},
	}
	s, _, capture := newTestScheduler(t, tasks, now)

	fired, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if fired != 0 || len(capture.sent) != 0 {
		t.Errorf("fired = %d, sent = %v, want nothing", fired, capture.sent)
	}
}

func TestSweepFiresOncePerKey(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	s, _, capture := newTestScheduler(t, []backend.Task{dueTask(1, "meeting", now.Add(-time.Minute))}, now)

	for i := 0; i < 3; i++ {
		if _, err := s.Sweep(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if len(capture.sent) != 1 {
		t.Fatalf("sent %d notifications across sweeps, want 1", len(capture.sent))
	}
}

func TestRescheduleArmsAgain(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	task := dueTask(1, "review", now.Add(-time.Minute))
	s, src, capture := newTestScheduler(t, []backend.Task{task}, now)

	if _, err := s.Sweep(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Pushing the due time later and sweeping past it fires again.
	task.DueTime = now.Add(5 * time.Minute).Format(backend.TimeLayout)
	src.tasks = []backend.Task{task}
	s.now = func() time.Time { return now.Add(6 * time.Minute) }

	if _, err := s.Sweep(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(capture.sent) != 2 {
		t.Fatalf("sent = %d, want 2 after reschedule", len(capture.sent))
	}
}

func TestGuestAndAccountKeysAreSeparate(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	task := dueTask(1, "shared id", now.Add(-time.Minute))

	store, err := localstore.Open(filepath.Join(t.TempDir(), "local.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = store.Close() }()

	capture := &captureChannel{}
	notifier := notification.NewManager(notification.Config{Enabled: true}, capture)
	for _, mode := range []string{"guest", "alice"} {
		s := NewScheduler(Config{Enabled: true}, mode, &staticTasks{tasks: []backend.Task{task}}, store, notifier)
		s.now = func() time.Time { return now }
		s.loc = time.UTC
		if _, err := s.Sweep(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if len(capture.sent) != 2 {
		t.Fatalf("sent = %d, want one per mode", len(capture.sent))
	}
}

func TestKeyCapEvictsOldest(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	var tasks []backend.Task
	for i := 0; i < 5; i++ {
		tasks = append(tasks, dueTask(int64(i+1), fmt.Sprintf("task %d", i), now.Add(-time.Minute)))
	}
	s, _, capture := newTestScheduler(t, tasks, now)
	s.cfg.KeyCap = 3

	if _, err := s.Sweep(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(capture.sent) != 5 {
		t.Fatalf("sent = %d, want 5", len(capture.sent))
	}

	// The two oldest keys were evicted, so those tasks fire again.
	fired, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if fired != 2 {
		t.Errorf("refired = %d, want 2 evicted keys", fired)
	}
}
