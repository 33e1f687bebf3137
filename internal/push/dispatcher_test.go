package push

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"dayplan/backend"
	"dayplan/backend/sqlite"
)

// fakeSender records sends and fails on command.
type fakeSender struct {
	sent    []string // endpoints in send order
	failing map[string]error
}

func newFakeSender() *fakeSender {
	return &fakeSender{failing: make(map[string]error)}
}

func (f *fakeSender) Send(_ context.Context, sub backend.Subscription, _ []byte) error {
	if err := f.failing[sub.Endpoint]; err != nil {
		return err
	}
	f.sent = append(f.sent, sub.Endpoint)
	return nil
}

func setupStore(t *testing.T) (*sqlite.Store, sqlite.Account) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	acct, err := store.CreateAccount(context.Background(), "alice")
	if err != nil {
		t.Fatalf("failed to create account: %v", err)
	}
	return store, acct
}

func addSub(t *testing.T, store *sqlite.Store, accountID int64, endpoint string) backend.Subscription {
	t.Helper()
	sub, err := store.AddSubscription(context.Background(), accountID, backend.Subscription{
		Endpoint: endpoint,
		P256dh:   "p256dh-key",
		Auth:     "auth-key",
	})
	if err != nil {
		t.Fatalf("failed to add subscription: %v", err)
	}
	return sub
}

func addDueTask(t *testing.T, store *sqlite.Store, accountID int64, title string, due time.Time) backend.Task {
	t.Helper()
	task, err := store.CreateTask(context.Background(), accountID, backend.Task{
		Title:    title,
		DueDate:  due.Format(backend.DateLayout),
		DueTime:  due.Format(backend.TimeLayout),
		Priority: backend.PriorityMedium,
	})
	if err != nil {
		t.Fatalf("failed to create task: %v", err)
	}
	return task
}

func newTestDispatcher(store *sqlite.Store, sender Sender, at time.Time) *Dispatcher {
	d := NewDispatcher(store, sender, 0)
	d.now = func() time.Time { return at }
	d.loc = time.UTC
	return d
}

func TestRunSendsDueTasksOnce(t *testing.T) {
	ctx := context.Background()
	store, acct := setupStore(t)
	addSub(t, store, acct.ID, "https://push.example/a")
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	addDueTask(t, store, acct.ID, "due now", now.Add(-time.Minute))
	addDueTask(t, store, acct.ID, "not yet", now.Add(time.Hour))
	addDueTask(t, store, acct.ID, "too old", now.Add(-time.Hour))

	sender := newFakeSender()
	d := newTestDispatcher(store, sender, now)

	sum, err := d.Run(ctx)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if sum.Sent != 1 || sum.Pruned != 0 {
		t.Fatalf("summary = %+v, want 1 sent", sum)
	}

	// A second run within the window is a no-op: the log holds the key.
	sum, err = d.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Sent != 0 {
		t.Errorf("second run sent %d, want 0", sum.Sent)
	}
	if len(sender.sent) != 1 {
		t.Errorf("sender called %d times, want 1", len(sender.sent))
	}
}

func TestRunPrunesGoneSubscriptions(t *testing.T) {
	ctx := context.Background()
	store, acct := setupStore(t)
	addSub(t, store, acct.ID, "https://push.example/dead")
	addSub(t, store, acct.ID, "https://push.example/live")
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	addDueTask(t, store, acct.ID, "standup", now.Add(-time.Minute))

	sender := newFakeSender()
	sender.failing["https://push.example/dead"] = fmt.Errorf("status 410: %w", ErrSubscriptionGone)
	d := newTestDispatcher(store, sender, now)

	sum, err := d.Run(ctx)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if sum.Sent != 1 || sum.Pruned != 1 {
		t.Fatalf("summary = %+v, want 1 sent 1 pruned", sum)
	}

	subs, err := store.Subscriptions(ctx, acct.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 1 || subs[0].Endpoint != "https://push.example/live" {
		t.Errorf("remaining subscriptions = %v, want only the live one", subs)
	}
}

func TestRunLeavesTransientFailuresForNextRun(t *testing.T) {
	ctx := context.Background()
	store, acct := setupStore(t)
	addSub(t, store, acct.ID, "https://push.example/flaky")
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	addDueTask(t, store, acct.ID, "retry me", now.Add(-time.Minute))

	sender := newFakeSender()
	sender.failing["https://push.example/flaky"] = errors.New("503 service unavailable")
	d := newTestDispatcher(store, sender, now)

	sum, err := d.Run(ctx)
	if err != nil {
		t.Fatalf("transient failure aborted the run: %v", err)
	}
	if sum.Sent != 0 || sum.Pruned != 0 {
		t.Fatalf("summary = %+v, want nothing counted", sum)
	}

	// The push service recovers; the next run delivers.
	delete(sender.failing, "https://push.example/flaky")
	sum, err = d.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Sent != 1 {
		t.Errorf("recovery run sent %d, want 1", sum.Sent)
	}
}

func TestRunRefiresOnRescheduledDue(t *testing.T) {
	ctx := context.Background()
	store, acct := setupStore(t)
	addSub(t, store, acct.ID, "https://push.example/a")
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	task := addDueTask(t, store, acct.ID, "moving target", now.Add(-time.Minute))

	sender := newFakeSender()
	d := newTestDispatcher(store, sender, now)
	if _, err := d.Run(ctx); err != nil {
		t.Fatal(err)
	}

	// Rescheduling changes the due-time component of the log key.
	newTime := now.Add(30 * time.Minute).Format(backend.TimeLayout)
	remote, _ := task.ID.Remote()
	if _, err := store.UpdateTask(ctx, acct.ID, remote, backend.Patch{DueTime: &newTime}); err != nil {
		t.Fatal(err)
	}
	d.now = func() time.Time { return now.Add(31 * time.Minute) }

	sum, err := d.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Sent != 1 {
		t.Errorf("rescheduled task sent %d, want 1", sum.Sent)
	}
}

func TestRunAbortsWithoutSender(t *testing.T) {
	store, _ := setupStore(t)
	d := NewDispatcher(store, nil, 0)
	if _, err := d.Run(context.Background()); !errors.Is(err, ErrMissingVAPID) {
		t.Fatalf("err = %v, want ErrMissingVAPID", err)
	}
}

func TestRunSkipsAccountsWithoutSubscriptions(t *testing.T) {
	ctx := context.Background()
	store, acct := setupStore(t)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	addDueTask(t, store, acct.ID, "no subscribers", now.Add(-time.Minute))

	sender := newFakeSender()
	d := newTestDispatcher(store, sender, now)
	sum, err := d.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Sent != 0 || len(sender.sent) != 0 {
		t.Errorf("pushed to an account without subscriptions: %+v", sum)
	}
}
