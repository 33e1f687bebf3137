// Package push dispatches due-task Web Push notifications. A run is
// designed to be invoked from cron: it is idempotent per
// (task, subscription, due date, due time) through the server's
// notification log, and safe under overlapping invocations because the
// log enforces that uniqueness at the storage layer.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dayplan/backend"
	"dayplan/backend/sqlite"
	"dayplan/internal/utils"
)

// DefaultGrace bounds how long after its due time a task is still
// pushed. Cron gaps inside the window are caught up; anything older is
// stale enough that a push would be noise.
const DefaultGrace = 10 * time.Minute

// ErrMissingVAPID aborts a run: without signing keys no push can be
// attempted, so there is nothing sensible to do per-subscription.
var ErrMissingVAPID = errors.New("VAPID keys not configured")

// Summary is the result of one dispatch run.
type Summary struct {
	Sent   int
	Pruned int
}

// payload is the JSON body delivered to the service worker.
type payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Tag   string `json:"tag"`
}

// Dispatcher selects due tasks and pushes them to their owners'
// subscriptions.
type Dispatcher struct {
	store  *sqlite.Store
	sender Sender
	grace  time.Duration
	log    *utils.Logger

	now func() time.Time
	loc *time.Location
}

// NewDispatcher creates a dispatcher over the server store.
func NewDispatcher(store *sqlite.Store, sender Sender, grace time.Duration) *Dispatcher {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Dispatcher{
		store:  store,
		sender: sender,
		grace:  grace,
		log:    utils.GetLogger(),
		now:    time.Now,
		loc:    time.Local,
	}
}

// Run performs one dispatch pass. Per-subscription delivery failures
// are logged and left for the next run; only a missing sender aborts.
func (d *Dispatcher) Run(ctx context.Context) (Summary, error) {
	if d.sender == nil {
		return Summary{}, ErrMissingVAPID
	}

	candidates, err := d.store.OpenTasksWithSubscriptions(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to load due candidates: %w", err)
	}

	var sum Summary
	now := d.now()

	for _, cand := range candidates {
		due, ok := cand.Task.DueAt(d.loc)
		if !ok {
			continue
		}
		since := now.Sub(due)
		if since < 0 || since > d.grace {
			continue
		}
		taskID, _ := cand.Task.ID.Remote()

		for _, sub := range cand.Subscriptions {
			if err := d.dispatchOne(ctx, cand.Task, taskID, sub, &sum); err != nil {
				return sum, err
			}
		}
	}
	return sum, nil
}

// dispatchOne handles a single (task, subscription) pair. Returns an
// error only for storage failures; delivery failures are absorbed.
func (d *Dispatcher) dispatchOne(ctx context.Context, task backend.Task, taskID int64, sub backend.Subscription, sum *Summary) error {
	seen, err := d.store.AlreadyNotified(ctx, taskID, sub.ID, task.DueDate, task.DueTime)
	if err != nil {
		return fmt.Errorf("failed to check notification log: %w", err)
	}
	if seen {
		return nil
	}

	body, err := json.Marshal(payload{
		Title: "Task due",
		Body:  fmt.Sprintf("%s - due %s %s", task.Title, task.DueDate, task.DueTime),
		Tag:   fmt.Sprintf("task-%d-%s-%s", taskID, task.DueDate, task.DueTime),
	})
	if err != nil {
		return fmt.Errorf("failed to encode push payload: %w", err)
	}

	// Send first, log after: a crash between the two re-sends on the
	// next run. At-least-once beats silently never notifying.
	if err := d.sender.Send(ctx, sub, body); err != nil {
		if errors.Is(err, ErrSubscriptionGone) {
			if derr := d.store.DeleteSubscription(ctx, sub.ID); derr != nil {
				return fmt.Errorf("failed to prune subscription %d: %w", sub.ID, derr)
			}
			d.log.Info("pruned gone subscription %d", sub.ID)
			sum.Pruned++
			return nil
		}
		d.log.Warn("push to subscription %d failed, will retry next run: %v", sub.ID, err)
		return nil
	}

	if err := d.store.RecordNotification(ctx, taskID, sub.ID, task.DueDate, task.DueTime); err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}
	sum.Sent++
	return nil
}
