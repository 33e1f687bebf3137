// Package reminder fires local notifications for tasks whose due time
// has arrived. Notified keys are persisted so a task fires once per
// due date/time; editing the due date or time makes a new key and the
// task reminds again.
package reminder

import (
	"context"
	"fmt"
	"time"

	"dayplan/backend"
	"dayplan/internal/localstore"
	"dayplan/internal/notification"
	"dayplan/internal/utils"
)

// DefaultInterval is how often the scheduler scans for due tasks.
const DefaultInterval = 30 * time.Second

// DefaultGrace bounds how long after its due time a task still fires.
// A laptop waking from a week of sleep should not replay a week of
// reminders.
const DefaultGrace = 6 * time.Hour

// DefaultKeyCap bounds the persisted notified-key set.
const DefaultKeyCap = 500

// TaskSource supplies the current task list, typically the sync engine.
type TaskSource interface {
	Tasks() []backend.Task
}

// Config holds scheduler settings. Zero values fall back to defaults.
type Config struct {
	Enabled  bool
	Interval time.Duration
	Grace    time.Duration
	KeyCap   int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Grace <= 0 {
		c.Grace = DefaultGrace
	}
	if c.KeyCap <= 0 {
		c.KeyCap = DefaultKeyCap
	}
	return c
}

// Scheduler scans a task source on a fixed interval and notifies for
// tasks inside their due window.
type Scheduler struct {
	cfg      Config
	mode     string // "guest" or the account name, part of the dedup key
	src      TaskSource
	store    *localstore.Store
	notifier *notification.Manager
	log      *utils.Logger

	now func() time.Time
	loc *time.Location
}

// NewScheduler creates a scheduler. mode distinguishes guest and
// account task lists so their notified keys never collide.
func NewScheduler(cfg Config, mode string, src TaskSource, store *localstore.Store, notifier *notification.Manager) *Scheduler {
	if mode == "" {
		mode = "guest"
	}
	return &Scheduler{
		cfg:      cfg.withDefaults(),
		mode:     mode,
		src:      src,
		store:    store,
		notifier: notifier,
		log:      utils.GetLogger(),
		now:      time.Now,
		loc:      time.Local,
	}
}

// Run sweeps until the context is canceled. The first sweep runs
// immediately.
func (s *Scheduler) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		return
	}
	if _, err := s.Sweep(ctx); err != nil {
		s.log.Warn("reminder sweep failed: %v", err)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.log.Warn("reminder sweep failed: %v", err)
			}
		}
	}
}

// Sweep runs one scan and returns how many notifications fired.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	fired := 0

	for _, task := range s.src.Tasks() {
		if task.Done {
			continue
		}
		due, ok := task.DueAt(s.loc)
		if !ok {
			continue
		}
		since := now.Sub(due)
		if since < 0 || since > s.cfg.Grace {
			continue
		}

		key := s.notifiedKey(task)
		seen, err := s.store.HasNotifiedKey(ctx, key)
		if err != nil {
			return fired, fmt.Errorf("failed to check notified key: %w", err)
		}
		if seen {
			continue
		}

		n := notification.Notification{
			Kind:      notification.KindReminder,
			Title:     "Task due",
			Body:      fmt.Sprintf("%s - due %s %s", task.Title, task.DueDate, task.DueTime),
			Timestamp: now,
			Metadata:  map[string]string{"task_id": task.ID.String()},
		}
		if err := s.notifier.Send(n); err != nil {
			s.log.Warn("failed to deliver reminder for %q: %v", task.Title, err)
		}
		// Recorded even when a channel failed: a broken notify-send
		// should not make every later sweep retry the same task.
		if err := s.store.AddNotifiedKey(ctx, key, s.cfg.KeyCap); err != nil {
			return fired, fmt.Errorf("failed to record notified key: %w", err)
		}
		fired++
	}
	return fired, nil
}

// notifiedKey builds the dedup key. Due date and time are part of it,
// so rescheduling a task arms the reminder again.
func (s *Scheduler) notifiedKey(task backend.Task) string {
	return fmt.Sprintf("%s|%s|%s|%s", s.mode, task.ID, task.DueDate, task.DueTime)
}
