// Package sqlite implements the server-side store: accounts, tasks,
// push subscriptions, and the notification log that de-duplicates push
// dispatch.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"dayplan/backend"
)

// Store wraps the server database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	if _, err := s.db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return err
	}

	schema := `
		CREATE TABLE IF NOT EXISTS accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			token TEXT NOT NULL UNIQUE,
			created TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id INTEGER NOT NULL,
			title TEXT NOT NULL,
			description TEXT DEFAULT '',
			due_date TEXT DEFAULT '',
			due_time TEXT DEFAULT '',
			done INTEGER NOT NULL DEFAULT 0,
			priority TEXT NOT NULL DEFAULT 'MEDIUM',
			created TEXT NOT NULL,
			modified TEXT NOT NULL,
			FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_tasks_account_id ON tasks(account_id);

		CREATE TABLE IF NOT EXISTS push_subscriptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id INTEGER NOT NULL,
			endpoint TEXT NOT NULL UNIQUE,
			p256dh_key TEXT NOT NULL,
			auth_key TEXT NOT NULL,
			created TEXT NOT NULL,
			FOREIGN KEY (account_id) REFERENCES accounts(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS notification_log (
			task_id INTEGER NOT NULL,
			subscription_id INTEGER NOT NULL,
			due_date TEXT NOT NULL,
			due_time TEXT NOT NULL,
			sent_at TEXT NOT NULL,
			UNIQUE (task_id, subscription_id, due_date, due_time)
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Account is a registered user of the server.
type Account struct {
	ID    int64
	Name  string
	Token string
}

// CreateAccount registers an account and issues its bearer token.
func (s *Store) CreateAccount(ctx context.Context, name string) (Account, error) {
	token := uuid.New().String()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO accounts (name, token, created) VALUES (?, ?, ?)",
		name, token, now,
	)
	if err != nil {
		return Account{}, fmt.Errorf("failed to create account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Account{}, err
	}
	return Account{ID: id, Name: name, Token: token}, nil
}

// AccountByToken resolves a bearer token to an account.
// Returns backend.ErrUnauthorized when the token is unknown.
func (s *Store) AccountByToken(ctx context.Context, token string) (Account, error) {
	var a Account
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, token FROM accounts WHERE token = ?", token,
	).Scan(&a.ID, &a.Name, &a.Token)
	if err == sql.ErrNoRows {
		return Account{}, backend.ErrUnauthorized
	}
	if err != nil {
		return Account{}, err
	}
	return a, nil
}

// CreateTask stores a new task for an account and returns it with its
// server-assigned id.
func (s *Store) CreateTask(ctx context.Context, accountID int64, task backend.Task) (backend.Task, error) {
	if err := task.Validate(); err != nil {
		return backend.Task{}, err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (account_id, title, description, due_date, due_time, done, priority, created, modified)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		accountID, task.Title, task.Description, task.DueDate, task.DueTime,
		boolToInt(task.Done), string(task.Priority), now, now,
	)
	if err != nil {
		return backend.Task{}, fmt.Errorf("failed to insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return backend.Task{}, err
	}
	task.ID = backend.RemoteID(id)
	return task, nil
}

// GetTask returns one task owned by the account.
func (s *Store) GetTask(ctx context.Context, accountID, id int64) (backend.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, description, due_date, due_time, done, priority
		 FROM tasks WHERE id = ? AND account_id = ?`, id, accountID)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return backend.Task{}, backend.ErrNotFound
	}
	return t, err
}

// UpdateTask applies a partial field change to a task.
func (s *Store) UpdateTask(ctx context.Context, accountID, id int64, patch backend.Patch) (backend.Task, error) {
	if err := patch.Validate(); err != nil {
		return backend.Task{}, err
	}
	task, err := s.GetTask(ctx, accountID, id)
	if err != nil {
		return backend.Task{}, err
	}
	patch.Apply(&task)

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx,
		`UPDATE tasks SET title = ?, description = ?, due_date = ?, due_time = ?, done = ?, priority = ?, modified = ?
		 WHERE id = ? AND account_id = ?`,
		task.Title, task.Description, task.DueDate, task.DueTime,
		boolToInt(task.Done), string(task.Priority), now, id, accountID,
	)
	if err != nil {
		return backend.Task{}, fmt.Errorf("failed to update task: %w", err)
	}
	return task, nil
}

// DeleteTask removes a task owned by the account.
func (s *Store) DeleteTask(ctx context.Context, accountID, id int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM tasks WHERE id = ? AND account_id = ?", id, accountID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return backend.ErrNotFound
	}
	return nil
}

// ListTasks returns all tasks for an account, ordered by due date, then
// due time, then creation order.
func (s *Store) ListTasks(ctx context.Context, accountID int64) ([]backend.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, description, due_date, due_time, done, priority
		 FROM tasks WHERE account_id = ?
		 ORDER BY CASE WHEN due_date = '' THEN 1 ELSE 0 END, due_date, due_time, id`,
		accountID,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	tasks := []backend.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// AddSubscription registers a push subscription, replacing key material
// when the endpoint is already registered.
func (s *Store) AddSubscription(ctx context.Context, accountID int64, sub backend.Subscription) (backend.Subscription, error) {
	if err := sub.Validate(); err != nil {
		return backend.Subscription{}, err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO push_subscriptions (account_id, endpoint, p256dh_key, auth_key, created)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(endpoint) DO UPDATE SET account_id = excluded.account_id,
		   p256dh_key = excluded.p256dh_key, auth_key = excluded.auth_key`,
		accountID, sub.Endpoint, sub.P256dh, sub.Auth, now,
	)
	if err != nil {
		return backend.Subscription{}, fmt.Errorf("failed to add subscription: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		"SELECT id FROM push_subscriptions WHERE endpoint = ?", sub.Endpoint,
	).Scan(&id)
	if err != nil {
		return backend.Subscription{}, err
	}
	sub.ID = id
	sub.AccountID = accountID
	return sub, nil
}

// RemoveSubscriptionByEndpoint unregisters a subscription owned by the account.
func (s *Store) RemoveSubscriptionByEndpoint(ctx context.Context, accountID int64, endpoint string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM push_subscriptions WHERE endpoint = ? AND account_id = ?",
		endpoint, accountID,
	)
	return err
}

// DeleteSubscription removes a subscription by id. Used by the dispatcher
// to prune endpoints that report themselves gone.
func (s *Store) DeleteSubscription(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM push_subscriptions WHERE id = ?", id)
	return err
}

// Subscriptions returns all push subscriptions for an account.
func (s *Store) Subscriptions(ctx context.Context, accountID int64) ([]backend.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, account_id, endpoint, p256dh_key, auth_key FROM push_subscriptions WHERE account_id = ?",
		accountID,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var subs []backend.Subscription
	for rows.Next() {
		var sub backend.Subscription
		if err := rows.Scan(&sub.ID, &sub.AccountID, &sub.Endpoint, &sub.P256dh, &sub.Auth); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// DueCandidate is an incomplete task paired with the push subscriptions
// of its owner.
type DueCandidate struct {
	Task          backend.Task
	AccountID     int64
	Subscriptions []backend.Subscription
}

// OpenTasksWithSubscriptions returns every incomplete task belonging to
// an account that has at least one push subscription.
func (s *Store) OpenTasksWithSubscriptions(ctx context.Context) ([]DueCandidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT t.id, t.title, t.description, t.due_date, t.due_time, t.done, t.priority, t.account_id
		 FROM tasks t
		 JOIN push_subscriptions ps ON ps.account_id = t.account_id
		 WHERE t.done = 0
		 ORDER BY t.id`,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var candidates []DueCandidate
	for rows.Next() {
		var c DueCandidate
		var done int
		var prio string
		var id int64
		if err := rows.Scan(&id, &c.Task.Title, &c.Task.Description, &c.Task.DueDate,
			&c.Task.DueTime, &done, &prio, &c.AccountID); err != nil {
			return nil, err
		}
		c.Task.ID = backend.RemoteID(id)
		c.Task.Done = done != 0
		c.Task.Priority = backend.Priority(prio)
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range candidates {
		subs, err := s.Subscriptions(ctx, candidates[i].AccountID)
		if err != nil {
			return nil, err
		}
		candidates[i].Subscriptions = subs
	}
	return candidates, nil
}

// AlreadyNotified reports whether a push was already logged for this
// exact (task, subscription, due date, due time) combination.
func (s *Store) AlreadyNotified(ctx context.Context, taskID, subID int64, dueDate, dueTime string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM notification_log
		 WHERE task_id = ? AND subscription_id = ? AND due_date = ? AND due_time = ?`,
		taskID, subID, dueDate, dueTime,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RecordNotification logs a sent push. The table's uniqueness constraint
// makes the insert a no-op when a concurrent run logged the same
// combination first.
func (s *Store) RecordNotification(ctx context.Context, taskID, subID int64, dueDate, dueTime string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO notification_log (task_id, subscription_id, due_date, due_time, sent_at)
		 VALUES (?, ?, ?, ?, ?)`,
		taskID, subID, dueDate, dueTime, now,
	)
	return err
}

// scanner is satisfied by both *sql.Rows and *sql.Row.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (backend.Task, error) {
	var t backend.Task
	var id int64
	var done int
	var prio string
	err := s.Scan(&id, &t.Title, &t.Description, &t.DueDate, &t.DueTime, &done, &prio)
	if err != nil {
		return backend.Task{}, err
	}
	t.ID = backend.RemoteID(id)
	t.Done = done != 0
	t.Priority = backend.Priority(prio)
	return t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
