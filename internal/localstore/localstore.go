// Package localstore persists the client's durable state: guest tasks,
// the per-account task cache, the per-account pending-operation queue,
// the bounded notified-key set, and small app state values.
//
// Every account-scoped table is keyed by account identity so multiple
// accounts on one device stay isolated.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"dayplan/backend"
)

// Store wraps the client database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path (watched for foreign writes).
func (s *Store) Path() string { return s.path }

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS guest_tasks (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  id TEXT NOT NULL UNIQUE,
  payload TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS task_cache (
  account TEXT PRIMARY KEY,
  payload TEXT NOT NULL,
  updated TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_queue (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  account TEXT NOT NULL,
  op_id TEXT NOT NULL UNIQUE,
  payload TEXT NOT NULL,
  created TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sync_queue_account ON sync_queue(account);

CREATE TABLE IF NOT EXISTS notified_keys (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  key TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS app_state (
  k TEXT PRIMARY KEY,
  v TEXT NOT NULL
);
`)
	if err != nil {
		return fmt.Errorf("failed to migrate local store: %w", err)
	}
	return nil
}

// GuestTasks returns all guest-mode tasks in creation order.
func (s *Store) GuestTasks(ctx context.Context) ([]backend.Task, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT payload FROM guest_tasks ORDER BY seq")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tasks []backend.Task
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var t backend.Task
		if err := json.Unmarshal([]byte(payload), &t); err != nil {
			return nil, fmt.Errorf("failed to decode guest task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// PutGuestTask inserts or replaces a guest-mode task. Guest tasks keep
// their local id for their whole life; there is no server to rename them.
func (s *Store) PutGuestTask(ctx context.Context, task backend.Task) error {
	id, ok := task.ID.Local()
	if !ok {
		return fmt.Errorf("guest task must have a local id, got %s", task.ID)
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO guest_tasks (id, payload) VALUES (?, ?)
ON CONFLICT(id) DO UPDATE SET payload = excluded.payload`,
		id, string(payload))
	return err
}

// DeleteGuestTask removes a guest-mode task.
func (s *Store) DeleteGuestTask(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM guest_tasks WHERE id = ?", id)
	return err
}

// TaskCache returns the last server-confirmed task list for an account.
// The second return is false when no snapshot exists.
func (s *Store) TaskCache(ctx context.Context, account string) ([]backend.Task, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM task_cache WHERE account = ?", account).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var tasks []backend.Task
	if err := json.Unmarshal([]byte(payload), &tasks); err != nil {
		return nil, false, fmt.Errorf("failed to decode task cache: %w", err)
	}
	return tasks, true, nil
}

// SetTaskCache overwrites the account's snapshot wholesale.
func (s *Store) SetTaskCache(ctx context.Context, account string, tasks []backend.Task) error {
	payload, err := json.Marshal(tasks)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, `
INSERT INTO task_cache (account, payload, updated) VALUES (?, ?, ?)
ON CONFLICT(account) DO UPDATE SET payload = excluded.payload, updated = excluded.updated`,
		account, string(payload), now)
	return err
}

// ClearTaskCache drops the account's snapshot.
func (s *Store) ClearTaskCache(ctx context.Context, account string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM task_cache WHERE account = ?", account)
	return err
}

// QueuedOp is one persisted pending operation.
type QueuedOp struct {
	Seq     int64
	ID      string
	Payload []byte
	Created time.Time
}

// AppendOp appends an operation to the account's queue. The insert is a
// single statement, so concurrent writers cannot interleave partial
// queue states.
func (s *Store) AppendOp(ctx context.Context, account, opID string, payload []byte) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sync_queue (account, op_id, payload, created) VALUES (?, ?, ?, ?)",
		account, opID, string(payload), now)
	if err != nil {
		return fmt.Errorf("failed to enqueue operation: %w", err)
	}
	return nil
}

// PendingOps returns the account's queue in enqueue order.
func (s *Store) PendingOps(ctx context.Context, account string) ([]QueuedOp, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT seq, op_id, payload, created FROM sync_queue WHERE account = ? ORDER BY seq",
		account)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ops []QueuedOp
	for rows.Next() {
		var op QueuedOp
		var payload, created string
		if err := rows.Scan(&op.Seq, &op.ID, &payload, &created); err != nil {
			return nil, err
		}
		op.Payload = []byte(payload)
		op.Created, _ = time.Parse(time.RFC3339Nano, created)
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// UpdateOpPayload rewrites a queued operation in place. The reconciler
// uses this to persist placeholder-id resolution into operations that
// have not replayed yet.
func (s *Store) UpdateOpPayload(ctx context.Context, account string, seq int64, payload []byte) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sync_queue SET payload = ? WHERE account = ? AND seq = ?",
		string(payload), account, seq)
	return err
}

// DeleteOp consumes one operation by sequence number.
func (s *Store) DeleteOp(ctx context.Context, account string, seq int64) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM sync_queue WHERE account = ? AND seq = ?", account, seq)
	return err
}

// ClearOps drops the account's whole queue.
func (s *Store) ClearOps(ctx context.Context, account string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sync_queue WHERE account = ?", account)
	return err
}

// PendingCount returns the number of queued operations for an account.
func (s *Store) PendingCount(ctx context.Context, account string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sync_queue WHERE account = ?", account).Scan(&n)
	return n, err
}

// HasNotifiedKey reports whether a reminder already fired for this key.
func (s *Store) HasNotifiedKey(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM notified_keys WHERE key = ?", key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// AddNotifiedKey records a fired reminder key and evicts the oldest
// entries past cap so the set stays bounded.
func (s *Store) AddNotifiedKey(ctx context.Context, key string, cap int) error {
	if _, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO notified_keys (key) VALUES (?)", key); err != nil {
		return err
	}
	if cap <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
DELETE FROM notified_keys WHERE seq NOT IN (
  SELECT seq FROM notified_keys ORDER BY seq DESC LIMIT ?
)`, cap)
	return err
}

// State fetches an app state value with a default fallback.
func (s *Store) State(ctx context.Context, key, def string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		"SELECT v FROM app_state WHERE k = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	return v, nil
}

// SetState updates an app state value.
func (s *Store) SetState(ctx context.Context, key, val string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO app_state (k, v) VALUES (?, ?)
ON CONFLICT(k) DO UPDATE SET v = excluded.v`, key, val)
	return err
}
