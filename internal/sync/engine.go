package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"

	"dayplan/backend"
	"dayplan/internal/localstore"
	"dayplan/internal/utils"
)

// State is the explicit sync state that drives mutation routing.
type State int

const (
	// StateSynced: mutations go directly to the server.
	StateSynced State = iota
	// StateOffline: mutations apply locally and enqueue.
	StateOffline
	// StateFlushing: a flush is replaying the queue; new mutations
	// enqueue so they cannot race the replay out of order.
	StateFlushing
)

// String returns the display name of the state.
func (s State) String() string {
	switch s {
	case StateSynced:
		return "synced"
	case StateOffline:
		return "offline-queued"
	case StateFlushing:
		return "flushing"
	default:
		return "unknown"
	}
}

// Engine owns the in-memory task list for one account (or guest mode)
// and routes every mutation: optimistic local application always, plus
// either a direct server call or a queued operation.
type Engine struct {
	mu      stdsync.Mutex
	account string // empty in guest mode
	svc     backend.TaskService
	store   *localstore.Store
	log     *utils.Logger

	online bool
	state  State
	tasks  []backend.Task
}

// NewEngine creates an engine. account is empty for guest mode, in which
// svc may be nil and every mutation stays local.
func NewEngine(account string, svc backend.TaskService, store *localstore.Store) *Engine {
	return &Engine{
		account: account,
		svc:     svc,
		store:   store,
		log:     utils.GetLogger(),
		state:   StateOffline,
	}
}

// Authenticated reports whether the engine operates in account mode.
func (e *Engine) Authenticated() bool {
	return e.account != "" && e.svc != nil
}

// State returns the current sync state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Online reports the last connectivity signal.
func (e *Engine) Online() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.online
}

// Tasks returns a snapshot of the in-memory task list.
func (e *Engine) Tasks() []backend.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]backend.Task, len(e.tasks))
	copy(out, e.tasks)
	return out
}

// PendingCount returns the number of queued operations.
func (e *Engine) PendingCount(ctx context.Context) int {
	if !e.Authenticated() {
		return 0
	}
	n, err := e.store.PendingCount(ctx, e.account)
	if err != nil {
		return 0
	}
	return n
}

// Load populates the in-memory list: from the server when reachable,
// otherwise from the local cache (or the guest store in guest mode).
func (e *Engine) Load(ctx context.Context) error {
	if !e.Authenticated() {
		tasks, err := e.store.GuestTasks(ctx)
		if err != nil {
			e.log.Warn("failed to read guest tasks: %v", err)
			tasks = nil
		}
		e.mu.Lock()
		e.tasks = tasks
		e.mu.Unlock()
		return nil
	}

	e.mu.Lock()
	online := e.online && e.state != StateFlushing
	e.mu.Unlock()

	if online {
		tasks, err := e.svc.ListTasks(ctx)
		if err == nil {
			if cerr := e.store.SetTaskCache(ctx, e.account, tasks); cerr != nil {
				e.log.Warn("failed to write task cache: %v", cerr)
			}
			e.mu.Lock()
			e.tasks = tasks
			e.state = StateSynced
			e.mu.Unlock()
			return nil
		}
		if backend.IsAuthError(err) {
			return err
		}
		e.log.Debug("list fetch failed, falling back to cache: %v", err)
		e.mu.Lock()
		e.state = StateOffline
		e.mu.Unlock()
	}

	tasks, _, err := e.store.TaskCache(ctx, e.account)
	if err != nil {
		e.log.Warn("failed to read task cache: %v", err)
		tasks = nil
	}
	tasks = e.overlayPending(ctx, tasks)
	e.mu.Lock()
	e.tasks = tasks
	e.mu.Unlock()
	return nil
}

// overlayPending replays the queued operations on top of the cached
// server list, so a fresh process sees the same optimistic state the
// process that queued them saw. The cache itself stays server-confirmed.
func (e *Engine) overlayPending(ctx context.Context, tasks []backend.Task) []backend.Task {
	pending, err := e.store.PendingOps(ctx, e.account)
	if err != nil {
		e.log.Warn("failed to read pending operations: %v", err)
		return tasks
	}

	for _, queued := range pending {
		op, err := DecodeOp(queued.Payload)
		if err != nil {
			e.log.Warn("skipping undecodable queued operation %d: %v", queued.Seq, err)
			continue
		}
		switch op.Kind {
		case OpCreate:
			tasks = append(tasks, *op.Task)
		case OpUpdate:
			for i := range tasks {
				if tasks[i].ID == op.Target {
					op.Patch.Apply(&tasks[i])
					break
				}
			}
		case OpDelete:
			for i := range tasks {
				if tasks[i].ID == op.Target {
					tasks = append(tasks[:i], tasks[i+1:]...)
					break
				}
			}
		}
	}
	backend.SortTasks(tasks)
	return tasks
}

// SetOnline records a connectivity transition. A transition to online
// triggers one flush.
func (e *Engine) SetOnline(ctx context.Context, online bool) {
	e.mu.Lock()
	was := e.online
	e.online = online
	if !online && e.state != StateFlushing {
		e.state = StateOffline
	}
	e.mu.Unlock()

	if online && !was {
		if err := e.Flush(ctx); err != nil {
			e.log.Warn("flush after reconnect failed: %v", err)
		}
	}
}

// Create adds a task. Returns the created task: with a server id when
// the direct call succeeded, with a local placeholder id otherwise.
func (e *Engine) Create(ctx context.Context, task backend.Task) (backend.Task, error) {
	if err := task.Validate(); err != nil {
		return backend.Task{}, err
	}

	if !e.Authenticated() {
		task.ID = backend.NewLocalID()
		if err := e.store.PutGuestTask(ctx, task); err != nil {
			e.log.Warn("failed to persist guest task: %v", err)
		}
		e.appendLocal(task)
		return task, nil
	}

	if e.directRoute() {
		created, err := e.svc.CreateTask(ctx, task)
		if err == nil {
			e.appendLocal(created)
			e.writeCache(ctx)
			return created, nil
		}
		if backend.IsAuthError(err) || backend.IsValidationError(err) {
			return backend.Task{}, err
		}
		e.degrade(err)
	}

	task.ID = backend.NewLocalID()
	e.appendLocal(task)
	if err := e.enqueue(ctx, NewCreateOp(task)); err != nil {
		return backend.Task{}, err
	}
	e.flushSafetyNet(ctx)
	return task, nil
}

// Update applies a partial change to a task. The in-memory list is
// updated immediately regardless of connectivity.
func (e *Engine) Update(ctx context.Context, id backend.ID, patch backend.Patch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	if patch.IsZero() {
		return nil
	}

	if !e.Authenticated() {
		task, ok := e.applyLocal(id, patch)
		if !ok {
			return backend.ErrNotFound
		}
		if err := e.store.PutGuestTask(ctx, task); err != nil {
			e.log.Warn("failed to persist guest task: %v", err)
		}
		return nil
	}

	if _, ok := e.applyLocal(id, patch); !ok {
		return backend.ErrNotFound
	}

	if remote, ok := id.Remote(); ok && e.directRoute() {
		_, err := e.svc.UpdateTask(ctx, remote, patch)
		if err == nil {
			e.writeCache(ctx)
			return nil
		}
		if backend.IsAuthError(err) || backend.IsValidationError(err) {
			return err
		}
		e.degrade(err)
	}

	if err := e.enqueue(ctx, NewUpdateOp(id, patch)); err != nil {
		return err
	}
	e.flushSafetyNet(ctx)
	return nil
}

// Delete removes a task. The in-memory list is updated immediately.
func (e *Engine) Delete(ctx context.Context, id backend.ID) error {
	if !e.Authenticated() {
		if !e.removeLocal(id) {
			return backend.ErrNotFound
		}
		if local, ok := id.Local(); ok {
			if err := e.store.DeleteGuestTask(ctx, local); err != nil {
				e.log.Warn("failed to delete guest task: %v", err)
			}
		}
		return nil
	}

	if !e.removeLocal(id) {
		return backend.ErrNotFound
	}

	if remote, ok := id.Remote(); ok && e.directRoute() {
		err := e.svc.DeleteTask(ctx, remote)
		if err == nil || errors.Is(err, backend.ErrNotFound) {
			e.writeCache(ctx)
			return nil
		}
		if backend.IsAuthError(err) {
			return err
		}
		e.degrade(err)
	}

	if err := e.enqueue(ctx, NewDeleteOp(id)); err != nil {
		return err
	}
	e.flushSafetyNet(ctx)
	return nil
}

// Flush replays the pending-operation queue in order. It is a no-op
// when unauthenticated, offline, already flushing, or the queue is
// empty. On the first send failure it aborts, leaving the unreplayed
// remainder queued for the next trigger.
func (e *Engine) Flush(ctx context.Context) error {
	if !e.Authenticated() {
		return nil
	}

	e.mu.Lock()
	if !e.online || e.state == StateFlushing {
		e.mu.Unlock()
		return nil
	}
	pending, err := e.store.PendingOps(ctx, e.account)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("failed to read pending operations: %w", err)
	}
	if len(pending) == 0 {
		e.state = StateSynced
		e.mu.Unlock()
		return nil
	}
	e.state = StateFlushing
	e.mu.Unlock()

	replayErr := e.replayAll(ctx, pending)

	e.mu.Lock()
	defer e.mu.Unlock()
	if replayErr != nil {
		e.state = StateOffline
		return replayErr
	}

	tasks, err := e.svc.ListTasks(ctx)
	if err != nil {
		e.state = StateOffline
		return fmt.Errorf("failed to refresh tasks after flush: %w", err)
	}
	e.tasks = tasks
	if err := e.store.SetTaskCache(ctx, e.account, tasks); err != nil {
		e.log.Warn("failed to write task cache: %v", err)
	}
	e.state = StateSynced
	return nil
}

// replayAll drains the queue, re-reading it after each pass so
// mutations enqueued while flushing are replayed too.
func (e *Engine) replayAll(ctx context.Context, pending []localstore.QueuedOp) error {
	for {
		if err := e.replay(ctx, pending); err != nil {
			return err
		}
		var err error
		pending, err = e.store.PendingOps(ctx, e.account)
		if err != nil {
			return fmt.Errorf("failed to re-read pending operations: %w", err)
		}
		if len(pending) == 0 {
			return nil
		}
	}
}

// replay sends one batch of queued operations in enqueue order,
// resolving placeholder ids through the map built from replayed creates.
func (e *Engine) replay(ctx context.Context, pending []localstore.QueuedOp) error {
	idMap := make(map[string]int64)

	for _, q := range pending {
		op, err := DecodeOp(q.Payload)
		if err != nil {
			e.log.Warn("dropping undecodable queued operation %d: %v", q.Seq, err)
			_ = e.store.DeleteOp(ctx, e.account, q.Seq)
			continue
		}

		switch op.Kind {
		case OpCreate:
			localID, _ := op.Task.ID.Local()
			payload := *op.Task
			payload.ID = backend.ID{}
			created, err := e.svc.CreateTask(ctx, payload)
			if err != nil {
				return fmt.Errorf("failed to replay create: %w", err)
			}
			remote, ok := created.ID.Remote()
			if !ok {
				return fmt.Errorf("server returned create without an id")
			}
			// The acked create is consumed, and the placeholder
			// resolution persisted into the remaining queue, before the
			// next operation is attempted. A later abort retries only
			// the remainder; the create is never re-sent.
			if err := e.store.DeleteOp(ctx, e.account, q.Seq); err != nil {
				return fmt.Errorf("failed to consume replayed create: %w", err)
			}
			idMap[localID] = remote
			e.persistResolution(ctx, localID, remote)
			e.resolveLocalTask(localID, remote)

		case OpUpdate:
			target, ok := e.resolveTarget(op.Target, idMap)
			if !ok {
				e.log.Warn("dropping update for unresolved placeholder %s", op.Target)
				_ = e.store.DeleteOp(ctx, e.account, q.Seq)
				continue
			}
			_, err := e.svc.UpdateTask(ctx, target, *op.Patch)
			if err != nil && !errors.Is(err, backend.ErrNotFound) {
				return fmt.Errorf("failed to replay update: %w", err)
			}
			if err := e.store.DeleteOp(ctx, e.account, q.Seq); err != nil {
				return fmt.Errorf("failed to consume replayed update: %w", err)
			}

		case OpDelete:
			target, ok := e.resolveTarget(op.Target, idMap)
			if !ok {
				e.log.Warn("dropping delete for unresolved placeholder %s", op.Target)
				_ = e.store.DeleteOp(ctx, e.account, q.Seq)
				continue
			}
			err := e.svc.DeleteTask(ctx, target)
			if err != nil && !errors.Is(err, backend.ErrNotFound) {
				return fmt.Errorf("failed to replay delete: %w", err)
			}
			if err := e.store.DeleteOp(ctx, e.account, q.Seq); err != nil {
				return fmt.Errorf("failed to consume replayed delete: %w", err)
			}
		}
	}
	return nil
}

// resolveTarget maps a placeholder target through replayed creates,
// falling back to the operation's own identifier. The second return is
// false when the target is still an unresolved placeholder, meaning its
// create never reached the server and never will (operations are
// appended in user order, so a create always precedes its dependents).
func (e *Engine) resolveTarget(id backend.ID, idMap map[string]int64) (int64, bool) {
	if local, ok := id.Local(); ok {
		remote, ok := idMap[local]
		return remote, ok
	}
	remote, ok := id.Remote()
	return remote, ok
}

// persistResolution rewrites queued operations that still address a
// placeholder so the resolution survives an abort later in this flush.
func (e *Engine) persistResolution(ctx context.Context, localID string, remote int64) {
	pending, err := e.store.PendingOps(ctx, e.account)
	if err != nil {
		e.log.Warn("failed to re-read queue for id resolution: %v", err)
		return
	}
	for _, q := range pending {
		op, err := DecodeOp(q.Payload)
		if err != nil {
			continue
		}
		if l, ok := op.Target.Local(); !ok || l != localID {
			continue
		}
		payload, err := op.retarget(backend.RemoteID(remote)).Encode()
		if err != nil {
			continue
		}
		if err := e.store.UpdateOpPayload(ctx, e.account, q.Seq, payload); err != nil {
			e.log.Warn("failed to persist id resolution for op %d: %v", q.Seq, err)
		}
	}
}

// directRoute reports whether a new mutation may call the server
// directly. While a flush is in flight, mutations enqueue instead so
// they cannot overtake queued operations.
func (e *Engine) directRoute() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.online && e.state == StateSynced
}

// degrade switches mutation routing to the offline path after a
// transient failure; the experience is uniform regardless of why the
// server was unreachable.
func (e *Engine) degrade(err error) {
	e.log.Debug("server call failed, queueing instead: %v", err)
	e.mu.Lock()
	if e.state == StateSynced {
		e.state = StateOffline
	}
	e.mu.Unlock()
}

func (e *Engine) enqueue(ctx context.Context, op Op) error {
	payload, err := op.Encode()
	if err != nil {
		return err
	}
	return e.store.AppendOp(ctx, e.account, op.ID, payload)
}

// flushSafetyNet retries the queue after a successful enqueue while the
// client is nominally online.
func (e *Engine) flushSafetyNet(ctx context.Context) {
	e.mu.Lock()
	online := e.online
	e.mu.Unlock()
	if !online {
		return
	}
	if err := e.Flush(ctx); err != nil {
		e.log.Debug("safety-net flush failed: %v", err)
	}
}

func (e *Engine) appendLocal(task backend.Task) {
	e.mu.Lock()
	e.tasks = append(e.tasks, task)
	backend.SortTasks(e.tasks)
	e.mu.Unlock()
}

func (e *Engine) applyLocal(id backend.ID, patch backend.Patch) (backend.Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.tasks {
		if e.tasks[i].ID == id {
			patch.Apply(&e.tasks[i])
			task := e.tasks[i]
			backend.SortTasks(e.tasks)
			return task, true
		}
	}
	return backend.Task{}, false
}

func (e *Engine) removeLocal(id backend.ID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.tasks {
		if e.tasks[i].ID == id {
			e.tasks = append(e.tasks[:i], e.tasks[i+1:]...)
			return true
		}
	}
	return false
}

func (e *Engine) resolveLocalTask(localID string, remote int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.tasks {
		if l, ok := e.tasks[i].ID.Local(); ok && l == localID {
			e.tasks[i].ID = backend.RemoteID(remote)
			return
		}
	}
}

// writeCache snapshots the in-memory list into the local cache.
func (e *Engine) writeCache(ctx context.Context) {
	e.mu.Lock()
	tasks := make([]backend.Task, len(e.tasks))
	copy(tasks, e.tasks)
	e.mu.Unlock()
	if err := e.store.SetTaskCache(ctx, e.account, tasks); err != nil {
		e.log.Warn("failed to write task cache: %v", err)
	}
}
