// Package shutdown coordinates clean teardown of long-running commands.
// Closers registered while the process runs are invoked in LIFO order when
// a termination signal arrives or Trigger is called.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"dayplan/internal/utils"
)

// Closer releases a resource during shutdown. The context is cancelled if
// the shutdown deadline passes.
type Closer func(ctx context.Context) error

type entry struct {
	name string
	fn   Closer
}

// Manager tracks closers and the shutdown trigger.
type Manager struct {
	mu      sync.Mutex
	entries []entry
	log     *utils.Logger

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// NewManager creates a Manager whose Context ends when Trigger is called.
func NewManager() *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		log:    utils.GetLogger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register adds a named closer. Closers run in LIFO order so a resource is
// released before anything it depends on.
func (m *Manager) Register(name string, fn Closer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry{name: name, fn: fn})
}

// Context is cancelled when shutdown begins. Long-running loops should
// select on it.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Trigger starts shutdown. Safe to call more than once.
func (m *Manager) Trigger() {
	m.once.Do(m.cancel)
}

// Triggered reports whether shutdown has begun.
func (m *Manager) Triggered() bool {
	select {
	case <-m.ctx.Done():
		return true
	default:
		return false
	}
}

// HandleSignals triggers shutdown on SIGINT or SIGTERM. It returns a stop
// function that releases the signal handler.
func (m *Manager) HandleSignals() func() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-ch:
			m.log.Info("received %s, shutting down", sig)
			m.Trigger()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}
}

// Close runs the registered closers in LIFO order. A closer failure is
// logged and the remaining closers still run. Returns ctx.Err() if the
// deadline passes before all closers finish.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	entries := make([]entry, len(m.entries))
	copy(entries, m.entries)
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := len(entries) - 1; i >= 0; i-- {
			if err := entries[i].fn(ctx); err != nil {
				m.log.Warn("shutdown: %s: %v", entries[i].name, err)
			}
		}
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
