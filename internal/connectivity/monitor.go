// Package connectivity turns raw server reachability into the online
// and offline transitions that drive sync routing. Reachability is
// probed with a cheap health-check request; a breaker keeps a dead
// server from being hammered at the probe rate.
package connectivity

import (
	"context"
	"sync"
	"time"

	"dayplan/internal/utils"
)

// DefaultProbeInterval is how often the monitor checks reachability.
const DefaultProbeInterval = 15 * time.Second

// DefaultProbeTimeout bounds a single reachability probe.
const DefaultProbeTimeout = 5 * time.Second

// Pinger is the reachability probe. A nil error means the server
// answered; any error means unreachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to the Pinger interface.
type PingFunc func(ctx context.Context) error

// Ping implements Pinger.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Config holds monitor settings. Zero values fall back to defaults.
type Config struct {
	ProbeInterval    time.Duration
	ProbeTimeout     time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

func (c Config) withDefaults() Config {
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = DefaultProbeInterval
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = DefaultBreakerThreshold
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = DefaultBreakerCooldown
	}
	return c
}

// Monitor probes a server periodically and reports transitions. The
// callback fires only when the observed state changes, never on every
// probe, so it is safe to hang expensive work (a queue flush) on it.
type Monitor struct {
	cfg     Config
	pinger  Pinger
	breaker *Breaker
	log     *utils.Logger

	mu       sync.Mutex
	online   bool
	known    bool // false until the first probe completes
	onChange func(online bool)
}

// NewMonitor creates a monitor over the given probe.
func NewMonitor(pinger Pinger, cfg Config) *Monitor {
	cfg = cfg.withDefaults()
	return &Monitor{
		cfg:     cfg,
		pinger:  pinger,
		breaker: NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		log:     utils.GetLogger(),
	}
}

// OnChange registers the transition callback. Must be called before
// Run; the callback runs on the monitor goroutine.
func (m *Monitor) OnChange(fn func(online bool)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Online returns the last observed state. Before the first probe it
// returns false.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Run probes until the context is canceled. The first probe runs
// immediately so callers get an initial state without waiting a full
// interval.
func (m *Monitor) Run(ctx context.Context) {
	m.Check(ctx)

	ticker := time.NewTicker(m.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check runs one probe now and returns the resulting state. While the
// breaker is open the probe is skipped and the last state stands.
func (m *Monitor) Check(ctx context.Context) bool {
	if !m.breaker.Allow() {
		return m.Online()
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	err := m.pinger.Ping(probeCtx)
	cancel()

	online := err == nil
	if online {
		m.breaker.RecordSuccess()
	} else {
		m.breaker.RecordFailure()
		m.log.Debug("reachability probe failed: %v", err)
	}

	m.mu.Lock()
	changed := !m.known || m.online != online
	m.online = online
	m.known = true
	fn := m.onChange
	m.mu.Unlock()

	if changed {
		if online {
			m.log.Info("server reachable")
		} else {
			m.log.Info("server unreachable, working offline")
		}
		if fn != nil {
			fn(online)
		}
	}
	return online
}
