// Package connectivity tracks whether the host is online and notifies
// listeners on every transition.
package connectivity

import (
	"sync"

	"go.uber.org/zap"

	"github.com/hpungsan/snapfood/internal/logging"
)

// Listener receives the new state after a transition.
type Listener func(online bool)

// Monitor holds the current online/offline state. It is event driven: the
// host signal calls Set, and listeners see exactly one call per change.
//
// Listeners run synchronously inside Set, one transition at a time. A
// listener must not call Set or its own unsubscribe func.
type Monitor struct {
	mu     sync.Mutex
	online bool
	subs   []*subscription

	// dispatchMu keeps transitions and their notifications in order.
	dispatchMu sync.Mutex

	log *zap.Logger
}

type subscription struct {
	mu      sync.Mutex
	fn      Listener
	removed bool
}

// NewMonitor creates a monitor in the given initial state.
func NewMonitor(online bool, log *zap.Logger) *Monitor {
	return &Monitor{
		online: online,
		log:    logging.OrNop(log).Named("connectivity"),
	}
}

// Online returns the current state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Set records a host observation. Repeating the current state is ignored.
// It reports whether a transition happened.
func (m *Monitor) Set(online bool) bool {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online
	subs := append([]*subscription(nil), m.subs...)
	m.mu.Unlock()

	m.log.Info("connectivity changed", zap.Bool("online", online), zap.Int("listeners", len(subs)))

	for _, s := range subs {
		s.mu.Lock()
		if !s.removed {
			s.fn(online)
		}
		s.mu.Unlock()
	}
	return true
}

// Subscribe registers fn for future transitions. The returned func is
// idempotent; once it returns, fn is not running and will not be called
// again.
func (m *Monitor) Subscribe(fn Listener) (unsubscribe func()) {
	s := &subscription{fn: fn}

	m.mu.Lock()
	m.subs = append(m.subs, s)
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		for i, sub := range m.subs {
			if sub == s {
				m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
				break
			}
		}
		m.mu.Unlock()

		// Waits out an in-flight call.
		s.mu.Lock()
		s.removed = true
		s.mu.Unlock()
	}
}
