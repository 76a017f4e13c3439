package sync

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Monitor tracks the online/offline state of the backend link. It is the
// sole writer of the offline flag; the network-status collaborator feeds it
// through SetOfflineStatus, or RunProbe derives it from periodic health
// checks.
type Monitor struct {
	mu      sync.RWMutex
	offline bool
	subs    []chan bool
}

// NewMonitor starts in the given state. Clients usually begin offline and
// flip online after the first successful probe.
func NewMonitor(offline bool) *Monitor {
	return &Monitor{offline: offline}
}

// Offline reports the current reading.
func (m *Monitor) Offline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.offline
}

// SetOfflineStatus records a report from the network-status collaborator.
// Subscribers are notified only on transitions.
func (m *Monitor) SetOfflineStatus(offline bool) {
	m.mu.Lock()
	if m.offline == offline {
		m.mu.Unlock()
		return
	}
	m.offline = offline
	subs := make([]chan bool, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	slog.Info("connectivity changed", "offline", offline)
	for _, ch := range subs {
		select {
		case ch <- offline:
		default:
			// subscriber is behind; it will read the latest state anyway
		}
	}
}

// Subscribe returns a channel receiving the new offline value on every
// transition.
func (m *Monitor) Subscribe() <-chan bool {
	ch := make(chan bool, 4)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// RunProbe drives the monitor from a health check until ctx is done. Any
// probe error reads as offline.
func (m *Monitor) RunProbe(ctx context.Context, probe func(context.Context) error, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	check := func() {
		probeCtx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		m.SetOfflineStatus(probe(probeCtx) != nil)
	}

	check()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}
