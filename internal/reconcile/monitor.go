package reconcile

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/hpungsan/storysync/internal/fetch"
	"github.com/hpungsan/storysync/internal/logging"
)

// Monitor tracks connectivity to the story API by probing it. Any HTTP answer counts
// as online.
type Monitor struct {
	net      fetch.Fetcher
	probeURL string
	interval time.Duration
	log      logging.Logger

	mu        sync.Mutex
	online    bool
	listeners []func(context.Context)
}

// NewMonitor returns a Monitor that starts out offline, so the first successful probe
// counts as a restore.
func NewMonitor(net fetch.Fetcher, probeURL string, interval time.Duration, log logging.Logger) *Monitor {
	if log == nil {
		log = logging.Nop()
	}
	return &Monitor{net: net, probeURL: probeURL, interval: interval, log: log}
}

// OnOnline registers fn to run on every offline→online transition.
func (m *Monitor) OnOnline(fn func(context.Context)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Online reports the last observed state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Check probes once and records the result.
func (m *Monitor) Check(ctx context.Context) bool {
	_, err := m.net.Fetch(ctx, &fetch.Request{Method: http.MethodHead, URL: m.probeURL})
	online := err == nil
	m.Set(ctx, online)
	return online
}

// Set records the connectivity state and fires listeners on a restore.
func (m *Monitor) Set(ctx context.Context, online bool) {
	m.mu.Lock()
	restored := online && !m.online
	changed := online != m.online
	m.online = online
	var listeners []func(context.Context)
	if restored {
		listeners = append(listeners, m.listeners...)
	}
	m.mu.Unlock()

	if changed {
		m.log.Info(ctx, "connectivity changed", "online", online)
	}
	for _, fn := range listeners {
		fn(ctx)
	}
}

// Run probes on the configured interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.Check(ctx)
	if m.interval <= 0 {
		return
	}
	ticker := time.NewTicker(m.interval)
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
