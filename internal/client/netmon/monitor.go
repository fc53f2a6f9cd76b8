// Package netmon observes server reachability for the offline-first client.
//
// The monitor probes the server on a fixed interval and keeps a single
// boolean. Consumers either read IsOnline before attempting network work, or
// subscribe to Events to react to transitions. The offline to online edge is
// what triggers the pending-sync drains.
package netmon

import (
	"context"
	"sync"
	"time"

	"github.com/daybook-app/daybook/internal/logging"
)

const probeTimeout = 3 * time.Second

// Pinger is the probe used to decide reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Monitor struct {
	pinger   Pinger
	interval time.Duration
	log      logging.Logger

	mu     sync.Mutex
	online bool
	known  bool
	subs   []chan bool
}

func New(p Pinger, interval time.Duration, log logging.Logger) *Monitor {
	return &Monitor{
		pinger:   p,
		interval: interval,
		log:      log.With("module", "netmon"),
	}
}

// IsOnline reports the last observed connectivity state. It is false until
// the first successful probe.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Events returns a channel that receives the new state on every transition.
// Each call registers an independent subscriber. Sends never block: a
// subscriber that is not draining misses intermediate flips but always
// observes the latest state with IsOnline.
func (m *Monitor) Events() <-chan bool {
	ch := make(chan bool, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// Run probes until ctx is cancelled. In-flight operations elsewhere are never
// cancelled on loss of connectivity; they fail on their own and fall back to
// pending state.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.probe(ctx)
	for {
		select {
		case <-ticker.C:
			m.probe(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	err := m.pinger.Ping(pctx)
	cancel()
	m.set(ctx, err == nil)
}

func (m *Monitor) set(ctx context.Context, online bool) {
	m.mu.Lock()
	if m.known && m.online == online {
		m.mu.Unlock()
		return
	}
	m.known = true
	m.online = online
	subs := make([]chan bool, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	if online {
		m.log.Info(ctx, "connectivity restored")
	} else {
		m.log.Info(ctx, "connectivity lost")
	}

	for _, ch := range subs {
		select {
		case ch <- online:
		default:
			// replace a stale undelivered transition with the current one
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- online:
			default:
			}
		}
	}
}
