// Package netmon maintains the current network state and notifies
// listeners on every transition.
package netmon

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"hitch/internal/models"
)

const DefaultInterval = 15 * time.Second

// ProbeFunc measures connectivity. It must map its own failure to the
// offline state rather than report anything stale or "unknown".
type ProbeFunc func(ctx context.Context) models.NetworkState

// Listener is invoked synchronously on every state transition.
// Listeners must not block: a slow listener delays the ones after it.
type Listener func(state models.NetworkState)

type Monitor struct {
	probe    ProbeFunc
	interval time.Duration

	mu        sync.RWMutex
	state     models.NetworkState
	listeners map[string]Listener
	order     []string

	cancel context.CancelFunc
	done   chan struct{}
}

func New(probe ProbeFunc, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		probe:     probe,
		interval:  interval,
		state:     models.NetworkState{Quality: models.QualityOffline},
		listeners: make(map[string]Listener),
	}
}

// Start probes immediately and then on a fixed interval until the context
// is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	m.setState(m.probe(ctx))

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.setState(m.probe(ctx))
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

// Refresh runs one probe out of band and applies the result.
func (m *Monitor) Refresh(ctx context.Context) models.NetworkState {
	state := m.probe(ctx)
	m.setState(state)
	return state
}

func (m *Monitor) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.IsConnected
}

func (m *Monitor) State() models.NetworkState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// AddListener registers a transition callback and returns its id.
func (m *Monitor) AddListener(l Listener) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.listeners[id] = l
	m.order = append(m.order, id)
	return id
}

func (m *Monitor) RemoveListener(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners, id)
	for i, lid := range m.order {
		if lid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *Monitor) setState(state models.NetworkState) {
	m.mu.Lock()
	if state == m.state {
		m.mu.Unlock()
		return
	}
	m.state = state

	// Snapshot under the lock, notify outside it so a listener can call
	// back into the monitor. Registration order is preserved.
	notify := make([]Listener, 0, len(m.order))
	for _, id := range m.order {
		if l, ok := m.listeners[id]; ok {
			notify = append(notify, l)
		}
	}
	m.mu.Unlock()

	for _, l := range notify {
		l(state)
	}
}

// HTTPProbe reports reachability of the given URL, classifying quality by
// round-trip time. Any probe error degrades to offline.
func HTTPProbe(url string, client *http.Client) ProbeFunc {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return func(ctx context.Context) models.NetworkState {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return models.NetworkState{Quality: models.QualityOffline}
		}

		start := time.Now()
		resp, err := client.Do(req)
		if err != nil {
			return models.NetworkState{Quality: models.QualityOffline}
		}
		_ = resp.Body.Close()
		elapsed := time.Since(start)

		if resp.StatusCode >= 500 {
			// The link is up but the API is not usable.
			return models.NetworkState{IsConnected: true, Quality: models.QualityPoor}
		}

		state := models.NetworkState{IsConnected: true, IsReachable: true}
		switch {
		case elapsed < 200*time.Millisecond:
			state.Quality = models.QualityGood
		case elapsed < 600*time.Millisecond:
			state.Quality = models.QualityFair
		default:
			state.Quality = models.QualityPoor
		}
		return state
	}
}
