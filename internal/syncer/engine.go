// Package syncer drains the durable action queue whenever the network
// allows, in priority order, without overwhelming the backend.
package syncer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"hitch/internal/models"
	"hitch/internal/netmon"
	"hitch/internal/queue"
)

const (
	DefaultBatchSize  = 5
	DefaultBatchDelay = 500 * time.Millisecond
	DefaultInterval   = 30 * time.Second
)

// Hooks are the entity-specific reconciliation callbacks. OnSynced runs
// after a successful replay, OnFailed exactly once when an item exhausts
// its retry budget.
type Hooks struct {
	OnSynced func(item models.SyncItem)
	OnFailed func(item models.SyncItem, err error)
}

// Failure pairs an item with the error of its last attempt.
type Failure struct {
	Item models.SyncItem
	Err  error
}

// Result summarizes one drain cycle. Items left untouched because
// connectivity dropped mid-drain appear in neither count.
type Result struct {
	Synced   int
	Failed   int
	Failures []Failure
}

// Stats is a point-in-time view of the engine.
type Stats struct {
	QueueSize      int                      `json:"queueSize"`
	IsOnline       bool                     `json:"isOnline"`
	IsSyncing      bool                     `json:"isSyncing"`
	NetworkQuality models.ConnectionQuality `json:"networkQuality"`
}

type Config struct {
	BatchSize  int
	BatchDelay time.Duration
	Interval   time.Duration
}

func (c *Config) withDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchDelay <= 0 {
		c.BatchDelay = DefaultBatchDelay
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
}

type Engine struct {
	queue   *queue.Queue
	monitor *netmon.Monitor
	applier Applier
	cfg     Config

	mu        sync.RWMutex
	hooks     map[models.EntityType]Hooks
	listeners map[string]func(Result)
	order     []string

	syncing   atomic.Bool
	trigger   chan struct{}
	monitorID string
	cancel    context.CancelFunc
}

func New(q *queue.Queue, monitor *netmon.Monitor, applier Applier, cfg Config) *Engine {
	cfg.withDefaults()
	return &Engine{
		queue:     q,
		monitor:   monitor,
		applier:   applier,
		cfg:       cfg,
		hooks:     make(map[models.EntityType]Hooks),
		listeners: make(map[string]func(Result)),
		trigger:   make(chan struct{}, 1),
	}
}

// SetHooks installs the reconciliation callbacks for one entity type.
func (e *Engine) SetHooks(entity models.EntityType, h Hooks) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks[entity] = h
}

// AddListener registers a per-cycle result callback and returns its id.
func (e *Engine) AddListener(fn func(Result)) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := uuid.NewString()
	e.listeners[id] = fn
	e.order = append(e.order, id)
	return id
}

func (e *Engine) RemoveListener(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.listeners, id)
	for i, lid := range e.order {
		if lid == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

// Start hooks the engine to the network monitor and begins the periodic
// drain timer. Triggers arriving while a drain runs are coalesced.
func (e *Engine) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.monitorID = e.monitor.AddListener(func(state models.NetworkState) {
		if state.Online() {
			e.requestDrain()
		}
	})

	go func() {
		ticker := time.NewTicker(e.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if e.monitor.State().Online() {
					e.Drain(context.Background())
				}
			case <-e.trigger:
				e.Drain(context.Background())
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the timer and unhooks the monitor listener. An in-flight
// drain cycle is not aborted; it finishes its current batch and then sees
// no further triggers.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	if e.monitorID != "" {
		e.monitor.RemoveListener(e.monitorID)
		e.monitorID = ""
	}
}

// EnqueueAction persists the action and, for critical items, requests an
// immediate drain instead of waiting for the timer.
func (e *Engine) EnqueueAction(item models.SyncItem) (models.SyncItem, error) {
	stored, err := e.queue.Enqueue(item)
	if err != nil {
		return models.SyncItem{}, err
	}
	if stored.Priority == models.PriorityCritical {
		e.requestDrain()
	}
	return stored, nil
}

func (e *Engine) requestDrain() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Stats returns a point-in-time snapshot.
func (e *Engine) Stats() Stats {
	n, err := e.queue.Len()
	if err != nil {
		slog.Warn("failed to read queue size", "error", err)
	}
	state := e.monitor.State()
	return Stats{
		QueueSize:      n,
		IsOnline:       state.Online(),
		IsSyncing:      e.syncing.Load(),
		NetworkQuality: state.Quality,
	}
}

// Drain runs one cycle: replay every queued item in priority order, in
// fixed-size batches, re-checking connectivity between batches. At most
// one cycle runs at a time; a concurrent call is a no-op.
func (e *Engine) Drain(ctx context.Context) Result {
	var res Result
	if !e.syncing.CompareAndSwap(false, true) {
		return res
	}
	defer e.syncing.Store(false)

	if !e.monitor.State().Online() {
		return res
	}

	items, err := e.queue.List()
	if err != nil {
		slog.Warn("failed to list queue", "error", err)
		return res
	}
	if len(items) == 0 {
		return res
	}

	for start := 0; start < len(items); start += e.cfg.BatchSize {
		if start > 0 {
			select {
			case <-time.After(e.cfg.BatchDelay):
			case <-ctx.Done():
				e.notify(res)
				return res
			}
			// Losing connectivity mid-drain is not an error; the
			// remainder just stays queued for the next cycle.
			if !e.monitor.State().Online() {
				break
			}
		}

		end := min(start+e.cfg.BatchSize, len(items))
		for _, item := range items[start:end] {
			e.applyOne(ctx, item, &res)
		}
	}

	e.notify(res)
	return res
}

func (e *Engine) applyOne(ctx context.Context, item models.SyncItem, res *Result) {
	err := e.applier.Apply(ctx, item)
	if err == nil {
		if rmErr := e.queue.Remove(item.ID); rmErr != nil {
			slog.Warn("failed to remove synced item", "item_id", item.ID, "error", rmErr)
		}
		res.Synced++
		if h := e.hooksFor(item.EntityType); h.OnSynced != nil {
			h.OnSynced(item)
		}
		return
	}

	res.Failed++
	res.Failures = append(res.Failures, Failure{Item: item, Err: err})

	item.RetryCount++
	if item.RetryCount >= item.MaxRetries {
		// Terminal exhaustion: drop the item and report exactly once.
		if rmErr := e.queue.Remove(item.ID); rmErr != nil {
			slog.Warn("failed to remove exhausted item", "item_id", item.ID, "error", rmErr)
		}
		if h := e.hooksFor(item.EntityType); h.OnFailed != nil {
			h.OnFailed(item, err)
		}
		return
	}

	if upErr := e.queue.Update(item); upErr != nil {
		slog.Warn("failed to persist retry count", "item_id", item.ID, "error", upErr)
	}
}

func (e *Engine) hooksFor(entity models.EntityType) Hooks {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.hooks[entity]
}

func (e *Engine) notify(res Result) {
	e.mu.RLock()
	fns := make([]func(Result), 0, len(e.order))
	for _, id := range e.order {
		if fn, ok := e.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	e.mu.RUnlock()

	for _, fn := range fns {
		fn(res)
	}
}
