package syncer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"hitch/internal/models"
	"hitch/internal/netmon"
	"hitch/internal/queue"
)

// fakeApplier records the order of replayed endpoints and fails the ones
// the test marks as failing.
type fakeApplier struct {
	mu      sync.Mutex
	applied []string
	failing map[string]error
	block   chan struct{}
}

func newFakeApplier() *fakeApplier {
	return &fakeApplier{failing: make(map[string]error)}
}

func (a *fakeApplier) Apply(ctx context.Context, item models.SyncItem) error {
	if a.block != nil {
		<-a.block
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applied = append(a.applied, item.Endpoint)
	if err, ok := a.failing[item.Endpoint]; ok {
		return err
	}
	return nil
}

func (a *fakeApplier) appliedOrder() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.applied...)
}

// applierFunc adapts a function to the Applier interface.
type applierFunc func(ctx context.Context, item models.SyncItem) error

func (f applierFunc) Apply(ctx context.Context, item models.SyncItem) error { return f(ctx, item) }

type switchProbe struct {
	mu     sync.Mutex
	online bool
}

func (p *switchProbe) set(online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online = online
}

func (p *switchProbe) probe(ctx context.Context) models.NetworkState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.online {
		return models.NetworkState{Quality: models.QualityOffline}
	}
	return models.NetworkState{IsConnected: true, IsReachable: true, Quality: models.QualityGood}
}

func newTestEngine(t *testing.T, applier Applier, cfg Config) (*Engine, *queue.Queue, *switchProbe, *netmon.Monitor) {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "syncer_test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	q, err := queue.Open(filepath.Join(tmpDir, "actions.db"))
	if err != nil {
		t.Fatalf("failed to open queue: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })

	probe := &switchProbe{online: true}
	monitor := netmon.New(probe.probe, time.Hour)
	monitor.Refresh(context.Background())

	return New(q, monitor, applier, cfg), q, probe, monitor
}

func TestDrain_PriorityOrder(t *testing.T) {
	applier := newFakeApplier()
	engine, q, probe, monitor := newTestEngine(t, applier, Config{BatchDelay: time.Millisecond})

	// Scenario A: enqueue low, critical, medium while offline.
	probe.set(false)
	monitor.Refresh(context.Background())
	for _, it := range []models.SyncItem{
		{Endpoint: "/low", Method: "POST", Priority: models.PriorityLow},
		{Endpoint: "/critical", Method: "POST", Priority: models.PriorityCritical},
		{Endpoint: "/medium", Method: "POST", Priority: models.PriorityMedium},
	} {
		if _, err := q.Enqueue(it); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	// Offline drain must not touch anything.
	res := engine.Drain(context.Background())
	if res.Synced != 0 || res.Failed != 0 {
		t.Fatalf("offline drain did work: %+v", res)
	}

	// Back online: remote-call order must be critical, medium, low.
	probe.set(true)
	monitor.Refresh(context.Background())
	res = engine.Drain(context.Background())
	if res.Synced != 3 {
		t.Fatalf("expected 3 synced, got %+v", res)
	}

	want := []string{"/critical", "/medium", "/low"}
	got := applier.appliedOrder()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	n, _ := q.Len()
	if n != 0 {
		t.Errorf("expected empty queue after drain, got %d", n)
	}
}

func TestDrain_AtMostOneCycle(t *testing.T) {
	applier := newFakeApplier()
	applier.block = make(chan struct{})
	engine, q, _, _ := newTestEngine(t, applier, Config{BatchDelay: time.Millisecond})

	if _, err := q.Enqueue(models.SyncItem{Endpoint: "/a", Method: "POST"}); err != nil {
		t.Fatal(err)
	}

	firstDone := make(chan Result, 1)
	go func() {
		firstDone <- engine.Drain(context.Background())
	}()

	// Wait until the first drain is inside the applier.
	deadline := time.After(time.Second)
	for !engine.Stats().IsSyncing {
		select {
		case <-deadline:
			t.Fatal("first drain never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	// Second trigger while the first cycle runs must be a no-op.
	second := engine.Drain(context.Background())
	if second.Synced != 0 || second.Failed != 0 {
		t.Errorf("concurrent drain did work: %+v", second)
	}

	close(applier.block)
	select {
	case first := <-firstDone:
		if first.Synced != 1 {
			t.Errorf("expected first drain to sync 1 item, got %+v", first)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for first drain")
	}

	if len(applier.appliedOrder()) != 1 {
		t.Errorf("item replayed %d times, want 1", len(applier.appliedOrder()))
	}
}

func TestDrain_RetryTermination(t *testing.T) {
	applier := newFakeApplier()
	applier.failing["/doomed"] = errors.New("boom")
	engine, q, _, _ := newTestEngine(t, applier, Config{BatchDelay: time.Millisecond})

	var failedMu sync.Mutex
	var failed []models.SyncItem
	engine.SetHooks(models.EntityMessage, Hooks{
		OnFailed: func(item models.SyncItem, err error) {
			failedMu.Lock()
			failed = append(failed, item)
			failedMu.Unlock()
		},
	})

	if _, err := q.Enqueue(models.SyncItem{
		Endpoint:   "/doomed",
		Method:     "POST",
		EntityType: models.EntityMessage,
		MaxRetries: 3,
	}); err != nil {
		t.Fatal(err)
	}

	// Scenario C: three drain cycles, then the item is gone for good.
	for cycle := 1; cycle <= 3; cycle++ {
		res := engine.Drain(context.Background())
		if res.Failed != 1 {
			t.Fatalf("cycle %d: expected 1 failed, got %+v", cycle, res)
		}
	}

	items, err := q.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Errorf("exhausted item still queued: %+v", items)
	}
	if len(failed) != 1 {
		t.Fatalf("expected exactly one terminal failure notification, got %d", len(failed))
	}
	if failed[0].RetryCount != 3 {
		t.Errorf("expected retryCount 3 at exhaustion, got %d", failed[0].RetryCount)
	}

	// A fourth cycle must not resurrect it.
	res := engine.Drain(context.Background())
	if res.Failed != 0 || res.Synced != 0 {
		t.Errorf("drained a resurrected item: %+v", res)
	}
	if got := len(applier.appliedOrder()); got != 3 {
		t.Errorf("item attempted %d times, want exactly 3", got)
	}
}

func TestDrain_ConnectivityLossBetweenBatches(t *testing.T) {
	applier := newFakeApplier()
	engine, q, probe, monitor := newTestEngine(t, applier, Config{BatchSize: 2, BatchDelay: time.Millisecond})

	for i := 0; i < 6; i++ {
		if _, err := q.Enqueue(models.SyncItem{Endpoint: "/item", Method: "POST"}); err != nil {
			t.Fatal(err)
		}
	}

	// Drop the link once the first batch has been replayed.
	dropper := applierFunc(func(ctx context.Context, item models.SyncItem) error {
		err := applier.Apply(ctx, item)
		if len(applier.appliedOrder()) == 2 {
			probe.set(false)
			monitor.Refresh(ctx)
		}
		return err
	})
	engine.applier = dropper

	res := engine.Drain(context.Background())

	if res.Synced != 2 {
		t.Fatalf("expected the cycle to stop after the first batch, synced %d", res.Synced)
	}
	if res.Failed != 0 {
		t.Errorf("unattempted remainder reported as failures: %+v", res)
	}

	n, _ := q.Len()
	if n != 4 {
		t.Errorf("remainder not left queued untouched: queued=%d", n)
	}
}

func TestEngine_CriticalFastPath(t *testing.T) {
	applier := newFakeApplier()
	engine, _, _, _ := newTestEngine(t, applier, Config{BatchDelay: time.Millisecond, Interval: time.Hour})

	resCh := make(chan Result, 1)
	engine.AddListener(func(res Result) {
		select {
		case resCh <- res:
		default:
		}
	})

	engine.Start(context.Background())
	defer engine.Stop()

	if _, err := engine.EnqueueAction(models.SyncItem{
		Endpoint: "/sos",
		Method:   "POST",
		Priority: models.PriorityCritical,
	}); err != nil {
		t.Fatal(err)
	}

	select {
	case res := <-resCh:
		if res.Synced != 1 {
			t.Errorf("expected critical item synced immediately, got %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("critical enqueue did not trigger a fast-path drain")
	}
}

func TestEngine_DrainOnReconnect(t *testing.T) {
	applier := newFakeApplier()
	engine, _, probe, monitor := newTestEngine(t, applier, Config{BatchDelay: time.Millisecond, Interval: time.Hour})

	probe.set(false)
	monitor.Refresh(context.Background())

	resCh := make(chan Result, 1)
	engine.AddListener(func(res Result) {
		select {
		case resCh <- res:
		default:
		}
	})

	engine.Start(context.Background())
	defer engine.Stop()

	if _, err := engine.EnqueueAction(models.SyncItem{Endpoint: "/queued-offline", Method: "POST"}); err != nil {
		t.Fatal(err)
	}

	probe.set(true)
	monitor.Refresh(context.Background())

	select {
	case res := <-resCh:
		if res.Synced != 1 {
			t.Errorf("expected reconnect drain to sync 1 item, got %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect did not trigger a drain")
	}
}

func TestEngine_SyncedHookAndStats(t *testing.T) {
	applier := newFakeApplier()
	engine, q, _, _ := newTestEngine(t, applier, Config{BatchDelay: time.Millisecond})

	var synced []models.SyncItem
	engine.SetHooks(models.EntityBooking, Hooks{
		OnSynced: func(item models.SyncItem) { synced = append(synced, item) },
	})

	if _, err := q.Enqueue(models.SyncItem{
		Endpoint:   "/api/bookings",
		Method:     "POST",
		EntityType: models.EntityBooking,
	}); err != nil {
		t.Fatal(err)
	}

	stats := engine.Stats()
	if stats.QueueSize != 1 || !stats.IsOnline || stats.IsSyncing {
		t.Errorf("unexpected pre-drain stats: %+v", stats)
	}

	engine.Drain(context.Background())

	if len(synced) != 1 {
		t.Fatalf("OnSynced fired %d times, want 1", len(synced))
	}
	stats = engine.Stats()
	if stats.QueueSize != 0 {
		t.Errorf("queue not empty after drain: %+v", stats)
	}
	if stats.NetworkQuality != models.QualityGood {
		t.Errorf("expected good quality, got %s", stats.NetworkQuality)
	}
}
