package trips

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"hitch/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "trips_test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	store, err := Open(context.Background(), filepath.Join(tmpDir, "trips.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_RecordAndHistory(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	scans := []models.PackageEvent{
		{TrackingNumber: "PKG001", Status: "picked_up", Location: "Depot A", CreatedAt: 100},
		{TrackingNumber: "PKG001", Status: "in_transit", Location: "Hub", CreatedAt: 200},
		{TrackingNumber: "PKG001", Status: "delivered", Location: "Door", Note: "left with neighbor", CreatedAt: 300},
	}
	for _, e := range scans {
		if err := store.RecordEvent(ctx, e); err != nil {
			t.Fatalf("RecordEvent failed: %v", err)
		}
	}

	history, err := store.History(ctx, "PKG001")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 events, got %d", len(history))
	}
	for i, want := range []string{"picked_up", "in_transit", "delivered"} {
		if history[i].Status != want {
			t.Errorf("event %d: expected %s, got %s", i, want, history[i].Status)
		}
	}
	if history[2].Note != "left with neighbor" {
		t.Errorf("note lost: %+v", history[2])
	}
}

func TestStore_Latest(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.RecordEvent(ctx, models.PackageEvent{
		TrackingNumber: "PKG002", Status: "picked_up", CreatedAt: 100,
	}); err != nil {
		t.Fatal(err)
	}

	latest, err := store.Latest(ctx, "PKG002")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest.Status != "picked_up" || len(latest.Events) != 1 {
		t.Errorf("unexpected latest: %+v", latest)
	}

	// A new scan must invalidate the cached status.
	if err := store.RecordEvent(ctx, models.PackageEvent{
		TrackingNumber: "PKG002", Status: "in_transit", CreatedAt: 200,
	}); err != nil {
		t.Fatal(err)
	}
	latest, err = store.Latest(ctx, "PKG002")
	if err != nil {
		t.Fatalf("Latest after new scan failed: %v", err)
	}
	if latest.Status != "in_transit" || len(latest.Events) != 2 {
		t.Errorf("stale status after new scan: %+v", latest)
	}
}

func TestStore_UnknownPackage(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Latest(context.Background(), "NOPE"); !errors.Is(err, ErrUnknownPackage) {
		t.Errorf("expected ErrUnknownPackage, got %v", err)
	}
}
