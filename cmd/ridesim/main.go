// ridesim is the client-side wiring demo: it builds the offline queue,
// network monitor and sync engine exactly the way a mobile shell would,
// enqueues a mixed-priority workload against a running hitch server and
// reports what the engine does with it.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"hitch/internal/auth"
	"hitch/internal/models"
	"hitch/internal/netmon"
	"hitch/internal/queue"
	"hitch/internal/syncer"
)

func run(ctx context.Context) error {
	baseURL := flag.String("server", "http://localhost:8080", "hitch server base URL")
	username := flag.String("username", "", "account username")
	password := flag.String("password", "", "account password")
	dbPath := flag.String("queue", "", "queue database file (default: temp)")
	flag.Parse()

	if *username == "" || *password == "" {
		return errors.New("-username and -password are required")
	}

	token, userID, err := login(ctx, *baseURL, *username, *password)
	if err != nil {
		return err
	}
	log.Printf("Logged in as %s (%s)", *username, userID)

	path := *dbPath
	if path == "" {
		path = filepath.Join(os.TempDir(), "ridesim-queue.db")
	}
	q, err := queue.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = q.Close() }()

	client := &http.Client{Timeout: 5 * time.Second}
	monitor := netmon.New(netmon.HTTPProbe(*baseURL+"/healthz", client), 5*time.Second)

	engine := syncer.New(q, monitor, syncer.NewHTTPApplier(*baseURL, token), syncer.Config{})
	engine.SetHooks(models.EntityBooking, syncer.Hooks{
		OnSynced: func(item models.SyncItem) {
			log.Printf("booking action synced: %s %s", item.Method, item.Endpoint)
		},
		OnFailed: func(item models.SyncItem, err error) {
			log.Printf("booking action failed permanently: %s: %v", item.Endpoint, err)
		},
	})
	listenerID := engine.AddListener(func(res syncer.Result) {
		log.Printf("drain cycle: synced=%d failed=%d", res.Synced, res.Failed)
	})
	defer engine.RemoveListener(listenerID)

	monitor.Start(ctx)
	defer monitor.Stop()
	engine.Start(ctx)
	defer engine.Stop()

	if err := enqueueWorkload(engine, userID); err != nil {
		return err
	}
	logStats(engine)

	// Let the engine do its thing until interrupted.
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			logStats(engine)
		case <-ctx.Done():
			logStats(engine)
			return nil
		}
	}
}

// enqueueWorkload queues one action per priority class, deliberately out
// of priority order so the drain order is visible in the server logs.
func enqueueWorkload(engine *syncer.Engine, userID string) error {
	type action struct {
		endpoint string
		method   string
		entity   models.EntityType
		priority models.Priority
		payload  any
	}

	bookingID := "sim-" + userID
	actions := []action{
		{"/api/locations", "create", models.EntityLocation, models.PriorityLow, map[string]any{
			"rideId": bookingID, "latitude": 52.5200, "longitude": 13.4050,
		}},
		{"/api/messages", "create", models.EntityMessage, models.PriorityMedium, map[string]any{
			"rideId": bookingID, "message": "Heading to the pickup point",
		}},
		{"/api/bookings", "create", models.EntityBooking, models.PriorityCritical, map[string]any{
			"id": bookingID, "kind": "ride",
		}},
		{"/api/bookings/" + bookingID + "/status", "update", models.EntityBooking, models.PriorityHigh, map[string]any{
			"status": "matched",
		}},
	}

	for _, a := range actions {
		payload, err := json.Marshal(a.payload)
		if err != nil {
			return err
		}
		item, err := engine.EnqueueAction(models.SyncItem{
			Endpoint:   a.endpoint,
			Method:     a.method,
			Payload:    payload,
			EntityType: a.entity,
			EntityID:   bookingID,
			Priority:   a.priority,
		})
		if err != nil {
			return err
		}
		log.Printf("queued %s action seq=%d priority=%s", a.endpoint, item.Seq, item.Priority)
	}
	return nil
}

func logStats(engine *syncer.Engine) {
	stats := engine.Stats()
	log.Printf("queue=%d online=%t syncing=%t quality=%s",
		stats.QueueSize, stats.IsOnline, stats.IsSyncing, stats.NetworkQuality)
}

func login(ctx context.Context, baseURL, username, password string) (token, userID string, err error) {
	body, err := json.Marshal(auth.LoginRequest{Username: username, Password: password})
	if err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/login", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", "", err
	}
	defer func() { _ = resp.Body.Close() }()

	var loginResp auth.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return "", "", err
	}
	if !loginResp.Success {
		return "", "", errors.New("login rejected")
	}
	return loginResp.Token, loginResp.UserID, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("ridesim error: %v", err)
	}
}
