// Package push delivers web-push notifications to users with no live
// connection.
package push

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"hitch/internal/storage"
)

type Config struct {
	Subscriber      string // contact mailto for the push service
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	TTL             int
}

// Enabled reports whether the VAPID key pair is configured. Without it the
// service silently drops sends so offline delivery degrades, not crashes.
func (c Config) Enabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

type Subscription struct {
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

// Notification is the payload delivered to the device.
type Notification struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Message string `json:"message"`
	RoomID  string `json:"roomId,omitempty"`
}

type Service struct {
	cfg   Config
	store *storage.BboltStorage
}

func NewService(cfg Config, store *storage.BboltStorage) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = 60
	}
	return &Service{cfg: cfg, store: store}
}

// Subscribe persists a device subscription for a user.
func (s *Service) Subscribe(userID string, sub Subscription) error {
	if sub.Endpoint == "" {
		return fmt.Errorf("subscription missing endpoint")
	}
	return s.store.UpsertSubscription(storage.DBPushSubscription{
		UserID:   userID,
		Endpoint: sub.Endpoint,
		P256dh:   sub.P256dh,
		Auth:     sub.Auth,
	})
}

// Send posts the notification to every subscription of the user. Gone
// endpoints are pruned; other delivery errors are logged and skipped so
// one dead device never blocks the rest.
func (s *Service) Send(userID string, n Notification) error {
	if !s.cfg.Enabled() {
		return nil
	}

	subs, err := s.store.ListSubscriptions(userID)
	if err != nil {
		return fmt.Errorf("failed to list subscriptions: %w", err)
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	for _, dbSub := range subs {
		sub := &webpush.Subscription{
			Endpoint: dbSub.Endpoint,
			Keys: webpush.Keys{
				P256dh: dbSub.P256dh,
				Auth:   dbSub.Auth,
			},
		}
		resp, err := webpush.SendNotification(payload, sub, &webpush.Options{
			Subscriber:      s.cfg.Subscriber,
			VAPIDPublicKey:  s.cfg.VAPIDPublicKey,
			VAPIDPrivateKey: s.cfg.VAPIDPrivateKey,
			TTL:             s.cfg.TTL,
		})
		if err != nil {
			slog.Warn("push delivery failed", "user_id", userID, "error", err)
			continue
		}
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			if err := s.store.DeleteSubscription(userID, dbSub.Endpoint); err != nil {
				slog.Warn("failed to prune dead subscription", "user_id", userID, "error", err)
			}
		}
		_ = resp.Body.Close()
	}
	return nil
}
