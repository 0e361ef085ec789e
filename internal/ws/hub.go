package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"hitch/internal/content"
	"hitch/internal/models"
	"hitch/internal/push"
	"hitch/internal/ride"
)

var (
	ErrNotJoined   = errors.New("connection has not joined this room")
	ErrUnknownConn = errors.New("unknown connection")
	ErrBadEvent    = errors.New("event not routable")
	ErrUnknownRide = errors.New("unknown ride")
)

const defaultRecentEvents = 50

// RideStore is the durable side of ride state; the hub itself holds none.
type RideStore interface {
	GetRide(id string) (models.Ride, error)
	UpsertRide(r models.Ride) error
	AppendRideMessage(m models.RideMessage) (models.RideMessage, error)
}

// PackageTracker answers track_package queries.
type PackageTracker interface {
	Latest(ctx context.Context, trackingNumber string) (models.PackageStatusPayload, error)
}

// Notifier reaches users with no live connection.
type Notifier interface {
	Send(userID string, n push.Notification) error
}

// subscriber is one live connection's view inside the hub.
type subscriber struct {
	connID       string
	userID       string
	ch           chan models.ServerEvent
	suppressEcho bool
	rooms        map[string]bool
}

// Options are per-connection receiver options chosen at registration.
type Options struct {
	// SuppressEcho excludes this connection's own events from the room
	// broadcasts it receives back.
	SuppressEcho bool
}

// Hub is the room registry and event router. Subscriber sets are the only
// shared mutable state; one lock protects them all.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*room
	conns map[string]*subscriber

	store     RideStore
	tracker   PackageTracker
	notifier  Notifier
	maxRecent int
	now       func() time.Time
}

func NewHub(store RideStore, tracker PackageTracker, notifier Notifier) *Hub {
	return &Hub{
		rooms:     make(map[string]*room),
		conns:     make(map[string]*subscriber),
		store:     store,
		tracker:   tracker,
		notifier:  notifier,
		maxRecent: defaultRecentEvents,
		now:       time.Now,
	}
}

// Register binds an authenticated user to a new connection id and returns
// the channel the connection's writer drains.
func (h *Hub) Register(userID string, opts Options) (string, chan models.ServerEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	connID := uuid.NewString()
	sub := &subscriber{
		connID:       connID,
		userID:       userID,
		ch:           make(chan models.ServerEvent, 100),
		suppressEcho: opts.SuppressEcho,
		rooms:        make(map[string]bool),
	}
	h.conns[connID] = sub
	return connID, sub.ch
}

// Unregister is the unconditional teardown hook: it runs on every
// disconnect path and unbinds the connection from each room it joined.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.conns[connID]
	if !ok {
		return
	}
	for roomID := range sub.rooms {
		h.leaveLocked(sub, roomID)
	}
	close(sub.ch)
	delete(h.conns, connID)
}

// Join subscribes the connection to a room. Joining twice is a no-op.
// Recent room events are replayed to the joining connection.
func (h *Hub) Join(connID, roomID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.conns[connID]
	if !ok {
		return ErrUnknownConn
	}
	if sub.rooms[roomID] {
		return nil
	}

	r, ok := h.rooms[roomID]
	if !ok {
		r = newRoom(roomID, h.maxRecent)
		h.rooms[roomID] = r
	}
	r.subscribers[connID] = true
	sub.rooms[roomID] = true

	for _, ev := range r.replay() {
		h.deliver(sub, ev)
	}
	return nil
}

// Leave unsubscribes the connection from a room. The room is evicted once
// its subscriber set empties.
func (h *Hub) Leave(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.conns[connID]
	if !ok {
		return
	}
	h.leaveLocked(sub, roomID)
}

func (h *Hub) leaveLocked(sub *subscriber, roomID string) {
	delete(sub.rooms, roomID)
	r, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(r.subscribers, sub.connID)
	if len(r.subscribers) == 0 {
		delete(h.rooms, roomID)
	}
}

// Route validates and dispatches one inbound event. An error is reported
// to the sender only; nothing invalid is ever broadcast.
func (h *Hub) Route(ctx context.Context, connID string, env models.Envelope) error {
	h.mu.RLock()
	sub, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return ErrUnknownConn
	}

	payload, err := env.DecodePayload()
	if err != nil {
		return err
	}

	switch p := payload.(type) {
	case *models.LocationPayload:
		return h.routeLocation(sub, env.RoomID, p)
	case *models.ChatPayload:
		return h.routeChat(sub, p)
	case *models.RideUpdatePayload:
		return h.routeRideUpdate(sub, p)
	case *models.NotificationPayload:
		return h.routeNotification(sub, env.RoomID, p)
	case *models.TrackPackagePayload:
		return h.routeTrackPackage(ctx, sub, p)
	case *models.AuthenticatePayload, *models.JoinRidePayload, *models.LeaveRidePayload:
		// Session control events are the connection's business, not the
		// router's.
		return fmt.Errorf("%w: %s", ErrBadEvent, env.Type)
	}
	return fmt.Errorf("%w: %s", ErrBadEvent, env.Type)
}

func (h *Hub) routeLocation(sub *subscriber, roomID string, p *models.LocationPayload) error {
	if p.UserID == "" {
		p.UserID = sub.userID
	}
	return h.broadcast(sub.connID, roomID, models.ServerEvent{
		Type:      models.ServerEventLiveLocation,
		RoomID:    roomID,
		SenderID:  sub.userID,
		Timestamp: h.now().Unix(),
		Data:      p,
	}, false)
}

// joined reports whether the connection is subscribed to the room. Routes
// that persist before broadcasting must check this first, so a rejected
// event leaves no trace in the store either.
func (h *Hub) joined(sub *subscriber, roomID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return sub.rooms[roomID]
}

func (h *Hub) routeChat(sub *subscriber, p *models.ChatPayload) error {
	if !h.joined(sub, p.RideID) {
		return fmt.Errorf("%w: %s", ErrNotJoined, p.RideID)
	}

	text := content.SanitizeMessage(p.Message)
	if text == "" {
		return fmt.Errorf("%w: empty message", ErrBadEvent)
	}

	msg := models.RideMessage{
		RideID:    p.RideID,
		UserID:    sub.userID,
		Content:   text,
		Timestamp: h.now().Unix(),
	}
	if h.store != nil {
		stored, err := h.store.AppendRideMessage(msg)
		if err != nil {
			slog.Warn("failed to persist chat message", "ride_id", p.RideID, "error", err)
		} else {
			msg = stored
		}
	}

	return h.broadcast(sub.connID, p.RideID, models.ServerEvent{
		Type:      models.ServerEventChatMessage,
		RoomID:    p.RideID,
		SenderID:  sub.userID,
		Timestamp: msg.Timestamp,
		Data: &models.ChatMessagePayload{
			RideID:    p.RideID,
			UserID:    sub.userID,
			Message:   text,
			Seq:       msg.Seq,
			Timestamp: msg.Timestamp,
		},
	}, true)
}

func (h *Hub) routeRideUpdate(sub *subscriber, p *models.RideUpdatePayload) error {
	if !h.joined(sub, p.RideID) {
		return fmt.Errorf("%w: %s", ErrNotJoined, p.RideID)
	}

	current, err := h.store.GetRide(p.RideID)
	if errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownRide, p.RideID)
	}
	if err != nil {
		return fmt.Errorf("failed to load ride: %w", err)
	}

	// A rejected transition is reported to the sender and never broadcast.
	if err := ride.Transition(ride.Status(current.Status), ride.Status(p.Status)); err != nil {
		return err
	}

	current.Status = p.Status
	current.UpdatedAt = h.now().Unix()
	if err := h.store.UpsertRide(current); err != nil {
		return fmt.Errorf("failed to persist ride: %w", err)
	}

	return h.broadcast(sub.connID, p.RideID, models.ServerEvent{
		Type:      models.ServerEventRideStatus,
		RoomID:    p.RideID,
		SenderID:  sub.userID,
		Timestamp: current.UpdatedAt,
		Data: &models.RideStatusPayload{
			RideID:   p.RideID,
			Status:   p.Status,
			Message:  p.Message,
			Location: p.Location,
		},
	}, true)
}

func (h *Hub) routeNotification(sub *subscriber, roomID string, p *models.NotificationPayload) error {
	ev := models.ServerEvent{
		Type:      models.ServerEventNotification,
		RoomID:    roomID,
		SenderID:  sub.userID,
		Timestamp: h.now().Unix(),
		Data:      p,
	}

	if len(p.Recipients) == 0 {
		return h.broadcast(sub.connID, roomID, ev, false)
	}

	for _, userID := range p.Recipients {
		if h.deliverToUser(userID, ev) {
			continue
		}
		if h.notifier == nil {
			continue
		}
		if err := h.notifier.Send(userID, push.Notification{
			Type:    p.Type,
			Title:   p.Title,
			Message: p.Message,
			RoomID:  roomID,
		}); err != nil {
			slog.Warn("push fallback failed", "user_id", userID, "error", err)
		}
	}
	return nil
}

func (h *Hub) routeTrackPackage(ctx context.Context, sub *subscriber, p *models.TrackPackagePayload) error {
	if h.tracker == nil {
		return fmt.Errorf("%w: package tracking unavailable", ErrBadEvent)
	}
	status, err := h.tracker.Latest(ctx, p.TrackingNumber)
	if err != nil {
		return err
	}
	h.mu.RLock()
	h.deliver(sub, models.ServerEvent{
		Type:      models.ServerEventPackageStatus,
		SenderID:  sub.userID,
		Timestamp: h.now().Unix(),
		Data:      &status,
	})
	h.mu.RUnlock()
	return nil
}

// broadcast fans an event out to every subscriber of the room. The sender
// must have joined the room; that check is the isolation property, so it
// is never skipped. remember controls replay to late joiners.
func (h *Hub) broadcast(senderConnID, roomID string, ev models.ServerEvent, remember bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	sender, ok := h.conns[senderConnID]
	if !ok {
		return ErrUnknownConn
	}
	if !sender.rooms[roomID] {
		return fmt.Errorf("%w: %s", ErrNotJoined, roomID)
	}

	r := h.rooms[roomID]
	if remember {
		r.remember(ev)
	}

	for connID := range r.subscribers {
		sub, ok := h.conns[connID]
		if !ok {
			continue
		}
		if connID == senderConnID && sub.suppressEcho {
			continue
		}
		h.deliver(sub, ev)
	}
	return nil
}

// Publish fans a server-origin event out to a room, bypassing the sender
// isolation check because there is no sending connection. REST handlers
// use it after persisting. remember controls replay to late joiners.
func (h *Hub) Publish(roomID string, ev models.ServerEvent, remember bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[roomID]
	if !ok {
		return
	}
	if remember {
		r.remember(ev)
	}
	for connID := range r.subscribers {
		if sub, ok := h.conns[connID]; ok {
			h.deliver(sub, ev)
		}
	}
}

// deliver is fire-and-forget: a slow subscriber loses events instead of
// blocking delivery to everyone else.
func (h *Hub) deliver(sub *subscriber, ev models.ServerEvent) {
	select {
	case sub.ch <- ev:
	default:
		slog.Warn("dropping event for slow connection", "conn_id", sub.connID, "event", ev.Type)
	}
}

// deliverToUser sends the event to every live connection of the user and
// reports whether there was at least one.
func (h *Hub) deliverToUser(userID string, ev models.ServerEvent) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	found := false
	for _, sub := range h.conns {
		if sub.userID == userID {
			h.deliver(sub, ev)
			found = true
		}
	}
	return found
}

// Stats describes the hub's live state for the ops endpoint.
type Stats struct {
	Connections int            `json:"connections"`
	Rooms       int            `json:"rooms"`
	RoomSizes   map[string]int `json:"roomSizes"`
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sizes := make(map[string]int, len(h.rooms))
	for id, r := range h.rooms {
		sizes[id] = len(r.subscribers)
	}
	return Stats{
		Connections: len(h.conns),
		Rooms:       len(h.rooms),
		RoomSizes:   sizes,
	}
}
