package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"hitch/internal/auth"
	"hitch/internal/content"
	"hitch/internal/models"
	"hitch/internal/push"
	"hitch/internal/ride"
	"hitch/internal/storage"
	"hitch/internal/trips"
	"hitch/internal/ws"

	"github.com/google/uuid"
)

// API carries the REST surface the mobile sync engine replays queued
// actions against. Each mutating handler persists first, then hands the
// resulting event to the hub for live broadcast.
type API struct {
	auth    *auth.AuthService
	hub     *ws.Hub
	storage *storage.BboltStorage
	trips   *trips.Store
	push    *push.Service
}

func New(auth *auth.AuthService, hub *ws.Hub, storage *storage.BboltStorage, trips *trips.Store, push *push.Service) *API {
	return &API{auth: auth, hub: hub, storage: storage, trips: trips, push: push}
}

func (a *API) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest

	// Support both JSON and form encoding, mobile clients send JSON.
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Failed to parse form", http.StatusBadRequest)
			return
		}
		req.Username = r.FormValue("username")
		req.Password = r.FormValue("password")
	}

	loginResp := a.auth.Login(req)
	if !loginResp.Success {
		writeJSONStatus(w, http.StatusUnauthorized, loginResp)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    loginResp.Token,
		HttpOnly: true,
		Path:     "/",
		Expires:  time.Unix(loginResp.TokenExpiry, 0),
	})
	writeJSON(w, loginResp)
}

func (a *API) getToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if token := r.Header.Get("token"); token != "" {
		return token
	}
	if c, err := r.Cookie("token"); err == nil {
		return c.Value
	}
	return ""
}

// RequireAuth resolves the bearer token and passes the authenticated user
// id through to the wrapped handler.
func (a *API) RequireAuth(next func(w http.ResponseWriter, r *http.Request, userID string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.auth.VerifyToken(a.getToken(r))
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r, userID)
	}
}

type messageRequest struct {
	RideID  string `json:"rideId"`
	Message string `json:"message"`
}

func (a *API) MessagesHandler(w http.ResponseWriter, r *http.Request, userID string) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.RideID == "" {
		http.Error(w, "rideId is required", http.StatusBadRequest)
		return
	}

	text := content.SanitizeMessage(req.Message)
	if text == "" {
		http.Error(w, "Message is empty", http.StatusBadRequest)
		return
	}

	msg, err := a.storage.AppendRideMessage(models.RideMessage{
		RideID:    req.RideID,
		UserID:    userID,
		Content:   text,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		http.Error(w, "Failed to store message", http.StatusInternalServerError)
		return
	}

	a.hub.Publish(req.RideID, models.ServerEvent{
		Type:      models.ServerEventChatMessage,
		RoomID:    req.RideID,
		SenderID:  userID,
		Timestamp: msg.Timestamp,
		Data: &models.ChatMessagePayload{
			RideID:    req.RideID,
			UserID:    userID,
			Message:   text,
			Seq:       msg.Seq,
			Timestamp: msg.Timestamp,
		},
	}, true)

	writeJSONStatus(w, http.StatusCreated, msg)
}

func (a *API) RideMessagesHandler(w http.ResponseWriter, r *http.Request, _ string) {
	rideID := r.URL.Query().Get("rideId")
	if rideID == "" {
		http.Error(w, "rideId is required", http.StatusBadRequest)
		return
	}
	messages, err := a.storage.ListRideMessages(rideID)
	if err != nil {
		http.Error(w, "Failed to list messages", http.StatusInternalServerError)
		return
	}
	writeJSON(w, messages)
}

type locationRequest struct {
	RideID string `json:"rideId"`
	models.LocationPayload
}

func (a *API) LocationsHandler(w http.ResponseWriter, r *http.Request, userID string) {
	var req locationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.RideID == "" {
		http.Error(w, "rideId is required", http.StatusBadRequest)
		return
	}

	loc := req.LocationPayload
	loc.UserID = userID

	// Locations are ephemeral: broadcast only, never persisted or replayed.
	a.hub.Publish(req.RideID, models.ServerEvent{
		Type:      models.ServerEventLiveLocation,
		RoomID:    req.RideID,
		SenderID:  userID,
		Timestamp: time.Now().Unix(),
		Data:      &loc,
	}, false)

	w.WriteHeader(http.StatusAccepted)
}

type bookingRequest struct {
	ID          string          `json:"id,omitempty"`
	Kind        models.RideKind `json:"kind"`
	PassengerID string          `json:"passengerId,omitempty"`
}

func (a *API) CreateBookingHandler(w http.ResponseWriter, r *http.Request, userID string) {
	var req bookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.PassengerID == "" {
		req.PassengerID = userID
	}
	if req.Kind == "" {
		req.Kind = models.RideKindRide
	}

	// Offline clients may replay the same queued booking twice; keep the
	// existing ride instead of resetting its status.
	if existing, err := a.storage.GetRide(req.ID); err == nil {
		writeJSON(w, existing)
		return
	}

	booked := models.Ride{
		ID:          req.ID,
		Kind:        req.Kind,
		Status:      string(ride.StatusRequested),
		PassengerID: req.PassengerID,
		UpdatedAt:   time.Now().Unix(),
	}
	if err := a.storage.UpsertRide(booked); err != nil {
		http.Error(w, "Failed to store booking", http.StatusInternalServerError)
		return
	}

	writeJSONStatus(w, http.StatusCreated, booked)
}

type bookingStatusRequest struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (a *API) BookingStatusHandler(w http.ResponseWriter, r *http.Request, userID string) {
	rideID := r.PathValue("id")

	var req bookingStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	current, err := a.storage.GetRide(rideID)
	if errors.Is(err, models.ErrNotFound) {
		http.Error(w, "Unknown booking", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to load booking", http.StatusInternalServerError)
		return
	}

	if err := ride.Transition(ride.Status(current.Status), ride.Status(req.Status)); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	current.Status = req.Status
	current.UpdatedAt = time.Now().Unix()
	if err := a.storage.UpsertRide(current); err != nil {
		http.Error(w, "Failed to store booking", http.StatusInternalServerError)
		return
	}

	a.hub.Publish(rideID, models.ServerEvent{
		Type:      models.ServerEventRideStatus,
		RoomID:    rideID,
		SenderID:  userID,
		Timestamp: current.UpdatedAt,
		Data: &models.RideStatusPayload{
			RideID:  rideID,
			Status:  req.Status,
			Message: req.Message,
		},
	}, true)

	writeJSON(w, current)
}

func (a *API) PackageEventHandler(w http.ResponseWriter, r *http.Request, _ string) {
	trackingNumber := r.PathValue("trackingNumber")

	var event models.PackageEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	event.TrackingNumber = trackingNumber
	if event.Status == "" {
		http.Error(w, "status is required", http.StatusBadRequest)
		return
	}
	if event.CreatedAt == 0 {
		event.CreatedAt = time.Now().Unix()
	}

	if err := a.trips.RecordEvent(r.Context(), event); err != nil {
		http.Error(w, "Failed to record event", http.StatusInternalServerError)
		return
	}

	status, err := a.trips.Latest(r.Context(), trackingNumber)
	if err != nil {
		http.Error(w, "Failed to load status", http.StatusInternalServerError)
		return
	}

	a.hub.Publish("pkg:"+trackingNumber, models.ServerEvent{
		Type:      models.ServerEventPackageStatus,
		RoomID:    "pkg:" + trackingNumber,
		Timestamp: time.Now().Unix(),
		Data:      &status,
	}, false)

	writeJSONStatus(w, http.StatusCreated, status)
}

func (a *API) PackageHistoryHandler(w http.ResponseWriter, r *http.Request, _ string) {
	trackingNumber := r.PathValue("trackingNumber")

	history, err := a.trips.History(r.Context(), trackingNumber)
	if err != nil {
		http.Error(w, "Failed to load history", http.StatusInternalServerError)
		return
	}
	if len(history) == 0 {
		http.Error(w, "Unknown tracking number", http.StatusNotFound)
		return
	}
	writeJSON(w, history)
}

func (a *API) PushSubscribeHandler(w http.ResponseWriter, r *http.Request, userID string) {
	var sub push.Subscription
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if sub.Endpoint == "" {
		http.Error(w, "endpoint is required", http.StatusBadRequest)
		return
	}

	if err := a.push.Subscribe(userID, sub); err != nil {
		http.Error(w, "Failed to store subscription", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}
