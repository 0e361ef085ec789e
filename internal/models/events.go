package models

import (
	"encoding/json"
	"fmt"
)

// EventType enumerates client-to-server events. The set is closed: decoding
// an unknown type fails instead of passing an opaque blob downstream.
type EventType string

const (
	EventAuthenticate     EventType = "authenticate"
	EventJoinRide         EventType = "join_ride"
	EventLeaveRide        EventType = "leave_ride"
	EventLocationUpdate   EventType = "location_update"
	EventRideUpdate       EventType = "ride_update"
	EventSendMessage      EventType = "send_message"
	EventSendNotification EventType = "send_notification"
	EventTrackPackage     EventType = "track_package"
)

// ServerEventType enumerates server-to-client events.
type ServerEventType string

const (
	ServerEventAuthenticated ServerEventType = "authenticated"
	ServerEventLiveLocation  ServerEventType = "live_location"
	ServerEventRideStatus    ServerEventType = "ride_status_update"
	ServerEventChatMessage   ServerEventType = "chat_message"
	ServerEventNotification  ServerEventType = "notification"
	ServerEventPackageStatus ServerEventType = "package_tracking_update"
	ServerEventError         ServerEventType = "error"
)

// Envelope is the transient wire frame for a client event. It is never
// persisted. Data holds the raw payload until DecodePayload picks the
// concrete type for it.
type Envelope struct {
	Type      EventType       `json:"type"`
	RoomID    string          `json:"roomId,omitempty"`
	SenderID  string          `json:"senderId,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// Payload is the sealed set of client event payloads. Router code type
// switches over the concrete types, so adding an event means adding a
// variant here and the compiler points at every switch that misses it.
type Payload interface {
	eventType() EventType
}

type AuthenticatePayload struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

type JoinRidePayload struct {
	RideID string `json:"rideId"`
}

type LeaveRidePayload struct {
	RideID string `json:"rideId"`
}

type LocationPayload struct {
	UserID    string  `json:"userId"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Heading   float64 `json:"heading,omitempty"`
	Speed     float64 `json:"speed,omitempty"`
}

type RideUpdatePayload struct {
	RideID   string           `json:"rideId"`
	Status   string           `json:"status"`
	Message  string           `json:"message,omitempty"`
	Location *LocationPayload `json:"location,omitempty"`
}

type ChatPayload struct {
	RideID  string `json:"rideId"`
	Message string `json:"message"`
}

type NotificationPayload struct {
	Type       string   `json:"type"`
	Title      string   `json:"title"`
	Message    string   `json:"message"`
	Recipients []string `json:"recipients,omitempty"`
}

type TrackPackagePayload struct {
	TrackingNumber string `json:"trackingNumber"`
}

func (AuthenticatePayload) eventType() EventType { return EventAuthenticate }
func (JoinRidePayload) eventType() EventType     { return EventJoinRide }
func (LeaveRidePayload) eventType() EventType    { return EventLeaveRide }
func (LocationPayload) eventType() EventType     { return EventLocationUpdate }
func (RideUpdatePayload) eventType() EventType   { return EventRideUpdate }
func (ChatPayload) eventType() EventType         { return EventSendMessage }
func (NotificationPayload) eventType() EventType { return EventSendNotification }
func (TrackPackagePayload) eventType() EventType { return EventTrackPackage }

// DecodePayload parses the envelope data into the payload type matching the
// envelope's event type.
func (e Envelope) DecodePayload() (Payload, error) {
	var p Payload
	switch e.Type {
	case EventAuthenticate:
		p = &AuthenticatePayload{}
	case EventJoinRide:
		p = &JoinRidePayload{}
	case EventLeaveRide:
		p = &LeaveRidePayload{}
	case EventLocationUpdate:
		p = &LocationPayload{}
	case EventRideUpdate:
		p = &RideUpdatePayload{}
	case EventSendMessage:
		p = &ChatPayload{}
	case EventSendNotification:
		p = &NotificationPayload{}
	case EventTrackPackage:
		p = &TrackPackagePayload{}
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	if len(e.Data) > 0 {
		if err := json.Unmarshal(e.Data, p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", e.Type, err)
		}
	}
	return p, nil
}

// ServerEvent is a server-to-client frame. Data carries the typed payload
// for the event; error replies use the Error field instead.
type ServerEvent struct {
	Type      ServerEventType `json:"type"`
	RoomID    string          `json:"roomId,omitempty"`
	SenderID  string          `json:"senderId,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Data      any             `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// AuthenticatedPayload is the reply to an authenticate event.
type AuthenticatedPayload struct {
	Success bool   `json:"success"`
	UserID  string `json:"userId,omitempty"`
}

// ChatMessagePayload is the broadcast form of a chat message.
type ChatMessagePayload struct {
	RideID    string `json:"rideId"`
	UserID    string `json:"userId"`
	Message   string `json:"message"`
	Seq       int64  `json:"seq,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// RideStatusPayload is the broadcast form of an accepted ride transition.
type RideStatusPayload struct {
	RideID   string           `json:"rideId"`
	Status   string           `json:"status"`
	Message  string           `json:"message,omitempty"`
	Location *LocationPayload `json:"location,omitempty"`
}

// PackageStatusPayload answers a track_package request.
type PackageStatusPayload struct {
	TrackingNumber string         `json:"trackingNumber"`
	Status         string         `json:"status"`
	Events         []PackageEvent `json:"events,omitempty"`
}

// PackageEvent is one scan in a package's tracking history.
type PackageEvent struct {
	TrackingNumber string `json:"trackingNumber"`
	Status         string `json:"status"`
	Location       string `json:"location,omitempty"`
	Note           string `json:"note,omitempty"`
	CreatedAt      int64  `json:"createdAt"` // Unix timestamp (seconds)
}
