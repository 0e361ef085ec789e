package models

import "errors"

var (
	ErrNotFound = errors.New("not found")
)

// Priority is the drain-order class of a queued action.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank returns the sort rank of the priority, lower first.
// Unknown priorities sort last so a corrupt item never jumps the queue.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	}
	return 4
}

type EntityType string

const (
	EntityMessage  EntityType = "message"
	EntityBooking  EntityType = "booking"
	EntityLocation EntityType = "location"
	EntityPackage  EntityType = "package"
)

// SyncItem is one queued mutation waiting to be replayed against the API.
type SyncItem struct {
	ID         string     `json:"id"`
	Seq        uint64     `json:"seq"`
	Endpoint   string     `json:"endpoint"`
	Method     string     `json:"method"`
	Payload    []byte     `json:"payload"`
	EntityType EntityType `json:"entityType"`
	EntityID   string     `json:"entityId,omitempty"`
	Priority   Priority   `json:"priority"`
	EnqueuedAt int64      `json:"enqueuedAt"` // Unix timestamp (milliseconds)
	RetryCount int        `json:"retryCount"`
	MaxRetries int        `json:"maxRetries"`
}

// ConnectionQuality classifies the current link.
type ConnectionQuality string

const (
	QualityOffline ConnectionQuality = "offline"
	QualityPoor    ConnectionQuality = "poor"
	QualityFair    ConnectionQuality = "fair"
	QualityGood    ConnectionQuality = "good"
)

// NetworkState is the monitor's view of connectivity. IsReachable means the
// API answered an application-level probe, which is stricter than IsConnected.
type NetworkState struct {
	IsConnected bool              `json:"isConnected"`
	IsReachable bool              `json:"isReachable"`
	Quality     ConnectionQuality `json:"connectionQuality"`
}

// Online reports whether the sync engine may attempt a drain.
func (s NetworkState) Online() bool {
	return s.IsConnected && s.IsReachable
}

type RideKind string

const (
	RideKindRide     RideKind = "ride"
	RideKindDelivery RideKind = "delivery"
)

// Ride is the canonical server-owned session state. Clients only hold
// cached copies reconciled by incoming events.
type Ride struct {
	ID          string   `json:"id"`
	Kind        RideKind `json:"kind"`
	Status      string   `json:"status"`
	PassengerID string   `json:"passengerId,omitempty"`
	DriverID    string   `json:"driverId,omitempty"`
	UpdatedAt   int64    `json:"updatedAt"` // Unix timestamp (seconds)
}

// RideMessage is a chat message persisted against a ride.
type RideMessage struct {
	Seq       int64  `json:"seq"`
	RideID    string `json:"rideId"`
	UserID    string `json:"userId"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"` // Unix timestamp (seconds)
}

// User is a platform account (driver, passenger or courier).
type User struct {
	ID          string `json:"id"`
	UserName    string `json:"userName"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role,omitempty"`
}
