package domain

import (
	"time"

	"delivery-tracking/internal/domain/geo"
)

// SessionStatus is the lifecycle state of a tracking session.
type SessionStatus string

const (
	StatusActive   SessionStatus = "ACTIVE"
	StatusDegraded SessionStatus = "DEGRADED" // push subscription failed; poller-only
	StatusStopped  SessionStatus = "STOPPED"
)

// SampleSource tells whether a position arrived via broker push or fallback poll.
type SampleSource string

const (
	SourcePush SampleSource = "PUSH"
	SourcePoll SampleSource = "POLL"
)

// PositionSample is one reported or interpolated position. Immutable once created.
type PositionSample struct {
	Point          geo.Point
	HeadingDegrees float64
	SpeedKMH       float64
	AccuracyMeters float64
	Timestamp      time.Time
	Source         SampleSource
}

// TrackingSession is the live relationship between one order and one delivery partner.
type TrackingSession struct {
	OrderID          string
	PartnerID        string
	Status           SessionStatus
	PickupLocation   *geo.Point
	DeliveryLocation *geo.Point
	StartedAt        time.Time
}

// Handle identifies an active session to callers of StartTracking.
// Equal handles mean the same session.
type Handle struct {
	OrderID   string
	PartnerID string
}

// EventType enumerates what subscribers can observe.
type EventType string

const (
	EventPosition        EventType = "position"
	EventSessionStarted  EventType = "session_started"
	EventSessionStopped  EventType = "session_stopped"
	EventSessionDegraded EventType = "session_degraded"
	EventConnectionState EventType = "connection_state"
)

// Event is the only thing delivered through the subscriber fan-out.
// Internal retry/backoff detail never leaks through here.
type Event struct {
	Type    EventType
	OrderID string

	// Sample is set for EventPosition.
	Sample *PositionSample

	// DistanceToDestinationKm and ETA are set on position events for
	// sessions with a known delivery location.
	DistanceToDestinationKm float64
	ETA                     time.Duration

	// ConnectionState is set for EventConnectionState.
	ConnectionState string

	Timestamp time.Time
}
