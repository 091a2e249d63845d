package contracts

import "time"

// Session event kinds published under RouteSessionEvents.
const (
	SessionEventStarted = "session_started"
	SessionEventStopped = "session_stopped"
)

// SessionEventMessage announces tracking session lifecycle changes to
// sibling services (notifications, dashboards).
type SessionEventMessage struct {
	Type      string    `json:"type"`
	Event     string    `json:"event"`
	OrderID   string    `json:"order_id"`
	PartnerID string    `json:"partner_id"`
	Timestamp time.Time `json:"timestamp"`
	Envelope
}
