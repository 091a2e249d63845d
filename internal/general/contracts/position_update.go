package contracts

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PositionUpdateMessage is the push sample a delivery partner's device
// publishes to ExchangeTracking under partner.location.{partner_id}.
type PositionUpdateMessage struct {
	Type           string    `json:"type"`
	PartnerID      string    `json:"partner_id"`
	OrderID        string    `json:"order_id,omitempty"`
	Location       GeoPoint  `json:"location"`
	SpeedKMH       float64   `json:"speed_kmh,omitempty"`
	HeadingDegrees float64   `json:"heading_degrees,omitempty"`
	AccuracyMeters float64   `json:"accuracy_meters,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Envelope
}

var (
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrMissingTimestamp   = errors.New("timestamp is required")
	ErrMissingPartnerID   = errors.New("partner_id is required")
)

// DecodePositionUpdate parses and shape-checks a raw broker payload.
// Unknown types and out-of-range fields are rejected here so nothing
// malformed travels further down the pipeline.
func DecodePositionUpdate(raw []byte) (*PositionUpdateMessage, error) {
	var msg PositionUpdateMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("decode position update: %w", err)
	}
	if msg.Type != TypePositionUpdate {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, msg.Type)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Validate checks required fields and coordinate ranges.
func (m *PositionUpdateMessage) Validate() error {
	if m.PartnerID == "" {
		return ErrMissingPartnerID
	}
	if m.Timestamp.IsZero() {
		return ErrMissingTimestamp
	}
	if m.Location.Lat < -90 || m.Location.Lat > 90 {
		return fmt.Errorf("latitude out of range: %v", m.Location.Lat)
	}
	if m.Location.Lng < -180 || m.Location.Lng > 180 {
		return fmt.Errorf("longitude out of range: %v", m.Location.Lng)
	}
	if m.HeadingDegrees < 0 || m.HeadingDegrees >= 360 {
		return fmt.Errorf("heading out of range: %v", m.HeadingDegrees)
	}
	if m.SpeedKMH < 0 {
		return fmt.Errorf("speed cannot be negative: %v", m.SpeedKMH)
	}
	if m.AccuracyMeters < 0 {
		return fmt.Errorf("accuracy cannot be negative: %v", m.AccuracyMeters)
	}
	return nil
}
