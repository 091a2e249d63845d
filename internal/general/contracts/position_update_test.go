package contracts

import (
	"errors"
	"testing"
	"time"
)

func TestDecodePositionUpdate(t *testing.T) {
	raw := []byte(`{
		"type": "position_update",
		"partner_id": "partner-9",
		"order_id": "ord-1",
		"location": {"lat": 12.97, "lng": 77.59},
		"speed_kmh": 18.5,
		"heading_degrees": 42,
		"timestamp": "2023-11-14T22:13:20Z",
		"correlation_id": "abc-123",
		"producer": "partner-device"
	}`)

	msg, err := DecodePositionUpdate(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.PartnerID != "partner-9" || msg.OrderID != "ord-1" {
		t.Fatalf("ids mismatch: %+v", msg)
	}
	if msg.Location.Lat != 12.97 || msg.Location.Lng != 77.59 {
		t.Fatalf("location mismatch: %+v", msg.Location)
	}
	want := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	if !msg.Timestamp.Equal(want) {
		t.Fatalf("timestamp = %v, want %v", msg.Timestamp, want)
	}
	if msg.CorrelationID != "abc-123" {
		t.Fatalf("envelope not decoded: %+v", msg.Envelope)
	}
}

func TestDecodePositionUpdateRejections(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{
			name:    "unknown type tag",
			raw:     `{"type":"partner_selfie","partner_id":"p","timestamp":"2023-11-14T22:13:20Z"}`,
			wantErr: ErrUnknownMessageType,
		},
		{
			name:    "missing partner",
			raw:     `{"type":"position_update","location":{"lat":1,"lng":1},"timestamp":"2023-11-14T22:13:20Z"}`,
			wantErr: ErrMissingPartnerID,
		},
		{
			name:    "missing timestamp",
			raw:     `{"type":"position_update","partner_id":"p","location":{"lat":1,"lng":1}}`,
			wantErr: ErrMissingTimestamp,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodePositionUpdate([]byte(tc.raw))
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("want %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestDecodePositionUpdateRangeChecks(t *testing.T) {
	bads := map[string]string{
		"latitude":  `{"type":"position_update","partner_id":"p","location":{"lat":91,"lng":0},"timestamp":"2023-11-14T22:13:20Z"}`,
		"longitude": `{"type":"position_update","partner_id":"p","location":{"lat":0,"lng":-181},"timestamp":"2023-11-14T22:13:20Z"}`,
		"heading":   `{"type":"position_update","partner_id":"p","location":{"lat":0,"lng":0},"heading_degrees":360,"timestamp":"2023-11-14T22:13:20Z"}`,
		"speed":     `{"type":"position_update","partner_id":"p","location":{"lat":0,"lng":0},"speed_kmh":-1,"timestamp":"2023-11-14T22:13:20Z"}`,
	}
	for name, raw := range bads {
		if _, err := DecodePositionUpdate([]byte(raw)); err == nil {
			t.Errorf("%s out of range was accepted", name)
		}
	}
}

func TestPartnerLocationTopic(t *testing.T) {
	if got := PartnerLocationTopic("partner-9"); got != "partner.location.partner-9" {
		t.Fatalf("PartnerLocationTopic = %q", got)
	}
}
