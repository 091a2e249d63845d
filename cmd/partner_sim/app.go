package partnersim

import (
	"context"
	"encoding/json"
	"time"

	"delivery-tracking/internal/domain/geo"
	"delivery-tracking/internal/general/broker"
	"delivery-tracking/internal/general/config"
	"delivery-tracking/internal/general/contracts"
	"delivery-tracking/internal/general/logger"

	"github.com/google/uuid"
)

// simSteps is how many publishes it takes to travel one leg of the route.
const simSteps = 20

// Options configures the simulated partner.
type Options struct {
	ConfigPath string
	PartnerID  string
	OrderID    string
	Interval   time.Duration
}

// Run publishes a partner moving back and forth between two fixed points
// until ctx is cancelled. It exercises the full push path: publish, topic
// routing, and the tracking pipeline on the consuming side.
func Run(ctx context.Context, opts Options) error {
	logger := logger.New("partner-sim")
	ctx = logger.WithRequestID(ctx, "sim-001")

	cfg, err := config.LoadFromFile(opts.ConfigPath)
	if err != nil {
		logger.Error(ctx, "config_load_failed", "Failed to load configuration", err, nil)
		return err
	}

	brk, err := broker.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "broker_connection_failed", "Failed to connect to broker", err, nil)
		return err
	}
	defer brk.Close()

	// a short leg through central Bengaluru, roughly the pickup-to-drop
	// distance of a typical delivery
	from := geo.Point{Lat: 12.9700, Lng: 77.5930}
	to := geo.Point{Lat: 12.9750, Lng: 77.5990}

	topic := contracts.PartnerLocationTopic(opts.PartnerID)
	legKm := geo.HaversineDistanceKm(from, to)
	speedKmh := legKm / (float64(simSteps) * opts.Interval.Hours())

	logger.Info(ctx, "sim_started", "Partner simulator publishing positions", map[string]any{
		"partner_id":  opts.PartnerID,
		"topic":       topic,
		"interval_ms": opts.Interval.Milliseconds(),
		"speed_kmh":   speedKmh,
	})

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	step := 0
	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "sim_stopped", "Partner simulator stopped", nil)
			return nil
		case <-ticker.C:
		}

		t := float64(step) / float64(simSteps)
		pos := geo.Point{
			Lat: from.Lat + (to.Lat-from.Lat)*t,
			Lng: from.Lng + (to.Lng-from.Lng)*t,
		}
		heading := geo.BearingDegrees(from, to)

		msg := contracts.PositionUpdateMessage{
			Type:           contracts.TypePositionUpdate,
			PartnerID:      opts.PartnerID,
			OrderID:        opts.OrderID,
			Location:       contracts.GeoPoint{Lat: pos.Lat, Lng: pos.Lng},
			SpeedKMH:       speedKmh,
			HeadingDegrees: heading,
			AccuracyMeters: 5,
			Timestamp:      time.Now().UTC(),
			Envelope: contracts.Envelope{
				CorrelationID: uuid.NewString(),
				Producer:      "partner-sim",
				SentAt:        time.Now().UTC(),
			},
		}
		body, err := json.Marshal(msg)
		if err != nil {
			logger.Error(ctx, "sim_marshal_failed", "Failed to marshal position update", err, nil)
			continue
		}

		if err := brk.Publish(topic, body); err != nil {
			// the client reconnects in background; just skip this tick
			logger.Error(ctx, "sim_publish_failed", "Position publish failed", err, nil)
			continue
		}

		logger.Debug(ctx, "sim_published", "Published position", map[string]any{
			"lat": pos.Lat, "lng": pos.Lng, "step": step,
		})

		step++
		if step > simSteps {
			// reached the endpoint; turn around and walk the leg back
			from, to = to, from
			step = 0
		}
	}
}
