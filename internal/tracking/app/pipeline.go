package app

import (
	"context"
	"fmt"

	"delivery-tracking/internal/domain/geo"
	"delivery-tracking/internal/general/contracts"
	"delivery-tracking/internal/tracking/domain"
)

// ingestPartner routes one push delivery to every session tracking the
// partner. The topic subscription is shared per partner, so a single
// delivery may advance several orders.
func (s *Service) ingestPartner(partnerID string, raw []byte) {
	s.mu.RLock()
	orders := make([]string, 0, len(s.partnerOrders[partnerID]))
	for orderID := range s.partnerOrders[partnerID] {
		orders = append(orders, orderID)
	}
	s.mu.RUnlock()

	for _, orderID := range orders {
		_ = s.Ingest(orderID, raw, domain.SourcePush)
	}
}

// Ingest validates a raw broker payload and runs it through the position
// update pipeline for the order's session. Malformed payloads are
// dropped and logged; stale timestamps are dropped and counted. Neither
// reaches a subscriber.
func (s *Service) Ingest(orderID string, raw []byte, source domain.SampleSource) error {
	s.mu.RLock()
	sess := s.sessions[orderID]
	s.mu.RUnlock()
	if sess == nil {
		return domain.ErrSessionNotFound
	}

	msg, err := contracts.DecodePositionUpdate(raw)
	if err != nil {
		sess.mu.Lock()
		sess.malformedDrops++
		drops := sess.malformedDrops
		sess.mu.Unlock()
		s.logger.Error(s.logger.WithOrderID(context.Background(), orderID), "payload_rejected", "Dropped malformed position payload", err, map[string]any{
			"source":          string(source),
			"malformed_drops": drops,
		})
		return fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}

	sample := domain.PositionSample{
		Point:          geo.Point{Lat: msg.Location.Lat, Lng: msg.Location.Lng},
		HeadingDegrees: msg.HeadingDegrees,
		SpeedKMH:       msg.SpeedKMH,
		AccuracyMeters: msg.AccuracyMeters,
		Timestamp:      msg.Timestamp,
		Source:         source,
	}
	return s.accept(sess, sample)
}

// accept applies the per-session ordering invariant and, on success,
// hands the sample to the interpolator as the new target (or emits it
// directly when it is the session's first fix). Push acceptance resets
// the silence window watched by the fallback poller.
func (s *Service) accept(sess *session, sample domain.PositionSample) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.stopped {
		return domain.ErrSessionNotFound
	}

	// timestamps must strictly advance; equal or older samples are stale
	if sess.lastSample != nil && !sample.Timestamp.After(sess.lastSample.Timestamp) {
		sess.staleDrops++
		s.logger.Debug(s.logger.WithOrderID(context.Background(), sess.orderID), "sample_stale", "Dropped out-of-order sample", map[string]any{
			"source":      string(sample.Source),
			"stale_drops": sess.staleDrops,
		})
		return domain.ErrStaleSample
	}

	from := sess.lastSample
	accepted := sample
	sess.lastSample = &accepted

	now := s.clock.Now()
	sess.lastAcceptedAt = now
	if sample.Source == domain.SourcePush {
		sess.lastPushAt = now
	}

	// snapshot the route so emit never takes the session lock. Frames of
	// an in-flight animation keep this snapshot; a route set mid-job is
	// picked up by the next accepted sample.
	delivery := sess.delivery
	orderID := sess.orderID
	fallbackSpeed := s.cfg.Tracking.FallbackSpeedKmh

	if from == nil {
		s.emitPosition(orderID, delivery, fallbackSpeed, accepted)
		return nil
	}

	s.interp.SetTarget(orderID, *from, accepted, func(frame domain.PositionSample) {
		s.emitPosition(orderID, delivery, fallbackSpeed, frame)
	})
	return nil
}

// emitPosition publishes one position event, enriched with distance and
// ETA when the session knows its delivery location. It takes no session
// lock so interpolation goroutines can call it freely.
func (s *Service) emitPosition(orderID string, delivery *geo.Point, fallbackSpeedKmh float64, sample domain.PositionSample) {
	ev := domain.Event{
		Type:      domain.EventPosition,
		OrderID:   orderID,
		Sample:    &sample,
		Timestamp: s.clock.Now(),
	}
	if delivery != nil {
		dist := geo.HaversineDistanceKm(sample.Point, *delivery)
		speed := sample.SpeedKMH
		if speed <= 0 {
			speed = fallbackSpeedKmh
		}
		ev.DistanceToDestinationKm = dist
		ev.ETA = geo.EstimateArrival(dist, speed)
	}
	s.fanout.Publish(ev)
}
