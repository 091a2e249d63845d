package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"delivery-tracking/internal/domain/geo"
	"delivery-tracking/internal/general/clock"
	"delivery-tracking/internal/general/config"
	"delivery-tracking/internal/general/contracts"
	"delivery-tracking/internal/general/logger"
	"delivery-tracking/internal/tracking/domain"

	"github.com/google/uuid"
)

// Service is the tracking session registry. It owns the set of active
// sessions, wires each session's broker subscription, fallback poller,
// and interpolator together, and tears them down atomically on stop.
type Service struct {
	logger *logger.Logger
	cfg    *config.Config
	clock  clock.Clock
	broker domain.Broker
	source domain.LocationSource
	fanout *Fanout
	interp *Interpolator

	mu       sync.RWMutex
	sessions map[string]*session
	// partnerOrders tracks which orders share a partner's topic. The
	// topic subscription is partner-scoped: it is taken when the first
	// session for a partner starts and released when the last one stops,
	// and deliveries are routed to every session of that partner.
	partnerOrders map[string]map[string]struct{}
}

// session is the registry's mutable per-order state. All fields after
// mu are guarded by it.
type session struct {
	orderID   string
	partnerID string
	topic     string
	startedAt time.Time

	mu             sync.Mutex
	status         domain.SessionStatus
	pickup         *geo.Point
	delivery       *geo.Point
	lastSample     *domain.PositionSample
	lastPushAt     time.Time
	lastAcceptedAt time.Time
	staleDrops     uint64
	malformedDrops uint64
	stopped        bool

	pollCancel context.CancelFunc
	pollStop   chan struct{}
	pollDone   chan struct{}
}

// NewService wires the registry. It also begins forwarding broker state
// changes to subscribers and re-issuing subscriptions for degraded
// sessions whenever the connection comes back.
func NewService(log *logger.Logger, cfg *config.Config, clk clock.Clock, brk domain.Broker, src domain.LocationSource, fanout *Fanout) *Service {
	s := &Service{
		logger:        log,
		cfg:           cfg,
		clock:         clk,
		broker:        brk,
		source:        src,
		fanout:        fanout,
		interp:        NewInterpolator(clk, log, cfg.InterpolationTick(), cfg.InterpolationMin(), cfg.InterpolationMax()),
		sessions:      make(map[string]*session),
		partnerOrders: make(map[string]map[string]struct{}),
	}

	brk.OnStateChange(func(state string) {
		s.fanout.Broadcast(domain.Event{
			Type:            domain.EventConnectionState,
			ConnectionState: state,
			Timestamp:       s.clock.Now(),
		})
		if state == "CONNECTED" {
			go s.resubscribeDegraded()
		}
	})

	return s
}

// StartTracking begins tracking an order's delivery partner. Calling it
// again for the same order and partner returns the existing handle;
// a different partner is ErrSessionConflict. A subscribe handshake that
// cannot complete within the configured timeout returns the handle
// together with ErrConnectionTimeout: the session exists, runs degraded
// on the poller, and is resubscribed in the background.
func (s *Service) StartTracking(ctx context.Context, orderID, partnerID string) (domain.Handle, error) {
	if orderID == "" || partnerID == "" {
		return domain.Handle{}, errors.New("orderID and partnerID are required")
	}

	now := s.clock.Now()
	sess := &session{
		orderID:        orderID,
		partnerID:      partnerID,
		topic:          contracts.PartnerLocationTopic(partnerID),
		startedAt:      now,
		status:         domain.StatusActive,
		lastPushAt:     now,
		lastAcceptedAt: now,
	}

	s.mu.Lock()
	if existing := s.sessions[orderID]; existing != nil {
		s.mu.Unlock()
		if existing.partnerID == partnerID {
			return domain.Handle{OrderID: orderID, PartnerID: partnerID}, nil
		}
		return domain.Handle{}, fmt.Errorf("%w: order %s is tracked by partner %s", domain.ErrSessionConflict, orderID, existing.partnerID)
	}
	s.sessions[orderID] = sess
	if s.partnerOrders[partnerID] == nil {
		s.partnerOrders[partnerID] = make(map[string]struct{})
	}
	s.partnerOrders[partnerID][orderID] = struct{}{}
	s.mu.Unlock()

	logCtx := s.logger.WithOrderID(ctx, orderID)

	// subscribing an already-consumed topic is a no-op in the broker
	// client; the handler is partner-scoped and fans out to every order
	var startErr error
	subCtx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout())
	err := s.broker.Subscribe(subCtx, sess.topic, func(payload []byte) {
		s.ingestPartner(partnerID, payload)
	})
	cancel()
	if err != nil {
		sess.mu.Lock()
		sess.status = domain.StatusDegraded
		sess.mu.Unlock()
		s.logger.Error(logCtx, "session_degraded", "Push subscription failed; relying on fallback poller", err, map[string]any{
			"partner_id": partnerID,
			"topic":      sess.topic,
		})
		s.fanout.Publish(domain.Event{
			Type:      domain.EventSessionDegraded,
			OrderID:   orderID,
			Timestamp: s.clock.Now(),
		})
		if errors.Is(err, domain.ErrConnectionTimeout) {
			startErr = err
		}
	}

	s.armPoller(sess)

	s.fanout.Publish(domain.Event{
		Type:      domain.EventSessionStarted,
		OrderID:   orderID,
		Timestamp: s.clock.Now(),
	})
	s.publishLifecycle(logCtx, contracts.SessionEventStarted, orderID, partnerID)

	s.logger.Info(logCtx, "session_started", "Tracking session started", map[string]any{
		"partner_id": partnerID,
		"topic":      sess.topic,
	})

	return domain.Handle{OrderID: orderID, PartnerID: partnerID}, startErr
}

// StopTracking tears a session down: unsubscribes the topic, disarms the
// poller, cancels any interpolation job, and removes the session. After
// it returns, no sample or frame for the order reaches a subscriber.
// Stopping an unknown or already-stopped order is a no-op.
func (s *Service) StopTracking(ctx context.Context, orderID string) error {
	s.mu.RLock()
	sess := s.sessions[orderID]
	s.mu.RUnlock()
	if sess == nil {
		return nil
	}

	sess.mu.Lock()
	if sess.stopped {
		sess.mu.Unlock()
		return nil
	}
	sess.stopped = true
	sess.status = domain.StatusStopped
	partnerID := sess.partnerID
	topic := sess.topic
	pollCancel := sess.pollCancel
	pollStop := sess.pollStop
	pollDone := sess.pollDone
	sess.mu.Unlock()

	// release the partner topic only when no other order still rides it
	s.mu.Lock()
	if s.sessions[orderID] == sess {
		delete(s.sessions, orderID)
	}
	lastForPartner := false
	if set := s.partnerOrders[partnerID]; set != nil {
		delete(set, orderID)
		if len(set) == 0 {
			delete(s.partnerOrders, partnerID)
			lastForPartner = true
		}
	}
	s.mu.Unlock()

	if lastForPartner {
		s.broker.Unsubscribe(topic)
	}

	if pollCancel != nil {
		close(pollStop)
		pollCancel()
		<-pollDone
	}

	s.interp.Cancel(orderID)

	logCtx := s.logger.WithOrderID(ctx, orderID)
	s.fanout.Publish(domain.Event{
		Type:      domain.EventSessionStopped,
		OrderID:   orderID,
		Timestamp: s.clock.Now(),
	})
	s.publishLifecycle(logCtx, contracts.SessionEventStopped, orderID, partnerID)

	s.logger.Info(logCtx, "session_stopped", "Tracking session stopped", map[string]any{"partner_id": partnerID})
	return nil
}

// GetSession returns a snapshot of the order's session, or nil.
func (s *Service) GetSession(orderID string) *domain.TrackingSession {
	s.mu.RLock()
	sess := s.sessions[orderID]
	s.mu.RUnlock()
	if sess == nil {
		return nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return &domain.TrackingSession{
		OrderID:          sess.orderID,
		PartnerID:        sess.partnerID,
		Status:           sess.status,
		PickupLocation:   sess.pickup,
		DeliveryLocation: sess.delivery,
		StartedAt:        sess.startedAt,
	}
}

// GetCurrentLocation returns the last accepted sample for the order, or nil.
func (s *Service) GetCurrentLocation(orderID string) *domain.PositionSample {
	s.mu.RLock()
	sess := s.sessions[orderID]
	s.mu.RUnlock()
	if sess == nil {
		return nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.lastSample == nil {
		return nil
	}
	cp := *sess.lastSample
	return &cp
}

// SetSessionRoute attaches pickup/delivery points to the session so
// subsequent position events carry distance-to-destination and ETA.
func (s *Service) SetSessionRoute(orderID string, pickup, delivery *geo.Point) error {
	s.mu.RLock()
	sess := s.sessions[orderID]
	s.mu.RUnlock()
	if sess == nil {
		return domain.ErrSessionNotFound
	}

	for _, p := range []*geo.Point{pickup, delivery} {
		if p != nil {
			if err := p.Validate(); err != nil {
				return err
			}
		}
	}

	sess.mu.Lock()
	sess.pickup = pickup
	sess.delivery = delivery
	sess.mu.Unlock()
	return nil
}

// Subscribe attaches a sink to an order's reconciled position stream.
func (s *Service) Subscribe(orderID string, sink domain.Sink) func() {
	return s.fanout.Subscribe(orderID, sink)
}

// Shutdown stops every active session.
func (s *Service) Shutdown(ctx context.Context) {
	s.mu.RLock()
	orderIDs := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		orderIDs = append(orderIDs, id)
	}
	s.mu.RUnlock()

	for _, id := range orderIDs {
		_ = s.StopTracking(ctx, id)
	}
}

// resubscribeDegraded re-issues push subscriptions for degraded sessions
// after the connection recovers; success restores Active silently.
func (s *Service) resubscribeDegraded() {
	s.mu.RLock()
	degraded := make([]*session, 0)
	for _, sess := range s.sessions {
		sess.mu.Lock()
		if sess.status == domain.StatusDegraded && !sess.stopped {
			degraded = append(degraded, sess)
		}
		sess.mu.Unlock()
	}
	s.mu.RUnlock()

	for _, sess := range degraded {
		orderID := sess.orderID
		partnerID := sess.partnerID
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HandshakeTimeout())
		err := s.broker.Subscribe(ctx, sess.topic, func(payload []byte) {
			s.ingestPartner(partnerID, payload)
		})
		cancel()
		if err != nil {
			s.logger.Error(s.logger.WithOrderID(context.Background(), orderID), "resubscribe_failed", "Degraded session resubscribe failed", err, nil)
			continue
		}
		sess.mu.Lock()
		if sess.status == domain.StatusDegraded && !sess.stopped {
			sess.status = domain.StatusActive
		}
		sess.mu.Unlock()
		s.logger.Info(s.logger.WithOrderID(context.Background(), orderID), "resubscribed", "Degraded session restored to push delivery", nil)
	}
}

// publishLifecycle announces session state to sibling services over the
// broker. Failures (including a down connection) are logged, never fatal.
func (s *Service) publishLifecycle(ctx context.Context, event, orderID, partnerID string) {
	msg := contracts.SessionEventMessage{
		Type:      contracts.TypeSessionEvent,
		Event:     event,
		OrderID:   orderID,
		PartnerID: partnerID,
		Timestamp: s.clock.Now().UTC(),
		Envelope: contracts.Envelope{
			CorrelationID: uuid.NewString(),
			Producer:      "tracking-service",
			SentAt:        time.Now().UTC(),
		},
	}
	body, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error(ctx, "lifecycle_marshal_failed", "Failed to marshal session event", err, nil)
		return
	}
	if err := s.broker.Publish(contracts.RouteSessionEvents, body); err != nil {
		s.logger.Debug(ctx, "lifecycle_publish_skipped", "Session event not published", map[string]any{
			"event": event,
			"error": err.Error(),
		})
	}
}
