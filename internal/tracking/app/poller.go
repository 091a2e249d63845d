package app

import (
	"context"
	"time"

	"delivery-tracking/internal/tracking/domain"
)

// pollFetchTimeout bounds a single location source round trip.
const pollFetchTimeout = 5 * time.Second

// armPoller starts the session's fallback poll loop. On each tick, if
// push delivery has been silent for at least the silence threshold, a
// position is fetched from the location source and fed through the same
// pipeline as push samples. The loop also enforces the session idle
// timeout.
func (s *Service) armPoller(sess *session) {
	ctx, cancel := context.WithCancel(context.Background())
	stop := make(chan struct{})
	done := make(chan struct{})

	sess.mu.Lock()
	if sess.stopped {
		sess.mu.Unlock()
		cancel()
		close(done)
		return
	}
	sess.pollCancel = cancel
	sess.pollStop = stop
	sess.pollDone = done
	sess.mu.Unlock()

	go s.runPoller(ctx, sess, stop, done)
}

func (s *Service) runPoller(ctx context.Context, sess *session, stop, done chan struct{}) {
	defer close(done)

	ticker := s.clock.NewTicker(s.cfg.PollInterval())
	defer ticker.Stop()

	logCtx := s.logger.WithOrderID(context.WithoutCancel(ctx), sess.orderID)

	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
		}

		now := s.clock.Now()
		sess.mu.Lock()
		stopped := sess.stopped
		lastPush := sess.lastPushAt
		lastAccepted := sess.lastAcceptedAt
		sess.mu.Unlock()
		if stopped {
			return
		}

		if idle := s.cfg.SessionIdleTimeout(); idle > 0 && now.Sub(lastAccepted) >= idle {
			s.logger.Info(logCtx, "session_idle_timeout", "No accepted samples within idle window; stopping session", map[string]any{
				"idle_ms": now.Sub(lastAccepted).Milliseconds(),
			})
			// teardown waits for this goroutine, so stop from the outside
			go func() { _ = s.StopTracking(context.WithoutCancel(ctx), sess.orderID) }()
			return
		}

		// push is healthy: skip the fetch, the tick was redundant
		if now.Sub(lastPush) < s.cfg.SilenceThreshold() {
			continue
		}

		fetchCtx, cancel := context.WithTimeout(ctx, pollFetchTimeout)
		sample, err := s.source.CurrentPosition(fetchCtx, sess.partnerID)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error(logCtx, "poll_fetch_failed", "Fallback location fetch failed", err, map[string]any{
				"partner_id": sess.partnerID,
			})
			continue
		}

		sample.Source = domain.SourcePoll
		// stale poll results lose to fresher push samples here; that
		// redundancy is expected, not double delivery
		_ = s.accept(sess, sample)
	}
}
