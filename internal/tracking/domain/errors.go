package domain

import "errors"

var (
	// ErrSessionConflict means StartTracking was called for an order already
	// actively tracked under a different partner.
	ErrSessionConflict = errors.New("order is already tracked by a different partner")

	// ErrSessionNotFound means the order has no active session.
	ErrSessionNotFound = errors.New("no active tracking session for order")

	// ErrNotConnected means a publish was attempted while the broker
	// connection is not in the Connected state. Outbound writes are never
	// silently queued.
	ErrNotConnected = errors.New("broker is not connected")

	// ErrSubscription means the broker rejected a subscribe; the session
	// runs degraded on the fallback poller until resubscribe succeeds.
	ErrSubscription = errors.New("broker rejected subscription")

	// ErrConnectionTimeout means the broker handshake did not complete
	// within the configured timeout.
	ErrConnectionTimeout = errors.New("broker handshake timed out")

	// ErrMalformedPayload means a sample failed shape validation and was dropped.
	ErrMalformedPayload = errors.New("malformed position payload")

	// ErrStaleSample means a sample's timestamp did not advance the
	// session's last accepted timestamp and was dropped.
	ErrStaleSample = errors.New("stale position sample")
)
