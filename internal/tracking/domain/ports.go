package domain

import "context"

// Broker is the transport connection manager as seen by the session
// registry: one multiplexed connection carrying all topic subscriptions.
type Broker interface {
	// Subscribe registers a delivery callback for a topic. Before the
	// connection reaches Connected the subscription is queued and replayed
	// once connected; after a reconnect it is re-issued automatically.
	Subscribe(ctx context.Context, topic string, handler func(payload []byte)) error

	// Unsubscribe removes the topic's subscription and stops deliveries.
	Unsubscribe(topic string)

	// Publish sends a payload. It fails fast with ErrNotConnected while
	// the connection is down.
	Publish(topic string, body []byte) error

	// OnStateChange registers a listener for connection state transitions.
	// Listeners are invoked with "CONNECTED"/"DISCONNECTED"/etc.
	OnStateChange(func(state string))
}

// LocationSource returns a single best-effort current position for a
// partner, used by the fallback poller when push delivery is silent.
type LocationSource interface {
	CurrentPosition(ctx context.Context, partnerID string) (PositionSample, error)
}

// Sink receives events for the sessions a subscriber watches. Implementations
// must tolerate being slow: delivery is buffered per subscriber and the
// producer is never blocked.
type Sink interface {
	Deliver(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

func (f SinkFunc) Deliver(ev Event) { f(ev) }
