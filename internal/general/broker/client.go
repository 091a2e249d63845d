package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"delivery-tracking/internal/general/config"
	"delivery-tracking/internal/general/contracts"
	"delivery-tracking/internal/general/logger"
	"delivery-tracking/internal/tracking/domain"

	amqp "github.com/rabbitmq/amqp091-go"
)

// State is the connection lifecycle state of the Client.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

// steadyResetAfter is how long a connection must stay up before the
// reconnect backoff schedule returns to its base delay.
const steadyResetAfter = 30 * time.Second

// Client owns the single multiplexed RabbitMQ connection all tracking
// sessions share. It handles the handshake, heartbeats, reconnect with
// backoff, subscription replay, and publishing.
type Client struct {
	url     string
	logger  *logger.Logger
	logCtx  context.Context // context for logging (without cancel)
	opts    Options
	backoff *Backoff

	mu      sync.RWMutex
	conn    *amqp.Connection
	pubChan *amqp.Channel
	state   State

	pubMu       sync.Mutex
	pubConfirms chan amqp.Confirmation

	subMu sync.Mutex
	subs  map[string]*subscription

	listenerMu sync.Mutex
	listeners  []func(state string)

	connectedAt time.Time

	closed    chan struct{}
	reconnect chan struct{}
}

// Options holds the connection tuning knobs.
type Options struct {
	Heartbeat        time.Duration
	HandshakeTimeout time.Duration
	ReconnectBase    time.Duration
	ReconnectMax     time.Duration
}

type subscription struct {
	topic   string
	handler func(payload []byte)
	active  bool
	cancel  context.CancelFunc // stops the consume loop for this topic
}

// Connect establishes the connection and starts the background watcher
// that reconnects on failures. The initial handshake is a single attempt
// bounded by HandshakeTimeout; further retries happen in the watcher.
func Connect(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Client, error) {
	url := fmt.Sprintf("amqp://%s:%s@%s:%d/", cfg.Broker.User, cfg.Broker.Password, cfg.Broker.Host, cfg.Broker.Port)

	opts := Options{
		Heartbeat:        cfg.HeartbeatInterval(),
		HandshakeTimeout: cfg.HandshakeTimeout(),
		ReconnectBase:    cfg.ReconnectBaseDelay(),
		ReconnectMax:     cfg.ReconnectMaxDelay(),
	}

	client := &Client{
		url:       url,
		logger:    log,
		logCtx:    context.WithoutCancel(ctx),
		opts:      opts,
		backoff:   NewBackoff(opts.ReconnectBase, opts.ReconnectMax),
		subs:      make(map[string]*subscription),
		closed:    make(chan struct{}),
		reconnect: make(chan struct{}, 1),
	}

	client.setState(StateConnecting)
	if err := client.connectOnce(); err != nil {
		client.setState(StateDisconnected)
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, fmt.Errorf("%w: %v", domain.ErrConnectionTimeout, err)
		}
		return nil, err
	}
	client.setState(StateConnected)

	go client.watch()

	return client, nil
}

// Subscribe registers a delivery callback for a topic. If the connection
// is not yet Connected the subscription is queued and replayed once
// connected. A topic already consuming is a no-op.
func (client *Client) Subscribe(ctx context.Context, topic string, handler func(payload []byte)) error {
	client.subMu.Lock()
	sub, ok := client.subs[topic]
	if ok && sub.active {
		client.subMu.Unlock()
		return nil
	}
	if !ok {
		sub = &subscription{topic: topic, handler: handler}
		client.subs[topic] = sub
	}
	client.subMu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrConnectionTimeout, err)
	}

	client.mu.RLock()
	connected := client.state == StateConnected
	client.mu.RUnlock()
	if !connected {
		// queued; replay happens on the next successful (re)connect
		client.logger.Debug(client.logCtx, "broker_subscribe_queued", "Subscription queued until connected", map[string]any{"topic": topic})
		return nil
	}

	if err := client.startConsume(sub); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSubscription, err)
	}
	return nil
}

// Unsubscribe removes the topic's subscription and stops deliveries.
// Safe to call for unknown topics.
func (client *Client) Unsubscribe(topic string) {
	client.subMu.Lock()
	sub, ok := client.subs[topic]
	if ok {
		delete(client.subs, topic)
	}
	client.subMu.Unlock()

	if ok && sub.cancel != nil {
		sub.cancel()
	}
}

// Publish sends a payload under the given routing key. It fails fast
// with ErrNotConnected while the connection is down; outbound writes are
// never queued.
func (client *Client) Publish(topic string, body []byte) error {
	client.mu.RLock()
	ch := client.pubChan
	conn := client.conn
	connected := client.state == StateConnected
	client.mu.RUnlock()

	if !connected || conn == nil || conn.IsClosed() {
		return domain.ErrNotConnected
	}
	if ch == nil || ch.IsClosed() {
		return domain.ErrNotConnected
	}

	client.pubMu.Lock()
	defer client.pubMu.Unlock()
	confirms := client.pubConfirms

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := ch.PublishWithContext(ctx, contracts.ExchangeTracking, topic, false /* mandatory */, false, /* immediate */
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	); err != nil {
		return err
	}

	select {
	case c := <-confirms:
		if !c.Ack {
			return fmt.Errorf("broker: publish not acknowledged")
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

// OnStateChange registers a listener invoked on every connection state
// transition with the new state's name.
func (client *Client) OnStateChange(fn func(state string)) {
	client.listenerMu.Lock()
	client.listeners = append(client.listeners, fn)
	client.listenerMu.Unlock()
}

// State returns the current connection state.
func (client *Client) State() State {
	client.mu.RLock()
	defer client.mu.RUnlock()
	return client.state
}

// Close gracefully stops the watcher and closes AMQP resources.
func (client *Client) Close() {
	select {
	case <-client.closed:
		// already closed
	default:
		client.setState(StateClosing)
		close(client.closed)
	}

	client.subMu.Lock()
	for topic, sub := range client.subs {
		if sub.cancel != nil {
			sub.cancel()
		}
		delete(client.subs, topic)
	}
	client.subMu.Unlock()

	client.mu.Lock()
	if client.pubChan != nil {
		_ = client.pubChan.Close()
		client.pubChan = nil
	}
	if client.conn != nil {
		_ = client.conn.Close()
		client.conn = nil
	}
	client.state = StateDisconnected
	client.mu.Unlock()

	client.setConfirms(nil)
}

// setConfirms swaps the publisher-confirms listener. NotifyPublish
// channels are owned by the amqp library: it closes every registered
// listener when its Channel shuts down, so they must never be closed
// here — a second close panics. Publish waiters on the old listener
// unblock through the library's close.
func (client *Client) setConfirms(c chan amqp.Confirmation) {
	client.pubMu.Lock()
	client.pubConfirms = c
	client.pubMu.Unlock()
}

// --- internals ---

// setState transitions the connection state and notifies listeners.
func (client *Client) setState(s State) {
	client.mu.Lock()
	if client.state == s {
		client.mu.Unlock()
		return
	}
	client.state = s
	if s == StateConnected {
		client.connectedAt = time.Now()
	}
	client.mu.Unlock()

	client.listenerMu.Lock()
	listeners := make([]func(string), len(client.listeners))
	copy(listeners, client.listeners)
	client.listenerMu.Unlock()

	for _, fn := range listeners {
		fn(s.String())
	}
}

// connectOnce dials, sets up topology and confirms, installs the new
// connection, and replays registered subscriptions.
func (client *Client) connectOnce() error {
	// heartbeats ride on the AMQP connection; the server closes the socket
	// after two missed intervals, which surfaces through NotifyClose below
	conn, err := amqp.DialConfig(client.url, amqp.Config{
		Heartbeat: client.opts.Heartbeat,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(client.opts.HandshakeTimeout),
	})
	if err != nil {
		client.logger.Error(client.logCtx, "broker_dial_failed", "Failed to dial broker", err, nil)
		return fmt.Errorf("broker dial failed: %w", err)
	}

	defer func() {
		if err != nil && conn != nil {
			_ = conn.Close()
		}
	}()

	ch, err := conn.Channel()
	if err != nil {
		client.logger.Error(client.logCtx, "broker_open_channel_failed", "Failed to open publish channel", err, nil)
		return fmt.Errorf("broker: failed to open channel: %w", err)
	}

	defer func() {
		if err != nil && ch != nil {
			_ = ch.Close()
		}
	}()

	// declare the tracking topic exchange (idempotent)
	if err = ch.ExchangeDeclare(contracts.ExchangeTracking, "topic", true, false, false, false, nil); err != nil {
		client.logger.Error(client.logCtx, "broker_declare_exchange_failed", "Failed to declare tracking exchange", err, nil)
		return fmt.Errorf("broker: failed to declare exchange: %w", err)
	}

	// enable publisher confirms on the publishing channel
	if err = ch.Confirm(false); err != nil {
		client.logger.Error(client.logCtx, "broker_enable_confirms_failed", "Failed to enable publisher confirms", err, nil)
		return fmt.Errorf("broker: failed to enable confirms: %w", err)
	}

	client.setConfirms(ch.NotifyPublish(make(chan amqp.Confirmation, 1)))

	// atomically install the new connection + publishing channel
	client.mu.Lock()
	if client.pubChan != nil && !client.pubChan.IsClosed() {
		_ = client.pubChan.Close()
	}
	client.conn = conn
	client.pubChan = ch
	client.mu.Unlock()

	// watch for connection/channel closures and trigger reconnect
	go func(conn *amqp.Connection, ch *amqp.Channel) {
		connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
		chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-client.closed:
			return
		case <-connClosed:
		case <-chClosed:
		}

		select {
		case client.reconnect <- struct{}{}:
		default:
			// already enqueued; no-op
		}
	}(conn, ch)

	client.replaySubscriptions()

	client.logger.Info(client.logCtx, "broker_connected", "Broker connection established", nil)
	return nil
}

// replaySubscriptions re-issues every registered subscription on the
// current connection. Subscriptions do not survive a reconnect on the
// server side, so each one gets a fresh consumer channel.
func (client *Client) replaySubscriptions() {
	client.subMu.Lock()
	subs := make([]*subscription, 0, len(client.subs))
	for _, sub := range client.subs {
		sub.active = false
		subs = append(subs, sub)
	}
	client.subMu.Unlock()

	for _, sub := range subs {
		if err := client.startConsume(sub); err != nil {
			client.logger.Error(client.logCtx, "broker_resubscribe_failed", "Failed to replay subscription", err, map[string]any{"topic": sub.topic})
		}
	}
}

// watch runs in background and reconnects with exponential backoff.
func (client *Client) watch() {
	for {
		select {
		case <-client.closed:
			return
		case <-client.reconnect:
			client.mu.RLock()
			up := time.Since(client.connectedAt)
			client.mu.RUnlock()
			if up >= steadyResetAfter {
				client.backoff.Reset()
			}

			client.setState(StateDisconnected)

			for {
				select {
				case <-client.closed:
					return
				default:
				}

				delay := client.backoff.Next()
				client.logger.Info(client.logCtx, "broker_reconnect_wait", "Waiting before reconnect attempt", map[string]any{"delay_ms": delay.Milliseconds()})
				select {
				case <-client.closed:
					return
				case <-time.After(delay):
				}

				client.setState(StateConnecting)
				if err := client.connectOnce(); err == nil {
					client.setState(StateConnected)
					client.logger.Info(client.logCtx, "broker_reconnected", "Reconnected to broker and replayed subscriptions", nil)
					break
				} else {
					client.logger.Error(client.logCtx, "broker_reconnect_failed", "Reconnect attempt failed", err, nil)
					client.setState(StateDisconnected)
				}
			}
		}
	}
}
