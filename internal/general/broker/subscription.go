package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"delivery-tracking/internal/general/contracts"

	amqp "github.com/rabbitmq/amqp091-go"
)

// startConsume opens a dedicated channel for the subscription, binds an
// exclusive auto-delete queue to the topic, and runs the delivery loop
// until cancelled or the channel closes.
func (client *Client) startConsume(sub *subscription) error {
	client.mu.RLock()
	conn := client.conn
	client.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return errors.New("broker: connection is not ready")
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("broker: open consumer channel: %w", err)
	}

	// transient per-subscriber queue; gone when the consumer goes
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("broker: declare queue for %s: %w", sub.topic, err)
	}
	if err := ch.QueueBind(q.Name, sub.topic, contracts.ExchangeTracking, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("broker: bind %s: %w", sub.topic, err)
	}

	deliveries, err := ch.Consume(
		q.Name,
		"",    // consumerTag
		true,  // autoAck: positions are transient, at-most-once is fine
		true,  // exclusive
		false, // noLocal (ignored by RabbitMQ)
		false, // noWait
		nil,   // args
	)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("broker: consume %s: %w", sub.topic, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	client.subMu.Lock()
	sub.active = true
	sub.cancel = cancel
	client.subMu.Unlock()

	go func() {
		defer func() {
			_ = ch.Close()
			client.subMu.Lock()
			if client.subs[sub.topic] == sub {
				sub.active = false
			}
			client.subMu.Unlock()
		}()

		chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.closed:
				return
			case <-chClosed:
				// the consumer channel can die while the connection stays
				// up (basic.cancel, exclusive queue loss); re-issue the
				// subscription instead of waiting for a full reconnect
				go client.retryConsume(sub)
				return
			case d, ok := <-deliveries:
				if !ok {
					go client.retryConsume(sub)
					return
				}
				sub.handler(d.Body)
			}
		}
	}()

	client.logger.Debug(client.logCtx, "broker_subscribed", "Consuming topic", map[string]any{"topic": sub.topic, "queue": q.Name})
	return nil
}

// retryConsume re-issues a subscription whose consumer channel closed
// while the connection stayed up. It gives up once the subscription is
// removed, the client closes, or the connection drops (the reconnect
// watcher replays every subscription itself after a reconnect).
func (client *Client) retryConsume(sub *subscription) {
	delay := client.opts.ReconnectBase
	if delay <= 0 {
		delay = time.Second
	}

	for {
		select {
		case <-client.closed:
			return
		case <-time.After(delay):
		}

		client.subMu.Lock()
		registered := client.subs[sub.topic] == sub
		client.subMu.Unlock()
		if !registered {
			return
		}

		client.mu.RLock()
		connected := client.state == StateConnected
		client.mu.RUnlock()
		if !connected {
			return
		}

		if err := client.startConsume(sub); err != nil {
			client.logger.Error(client.logCtx, "broker_consumer_restart_failed", "Failed to re-issue subscription after consumer loss", err, map[string]any{"topic": sub.topic})
			continue
		}
		client.logger.Info(client.logCtx, "broker_consumer_restarted", "Re-issued subscription after consumer channel loss", map[string]any{"topic": sub.topic})
		return
	}
}
