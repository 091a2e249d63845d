package broker

import (
	"testing"
	"time"

	"delivery-tracking/internal/general/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

func newBareClient() *Client {
	return &Client{
		logger:    logger.New("test"),
		subs:      make(map[string]*subscription),
		closed:    make(chan struct{}),
		reconnect: make(chan struct{}, 1),
	}
}

func TestSetConfirmsToleratesLibraryClosedListener(t *testing.T) {
	client := newBareClient()

	// the amqp library closes NotifyPublish listeners itself when the
	// Channel shuts down; a connection drop leaves exactly this state
	old := make(chan amqp.Confirmation)
	close(old)
	client.setConfirms(old)

	// reconnect installs a fresh listener; must not touch the old one
	client.setConfirms(make(chan amqp.Confirmation, 1))
	client.setConfirms(nil)
}

func TestCloseToleratesLibraryClosedListener(t *testing.T) {
	client := newBareClient()

	confirms := make(chan amqp.Confirmation)
	close(confirms) // publish channel already shut down by the library
	client.setConfirms(confirms)

	client.Close()
	client.Close() // second close is a no-op

	if got := client.State(); got != StateDisconnected {
		t.Fatalf("State after Close = %v, want DISCONNECTED", got)
	}
}

func TestRetryConsumeGivesUpWhenUnsubscribed(t *testing.T) {
	client := newBareClient()
	client.opts.ReconnectBase = time.Millisecond
	client.state = StateConnected

	// the subscription was removed while its consume goroutine was dying
	orphan := &subscription{topic: "partner.location.p-1"}

	done := make(chan struct{})
	go func() {
		client.retryConsume(orphan)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("retryConsume kept running for a removed subscription")
	}
}

func TestRetryConsumeDefersToReconnectWatcher(t *testing.T) {
	client := newBareClient()
	client.opts.ReconnectBase = time.Millisecond
	client.state = StateDisconnected

	sub := &subscription{topic: "partner.location.p-1"}
	client.subs[sub.topic] = sub

	done := make(chan struct{})
	go func() {
		client.retryConsume(sub)
		close(done)
	}()

	// the connection is down: replay belongs to the reconnect watcher
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("retryConsume kept retrying while disconnected")
	}
}
