package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"delivery-tracking/internal/general/logger"
	"delivery-tracking/internal/tracking/domain"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Subscriptions is the slice of the tracking service the bridge needs.
type Subscriptions interface {
	Subscribe(orderID string, sink domain.Sink) func()
	GetCurrentLocation(orderID string) *domain.PositionSample
}

// Bridge exposes the subscriber fan-out over WebSocket: a consumer
// connects with an order id and receives that session's position and
// lifecycle events as JSON frames. Slow consumers are isolated by the
// fan-out's per-subscriber buffer; a write failure tears down only that
// consumer's connection.
type Bridge struct {
	logger *logger.Logger
	subs   Subscriptions
}

func NewBridge(log *logger.Logger, subs Subscriptions) *Bridge {
	return &Bridge{logger: log, subs: subs}
}

// frame is the JSON shape written to consumers.
type frame struct {
	Type                    string    `json:"type"`
	OrderID                 string    `json:"order_id,omitempty"`
	Lat                     float64   `json:"lat,omitempty"`
	Lng                     float64   `json:"lng,omitempty"`
	HeadingDegrees          float64   `json:"heading_degrees,omitempty"`
	SpeedKMH                float64   `json:"speed_kmh,omitempty"`
	Source                  string    `json:"source,omitempty"`
	SampleTime              time.Time `json:"sample_time,omitempty"`
	DistanceToDestinationKm float64   `json:"distance_to_destination_km,omitempty"`
	EtaSeconds              int64     `json:"eta_seconds,omitempty"`
	ConnectionState         string    `json:"connection_state,omitempty"`
}

// ServeHTTP upgrades GET /ws/track?order_id=... and streams events until
// the client disconnects.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("order_id")
	if orderID == "" {
		http.Error(w, "order_id is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Error(r.Context(), "ws_upgrade_failed", "WebSocket upgrade failed", err, nil)
		return
	}

	ctx := b.logger.WithOrderID(context.WithoutCancel(r.Context()), orderID)
	b.logger.Info(ctx, "ws_consumer_connected", "Tracking consumer connected", map[string]any{"remote": conn.RemoteAddr().String()})

	var writeMu sync.Mutex
	writeFrame := func(f frame) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(f)
	}

	// send the last known fix immediately so the consumer is not blank
	// until the next sample
	if last := b.subs.GetCurrentLocation(orderID); last != nil {
		_ = writeFrame(sampleFrame(orderID, domain.Event{Type: domain.EventPosition, OrderID: orderID, Sample: last}))
	}

	closed := make(chan struct{})
	var closeOnce sync.Once

	unsubscribe := b.subs.Subscribe(orderID, domain.SinkFunc(func(ev domain.Event) {
		if err := writeFrame(sampleFrame(orderID, ev)); err != nil {
			closeOnce.Do(func() { close(closed) })
		}
	}))

	// the reader only watches for the client going away
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeOnce.Do(func() { close(closed) })
				return
			}
		}
	}()

	<-closed
	unsubscribe()
	_ = conn.Close()
	b.logger.Info(ctx, "ws_consumer_disconnected", "Tracking consumer disconnected", nil)
}

func sampleFrame(orderID string, ev domain.Event) frame {
	f := frame{
		Type:            string(ev.Type),
		OrderID:         orderID,
		ConnectionState: ev.ConnectionState,
	}
	if ev.Sample != nil {
		f.Lat = ev.Sample.Point.Lat
		f.Lng = ev.Sample.Point.Lng
		f.HeadingDegrees = ev.Sample.HeadingDegrees
		f.SpeedKMH = ev.Sample.SpeedKMH
		f.Source = string(ev.Sample.Source)
		f.SampleTime = ev.Sample.Timestamp
		f.DistanceToDestinationKm = ev.DistanceToDestinationKm
		f.EtaSeconds = int64(ev.ETA.Seconds())
	}
	return f
}
