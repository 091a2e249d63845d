package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"delivery-tracking/internal/domain/geo"
	"delivery-tracking/internal/general/logger"
	"delivery-tracking/internal/general/websocket"
	"delivery-tracking/internal/tracking/domain"
)

// TrackingService is the application surface the HTTP layer adapts.
type TrackingService interface {
	StartTracking(ctx context.Context, orderID, partnerID string) (domain.Handle, error)
	StopTracking(ctx context.Context, orderID string) error
	GetSession(orderID string) *domain.TrackingSession
	GetCurrentLocation(orderID string) *domain.PositionSample
	SetSessionRoute(orderID string, pickup, delivery *geo.Point) error
}

// TrackingHTTPHandler adapts HTTP requests to the tracking service.
type TrackingHTTPHandler struct {
	svc    TrackingService
	logger *logger.Logger
	bridge *websocket.Bridge
}

// NewTrackingHTTPHandler wires an HTTP handler around the tracking service.
func NewTrackingHTTPHandler(svc TrackingService, logger *logger.Logger, bridge *websocket.Bridge) *TrackingHTTPHandler {
	return &TrackingHTTPHandler{svc: svc, logger: logger, bridge: bridge}
}

// RegisterRoutes mounts tracking endpoints on the provided mux.
func (handler *TrackingHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /tracking/{order_id}/start", handler.handleStart)
	mux.HandleFunc("POST /tracking/{order_id}/stop", handler.handleStop)
	mux.HandleFunc("PUT /tracking/{order_id}/route", handler.handleSetRoute)
	mux.HandleFunc("GET /tracking/{order_id}", handler.handleGetSession)
	mux.HandleFunc("GET /tracking/{order_id}/location", handler.handleGetLocation)

	// WebSocket stream of position/lifecycle events for one order
	mux.Handle("GET /ws/track", handler.bridge)

	mux.HandleFunc("GET /tracking/health", handler.handleHealth)
}

func (handler *TrackingHTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	handler.jsonResponse(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

func (handler *TrackingHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	// encode to buffer first so we can control status on failure
	var buf []byte
	var err error

	if data != nil {
		buf, err = json.Marshal(data)
		if err != nil {
			handler.logger.Error(ctx, "response_encode_failed", "Failed to encode response", err, nil)
			http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
			return
		}
	} else {
		buf = []byte("{}")
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// httpError sends a JSON error response with a message.
func (handler *TrackingHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
	} else if status == http.StatusBadRequest {
		action = "validation_failed"
	}
	handler.logger.Error(ctx, action, msg, err, nil)

	type errBody struct {
		Error string `json:"error"`
	}
	handler.jsonResponse(ctx, w, status, errBody{Error: msg})
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *TrackingHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
	reqID := r.Header.Get("X-Request-ID")
	if strings.TrimSpace(reqID) == "" {
		reqID = randID()
	}
	return handler.logger.WithRequestID(ctx, reqID)
}

func randID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
