package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"delivery-tracking/internal/domain/geo"
	"delivery-tracking/internal/tracking/domain"
)

type pointBody struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

func (p *pointBody) toGeo() *geo.Point {
	if p == nil {
		return nil
	}
	return &geo.Point{Lat: p.Lat, Lng: p.Lng}
}

type startRequest struct {
	PartnerID string     `json:"partner_id"`
	Pickup    *pointBody `json:"pickup,omitempty"`
	Delivery  *pointBody `json:"delivery,omitempty"`
}

type startResponse struct {
	OrderID   string `json:"order_id"`
	PartnerID string `json:"partner_id"`
	Status    string `json:"status"`
	// RouteError reports a rejected optional route; the session itself
	// is running and the route can be retried via PUT .../route.
	RouteError string `json:"route_error,omitempty"`
}

func (handler *TrackingHTTPHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	orderID := r.PathValue("order_id")
	if strings.TrimSpace(orderID) == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "order_id is required", nil)
		return
	}
	ctx = handler.logger.WithOrderID(ctx, orderID)

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.PartnerID) == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "partner_id is required", nil)
		return
	}

	hdl, err := handler.svc.StartTracking(ctx, orderID, req.PartnerID)
	if err != nil && !errors.Is(err, domain.ErrConnectionTimeout) {
		if errors.Is(err, domain.ErrSessionConflict) {
			handler.httpError(ctx, w, http.StatusConflict, "Order is already tracked by a different partner", err)
			return
		}
		handler.httpError(ctx, w, http.StatusInternalServerError, "Failed to start tracking", err)
		return
	}

	// the session is already running; a bad optional route must not
	// undo the start, so it is reported alongside the created session
	var routeErrMsg string
	if req.Pickup != nil || req.Delivery != nil {
		if routeErr := handler.svc.SetSessionRoute(orderID, req.Pickup.toGeo(), req.Delivery.toGeo()); routeErr != nil {
			handler.logger.Error(ctx, "route_rejected", "Route not attached to new session", routeErr, nil)
			routeErrMsg = routeErr.Error()
		}
	}

	status := "ACTIVE"
	if err != nil {
		// subscription handshake timed out; session runs degraded on the poller
		status = "DEGRADED"
	}

	handler.jsonResponse(ctx, w, http.StatusCreated, startResponse{
		OrderID:    hdl.OrderID,
		PartnerID:  hdl.PartnerID,
		Status:     status,
		RouteError: routeErrMsg,
	})
}

func (handler *TrackingHTTPHandler) handleStop(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	orderID := r.PathValue("order_id")
	if strings.TrimSpace(orderID) == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "order_id is required", nil)
		return
	}
	ctx = handler.logger.WithOrderID(ctx, orderID)

	if err := handler.svc.StopTracking(ctx, orderID); err != nil {
		handler.httpError(ctx, w, http.StatusInternalServerError, "Failed to stop tracking", err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusOK, map[string]string{"order_id": orderID, "status": "STOPPED"})
}

type routeRequest struct {
	Pickup   *pointBody `json:"pickup,omitempty"`
	Delivery *pointBody `json:"delivery,omitempty"`
}

func (handler *TrackingHTTPHandler) handleSetRoute(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	orderID := r.PathValue("order_id")
	ctx = handler.logger.WithOrderID(ctx, orderID)

	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := handler.svc.SetSessionRoute(orderID, req.Pickup.toGeo(), req.Delivery.toGeo()); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			handler.httpError(ctx, w, http.StatusNotFound, "No tracking session for order", err)
			return
		}
		handler.httpError(ctx, w, http.StatusBadRequest, "Invalid route coordinates", err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusOK, map[string]string{"order_id": orderID})
}

type sessionResponse struct {
	OrderID   string     `json:"order_id"`
	PartnerID string     `json:"partner_id"`
	Status    string     `json:"status"`
	Pickup    *pointBody `json:"pickup,omitempty"`
	Delivery  *pointBody `json:"delivery,omitempty"`
	StartedAt time.Time  `json:"started_at"`
}

func (handler *TrackingHTTPHandler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	orderID := r.PathValue("order_id")
	sess := handler.svc.GetSession(orderID)
	if sess == nil {
		handler.httpError(ctx, w, http.StatusNotFound, "No tracking session for order", nil)
		return
	}

	resp := sessionResponse{
		OrderID:   sess.OrderID,
		PartnerID: sess.PartnerID,
		Status:    string(sess.Status),
		StartedAt: sess.StartedAt,
	}
	if sess.PickupLocation != nil {
		resp.Pickup = &pointBody{Lat: sess.PickupLocation.Lat, Lng: sess.PickupLocation.Lng}
	}
	if sess.DeliveryLocation != nil {
		resp.Delivery = &pointBody{Lat: sess.DeliveryLocation.Lat, Lng: sess.DeliveryLocation.Lng}
	}
	handler.jsonResponse(ctx, w, http.StatusOK, resp)
}

type locationResponse struct {
	OrderID        string    `json:"order_id"`
	Lat            float64   `json:"lat"`
	Lng            float64   `json:"lng"`
	HeadingDegrees float64   `json:"heading_degrees"`
	SpeedKMH       float64   `json:"speed_kmh"`
	Source         string    `json:"source"`
	Timestamp      time.Time `json:"timestamp"`
}

func (handler *TrackingHTTPHandler) handleGetLocation(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	orderID := r.PathValue("order_id")
	sample := handler.svc.GetCurrentLocation(orderID)
	if sample == nil {
		handler.httpError(ctx, w, http.StatusNotFound, "No position for order", nil)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, locationResponse{
		OrderID:        orderID,
		Lat:            sample.Point.Lat,
		Lng:            sample.Point.Lng,
		HeadingDegrees: sample.HeadingDegrees,
		SpeedKMH:       sample.SpeedKMH,
		Source:         string(sample.Source),
		Timestamp:      sample.Timestamp,
	})
}
