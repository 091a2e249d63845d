package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"delivery-tracking/internal/domain/geo"
	"delivery-tracking/internal/general/logger"
	"delivery-tracking/internal/general/websocket"
	"delivery-tracking/internal/tracking/domain"
)

type stubService struct {
	startErr error
	routeErr error
	stops    int
	routes   int
}

func (s *stubService) StartTracking(ctx context.Context, orderID, partnerID string) (domain.Handle, error) {
	return domain.Handle{OrderID: orderID, PartnerID: partnerID}, s.startErr
}

func (s *stubService) StopTracking(ctx context.Context, orderID string) error {
	s.stops++
	return nil
}

func (s *stubService) GetSession(orderID string) *domain.TrackingSession { return nil }

func (s *stubService) GetCurrentLocation(orderID string) *domain.PositionSample { return nil }

func (s *stubService) SetSessionRoute(orderID string, pickup, delivery *geo.Point) error {
	s.routes++
	return s.routeErr
}

func (s *stubService) Subscribe(orderID string, sink domain.Sink) func() {
	return func() {}
}

func newTestMux(svc *stubService) *http.ServeMux {
	log := logger.New("test")
	h := NewTrackingHTTPHandler(svc, log, websocket.NewBridge(log, svc))
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}

func TestHandleStartKeepsSessionWhenRouteRejected(t *testing.T) {
	svc := &stubService{routeErr: geo.ErrInvalidLatitude}
	mux := newTestMux(svc)

	body := `{"partner_id":"partner-9","delivery":{"lat":91,"lng":0}}`
	req := httptest.NewRequest(http.MethodPost, "/tracking/ord-1/start", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: a bad optional route must not undo the start", rec.Code)
	}
	var resp struct {
		OrderID    string `json:"order_id"`
		Status     string `json:"status"`
		RouteError string `json:"route_error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.OrderID != "ord-1" || resp.Status != "ACTIVE" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.RouteError == "" {
		t.Fatal("route rejection must be reported in the response")
	}
	if svc.stops != 0 {
		t.Fatalf("session was stopped %d times on route rejection", svc.stops)
	}
}

func TestHandleStartValidation(t *testing.T) {
	svc := &stubService{}
	mux := newTestMux(svc)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing partner", `{}`, http.StatusBadRequest},
		{"bad json", `{{{`, http.StatusBadRequest},
		{"valid", `{"partner_id":"partner-9"}`, http.StatusCreated},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/tracking/ord-1/start", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestHandleStartConflict(t *testing.T) {
	svc := &stubService{startErr: domain.ErrSessionConflict}
	mux := newTestMux(svc)

	req := httptest.NewRequest(http.MethodPost, "/tracking/ord-1/start", strings.NewReader(`{"partner_id":"partner-7"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestHandleStartDegradedOnTimeout(t *testing.T) {
	svc := &stubService{startErr: domain.ErrConnectionTimeout}
	mux := newTestMux(svc)

	req := httptest.NewRequest(http.MethodPost, "/tracking/ord-1/start", strings.NewReader(`{"partner_id":"partner-9"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: timeout still yields a usable session", rec.Code)
	}
	var resp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "DEGRADED" {
		t.Fatalf("status = %q, want DEGRADED", resp.Status)
	}
}
