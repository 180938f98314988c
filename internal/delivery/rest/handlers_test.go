// Path: internal/delivery/rest/handlers_test.go
package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"esp-hub/internal/domain"
)

// fakeService is a scripted commandService.
type fakeService struct {
	sendErr   error
	sentTo    string
	sent      domain.MotorAction
	state     domain.DeviceState
	connected bool
	history   *domain.DeviceDocument
}

func (f *fakeService) SendCommand(deviceID string, action domain.MotorAction) error {
	f.sentTo, f.sent = deviceID, action
	return f.sendErr
}

func (f *fakeService) GetState(deviceID string) (domain.DeviceState, bool) {
	return f.state, f.state != nil
}

func (f *fakeService) IsDeviceConnected(deviceID string) bool { return f.connected }

func (f *fakeService) DeviceHistory(ctx context.Context, deviceID string) (*domain.DeviceDocument, error) {
	return f.history, nil
}

func doRequest(h *DeviceHandlers, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.Route(rec, req)
	return rec
}

func TestMotorEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		sendErr    error
		wantStatus int
	}{
		{"success", `{"action":"START_MOTOR"}`, nil, http.StatusOK},
		{"not connected", `{"action":"START_MOTOR"}`, domain.ErrDeviceNotConnected, http.StatusNotFound},
		{"send failure", `{"action":"STOP_MOTOR"}`, domain.ErrSendFailed, http.StatusInternalServerError},
		{"unknown action", `{"action":"EXPLODE"}`, nil, http.StatusUnprocessableEntity},
		{"missing action", `{}`, nil, http.StatusUnprocessableEntity},
		{"garbage body", `not json`, nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{sendErr: tt.sendErr}
			h := NewDeviceHandlers(svc)
			rec := doRequest(h, http.MethodPost, "/api/esp/ESP32-A/motor", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus == http.StatusOK && svc.sentTo != "ESP32-A" {
				t.Errorf("command routed to %q", svc.sentTo)
			}
		})
	}
}

func TestMotorEndpoint_MethodNotAllowed(t *testing.T) {
	h := NewDeviceHandlers(&fakeService{})
	rec := doRequest(h, http.MethodGet, "/api/esp/ESP32-A/motor", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("got status %d", rec.Code)
	}
}

func TestStateEndpoint(t *testing.T) {
	svc := &fakeService{state: domain.DeviceState{"temperature": 21.5}}
	h := NewDeviceHandlers(svc)

	rec := doRequest(h, http.MethodGet, "/api/esp/ESP32-A/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
	var resp struct {
		Status string             `json:"status"`
		Data   domain.DeviceState `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.Data["temperature"] != 21.5 {
		t.Errorf("got data %v", resp.Data)
	}
}

func TestStateEndpoint_NoData(t *testing.T) {
	h := NewDeviceHandlers(&fakeService{})
	rec := doRequest(h, http.MethodGet, "/api/esp/ESP32-A/state", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("got status %d", rec.Code)
	}
}

func TestConnectedEndpoint(t *testing.T) {
	h := NewDeviceHandlers(&fakeService{connected: true})
	rec := doRequest(h, http.MethodGet, "/api/esp/ESP32-A/connected", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
	var resp map[string]any
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["connected"] != true {
		t.Errorf("got %v", resp)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	doc := &domain.DeviceDocument{ID: "ESP32-A", Current: map[string]any{"temperature": 20.0}}
	h := NewDeviceHandlers(&fakeService{history: doc})
	rec := doRequest(h, http.MethodGet, "/api/esp/ESP32-A/history", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}

	h = NewDeviceHandlers(&fakeService{})
	rec = doRequest(h, http.MethodGet, "/api/esp/ESP32-A/history", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing history: got status %d", rec.Code)
	}
}

func TestRoute_BadPaths(t *testing.T) {
	h := NewDeviceHandlers(&fakeService{})
	for _, path := range []string{"/api/esp/", "/api/esp/ESP32-A", "/api/esp/ESP32-A/state/extra"} {
		rec := doRequest(h, http.MethodGet, path, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: got status %d, want 400", path, rec.Code)
		}
	}
	rec := doRequest(h, http.MethodGet, "/api/esp/ESP32-A/unknown", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown action: got status %d, want 404", rec.Code)
	}
}
