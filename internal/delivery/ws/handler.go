// Path: internal/delivery/ws/handler.go
package ws

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"esp-hub/internal/config"
	"esp-hub/internal/domain"
	"esp-hub/internal/hub"
)

// Application close codes, in the 4000-4999 range reserved for
// application use.
const (
	// CloseUnauthorizedDevice rejects a device that is not provisioned.
	CloseUnauthorizedDevice = 4000
	// CloseInvalidToken rejects a subscriber handshake without a valid token.
	CloseInvalidToken = 4001
)

// closeWriteWait bounds how long a close frame write may take.
const closeWriteWait = time.Second

// coreService defines the interface required by the WebSocket layer from
// the core service.
type coreService interface {
	HandleTelemetry(deviceID string, data domain.SensorData)
	Subscribe(ctx context.Context, userID, deviceID string) (domain.DeviceState, error)
	AuthorizeDevice(ctx context.Context, deviceID string) bool
	ResolveToken(ctx context.Context, token string) (string, error)
}

// Handler owns the two WebSocket endpoints: one for devices, one for
// front-end subscribers.
type Handler struct {
	service  coreService
	registry *hub.Registry
	upgrader websocket.Upgrader
	limit    rate.Limit
	burst    int
}

// NewHandler creates the WebSocket handler.
func NewHandler(service coreService, registry *hub.Registry, cfg config.RealtimeConfig) *Handler {
	return &Handler{
		service:  service,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			// Devices and the packaged front end connect from anywhere.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		limit: rate.Limit(cfg.MessagesPerSecond),
		burst: cfg.BurstLimit,
	}
}

// Register mounts the WebSocket routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/ws/esp/", h.ServeDevice) // Trailing slash carries the device id
	mux.HandleFunc("/ws/frontend", h.ServeSubscriber)
}

// channel adapts a websocket connection to hub.Channel. gorilla permits a
// single concurrent writer, so all sends go through one mutex.
type channel struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *channel) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *channel) Close() error {
	return c.conn.Close()
}

// closeWith sends a close frame with the given code, then closes.
func (c *channel) closeWith(code int, reason string) {
	c.mu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(closeWriteWait))
	c.mu.Unlock()
	c.conn.Close()
}

// ServeDevice handles /ws/esp/{device_id}: the persistent channel a
// device publishes telemetry on and receives commands from.
func (h *Handler) ServeDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := strings.TrimPrefix(r.URL.Path, "/ws/esp/")
	if deviceID == "" || strings.Contains(deviceID, "/") {
		http.Error(w, "Expected /ws/esp/{device_id}", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Device upgrade failed for %s: %v", deviceID, err)
		return
	}
	ch := &channel{conn: conn}
	connID := uuid.NewString()

	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("Panic in device handler for %s (conn %s): %v", deviceID, connID, rec)
			ch.closeWith(websocket.CloseInternalServerErr, "internal error")
		}
	}()

	if !h.service.AuthorizeDevice(r.Context(), deviceID) {
		log.Printf("Rejected unprovisioned device %s (conn %s)", deviceID, connID)
		ch.closeWith(CloseUnauthorizedDevice, "device not provisioned")
		return
	}

	h.registry.RegisterDevice(deviceID, ch)
	defer func() {
		h.registry.UnregisterDevice(deviceID, ch)
		ch.Close()
	}()
	log.Printf("Device channel open: %s (conn %s, remote %s)", deviceID, connID, conn.RemoteAddr())

	limiter := rate.NewLimiter(h.limit, h.burst)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Device %s read error (conn %s): %v", deviceID, connID, err)
			}
			return
		}

		if !limiter.Allow() {
			log.Printf("Device %s over message rate, frame dropped (conn %s)", deviceID, connID)
			continue
		}

		// One bad frame is dropped and logged; the connection stays open.
		msg, err := domain.DecodeDeviceMessage(raw)
		if err != nil {
			log.Printf("Dropping frame from device %s: %v", deviceID, err)
			continue
		}

		switch m := msg.(type) {
		case domain.SensorData:
			h.service.HandleTelemetry(deviceID, m)
		}
	}
}

// ServeSubscriber handles /ws/frontend?token=...: the channel a front-end
// client subscribes to devices on and receives live state over.
func (h *Handler) ServeSubscriber(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Subscriber upgrade failed: %v", err)
		return
	}
	ch := &channel{conn: conn}
	connID := uuid.NewString()

	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("Panic in subscriber handler (conn %s): %v", connID, rec)
			ch.closeWith(websocket.CloseInternalServerErr, "internal error")
		}
	}()

	if token == "" {
		ch.closeWith(CloseInvalidToken, "token required")
		return
	}
	userID, err := h.service.ResolveToken(r.Context(), token)
	if err != nil {
		log.Printf("Rejected subscriber (conn %s): %v", connID, err)
		ch.closeWith(CloseInvalidToken, "invalid token")
		return
	}

	h.registry.RegisterSubscriber(userID, ch)
	defer func() {
		h.registry.UnregisterSubscriber(userID, ch)
		ch.Close()
	}()
	log.Printf("Subscriber channel open: %s (conn %s, remote %s)", userID, connID, conn.RemoteAddr())

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Subscriber %s read error (conn %s): %v", userID, connID, err)
			}
			return
		}

		msg, err := domain.DecodeSubscriberMessage(raw)
		if err != nil {
			log.Printf("Dropping frame from subscriber %s: %v", userID, err)
			continue
		}

		switch m := msg.(type) {
		case domain.Subscribe:
			h.handleSubscribe(r.Context(), userID, ch, m)
		}
	}
}

// handleSubscribe runs one SUBSCRIBE request. Authorization failures are
// answered with an ERROR frame; the connection stays open.
func (h *Handler) handleSubscribe(ctx context.Context, userID string, ch *channel, m domain.Subscribe) {
	state, err := h.service.Subscribe(ctx, userID, m.DeviceID)
	if err != nil {
		reason := "subscription failed"
		if errors.Is(err, domain.ErrNotAuthorized) {
			reason = "no access to this device"
		}
		log.Printf("Subscribe by %s to %s refused: %v", userID, m.DeviceID, err)
		if sendErr := ch.Send(domain.NewErrorMessage(reason)); sendErr != nil {
			log.Printf("Failed to send ERROR frame to %s: %v", userID, sendErr)
		}
		return
	}

	// Fresh subscribers get the current snapshot right away, if one exists.
	if state != nil {
		if err := ch.Send(domain.NewEspData(m.DeviceID, state)); err != nil {
			log.Printf("Failed to send snapshot to %s: %v", userID, err)
		}
	}
}
