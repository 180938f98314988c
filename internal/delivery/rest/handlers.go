// Path: internal/delivery/rest/handlers.go
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"esp-hub/internal/domain"
)

// commandService defines the interface required by the handlers from the
// core service. This keeps the delivery layer decoupled from the full
// service implementation.
type commandService interface {
	SendCommand(deviceID string, action domain.MotorAction) error
	GetState(deviceID string) (domain.DeviceState, bool)
	IsDeviceConnected(deviceID string) bool
	DeviceHistory(ctx context.Context, deviceID string) (*domain.DeviceDocument, error)
}

// DeviceHandlers holds dependencies for device-related HTTP handlers.
type DeviceHandlers struct {
	service commandService
}

// NewDeviceHandlers creates a new handler struct.
func NewDeviceHandlers(s commandService) *DeviceHandlers {
	return &DeviceHandlers{service: s}
}

// Route dispatches requests under /api/esp/.
// Path: /api/esp/{device_id}/{motor|state|connected|history}
func (h *DeviceHandlers) Route(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/esp/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		http.Error(w, "Expected /api/esp/{device_id}/{action}", http.StatusBadRequest)
		return
	}
	deviceID := parts[0]

	switch parts[1] {
	case "motor":
		if r.Method != http.MethodPost {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		h.motor(w, r, deviceID)
	case "state":
		h.state(w, deviceID)
	case "connected":
		h.connected(w, deviceID)
	case "history":
		h.history(w, r, deviceID)
	default:
		http.NotFound(w, r)
	}
}

// motor sends a motor command to a connected device.
func (h *DeviceHandlers) motor(w http.ResponseWriter, r *http.Request, deviceID string) {
	var req struct {
		Action domain.MotorAction `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, domain.ErrInvalidAction) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid request body")
		}
		return
	}
	if req.Action == "" {
		writeError(w, http.StatusUnprocessableEntity, "action is required")
		return
	}

	err := h.service.SendCommand(deviceID, req.Action)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrDeviceNotConnected):
		writeError(w, http.StatusNotFound, fmt.Sprintf("device %s is not connected", deviceID))
		return
	case errors.Is(err, domain.ErrInvalidAction):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	default:
		log.Printf("Command %s to %s failed: %v", req.Action, deviceID, err)
		writeError(w, http.StatusInternalServerError, "failed to send command")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"message":   fmt.Sprintf("command %s sent", req.Action),
		"device_id": deviceID,
	})
}

// state returns the device's last known live state.
func (h *DeviceHandlers) state(w http.ResponseWriter, deviceID string) {
	state, ok := h.service.GetState(deviceID)
	if !ok {
		writeError(w, http.StatusNotFound, "no data available for this device")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"data":   state,
	})
}

// connected reports whether the device currently has a live channel.
func (h *DeviceHandlers) connected(w http.ResponseWriter, deviceID string) {
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": deviceID,
		"connected": h.service.IsDeviceConnected(deviceID),
	})
}

// history returns the durable record written by past flushes.
func (h *DeviceHandlers) history(w http.ResponseWriter, r *http.Request, deviceID string) {
	doc, err := h.service.DeviceHistory(r.Context(), deviceID)
	if err != nil {
		log.Printf("History lookup for %s failed: %v", deviceID, err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if doc == nil {
		writeError(w, http.StatusNotFound, "no persisted data for this device")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"status":  "error",
		"message": message,
	})
}
