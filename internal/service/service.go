// Path: internal/service/service.go
package service

import (
	"context"
	"fmt"
	"log"

	"esp-hub/internal/buffer"
	"esp-hub/internal/domain"
	"esp-hub/internal/hub"
)

// Service is the central orchestrator: it ties the connection registry,
// the fan-out router, the batching buffer and the storage adapters
// together, and is the command API surface consumed by the delivery
// layers.
type Service struct {
	registry *hub.Registry
	router   *hub.Router
	buffer   *buffer.Buffer
	devices  DeviceStorage
	access   AccessStorage
}

// NewService creates the core application service.
func NewService(
	registry *hub.Registry,
	router *hub.Router,
	buf *buffer.Buffer,
	devices DeviceStorage,
	access AccessStorage,
) *Service {
	return &Service{
		registry: registry,
		router:   router,
		buffer:   buf,
		devices:  devices,
		access:   access,
	}
}

// Start recovers the telemetry buffer from its mirror and runs the
// periodic flush loop. It is a long-running, blocking method.
func (s *Service) Start(ctx context.Context) error {
	log.Println("Service starting...")
	if err := s.buffer.Recover(); err != nil {
		return fmt.Errorf("could not recover telemetry buffer: %w", err)
	}
	s.buffer.Run(ctx)
	return nil
}

// Stop drains the buffer with a final flush.
func (s *Service) Stop(ctx context.Context) {
	log.Println("Service stopping...")
	if err := s.buffer.Close(ctx); err != nil {
		log.Printf("Final flush on shutdown failed: %v", err)
	}
}

// HandleTelemetry processes one telemetry frame from a device: the live
// snapshot is updated and fanned out, then the reading is queued for
// durable batching.
func (s *Service) HandleTelemetry(deviceID string, data domain.SensorData) {
	fields := data.Fields()
	s.router.PushTelemetry(deviceID, fields)
	s.buffer.Append(deviceID, fields)
}

// SendCommand validates and sends a motor command to a connected device.
func (s *Service) SendCommand(deviceID string, action domain.MotorAction) error {
	if _, ok := action.MotorStatus(); !ok {
		return fmt.Errorf("%w: %q", domain.ErrInvalidAction, action)
	}
	return s.router.SendCommand(deviceID, action)
}

// GetState returns the device's last known live state, if any.
func (s *Service) GetState(deviceID string) (domain.DeviceState, bool) {
	return s.registry.State(deviceID)
}

// IsDeviceConnected reports whether the device has a live channel.
func (s *Service) IsDeviceConnected(deviceID string) bool {
	return s.registry.IsDeviceConnected(deviceID)
}

// Subscribe runs the access check and, if it passes, adds the user to the
// device's interest set. The returned snapshot (nil if the device never
// reported) lets the caller push current state to the fresh subscriber
// immediately, decoupling live-update timing from connection timing.
func (s *Service) Subscribe(ctx context.Context, userID, deviceID string) (domain.DeviceState, error) {
	if !s.access.IsSubscriptionAuthorized(ctx, userID, deviceID) {
		return nil, fmt.Errorf("%w: user %s, device %s", domain.ErrNotAuthorized, userID, deviceID)
	}
	s.registry.Subscribe(userID, deviceID)
	state, _ := s.registry.State(deviceID)
	return state, nil
}

// AuthorizeDevice reports whether a device may open a channel.
func (s *Service) AuthorizeDevice(ctx context.Context, deviceID string) bool {
	return s.access.IsDeviceProvisioned(ctx, deviceID)
}

// ResolveToken maps a session token to a user id.
func (s *Service) ResolveToken(ctx context.Context, token string) (string, error) {
	return s.access.LookupSession(ctx, token)
}

// DeviceHistory returns the durable record written by past flushes.
func (s *Service) DeviceHistory(ctx context.Context, deviceID string) (*domain.DeviceDocument, error) {
	return s.devices.FindByID(ctx, deviceID)
}
