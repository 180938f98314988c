// Path: internal/hub/router.go
package hub

import (
	"fmt"
	"log"

	"esp-hub/internal/domain"
)

// Router multiplexes device state updates out to interested subscribers
// and carries commands the opposite direction.
type Router struct {
	registry *Registry
}

// NewRouter creates a router over the given registry.
func NewRouter(registry *Registry) *Router {
	return &Router{registry: registry}
}

// PushTelemetry merges the fields into the device's state snapshot and
// delivers the updated snapshot to every currently connected subscriber.
// A failed send is treated as an implicit disconnect of that subscriber
// and never aborts delivery to the others. Returns the snapshot.
func (rt *Router) PushTelemetry(deviceID string, fields map[string]any) domain.DeviceState {
	state := rt.registry.UpdateState(deviceID, fields)
	msg := domain.NewEspData(deviceID, state)

	for _, sub := range rt.registry.Subscribers(deviceID) {
		if err := sub.Channel.Send(msg); err != nil {
			log.Printf("Send to subscriber %s failed, dropping connection: %v", sub.UserID, err)
			rt.registry.UnregisterSubscriber(sub.UserID, sub.Channel)
		}
	}
	return state
}

// SendCommand delivers a motor command to the device's channel. A missing
// channel fails with ErrDeviceNotConnected; a failed send unregisters the
// device and fails with ErrSendFailed. On success the implied state change
// is applied and re-broadcast to the device's subscribers, so they see the
// commanded state without waiting for the next telemetry frame.
func (rt *Router) SendCommand(deviceID string, action domain.MotorAction) error {
	ch, ok := rt.registry.Device(deviceID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrDeviceNotConnected, deviceID)
	}

	log.Printf("Sending %s to device %s", action, deviceID)
	if err := ch.Send(domain.NewMotorCommand(action)); err != nil {
		rt.registry.UnregisterDevice(deviceID, ch)
		return fmt.Errorf("%w: device %s: %v", domain.ErrSendFailed, deviceID, err)
	}

	if status, ok := action.MotorStatus(); ok {
		rt.PushTelemetry(deviceID, map[string]any{"motor_status": status})
	}
	return nil
}
