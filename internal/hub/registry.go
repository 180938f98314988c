// Path: internal/hub/registry.go
package hub

import (
	"log"
	"sync"
	"time"

	"esp-hub/internal/domain"
)

// Channel is a live bidirectional connection to a peer (device or
// subscriber). Send must be safe for concurrent use; implementations
// serialize writes themselves.
type Channel interface {
	Send(v any) error
	Close() error
}

// SubscriberRef pairs a subscriber's user id with its live channel.
type SubscriberRef struct {
	UserID  string
	Channel Channel
}

// Registry tracks every live channel, the per-device last-known state,
// and the subscriber interest graph. It is the only piece of cross-task
// shared state besides the telemetry buffer; all maps are guarded by one
// RWMutex and no network send ever happens under it.
type Registry struct {
	mu                sync.RWMutex
	devices           map[string]Channel
	subscribers       map[string]Channel
	states            map[string]domain.DeviceState
	userDevices       map[string]map[string]struct{}
	deviceSubscribers map[string]map[string]struct{}
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		devices:           make(map[string]Channel),
		subscribers:       make(map[string]Channel),
		states:            make(map[string]domain.DeviceState),
		userDevices:       make(map[string]map[string]struct{}),
		deviceSubscribers: make(map[string]map[string]struct{}),
	}
}

// RegisterDevice records a device channel, replacing any existing entry
// for the same id. The replaced channel is closed without further notice;
// its owning task notices through its own read loop.
func (r *Registry) RegisterDevice(deviceID string, ch Channel) {
	r.mu.Lock()
	old := r.devices[deviceID]
	r.devices[deviceID] = ch
	r.mu.Unlock()

	if old != nil && old != ch {
		old.Close()
		log.Printf("Device %s reconnected, replaced previous channel", deviceID)
	}
	log.Printf("Device connected: %s", deviceID)
}

// UnregisterDevice removes the device's entry. When ch is non-nil the
// entry is only removed if it still holds that exact channel, so a stale
// connection's deferred cleanup cannot evict its replacement. Idempotent.
func (r *Registry) UnregisterDevice(deviceID string, ch Channel) {
	r.mu.Lock()
	cur, ok := r.devices[deviceID]
	removed := ok && (ch == nil || cur == ch)
	if removed {
		delete(r.devices, deviceID)
	}
	r.mu.Unlock()

	if removed {
		log.Printf("Device disconnected: %s", deviceID)
	}
}

// IsDeviceConnected reports whether the device has a live channel.
func (r *Registry) IsDeviceConnected(deviceID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.devices[deviceID] != nil
}

// Device returns the device's channel, if connected.
func (r *Registry) Device(deviceID string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.devices[deviceID]
	return ch, ok
}

// RegisterSubscriber records a subscriber channel, replacing any existing
// entry for the same user id, and ensures the user has an interest set.
func (r *Registry) RegisterSubscriber(userID string, ch Channel) {
	r.mu.Lock()
	old := r.subscribers[userID]
	r.subscribers[userID] = ch
	if r.userDevices[userID] == nil {
		r.userDevices[userID] = make(map[string]struct{})
	}
	r.mu.Unlock()

	if old != nil && old != ch {
		old.Close()
		log.Printf("Subscriber %s reconnected, replaced previous channel", userID)
	}
	log.Printf("Subscriber connected: %s", userID)
}

// UnregisterSubscriber removes the subscriber's channel and prunes the
// user's entries from both sides of the interest graph. The same channel
// identity guard as UnregisterDevice applies. Idempotent.
func (r *Registry) UnregisterSubscriber(userID string, ch Channel) {
	r.mu.Lock()
	cur, ok := r.subscribers[userID]
	removed := ok && (ch == nil || cur == ch)
	if removed {
		delete(r.subscribers, userID)
		for deviceID := range r.userDevices[userID] {
			delete(r.deviceSubscribers[deviceID], userID)
			if len(r.deviceSubscribers[deviceID]) == 0 {
				delete(r.deviceSubscribers, deviceID)
			}
		}
		delete(r.userDevices, userID)
	}
	r.mu.Unlock()

	if removed {
		log.Printf("Subscriber disconnected: %s", userID)
	}
}

// IsSubscriberConnected reports whether the user has a live channel.
func (r *Registry) IsSubscriberConnected(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.subscribers[userID] != nil
}

// Subscribe adds the (user, device) pair to both sides of the interest
// graph. Authorization is the caller's responsibility; once confirmed,
// subscription cannot fail.
func (r *Registry) Subscribe(userID, deviceID string) {
	r.mu.Lock()
	if r.deviceSubscribers[deviceID] == nil {
		r.deviceSubscribers[deviceID] = make(map[string]struct{})
	}
	r.deviceSubscribers[deviceID][userID] = struct{}{}
	if r.userDevices[userID] == nil {
		r.userDevices[userID] = make(map[string]struct{})
	}
	r.userDevices[userID][deviceID] = struct{}{}
	r.mu.Unlock()

	log.Printf("User %s subscribed to device %s", userID, deviceID)
}

// UserInterests returns the device ids the user is subscribed to.
func (r *Registry) UserInterests(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.userDevices[userID]))
	for deviceID := range r.userDevices[userID] {
		out = append(out, deviceID)
	}
	return out
}

// DeviceSubscribers returns the user ids subscribed to the device,
// connected or not.
func (r *Registry) DeviceSubscribers(deviceID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.deviceSubscribers[deviceID]))
	for userID := range r.deviceSubscribers[deviceID] {
		out = append(out, userID)
	}
	return out
}

// Subscribers returns a copy of the device's currently connected
// subscribers. Callers iterate the copy outside the registry lock, so a
// slow or failing send never blocks other registry operations.
func (r *Registry) Subscribers(deviceID string) []SubscriberRef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SubscriberRef, 0, len(r.deviceSubscribers[deviceID]))
	for userID := range r.deviceSubscribers[deviceID] {
		if ch, ok := r.subscribers[userID]; ok {
			out = append(out, SubscriberRef{UserID: userID, Channel: ch})
		}
	}
	return out
}

// State returns a copy of the device's last known state.
func (r *Registry) State(deviceID string) (domain.DeviceState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.states[deviceID]
	if !ok {
		return nil, false
	}
	return st.Clone(), true
}

// UpdateState merges the given fields into the device's state, stamps
// last_update, and returns a snapshot copy. Per-device updates are applied
// under the registry lock, so in-order arrivals are applied in order.
func (r *Registry) UpdateState(deviceID string, fields map[string]any) domain.DeviceState {
	r.mu.Lock()
	st := r.states[deviceID]
	if st == nil {
		st = make(domain.DeviceState, len(fields)+1)
		r.states[deviceID] = st
	}
	for k, v := range fields {
		st[k] = v
	}
	st[domain.StateKeyLastUpdate] = time.Now().UTC().Format(time.RFC3339)
	snapshot := st.Clone()
	r.mu.Unlock()
	return snapshot
}
