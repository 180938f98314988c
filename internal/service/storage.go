// Path: internal/service/storage.go
package service

import (
	"context"

	"esp-hub/internal/domain"
)

// DeviceStorage defines the interface for reading durable device records.
type DeviceStorage interface {
	// FindByID retrieves the durable record for a device, or nil if the
	// device has never been flushed.
	FindByID(ctx context.Context, deviceID string) (*domain.DeviceDocument, error)
}

// AccessStorage defines the access-check hook consumed by the core. The
// implementation is a black box: deterministic for a given durable state,
// side-effect-free, and any lookup failure reads as "not authorized".
type AccessStorage interface {
	// IsSubscriptionAuthorized reports whether a durable association
	// exists between the user and the device.
	IsSubscriptionAuthorized(ctx context.Context, userID, deviceID string) bool

	// IsDeviceProvisioned reports whether the device may connect at all.
	IsDeviceProvisioned(ctx context.Context, deviceID string) bool

	// LookupSession resolves an already-issued token to a user id.
	LookupSession(ctx context.Context, token string) (string, error)
}
