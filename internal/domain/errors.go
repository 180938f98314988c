// Path: internal/domain/errors.go
package domain

import "errors"

var (
	// ErrDeviceNotConnected is returned when a command targets a device
	// that has no live channel. Maps to a 404 at the HTTP layer.
	ErrDeviceNotConnected = errors.New("device not connected")

	// ErrSendFailed is returned when a channel existed but the underlying
	// send failed. The registry entry has already been removed by then.
	ErrSendFailed = errors.New("send failed")

	// ErrNotAuthorized is returned when no durable association exists
	// between the user and the device.
	ErrNotAuthorized = errors.New("not authorized for device")

	// ErrInvalidAction is returned for a motor action outside the known set.
	ErrInvalidAction = errors.New("invalid motor action")

	// ErrUnknownMessageType is returned when an inbound frame carries a
	// type outside the closed set of known messages.
	ErrUnknownMessageType = errors.New("unknown message type")

	// ErrInvalidToken is returned when a session token does not resolve
	// to a user.
	ErrInvalidToken = errors.New("invalid session token")
)
