// Path: internal/domain/records.go
package domain

import (
	"maps"
	"time"
)

// StateKeyLastUpdate is the reserved state field holding the RFC 3339
// timestamp of the most recent update.
const StateKeyLastUpdate = "last_update"

// DeviceState is the last known state of a device: the merged sensor and
// actuator fields plus the last_update timestamp. It is serialized as-is
// into the data object of an ESP_DATA frame.
type DeviceState map[string]any

// Clone returns a shallow copy of the state. Values are primitives set by
// the router, so a shallow copy is enough to decouple readers from writers.
func (s DeviceState) Clone() DeviceState {
	if s == nil {
		return nil
	}
	return maps.Clone(s)
}

// TelemetryRecord is a single buffered telemetry reading. It is both the
// in-memory buffer element and the row format of the on-disk mirror file.
type TelemetryRecord struct {
	DeviceID  string         `json:"device_id"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// HistoryEntry is one historical reading inside a durable device record.
type HistoryEntry struct {
	Data      map[string]any `json:"data" bson:"data"`
	Timestamp time.Time      `json:"timestamp" bson:"timestamp"`
}

// DeviceDocument is the durable per-device record written by a flush:
// the latest payload plus a bounded history of recent readings, oldest
// first. It includes struct tags for JSON serialization and BSON mapping
// for MongoDB.
type DeviceDocument struct {
	ID        string         `json:"device_id" bson:"_id"`
	Current   map[string]any `json:"current" bson:"current"`
	History   []HistoryEntry `json:"history" bson:"history"`
	UpdatedAt time.Time      `json:"updated_at" bson:"updatedAt"`
}

// AccessGrant is a durable association between a user and a device. Its
// existence is what authorizes a subscription.
type AccessGrant struct {
	UserID   string `bson:"user_id"`
	DeviceID string `bson:"device_id"`
}

// Session maps an issued token to a user id. Token issuance itself lives
// outside this service; the hub only resolves tokens.
type Session struct {
	Token     string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	CreatedAt time.Time `bson:"createdAt"`
}
