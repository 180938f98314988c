// Path: internal/service/service_test.go
package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"esp-hub/internal/buffer"
	"esp-hub/internal/config"
	"esp-hub/internal/domain"
	"esp-hub/internal/hub"
)

type fakeAccess struct {
	grants map[string]bool // "user/device"
}

func (f *fakeAccess) IsSubscriptionAuthorized(ctx context.Context, userID, deviceID string) bool {
	return f.grants[userID+"/"+deviceID]
}

func (f *fakeAccess) IsDeviceProvisioned(ctx context.Context, deviceID string) bool { return true }

func (f *fakeAccess) LookupSession(ctx context.Context, token string) (string, error) {
	return "", domain.ErrInvalidToken
}

type fakeDevices struct{}

func (fakeDevices) FindByID(ctx context.Context, deviceID string) (*domain.DeviceDocument, error) {
	return nil, nil
}

type fakeBatchStore struct{}

func (fakeBatchStore) SaveBatch(ctx context.Context, docs []domain.DeviceDocument) error { return nil }

type nopChannel struct{}

func (nopChannel) Send(v any) error { return nil }
func (nopChannel) Close() error     { return nil }

func newTestService(t *testing.T, access AccessStorage) (*Service, *hub.Registry) {
	t.Helper()
	registry := hub.NewRegistry()
	router := hub.NewRouter(registry)
	buf := buffer.New(config.BufferConfig{
		BatchSize:            1000,
		FlushIntervalSeconds: 3600,
		MirrorPath:           filepath.Join(t.TempDir(), "mirror.json"),
	}, fakeBatchStore{})
	return NewService(registry, router, buf, fakeDevices{}, access), registry
}

func TestSubscribe_AccessCheck(t *testing.T) {
	svc, registry := newTestService(t, &fakeAccess{grants: map[string]bool{"alice/ESP32-A": true}})
	ctx := context.Background()

	if _, err := svc.Subscribe(ctx, "alice", "ESP32-B"); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if len(registry.UserInterests("alice")) != 0 {
		t.Error("a refused subscription must not touch the interest graph")
	}

	state, err := svc.Subscribe(ctx, "alice", "ESP32-A")
	if err != nil {
		t.Fatalf("authorized subscribe failed: %v", err)
	}
	if state != nil {
		t.Errorf("no state was ever reported, got %v", state)
	}
	if len(registry.DeviceSubscribers("ESP32-A")) != 1 {
		t.Error("subscription not recorded")
	}
}

func TestSubscribe_ReturnsCurrentSnapshot(t *testing.T) {
	svc, registry := newTestService(t, &fakeAccess{grants: map[string]bool{"alice/ESP32-A": true}})
	registry.UpdateState("ESP32-A", map[string]any{"temperature": 21.5})

	state, err := svc.Subscribe(context.Background(), "alice", "ESP32-A")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if state == nil || state["temperature"] != 21.5 {
		t.Errorf("expected the cached snapshot, got %v", state)
	}
}

func TestHandleTelemetry_RoutesAndBuffers(t *testing.T) {
	svc, registry := newTestService(t, &fakeAccess{})
	registry.RegisterSubscriber("alice", nopChannel{})
	registry.Subscribe("alice", "ESP32-A")

	svc.HandleTelemetry("ESP32-A", domain.SensorData{
		Type:        domain.TypeSensorData,
		Temperature: 21.5,
		Humidity:    40,
	})

	state, ok := svc.GetState("ESP32-A")
	if !ok || state["temperature"] != 21.5 || state["humidity"] != 40.0 {
		t.Errorf("state not updated: %v", state)
	}
	if svc.buffer.Len() != 1 {
		t.Errorf("telemetry not buffered, len %d", svc.buffer.Len())
	}
}

func TestSendCommand_RejectsUnknownAction(t *testing.T) {
	svc, registry := newTestService(t, &fakeAccess{})
	registry.RegisterDevice("ESP32-A", nopChannel{})

	if err := svc.SendCommand("ESP32-A", "EXPLODE"); !errors.Is(err, domain.ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction, got %v", err)
	}
	if err := svc.SendCommand("ESP32-A", domain.ActionStartMotor); err != nil {
		t.Fatalf("valid command failed: %v", err)
	}
}
