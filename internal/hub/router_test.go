// Path: internal/hub/router_test.go
package hub

import (
	"errors"
	"testing"

	"esp-hub/internal/domain"
)

func TestRouter_PushTelemetryFanout(t *testing.T) {
	r := NewRegistry()
	rt := NewRouter(r)

	aliceCh := &fakeChannel{}
	bobCh := &fakeChannel{}
	carolCh := &fakeChannel{}
	r.RegisterSubscriber("alice", aliceCh)
	r.RegisterSubscriber("bob", bobCh)
	r.RegisterSubscriber("carol", carolCh)
	r.Subscribe("alice", "ESP32-A")
	r.Subscribe("bob", "ESP32-A")
	r.Subscribe("carol", "ESP32-B") // different device

	rt.PushTelemetry("ESP32-A", map[string]any{"temperature": 21.5})

	for name, ch := range map[string]*fakeChannel{"alice": aliceCh, "bob": bobCh} {
		sent := ch.sentMessages()
		if len(sent) != 1 {
			t.Fatalf("%s should have received 1 message, got %d", name, len(sent))
		}
		msg := sent[0].(domain.EspData)
		if msg.Type != domain.TypeEspData || msg.DeviceID != "ESP32-A" {
			t.Errorf("%s got unexpected envelope %+v", name, msg)
		}
		if msg.Data["temperature"] != 21.5 {
			t.Errorf("%s got data %v", name, msg.Data)
		}
	}
	if len(carolCh.sentMessages()) != 0 {
		t.Error("carol is not subscribed to ESP32-A and should see nothing")
	}
}

func TestRouter_PushTelemetryAfterUnsubscribeDisconnect(t *testing.T) {
	r := NewRegistry()
	rt := NewRouter(r)

	aliceCh := &fakeChannel{}
	r.RegisterSubscriber("alice", aliceCh)
	r.Subscribe("alice", "ESP32-A")
	r.UnregisterSubscriber("alice", aliceCh)

	rt.PushTelemetry("ESP32-A", map[string]any{"temperature": 1.0})

	if len(aliceCh.sentMessages()) != 0 {
		t.Error("a subscriber that disconnected before the push must not observe it")
	}
}

func TestRouter_PushTelemetryDropsFailingSubscriber(t *testing.T) {
	r := NewRegistry()
	rt := NewRouter(r)

	okCh := &fakeChannel{}
	badCh := &fakeChannel{sendErr: errors.New("broken pipe")}
	r.RegisterSubscriber("ok", okCh)
	r.RegisterSubscriber("bad", badCh)
	r.Subscribe("ok", "ESP32-A")
	r.Subscribe("bad", "ESP32-A")

	rt.PushTelemetry("ESP32-A", map[string]any{"temperature": 2.0})

	if len(okCh.sentMessages()) != 1 {
		t.Error("a failing subscriber must not abort delivery to the others")
	}
	if r.IsSubscriberConnected("bad") {
		t.Error("a failed send should unregister the subscriber")
	}
	if !r.IsSubscriberConnected("ok") {
		t.Error("the healthy subscriber must stay registered")
	}
}

func TestRouter_SendCommandNotConnected(t *testing.T) {
	r := NewRegistry()
	rt := NewRouter(r)

	err := rt.SendCommand("ESP32-A", domain.ActionStartMotor)
	if !errors.Is(err, domain.ErrDeviceNotConnected) {
		t.Fatalf("expected ErrDeviceNotConnected, got %v", err)
	}
	if _, ok := r.State("ESP32-A"); ok {
		t.Error("a failed command must not mutate device state")
	}
}

func TestRouter_SendCommandSuccessBroadcastsState(t *testing.T) {
	r := NewRegistry()
	rt := NewRouter(r)

	deviceCh := &fakeChannel{}
	aliceCh := &fakeChannel{}
	r.RegisterDevice("ESP32-A", deviceCh)
	r.RegisterSubscriber("alice", aliceCh)
	r.Subscribe("alice", "ESP32-A")

	if err := rt.SendCommand("ESP32-A", domain.ActionStartMotor); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sent := deviceCh.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("device should have received 1 command, got %d", len(sent))
	}
	cmd := sent[0].(domain.MotorCommand)
	if cmd.Type != domain.TypeMotorCommand || cmd.Action != domain.ActionStartMotor {
		t.Errorf("unexpected command %+v", cmd)
	}

	state, ok := r.State("ESP32-A")
	if !ok || state["motor_status"] != "running" {
		t.Errorf("command should set motor_status running, state %v", state)
	}

	pushed := aliceCh.sentMessages()
	if len(pushed) != 1 {
		t.Fatalf("subscriber should see the command-induced state, got %d messages", len(pushed))
	}
	if pushed[0].(domain.EspData).Data["motor_status"] != "running" {
		t.Errorf("subscriber saw %v", pushed[0])
	}
}

func TestRouter_SendCommandFailureUnregistersDevice(t *testing.T) {
	r := NewRegistry()
	rt := NewRouter(r)

	deviceCh := &fakeChannel{sendErr: errors.New("connection reset")}
	r.RegisterDevice("ESP32-A", deviceCh)

	err := rt.SendCommand("ESP32-A", domain.ActionStopMotor)
	if !errors.Is(err, domain.ErrSendFailed) {
		t.Fatalf("expected ErrSendFailed, got %v", err)
	}
	if r.IsDeviceConnected("ESP32-A") {
		t.Error("a failed send should unregister the device")
	}
	if _, ok := r.State("ESP32-A"); ok {
		t.Error("a failed command must not mutate device state")
	}
}
