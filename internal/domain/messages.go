// Path: internal/domain/messages.go
package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// --- Message type tags ---

// MessageType identifies a real-time frame. The set below is exhaustive;
// anything else is a malformed message.
type MessageType string

const (
	TypeSensorData   MessageType = "SENSOR_DATA"
	TypeMotorCommand MessageType = "MOTOR_COMMAND"
	TypeSubscribe    MessageType = "SUBSCRIBE"
	TypeEspData      MessageType = "ESP_DATA"
	TypeError        MessageType = "ERROR"
)

// --- Enum and Custom Type for the motor action ---

// MotorAction represents the possible commands for a device's motor.
type MotorAction string

const (
	ActionStartMotor MotorAction = "START_MOTOR"
	ActionStopMotor  MotorAction = "STOP_MOTOR"
)

// UnmarshalJSON implements the json.Unmarshaler interface for MotorAction.
// Unknown actions are rejected at decode time so callers never see one.
func (a *MotorAction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch MotorAction(s) {
	case ActionStartMotor, ActionStopMotor:
		*a = MotorAction(s)
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidAction, s)
	}
}

// MotorStatus returns the device state value implied by the action.
func (a MotorAction) MotorStatus() (string, bool) {
	switch a {
	case ActionStartMotor:
		return "running", true
	case ActionStopMotor:
		return "stopped", true
	default:
		return "", false
	}
}

// --- Custom Type for sensor readings ---

// Reading is a sensor value that can be unmarshaled from a JSON number or
// a numeric JSON string. ESP firmware is not consistent about which it sends.
type Reading float64

// UnmarshalJSON implements the json.Unmarshaler interface for Reading.
func (r *Reading) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*r = Reading(f)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	parsed, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*r = Reading(parsed)
	return nil
}

// --- Inbound frames ---

// SensorData is a telemetry frame sent by a device.
type SensorData struct {
	Type        MessageType `json:"type"`
	Temperature Reading     `json:"temperature"`
	Humidity    Reading     `json:"humidity"`
}

// Fields returns the state fields carried by the frame.
func (sd SensorData) Fields() map[string]any {
	return map[string]any{
		"temperature": float64(sd.Temperature),
		"humidity":    float64(sd.Humidity),
	}
}

// Subscribe is a subscription request sent by a front-end client.
type Subscribe struct {
	Type     MessageType `json:"type"`
	DeviceID string      `json:"device_id"`
}

// envelope is used to peek at the type tag before the full decode.
type envelope struct {
	Type MessageType `json:"type"`
}

// DecodeDeviceMessage parses a raw frame from a device channel into one of
// the known inbound device variants. A frame with an unrecognized type tag
// fails with ErrUnknownMessageType rather than being silently ignored.
func DecodeDeviceMessage(raw []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed device frame: %w", err)
	}

	switch env.Type {
	case TypeSensorData:
		var sd SensorData
		if err := json.Unmarshal(raw, &sd); err != nil {
			return nil, fmt.Errorf("malformed SENSOR_DATA frame: %w", err)
		}
		return sd, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}
}

// DecodeSubscriberMessage parses a raw frame from a subscriber channel.
func DecodeSubscriberMessage(raw []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed subscriber frame: %w", err)
	}

	switch env.Type {
	case TypeSubscribe:
		var sub Subscribe
		if err := json.Unmarshal(raw, &sub); err != nil {
			return nil, fmt.Errorf("malformed SUBSCRIBE frame: %w", err)
		}
		if sub.DeviceID == "" {
			return nil, fmt.Errorf("SUBSCRIBE frame without device_id")
		}
		return sub, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}
}

// --- Outbound frames ---

// EspData carries a device's current state snapshot to a subscriber.
type EspData struct {
	Type     MessageType `json:"type"`
	DeviceID string      `json:"device_id"`
	Data     DeviceState `json:"data"`
}

// NewEspData builds an ESP_DATA frame for the given device snapshot.
func NewEspData(deviceID string, state DeviceState) EspData {
	return EspData{Type: TypeEspData, DeviceID: deviceID, Data: state}
}

// MotorCommand is a command frame sent to a device.
type MotorCommand struct {
	Type   MessageType `json:"type"`
	Action MotorAction `json:"action"`
}

// NewMotorCommand builds a MOTOR_COMMAND frame.
func NewMotorCommand(action MotorAction) MotorCommand {
	return MotorCommand{Type: TypeMotorCommand, Action: action}
}

// ErrorMessage is sent to a subscriber when a request fails; the
// connection itself stays open.
type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// NewErrorMessage builds an ERROR frame.
func NewErrorMessage(msg string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: msg}
}
