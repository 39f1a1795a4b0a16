package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Message types understood by the gateway.
const (
	TypeRegister        = "register"
	TypeSensorData      = "sensor_data"
	TypeMotorStatus     = "motor_status"
	TypeHeartbeat       = "heartbeat"
	TypeAlert           = "alert"
	TypeCommandAck      = "command_ack"
	TypeMotorControl    = "motor_control"
	TypeAutoModeControl = "auto_mode_control"
	TypeResetManual     = "reset_manual"
)

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrBadEnvelope = errors.New("bad message envelope")
)

// Envelope is the framing used in both directions: {type, payload|data}.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Body returns whichever of payload or data was sent.
func (e Envelope) Body() json.RawMessage {
	if len(e.Payload) > 0 {
		return e.Payload
	}
	return e.Data
}

// DeviceMessage is anything a device may send over the stream.
type DeviceMessage interface {
	fromDevice()
}

// ObserverMessage is anything a dashboard may send over the stream.
type ObserverMessage interface {
	fromObserver()
}

// Register is the handshake. A device_id makes the sender a device; without
// one it is an observer.
type Register struct {
	DeviceID        string `json:"device_id,omitempty"`
	DeviceType      string `json:"device_type,omitempty"`
	APIKey          string `json:"api_key,omitempty"`
	Signature       string `json:"signature,omitempty"`
	Timestamp       string `json:"timestamp,omitempty"`
	FirmwareVersion string `json:"firmware_version,omitempty"`
}

type SensorData struct {
	DeviceID        string   `json:"device_id,omitempty"`
	TankType        string   `json:"tank_type"`
	LevelPercentage float64  `json:"level_percentage"`
	LevelLiters     float64  `json:"level_liters"`
	SensorHealth    string   `json:"sensor_health,omitempty"`
	ESP32ID         string   `json:"esp32_id,omitempty"`
	BatteryVoltage  *float64 `json:"battery_voltage,omitempty"`
	SignalStrength  *int     `json:"signal_strength,omitempty"`
	FloatSwitch     *bool    `json:"float_switch,omitempty"`
	MotorRunning    *bool    `json:"motor_running,omitempty"`
	ManualOverride  *bool    `json:"manual_override,omitempty"`
	AutoModeEnabled *bool    `json:"auto_mode_enabled,omitempty"`
	Timestamp       *Time    `json:"timestamp,omitempty"`
}

type MotorStatus struct {
	DeviceID        string   `json:"device_id,omitempty"`
	MotorRunning    bool     `json:"motor_running"`
	PowerDetected   *bool    `json:"power_detected,omitempty"`
	CurrentDraw     *float64 `json:"current_draw,omitempty"`
	RuntimeSeconds  *int64   `json:"runtime_seconds,omitempty"`
	ManualOverride  *bool    `json:"manual_override,omitempty"`
	AutoModeEnabled *bool    `json:"auto_mode_enabled,omitempty"`
	Timestamp       *Time    `json:"timestamp,omitempty"`
}

type Heartbeat struct {
	DeviceID       string `json:"device_id,omitempty"`
	UptimeSeconds  *int64 `json:"uptime_seconds,omitempty"`
	FreeHeap       *int64 `json:"free_heap,omitempty"`
	SignalStrength *int   `json:"signal_strength,omitempty"`
}

type DeviceAlert struct {
	DeviceID        string   `json:"device_id,omitempty"`
	TankType        string   `json:"tank_type,omitempty"`
	ESP32ID         string   `json:"esp32_id,omitempty"`
	AlertType       string   `json:"alert_type"`
	Severity        string   `json:"severity,omitempty"`
	Message         string   `json:"message"`
	LevelPercentage *float64 `json:"level_percentage,omitempty"`
	Timestamp       *Time    `json:"timestamp,omitempty"`
}

type CommandAck struct {
	CommandID string `json:"command_id"`
}

type MotorControl struct {
	State bool `json:"state"`
}

type AutoModeControl struct {
	Enabled bool `json:"enabled"`
}

type ResetManual struct{}

func (Register) fromDevice()    {}
func (SensorData) fromDevice()  {}
func (MotorStatus) fromDevice() {}
func (Heartbeat) fromDevice()   {}
func (DeviceAlert) fromDevice() {}
func (CommandAck) fromDevice()  {}

func (Register) fromObserver()        {}
func (MotorControl) fromObserver()    {}
func (AutoModeControl) fromObserver() {}
func (ResetManual) fromObserver()     {}

// DecodeEnvelope reads only the framing.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	if env.Type == "" {
		return env, fmt.Errorf("%w: missing type", ErrBadEnvelope)
	}
	return env, nil
}

// DecodeDevice parses a device frame into its concrete message.
func DecodeDevice(raw []byte) (DeviceMessage, error) {
	env, err := DecodeEnvelope(raw)
	if err != nil {
		return nil, err
	}
	switch env.Type {
	case TypeRegister:
		return decodeBody[Register](env, raw)
	case TypeSensorData:
		return decodeBody[SensorData](env, raw)
	case TypeMotorStatus:
		return decodeBody[MotorStatus](env, raw)
	case TypeHeartbeat:
		return decodeBody[Heartbeat](env, raw)
	case TypeAlert:
		return decodeBody[DeviceAlert](env, raw)
	case TypeCommandAck:
		return decodeBody[CommandAck](env, raw)
	}
	return nil, fmt.Errorf("%w from device: %q", ErrUnknownType, env.Type)
}

// DecodeObserver parses a dashboard frame into its concrete message.
func DecodeObserver(raw []byte) (ObserverMessage, error) {
	env, err := DecodeEnvelope(raw)
	if err != nil {
		return nil, err
	}
	switch env.Type {
	case TypeRegister:
		return decodeBody[Register](env, raw)
	case TypeMotorControl:
		return decodeBody[MotorControl](env, raw)
	case TypeAutoModeControl:
		return decodeBody[AutoModeControl](env, raw)
	case TypeResetManual:
		return ResetManual{}, nil
	}
	return nil, fmt.Errorf("%w from observer: %q", ErrUnknownType, env.Type)
}

// DecodeBody decodes a single-purpose body such as an HTTP ingest request,
// where the route already names the message type. Both the enveloped
// {type, payload|data} form and the flat form are accepted.
func DecodeBody[T any](raw []byte) (T, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	return decodeBody[T](env, raw)
}

// decodeBody unmarshals the envelope body. Older firmware sends flat frames
// with the fields beside "type", so an absent body falls back to the frame.
func decodeBody[T any](env Envelope, raw []byte) (T, error) {
	var v T
	body := env.Body()
	if len(body) == 0 {
		body = raw
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return v, fmt.Errorf("%w: %s body: %v", ErrBadEnvelope, env.Type, err)
	}
	return v, nil
}

// Time accepts RFC 3339 strings or unix seconds, the two forms firmware sends.
type Time struct {
	time.Time
}

func (t *Time) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err == nil {
		t.Time = time.Unix(int64(secs), 0).UTC()
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return err
	}
	t.Time = parsed.UTC()
	return nil
}

func (t Time) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

// Or returns the carried time, or fallback when t is nil or zero.
func (t *Time) Or(fallback time.Time) time.Time {
	if t == nil || t.IsZero() {
		return fallback
	}
	return t.Time
}
