package protocol

import (
	"encoding/json"
	"time"

	"tank-gateway/entities"
)

// Outbound message types.
const (
	TypeTankReading     = "tank_reading"
	TypeSystemAlert     = "system_alert"
	TypeSystemStatus    = "system_status"
	TypeRegistrationAck = "registration_ack"
	TypeMotorCommand    = "motor_command"
	TypePong            = "pong"
	TypeError           = "error"
)

// Outbound is a frame the gateway sends.
type Outbound interface {
	MessageType() string
}

// ObserverEvent may only be delivered to dashboards.
type ObserverEvent interface {
	Outbound
	toObserver()
}

// DeviceEvent may only be delivered to devices.
type DeviceEvent interface {
	Outbound
	toDevice()
}

type frame struct {
	Type      string    `json:"type"`
	Payload   Outbound  `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Encode frames m as {type, payload, timestamp}.
func Encode(m Outbound) ([]byte, error) {
	return json.Marshal(frame{Type: m.MessageType(), Payload: m, Timestamp: time.Now().UTC()})
}

type TankReading struct {
	entities.SensorReading
}

type MotorStatusEvent struct {
	entities.MotorEvent
}

type SystemAlert struct {
	entities.Alert
}

// Status events carried by system_status.
const (
	StatusDeviceOnline  = "device_online"
	StatusDeviceOffline = "device_offline"
	StatusCommandQueued = "command_queued"
	StatusCommandAcked  = "command_acknowledged"
	StatusHeartbeat     = "heartbeat"
)

type SystemStatus struct {
	Event     string `json:"event"`
	DeviceID  string `json:"device_id,omitempty"`
	Status    string `json:"status,omitempty"`
	CommandID string `json:"command_id,omitempty"`
	Delivered *bool  `json:"delivered,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

type RegistrationAck struct {
	Role       string `json:"role"`
	DeviceID   string `json:"device_id,omitempty"`
	DeviceType string `json:"device_type,omitempty"`
}

// MotorCommand is the live push of a queued command.
type MotorCommand struct {
	CommandID string               `json:"command_id"`
	DeviceID  string               `json:"device_id"`
	Command   entities.CommandType `json:"command"`
	Params    json.RawMessage      `json:"params,omitempty"`
	ExpiresAt time.Time            `json:"expires_at"`
}

func NewMotorCommand(c *entities.MotorCommand) MotorCommand {
	return MotorCommand{
		CommandID: c.ID,
		DeviceID:  c.DeviceID,
		Command:   c.Type,
		Params:    json.RawMessage(c.Payload),
		ExpiresAt: c.TTLAt,
	}
}

type Pong struct {
	ServerTime int64 `json:"server_time"`
}

// ErrorMessage carries a machine-readable reason. Devices only ever get the
// coarse status and reason, never the underlying cause.
type ErrorMessage struct {
	Status int    `json:"status"`
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}

func (TankReading) MessageType() string      { return TypeTankReading }
func (MotorStatusEvent) MessageType() string { return TypeMotorStatus }
func (SystemAlert) MessageType() string      { return TypeSystemAlert }
func (SystemStatus) MessageType() string     { return TypeSystemStatus }
func (RegistrationAck) MessageType() string  { return TypeRegistrationAck }
func (MotorCommand) MessageType() string     { return TypeMotorCommand }
func (Pong) MessageType() string             { return TypePong }
func (ErrorMessage) MessageType() string     { return TypeError }

func (TankReading) toObserver()      {}
func (MotorStatusEvent) toObserver() {}
func (SystemAlert) toObserver()      {}
func (SystemStatus) toObserver()     {}
func (RegistrationAck) toObserver()  {}
func (ErrorMessage) toObserver()     {}

func (MotorCommand) toDevice() {}
func (Pong) toDevice()         {}
func (ErrorMessage) toDevice() {}
