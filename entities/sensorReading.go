package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	TankTop  = "top_tank"
	TankSump = "sump_tank"
)

// SensorReading is one telemetry sample. Readings are never updated, only
// superseded by newer ones.
type SensorReading struct {
	ID              string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	DeviceID        string    `gorm:"index;type:varchar(64)" json:"device_id"`
	TankType        string    `gorm:"index;type:varchar(32)" json:"tank_type"`
	LevelPercentage float64   `json:"level_percentage"`
	LevelLiters     float64   `json:"level_liters"`
	SensorHealth    string    `gorm:"type:varchar(32)" json:"sensor_health"`
	ESP32ID         string    `gorm:"column:esp32_id;type:varchar(64)" json:"esp32_id"`
	BatteryVoltage  *float64  `json:"battery_voltage,omitempty"`
	SignalStrength  *int      `json:"signal_strength,omitempty"`
	FloatSwitch     *bool     `json:"float_switch,omitempty"`
	MotorRunning    *bool     `json:"motor_running,omitempty"`
	ManualOverride  *bool     `json:"manual_override,omitempty"`
	AutoModeEnabled *bool     `json:"auto_mode_enabled,omitempty"`
	ProtocolVersion int       `json:"protocol_version"`
	Timestamp       time.Time `gorm:"index" json:"timestamp"`
	CreatedAt       time.Time `json:"created_at"`
}

func (r *SensorReading) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	return nil
}
