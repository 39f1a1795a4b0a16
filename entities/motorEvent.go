package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MotorEvent records a motor status report from the pump controller.
type MotorEvent struct {
	ID              string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	DeviceID        string    `gorm:"index;type:varchar(64)" json:"device_id"`
	MotorRunning    bool      `json:"motor_running"`
	PowerDetected   *bool     `json:"power_detected,omitempty"`
	CurrentDraw     *float64  `json:"current_draw,omitempty"`
	RuntimeSeconds  *int64    `json:"runtime_seconds,omitempty"`
	ManualOverride  *bool     `json:"manual_override,omitempty"`
	AutoModeEnabled *bool     `json:"auto_mode_enabled,omitempty"`
	Timestamp       time.Time `gorm:"index" json:"timestamp"`
	CreatedAt       time.Time `json:"created_at"`
}

func (e *MotorEvent) BeforeCreate(tx *gorm.DB) (err error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return nil
}
