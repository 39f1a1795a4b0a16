package entities

import (
	"time"

	"tank-gateway/cache"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CommandType string

const (
	CommandMotorControl   CommandType = "motor_control"
	CommandEmergencyStop  CommandType = "emergency_stop"
	CommandEmergencyReset CommandType = "emergency_reset"
)

func (t CommandType) Valid() bool {
	switch t {
	case CommandMotorControl, CommandEmergencyStop, CommandEmergencyReset:
		return true
	}
	return false
}

// MotorCommand is an addressed, time-bounded instruction for a device.
// The only mutation after creation is setting Acknowledged.
type MotorCommand struct {
	ID           string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	DeviceID     string         `gorm:"index;type:varchar(64)" json:"device_id"`
	Type         CommandType    `gorm:"type:varchar(32)" json:"type"`
	Payload      datatypes.JSON `json:"payload"`
	CreatedAt    time.Time      `json:"created_at"`
	TTLAt        time.Time      `gorm:"index" json:"ttl_at"`
	RetryCount   int            `json:"retry_count"`
	Acknowledged bool           `gorm:"index" json:"acknowledged"`
}

func (c *MotorCommand) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// Deliverable reports whether the command may still be handed to a device.
func (c *MotorCommand) Deliverable(now time.Time) bool {
	return !c.Acknowledged && cache.ExpiresAt(c, c.TTLAt).Alive(now)
}
