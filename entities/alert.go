package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Alert is raised by devices or derived from readings. Alerts are only ever
// acknowledged, never deleted by the gateway.
type Alert struct {
	ID              string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	TankType        string    `gorm:"type:varchar(32)" json:"tank_type"`
	ESP32ID         string    `gorm:"column:esp32_id;index;type:varchar(64)" json:"esp32_id"`
	AlertType       string    `gorm:"type:varchar(64)" json:"alert_type"`
	Severity        string    `gorm:"type:varchar(16)" json:"severity"`
	Message         string    `gorm:"type:text" json:"message"`
	LevelPercentage *float64  `json:"level_percentage,omitempty"`
	Acknowledged    bool      `json:"acknowledged"`
	Timestamp       time.Time `gorm:"index" json:"timestamp"`
	CreatedAt       time.Time `json:"created_at"`
}

func (a *Alert) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	return nil
}
