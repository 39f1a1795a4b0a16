package entities

import (
	"time"

	"gorm.io/gorm"
)

const (
	DeviceStatusOnline  = "online"
	DeviceStatusOffline = "offline"
)

// Device is a registered controller and its credentials. The gateway only
// reads credentials; registration happens elsewhere.
type Device struct {
	ID         string         `gorm:"primaryKey;type:varchar(64)" json:"id"`
	LegacyID   string         `gorm:"index;type:varchar(64)" json:"legacy_id,omitempty"` // esp32 hardware id used by older firmware
	Name       string         `json:"name"`
	Type       string         `gorm:"type:varchar(32)" json:"type"` // sump_tank | top_tank
	APIKey     string         `gorm:"type:varchar(128)" json:"-"`
	HMACSecret string         `gorm:"type:varchar(128)" json:"-"`
	IsActive   bool           `gorm:"default:true" json:"is_active"`
	Status     string         `gorm:"type:varchar(16)" json:"status"`
	LastSeenAt *time.Time     `json:"last_seen_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

// DeviceCredential is the read-only view of a Device used by authentication.
type DeviceCredential struct {
	DeviceID   string `yaml:"device_id"`
	APIKey     string `yaml:"api_key"`
	HMACSecret string `yaml:"hmac_secret"`
	IsActive   bool   `yaml:"is_active"`
}

func (d *Device) Credential() DeviceCredential {
	return DeviceCredential{
		DeviceID:   d.ID,
		APIKey:     d.APIKey,
		HMACSecret: d.HMACSecret,
		IsActive:   d.IsActive,
	}
}
