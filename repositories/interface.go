package repositories

import (
	"context"
	"errors"
	"time"

	"tank-gateway/entities"
)

var ErrNotFound = errors.New("record not found")

type DeviceRepository interface {
	GetDevice(ctx context.Context, id string) (*entities.Device, error)
	GetDeviceByLegacyID(ctx context.Context, legacyID string) (*entities.Device, error)
	UpdateDeviceStatus(ctx context.Context, id, status string, seenAt time.Time) error
}

type ReadingRepository interface {
	SaveReading(ctx context.Context, r *entities.SensorReading) error
	LatestReading(ctx context.Context, tankType string) (*entities.SensorReading, error)
	SaveMotorEvent(ctx context.Context, e *entities.MotorEvent) error
}

type AlertRepository interface {
	SaveAlert(ctx context.Context, a *entities.Alert) error
	AcknowledgeAlert(ctx context.Context, id string) error
}

type CommandRepository interface {
	SaveCommand(ctx context.Context, cmd *entities.MotorCommand) error
	GetCommand(ctx context.Context, id string) (*entities.MotorCommand, error)
	// AcknowledgeCommand is idempotent; acknowledging twice is not an error.
	AcknowledgeCommand(ctx context.Context, id string) error
	// PendingCommands returns unacknowledged commands whose TTL is after now, oldest first.
	PendingCommands(ctx context.Context, deviceID string, now time.Time, limit int) ([]entities.MotorCommand, error)
}

// Store is everything the gateway needs from persistence. Each backend
// implements it once; gateway logic is written only against this interface.
type Store interface {
	DeviceRepository
	ReadingRepository
	AlertRepository
	CommandRepository
	Ping(ctx context.Context) error
}
