package repositories

import (
	"context"
	"time"

	"tank-gateway/entities"
)

func (s *gormStore) SaveCommand(ctx context.Context, cmd *entities.MotorCommand) error {
	return s.conn(ctx).Create(cmd).Error
}

func (s *gormStore) GetCommand(ctx context.Context, id string) (*entities.MotorCommand, error) {
	var cmd entities.MotorCommand
	if err := s.conn(ctx).Where("id = ?", id).First(&cmd).Error; err != nil {
		return nil, notFound(err, "command", id)
	}
	return &cmd, nil
}

func (s *gormStore) AcknowledgeCommand(ctx context.Context, id string) error {
	// Filtering on acknowledged keeps the update a no-op the second time.
	return s.conn(ctx).Model(&entities.MotorCommand{}).
		Where("id = ? AND acknowledged = ?", id, false).
		Update("acknowledged", true).Error
}

func (s *gormStore) PendingCommands(ctx context.Context, deviceID string, now time.Time, limit int) ([]entities.MotorCommand, error) {
	if limit <= 0 {
		limit = 10
	}
	var cmds []entities.MotorCommand
	err := s.conn(ctx).
		Where("device_id = ? AND acknowledged = ? AND ttl_at > ?", deviceID, false, now).
		Order("created_at ASC").
		Limit(limit).
		Find(&cmds).Error
	return cmds, err
}
