package repositories

import (
	"context"
	"time"

	"tank-gateway/entities"
)

func (s *gormStore) GetDevice(ctx context.Context, id string) (*entities.Device, error) {
	var device entities.Device
	if err := s.conn(ctx).Where("id = ?", id).First(&device).Error; err != nil {
		return nil, notFound(err, "device", id)
	}
	return &device, nil
}

func (s *gormStore) GetDeviceByLegacyID(ctx context.Context, legacyID string) (*entities.Device, error) {
	var device entities.Device
	if err := s.conn(ctx).Where("legacy_id = ?", legacyID).First(&device).Error; err != nil {
		return nil, notFound(err, "device", legacyID)
	}
	return &device, nil
}

func (s *gormStore) UpdateDeviceStatus(ctx context.Context, id, status string, seenAt time.Time) error {
	res := s.conn(ctx).Model(&entities.Device{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":       status,
		"last_seen_at": seenAt,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return missing("device", id)
	}
	return nil
}
