package repositories

import (
	"context"

	"tank-gateway/entities"
)

func (s *gormStore) SaveReading(ctx context.Context, r *entities.SensorReading) error {
	return s.conn(ctx).Create(r).Error
}

func (s *gormStore) LatestReading(ctx context.Context, tankType string) (*entities.SensorReading, error) {
	var r entities.SensorReading
	err := s.conn(ctx).Where("tank_type = ?", tankType).Order("timestamp DESC").First(&r).Error
	if err != nil {
		return nil, notFound(err, "reading for tank", tankType)
	}
	return &r, nil
}

func (s *gormStore) SaveMotorEvent(ctx context.Context, e *entities.MotorEvent) error {
	return s.conn(ctx).Create(e).Error
}
