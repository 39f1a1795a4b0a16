package repositories

import (
	"context"

	"tank-gateway/entities"
)

func (s *gormStore) SaveAlert(ctx context.Context, a *entities.Alert) error {
	return s.conn(ctx).Create(a).Error
}

func (s *gormStore) AcknowledgeAlert(ctx context.Context, id string) error {
	res := s.conn(ctx).Model(&entities.Alert{}).Where("id = ?", id).Update("acknowledged", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := s.conn(ctx).Model(&entities.Alert{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return missing("alert", id)
		}
	}
	return nil
}
