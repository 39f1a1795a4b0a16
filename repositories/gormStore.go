package repositories

import (
	"context"
	"errors"
	"fmt"

	"tank-gateway/db"

	"gorm.io/gorm"
)

type gormStore struct {
	db db.Database
}

// NewGormStore returns a Store backed by gorm (postgres or sqlite).
func NewGormStore(database db.Database) Store {
	return &gormStore{db: database}
}

func (s *gormStore) conn(ctx context.Context) *gorm.DB {
	return s.db.GetDB().WithContext(ctx)
}

func (s *gormStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func notFound(err error, what, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return missing(what, id)
	}
	return err
}

func missing(what, id string) error {
	return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
}
