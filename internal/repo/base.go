package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base carries the gorm connection shared by the persistence repositories.
type Base struct {
	db *gorm.DB
}

// NewBase constructs a Base backed by the provided connection.
func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the connection bound to ctx. A nil context yields the raw connection.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

