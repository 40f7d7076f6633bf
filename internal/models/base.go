package models

import (
	"time"

	"stockroom/internal/uuid"

	"gorm.io/gorm"
)

// Base contains the identity and bookkeeping columns shared by all tables.
// IDs are UUIDv7 strings so rows sort by creation time.
type Base struct {
	ID        string         `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate hook generates a UUIDv7 for new records
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New()
	}
	return nil
}
