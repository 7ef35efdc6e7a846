package model

import (
	"time"

	"github.com/google/uuid"
)

type ChatOperator struct {
	UserId       uuid.UUID `gorm:"type:uuid;primaryKey"`
	DisplayName  string    `gorm:"type:varchar(100)"`
	IsAvailable  bool      `gorm:"not null;index"` // no default tag: false must be written explicitly on upsert
	LastActiveAt time.Time `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (ChatOperator) TableName() string {
	return "chat_operators"
}
