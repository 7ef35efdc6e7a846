package model

import (
	"time"

	"github.com/google/uuid"
)

type ChatMessage struct {
	Id         uuid.UUID  `gorm:"type:uuid;primaryKey"`
	SessionId  uuid.UUID  `gorm:"type:uuid;not null;index:idx_chat_messages_session_sent,priority:1"`
	SenderType string     `gorm:"type:varchar(16);not null"`
	SenderId   *uuid.UUID `gorm:"type:uuid"`
	Content    string     `gorm:"type:text;not null"`
	SentAt     time.Time  `gorm:"not null;index:idx_chat_messages_session_sent,priority:2"`
	IsRead     bool       `gorm:"not null;default:false"`
	ReadAt     *time.Time
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
