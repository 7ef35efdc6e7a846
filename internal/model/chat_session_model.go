package model

import (
	"time"

	"github.com/google/uuid"
)

// ChatSession is one visitor conversation. The partial unique index keeps a
// single non-archived row per visitor.
type ChatSession struct {
	Id                uuid.UUID  `gorm:"type:uuid;primaryKey"`
	VisitorId         string     `gorm:"type:varchar(128);not null;index;uniqueIndex:idx_chat_sessions_active_visitor,where:is_archived = false"`
	IsArchived        bool       `gorm:"not null;default:false;index:idx_chat_sessions_triage,priority:1"`
	HasUnreadMessages bool       `gorm:"not null;default:false"`
	LastMessageAt     time.Time  `gorm:"not null;index:idx_chat_sessions_triage,priority:2"`
	ArchivedAt        *time.Time `gorm:"index"`
	CreatedAt         time.Time  `gorm:"not null"`

	Messages []ChatMessage `gorm:"foreignKey:SessionId;constraint:OnDelete:CASCADE"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}
