package entity

import (
	"time"

	"github.com/google/uuid"
)

type ChatSession struct {
	Id                uuid.UUID
	VisitorId         string
	IsArchived        bool
	HasUnreadMessages bool
	LastMessageAt     time.Time
	ArchivedAt        *time.Time
	CreatedAt         time.Time
}
