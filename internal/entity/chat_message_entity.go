package entity

import (
	"time"

	"github.com/google/uuid"
)

type SenderType string

const (
	SenderVisitor  SenderType = "visitor"
	SenderOperator SenderType = "operator"
	SenderSystem   SenderType = "system"
)

func (s SenderType) IsValid() bool {
	switch s {
	case SenderVisitor, SenderOperator, SenderSystem:
		return true
	}
	return false
}

type ChatMessage struct {
	Id         uuid.UUID
	SessionId  uuid.UUID
	SenderType SenderType
	SenderId   *uuid.UUID // operator user id, set only for operator messages
	Content    string
	Timestamp  time.Time
	IsRead     bool
	ReadAt     *time.Time
}
