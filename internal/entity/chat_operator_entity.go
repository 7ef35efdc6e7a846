package entity

import (
	"time"

	"github.com/google/uuid"
)

type ChatOperator struct {
	UserId       uuid.UUID
	DisplayName  string
	IsAvailable  bool
	LastActiveAt time.Time
	CreatedAt    time.Time
}
