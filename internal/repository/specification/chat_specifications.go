package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ByChatSessionID struct {
	ChatSessionID uuid.UUID
}

func (s ByChatSessionID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("session_id = ?", s.ChatSessionID)
}

type ByVisitorID struct {
	VisitorID string
}

func (s ByVisitorID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("visitor_id = ?", s.VisitorID)
}

// ActiveSessions keeps non-archived sessions only.
type ActiveSessions struct{}

func (s ActiveSessions) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("is_archived = ?", false)
}

type ArchivedSessions struct{}

func (s ArchivedSessions) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("is_archived = ?", true)
}

type UnreadSessions struct{}

func (s UnreadSessions) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("has_unread_messages = ?", true)
}

// ByArchivedAt orders archived sessions newest first. Rows without an archive
// time sort last on every dialect; Postgres would otherwise put NULLs first.
type ByArchivedAt struct{}

func (s ByArchivedAt) Apply(db *gorm.DB) *gorm.DB {
	return db.Order("archived_at IS NULL").Order("archived_at DESC").Order("id DESC")
}

// ByRecentActivity orders sessions for operator triage.
type ByRecentActivity struct{}

func (s ByRecentActivity) Apply(db *gorm.DB) *gorm.DB {
	return db.Order("last_message_at DESC").Order("created_at DESC").Order("id DESC")
}

// ByTimestamp orders messages in append order.
type ByTimestamp struct {
	Desc bool
}

func (s ByTimestamp) Apply(db *gorm.DB) *gorm.DB {
	if s.Desc {
		return db.Order("sent_at DESC").Order("id DESC")
	}
	return db.Order("sent_at ASC").Order("id ASC")
}

type Unread struct{}

func (s Unread) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("is_read = ?", false)
}

type AvailableOperators struct{}

func (s AvailableOperators) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("is_available = ?", true)
}

type ByUserID struct {
	UserID uuid.UUID
}

func (s ByUserID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("user_id = ?", s.UserID)
}
