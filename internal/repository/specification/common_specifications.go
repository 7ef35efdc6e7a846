package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ByID struct {
	ID uuid.UUID
}

func (s ByID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("id = ?", s.ID)
}

// OrderBy sorts on a single column. Field is a column name, never user input.
type OrderBy struct {
	Field string
	Desc  bool
}

func (s OrderBy) Apply(db *gorm.DB) *gorm.DB {
	return db.Order(clause.OrderByColumn{Column: clause.Column{Name: s.Field}, Desc: s.Desc})
}

// Pagination leaves the query unbounded when Limit is zero.
type Pagination struct {
	Limit  int
	Offset int
}

func (s Pagination) Apply(db *gorm.DB) *gorm.DB {
	if s.Limit > 0 {
		db = db.Limit(s.Limit)
	}
	if s.Offset > 0 {
		db = db.Offset(s.Offset)
	}
	return db
}
