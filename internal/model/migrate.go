package model

import "gorm.io/gorm"

// All lists the models owned by the chat subsystem, parents first.
func All() []interface{} {
	return []interface{}{
		&ChatSession{},
		&ChatMessage{},
		&ChatOperator{},
	}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(All()...)
}
