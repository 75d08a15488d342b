// Package model defines data structures for the support chat service.
package model

import (
	"time"
)

// Conversation groups the messages of one chat session.
type Conversation struct {
	ID        string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
}

// TableName pins the table name used by the store.
func (Conversation) TableName() string {
	return "conversations"
}
