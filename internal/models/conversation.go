package models

import (
	"time"

	"gorm.io/gorm"
)

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

type Conversation struct {
	ID        string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    string         `gorm:"type:varchar(128);not null;index" json:"user_id"`
	Title     string         `gorm:"type:varchar(255)" json:"title"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `gorm:"index" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Messages []Message `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`
}

type Message struct {
	ID                string      `gorm:"type:varchar(36);primaryKey" json:"id"`
	ConversationID    string      `gorm:"type:varchar(36);not null;index" json:"conversation_id"`
	UserID            string      `gorm:"type:varchar(128);not null" json:"user_id"`
	Role              MessageRole `gorm:"type:varchar(16);not null" json:"role"`
	Content           string      `gorm:"type:text;not null" json:"content"`
	DocumentRequestID *string     `gorm:"type:varchar(36);index" json:"document_request_id,omitempty"`
	CreatedAt         time.Time   `gorm:"index" json:"created_at"`
}
