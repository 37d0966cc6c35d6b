package models

import (
	"time"

	"gorm.io/datatypes"
)

type DocumentStatus string

const (
	DocumentPending    DocumentStatus = "pending"
	DocumentProcessing DocumentStatus = "processing"
	DocumentCompleted  DocumentStatus = "completed"
	DocumentFailed     DocumentStatus = "failed"
)

func (s DocumentStatus) Terminal() bool {
	return s == DocumentCompleted || s == DocumentFailed
}

// CanTransitionTo reports whether s may move to next:
// pending -> processing -> completed | failed.
func (s DocumentStatus) CanTransitionTo(next DocumentStatus) bool {
	switch s {
	case DocumentPending:
		return next == DocumentProcessing
	case DocumentProcessing:
		return next == DocumentCompleted || next == DocumentFailed
	}
	return false
}

// DocumentRequest is one generation attempt. FileURL is set only once the
// request is completed.
type DocumentRequest struct {
	ID             string            `gorm:"type:varchar(36);primaryKey" json:"id"`
	DocumentType   string            `gorm:"type:varchar(64);not null;index" json:"document_type"`
	Parameters     datatypes.JSONMap `json:"parameters"`
	Status         DocumentStatus    `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	FileURL        *string           `gorm:"type:text" json:"file_url"`
	ObjectKey      string            `gorm:"type:varchar(512)" json:"object_key,omitempty"`
	ErrorMsg       string            `gorm:"type:text" json:"error,omitempty"`
	ConversationID string            `gorm:"type:varchar(36);index" json:"conversation_id"`
	UserID         string            `gorm:"type:varchar(128);not null;index" json:"user_id"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `gorm:"index" json:"updated_at"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
}

func (DocumentRequest) TableName() string {
	return "document_requests"
}

// StringParameters returns Parameters with non-string values dropped.
func (d *DocumentRequest) StringParameters() map[string]string {
	out := make(map[string]string, len(d.Parameters))
	for k, v := range d.Parameters {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
