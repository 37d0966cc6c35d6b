package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
)

func TestDocumentStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to DocumentStatus
		ok       bool
	}{
		{DocumentPending, DocumentProcessing, true},
		{DocumentProcessing, DocumentCompleted, true},
		{DocumentProcessing, DocumentFailed, true},
		{DocumentPending, DocumentCompleted, false},
		{DocumentPending, DocumentFailed, false},
		{DocumentCompleted, DocumentFailed, false},
		{DocumentFailed, DocumentProcessing, false},
		{DocumentCompleted, DocumentProcessing, false},
		{DocumentProcessing, DocumentPending, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}

	assert.True(t, DocumentCompleted.Terminal())
	assert.True(t, DocumentFailed.Terminal())
	assert.False(t, DocumentProcessing.Terminal())
}

func TestStringParameters(t *testing.T) {
	d := &DocumentRequest{Parameters: datatypes.JSONMap{"갑": "홍길동", "count": float64(2)}}
	assert.Equal(t, map[string]string{"갑": "홍길동"}, d.StringParameters())
}
