// Package state holds the in-flight document generation state of each
// conversation between chat turns.
package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"legalmind/internal/config"
	"legalmind/internal/templates"
)

type Status string

const (
	StatusAwaitingTemplate   Status = "awaiting-template"
	StatusAwaitingParameters Status = "awaiting-parameters"
	StatusRendering          Status = "rendering"
	StatusCompleted          Status = "completed"
	StatusFailed             Status = "failed"
)

var ErrNotFound = errors.New("generation state not found")

// Generation tracks one document request being assembled over several turns.
// Collected only ever grows.
type Generation struct {
	ConversationID string                 `json:"conversation_id"`
	UserID         string                 `json:"user_id"`
	TemplateType   templates.DocumentType `json:"template_type,omitempty"`
	Collected      map[string]string      `json:"collected"`
	Status         Status                 `json:"status"`
	Clarifications int                    `json:"clarifications"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

func NewGeneration(conversationID, userID string, now time.Time) *Generation {
	return &Generation{
		ConversationID: conversationID,
		UserID:         userID,
		Collected:      make(map[string]string),
		Status:         StatusAwaitingTemplate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Merge adds values for keys not collected yet and returns the keys it added.
// Existing values are kept.
func (g *Generation) Merge(values map[string]string) []string {
	if g.Collected == nil {
		g.Collected = make(map[string]string)
	}
	var added []string
	for k, v := range values {
		if v == "" {
			continue
		}
		if existing, ok := g.Collected[k]; ok && existing != "" {
			continue
		}
		g.Collected[k] = v
		added = append(added, k)
	}
	return added
}

func (g *Generation) Clone() *Generation {
	out := *g
	out.Collected = make(map[string]string, len(g.Collected))
	for k, v := range g.Collected {
		out.Collected[k] = v
	}
	return &out
}

// Store persists generation state keyed by conversation id.
type Store interface {
	Get(ctx context.Context, conversationID string) (*Generation, error)
	Save(ctx context.Context, g *Generation) error
	Delete(ctx context.Context, conversationID string) error
}

// Sweeper is implemented by stores that need explicit expiry.
type Sweeper interface {
	Sweep(now time.Time) int
}

func New(ctx context.Context, cfg config.StateConfig) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(cfg.TTL), nil
	case "redis":
		client, err := Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewRedisStore(client, cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unsupported state backend: %s", cfg.Backend)
	}
}
