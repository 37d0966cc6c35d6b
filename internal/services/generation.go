package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"legalmind/internal/extractor"
	"legalmind/internal/logger"
	"legalmind/internal/models"
	"legalmind/internal/state"
	"legalmind/internal/templates"
)

const (
	MsgGenerationFailed = "죄송합니다. 문서를 생성하는 중 오류가 발생했습니다. 잠시 후 다시 시도해 주세요."
	MsgTemplateMissing  = "요청하신 문서 양식을 찾을 수 없습니다. 다시 요청해 주세요."

	MsgClarificationAbandoned = "문서 종류를 확인하지 못해 문서 작성을 중단했습니다. 필요하실 때 원하시는 문서 이름과 함께 다시 요청해 주세요."
)

// maxClarifications is how many times a conversation is asked which
// document it wants before the request is dropped.
const maxClarifications = 2

type documentClassifier interface {
	Classify(ctx context.Context, text string) Classification
}

type parameterExtractor interface {
	Extract(ctx context.Context, text string, schema *templates.Schema) extractor.Result
}

type documentGenerator interface {
	Generate(ctx context.Context, in GenerateInput) (*models.DocumentRequest, error)
}

type Turn struct {
	ConversationID string
	UserID         string
	Text           string
}

// TurnResult is what one user turn did to the conversation's document.
type TurnResult struct {
	Reply        string                  `json:"reply"`
	Status       state.Status            `json:"status"`
	DocumentType templates.DocumentType  `json:"document_type,omitempty"`
	Missing      []string                `json:"missing,omitempty"`
	Collected    map[string]string       `json:"collected,omitempty"`
	Request      *models.DocumentRequest `json:"request,omitempty"`
}

// DocumentFlow walks a conversation from "which document?" through
// parameter collection to a rendered PDF. State is kept per conversation and
// turns of the same conversation run one at a time.
type DocumentFlow struct {
	store      state.Store
	registry   *templates.Registry
	classifier documentClassifier
	extractor  parameterExtractor
	documents  documentGenerator
	locks      *keyedMutex
	now        func() time.Time
}

func NewDocumentFlow(store state.Store, registry *templates.Registry, classifier documentClassifier, ext parameterExtractor, documents documentGenerator) *DocumentFlow {
	return &DocumentFlow{
		store:      store,
		registry:   registry,
		classifier: classifier,
		extractor:  ext,
		documents:  documents,
		locks:      newKeyedMutex(),
		now:        time.Now,
	}
}

// Active reports whether the conversation has a document in progress.
func (f *DocumentFlow) Active(ctx context.Context, conversationID string) bool {
	_, err := f.store.Get(ctx, conversationID)
	return err == nil
}

// Current returns the in-progress state of a conversation.
func (f *DocumentFlow) Current(ctx context.Context, conversationID string) (*state.Generation, error) {
	return f.store.Get(ctx, conversationID)
}

// Advance applies one user message to the conversation's document state.
// Errors are returned only for state store failures; everything else ends
// up in the reply.
func (f *DocumentFlow) Advance(ctx context.Context, turn Turn) (*TurnResult, error) {
	unlock := f.locks.Lock(turn.ConversationID)
	defer unlock()

	ctx = logger.WithConversation(ctx, turn.ConversationID)
	log := logger.WithContext(ctx)

	g, err := f.store.Get(ctx, turn.ConversationID)
	switch {
	case errors.Is(err, state.ErrNotFound):
		g = state.NewGeneration(turn.ConversationID, turn.UserID, f.now())
	case err != nil:
		return nil, fmt.Errorf("failed to load document state: %w", err)
	}

	var schema *templates.Schema
	if g.Status == state.StatusAwaitingTemplate || g.TemplateType == "" {
		c := f.classifier.Classify(ctx, turn.Text)
		log.WithFields(logrus.Fields{
			"document_type": c.DocumentType,
			"confidence":    c.Confidence,
		}).Info("Document request classified")

		if !c.Confident() {
			return f.clarify(ctx, g)
		}
		schema, err = f.registry.Get(ctx, c.DocumentType)
		if err != nil {
			return f.clarify(ctx, g)
		}
		g.TemplateType = schema.Type
		g.Merge(f.extractor.Extract(ctx, turn.Text, schema).Canonical(schema))
	} else {
		schema, err = f.registry.Get(ctx, g.TemplateType)
		if err != nil {
			log.WithError(err).Error("Template of in-progress document disappeared")
			if derr := f.store.Delete(ctx, g.ConversationID); derr != nil {
				return nil, fmt.Errorf("failed to reset document state: %w", derr)
			}
			return &TurnResult{Reply: MsgTemplateMissing, Status: state.StatusFailed}, nil
		}
		narrowed := schema.Narrow(schema.Missing(g.Collected))
		added := g.Merge(f.extractor.Extract(ctx, turn.Text, narrowed).Canonical(narrowed))
		log.WithField("added", added).Debug("Parameters collected")
	}

	if missing := schema.Missing(g.Collected); len(missing) > 0 {
		g.Status = state.StatusAwaitingParameters
		g.UpdatedAt = f.now()
		if err := f.store.Save(ctx, g); err != nil {
			return nil, fmt.Errorf("failed to save document state: %w", err)
		}
		return &TurnResult{
			Reply:        askForParameters(schema, missing, g.Collected),
			Status:       g.Status,
			DocumentType: schema.Type,
			Missing:      missing,
			Collected:    copyMap(g.Collected),
		}, nil
	}

	return f.render(ctx, g, schema)
}

func (f *DocumentFlow) clarify(ctx context.Context, g *state.Generation) (*TurnResult, error) {
	g.Status = state.StatusAwaitingTemplate
	g.Clarifications++
	if g.Clarifications > maxClarifications {
		if err := f.store.Delete(ctx, g.ConversationID); err != nil {
			return nil, fmt.Errorf("failed to reset document state: %w", err)
		}
		return &TurnResult{Reply: MsgClarificationAbandoned, Status: state.StatusFailed}, nil
	}
	g.UpdatedAt = f.now()
	if err := f.store.Save(ctx, g); err != nil {
		return nil, fmt.Errorf("failed to save document state: %w", err)
	}

	var b strings.Builder
	b.WriteString("어떤 문서를 작성하실지 확실하지 않습니다. 아래 문서 중 원하시는 것을 알려주세요.\n")
	for _, s := range f.registry.List(ctx) {
		fmt.Fprintf(&b, "- %s: %s\n", s.Name, s.Description)
	}
	return &TurnResult{Reply: strings.TrimRight(b.String(), "\n"), Status: g.Status}, nil
}

func (f *DocumentFlow) render(ctx context.Context, g *state.Generation, schema *templates.Schema) (*TurnResult, error) {
	g.Status = state.StatusRendering
	g.UpdatedAt = f.now()
	if err := f.store.Save(ctx, g); err != nil {
		return nil, fmt.Errorf("failed to save document state: %w", err)
	}

	req, genErr := f.documents.Generate(ctx, GenerateInput{
		DocumentType:   schema.Type,
		Parameters:     g.Collected,
		ConversationID: g.ConversationID,
		UserID:         g.UserID,
	})

	if err := f.store.Delete(ctx, g.ConversationID); err != nil {
		logger.WithContext(ctx).WithError(err).Error("Failed to reset document state")
	}

	result := &TurnResult{
		DocumentType: schema.Type,
		Collected:    copyMap(g.Collected),
		Request:      req,
	}
	if genErr != nil || req == nil || req.FileURL == nil {
		logger.WithContext(ctx).WithError(genErr).Error("Document rendering failed")
		result.Status = state.StatusFailed
		result.Reply = MsgGenerationFailed
		return result, nil
	}
	result.Status = state.StatusCompleted
	result.Reply = fmt.Sprintf("%s 작성이 완료되었습니다. 아래 링크에서 다운로드하실 수 있습니다. (링크는 1시간 동안 유효합니다)\n%s", schema.Name, *req.FileURL)
	return result, nil
}

func askForParameters(schema *templates.Schema, missing []string, collected map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s 작성을 위해 다음 정보가 더 필요합니다.\n", schema.Name)
	for i, name := range missing {
		if f, ok := schema.Field(name); ok && f.Description != "" {
			fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, name, f.Description)
		} else {
			fmt.Fprintf(&b, "%d. %s\n", i+1, name)
		}
	}

	var known []string
	for _, f := range schema.Fields {
		if v := collected[f.Name]; v != "" {
			known = append(known, fmt.Sprintf("- %s: %s", f.Name, v))
		}
	}
	if len(known) > 0 {
		b.WriteString("\n지금까지 확인된 정보:\n")
		b.WriteString(strings.Join(known, "\n"))
	}
	return strings.TrimRight(b.String(), "\n")
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
