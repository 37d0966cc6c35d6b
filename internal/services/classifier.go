package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"legalmind/internal/extractor"
	"legalmind/internal/logger"
	"legalmind/internal/templates"
)

// ConfidenceThreshold is the minimum classification confidence (0-100)
// accepted without asking the user.
const ConfidenceThreshold = 70

type Classification struct {
	DocumentType templates.DocumentType `json:"documentType"`
	Confidence   int                    `json:"confidence"`
}

// Confident reports whether c names a document type with enough confidence.
func (c Classification) Confident() bool {
	return c.DocumentType != "" && c.Confidence >= ConfidenceThreshold
}

// Classifier decides which document a message asks for. Without an LLM, or
// when the LLM fails, it falls back to the registry's keyword search.
type Classifier struct {
	llm      extractor.JSONGenerator
	registry *templates.Registry
	timeout  time.Duration
}

func NewClassifier(llm extractor.JSONGenerator, registry *templates.Registry) *Classifier {
	return &Classifier{llm: llm, registry: registry, timeout: 30 * time.Second}
}

func (c *Classifier) Classify(ctx context.Context, text string) Classification {
	log := logger.WithContext(ctx)
	if c.llm != nil {
		result, err := c.classifyLLM(ctx, text)
		if err == nil {
			return result
		}
		log.WithError(err).Warn("Document classification failed, falling back to keyword search")
	}
	return c.classifyKeywords(ctx, text)
}

func (c *Classifier) classifyLLM(ctx context.Context, text string) (Classification, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.llm.GenerateJSON(ctx, c.prompt(ctx), text)
	if err != nil {
		return Classification{}, err
	}
	return parseClassification(raw, c.registry.Types(ctx))
}

func (c *Classifier) prompt(ctx context.Context) string {
	var b strings.Builder
	b.WriteString("사용자의 메시지가 요청하는 법률 문서의 종류를 분류하세요.\n")
	b.WriteString("가능한 문서 종류:\n")
	for _, s := range c.registry.List(ctx) {
		fmt.Fprintf(&b, "- %s: %s (%s)\n", s.Type, s.Name, s.Description)
	}
	b.WriteString("어느 것에도 해당하지 않으면 documentType을 \"none\"으로 하세요.\n")
	b.WriteString(`반드시 {"documentType": "<종류>", "confidence": <0-100 정수>} 형식의 JSON 객체 하나만 출력하세요.`)
	return b.String()
}

func parseClassification(raw string, known []templates.DocumentType) (Classification, error) {
	var payload struct {
		DocumentType string  `json:"documentType"`
		Confidence   float64 `json:"confidence"`
	}
	body := extractor.FirstJSONObject(raw)
	if body == "" {
		return Classification{}, fmt.Errorf("no JSON object in classification response")
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return Classification{}, fmt.Errorf("failed to parse classification: %w", err)
	}

	conf := int(payload.Confidence)
	if conf < 0 {
		conf = 0
	}
	if conf > 100 {
		conf = 100
	}
	typ := templates.DocumentType(strings.ToLower(strings.TrimSpace(payload.DocumentType)))
	for _, k := range known {
		if k == typ {
			return Classification{DocumentType: typ, Confidence: conf}, nil
		}
	}
	return Classification{Confidence: conf}, nil
}

// classifyKeywords trusts a match on the document's name, or a single
// keyword match.
func (c *Classifier) classifyKeywords(ctx context.Context, text string) Classification {
	matches := c.registry.SearchByKeyword(ctx, text)
	if len(matches) == 0 {
		return Classification{}
	}
	if strings.Contains(text, matches[0].Name) || len(matches) == 1 {
		return Classification{DocumentType: matches[0].Type, Confidence: 80}
	}
	return Classification{DocumentType: matches[0].Type, Confidence: 50}
}
