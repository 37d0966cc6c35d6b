package services

import (
	"context"
	"fmt"

	"legalmind/internal/processor"
	"legalmind/internal/templates"
)

type TemplateService struct {
	registry *templates.Registry
}

func NewTemplateService(registry *templates.Registry) *TemplateService {
	return &TemplateService{
		registry: registry,
	}
}

// TemplateDetail is a schema together with where its template uses each
// variable.
type TemplateDetail struct {
	*templates.Schema
	RequiredKeys []string                        `json:"required_keys"`
	OptionalKeys []string                        `json:"optional_keys"`
	KeyMapping   map[string]string               `json:"key_mapping"`
	Placeholders []processor.PlaceholderPosition `json:"placeholders"`
}

func (s *TemplateService) ListTemplates(ctx context.Context) []*templates.Schema {
	return s.registry.List(ctx)
}

func (s *TemplateService) SearchTemplates(ctx context.Context, query string) []*templates.Schema {
	return s.registry.SearchByKeyword(ctx, query)
}

func (s *TemplateService) GetTemplate(ctx context.Context, t templates.DocumentType) (*TemplateDetail, error) {
	schema, err := s.registry.Get(ctx, t)
	if err != nil {
		return nil, err
	}
	html, err := s.registry.HTML(ctx, t)
	if err != nil {
		return nil, err
	}
	proc, err := processor.NewHTMLProcessor(html)
	if err != nil {
		return nil, fmt.Errorf("failed to process template %s: %w", t, err)
	}
	return &TemplateDetail{
		Schema:       schema,
		RequiredKeys: schema.RequiredKeys(),
		OptionalKeys: schema.OptionalKeys(),
		KeyMapping:   schema.KeyMapping(),
		Placeholders: proc.ExtractPlaceholdersWithPositions(),
	}, nil
}

// Preview fills the template with params, keyed by canonical or variable
// names, without rendering a PDF.
func (s *TemplateService) Preview(ctx context.Context, t templates.DocumentType, params map[string]string, date string) (string, error) {
	schema, err := s.registry.Get(ctx, t)
	if err != nil {
		return "", err
	}
	html, err := s.registry.HTML(ctx, t)
	if err != nil {
		return "", err
	}
	values := make(map[string]string)
	for name, v := range canonicalParameters(schema, params) {
		if f, ok := schema.Field(name); ok {
			values[f.Variable] = v
		}
	}
	values["formatted_date"] = date
	return processor.Fill(html, values)
}
