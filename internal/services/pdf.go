package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"legalmind/internal/config"
	"legalmind/internal/logger"
	"legalmind/internal/processor"
)

var ErrEmptyDocument = errors.New("rendered document has no text content")

// PageOptions describes the printed page. Lengths are in inches.
type PageOptions struct {
	PaperWidth      float64
	PaperHeight     float64
	Margin          float64
	PrintBackground bool
	PageNumbers     bool
}

// A4 with 20mm margins on every side.
func DefaultPageOptions() PageOptions {
	return PageOptions{
		PaperWidth:      8.27,
		PaperHeight:     11.69,
		Margin:          0.787,
		PrintBackground: true,
		PageNumbers:     true,
	}
}

// PDFBackend turns a complete HTML document into PDF bytes.
type PDFBackend interface {
	Convert(ctx context.Context, html string, opts PageOptions) ([]byte, error)
	Name() string
}

type PDFService struct {
	backend     PDFBackend
	page        PageOptions
	maxAttempts int
	retryDelay  time.Duration
}

func NewPDFService(backend PDFBackend, cfg config.RendererConfig) *PDFService {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 3
	}
	return &PDFService{
		backend:     backend,
		page:        DefaultPageOptions(),
		maxAttempts: attempts,
		retryDelay:  cfg.RetryDelay,
	}
}

// NewPDFBackend builds the backend named by cfg.Renderer.Backend.
func NewPDFBackend(cfg *config.Config) (PDFBackend, error) {
	switch strings.ToLower(cfg.Renderer.Backend) {
	case "", "chromium":
		return NewChromiumBackend(cfg.Renderer.ChromePath, cfg.Renderer.ContentTimeout), nil
	case "gotenberg":
		return NewGotenbergBackend(cfg.Gotenberg.URL, cfg.Gotenberg.Timeout)
	default:
		return nil, fmt.Errorf("unsupported PDF renderer: %s", cfg.Renderer.Backend)
	}
}

// Render fills the template with params and converts the result to PDF.
// Template errors are returned immediately; conversion is retried.
func (s *PDFService) Render(ctx context.Context, html string, params map[string]string) ([]byte, error) {
	filled, err := processor.Fill(html, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fill template: %w", err)
	}
	if processor.TextContent(filled) == "" {
		return nil, ErrEmptyDocument
	}
	return s.convertWithRetry(ctx, filled)
}

func (s *PDFService) convertWithRetry(ctx context.Context, html string) ([]byte, error) {
	log := logger.WithContext(ctx).WithField("backend", s.backend.Name())
	var lastErr error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		start := time.Now()
		pdf, err := s.backend.Convert(ctx, html, s.page)
		if err == nil {
			log.WithFields(logrus.Fields{
				"attempt":  attempt,
				"bytes":    len(pdf),
				"duration": time.Since(start).String(),
			}).Info("PDF rendered")
			return pdf, nil
		}

		lastErr = err
		log.WithError(err).Warnf("PDF conversion attempt %d/%d failed", attempt, s.maxAttempts)

		if attempt < s.maxAttempts {
			if err := sleepContext(ctx, s.retryDelay); err != nil {
				return nil, fmt.Errorf("PDF conversion cancelled after %d attempts: %w", attempt, lastErr)
			}
		}
	}

	return nil, fmt.Errorf("failed to convert document after %d attempts: %w", s.maxAttempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
