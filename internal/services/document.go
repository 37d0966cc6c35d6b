package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"legalmind/internal/logger"
	"legalmind/internal/models"
	"legalmind/internal/storage"
	"legalmind/internal/templates"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid document status transition")
)

// MissingParametersError lists required parameters absent from a request.
type MissingParametersError struct {
	Missing []string
}

func (e *MissingParametersError) Error() string {
	return "missing required parameters: " + strings.Join(e.Missing, ", ")
}

// Renderer produces PDF bytes from an HTML template and its values.
type Renderer interface {
	Render(ctx context.Context, html string, params map[string]string) ([]byte, error)
}

type GenerateInput struct {
	DocumentType   templates.DocumentType
	Parameters     map[string]string
	ConversationID string
	UserID         string
}

type DocumentService struct {
	db       *gorm.DB
	registry *templates.Registry
	renderer Renderer
	uploader storage.Uploader
	urlTTL   time.Duration
	now      func() time.Time

	baseCtx context.Context
	wg      sync.WaitGroup
}

func NewDocumentService(ctx context.Context, db *gorm.DB, registry *templates.Registry, renderer Renderer, uploader storage.Uploader, urlTTL time.Duration) *DocumentService {
	if urlTTL <= 0 {
		urlTTL = time.Hour
	}
	return &DocumentService{
		db:       db,
		registry: registry,
		renderer: renderer,
		uploader: uploader,
		urlTTL:   urlTTL,
		now:      time.Now,
		baseCtx:  ctx,
	}
}

// Generate creates a request and runs it to a terminal status before
// returning. The returned request is completed on success; on failure it is
// returned together with the error.
func (s *DocumentService) Generate(ctx context.Context, in GenerateInput) (*models.DocumentRequest, error) {
	req, schema, err := s.create(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := s.process(ctx, req, schema); err != nil {
		return s.reload(ctx, req), err
	}
	return s.reload(ctx, req), nil
}

// Submit creates a pending request and processes it in the background.
func (s *DocumentService) Submit(ctx context.Context, in GenerateInput) (*models.DocumentRequest, error) {
	req, schema, err := s.create(ctx, in)
	if err != nil {
		return nil, err
	}
	pending := *req

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		bg := logger.WithUser(logger.WithConversation(s.baseCtx, req.ConversationID), req.UserID)
		if err := s.process(bg, req, schema); err != nil {
			logger.WithContext(bg).WithError(err).WithField("request_id", req.ID).Warn("Background document generation failed")
		}
	}()
	return &pending, nil
}

// Wait blocks until background generations have finished.
func (s *DocumentService) Wait() {
	s.wg.Wait()
}

func (s *DocumentService) Get(ctx context.Context, id string) (*models.DocumentRequest, error) {
	var req models.DocumentRequest
	if err := s.db.WithContext(ctx).First(&req, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load document request: %w", err)
	}
	return &req, nil
}

// GetForUser is Get restricted to requests owned by userID.
func (s *DocumentService) GetForUser(ctx context.Context, userID, id string) (*models.DocumentRequest, error) {
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.UserID != userID {
		return nil, ErrNotFound
	}
	return req, nil
}

// ReconcileStale fails requests that have been processing since before cutoff.
func (s *DocumentService) ReconcileStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.DocumentRequest{}).
		Where("status = ? AND updated_at < ?", models.DocumentProcessing, cutoff).
		Updates(map[string]interface{}{
			"status":    models.DocumentFailed,
			"error_msg": "processing abandoned",
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to reconcile stale requests: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *DocumentService) create(ctx context.Context, in GenerateInput) (*models.DocumentRequest, *templates.Schema, error) {
	schema, err := s.registry.Get(ctx, in.DocumentType)
	if err != nil {
		return nil, nil, err
	}
	params := canonicalParameters(schema, in.Parameters)
	if missing := schema.Missing(params); len(missing) > 0 {
		return nil, nil, &MissingParametersError{Missing: missing}
	}

	stored := make(datatypes.JSONMap, len(params))
	for k, v := range params {
		stored[k] = v
	}
	req := &models.DocumentRequest{
		ID:             uuid.New().String(),
		DocumentType:   string(schema.Type),
		Parameters:     stored,
		Status:         models.DocumentPending,
		ConversationID: in.ConversationID,
		UserID:         in.UserID,
	}
	if err := s.db.WithContext(ctx).Create(req).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to create document request: %w", err)
	}
	return req, schema, nil
}

func (s *DocumentService) process(ctx context.Context, req *models.DocumentRequest, schema *templates.Schema) error {
	log := logger.WithContext(ctx).WithFields(logrus.Fields{
		"request_id":    req.ID,
		"document_type": req.DocumentType,
	})

	if err := s.transition(ctx, req.ID, models.DocumentProcessing, nil); err != nil {
		return err
	}

	url, objectName, err := s.renderAndUpload(ctx, req, schema)
	// Terminal writes must land even if the caller has gone away.
	final := context.WithoutCancel(ctx)
	if err != nil {
		log.WithError(err).Error("Document generation failed")
		if ferr := s.transition(final, req.ID, models.DocumentFailed, map[string]interface{}{
			"error_msg": err.Error(),
		}); ferr != nil {
			log.WithError(ferr).Error("Failed to mark document request as failed")
		}
		return err
	}

	completedAt := s.now()
	if err := s.transition(final, req.ID, models.DocumentCompleted, map[string]interface{}{
		"file_url":     url,
		"object_key":   objectName,
		"completed_at": completedAt,
	}); err != nil {
		// The janitor failed the row mid-render; nothing links to the object now.
		if derr := s.uploader.Delete(final, objectName); derr != nil {
			log.WithError(derr).WithField("object", objectName).Warn("Failed to delete orphaned document")
		}
		return err
	}
	log.WithField("object", objectName).Info("Document generated")
	return nil
}

func (s *DocumentService) renderAndUpload(ctx context.Context, req *models.DocumentRequest, schema *templates.Schema) (string, string, error) {
	html, err := s.registry.HTML(ctx, schema.Type)
	if err != nil {
		return "", "", fmt.Errorf("failed to load template html: %w", err)
	}

	pdf, err := s.renderer.Render(ctx, html, templateValues(schema, req.StringParameters(), s.now()))
	if err != nil {
		return "", "", fmt.Errorf("failed to render pdf: %w", err)
	}

	objectName := storage.GenerateDocumentObjectName(req.DocumentType, req.ID, s.now())
	url, res, err := storage.UploadAndSign(ctx, s.uploader, pdf, objectName, s.urlTTL)
	if err != nil {
		if res != nil {
			if derr := s.uploader.Delete(context.WithoutCancel(ctx), objectName); derr != nil {
				logger.WithContext(ctx).WithError(derr).Warn("Failed to delete unsigned document")
			}
		}
		return "", "", err
	}
	return url, objectName, nil
}

// transition moves a request to status to, from any status allowed to reach
// it. Zero affected rows means the request is missing or already past to.
func (s *DocumentService) transition(ctx context.Context, id string, to models.DocumentStatus, updates map[string]interface{}) error {
	var from []models.DocumentStatus
	for _, st := range []models.DocumentStatus{models.DocumentPending, models.DocumentProcessing, models.DocumentCompleted, models.DocumentFailed} {
		if st.CanTransitionTo(to) {
			from = append(from, st)
		}
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = to

	res := s.db.WithContext(ctx).Model(&models.DocumentRequest{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update document request: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, id, to)
	}
	return nil
}

func (s *DocumentService) reload(ctx context.Context, req *models.DocumentRequest) *models.DocumentRequest {
	fresh, err := s.Get(context.WithoutCancel(ctx), req.ID)
	if err != nil {
		return req
	}
	return fresh
}

// canonicalParameters keys params by canonical name, accepting variable
// names and aliases as well. Unknown and empty entries are dropped.
func canonicalParameters(schema *templates.Schema, params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		f, ok := schema.Resolve(k)
		if !ok {
			continue
		}
		if _, exists := out[f.Name]; exists && k != f.Name {
			continue
		}
		out[f.Name] = v
	}
	return out
}

// templateValues maps canonical parameters to template variables and adds
// formatted_date.
func templateValues(schema *templates.Schema, params map[string]string, now time.Time) map[string]string {
	values := make(map[string]string, len(params)+1)
	for _, f := range schema.Fields {
		if v, ok := params[f.Name]; ok {
			values[f.Variable] = v
		}
	}
	values["formatted_date"] = FormatKoreanDate(now)
	return values
}

func FormatKoreanDate(t time.Time) string {
	return fmt.Sprintf("%d년 %d월 %d일", t.Year(), int(t.Month()), t.Day())
}
