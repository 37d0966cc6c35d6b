package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"legalmind/internal/models"
)

const maxLoggedBody = 10000

// Context keys set by the HTTP middleware.
const (
	ContextRequestBody = "request_body"
	ContextRequestID   = "request_id"
	ContextUserID      = "user_id"
)

type ActivityLogService struct {
	db *gorm.DB
	wg sync.WaitGroup
}

func NewActivityLogService(db *gorm.DB) *ActivityLogService {
	return &ActivityLogService{db: db}
}

func (s *ActivityLogService) LogRequest(c *gin.Context, statusCode int, responseTime time.Duration) {
	clientIP := c.ClientIP()
	if clientIP == "" {
		clientIP = c.Request.RemoteAddr
	}

	queryParams := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			queryParams[key] = values[0]
		}
	}
	queryParamsJSON, _ := json.Marshal(queryParams)

	activityLog := &models.ActivityLog{
		ID:           uuid.New().String(),
		RequestID:    c.GetString(ContextRequestID),
		UserID:       c.GetString(ContextUserID),
		Method:       c.Request.Method,
		Path:         c.Request.URL.Path,
		UserAgent:    c.Request.UserAgent(),
		IPAddress:    clientIP,
		RequestBody:  c.GetString(ContextRequestBody),
		QueryParams:  string(queryParamsJSON),
		StatusCode:   statusCode,
		ResponseTime: responseTime.Milliseconds(),
	}

	// Saved in the background so logging never slows the response.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.db.Create(activityLog).Error; err != nil {
			logrus.WithError(err).Warn("Failed to save activity log")
		}
	}()
}

// Flush waits for pending log writes.
func (s *ActivityLogService) Flush() {
	s.wg.Wait()
}

func (s *ActivityLogService) GetAllLogs(limit int, offset int) ([]models.ActivityLog, int64, error) {
	return s.find(s.db, limit, offset)
}

func (s *ActivityLogService) GetLogsByMethod(method string, limit int, offset int) ([]models.ActivityLog, int64, error) {
	return s.find(s.db.Where("method = ?", strings.ToUpper(method)), limit, offset)
}

func (s *ActivityLogService) GetLogsByPath(path string, limit int, offset int) ([]models.ActivityLog, int64, error) {
	return s.find(s.db.Where("path LIKE ?", "%"+path+"%"), limit, offset)
}

func (s *ActivityLogService) GetLogsByUser(userID string, limit int, offset int) ([]models.ActivityLog, int64, error) {
	return s.find(s.db.Where("user_id = ?", userID), limit, offset)
}

func (s *ActivityLogService) find(query *gorm.DB, limit, offset int) ([]models.ActivityLog, int64, error) {
	var logs []models.ActivityLog
	var total int64

	query = query.Session(&gorm.Session{})
	if err := query.Model(&models.ActivityLog{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count logs: %w", err)
	}

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Order("created_at DESC").Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch logs: %w", err)
	}

	return logs, total, nil
}

// LoggingMiddleware records every request once it has been handled.
func (s *ActivityLogService) LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		if c.Request.Method == "POST" && c.Request.Body != nil {
			bodyBytes, err := io.ReadAll(c.Request.Body)
			if err == nil {
				c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

				if len(bodyBytes) > 0 {
					if len(bodyBytes) > maxLoggedBody {
						c.Set(ContextRequestBody, fmt.Sprintf("[Large body: %d bytes] %s...", len(bodyBytes), string(bodyBytes[:100])))
					} else {
						c.Set(ContextRequestBody, string(bodyBytes))
					}
				}
			}
		}

		c.Next()

		s.LogRequest(c, c.Writer.Status(), time.Since(start))
	}
}
