package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"legalmind/internal/models"
	"legalmind/internal/services"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 1000
	statsSample     = 1000
)

type LogsHandler struct {
	activityLogService *services.ActivityLogService
}

func NewLogsHandler(activityLogService *services.ActivityLogService) *LogsHandler {
	return &LogsHandler{
		activityLogService: activityLogService,
	}
}

type LogsResponse struct {
	Logs       []models.ActivityLog `json:"logs"`
	Total      int64                `json:"total"`
	Page       int                  `json:"page"`
	Limit      int                  `json:"limit"`
	TotalPages int                  `json:"total_pages"`
}

// parsePagination reads ?limit= and ?page= with the defaults used by every
// log endpoint.
func parsePagination(c *gin.Context) (limit, page, offset int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLogLimit)))
	if err != nil || limit <= 0 {
		limit = defaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}

	page, err = strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page <= 0 {
		page = 1
	}
	return limit, page, (page - 1) * limit
}

func totalPages(total int64, limit int) int {
	return int((total + int64(limit) - 1) / int64(limit))
}

// GetAllLogs returns activity logs, optionally filtered by method, path or user.
func (h *LogsHandler) GetAllLogs(c *gin.Context) {
	limit, page, offset := parsePagination(c)

	var (
		logs  []models.ActivityLog
		total int64
		err   error
	)
	switch {
	case c.Query("method") != "":
		logs, total, err = h.activityLogService.GetLogsByMethod(c.Query("method"), limit, offset)
	case c.Query("path") != "":
		logs, total, err = h.activityLogService.GetLogsByPath(c.Query("path"), limit, offset)
	case c.Query("user_id") != "":
		logs, total, err = h.activityLogService.GetLogsByUser(c.Query("user_id"), limit, offset)
	default:
		logs, total, err = h.activityLogService.GetAllLogs(limit, offset)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch logs"})
		return
	}

	c.JSON(http.StatusOK, LogsResponse{
		Logs:       logs,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages(total, limit),
	})
}

// GetLogStats counts the most recent requests by method, path and status.
func (h *LogsHandler) GetLogStats(c *gin.Context) {
	logs, total, err := h.activityLogService.GetAllLogs(statsSample, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch log stats"})
		return
	}

	methodCounts := make(map[string]int)
	pathCounts := make(map[string]int)
	statusCounts := make(map[int]int)
	for _, log := range logs {
		methodCounts[log.Method]++
		pathCounts[log.Path]++
		statusCounts[log.StatusCode]++
	}

	c.JSON(http.StatusOK, gin.H{
		"total_requests": total,
		"sampled":        len(logs),
		"methods":        methodCounts,
		"paths":          pathCounts,
		"status_codes":   statusCounts,
	})
}

// GetDocumentLogs returns the parameters users sent to POST /documents.
func (h *LogsHandler) GetDocumentLogs(c *gin.Context) {
	limit, page, offset := parsePagination(c)

	logs, total, err := h.activityLogService.GetLogsByPath("/documents", limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch document logs"})
		return
	}

	requests := make([]gin.H, 0, len(logs))
	for _, log := range logs {
		if log.Method != http.MethodPost || log.RequestBody == "" {
			continue
		}
		entry := gin.H{
			"timestamp":     log.CreatedAt,
			"user_id":       log.UserID,
			"status_code":   log.StatusCode,
			"response_time": log.ResponseTime,
		}
		var body struct {
			DocumentType string            `json:"document_type"`
			Parameters   map[string]string `json:"parameters"`
		}
		if err := json.Unmarshal([]byte(log.RequestBody), &body); err == nil {
			entry["document_type"] = body.DocumentType
			entry["parameters"] = body.Parameters
		} else {
			entry["raw_body"] = log.RequestBody
		}
		requests = append(requests, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"requests":    requests,
		"total":       total,
		"page":        page,
		"limit":       limit,
		"total_pages": totalPages(total, limit),
	})
}
