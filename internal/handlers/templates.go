package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"legalmind/internal/services"
	"legalmind/internal/templates"
)

type TemplateHandler struct {
	templates *services.TemplateService
}

func NewTemplateHandler(templates *services.TemplateService) *TemplateHandler {
	return &TemplateHandler{templates: templates}
}

type previewRequest struct {
	Parameters map[string]string `json:"parameters"`
}

func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	list := h.templates.ListTemplates(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"templates": list, "total": len(list)})
}

func (h *TemplateHandler) SearchTemplates(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}
	list := h.templates.SearchTemplates(c.Request.Context(), q)
	c.JSON(http.StatusOK, gin.H{"templates": list, "total": len(list)})
}

func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	detail, err := h.templates.GetTemplate(c.Request.Context(), templates.DocumentType(c.Param("type")))
	if err != nil {
		writeServiceError(c, err, "Failed to load template")
		return
	}
	c.JSON(http.StatusOK, detail)
}

// PreviewTemplate returns the filled HTML without rendering a PDF.
func (h *TemplateHandler) PreviewTemplate(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	html, err := h.templates.Preview(c.Request.Context(), templates.DocumentType(c.Param("type")), req.Parameters, services.FormatKoreanDate(time.Now()))
	if err != nil {
		writeServiceError(c, err, "Failed to preview template")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}
