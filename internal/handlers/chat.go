package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"legalmind/internal/logger"
	"legalmind/internal/middleware"
	"legalmind/internal/services"
	"legalmind/internal/templates"
)

type ChatHandler struct {
	chat *services.ChatService
}

func NewChatHandler(chat *services.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type createConversationRequest struct {
	Title string `json:"title"`
}

type sendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

func (h *ChatHandler) CreateConversation(c *gin.Context) {
	var req createConversationRequest
	// An empty body is allowed; the title is then taken from the first message.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}

	conv, err := h.chat.CreateConversation(c.Request.Context(), middleware.GetUserID(c), req.Title)
	if err != nil {
		logger.WithContext(c.Request.Context()).WithError(err).Error("Failed to create conversation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create conversation"})
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (h *ChatHandler) ListConversations(c *gin.Context) {
	convs, err := h.chat.ListConversations(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		logger.WithContext(c.Request.Context()).WithError(err).Error("Failed to list conversations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list conversations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs, "total": len(convs)})
}

func (h *ChatHandler) DeleteConversation(c *gin.Context) {
	err := h.chat.DeleteConversation(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		writeServiceError(c, err, "Failed to delete conversation")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ChatHandler) GetMessages(c *gin.Context) {
	msgs, err := h.chat.Messages(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		writeServiceError(c, err, "Failed to load messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "total": len(msgs)})
}

// SendMessage answers one user turn. With "Accept: text/event-stream" the
// reply is streamed as "delta" events followed by one "done" event carrying
// the stored messages.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}
	userID := middleware.GetUserID(c)
	convID := c.Param("id")

	if !wantsEventStream(c) {
		res, err := h.chat.Send(c.Request.Context(), userID, convID, req.Content, nil)
		if err != nil {
			writeServiceError(c, err, "Failed to send message")
			return
		}
		c.JSON(http.StatusOK, res)
		return
	}

	streaming := false
	startStream := func() {
		if streaming {
			return
		}
		streaming = true
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)
	}

	res, err := h.chat.Send(c.Request.Context(), userID, convID, req.Content, func(delta string) {
		startStream()
		c.SSEvent("delta", gin.H{"text": delta})
		c.Writer.Flush()
	})
	if err != nil {
		if !streaming {
			writeServiceError(c, err, "Failed to send message")
			return
		}
		logger.WithContext(c.Request.Context()).WithError(err).Error("Chat turn failed mid-stream")
		c.SSEvent("error", gin.H{"error": "Failed to send message"})
		c.Writer.Flush()
		return
	}
	startStream()
	c.SSEvent("done", res)
	c.Writer.Flush()
}

func wantsEventStream(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "text/event-stream")
}

// writeServiceError maps service errors to HTTP responses.
func writeServiceError(c *gin.Context, err error, fallback string) {
	var missing *services.MissingParametersError
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, services.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
	case errors.As(err, &missing):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required parameters", "missing": missing.Missing})
	case errors.Is(err, templates.ErrTemplateNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
	default:
		logger.WithContext(c.Request.Context()).WithError(err).Error(fallback)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
