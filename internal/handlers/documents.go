package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"legalmind/internal/middleware"
	"legalmind/internal/services"
	"legalmind/internal/templates"
)

type DocumentHandler struct {
	documents *services.DocumentService
	chat      *services.ChatService
	poller    *services.StatusPoller
}

func NewDocumentHandler(documents *services.DocumentService, chat *services.ChatService, poller *services.StatusPoller) *DocumentHandler {
	return &DocumentHandler{
		documents: documents,
		chat:      chat,
		poller:    poller,
	}
}

type createDocumentRequest struct {
	DocumentType   string            `json:"document_type" binding:"required"`
	Parameters     map[string]string `json:"parameters"`
	ConversationID string            `json:"conversation_id"`
}

// CreateDocument queues a document for generation. When a conversation is
// given, the outcome is posted there once generation finishes.
func (h *DocumentHandler) CreateDocument(c *gin.Context) {
	var req createDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "document_type is required"})
		return
	}
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)

	if req.ConversationID != "" {
		if _, err := h.chat.GetConversation(ctx, userID, req.ConversationID); err != nil {
			writeServiceError(c, err, "Failed to load conversation")
			return
		}
	}

	doc, err := h.documents.Submit(ctx, services.GenerateInput{
		DocumentType:   templates.DocumentType(req.DocumentType),
		Parameters:     req.Parameters,
		ConversationID: req.ConversationID,
		UserID:         userID,
	})
	if err != nil {
		writeServiceError(c, err, "Failed to create document")
		return
	}

	if req.ConversationID != "" && h.poller != nil {
		h.poller.Start(doc.ID, req.ConversationID, userID)
	}
	c.JSON(http.StatusAccepted, doc)
}

func (h *DocumentHandler) GetDocument(c *gin.Context) {
	doc, err := h.documents.GetForUser(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		writeServiceError(c, err, "Failed to load document")
		return
	}
	c.JSON(http.StatusOK, doc)
}
