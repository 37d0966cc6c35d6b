package handlers

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"legalmind/internal/config"
	"legalmind/internal/middleware"
	"legalmind/internal/services"
)

// Dependencies are the services the HTTP API is built on.
type Dependencies struct {
	DB          *gorm.DB
	Chat        *services.ChatService
	Documents   *services.DocumentService
	Poller      *services.StatusPoller
	Templates   *services.TemplateService
	CaseLaws    *services.CaseLawService
	ActivityLog *services.ActivityLogService
}

func NewRouter(cfg *config.Config, deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderRequestID},
		ExposeHeaders:    []string{middleware.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	health := NewHealthHandler(deps.DB)
	r.GET("/health", health.Health)

	chat := NewChatHandler(deps.Chat)
	documents := NewDocumentHandler(deps.Documents, deps.Chat, deps.Poller)
	templates := NewTemplateHandler(deps.Templates)
	cases := NewCaseLawHandler(deps.CaseLaws)

	v1 := r.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware(&cfg.Auth))
	if deps.ActivityLog != nil {
		v1.Use(deps.ActivityLog.LoggingMiddleware())
	}
	{
		v1.POST("/conversations", chat.CreateConversation)
		v1.GET("/conversations", chat.ListConversations)
		v1.DELETE("/conversations/:id", chat.DeleteConversation)
		v1.GET("/conversations/:id/messages", chat.GetMessages)
		v1.POST("/conversations/:id/messages", chat.SendMessage)

		v1.GET("/templates", templates.ListTemplates)
		v1.GET("/templates/search", templates.SearchTemplates)
		v1.GET("/templates/:type", templates.GetTemplate)
		v1.POST("/templates/:type/preview", templates.PreviewTemplate)

		v1.POST("/documents", documents.CreateDocument)
		v1.GET("/documents/:id", documents.GetDocument)

		v1.GET("/cases/search", cases.SearchCases)
		v1.GET("/cases/:id", cases.GetCase)

		if deps.ActivityLog != nil {
			logs := NewLogsHandler(deps.ActivityLog)
			v1.GET("/logs", logs.GetAllLogs)
			v1.GET("/logs/stats", logs.GetLogStats)
			v1.GET("/logs/documents", logs.GetDocumentLogs)
		}
	}
	return r
}
