package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"legalmind/internal"
	"legalmind/internal/config"
	"legalmind/internal/extractor"
	"legalmind/internal/handlers"
	"legalmind/internal/llm"
	"legalmind/internal/logger"
	"legalmind/internal/services"
	"legalmind/internal/state"
	"legalmind/internal/storage"
	"legalmind/internal/templates"
)

const (
	janitorInterval = time.Minute
	shutdownTimeout = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	logger.Init(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err := cfg.Validate(); err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}
	if cfg.Server.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Background work (async generation, status polling) ends with this context.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := internal.InitDB(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to initialize database")
	}
	defer internal.CloseDB()

	uploader, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize storage")
	}
	defer uploader.Close()

	registry, err := templates.NewRegistry(templates.WithRemote(uploader, cfg.Templates.RemotePrefix, cfg.Templates.CacheTTL))
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load document templates")
	}

	provider, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize LLM client")
	}
	defer provider.Close()

	backend, err := services.NewPDFBackend(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize PDF backend")
	}
	pdfService := services.NewPDFService(backend, cfg.Renderer)
	documentService := services.NewDocumentService(ctx, internal.DB, registry, pdfService, uploader, cfg.Storage.SignedURLTTL)

	store, err := state.New(ctx, cfg.State)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize document state store")
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}

	flow := services.NewDocumentFlow(store, registry, services.NewClassifier(provider, registry), extractor.New(provider), documentService)
	caseLawService, err := services.NewCaseLawService()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load case law data")
	}
	chatService := services.NewChatService(internal.DB, flow, caseLawService, provider, registry)
	poller := services.NewStatusPoller(ctx, documentService, chatService, cfg.Poller)
	activityLogService := services.NewActivityLogService(internal.DB)

	sweeper, _ := store.(state.Sweeper)
	janitor := services.NewJanitor(sweeper, documentService, janitorInterval, cfg.Poller.StaleAfter)
	janitor.Start()

	router := handlers.NewRouter(cfg, handlers.Dependencies{
		DB:          internal.DB,
		Chat:        chatService,
		Documents:   documentService,
		Poller:      poller,
		Templates:   services.NewTemplateService(registry),
		CaseLaws:    caseLawService,
		ActivityLog: activityLogService,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logrus.WithFields(logrus.Fields{
			"port":        cfg.Server.Port,
			"environment": cfg.Server.Environment,
			"renderer":    backend.Name(),
			"storage":     cfg.Storage.Provider,
		}).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server...")

	janitor.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Server forced to shut down")
	}

	cancel()
	documentService.Wait()
	poller.Wait()
	activityLogService.Flush()
	logrus.Info("Server stopped")
}
