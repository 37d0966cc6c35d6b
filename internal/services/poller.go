package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"legalmind/internal/config"
	"legalmind/internal/logger"
	"legalmind/internal/models"
)

const MsgStillProcessing = "문서 생성이 아직 진행 중입니다. 잠시 후 문서 목록에서 상태를 확인해 주세요."

type documentReader interface {
	Get(ctx context.Context, id string) (*models.DocumentRequest, error)
}

// AssistantWriter persists an assistant message into a conversation.
type AssistantWriter interface {
	AppendAssistantMessage(ctx context.Context, conversationID, userID, content string, documentRequestID *string) (*models.Message, error)
}

// StatusPoller watches background document requests and reports the outcome
// in the conversation that asked for them.
type StatusPoller struct {
	documents   documentReader
	messages    AssistantWriter
	interval    time.Duration
	maxAttempts int

	baseCtx context.Context
	wg      sync.WaitGroup
}

func NewStatusPoller(ctx context.Context, documents documentReader, messages AssistantWriter, cfg config.PollerConfig) *StatusPoller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 30
	}
	return &StatusPoller{
		documents:   documents,
		messages:    messages,
		interval:    interval,
		maxAttempts: attempts,
		baseCtx:     ctx,
	}
}

// Start watches requestID in the background until the poller's context ends.
func (p *StatusPoller) Start(requestID, conversationID, userID string) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx := logger.WithUser(logger.WithConversation(p.baseCtx, conversationID), userID)
		p.Watch(ctx, requestID, conversationID, userID)
	}()
}

func (p *StatusPoller) Wait() {
	p.wg.Wait()
}

// Watch polls the request every interval, at most maxAttempts times. Read
// errors use up an attempt like any other poll. Exactly one message is
// written unless ctx is cancelled first. It returns the last status seen.
func (p *StatusPoller) Watch(ctx context.Context, requestID, conversationID, userID string) models.DocumentStatus {
	log := logger.WithContext(ctx).WithField("request_id", requestID)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var last models.DocumentStatus
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			log.Debug("Status polling cancelled")
			return last
		case <-ticker.C:
		}

		req, err := p.documents.Get(ctx, requestID)
		if err != nil {
			log.WithError(err).WithFields(logrus.Fields{
				"attempt": attempt,
				"max":     p.maxAttempts,
			}).Warn("Failed to read document status")
			continue
		}
		last = req.Status
		if !req.Status.Terminal() {
			continue
		}

		p.post(ctx, conversationID, userID, statusMessage(req), &req.ID)
		return last
	}

	log.WithField("attempts", p.maxAttempts).Warn("Document still not finished, polling stopped")
	p.post(ctx, conversationID, userID, MsgStillProcessing, &requestID)
	return last
}

func (p *StatusPoller) post(ctx context.Context, conversationID, userID, content string, requestID *string) {
	if conversationID == "" {
		return
	}
	if _, err := p.messages.AppendAssistantMessage(ctx, conversationID, userID, content, requestID); err != nil {
		logger.WithContext(ctx).WithError(err).Error("Failed to save document status message")
	}
}

func statusMessage(req *models.DocumentRequest) string {
	if req.Status == models.DocumentCompleted && req.FileURL != nil {
		return fmt.Sprintf("요청하신 문서가 준비되었습니다. 아래 링크에서 다운로드하실 수 있습니다. (링크는 1시간 동안 유효합니다)\n%s", *req.FileURL)
	}
	return MsgGenerationFailed
}
