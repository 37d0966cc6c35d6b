package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"legalmind/internal/llm"
	"legalmind/internal/logger"
	"legalmind/internal/models"
	"legalmind/internal/templates"
)

const (
	RouteDocument = "document"
	RouteCaseLaw  = "case_law"
	RouteAnswer   = "answer"

	MsgAnswerFailed = "죄송합니다. 지금은 답변을 드리기 어렵습니다. 잠시 후 다시 질문해 주세요."

	defaultTitle   = "새 대화"
	titleMaxRunes  = 30
	historyWindow  = 10
	caseReplyLimit = 3
)

var ErrEmptyMessage = errors.New("message is empty")

const legalSystemPrompt = `당신은 한국 법률 상담을 돕는 AI 어시스턴트입니다.
- 한국 법령과 판례에 근거하여 쉽고 정확하게 설명하세요.
- 확실하지 않은 내용은 추측하지 말고 그렇다고 밝히세요.
- 구체적인 사안은 변호사 등 전문가와 상담할 것을 권하세요.
- 답변은 한국어로 작성하세요.`

var (
	documentVerbs = []string{"써줘", "써 줘", "써주", "작성", "만들어", "만들고", "생성", "뽑아", "준비해"}
	caseLawWords  = []string{"판례", "판결", "선례"}
)

type streamer interface {
	GenerateStream(ctx context.Context, systemPrompt, userPrompt string) (<-chan llm.Chunk, error)
}

type flowRunner interface {
	Active(ctx context.Context, conversationID string) bool
	Advance(ctx context.Context, turn Turn) (*TurnResult, error)
}

// SendResult is the outcome of one chat turn.
type SendResult struct {
	UserMessage      *models.Message  `json:"user_message"`
	AssistantMessage *models.Message  `json:"assistant_message"`
	Route            string           `json:"route"`
	Document         *TurnResult      `json:"document,omitempty"`
	Cases            []models.CaseLaw `json:"cases,omitempty"`
}

// ChatService stores conversations and answers user turns, routing them to
// document generation, case-law search or a streamed legal answer.
type ChatService struct {
	db       *gorm.DB
	flow     flowRunner
	cases    *CaseLawService
	llm      streamer
	registry *templates.Registry
	now      func() time.Time
}

func NewChatService(db *gorm.DB, flow flowRunner, cases *CaseLawService, llm streamer, registry *templates.Registry) *ChatService {
	return &ChatService{
		db:       db,
		flow:     flow,
		cases:    cases,
		llm:      llm,
		registry: registry,
		now:      time.Now,
	}
}

func (s *ChatService) CreateConversation(ctx context.Context, userID, title string) (*models.Conversation, error) {
	conv := &models.Conversation{
		ID:     uuid.New().String(),
		UserID: userID,
		Title:  strings.TrimSpace(title),
	}
	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

func (s *ChatService) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	var convs []models.Conversation
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("updated_at DESC").Find(&convs).Error; err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return convs, nil
}

// GetConversation returns the conversation if userID owns it.
func (s *ChatService) GetConversation(ctx context.Context, userID, conversationID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", conversationID, userID).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return &conv, nil
}

func (s *ChatService) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", conversationID, userID).Delete(&models.Conversation{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete conversation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Messages lists a conversation's messages oldest first.
func (s *ChatService) Messages(ctx context.Context, userID, conversationID string) ([]models.Message, error) {
	if _, err := s.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	var msgs []models.Message
	if err := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Order("created_at ASC").Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	return msgs, nil
}

// AppendAssistantMessage stores an assistant message and bumps the
// conversation's UpdatedAt.
func (s *ChatService) AppendAssistantMessage(ctx context.Context, conversationID, userID, content string, documentRequestID *string) (*models.Message, error) {
	return s.appendMessage(ctx, conversationID, userID, models.RoleAssistant, content, documentRequestID)
}

func (s *ChatService) appendMessage(ctx context.Context, conversationID, userID string, role models.MessageRole, content string, documentRequestID *string) (*models.Message, error) {
	msg := &models.Message{
		ID:                uuid.New().String(),
		ConversationID:    conversationID,
		UserID:            userID,
		Role:              role,
		Content:           content,
		DocumentRequestID: documentRequestID,
		CreatedAt:         s.now(),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&models.Conversation{}).Where("id = ?", conversationID).Update("updated_at", msg.CreatedAt).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}
	return msg, nil
}

// Send handles one user turn. onDelta, if set, receives the reply as it is
// produced; the full reply is stored as exactly one assistant message.
func (s *ChatService) Send(ctx context.Context, userID, conversationID, text string, onDelta func(string)) (*SendResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	conv, err := s.GetConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithUser(logger.WithConversation(ctx, conversationID), userID)
	if onDelta == nil {
		onDelta = func(string) {}
	}

	history, err := s.recentMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	userMsg, err := s.appendMessage(ctx, conversationID, userID, models.RoleUser, text, nil)
	if err != nil {
		return nil, err
	}
	if conv.Title == "" {
		s.setTitle(ctx, conv, text)
	}

	result := &SendResult{UserMessage: userMsg}
	var reply string
	var docID *string

	switch {
	case s.flow != nil && (s.flow.Active(ctx, conversationID) || s.wantsDocument(ctx, text)):
		result.Route = RouteDocument
		turn, err := s.flow.Advance(ctx, Turn{ConversationID: conversationID, UserID: userID, Text: text})
		if err != nil {
			logger.WithContext(ctx).WithError(err).Error("Document flow failed")
			reply = MsgGenerationFailed
		} else {
			result.Document = turn
			reply = turn.Reply
			if turn.Request != nil {
				id := turn.Request.ID
				docID = &id
			}
		}
		onDelta(reply)
	case s.cases != nil && containsAny(text, caseLawWords):
		result.Route = RouteCaseLaw
		result.Cases = s.cases.Search(text, caseReplyLimit)
		reply = FormatCaseLaws(result.Cases)
		onDelta(reply)
	default:
		result.Route = RouteAnswer
		reply = s.answer(ctx, history, text, onDelta)
	}

	// The reply is stored even if the client went away mid-stream.
	assistant, err := s.AppendAssistantMessage(context.WithoutCancel(ctx), conversationID, userID, reply, docID)
	if err != nil {
		return nil, err
	}
	result.AssistantMessage = assistant
	return result, nil
}

// answer streams a legal Q&A completion. Partial output followed by an
// error or cancellation is replaced by the apology.
func (s *ChatService) answer(ctx context.Context, history []models.Message, text string, onDelta func(string)) string {
	log := logger.WithContext(ctx)
	if s.llm == nil {
		onDelta(MsgAnswerFailed)
		return MsgAnswerFailed
	}

	chunks, err := s.llm.GenerateStream(ctx, legalSystemPrompt, buildQuestion(history, text))
	if err != nil {
		log.WithError(err).Error("Failed to start answer stream")
		onDelta(MsgAnswerFailed)
		return MsgAnswerFailed
	}

	var b strings.Builder
	for chunk := range chunks {
		if chunk.Err != nil {
			log.WithError(chunk.Err).Error("Answer stream failed")
			if b.Len() == 0 {
				onDelta(MsgAnswerFailed)
			}
			return MsgAnswerFailed
		}
		if chunk.Text == "" {
			continue
		}
		b.WriteString(chunk.Text)
		onDelta(chunk.Text)
	}
	// Producers close the channel without an error chunk on cancellation.
	if err := ctx.Err(); err != nil {
		log.WithError(err).Warn("Answer stream interrupted")
		return MsgAnswerFailed
	}
	if strings.TrimSpace(b.String()) == "" {
		onDelta(MsgAnswerFailed)
		return MsgAnswerFailed
	}
	return b.String()
}

func buildQuestion(history []models.Message, text string) string {
	if len(history) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString("이전 대화:\n")
	for _, m := range history {
		speaker := "사용자"
		if m.Role == models.RoleAssistant {
			speaker = "어시스턴트"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, m.Content)
	}
	b.WriteString("\n질문: ")
	b.WriteString(text)
	return b.String()
}

func (s *ChatService) recentMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	var msgs []models.Message
	if err := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID).
		Order("created_at DESC").Limit(historyWindow).Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *ChatService) setTitle(ctx context.Context, conv *models.Conversation, text string) {
	title := firstLine(text)
	if utf8.RuneCountInString(title) > titleMaxRunes {
		title = string([]rune(title)[:titleMaxRunes]) + "…"
	}
	if title == "" {
		title = defaultTitle
	}
	if err := s.db.WithContext(ctx).Model(&models.Conversation{}).Where("id = ?", conv.ID).Update("title", title).Error; err != nil {
		logger.WithContext(ctx).WithError(err).Warn("Failed to set conversation title")
		return
	}
	conv.Title = title
}

// wantsDocument is true for a writing request that names a known document.
func (s *ChatService) wantsDocument(ctx context.Context, text string) bool {
	if !containsAny(text, documentVerbs) {
		return false
	}
	if s.registry == nil {
		return false
	}
	return len(s.registry.SearchByKeyword(ctx, text)) > 0
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
