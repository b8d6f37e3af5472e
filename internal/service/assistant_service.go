package service

import (
	"context"
	"errors"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mdesk/internal/ai"
	"github.com/xxxsen/mdesk/internal/conversation"
	"github.com/xxxsen/mdesk/internal/model"
	appErr "github.com/xxxsen/mdesk/internal/pkg/errors"
	"github.com/xxxsen/mdesk/internal/search"
)

type AskRequest struct {
	Question       string `json:"question"`
	ConversationID string `json:"conversation_id"`
}

type AskResult struct {
	Answer         string              `json:"answer"`
	Citations      []model.CitedSource `json:"citations"`
	ConversationID string              `json:"conversation_id"`
	Degraded       bool                `json:"degraded"`
	Partial        bool                `json:"partial"`
}

type ContextBuilder interface {
	Build(ctx context.Context, question, conversationID string, scope search.OwnerScope) (*search.ContextWindow, error)
}

type AnswerSynthesizer interface {
	Synthesize(ctx context.Context, question string, window *search.ContextWindow) (*ai.Answer, error)
}

type AssistantService struct {
	contexts ContextBuilder
	answers  AnswerSynthesizer
	store    *conversation.Store
}

func NewAssistantService(contexts ContextBuilder, answers AnswerSynthesizer, store *conversation.Store) *AssistantService {
	return &AssistantService{contexts: contexts, answers: answers, store: store}
}

// Ask answers a question grounded on the caller's records. The exchange is only
// recorded once an answer exists; a new conversation is started when none is given.
func (s *AssistantService) Ask(ctx context.Context, scope search.OwnerScope, req AskRequest) (*AskResult, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("user_id", scope.UserID))
	convID := strings.TrimSpace(req.ConversationID)
	if convID != "" {
		if _, err := s.store.Get(ctx, scope.UserID, convID); err != nil {
			return nil, err
		}
	}
	window, err := s.contexts.Build(ctx, req.Question, convID, scope)
	if err != nil && !errors.Is(err, appErr.ErrNoContext) {
		return nil, err
	}
	if err != nil {
		logger.Info("ask without grounding context")
	}
	answer, err := s.answers.Synthesize(ctx, window.Question, window)
	if err != nil {
		return nil, err
	}
	if convID == "" {
		conv, err := s.store.Create(ctx, scope.UserID, window.Question)
		if err != nil {
			return nil, err
		}
		convID = conv.ID
	}
	if _, err := s.store.AppendExchange(ctx, convID, window.Question, answer.Text, answer.Citations); err != nil {
		logger.Error("record exchange failed", zap.String("conversation_id", convID), zap.Error(err))
		return nil, err
	}
	return &AskResult{
		Answer:         answer.Text,
		Citations:      answer.Citations,
		ConversationID: convID,
		Degraded:       answer.Degraded,
		Partial:        window.Partial,
	}, nil
}

func (s *AssistantService) ListConversationTurns(ctx context.Context, scope search.OwnerScope, convID string, limit int) ([]model.ConversationTurn, error) {
	if _, err := s.store.Get(ctx, scope.UserID, convID); err != nil {
		return nil, err
	}
	return s.store.GetTurns(ctx, convID, limit)
}

func (s *AssistantService) ListConversations(ctx context.Context, scope search.OwnerScope, limit int) ([]model.Conversation, error) {
	return s.store.List(ctx, scope.UserID, limit)
}
