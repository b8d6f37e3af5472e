package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mdesk/internal/model"
	appErr "github.com/xxxsen/mdesk/internal/pkg/errors"
	"github.com/xxxsen/mdesk/internal/pkg/timeutil"
)

const (
	DefaultMaxRetries = 3
	maxTitleRunes     = 60
	defaultTitle      = "New conversation"
)

type Repo interface {
	Create(ctx context.Context, conv *model.Conversation) error
	GetByID(ctx context.Context, convID string) (*model.Conversation, error)
	ListByUser(ctx context.Context, userID string, limit uint) ([]model.Conversation, error)
	AppendTurns(ctx context.Context, convID string, expectedLast int64, turns []model.ConversationTurn) error
	ListRecentTurns(ctx context.Context, convID string, limit uint) ([]model.ConversationTurn, error)
}

// Store is the durable, append-only conversation log. Appends to one conversation
// are serialized in process by a per-conversation lock and across processes by the
// repository's compare-and-swap on last_sequence.
type Store struct {
	repo       Repo
	locks      *keyedMutex
	maxRetries int
	now        func() int64
}

type Option func(*Store)

func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

func WithClock(now func() int64) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func NewStore(repo Repo, opts ...Option) *Store {
	s := &Store{
		repo:       repo,
		locks:      newKeyedMutex(),
		maxRetries: DefaultMaxRetries,
		now:        timeutil.NowUnix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Create(ctx context.Context, userID, seedTitle string) (*model.Conversation, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, appErr.ErrUnauthorized
	}
	now := s.now()
	conv := &model.Conversation{
		ID:     uuid.NewString(),
		UserID: userID,
		Title:  Title(seedTitle),
		Ctime:  now,
		Mtime:  now,
	}
	if err := s.repo.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// Get returns the conversation if userID owns it. Another user's conversation is
// reported as not found.
func (s *Store) Get(ctx context.Context, userID, convID string) (*model.Conversation, error) {
	conv, err := s.repo.GetByID(ctx, convID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, appErr.ErrNotFound
	}
	return conv, nil
}

func (s *Store) List(ctx context.Context, userID string, limit int) ([]model.Conversation, error) {
	if limit < 0 {
		limit = 0
	}
	return s.repo.ListByUser(ctx, userID, uint(limit))
}

// GetTurns returns the latest limit turns oldest first; limit <= 0 returns all of them.
func (s *Store) GetTurns(ctx context.Context, convID string, limit int) ([]model.ConversationTurn, error) {
	if limit < 0 {
		limit = 0
	}
	return s.repo.ListRecentTurns(ctx, convID, uint(limit))
}

type TurnInput struct {
	Role         string
	Content      string
	CitedSources []model.CitedSource
}

func (s *Store) AppendTurn(ctx context.Context, convID, role, content string, cited []model.CitedSource) (*model.ConversationTurn, error) {
	turns, err := s.append(ctx, convID, []TurnInput{{Role: role, Content: content, CitedSources: cited}})
	if err != nil {
		return nil, err
	}
	return &turns[0], nil
}

// AppendExchange writes a question and its answer as two consecutive turns in one
// write; either both land or neither does.
func (s *Store) AppendExchange(ctx context.Context, convID, question, answer string, cited []model.CitedSource) ([]model.ConversationTurn, error) {
	return s.append(ctx, convID, []TurnInput{
		{Role: model.RoleUser, Content: question},
		{Role: model.RoleAssistant, Content: answer, CitedSources: cited},
	})
}

func (s *Store) append(ctx context.Context, convID string, inputs []TurnInput) ([]model.ConversationTurn, error) {
	for _, in := range inputs {
		if in.Role != model.RoleUser && in.Role != model.RoleAssistant {
			return nil, fmt.Errorf("role %q: %w", in.Role, appErr.ErrInvalid)
		}
	}
	unlock := s.locks.Lock(convID)
	defer unlock()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		conv, err := s.repo.GetByID(ctx, convID)
		if err != nil {
			return nil, err
		}
		now := s.now()
		turns := make([]model.ConversationTurn, 0, len(inputs))
		for i, in := range inputs {
			cited := in.CitedSources
			if cited == nil {
				cited = []model.CitedSource{}
			}
			turns = append(turns, model.ConversationTurn{
				ConversationID: convID,
				Sequence:       conv.LastSequence + int64(i) + 1,
				Role:           in.Role,
				Content:        in.Content,
				CitedSources:   cited,
				Ctime:          now,
			})
		}
		err = s.repo.AppendTurns(ctx, convID, conv.LastSequence, turns)
		if err == nil {
			return turns, nil
		}
		if !errors.Is(err, appErr.ErrConversationWriteConflict) {
			return nil, fmt.Errorf("append turns: %w", err)
		}
		if attempt >= s.maxRetries {
			logutil.GetLogger(ctx).Error("conversation append conflict not resolved",
				zap.String("conversation_id", convID), zap.Int("attempts", attempt))
			return nil, err
		}
		logutil.GetLogger(ctx).Warn("conversation append conflict, retry",
			zap.String("conversation_id", convID), zap.Int("attempt", attempt))
	}
}

// Title derives a conversation title from the first question.
func Title(seed string) string {
	seed = strings.Join(strings.Fields(seed), " ")
	if seed == "" {
		return defaultTitle
	}
	runes := []rune(seed)
	if len(runes) > maxTitleRunes {
		return strings.TrimSpace(string(runes[:maxTitleRunes]))
	}
	return seed
}
