package source

import (
	"context"
	"strings"

	"github.com/xxxsen/mdesk/internal/model"
	"github.com/xxxsen/mdesk/internal/search"
)

type ChatStore interface {
	SearchThreads(ctx context.Context, userID string, workspaceIDs []string, terms []string, limit uint) ([]model.ChatThread, error)
	RecentThreads(ctx context.Context, userID string, workspaceIDs []string, limit uint) ([]model.ChatThread, error)
	ListMessages(ctx context.Context, threadIDs []string) ([]model.ChatMessage, error)
}

// ChatAdapter turns a thread and its messages into one record; the body is the
// thread's messages in order, one "sender: text" line each.
type ChatAdapter struct {
	store ChatStore
}

func NewChatAdapter(store ChatStore) *ChatAdapter {
	return &ChatAdapter{store: store}
}

func (a *ChatAdapter) EntityType() search.EntityType { return search.EntityChat }

func (a *ChatAdapter) Find(ctx context.Context, scope search.OwnerScope, q search.Query) ([]search.SearchableRecord, error) {
	threads, err := gather(ctx, q,
		func(ctx context.Context, terms []string, limit uint) ([]model.ChatThread, error) {
			return a.store.SearchThreads(ctx, scope.UserID, scope.WorkspaceIDs, terms, limit)
		},
		func(ctx context.Context, limit uint) ([]model.ChatThread, error) {
			return a.store.RecentThreads(ctx, scope.UserID, scope.WorkspaceIDs, limit)
		},
		func(th model.ChatThread) string { return th.ID },
	)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(threads))
	for _, th := range threads {
		ids = append(ids, th.ID)
	}
	msgs, err := a.store.ListMessages(ctx, ids)
	if err != nil {
		return nil, err
	}
	bodies := make(map[string]*strings.Builder, len(threads))
	for _, msg := range msgs {
		sb, ok := bodies[msg.ThreadID]
		if !ok {
			sb = &strings.Builder{}
			bodies[msg.ThreadID] = sb
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		if msg.SenderName != "" {
			sb.WriteString(msg.SenderName)
			sb.WriteString(": ")
		}
		sb.WriteString(msg.Content)
	}
	out := make([]search.SearchableRecord, 0, len(threads))
	for _, th := range threads {
		body := ""
		if sb, ok := bodies[th.ID]; ok {
			body = sb.String()
		}
		out = append(out, search.SearchableRecord{
			ID:         th.ID,
			EntityType: search.EntityChat,
			Owner:      search.Visibility{UserID: th.OwnerID, WorkspaceID: th.WorkspaceID},
			Title:      th.Title,
			Fields: fields(
				search.Field{Name: search.FieldTitle, Weight: search.WeightTitle, Text: th.Title},
				search.Field{Name: search.FieldParticipants, Weight: search.WeightParticipants, Text: th.Participants},
				search.Field{Name: search.FieldBody, Weight: search.WeightBody, Text: body},
			),
			UpdatedAt: th.Mtime,
		})
	}
	return out, nil
}
