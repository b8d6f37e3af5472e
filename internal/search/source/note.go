package source

import (
	"context"

	"github.com/xxxsen/mdesk/internal/model"
	"github.com/xxxsen/mdesk/internal/search"
)

type NoteStore interface {
	Search(ctx context.Context, userID string, workspaceIDs []string, terms []string, limit uint) ([]model.Note, error)
	Recent(ctx context.Context, userID string, workspaceIDs []string, limit uint) ([]model.Note, error)
}

type NoteAdapter struct {
	store NoteStore
}

func NewNoteAdapter(store NoteStore) *NoteAdapter {
	return &NoteAdapter{store: store}
}

func (a *NoteAdapter) EntityType() search.EntityType { return search.EntityNote }

func (a *NoteAdapter) Find(ctx context.Context, scope search.OwnerScope, q search.Query) ([]search.SearchableRecord, error) {
	notes, err := gather(ctx, q,
		func(ctx context.Context, terms []string, limit uint) ([]model.Note, error) {
			return a.store.Search(ctx, scope.UserID, scope.WorkspaceIDs, terms, limit)
		},
		func(ctx context.Context, limit uint) ([]model.Note, error) {
			return a.store.Recent(ctx, scope.UserID, scope.WorkspaceIDs, limit)
		},
		func(n model.Note) string { return n.ID },
	)
	if err != nil {
		return nil, err
	}
	out := make([]search.SearchableRecord, 0, len(notes))
	for _, n := range notes {
		out = append(out, search.SearchableRecord{
			ID:         n.ID,
			EntityType: search.EntityNote,
			Owner:      search.Visibility{UserID: n.UserID, WorkspaceID: n.WorkspaceID},
			Title:      n.Title,
			Fields: fields(
				search.Field{Name: search.FieldTitle, Weight: search.WeightTitle, Text: n.Title},
				search.Field{Name: search.FieldBody, Weight: search.WeightBody, Text: n.Content},
				search.Field{Name: search.FieldTags, Weight: search.WeightTags, Text: n.Tags},
			),
			UpdatedAt: n.Mtime,
		})
	}
	return out, nil
}
