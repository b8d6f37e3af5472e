package source

import (
	"context"

	"github.com/xxxsen/mdesk/internal/model"
	"github.com/xxxsen/mdesk/internal/search"
)

type WorkspaceStore interface {
	Search(ctx context.Context, userID string, workspaceIDs []string, terms []string, limit uint) ([]model.Workspace, error)
	Recent(ctx context.Context, userID string, workspaceIDs []string, limit uint) ([]model.Workspace, error)
}

type WorkspaceAdapter struct {
	store WorkspaceStore
}

func NewWorkspaceAdapter(store WorkspaceStore) *WorkspaceAdapter {
	return &WorkspaceAdapter{store: store}
}

func (a *WorkspaceAdapter) EntityType() search.EntityType { return search.EntityWorkspace }

func (a *WorkspaceAdapter) Find(ctx context.Context, scope search.OwnerScope, q search.Query) ([]search.SearchableRecord, error) {
	items, err := gather(ctx, q,
		func(ctx context.Context, terms []string, limit uint) ([]model.Workspace, error) {
			return a.store.Search(ctx, scope.UserID, scope.WorkspaceIDs, terms, limit)
		},
		func(ctx context.Context, limit uint) ([]model.Workspace, error) {
			return a.store.Recent(ctx, scope.UserID, scope.WorkspaceIDs, limit)
		},
		func(w model.Workspace) string { return w.ID },
	)
	if err != nil {
		return nil, err
	}
	out := make([]search.SearchableRecord, 0, len(items))
	for _, w := range items {
		out = append(out, search.SearchableRecord{
			ID:         w.ID,
			EntityType: search.EntityWorkspace,
			Owner:      search.Visibility{UserID: w.OwnerID, WorkspaceID: w.ID},
			Title:      w.Name,
			Fields: fields(
				search.Field{Name: search.FieldTitle, Weight: search.WeightTitle, Text: w.Name},
				search.Field{Name: search.FieldBody, Weight: search.WeightBody, Text: w.Description},
			),
			UpdatedAt: w.Mtime,
		})
	}
	return out, nil
}
