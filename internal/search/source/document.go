package source

import (
	"context"

	"github.com/xxxsen/mdesk/internal/model"
	"github.com/xxxsen/mdesk/internal/search"
)

type DocumentStore interface {
	Search(ctx context.Context, userID string, workspaceIDs []string, terms []string, limit uint) ([]model.Document, error)
	Recent(ctx context.Context, userID string, workspaceIDs []string, limit uint) ([]model.Document, error)
}

// DocumentAdapter searches a document's title and its extracted text. Documents
// whose text has not been extracted yet are matched by title only.
type DocumentAdapter struct {
	store DocumentStore
}

func NewDocumentAdapter(store DocumentStore) *DocumentAdapter {
	return &DocumentAdapter{store: store}
}

func (a *DocumentAdapter) EntityType() search.EntityType { return search.EntityDocument }

func (a *DocumentAdapter) Find(ctx context.Context, scope search.OwnerScope, q search.Query) ([]search.SearchableRecord, error) {
	docs, err := gather(ctx, q,
		func(ctx context.Context, terms []string, limit uint) ([]model.Document, error) {
			return a.store.Search(ctx, scope.UserID, scope.WorkspaceIDs, terms, limit)
		},
		func(ctx context.Context, limit uint) ([]model.Document, error) {
			return a.store.Recent(ctx, scope.UserID, scope.WorkspaceIDs, limit)
		},
		func(d model.Document) string { return d.ID },
	)
	if err != nil {
		return nil, err
	}
	out := make([]search.SearchableRecord, 0, len(docs))
	for _, d := range docs {
		out = append(out, search.SearchableRecord{
			ID:         d.ID,
			EntityType: search.EntityDocument,
			Owner:      search.Visibility{UserID: d.UserID, WorkspaceID: d.WorkspaceID},
			Title:      d.Title,
			Fields: fields(
				search.Field{Name: search.FieldTitle, Weight: search.WeightTitle, Text: d.Title},
				search.Field{Name: search.FieldBody, Weight: search.WeightBody, Text: d.ExtractedText},
			),
			UpdatedAt: d.Mtime,
		})
	}
	return out, nil
}
