package source

import (
	"context"
	"strings"

	"github.com/xxxsen/mdesk/internal/model"
	"github.com/xxxsen/mdesk/internal/search"
)

type MemberStore interface {
	Search(ctx context.Context, workspaceIDs []string, terms []string, limit uint) ([]model.Member, error)
	Recent(ctx context.Context, workspaceIDs []string, limit uint) ([]model.Member, error)
}

// MemberAdapter exposes the members of the caller's workspaces. Membership rows
// are visible through their workspace only.
type MemberAdapter struct {
	store MemberStore
}

func NewMemberAdapter(store MemberStore) *MemberAdapter {
	return &MemberAdapter{store: store}
}

func (a *MemberAdapter) EntityType() search.EntityType { return search.EntityMember }

func (a *MemberAdapter) Find(ctx context.Context, scope search.OwnerScope, q search.Query) ([]search.SearchableRecord, error) {
	if len(scope.WorkspaceIDs) == 0 {
		return []search.SearchableRecord{}, nil
	}
	members, err := gather(ctx, q,
		func(ctx context.Context, terms []string, limit uint) ([]model.Member, error) {
			return a.store.Search(ctx, scope.WorkspaceIDs, terms, limit)
		},
		func(ctx context.Context, limit uint) ([]model.Member, error) {
			return a.store.Recent(ctx, scope.WorkspaceIDs, limit)
		},
		func(m model.Member) string { return m.ID },
	)
	if err != nil {
		return nil, err
	}
	out := make([]search.SearchableRecord, 0, len(members))
	for _, m := range members {
		body := strings.TrimSpace(strings.Join([]string{m.Email, m.Role}, " "))
		out = append(out, search.SearchableRecord{
			ID:         m.ID,
			EntityType: search.EntityMember,
			Owner:      search.Visibility{WorkspaceID: m.WorkspaceID},
			Title:      m.Name,
			Fields: fields(
				search.Field{Name: search.FieldTitle, Weight: search.WeightTitle, Text: m.Name},
				search.Field{Name: search.FieldBody, Weight: search.WeightBody, Text: body},
			),
			UpdatedAt: m.Mtime,
		})
	}
	return out, nil
}
