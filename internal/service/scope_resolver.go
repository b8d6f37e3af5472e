package service

import (
	"context"
	"fmt"
	"strings"

	appErr "github.com/xxxsen/mdesk/internal/pkg/errors"
	"github.com/xxxsen/mdesk/internal/repo"
	"github.com/xxxsen/mdesk/internal/search"
)

// ScopeResolver maps an authenticated user to the records they may see: their
// own plus those of every workspace they are a member of.
type ScopeResolver struct {
	members *repo.MemberRepo
}

func NewScopeResolver(members *repo.MemberRepo) *ScopeResolver {
	return &ScopeResolver{members: members}
}

func (r *ScopeResolver) Resolve(ctx context.Context, userID string) (search.OwnerScope, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return search.OwnerScope{}, appErr.ErrUnauthorized
	}
	ids, err := r.members.ListWorkspaceIDs(ctx, userID)
	if err != nil {
		return search.OwnerScope{}, fmt.Errorf("list workspaces: %w", err)
	}
	return search.OwnerScope{UserID: userID, WorkspaceIDs: ids}, nil
}
