package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/mdesk/internal/model"
	"github.com/xxxsen/mdesk/internal/pkg/dbutil"
	appErr "github.com/xxxsen/mdesk/internal/pkg/errors"
)

var memberColumns = []string{"id", "workspace_id", "user_id", "name", "email", "role", "ctime", "mtime"}

type MemberRepo struct {
	db *DB
}

func NewMemberRepo(db *DB) *MemberRepo {
	return &MemberRepo{db: db}
}

func (r *MemberRepo) Create(ctx context.Context, member *model.Member) error {
	data := map[string]interface{}{
		"id":           member.ID,
		"workspace_id": member.WorkspaceID,
		"user_id":      member.UserID,
		"name":         member.Name,
		"email":        member.Email,
		"role":         member.Role,
		"ctime":        member.Ctime,
		"mtime":        member.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("workspace_members", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

// ListWorkspaceIDs returns every workspace the user belongs to.
func (r *MemberRepo) ListWorkspaceIDs(ctx context.Context, userID string) ([]string, error) {
	where := map[string]interface{}{
		"user_id":  userID,
		"_orderby": "workspace_id asc",
	}
	sqlStr, args, err := builder.BuildSelect("workspace_members", where, []string{"workspace_id"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Search only ever looks inside the given workspaces; members have no owning user.
func (r *MemberRepo) Search(ctx context.Context, workspaceIDs []string, terms []string, limit uint) ([]model.Member, error) {
	where := map[string]interface{}{
		"_custom_visibility": visibleTo("", "workspace_id", "", workspaceIDs),
		"_custom_match":      matchAny([]string{"name", "email"}, terms),
		"_orderby":           "mtime desc",
	}
	if limit > 0 {
		where["_limit"] = []uint{0, limit}
	}
	return r.query(ctx, where)
}

func (r *MemberRepo) Recent(ctx context.Context, workspaceIDs []string, limit uint) ([]model.Member, error) {
	where := map[string]interface{}{
		"_custom_visibility": visibleTo("", "workspace_id", "", workspaceIDs),
		"_orderby":           "mtime desc",
	}
	if limit > 0 {
		where["_limit"] = []uint{0, limit}
	}
	return r.query(ctx, where)
}

func (r *MemberRepo) query(ctx context.Context, where map[string]interface{}) ([]model.Member, error) {
	sqlStr, args, err := builder.BuildSelect("workspace_members", where, memberColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMembers(rows)
}

func scanMembers(rows *sql.Rows) ([]model.Member, error) {
	items := make([]model.Member, 0)
	for rows.Next() {
		var item model.Member
		if err := rows.Scan(&item.ID, &item.WorkspaceID, &item.UserID, &item.Name, &item.Email, &item.Role, &item.Ctime, &item.Mtime); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
