package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/mdesk/internal/model"
)

var workspaceColumns = []string{"id", "owner_id", "name", "description", "ctime", "mtime"}

type WorkspaceRepo struct {
	db *DB
}

func NewWorkspaceRepo(db *DB) *WorkspaceRepo {
	return &WorkspaceRepo{db: db}
}

func (r *WorkspaceRepo) Create(ctx context.Context, ws *model.Workspace) error {
	data := map[string]interface{}{
		"id":          ws.ID,
		"owner_id":    ws.OwnerID,
		"name":        ws.Name,
		"description": ws.Description,
		"ctime":       ws.Ctime,
		"mtime":       ws.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("workspaces", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// Search returns workspaces owned by the user or listed in workspaceIDs that match any term.
func (r *WorkspaceRepo) Search(ctx context.Context, userID string, workspaceIDs []string, terms []string, limit uint) ([]model.Workspace, error) {
	where := map[string]interface{}{
		"_custom_visibility": visibleTo("owner_id", "id", userID, workspaceIDs),
		"_custom_match":      matchAny([]string{"name", "description"}, terms),
		"_orderby":           "mtime desc",
	}
	if limit > 0 {
		where["_limit"] = []uint{0, limit}
	}
	return r.query(ctx, where)
}

func (r *WorkspaceRepo) Recent(ctx context.Context, userID string, workspaceIDs []string, limit uint) ([]model.Workspace, error) {
	where := map[string]interface{}{
		"_custom_visibility": visibleTo("owner_id", "id", userID, workspaceIDs),
		"_orderby":           "mtime desc",
	}
	if limit > 0 {
		where["_limit"] = []uint{0, limit}
	}
	return r.query(ctx, where)
}

func (r *WorkspaceRepo) query(ctx context.Context, where map[string]interface{}) ([]model.Workspace, error) {
	sqlStr, args, err := builder.BuildSelect("workspaces", where, workspaceColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWorkspaces(rows)
}

func scanWorkspaces(rows *sql.Rows) ([]model.Workspace, error) {
	items := make([]model.Workspace, 0)
	for rows.Next() {
		var item model.Workspace
		if err := rows.Scan(&item.ID, &item.OwnerID, &item.Name, &item.Description, &item.Ctime, &item.Mtime); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
