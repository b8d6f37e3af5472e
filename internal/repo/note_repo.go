package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/mdesk/internal/model"
	appErr "github.com/xxxsen/mdesk/internal/pkg/errors"
)

var noteColumns = []string{"id", "user_id", "workspace_id", "title", "content", "tags", "state", "ctime", "mtime"}

type NoteRepo struct {
	db *DB
}

func NewNoteRepo(db *DB) *NoteRepo {
	return &NoteRepo{db: db}
}

func (r *NoteRepo) Create(ctx context.Context, note *model.Note) error {
	if note.State == 0 {
		note.State = StateNormal
	}
	data := map[string]interface{}{
		"id":           note.ID,
		"user_id":      note.UserID,
		"workspace_id": note.WorkspaceID,
		"title":        note.Title,
		"content":      note.Content,
		"tags":         note.Tags,
		"state":        note.State,
		"ctime":        note.Ctime,
		"mtime":        note.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("notes", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *NoteRepo) GetByID(ctx context.Context, userID, noteID string) (*model.Note, error) {
	where := map[string]interface{}{
		"id":      noteID,
		"user_id": userID,
		"state":   StateNormal,
	}
	items, err := r.query(ctx, where)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, appErr.ErrNotFound
	}
	return &items[0], nil
}

// Search returns visible notes whose title, content or tags contain any of the terms.
func (r *NoteRepo) Search(ctx context.Context, userID string, workspaceIDs []string, terms []string, limit uint) ([]model.Note, error) {
	where := map[string]interface{}{
		"state":              StateNormal,
		"_custom_visibility": visibleTo("user_id", "workspace_id", userID, workspaceIDs),
		"_custom_match":      matchAny([]string{"title", "content", "tags"}, terms),
		"_orderby":           "mtime desc",
	}
	if limit > 0 {
		where["_limit"] = []uint{0, limit}
	}
	return r.query(ctx, where)
}

// Recent returns the most recently updated visible notes.
func (r *NoteRepo) Recent(ctx context.Context, userID string, workspaceIDs []string, limit uint) ([]model.Note, error) {
	where := map[string]interface{}{
		"state":              StateNormal,
		"_custom_visibility": visibleTo("user_id", "workspace_id", userID, workspaceIDs),
		"_orderby":           "mtime desc",
	}
	if limit > 0 {
		where["_limit"] = []uint{0, limit}
	}
	return r.query(ctx, where)
}

func (r *NoteRepo) query(ctx context.Context, where map[string]interface{}) ([]model.Note, error) {
	sqlStr, args, err := builder.BuildSelect("notes", where, noteColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNotes(rows)
}

func scanNotes(rows *sql.Rows) ([]model.Note, error) {
	items := make([]model.Note, 0)
	for rows.Next() {
		var item model.Note
		if err := rows.Scan(&item.ID, &item.UserID, &item.WorkspaceID, &item.Title, &item.Content, &item.Tags, &item.State, &item.Ctime, &item.Mtime); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
