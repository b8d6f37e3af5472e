package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/mdesk/internal/model"
	appErr "github.com/xxxsen/mdesk/internal/pkg/errors"
)

var documentColumns = []string{"id", "user_id", "workspace_id", "title", "content", "extracted_text", "state", "ctime", "mtime"}

type DocumentRepo struct {
	db *DB
}

func NewDocumentRepo(db *DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	if doc.State == 0 {
		doc.State = StateNormal
	}
	data := map[string]interface{}{
		"id":             doc.ID,
		"user_id":        doc.UserID,
		"workspace_id":   doc.WorkspaceID,
		"title":          doc.Title,
		"content":        doc.Content,
		"extracted_text": doc.ExtractedText,
		"state":          doc.State,
		"ctime":          doc.Ctime,
		"mtime":          doc.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("documents", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *DocumentRepo) GetByID(ctx context.Context, userID, docID string) (*model.Document, error) {
	where := map[string]interface{}{
		"id":      docID,
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

// Search matches title and extracted text only; raw content is never searched.
func (r *DocumentRepo) Search(ctx context.Context, userID string, workspaceIDs []string, terms []string, limit uint) ([]model.Document, error) {
	where := map[string]interface{}{
		"state":              StateNormal,
		"_custom_visibility": visibleTo("user_id", "workspace_id", userID, workspaceIDs),
		"_custom_match":      matchAny([]string{"title", "extracted_text"}, terms),
		"_orderby":           "mtime desc",
	}
	if limit > 0 {
		where["_limit"] = []uint{0, limit}
	}
	return r.query(ctx, where)
}

func (r *DocumentRepo) Recent(ctx context.Context, userID string, workspaceIDs []string, limit uint) ([]model.Document, error) {
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

// ListPendingExtraction returns documents with content but no extracted text yet.
func (r *DocumentRepo) ListPendingExtraction(ctx context.Context, limit uint) ([]model.Document, error) {
	where := map[string]interface{}{
		"state":          StateNormal,
		"extracted_text": "",
		"content !=":     "",
		"_orderby":       "mtime asc",
	}
	if limit > 0 {
		where["_limit"] = []uint{0, limit}
	}
	return r.query(ctx, where)
}

func (r *DocumentRepo) UpdateExtractedText(ctx context.Context, docID, text string) error {
	where := map[string]interface{}{
		"id":    docID,
		"state": StateNormal,
	}
	update := map[string]interface{}{
		"extracted_text": text,
	}
	sqlStr, args, err := builder.BuildUpdate("documents", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *DocumentRepo) query(ctx context.Context, where map[string]interface{}) ([]model.Document, error) {
	sqlStr, args, err := builder.BuildSelect("documents", where, documentColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func scanDocuments(rows *sql.Rows) ([]model.Document, error) {
	items := make([]model.Document, 0)
	for rows.Next() {
		var item model.Document
		if err := rows.Scan(&item.ID, &item.UserID, &item.WorkspaceID, &item.Title, &item.Content, &item.ExtractedText, &item.State, &item.Ctime, &item.Mtime); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
