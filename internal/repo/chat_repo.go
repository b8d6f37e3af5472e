package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/mdesk/internal/model"
	appErr "github.com/xxxsen/mdesk/internal/pkg/errors"
)

var (
	chatThreadColumns  = []string{"id", "workspace_id", "owner_id", "title", "participants", "ctime", "mtime"}
	chatMessageColumns = []string{"id", "thread_id", "sender_id", "sender_name", "content", "ctime"}
)

type ChatRepo struct {
	db *DB
}

func NewChatRepo(db *DB) *ChatRepo {
	return &ChatRepo{db: db}
}

func (r *ChatRepo) CreateThread(ctx context.Context, thread *model.ChatThread) error {
	data := map[string]interface{}{
		"id":           thread.ID,
		"workspace_id": thread.WorkspaceID,
		"owner_id":     thread.OwnerID,
		"title":        thread.Title,
		"participants": thread.Participants,
		"ctime":        thread.Ctime,
		"mtime":        thread.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("chat_threads", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// AddMessage stores a message and bumps the thread's mtime in one transaction.
func (r *ChatRepo) AddMessage(ctx context.Context, msg *model.ChatMessage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	data := map[string]interface{}{
		"id":          msg.ID,
		"thread_id":   msg.ThreadID,
		"sender_id":   msg.SenderID,
		"sender_name": msg.SenderName,
		"content":     msg.Content,
		"ctime":       msg.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("chat_messages", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return err
	}
	sqlStr, args, err = builder.BuildUpdate("chat_threads", map[string]interface{}{"id": msg.ThreadID}, map[string]interface{}{"mtime": msg.Ctime})
	if err != nil {
		return err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	result, err := tx.ExecContext(ctx, sqlStr, args...)
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
	return tx.Commit()
}

// SearchThreads matches thread title, participants, or the content of any message in the thread.
func (r *ChatRepo) SearchThreads(ctx context.Context, userID string, workspaceIDs []string, terms []string, limit uint) ([]model.ChatThread, error) {
	threadClause, threadArgs := matchAnyClause([]string{"title", "participants"}, terms)
	msgClause, msgArgs := matchAnyClause([]string{"content"}, terms)
	args := append(threadArgs, msgArgs...)
	where := map[string]interface{}{
		"_custom_visibility": visibleTo("owner_id", "workspace_id", userID, workspaceIDs),
		"_custom_match":      builder.Custom("("+threadClause+" OR id IN (SELECT thread_id FROM chat_messages WHERE "+msgClause+"))", args...),
		"_orderby":           "mtime desc",
	}
	if limit > 0 {
		where["_limit"] = []uint{0, limit}
	}
	return r.queryThreads(ctx, where)
}

func (r *ChatRepo) RecentThreads(ctx context.Context, userID string, workspaceIDs []string, limit uint) ([]model.ChatThread, error) {
	where := map[string]interface{}{
		"_custom_visibility": visibleTo("owner_id", "workspace_id", userID, workspaceIDs),
		"_orderby":           "mtime desc",
	}
	if limit > 0 {
		where["_limit"] = []uint{0, limit}
	}
	return r.queryThreads(ctx, where)
}

// ListMessages returns messages of the given threads ordered oldest first.
func (r *ChatRepo) ListMessages(ctx context.Context, threadIDs []string) ([]model.ChatMessage, error) {
	if len(threadIDs) == 0 {
		return []model.ChatMessage{}, nil
	}
	ids := make([]interface{}, 0, len(threadIDs))
	for _, id := range threadIDs {
		ids = append(ids, id)
	}
	where := map[string]interface{}{
		"_custom_ids": builder.In{"thread_id": ids},
		"_orderby":    "ctime asc",
	}
	sqlStr, args, err := builder.BuildSelect("chat_messages", where, chatMessageColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.ChatMessage, 0)
	for rows.Next() {
		var item model.ChatMessage
		if err := rows.Scan(&item.ID, &item.ThreadID, &item.SenderID, &item.SenderName, &item.Content, &item.Ctime); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *ChatRepo) queryThreads(ctx context.Context, where map[string]interface{}) ([]model.ChatThread, error) {
	sqlStr, args, err := builder.BuildSelect("chat_threads", where, chatThreadColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanThreads(rows)
}

func scanThreads(rows *sql.Rows) ([]model.ChatThread, error) {
	items := make([]model.ChatThread, 0)
	for rows.Next() {
		var item model.ChatThread
		if err := rows.Scan(&item.ID, &item.WorkspaceID, &item.OwnerID, &item.Title, &item.Participants, &item.Ctime, &item.Mtime); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
