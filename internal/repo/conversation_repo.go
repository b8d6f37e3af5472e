package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/mdesk/internal/model"
	"github.com/xxxsen/mdesk/internal/pkg/dbutil"
	appErr "github.com/xxxsen/mdesk/internal/pkg/errors"
)

var (
	conversationColumns = []string{"id", "user_id", "title", "last_sequence", "ctime", "mtime"}
	turnColumns         = []string{"conversation_id", "sequence", "role", "content", "cited_sources", "ctime"}
)

type ConversationRepo struct {
	db *DB
}

func NewConversationRepo(db *DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

func (r *ConversationRepo) Create(ctx context.Context, conv *model.Conversation) error {
	data := map[string]interface{}{
		"id":            conv.ID,
		"user_id":       conv.UserID,
		"title":         conv.Title,
		"last_sequence": conv.LastSequence,
		"ctime":         conv.Ctime,
		"mtime":         conv.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("conversations", []map[string]interface{}{data})
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

func (r *ConversationRepo) GetByID(ctx context.Context, convID string) (*model.Conversation, error) {
	items, err := r.query(ctx, map[string]interface{}{"id": convID})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, appErr.ErrNotFound
	}
	return &items[0], nil
}

func (r *ConversationRepo) ListByUser(ctx context.Context, userID string, limit uint) ([]model.Conversation, error) {
	where := map[string]interface{}{
		"user_id":  userID,
		"_orderby": "mtime desc",
	}
	if limit > 0 {
		where["_limit"] = []uint{0, limit}
	}
	return r.query(ctx, where)
}

// AppendTurns writes turns after expectedLast and advances last_sequence in one transaction.
// It returns ErrConversationWriteConflict when another writer advanced the sequence first.
func (r *ConversationRepo) AppendTurns(ctx context.Context, convID string, expectedLast int64, turns []model.ConversationTurn) error {
	if len(turns) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	next := expectedLast + int64(len(turns))
	mtime := turns[len(turns)-1].Ctime
	sqlStr, args, err := builder.BuildUpdate("conversations",
		map[string]interface{}{"id": convID, "last_sequence": expectedLast},
		map[string]interface{}{"last_sequence": next, "mtime": mtime},
	)
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
		return appErr.ErrConversationWriteConflict
	}

	data := make([]map[string]interface{}, 0, len(turns))
	for i, turn := range turns {
		if turn.Sequence != expectedLast+int64(i)+1 {
			return fmt.Errorf("turn %d out of sequence: %w", turn.Sequence, appErr.ErrInvalid)
		}
		cited := turn.CitedSources
		if cited == nil {
			cited = []model.CitedSource{}
		}
		blob, err := json.Marshal(cited)
		if err != nil {
			return err
		}
		data = append(data, map[string]interface{}{
			"conversation_id": convID,
			"sequence":        turn.Sequence,
			"role":            turn.Role,
			"content":         turn.Content,
			"cited_sources":   string(blob),
			"ctime":           turn.Ctime,
		})
	}
	sqlStr, args, err = builder.BuildInsert("conversation_turns", data)
	if err != nil {
		return err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConversationWriteConflict
		}
		return err
	}
	return tx.Commit()
}

// ListRecentTurns returns the last limit turns in chronological order; limit 0 returns all.
func (r *ConversationRepo) ListRecentTurns(ctx context.Context, convID string, limit uint) ([]model.ConversationTurn, error) {
	where := map[string]interface{}{
		"conversation_id": convID,
		"_orderby":        "sequence desc",
	}
	if limit > 0 {
		where["_limit"] = []uint{0, limit}
	}
	sqlStr, args, err := builder.BuildSelect("conversation_turns", where, turnColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.ConversationTurn, 0)
	for rows.Next() {
		var item model.ConversationTurn
		var blob string
		if err := rows.Scan(&item.ConversationID, &item.Sequence, &item.Role, &item.Content, &blob, &item.Ctime); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(blob), &item.CitedSources); err != nil {
			return nil, fmt.Errorf("decode cited sources: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
	return items, nil
}

func (r *ConversationRepo) query(ctx context.Context, where map[string]interface{}) ([]model.Conversation, error) {
	sqlStr, args, err := builder.BuildSelect("conversations", where, conversationColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.Conversation, 0)
	for rows.Next() {
		var item model.Conversation
		if err := rows.Scan(&item.ID, &item.UserID, &item.Title, &item.LastSequence, &item.Ctime, &item.Mtime); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
