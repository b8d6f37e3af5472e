package dbutil

import (
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

func TestFinalizePostgresRebindsAndSwapsLimit(t *testing.T) {
	query, args := Finalize(DriverPostgres, "SELECT id FROM notes WHERE user_id=? LIMIT ?,?", []interface{}{"u1", 0, 20})
	require.Equal(t, "SELECT id FROM notes WHERE user_id=$1 LIMIT $2 OFFSET $3", query)
	require.Equal(t, []interface{}{"u1", 20, 0}, args)
}

func TestFinalizeSqliteUntouched(t *testing.T) {
	query, args := Finalize(DriverSqlite, "SELECT id FROM notes WHERE user_id=? LIMIT ?,?", []interface{}{"u1", 0, 20})
	require.Equal(t, "SELECT id FROM notes WHERE user_id=? LIMIT ?,?", query)
	require.Equal(t, []interface{}{"u1", 0, 20}, args)
}

func TestIsConflict(t *testing.T) {
	require.True(t, IsConflict(&pq.Error{Code: "23505"}))
	require.False(t, IsConflict(&pq.Error{Code: "42P01"}))
	require.True(t, IsConflict(errors.New("constraint failed: UNIQUE constraint failed: conversation_turns.conversation_id (2067)")))
	require.False(t, IsConflict(nil))
}

func TestLikePatternEscapes(t *testing.T) {
	require.Equal(t, `%50\% off%`, LikePattern("50% OFF"))
	require.Equal(t, `%a\_b%`, LikePattern("a_b"))
}
