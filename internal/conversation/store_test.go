package conversation

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mdesk/internal/model"
	appErr "github.com/xxxsen/mdesk/internal/pkg/errors"
	"github.com/xxxsen/mdesk/internal/repo"
	"github.com/xxxsen/mdesk/internal/testutil"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, func()) {
	db, cleanup := testutil.OpenTestDB(t)
	return NewStore(repo.NewConversationRepo(db), opts...), cleanup
}

func TestCreateAndGet(t *testing.T) {
	store, cleanup := newTestStore(t, WithClock(func() int64 { return 42 }))
	defer cleanup()
	ctx := context.Background()

	conv, err := store.Create(ctx, "u1", "  what happened\nto revenue?  ")
	require.NoError(t, err)
	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, "what happened to revenue?", conv.Title)
	assert.Equal(t, int64(42), conv.Ctime)

	got, err := store.Get(ctx, "u1", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)

	_, err = store.Get(ctx, "u2", conv.ID)
	require.ErrorIs(t, err, appErr.ErrNotFound)
	_, err = store.Get(ctx, "u1", "missing")
	require.ErrorIs(t, err, appErr.ErrNotFound)

	_, err = store.Create(ctx, "", "x")
	require.ErrorIs(t, err, appErr.ErrUnauthorized)
}

func TestAppendTurnsAreOrdered(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()
	conv, err := store.Create(ctx, "u1", "hello")
	require.NoError(t, err)

	first, err := store.AppendTurn(ctx, conv.ID, model.RoleUser, "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Sequence)

	cited := []model.CitedSource{{EntityType: "note", ID: "n1", Title: "Q3", Excerpt: "revenue"}}
	pair, err := store.AppendExchange(ctx, conv.ID, "and revenue?", "up 12% [note:n1]", cited)
	require.NoError(t, err)
	require.Len(t, pair, 2)
	assert.Equal(t, int64(2), pair[0].Sequence)
	assert.Equal(t, model.RoleUser, pair[0].Role)
	assert.Equal(t, int64(3), pair[1].Sequence)
	assert.Equal(t, model.RoleAssistant, pair[1].Role)

	turns, err := store.GetTurns(ctx, conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "hi", turns[0].Content)
	assert.Empty(t, turns[0].CitedSources)
	assert.Equal(t, cited, turns[2].CitedSources)

	recent, err := store.GetTurns(ctx, conv.ID, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(2), recent[0].Sequence)
	assert.Equal(t, int64(3), recent[1].Sequence)

	got, err := store.Get(ctx, "u1", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.LastSequence)
}

func TestAppendRejectsUnknownRole(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()
	conv, err := store.Create(ctx, "u1", "x")
	require.NoError(t, err)

	_, err = store.AppendTurn(ctx, conv.ID, "system", "nope", nil)
	require.ErrorIs(t, err, appErr.ErrInvalid)

	_, err = store.AppendTurn(ctx, "missing", model.RoleUser, "hi", nil)
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestConcurrentAppendsAreGapFree(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()
	conv, err := store.Create(ctx, "u1", "busy")
	require.NoError(t, err)

	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.AppendExchange(ctx, conv.ID, "q", "a", nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	turns, err := store.GetTurns(ctx, conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, turns, writers*2)
	for i, turn := range turns {
		assert.Equal(t, int64(i+1), turn.Sequence)
		if i%2 == 0 {
			assert.Equal(t, model.RoleUser, turn.Role)
		} else {
			assert.Equal(t, model.RoleAssistant, turn.Role)
		}
	}
	assert.Equal(t, 0, store.locks.size())
}

// racingRepo lets another writer win the first conflicts CAS attempts.
type racingRepo struct {
	Repo
	mu        sync.Mutex
	conflicts int
	attempts  int
}

func (r *racingRepo) AppendTurns(ctx context.Context, convID string, expectedLast int64, turns []model.ConversationTurn) error {
	r.mu.Lock()
	r.attempts++
	steal := r.conflicts > 0
	if steal {
		r.conflicts--
	}
	r.mu.Unlock()
	if steal {
		if err := r.Repo.AppendTurns(ctx, convID, expectedLast, []model.ConversationTurn{{
			ConversationID: convID, Sequence: expectedLast + 1, Role: model.RoleUser, Content: "from elsewhere", Ctime: 1,
		}}); err != nil {
			return err
		}
	}
	return r.Repo.AppendTurns(ctx, convID, expectedLast, turns)
}

func TestAppendRetriesOnConflict(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()
	racer := &racingRepo{Repo: repo.NewConversationRepo(db), conflicts: 2}
	store := NewStore(racer)
	conv, err := store.Create(ctx, "u1", "x")
	require.NoError(t, err)

	turn, err := store.AppendTurn(ctx, conv.ID, model.RoleUser, "mine", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, racer.attempts)
	assert.Equal(t, int64(3), turn.Sequence)

	turns, err := store.GetTurns(ctx, conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "mine", turns[2].Content)
}

func TestAppendGivesUpAfterMaxRetries(t *testing.T) {
	db, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()
	racer := &racingRepo{Repo: repo.NewConversationRepo(db), conflicts: 100}
	store := NewStore(racer, WithMaxRetries(2))
	conv, err := store.Create(ctx, "u1", "x")
	require.NoError(t, err)

	_, err = store.AppendExchange(ctx, conv.ID, "q", "a", nil)
	require.ErrorIs(t, err, appErr.ErrConversationWriteConflict)
	assert.True(t, appErr.IsRetryable(err))
	assert.Equal(t, 2, racer.attempts)

	turns, err := store.GetTurns(ctx, conv.ID, 0)
	require.NoError(t, err)
	for _, turn := range turns {
		assert.Equal(t, "from elsewhere", turn.Content)
	}
}

func TestListConversations(t *testing.T) {
	now := int64(100)
	store, cleanup := newTestStore(t, WithClock(func() int64 { now++; return now }))
	defer cleanup()
	ctx := context.Background()
	older, err := store.Create(ctx, "u1", "older")
	require.NoError(t, err)
	newer, err := store.Create(ctx, "u1", "newer")
	require.NoError(t, err)
	_, err = store.Create(ctx, "u2", "someone else")
	require.NoError(t, err)

	_, err = store.AppendTurn(ctx, older.ID, model.RoleUser, "bump", nil)
	require.NoError(t, err)

	convs, err := store.List(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, older.ID, convs[0].ID)
	assert.Equal(t, newer.ID, convs[1].ID)
}

func TestTitle(t *testing.T) {
	assert.Equal(t, defaultTitle, Title("   "))
	assert.Equal(t, "short", Title("short"))
	long := strings.Repeat("word ", 30)
	got := Title(long)
	assert.LessOrEqual(t, len([]rune(got)), maxTitleRunes)
	assert.False(t, strings.HasSuffix(got, " "))
}
