package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mdesk/internal/ai"
	"github.com/xxxsen/mdesk/internal/conversation"
	"github.com/xxxsen/mdesk/internal/extract"
	"github.com/xxxsen/mdesk/internal/model"
	appErr "github.com/xxxsen/mdesk/internal/pkg/errors"
	"github.com/xxxsen/mdesk/internal/repo"
	"github.com/xxxsen/mdesk/internal/search"
	"github.com/xxxsen/mdesk/internal/search/source"
	"github.com/xxxsen/mdesk/internal/testutil"
)

type scriptedGenerator struct {
	mu      sync.Mutex
	reply   func(prompt string) (string, error)
	prompts []string
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	return g.reply(prompt)
}

type slowAdapter struct {
	entityType search.EntityType
}

func (a *slowAdapter) EntityType() search.EntityType { return a.entityType }

func (a *slowAdapter) Find(ctx context.Context, _ search.OwnerScope, _ search.Query) ([]search.SearchableRecord, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type env struct {
	scope     search.OwnerScope
	resolver  *ScopeResolver
	search    *SearchService
	assistant *AssistantService
	store     *conversation.Store
	docs      *repo.DocumentRepo
	gen       *scriptedGenerator
}

func newEnv(t *testing.T, overrides ...search.Adapter) *env {
	t.Helper()
	db, cleanup := testutil.OpenTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	notes := repo.NewNoteRepo(db)
	docs := repo.NewDocumentRepo(db)
	workspaces := repo.NewWorkspaceRepo(db)
	members := repo.NewMemberRepo(db)
	chats := repo.NewChatRepo(db)
	convs := repo.NewConversationRepo(db)

	require.NoError(t, workspaces.Create(ctx, &model.Workspace{ID: "w1", OwnerID: "u2", Name: "AI research", Description: "models", Ctime: 1, Mtime: 1}))
	require.NoError(t, members.Create(ctx, &model.Member{ID: "m1", WorkspaceID: "w1", UserID: "u1", Name: "Ann Lee", Email: "ann@example.com", Role: "member", Ctime: 1, Mtime: 1}))
	require.NoError(t, members.Create(ctx, &model.Member{ID: "m2", WorkspaceID: "w1", UserID: "u2", Name: "Bob Stone", Email: "bob@example.com", Role: "owner", Ctime: 1, Mtime: 1}))
	require.NoError(t, notes.Create(ctx, &model.Note{ID: "q3", UserID: "u1", Title: "Q3 Report", Content: "Quarterly revenue increased 12%", Ctime: 2, Mtime: 2}))
	require.NoError(t, notes.Create(ctx, &model.Note{ID: "road", UserID: "u1", Title: "AI roadmap", Content: "ship the ai assistant", Ctime: 3, Mtime: 3}))
	require.NoError(t, notes.Create(ctx, &model.Note{ID: "plan", UserID: "u1", Title: "Project Plan", Content: "milestones", Ctime: 4, Mtime: 4}))
	require.NoError(t, notes.Create(ctx, &model.Note{ID: "secret", UserID: "u3", Title: "Revenue secrets", Content: "revenue", Ctime: 5, Mtime: 5}))
	require.NoError(t, docs.Create(ctx, &model.Document{ID: "d1", UserID: "u1", Title: "AI paper", Content: "# AI paper", ExtractedText: "AI paper", Ctime: 6, Mtime: 6}))
	require.NoError(t, chats.CreateThread(ctx, &model.ChatThread{ID: "t1", WorkspaceID: "w1", OwnerID: "u2", Title: "ai sync", Participants: "Ann, Bob", Ctime: 7, Mtime: 7}))
	require.NoError(t, chats.AddMessage(ctx, &model.ChatMessage{ID: "c1", ThreadID: "t1", SenderID: "u2", SenderName: "Bob", Content: "ai planning tomorrow", Ctime: 8}))

	adapters := []search.Adapter{
		source.NewNoteAdapter(notes),
		source.NewDocumentAdapter(docs),
		source.NewWorkspaceAdapter(workspaces),
		source.NewMemberAdapter(members),
		source.NewChatAdapter(chats),
	}
	adapters = append(adapters, overrides...)
	agg := search.NewAggregator(200*time.Millisecond, 200, adapters...)
	ranker := search.NewRanker()
	store := conversation.NewStore(convs)
	gen := &scriptedGenerator{reply: func(string) (string, error) { return "no idea", nil }}
	assembler := search.NewAssembler(search.NewNormalizer(2000), agg, ranker, store)

	resolver := NewScopeResolver(members)
	scope, err := resolver.Resolve(ctx, "u1")
	require.NoError(t, err)
	return &env{
		scope:     scope,
		resolver:  resolver,
		search:    NewSearchService(search.NewNormalizer(60), agg, ranker),
		assistant: NewAssistantService(assembler, ai.NewSynthesizer(gen, ai.SynthesizerConfig{Retries: 1}), store),
		store:     store,
		docs:      docs,
		gen:       gen,
	}
}

func groupTypes(res *search.Result) []search.EntityType {
	out := make([]search.EntityType, 0, len(res.Groups))
	for _, g := range res.Groups {
		out = append(out, g.EntityType)
	}
	return out
}

func TestScopeResolver(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, search.OwnerScope{UserID: "u1", WorkspaceIDs: []string{"w1"}}, e.scope)

	scope, err := e.resolver.Resolve(context.Background(), "loner")
	require.NoError(t, err)
	assert.Empty(t, scope.WorkspaceIDs)

	_, err = e.resolver.Resolve(context.Background(), " ")
	require.ErrorIs(t, err, appErr.ErrUnauthorized)
}

func TestSearchTypoTolerance(t *testing.T) {
	e := newEnv(t)
	res, err := e.search.Search(context.Background(), e.scope, "projct plan", []search.EntityType{search.EntityNote}, 0)
	require.NoError(t, err)
	group, ok := res.Group(search.EntityNote)
	require.True(t, ok)
	require.NotEmpty(t, group.Hits)
	assert.Equal(t, "plan", group.Hits[0].ID)
	assert.Greater(t, group.Hits[0].Score, 0.0)
	assert.NotEmpty(t, group.Hits[0].MatchedSpans)
}

func TestSearchRestrictsEntityTypes(t *testing.T) {
	e := newEnv(t)
	res, err := e.search.Search(context.Background(), e.scope, "ai", []search.EntityType{search.EntityNote, search.EntityWorkspace}, 0)
	require.NoError(t, err)
	assert.Equal(t, []search.EntityType{search.EntityNote, search.EntityWorkspace}, groupTypes(res))

	notes, _ := res.Group(search.EntityNote)
	require.Len(t, notes.Hits, 1)
	assert.Equal(t, "road", notes.Hits[0].ID)
	workspaces, _ := res.Group(search.EntityWorkspace)
	require.Len(t, workspaces.Hits, 1)
	assert.Equal(t, "w1", workspaces.Hits[0].ID)
	assert.False(t, res.Partial)
}

func TestSearchAllTypes(t *testing.T) {
	e := newEnv(t)
	res, err := e.search.Search(context.Background(), e.scope, "ai", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, search.AllEntityTypes, groupTypes(res))
	for _, g := range res.Groups {
		if g.EntityType == search.EntityMember {
			assert.Empty(t, g.Hits)
			continue
		}
		assert.NotEmpty(t, g.Hits, g.EntityType)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	e := newEnv(t)
	res, err := e.search.Search(context.Background(), e.scope, "  ", nil, 0)
	require.NoError(t, err)
	require.Len(t, res.Groups, len(search.AllEntityTypes))
	for _, g := range res.Groups {
		assert.Empty(t, g.Hits)
	}
	assert.False(t, res.Partial)
}

func TestSearchPartialAdapterFailure(t *testing.T) {
	e := newEnv(t, &slowAdapter{entityType: search.EntityDocument})
	res, err := e.search.Search(context.Background(), e.scope, "ai", nil, 0)
	require.NoError(t, err)
	assert.True(t, res.Partial)
	assert.Equal(t, []search.EntityType{search.EntityDocument}, res.FailedSources)
	docs, ok := res.Group(search.EntityDocument)
	require.True(t, ok)
	assert.Empty(t, docs.Hits)
	notes, _ := res.Group(search.EntityNote)
	assert.NotEmpty(t, notes.Hits)
	chats, _ := res.Group(search.EntityChat)
	assert.NotEmpty(t, chats.Hits)
}

func TestSearchNeverLeaksOtherUsersRecords(t *testing.T) {
	e := newEnv(t)
	for _, q := range []string{"revenue", "secrets", "ai", "bob", "plan"} {
		res, err := e.search.Search(context.Background(), e.scope, q, nil, 0)
		require.NoError(t, err)
		for _, g := range res.Groups {
			for _, hit := range g.Hits {
				assert.True(t, e.scope.Reaches(hit.Owner), "%s leaked %s", q, hit.ID)
				assert.NotEqual(t, "secret", hit.ID)
			}
		}
	}
}

func TestSearchLimitsGroupSize(t *testing.T) {
	e := newEnv(t)
	res, err := e.search.Search(context.Background(), e.scope, "ai", []search.EntityType{search.EntityNote, search.EntityChat}, 1)
	require.NoError(t, err)
	for _, g := range res.Groups {
		assert.LessOrEqual(t, len(g.Hits), 1)
	}
}

func TestAskGrounded(t *testing.T) {
	e := newEnv(t)
	e.gen.reply = func(prompt string) (string, error) {
		if !strings.Contains(prompt, "[note:q3]") {
			return "", errors.New("missing source")
		}
		return "Revenue grew 12% [note:q3]. See also [note:secret].", nil
	}
	ctx := context.Background()

	res, err := e.assistant.Ask(ctx, e.scope, AskRequest{Question: "what happened to revenue?"})
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	require.Len(t, res.Citations, 1)
	assert.Equal(t, "q3", res.Citations[0].ID)
	assert.Equal(t, "note", res.Citations[0].EntityType)
	assert.Equal(t, "Q3 Report", res.Citations[0].Title)
	require.NotEmpty(t, res.ConversationID)

	turns, err := e.assistant.ListConversationTurns(ctx, e.scope, res.ConversationID, 0)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, model.RoleUser, turns[0].Role)
	assert.Equal(t, "what happened to revenue?", turns[0].Content)
	assert.Equal(t, model.RoleAssistant, turns[1].Role)
	assert.Equal(t, res.Citations, turns[1].CitedSources)

	convs, err := e.assistant.ListConversations(ctx, e.scope, 10)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "what happened to revenue?", convs[0].Title)
}

func TestAskUngrounded(t *testing.T) {
	e := newEnv(t)
	e.gen.reply = func(string) (string, error) { return "Paris. [note:q3]", nil }

	res, err := e.assistant.Ask(context.Background(), e.scope, AskRequest{Question: "what is the capital of France?"})
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Empty(t, res.Citations)
	assert.Equal(t, "Paris. [note:q3]", res.Answer)
	assert.Contains(t, e.gen.prompts[0], "SOURCES:\n(none)")
}

func TestAskContinuesConversation(t *testing.T) {
	e := newEnv(t)
	e.gen.reply = func(string) (string, error) { return "noted [note:q3]", nil }
	ctx := context.Background()

	first, err := e.assistant.Ask(ctx, e.scope, AskRequest{Question: "what happened to revenue?"})
	require.NoError(t, err)
	second, err := e.assistant.Ask(ctx, e.scope, AskRequest{Question: "why did revenue grow?", ConversationID: first.ConversationID})
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)
	require.Len(t, second.Citations, 1)
	assert.Contains(t, e.gen.prompts[1], "user: what happened to revenue?")

	turns, err := e.assistant.ListConversationTurns(ctx, e.scope, first.ConversationID, 0)
	require.NoError(t, err)
	require.Len(t, turns, 4)
	for i, turn := range turns {
		assert.Equal(t, int64(i+1), turn.Sequence)
	}
}

func TestAskSynthesisFailureLeavesNoTrace(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.gen.reply = func(string) (string, error) { return "ok", nil }
	first, err := e.assistant.Ask(ctx, e.scope, AskRequest{Question: "what happened to revenue?"})
	require.NoError(t, err)

	e.gen.reply = func(string) (string, error) { return "", errors.New("503") }
	_, err = e.assistant.Ask(ctx, e.scope, AskRequest{Question: "and costs?", ConversationID: first.ConversationID})
	require.ErrorIs(t, err, appErr.ErrSynthesisUnavailable)
	_, err = e.assistant.Ask(ctx, e.scope, AskRequest{Question: "new thread"})
	require.ErrorIs(t, err, appErr.ErrSynthesisUnavailable)

	turns, err := e.assistant.ListConversationTurns(ctx, e.scope, first.ConversationID, 0)
	require.NoError(t, err)
	assert.Len(t, turns, 2)
	convs, err := e.assistant.ListConversations(ctx, e.scope, 10)
	require.NoError(t, err)
	assert.Len(t, convs, 1)
}

func TestAskRejectsForeignConversation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	conv, err := e.store.Create(ctx, "u2", "bob's")
	require.NoError(t, err)

	_, err = e.assistant.Ask(ctx, e.scope, AskRequest{Question: "revenue?", ConversationID: conv.ID})
	require.ErrorIs(t, err, appErr.ErrNotFound)
	_, err = e.assistant.ListConversationTurns(ctx, e.scope, conv.ID, 10)
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestAskEmptyQuestion(t *testing.T) {
	e := newEnv(t)
	_, err := e.assistant.Ask(context.Background(), e.scope, AskRequest{Question: " <> "})
	require.ErrorIs(t, err, appErr.ErrEmptyQuery)
}

func TestProcessPendingExtraction(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.docs.Create(ctx, &model.Document{ID: "d2", UserID: "u1", Title: "Trip", Content: "# Budget\n\nthe **travel** budget", Ctime: 9, Mtime: 9}))
	require.NoError(t, e.docs.Create(ctx, &model.Document{ID: "d3", UserID: "u1", Title: "Raw", Content: "<div>x</div>", Ctime: 10, Mtime: 10}))

	svc := NewExtractService(e.docs, extract.WrapLruCache(extract.NewMarkdownExtractor(), 16, time.Minute))
	n, err := svc.ProcessPendingExtraction(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = svc.ProcessPendingExtraction(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	res, err := e.search.Search(ctx, e.scope, "travel", []search.EntityType{search.EntityDocument}, 0)
	require.NoError(t, err)
	docs, _ := res.Group(search.EntityDocument)
	require.NotEmpty(t, docs.Hits)
	assert.Equal(t, "d2", docs.Hits[0].ID)
}
