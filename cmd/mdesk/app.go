package main

import (
	"fmt"
	"time"

	"github.com/xxxsen/mdesk/internal/ai"
	"github.com/xxxsen/mdesk/internal/config"
	"github.com/xxxsen/mdesk/internal/conversation"
	"github.com/xxxsen/mdesk/internal/extract"
	"github.com/xxxsen/mdesk/internal/job"
	"github.com/xxxsen/mdesk/internal/repo"
	"github.com/xxxsen/mdesk/internal/schedule"
	"github.com/xxxsen/mdesk/internal/search"
	"github.com/xxxsen/mdesk/internal/search/source"
	"github.com/xxxsen/mdesk/internal/service"
)

type app struct {
	db        *repo.DB
	scopes    *service.ScopeResolver
	search    *service.SearchService
	assistant *service.AssistantService
	extract   *service.ExtractService
	scheduler *schedule.CronScheduler
}

func buildApp(cfg *config.Config) (*app, error) {
	db, err := repo.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := repo.ApplyMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	noteRepo := repo.NewNoteRepo(db)
	docRepo := repo.NewDocumentRepo(db)
	workspaceRepo := repo.NewWorkspaceRepo(db)
	memberRepo := repo.NewMemberRepo(db)
	chatRepo := repo.NewChatRepo(db)
	convRepo := repo.NewConversationRepo(db)

	sc := cfg.Search
	aggregator := search.NewAggregator(
		time.Duration(sc.AdapterTimeoutMS)*time.Millisecond,
		sc.CandidateLimit,
		source.NewNoteAdapter(noteRepo),
		source.NewDocumentAdapter(docRepo),
		source.NewWorkspaceAdapter(workspaceRepo),
		source.NewMemberAdapter(memberRepo),
		source.NewChatAdapter(chatRepo),
	)
	ranker := search.NewRanker()
	store := conversation.NewStore(convRepo)
	assembler := search.NewAssembler(
		// questions get ai.max_input_chars, max_query_chars only bounds search-as-you-type
		search.NewNormalizer(cfg.AI.MaxInputChars),
		aggregator,
		ranker,
		store,
		search.WithTopN(sc.TopN),
		search.WithHistoryTurns(sc.HistoryTurns),
		search.WithExcerptChars(sc.ExcerptChars),
	)

	gen, err := ai.NewGeneratorFromConfig(cfg.AI.Providers)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init ai providers: %w", err)
	}
	synthesizer := ai.NewSynthesizer(gen, ai.SynthesizerConfig{
		Timeout:        cfg.AI.Timeout,
		Retries:        cfg.AI.Retries,
		MaxPromptChars: sc.MaxPromptChars,
		RetryBackoff:   ai.DefaultRetryBackoff,
	})

	extractor := extract.WrapLruCache(
		extract.NewMarkdownExtractor(),
		cfg.Extract.CacheSize,
		time.Duration(cfg.Extract.CacheTTLMinutes)*time.Minute,
	)
	extractService := service.NewExtractService(docRepo, extractor)
	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewExtractJob(extractService, cfg.Extract.Batch), cfg.Extract.Cron); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schedule extract job: %w", err)
	}

	return &app{
		db:        db,
		scopes:    service.NewScopeResolver(memberRepo),
		search:    service.NewSearchService(search.NewNormalizer(sc.MaxQueryChars), aggregator, ranker),
		assistant: service.NewAssistantService(assembler, synthesizer, store),
		extract:   extractService,
		scheduler: scheduler,
	}, nil
}

func (a *app) Close() error {
	a.scheduler.Stop()
	return a.db.Close()
}
