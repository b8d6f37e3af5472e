package service

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mdesk/internal/search"
)

const defaultGroupLimit = 20

type SearchService struct {
	normalizer *search.Normalizer
	collector  search.Collector
	ranker     *search.Ranker
	groupLimit int
}

func NewSearchService(normalizer *search.Normalizer, collector search.Collector, ranker *search.Ranker) *SearchService {
	return &SearchService{
		normalizer: normalizer,
		collector:  collector,
		ranker:     ranker,
		groupLimit: defaultGroupLimit,
	}
}

// Search returns one group per requested entity type (all types when none are
// given), each sorted by relevance. An empty query yields empty groups. A failing
// source only empties its group and marks the result partial.
func (s *SearchService) Search(ctx context.Context, scope search.OwnerScope, query string, types []search.EntityType, limit int) (*search.Result, error) {
	if len(types) == 0 {
		types = search.AllEntityTypes
	}
	if limit <= 0 || limit > s.groupLimit {
		limit = s.groupLimit
	}
	result := &search.Result{
		Groups:        emptyGroups(types),
		FailedSources: []search.EntityType{},
	}
	q, err := s.normalizer.Normalize(query, false)
	if err != nil {
		return nil, err
	}
	if q == "" {
		return result, nil
	}
	start := time.Now()
	cands, err := s.collector.Collect(ctx, scope, search.Query{Phrase: q, Terms: search.Terms(q)}, types)
	if err != nil {
		return nil, err
	}
	result.Partial = cands.Partial
	if cands.Partial {
		result.FailedSources = cands.FailedSources
	}
	for _, g := range s.ranker.Rank(q, cands.Records) {
		for i := range result.Groups {
			if result.Groups[i].EntityType != g.EntityType {
				continue
			}
			hits := g.Hits
			if len(hits) > limit {
				hits = hits[:limit]
			}
			result.Groups[i].Hits = hits
		}
	}
	logutil.GetLogger(ctx).Debug("search finished",
		zap.String("user_id", scope.UserID),
		zap.Int("candidates", len(cands.Records)),
		zap.Bool("partial", result.Partial),
		zap.Duration("duration", time.Since(start)))
	return result, nil
}

func emptyGroups(types []search.EntityType) []search.Group {
	groups := make([]search.Group, 0, len(types))
	for _, t := range types {
		groups = append(groups, search.Group{EntityType: t, Hits: []search.RankedHit{}})
	}
	return groups
}
