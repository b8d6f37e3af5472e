package search

import (
	"context"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	appErr "github.com/xxxsen/mdesk/internal/pkg/errors"
)

const (
	DefaultAdapterTimeout = 300 * time.Millisecond
	DefaultCandidateLimit = 200
)

// Candidates is the merged, deduplicated adapter output for one query.
type Candidates struct {
	Records       []SearchableRecord
	Partial       bool
	FailedSources []EntityType
}

// Aggregator fans a query out to one adapter per entity type.
type Aggregator struct {
	adapters       map[EntityType]Adapter
	timeout        time.Duration
	candidateLimit int
}

func NewAggregator(timeout time.Duration, candidateLimit int, adapters ...Adapter) *Aggregator {
	if timeout <= 0 {
		timeout = DefaultAdapterTimeout
	}
	if candidateLimit <= 0 {
		candidateLimit = DefaultCandidateLimit
	}
	a := &Aggregator{
		adapters:       make(map[EntityType]Adapter, len(adapters)),
		timeout:        timeout,
		candidateLimit: candidateLimit,
	}
	for _, ad := range adapters {
		a.adapters[ad.EntityType()] = ad
	}
	return a
}

type adapterResult struct {
	records []SearchableRecord
	err     error
}

// Collect queries the adapters for the requested types (all when empty) concurrently.
// A failing or slow adapter marks the result partial; only cancellation of ctx itself
// fails the whole call.
func (a *Aggregator) Collect(ctx context.Context, scope OwnerScope, q Query, types []EntityType) (*Candidates, error) {
	if len(types) == 0 {
		types = AllEntityTypes
	}
	if q.Limit <= 0 || q.Limit > a.candidateLimit {
		q.Limit = a.candidateLimit
	}
	results := make([]adapterResult, len(types))
	var g errgroup.Group
	for i, t := range types {
		adapter, ok := a.adapters[t]
		if !ok {
			results[i] = adapterResult{err: fmt.Errorf("%w: no adapter for %s", appErr.ErrAdapterUnavailable, t)}
			continue
		}
		g.Go(func() error {
			results[i] = a.find(ctx, adapter, scope, q)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &Candidates{Records: make([]SearchableRecord, 0)}
	seen := make(map[RecordKey]bool)
	for i, t := range types {
		res := results[i]
		if res.err != nil {
			logutil.GetLogger(ctx).Warn("record source failed",
				zap.String("entity_type", string(t)), zap.Error(res.err))
			out.Partial = true
			out.FailedSources = append(out.FailedSources, t)
			continue
		}
		for _, rec := range res.records {
			rec.EntityType = t
			if !scope.Reaches(rec.Owner) {
				logutil.GetLogger(ctx).Warn("drop record outside caller scope",
					zap.String("entity_type", string(t)), zap.String("id", rec.ID))
				continue
			}
			key := rec.Key()
			if seen[key] {
				continue
			}
			seen[key] = true
			out.Records = append(out.Records, rec)
		}
	}
	return out, nil
}

// find bounds one adapter call by the adapter timeout, even when the adapter ignores
// its context.
func (a *Aggregator) find(ctx context.Context, adapter Adapter, scope OwnerScope, q Query) adapterResult {
	actx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	done := make(chan adapterResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- adapterResult{err: fmt.Errorf("%w: panic: %v", appErr.ErrAdapterUnavailable, r)}
			}
		}()
		records, err := adapter.Find(actx, scope, q)
		if err != nil {
			err = fmt.Errorf("%w: %w", appErr.ErrAdapterUnavailable, err)
		}
		done <- adapterResult{records: records, err: err}
	}()
	select {
	case res := <-done:
		return res
	case <-actx.Done():
		return adapterResult{err: fmt.Errorf("%w: %w", appErr.ErrAdapterUnavailable, actx.Err())}
	}
}
