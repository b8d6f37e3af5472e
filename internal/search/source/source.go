// Package source adapts the workspace repositories to search.Adapter.
//
// Every adapter pushes the caller scope and the query into its repository and
// unions the keyword matches with the most recently updated visible records, so
// the ranker can still find typo'd matches the LIKE predicate missed.
package source

import (
	"context"
	"strings"

	"github.com/xxxsen/mdesk/internal/search"
)

// matchTerms is the phrase followed by its content terms, lower-cased and deduplicated.
func matchTerms(q search.Query) []string {
	out := make([]string, 0, len(q.Terms)+1)
	seen := make(map[string]bool, len(q.Terms)+1)
	push := func(s string) {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	push(q.Phrase)
	for _, t := range q.Terms {
		push(t)
	}
	return out
}

func limitOf(q search.Query) uint {
	if q.Limit <= 0 {
		return search.DefaultCandidateLimit
	}
	return uint(q.Limit)
}

// gather runs the keyword lookup, then tops it up with recent records until limit.
func gather[T any](ctx context.Context, q search.Query,
	match func(ctx context.Context, terms []string, limit uint) ([]T, error),
	recent func(ctx context.Context, limit uint) ([]T, error),
	idOf func(T) string) ([]T, error) {
	limit := limitOf(q)
	terms := matchTerms(q)
	items := make([]T, 0)
	if len(terms) > 0 {
		found, err := match(ctx, terms, limit)
		if err != nil {
			return nil, err
		}
		items = append(items, found...)
	}
	if uint(len(items)) >= limit {
		return items[:limit], nil
	}
	latest, err := recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		seen[idOf(item)] = true
	}
	for _, item := range latest {
		if uint(len(items)) >= limit {
			break
		}
		if seen[idOf(item)] {
			continue
		}
		seen[idOf(item)] = true
		items = append(items, item)
	}
	return items, nil
}

func fields(pairs ...search.Field) []search.Field {
	out := make([]search.Field, 0, len(pairs))
	for _, f := range pairs {
		if strings.TrimSpace(f.Text) == "" {
			continue
		}
		out = append(out, f)
	}
	return out
}
