package search

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultFuzzyFraction = 0.5
	minFuzzyPhraseRunes  = 4
	minFuzzyTermRunes    = 5
	maxFuzzyPhraseRunes  = 64
	maxFuzzyScanRunes    = 8000
	wholeFieldBonus      = 2.0
	prefixBonus          = 1.5
	positionDecayRunes   = 16.0
	maxScoredTerms       = 8
)

// Ranker scores candidates against a query. It holds no state between calls.
type Ranker struct {
	fuzzyFraction float64
}

func NewRanker() *Ranker {
	return &Ranker{fuzzyFraction: DefaultFuzzyFraction}
}

// Rank scores every candidate, drops zero scores and returns one sorted group per
// entity type present, in AllEntityTypes order.
func (r *Ranker) Rank(query string, candidates []SearchableRecord) []Group {
	hits := r.Score(query, candidates)
	byType := make(map[EntityType][]RankedHit)
	for _, hit := range hits {
		byType[hit.EntityType] = append(byType[hit.EntityType], hit)
	}
	groups := make([]Group, 0, len(byType))
	for _, t := range AllEntityTypes {
		items, ok := byType[t]
		if !ok {
			continue
		}
		SortHits(items)
		groups = append(groups, Group{EntityType: t, Hits: items})
	}
	return groups
}

// Score returns the nonzero hits in candidate order.
func (r *Ranker) Score(query string, candidates []SearchableRecord) []RankedHit {
	phrase := foldRunes(strings.TrimSpace(query))
	if len(phrase) == 0 {
		return []RankedHit{}
	}
	var terms [][]rune
	if strings.ContainsRune(string(phrase), ' ') {
		for _, t := range Terms(string(phrase)) {
			if len(terms) == maxScoredTerms {
				break
			}
			terms = append(terms, []rune(t))
		}
	}
	hits := make([]RankedHit, 0, len(candidates))
	for _, rec := range candidates {
		if !rec.Valid() {
			continue
		}
		hit, ok := r.scoreRecord(phrase, terms, rec)
		if ok {
			hits = append(hits, hit)
		}
	}
	return hits
}

func (r *Ranker) scoreRecord(phrase []rune, terms [][]rune, rec SearchableRecord) (RankedHit, bool) {
	hit := RankedHit{SearchableRecord: rec}
	spans := make(map[Span]float64)
	order := make([]Span, 0)
	add := func(span Span, score float64) {
		if score <= 0 {
			return
		}
		hit.Score += score
		key := Span{Field: span.Field, Start: span.Start, End: span.End}
		if prev, ok := spans[key]; !ok {
			order = append(order, key)
			spans[key] = score
		} else if score > prev {
			spans[key] = score
		}
	}
	for _, field := range rec.Fields {
		if field.Weight <= 0 || field.Text == "" {
			continue
		}
		text := newFoldedText(field.Text)
		if m, ok := r.match(phrase, text, minFuzzyPhraseRunes); ok {
			add(Span{Field: field.Name, Start: m.start, End: m.end}, r.matchScore(field.Weight, m, len(text.runes)))
			// terms only stand in for a phrase the field does not contain
			continue
		}
		for _, term := range terms {
			if m, ok := r.match(term, text, minFuzzyTermRunes); ok {
				score := r.matchScore(field.Weight, m, len(text.runes)) / float64(len(terms))
				add(Span{Field: field.Name, Start: m.start, End: m.end}, score)
			}
		}
	}
	if hit.Score <= 0 {
		return RankedHit{}, false
	}
	hit.MatchedSpans = make([]Span, 0, len(order))
	for _, key := range order {
		key.Score = spans[key]
		hit.MatchedSpans = append(hit.MatchedSpans, key)
	}
	return hit, true
}

type fieldMatch struct {
	start int
	end   int
	fuzzy bool
}

func (r *Ranker) matchScore(weight float64, m fieldMatch, fieldLen int) float64 {
	score := weight * positionBonus(m.start, m.end, fieldLen)
	if m.fuzzy {
		score *= r.fuzzyFraction
	}
	return score
}

// positionBonus is non-increasing in start: a whole-field match beats a prefix
// match, which beats any later match.
func positionBonus(start, end, fieldLen int) float64 {
	switch {
	case start == 0 && end == fieldLen:
		return wholeFieldBonus
	case start == 0:
		return prefixBonus
	default:
		return 1.0 / (1.0 + float64(start)/positionDecayRunes)
	}
}

func (r *Ranker) match(needle []rune, text *foldedText, minFuzzy int) (fieldMatch, bool) {
	if len(needle) == 0 || len(text.runes) == 0 {
		return fieldMatch{}, false
	}
	if start := text.index(needle); start >= 0 {
		return fieldMatch{start: start, end: start + len(needle)}, true
	}
	if len(needle) < minFuzzy || len(needle) > maxFuzzyPhraseRunes {
		return fieldMatch{}, false
	}
	maxDist := MaxEditDistance(len(needle))
	if !text.mayMatch(needle, maxDist) {
		return fieldMatch{}, false
	}
	hay := text.runes
	if len(hay) > maxFuzzyScanRunes {
		hay = hay[:maxFuzzyScanRunes]
	}
	dist, start, end := approximateMatch(needle, hay)
	if dist > maxDist || end <= start {
		return fieldMatch{}, false
	}
	return fieldMatch{start: start, end: end, fuzzy: true}, true
}

// MaxEditDistance is the typo budget for a query of n runes.
func MaxEditDistance(n int) int {
	d := n / 4
	if d < 1 {
		d = 1
	}
	return d
}

// approximateMatch finds the substring of text with the smallest edit distance to
// pattern (Sellers' algorithm). Ties prefer the earliest start, then the shortest span.
func approximateMatch(pattern, text []rune) (dist, start, end int) {
	m := len(text)
	prev := make([]int, m+1)
	cur := make([]int, m+1)
	prevStart := make([]int, m+1)
	curStart := make([]int, m+1)
	for j := 0; j <= m; j++ {
		prev[j] = 0
		prevStart[j] = j
	}
	for i := 1; i <= len(pattern); i++ {
		cur[0] = i
		curStart[0] = 0
		for j := 1; j <= m; j++ {
			cost := 1
			if pattern[i-1] == text[j-1] {
				cost = 0
			}
			best, bestStart := prev[j-1]+cost, prevStart[j-1]
			if v := prev[j] + 1; v < best || (v == best && prevStart[j] < bestStart) {
				best, bestStart = v, prevStart[j]
			}
			if v := cur[j-1] + 1; v < best || (v == best && curStart[j-1] < bestStart) {
				best, bestStart = v, curStart[j-1]
			}
			cur[j] = best
			curStart[j] = bestStart
		}
		prev, cur = cur, prev
		prevStart, curStart = curStart, prevStart
	}
	found := false
	for j := 1; j <= m; j++ {
		d, s := prev[j], prevStart[j]
		if !found || d < dist || (d == dist && s < start) {
			dist, start, end = d, s, j
			found = true
		}
	}
	if !found {
		return len(pattern), 0, 0
	}
	return dist, start, end
}

// SortHits orders by score desc, then updatedAt desc, then id for a stable result.
func SortHits(hits []RankedHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		return hitLess(hits[i], hits[j])
	})
}

func hitLess(a, b RankedHit) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.UpdatedAt != b.UpdatedAt {
		return a.UpdatedAt > b.UpdatedAt
	}
	if a.EntityType != b.EntityType {
		return entityOrder(a.EntityType) < entityOrder(b.EntityType)
	}
	return a.ID < b.ID
}

func entityOrder(t EntityType) int {
	for i, item := range AllEntityTypes {
		if item == t {
			return i
		}
	}
	return len(AllEntityTypes)
}

type bigram [2]rune

// foldedText is a field's text lower-cased rune by rune, so offsets stay aligned
// with the unfolded text.
type foldedText struct {
	runes   []rune
	str     string
	bigrams map[bigram]struct{}
}

func newFoldedText(s string) *foldedText {
	runes := foldRunes(s)
	return &foldedText{runes: runes, str: string(runes)}
}

func (t *foldedText) index(needle []rune) int {
	idx := strings.Index(t.str, string(needle))
	if idx < 0 {
		return -1
	}
	return utf8.RuneCountInString(t.str[:idx])
}

// mayMatch is a necessary condition for an approximate match within maxDist:
// each edit destroys at most two of the needle's bigrams.
func (t *foldedText) mayMatch(needle []rune, maxDist int) bool {
	need := len(needle) - 1 - 2*maxDist
	if need <= 0 {
		return true
	}
	if t.bigrams == nil {
		t.bigrams = make(map[bigram]struct{}, len(t.runes))
		for i := 1; i < len(t.runes) && i < maxFuzzyScanRunes; i++ {
			t.bigrams[bigram{t.runes[i-1], t.runes[i]}] = struct{}{}
		}
	}
	present := 0
	for i := 1; i < len(needle); i++ {
		if _, ok := t.bigrams[bigram{needle[i-1], needle[i]}]; ok {
			present++
			if present >= need {
				return true
			}
		}
	}
	return false
}

func foldRunes(s string) []rune {
	out := make([]rune, 0, utf8.RuneCountInString(s))
	for _, r := range s {
		out = append(out, unicode.ToLower(r))
	}
	return out
}
