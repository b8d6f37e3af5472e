package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mdesk/internal/model"
	appErr "github.com/xxxsen/mdesk/internal/pkg/errors"
)

const (
	DefaultTopN         = 5
	DefaultHistoryTurns = 6
	DefaultExcerptChars = 300
	citedBoost          = 1.25
	ellipsis            = "..."
)

// SourceMarker names one grounding source. Its String form is what the model
// quotes back to cite it.
type SourceMarker struct {
	EntityType EntityType `json:"entity_type"`
	ID         string     `json:"id"`
	Title      string     `json:"title"`
}

func (m SourceMarker) String() string {
	return "[" + string(m.EntityType) + ":" + m.ID + "]"
}

func (m SourceMarker) Key() RecordKey {
	return RecordKey{EntityType: m.EntityType, ID: m.ID}
}

type ContextEntry struct {
	Marker  SourceMarker `json:"marker"`
	Excerpt string       `json:"excerpt"`
	Score   float64      `json:"score"`
}

// ContextWindow is everything an answer may be grounded on: the best excerpts
// and the recent dialogue, oldest turn first.
type ContextWindow struct {
	Question string                   `json:"question"`
	Entries  []ContextEntry           `json:"entries"`
	Turns    []model.ConversationTurn `json:"turns"`
	Partial  bool                     `json:"partial"`
}

func (w *ContextWindow) Lookup(t EntityType, id string) (ContextEntry, bool) {
	for _, e := range w.Entries {
		if e.Marker.EntityType == t && e.Marker.ID == id {
			return e, true
		}
	}
	return ContextEntry{}, false
}

func (w *ContextWindow) Grounded() bool {
	return len(w.Entries) > 0
}

// Collector is the fan-out step of the assembler.
type Collector interface {
	Collect(ctx context.Context, scope OwnerScope, q Query, types []EntityType) (*Candidates, error)
}

// TurnReader returns the latest turns of a conversation in chronological order.
type TurnReader interface {
	GetTurns(ctx context.Context, conversationID string, limit int) ([]model.ConversationTurn, error)
}

type AssemblerOption func(*Assembler)

func WithTopN(n int) AssemblerOption {
	return func(a *Assembler) {
		if n > 0 {
			a.topN = n
		}
	}
}

func WithHistoryTurns(n int) AssemblerOption {
	return func(a *Assembler) {
		if n > 0 {
			a.historyTurns = n
		}
	}
}

func WithExcerptChars(n int) AssemblerOption {
	return func(a *Assembler) {
		if n > 0 {
			a.excerptChars = n
		}
	}
}

type Assembler struct {
	normalizer   *Normalizer
	collector    Collector
	ranker       *Ranker
	turns        TurnReader
	topN         int
	historyTurns int
	excerptChars int
}

func NewAssembler(normalizer *Normalizer, collector Collector, ranker *Ranker, turns TurnReader, opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		normalizer:   normalizer,
		collector:    collector,
		ranker:       ranker,
		turns:        turns,
		topN:         DefaultTopN,
		historyTurns: DefaultHistoryTurns,
		excerptChars: DefaultExcerptChars,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Build assembles the grounding context for a question. When neither hits nor
// turns were found it returns the empty window together with ErrNoContext, so the
// caller can still attempt a degraded answer.
func (a *Assembler) Build(ctx context.Context, question, conversationID string, scope OwnerScope) (*ContextWindow, error) {
	q, err := a.normalizer.Normalize(question, true)
	if err != nil {
		return nil, err
	}
	window := &ContextWindow{
		Question: q,
		Entries:  make([]ContextEntry, 0, a.topN),
		Turns:    make([]model.ConversationTurn, 0),
	}
	if conversationID != "" && a.turns != nil {
		turns, err := a.turns.GetTurns(ctx, conversationID, a.historyTurns)
		if err != nil {
			return nil, fmt.Errorf("load conversation turns: %w", err)
		}
		window.Turns = turns
	}

	cands, err := a.collector.Collect(ctx, scope, Query{Phrase: q, Terms: Terms(q)}, AllEntityTypes)
	if err != nil {
		return nil, err
	}
	window.Partial = cands.Partial

	hits := a.ranker.Score(q, cands.Records)
	cited := citedKeys(window.Turns)
	if len(cited) > 0 {
		for i := range hits {
			if cited[hits[i].Key()] {
				hits[i].Score *= citedBoost
			}
		}
	}
	SortHits(hits)
	if len(hits) > a.topN {
		hits = hits[:a.topN]
	}
	for _, hit := range hits {
		window.Entries = append(window.Entries, ContextEntry{
			Marker:  SourceMarker{EntityType: hit.EntityType, ID: hit.ID, Title: hit.Title},
			Excerpt: Excerpt(hit, a.excerptChars),
			Score:   hit.Score,
		})
	}
	logutil.GetLogger(ctx).Debug("context assembled",
		zap.String("user_id", scope.UserID),
		zap.Int("candidates", len(cands.Records)),
		zap.Int("entries", len(window.Entries)),
		zap.Int("turns", len(window.Turns)),
		zap.Bool("partial", window.Partial))
	if len(window.Entries) == 0 && len(window.Turns) == 0 {
		return window, appErr.ErrNoContext
	}
	return window, nil
}

func citedKeys(turns []model.ConversationTurn) map[RecordKey]bool {
	out := make(map[RecordKey]bool)
	for _, turn := range turns {
		for _, src := range turn.CitedSources {
			out[RecordKey{EntityType: EntityType(src.EntityType), ID: src.ID}] = true
		}
	}
	return out
}

// Excerpt cuts at most size runes of the hit's text around its strongest span.
// A title-only match excerpts the start of the record's other text instead, since
// the title already travels in the marker.
func Excerpt(hit RankedHit, size int) string {
	if size <= 0 {
		size = DefaultExcerptChars
	}
	span, ok := hit.Strongest()
	if !ok {
		return ""
	}
	field, ok := hit.Field(span.Field)
	if !ok {
		return ""
	}
	if span.Field == FieldTitle {
		for _, f := range hit.Fields {
			if f.Name != FieldTitle && strings.TrimSpace(f.Text) != "" {
				return window([]rune(f.Text), 0, 0, size)
			}
		}
	}
	return window([]rune(field.Text), span.Start, span.End, size)
}

func window(text []rune, start, end, size int) string {
	if len(text) <= size {
		return strings.TrimSpace(string(text))
	}
	mid := (start + end) / 2
	from := mid - size/2
	if from < 0 {
		from = 0
	}
	if from > len(text)-size {
		from = len(text) - size
	}
	to := from + size
	out := strings.TrimSpace(string(text[from:to]))
	if from > 0 {
		out = ellipsis + out
	}
	if to < len(text) {
		out += ellipsis
	}
	return out
}
