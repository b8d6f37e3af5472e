package ai

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mdesk/internal/model"
	appErr "github.com/xxxsen/mdesk/internal/pkg/errors"
	"github.com/xxxsen/mdesk/internal/search"
)

const (
	defaultMaxPromptChars = 12000
	DefaultRetryBackoff   = 200 * time.Millisecond
)

var markerPattern = regexp.MustCompile(`\[(note|document|workspace|member|chat):([A-Za-z0-9_-]+)\]`)

type SynthesizerConfig struct {
	Timeout        int
	Retries        int
	MaxPromptChars int
	RetryBackoff   time.Duration
}

// Answer is a synthesized reply. Degraded marks an answer produced without any
// grounding source.
type Answer struct {
	Text      string              `json:"text"`
	Citations []model.CitedSource `json:"citations"`
	Degraded  bool                `json:"degraded"`
}

type Synthesizer struct {
	gen IGenerator
	cfg SynthesizerConfig
}

func NewSynthesizer(gen IGenerator, cfg SynthesizerConfig) *Synthesizer {
	if cfg.MaxPromptChars <= 0 {
		cfg.MaxPromptChars = defaultMaxPromptChars
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryBackoff < 0 {
		cfg.RetryBackoff = 0
	}
	return &Synthesizer{gen: gen, cfg: cfg}
}

// Synthesize answers question from window. The completion service is tried
// 1+Retries times; when every attempt fails the error is ErrSynthesisUnavailable.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, window *search.ContextWindow) (*Answer, error) {
	if window == nil {
		window = &search.ContextWindow{Question: question}
	}
	if s.gen == nil {
		return nil, fmt.Errorf("generator not configured: %w", appErr.ErrSynthesisUnavailable)
	}
	prompt, kept := BuildPrompt(question, window, s.cfg.MaxPromptChars)
	shown := *window
	shown.Entries = kept

	var lastErr error
	for attempt := 0; attempt <= s.cfg.Retries; attempt++ {
		if attempt > 0 && s.cfg.RetryBackoff > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.cfg.RetryBackoff * time.Duration(attempt)):
			}
		}
		text, err := s.generate(ctx, prompt)
		if err == nil {
			return &Answer{
				Text:      text,
				Citations: ResolveCitations(text, &shown),
				Degraded:  !shown.Grounded(),
			}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		logutil.GetLogger(ctx).Warn("answer synthesis attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
	}
	logutil.GetLogger(ctx).Error("answer synthesis unavailable", zap.Error(lastErr))
	return nil, fmt.Errorf("%w: %v", appErr.ErrSynthesisUnavailable, lastErr)
}

func (s *Synthesizer) generate(ctx context.Context, prompt string) (string, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.Timeout)*time.Second)
		defer cancel()
	}
	resp, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", fmt.Errorf("empty ai response")
	}
	return text, nil
}

// ResolveCitations maps the markers quoted in text back to window entries, in
// order of first mention. Markers naming anything outside window are dropped.
func ResolveCitations(text string, window *search.ContextWindow) []model.CitedSource {
	out := make([]model.CitedSource, 0)
	if window == nil {
		return out
	}
	seen := make(map[search.RecordKey]bool)
	for _, m := range markerPattern.FindAllStringSubmatch(text, -1) {
		key := search.RecordKey{EntityType: search.EntityType(m[1]), ID: m[2]}
		if seen[key] {
			continue
		}
		entry, ok := window.Lookup(key.EntityType, key.ID)
		if !ok {
			continue
		}
		seen[key] = true
		out = append(out, model.CitedSource{
			EntityType: string(entry.Marker.EntityType),
			ID:         entry.Marker.ID,
			Title:      entry.Marker.Title,
			Excerpt:    entry.Excerpt,
		})
	}
	return out
}

// BuildPrompt renders the question, sources and dialogue. When the prompt would
// exceed maxChars the lowest ranked sources go first, then the oldest turns.
// The sources that made it into the prompt are returned alongside it.
func BuildPrompt(question string, window *search.ContextWindow, maxChars int) (string, []search.ContextEntry) {
	entries := window.Entries
	turns := window.Turns
	prompt := renderPrompt(question, entries, turns)
	for maxChars > 0 && len([]rune(prompt)) > maxChars {
		switch {
		case len(entries) > 0:
			entries = entries[:len(entries)-1]
		case len(turns) > 0:
			turns = turns[1:]
		default:
			return prompt, entries
		}
		prompt = renderPrompt(question, entries, turns)
	}
	return prompt, entries
}

func renderPrompt(question string, entries []search.ContextEntry, turns []model.ConversationTurn) string {
	var sources strings.Builder
	if len(entries) == 0 {
		sources.WriteString("(none)\n")
	}
	for _, e := range entries {
		fmt.Fprintf(&sources, "%s %s\n%s\n\n", e.Marker.String(), e.Marker.Title, e.Excerpt)
	}
	var dialogue strings.Builder
	if len(turns) == 0 {
		dialogue.WriteString("(none)\n")
	}
	for _, t := range turns {
		fmt.Fprintf(&dialogue, "%s: %s\n", t.Role, t.Content)
	}
	return fmt.Sprintf(`You are a workspace assistant.
Answer the QUESTION using the SOURCES and the CONVERSATION below.
- When you use a source, cite it by writing its marker exactly as shown, e.g. [note:123].
- Only cite markers listed under SOURCES.
- If the sources do not answer the question, say so and answer from general knowledge without citations.
- Use the same language as the question.

SOURCES:
%s
CONVERSATION:
%s
QUESTION:
%s`, sources.String(), dialogue.String(), strings.TrimSpace(question))
}
