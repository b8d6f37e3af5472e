package search

import (
	"strings"
	"unicode"

	appErr "github.com/xxxsen/mdesk/internal/pkg/errors"
)

const DefaultMaxQueryChars = 60

type Normalizer struct {
	maxChars int
}

func NewNormalizer(maxChars int) *Normalizer {
	if maxChars <= 0 {
		maxChars = DefaultMaxQueryChars
	}
	return &Normalizer{maxChars: maxChars}
}

// Normalize turns raw user input into plain single-spaced text of at most maxChars runes.
// Case is preserved. An empty result is ErrEmptyQuery only when required is set.
func (n *Normalizer) Normalize(raw string, required bool) (string, error) {
	var sb strings.Builder
	sb.Grow(len(raw))
	for _, r := range raw {
		switch {
		case unicode.IsSpace(r):
			sb.WriteRune(' ')
		case unicode.IsControl(r), r == '<', r == '>':
		default:
			sb.WriteRune(r)
		}
	}
	clean := strings.Join(strings.Fields(sb.String()), " ")
	if runes := []rune(clean); len(runes) > n.maxChars {
		clean = strings.TrimSpace(string(runes[:n.maxChars]))
	}
	if clean == "" && required {
		return "", appErr.ErrEmptyQuery
	}
	return clean, nil
}

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "about": true, "as": true, "at": true,
	"be": true, "been": true, "but": true, "by": true, "can": true, "could": true,
	"did": true, "do": true, "does": true, "for": true, "from": true, "had": true,
	"has": true, "have": true, "how": true, "i": true, "in": true, "is": true, "it": true,
	"its": true, "me": true, "my": true, "of": true, "on": true, "or": true, "our": true,
	"please": true, "should": true, "tell": true, "that": true, "the": true, "their": true,
	"them": true, "there": true, "this": true, "to": true, "was": true, "we": true,
	"were": true, "what": true, "when": true, "where": true, "which": true, "who": true,
	"whom": true, "why": true, "will": true, "with": true, "would": true, "you": true, "your": true,
}

const minTermRunes = 3

// Terms splits a normalized query into lower-cased content terms: punctuation
// separates terms, stop words and very short terms are dropped, order is kept.
func Terms(query string) []string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(words))
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		if len([]rune(w)) < minTermRunes || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}
