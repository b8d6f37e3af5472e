package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/mdesk/internal/pkg/errors"
)

func TestNormalize(t *testing.T) {
	n := NewNormalizer(0)
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "trim and collapse", raw: "  project \t\n  plan  ", want: "project plan"},
		{name: "preserves case", raw: "Project Plan", want: "Project Plan"},
		{name: "strips markup delimiters", raw: "<script>alert(1)</script>", want: "scriptalert(1)/script"},
		{name: "strips control characters", raw: "a\x00b\x1bc", want: "abc"},
		{name: "delimiter between spaces collapses", raw: "a < b", want: "a b"},
		{name: "truncates to sixty runes", raw: strings.Repeat("é", 70), want: strings.Repeat("é", 60)},
		{name: "truncation drops trailing space", raw: strings.Repeat("a", 59) + " bcd", want: strings.Repeat("a", 59)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Normalize(tt.raw, false)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeEmpty(t *testing.T) {
	n := NewNormalizer(60)
	got, err := n.Normalize("  <> \x01 ", false)
	require.NoError(t, err)
	require.Equal(t, "", got)

	_, err = n.Normalize("  <> \x01 ", true)
	require.ErrorIs(t, err, appErr.ErrEmptyQuery)
}

func TestNormalizeIdempotent(t *testing.T) {
	n := NewNormalizer(60)
	inputs := []string{
		"",
		"   ",
		"hello   world",
		"<b>bold</b>\ttext\r\n",
		strings.Repeat("ab ", 40),
		strings.Repeat("x", 59) + "    y",
		"\xff\xfe broken utf8",
		"emoji 🎉 party > fun",
	}
	for _, in := range inputs {
		once, err := n.Normalize(in, false)
		require.NoError(t, err)
		twice, err := n.Normalize(once, false)
		require.NoError(t, err)
		assert.Equal(t, once, twice, "input %q", in)
	}
}

func TestTerms(t *testing.T) {
	assert.Equal(t, []string{"happened", "revenue"}, Terms("what happened to revenue?"))
	assert.Equal(t, []string{"capital", "france"}, Terms("What is the capital of France?"))
	assert.Equal(t, []string{"projct", "plan"}, Terms("projct plan plan"))
	assert.Empty(t, Terms("ai"))
}
