package search

import (
	"context"
	"fmt"
	"strings"
)

type EntityType string

const (
	EntityNote      EntityType = "note"
	EntityDocument  EntityType = "document"
	EntityWorkspace EntityType = "workspace"
	EntityMember    EntityType = "member"
	EntityChat      EntityType = "chat"
)

// AllEntityTypes is the default fan-out order; groups are reported in this order.
var AllEntityTypes = []EntityType{EntityNote, EntityDocument, EntityWorkspace, EntityMember, EntityChat}

func (t EntityType) Valid() bool {
	switch t {
	case EntityNote, EntityDocument, EntityWorkspace, EntityMember, EntityChat:
		return true
	}
	return false
}

// ParseEntityTypes parses a comma separated list. An empty input means all types.
func ParseEntityTypes(raw string) ([]EntityType, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	out := make([]EntityType, 0, len(AllEntityTypes))
	seen := make(map[EntityType]bool)
	for _, part := range strings.Split(raw, ",") {
		t := EntityType(strings.ToLower(strings.TrimSpace(part)))
		if t == "" {
			continue
		}
		if !t.Valid() {
			return nil, fmt.Errorf("unknown entity type: %s", part)
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out, nil
}

// OwnerScope bounds what a caller may see.
type OwnerScope struct {
	UserID       string
	WorkspaceIDs []string
}

func (s OwnerScope) HasWorkspace(id string) bool {
	if id == "" {
		return false
	}
	for _, ws := range s.WorkspaceIDs {
		if ws == id {
			return true
		}
	}
	return false
}

// Reaches reports whether a record with the given visibility is visible in this scope.
func (s OwnerScope) Reaches(v Visibility) bool {
	if v.UserID != "" && v.UserID == s.UserID {
		return true
	}
	return s.HasWorkspace(v.WorkspaceID)
}

// Visibility identifies who may see a record: its owning user and/or its workspace.
type Visibility struct {
	UserID      string `json:"user_id,omitempty"`
	WorkspaceID string `json:"workspace_id,omitempty"`
}

const (
	FieldTitle        = "title"
	FieldBody         = "body"
	FieldTags         = "tags"
	FieldParticipants = "participants"

	WeightTitle        = 3.0
	WeightBody         = 1.0
	WeightTags         = 2.0
	WeightParticipants = 2.0
)

type Field struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Text   string  `json:"text"`
}

// SearchableRecord is the entity-agnostic projection every adapter produces.
type SearchableRecord struct {
	ID         string     `json:"id"`
	EntityType EntityType `json:"entity_type"`
	Owner      Visibility `json:"owner"`
	Title      string     `json:"title"`
	Fields     []Field    `json:"-"`
	UpdatedAt  int64      `json:"updated_at"`
}

// Valid reports whether the record has at least one field with text.
func (r SearchableRecord) Valid() bool {
	for _, f := range r.Fields {
		if strings.TrimSpace(f.Text) != "" {
			return true
		}
	}
	return false
}

func (r SearchableRecord) Key() RecordKey {
	return RecordKey{EntityType: r.EntityType, ID: r.ID}
}

func (r SearchableRecord) Field(name string) (Field, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

type RecordKey struct {
	EntityType EntityType
	ID         string
}

func (k RecordKey) String() string {
	return string(k.EntityType) + ":" + k.ID
}

// Span is a matched range in rune offsets of a field's text, end exclusive.
type Span struct {
	Field string  `json:"field"`
	Start int     `json:"start"`
	End   int     `json:"end"`
	Score float64 `json:"-"`
}

type RankedHit struct {
	SearchableRecord
	Score        float64 `json:"score"`
	MatchedSpans []Span  `json:"matched_spans"`
}

// Strongest returns the span that contributed the highest score.
func (h RankedHit) Strongest() (Span, bool) {
	if len(h.MatchedSpans) == 0 {
		return Span{}, false
	}
	best := h.MatchedSpans[0]
	for _, span := range h.MatchedSpans[1:] {
		if span.Score > best.Score {
			best = span
		}
	}
	return best, true
}

type Group struct {
	EntityType EntityType  `json:"entity_type"`
	Hits       []RankedHit `json:"hits"`
}

// Result is the grouped output of a search; Partial marks missing adapter contributions.
type Result struct {
	Groups        []Group      `json:"groups"`
	Partial       bool         `json:"partial"`
	FailedSources []EntityType `json:"failed_sources"`
}

func (r *Result) Group(t EntityType) (Group, bool) {
	for _, g := range r.Groups {
		if g.EntityType == t {
			return g, true
		}
	}
	return Group{}, false
}

// Query is the predicate pushed into every adapter.
type Query struct {
	Phrase string
	Terms  []string
	Limit  int
}

// Adapter exposes one entity type's backing store. Find must only return records
// reachable from scope.
type Adapter interface {
	EntityType() EntityType
	Find(ctx context.Context, scope OwnerScope, q Query) ([]SearchableRecord, error)
}
