package model

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Conversation struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	Title        string `json:"title"`
	LastSequence int64  `json:"last_sequence"`
	Ctime        int64  `json:"ctime"`
	Mtime        int64  `json:"mtime"`
}

// ConversationTurn is append-only once written.
type ConversationTurn struct {
	ConversationID string        `json:"conversation_id"`
	Sequence       int64         `json:"sequence"`
	Role           string        `json:"role"`
	Content        string        `json:"content"`
	CitedSources   []CitedSource `json:"cited_sources"`
	Ctime          int64         `json:"ctime"`
}

type CitedSource struct {
	EntityType string `json:"entity_type"`
	ID         string `json:"id"`
	Title      string `json:"title"`
	Excerpt    string `json:"excerpt"`
}
