package model

type ChatThread struct {
	ID           string `json:"id"`
	WorkspaceID  string `json:"workspace_id"`
	OwnerID      string `json:"owner_id"`
	Title        string `json:"title"`
	Participants string `json:"participants"`
	Ctime        int64  `json:"ctime"`
	Mtime        int64  `json:"mtime"`
}

type ChatMessage struct {
	ID         string `json:"id"`
	ThreadID   string `json:"thread_id"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Content    string `json:"content"`
	Ctime      int64  `json:"ctime"`
}
