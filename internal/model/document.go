package model

type Document struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	WorkspaceID   string `json:"workspace_id"`
	Title         string `json:"title"`
	Content       string `json:"content"`
	ExtractedText string `json:"extracted_text"`
	State         int    `json:"state"`
	Ctime         int64  `json:"ctime"`
	Mtime         int64  `json:"mtime"`
}
