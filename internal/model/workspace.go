package model

type Workspace struct {
	ID          string `json:"id"`
	OwnerID     string `json:"owner_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Ctime       int64  `json:"ctime"`
	Mtime       int64  `json:"mtime"`
}

type Member struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	Ctime       int64  `json:"ctime"`
	Mtime       int64  `json:"mtime"`
}
