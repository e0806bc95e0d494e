package dto

// CompletionRequest is the worker's completion callback body
type CompletionRequest struct {
	RequestID   string `json:"request_id"`
	ClientKey   string `json:"client_key"`
	IP          string `json:"ip"`
	Marketplace string `json:"marketplace"`
	Status      string `json:"status"`
	Error       string `json:"error"`
}

type ListJobsRequest struct {
	ClientKey   string `form:"client_key"`
	Marketplace string `form:"marketplace"`
	Status      string `form:"status"`
	PageSize    int    `form:"page_size"`
	Cursor      string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	JobID       string `json:"job_id"`
	ClientKey   string `json:"client_key"`
	Query       string `json:"query"`
	Marketplace string `json:"marketplace"`
	Page        int    `json:"page"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	CreatedAt   string `json:"created_at"`
	StartedAt   string `json:"started_at,omitempty"`
	FinishedAt  string `json:"finished_at,omitempty"`
	UpdatedAt   string `json:"updated_at"`
}

type QueueStateResponse struct {
	ClientKey  string `json:"client_key"`
	Pending    int    `json:"pending"`
	Processing bool   `json:"processing"`
	Connected  bool   `json:"connected"`
}

type CleanupResponse struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	DeletedCount int    `json:"deleted_count"`
}
