// internal/task/types.go
package task

import (
	"time"
)

// Task is the workspace task aggregate
type Task struct {
    ID        string    `json:"id"`
    Title     string    `json:"title"`
    Notes     string    `json:"notes,omitempty"`
    Status    Status    `json:"status"`
    Priority  int       `json:"priority"` // 0 = none, higher sorts first
    ProjectID string    `json:"project_id,omitempty"`
    CreatedAt time.Time `json:"created_at"`
    UpdatedAt time.Time `json:"updated_at"`
}

type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)
