// internal/project/types.go
package project

import (
	"time"
)

// Project groups tasks under a shared goal
type Project struct {
    ID          string    `json:"id"`
    Name        string    `json:"name"`
    Description string    `json:"description,omitempty"`
    Archived    bool      `json:"archived"`
    CreatedAt   time.Time `json:"created_at"`
    UpdatedAt   time.Time `json:"updated_at"`
}
