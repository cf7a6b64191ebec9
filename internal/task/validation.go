package task

import (
	"latch/internal/errors"
)

// Validate validates a task
func Validate(t *Task) error {
    if t.Title == "" {
        return errors.ValidationError("title is required")
    }

    validStatuses := map[Status]bool{
        StatusOpen:       true,
        StatusInProgress: true,
        StatusDone:       true,
    }

    if !validStatuses[t.Status] {
        return errors.ValidationError("invalid task status")
    }

    if t.Priority < 0 {
        return errors.ValidationError("priority cannot be negative")
    }

    return nil
}
