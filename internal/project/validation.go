package project

import (
	"latch/internal/errors"
)

// Validate validates a project
func Validate(p *Project) error {
    if p.Name == "" {
        return errors.ValidationError("name is required")
    }

    return nil
}
