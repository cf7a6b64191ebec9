package store

import (
	"encoding/json"
	"fmt"
	"time"

	"latch/internal/errors"
	"latch/internal/project"
	"latch/internal/task"
	shared "latch/shared/types"
)

// normalize round-trips a payload through the typed entity for its kind:
// the id field is forced to match the addressed entity, timestamps are
// stamped, and validation runs before anything hits disk. Dispatch is over
// the closed EntityKind enum; an unregistered kind fails loudly.
func normalize(kind shared.EntityKind, id string, data []byte, isCreate bool) ([]byte, error) {
	now := time.Now()

	switch kind {
	case shared.KindTask:
		var t task.Task
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, errors.ValidationError(fmt.Sprintf("decoding task payload: %v", err))
		}
		t.ID = id
		if isCreate {
			if t.Status == "" {
				t.Status = task.StatusOpen
			}
			if t.CreatedAt.IsZero() {
				t.CreatedAt = now
			}
		}
		t.UpdatedAt = now
		if err := task.Validate(&t); err != nil {
			return nil, err
		}
		return json.Marshal(&t)

	case shared.KindProject:
		var p project.Project
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, errors.ValidationError(fmt.Sprintf("decoding project payload: %v", err))
		}
		p.ID = id
		if isCreate && p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		p.UpdatedAt = now
		if err := project.Validate(&p); err != nil {
			return nil, err
		}
		return json.Marshal(&p)
	}

	return nil, errors.UnknownEntity(kind.String())
}

// rewriteID stamps a new id into a stored entity document. Used when the
// server assigns an authoritative id for a client-created entity.
func rewriteID(kind shared.EntityKind, data []byte, newID string) ([]byte, error) {
	switch kind {
	case shared.KindTask:
		var t task.Task
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("decoding task: %w", err)
		}
		t.ID = newID
		return json.Marshal(&t)

	case shared.KindProject:
		var p project.Project
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decoding project: %w", err)
		}
		p.ID = newID
		return json.Marshal(&p)
	}

	return nil, errors.UnknownEntity(kind.String())
}
