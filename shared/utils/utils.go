package utils

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// NewID returns a client-generated entity id. The id must stay stable from
// optimistic apply through server reconciliation, so it doubles as the
// idempotency key for replayed operations.
func NewID() string {
	return uuid.New().String()
}

// MergeJSON applies a flat JSON merge patch to a base document. Keys present
// in the patch overwrite the base; a null value removes the key.
func MergeJSON(base, patch []byte) ([]byte, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(base, &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling base document: %w", err)
	}

	var changes map[string]interface{}
	if err := json.Unmarshal(patch, &changes); err != nil {
		return nil, fmt.Errorf("unmarshaling patch: %w", err)
	}

	for k, v := range changes {
		if v == nil {
			delete(doc, k)
			continue
		}
		doc[k] = v
	}

	return json.Marshal(doc)
}
