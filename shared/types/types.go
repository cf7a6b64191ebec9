// shared/types/types.go
package shared

import (
	"encoding/json"
	"fmt"
	"time"
)

// EntityKind identifies which aggregate a mutation targets. The set is
// closed: the store is constructed with a handler per kind and dispatch is
// over this enum, never a runtime string match.
type EntityKind int

const (
	KindTask EntityKind = iota
	KindProject
)

func (k EntityKind) String() string {
	switch k {
	case KindTask:
		return "task"
	case KindProject:
		return "project"
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// Valid reports whether k is one of the registered kinds.
func (k EntityKind) Valid() bool {
	return k == KindTask || k == KindProject
}

// ParseKind maps a wire name back to an EntityKind.
func ParseKind(s string) (EntityKind, error) {
	switch s {
	case "task":
		return KindTask, nil
	case "project":
		return KindProject, nil
	}
	return 0, fmt.Errorf("unknown entity kind: %q", s)
}

func (k EntityKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("unknown entity kind: %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *EntityKind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Op is the mutation verb carried by an Intent.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Intent is the data-only description of a desired mutation, before it is
// applied to the store or sent anywhere. Intents are transient: only their
// effects (the store mutation, possibly a queue entry) persist.
type Intent struct {
	Op          Op              `json:"op"`
	Kind        EntityKind      `json:"kind"`
	EntityID    string          `json:"entity_id"`
	Payload     json.RawMessage `json:"payload,omitempty"` // full entity for create, merge patch for update, nil for delete
	SubmittedAt time.Time       `json:"submitted_at"`
}
