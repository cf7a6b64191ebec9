// Package store is the application state store: the single source of truth
// the coordinator mutates optimistically. State is durable in badger; the
// operation journal that makes mutations revertible is transient and lives
// only as long as an operation is in flight.
package store

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"latch/internal/errors"
	"latch/internal/logging"
	"latch/internal/storage"
	"latch/internal/task"
	shared "latch/shared/types"
	"latch/shared/utils"
)

const cacheSize = 512

// journalEntry is the before-image of one applied mutation, kept until the
// operation is resolved or reverted.
type journalEntry struct {
	Op       shared.Op
	Kind     shared.EntityKind
	EntityID string
	Before   []byte // nil for create
}

type Store struct {
	tasks    *storage.BadgerStore
	projects *storage.BadgerStore
	cache    *lru.Cache[string, []byte]
	logger   *logging.Logger

	mu      sync.Mutex
	journal map[string]*journalEntry
}

func New(db *badger.DB, logger *logging.Logger) (*Store, error) {
	cache, err := lru.New[string, []byte](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating read cache: %w", err)
	}

	return &Store{
		tasks:    storage.NewBadgerStore(db, "task"),
		projects: storage.NewBadgerStore(db, "project"),
		cache:    cache,
		logger:   logger,
		journal:  make(map[string]*journalEntry),
	}, nil
}

// Recognizes reports whether the store has a mutation handler for kind.
func (s *Store) Recognizes(kind shared.EntityKind) bool {
	return kind.Valid()
}

func (s *Store) bucket(kind shared.EntityKind) (*storage.BadgerStore, error) {
	switch kind {
	case shared.KindTask:
		return s.tasks, nil
	case shared.KindProject:
		return s.projects, nil
	}
	return nil, errors.UnknownEntity(kind.String())
}

func cacheKey(kind shared.EntityKind, id string) string {
	return kind.String() + ":" + id
}

// Create applies a create mutation and returns the operation id that can
// revert it.
func (s *Store) Create(kind shared.EntityKind, id string, payload []byte) (string, error) {
	bucket, err := s.bucket(kind)
	if err != nil {
		return "", err
	}

	normalized, err := normalize(kind, id, payload, true)
	if err != nil {
		return "", err
	}

	if err := bucket.Create(id, normalized); err != nil {
		return "", err
	}
	s.cache.Add(cacheKey(kind, id), normalized)

	opID := s.record(&journalEntry{Op: shared.OpCreate, Kind: kind, EntityID: id})

	s.logger.Debug("created entity",
		zap.String("kind", kind.String()),
		zap.String("entity_id", id),
		zap.String("op_id", opID),
	)
	return opID, nil
}

// Update merges a JSON patch over the stored entity. The before-image is
// snapshotted from current state at call time so a revert lands on the true
// pre-call value even under rapid repeated updates.
func (s *Store) Update(kind shared.EntityKind, id string, patch []byte) (string, error) {
	bucket, err := s.bucket(kind)
	if err != nil {
		return "", err
	}

	before, err := bucket.Get(id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return "", errors.NotFound(fmt.Sprintf("%s not found: %s", kind, id))
		}
		return "", err
	}

	merged, err := utils.MergeJSON(before, patch)
	if err != nil {
		return "", errors.ValidationError(fmt.Sprintf("applying patch: %v", err))
	}

	normalized, err := normalize(kind, id, merged, false)
	if err != nil {
		return "", err
	}

	if err := bucket.Put(id, normalized); err != nil {
		return "", err
	}
	s.cache.Add(cacheKey(kind, id), normalized)

	opID := s.record(&journalEntry{Op: shared.OpUpdate, Kind: kind, EntityID: id, Before: before})

	s.logger.Debug("updated entity",
		zap.String("kind", kind.String()),
		zap.String("entity_id", id),
		zap.String("op_id", opID),
	)
	return opID, nil
}

// Delete removes the entity, keeping its before-image for rollback.
func (s *Store) Delete(kind shared.EntityKind, id string) (string, error) {
	bucket, err := s.bucket(kind)
	if err != nil {
		return "", err
	}

	before, err := bucket.Get(id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return "", errors.NotFound(fmt.Sprintf("%s not found: %s", kind, id))
		}
		return "", err
	}

	if err := bucket.Delete(id); err != nil {
		return "", err
	}
	s.cache.Remove(cacheKey(kind, id))

	opID := s.record(&journalEntry{Op: shared.OpDelete, Kind: kind, EntityID: id, Before: before})

	s.logger.Debug("deleted entity",
		zap.String("kind", kind.String()),
		zap.String("entity_id", id),
		zap.String("op_id", opID),
	)
	return opID, nil
}

func (s *Store) Get(kind shared.EntityKind, id string) ([]byte, error) {
	bucket, err := s.bucket(kind)
	if err != nil {
		return nil, err
	}

	if data, ok := s.cache.Get(cacheKey(kind, id)); ok {
		return data, nil
	}

	data, err := bucket.Get(id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NotFound(fmt.Sprintf("%s not found: %s", kind, id))
		}
		return nil, err
	}

	s.cache.Add(cacheKey(kind, id), data)
	return data, nil
}

func (s *Store) List(kind shared.EntityKind) ([]json.RawMessage, error) {
	bucket, err := s.bucket(kind)
	if err != nil {
		return nil, err
	}

	var out []json.RawMessage
	err = bucket.List(func(id string, data []byte) error {
		cp := make([]byte, len(data))
		copy(cp, data)
		out = append(out, cp)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// record registers a journal entry and returns its operation id.
func (s *Store) record(entry *journalEntry) string {
	opID := utils.NewID()
	s.mu.Lock()
	s.journal[opID] = entry
	s.mu.Unlock()
	return opID
}

// Resolve drops the journal entry for a confirmed operation. The mutation
// is final; nothing is left to revert.
func (s *Store) Resolve(opID string) {
	s.mu.Lock()
	delete(s.journal, opID)
	s.mu.Unlock()
}

// Revert undoes the mutation recorded under opID. Idempotent: a second call
// for the same id finds no journal entry and is a no-op, since failure paths
// can race with user-triggered retries.
func (s *Store) Revert(opID string) error {
	s.mu.Lock()
	entry, ok := s.journal[opID]
	if ok {
		delete(s.journal, opID)
	}
	s.mu.Unlock()

	if !ok {
		return nil
	}

	bucket, err := s.bucket(entry.Kind)
	if err != nil {
		return err
	}

	switch entry.Op {
	case shared.OpCreate:
		if err := bucket.Delete(entry.EntityID); err != nil && !stderrors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("reverting create: %w", err)
		}
	case shared.OpUpdate, shared.OpDelete:
		if err := bucket.Put(entry.EntityID, entry.Before); err != nil {
			return fmt.Errorf("reverting %s: %w", entry.Op, err)
		}
	}
	s.cache.Remove(cacheKey(entry.Kind, entry.EntityID))

	s.logger.Debug("reverted operation",
		zap.String("op_id", opID),
		zap.String("kind", entry.Kind.String()),
		zap.String("entity_id", entry.EntityID),
	)
	return nil
}

// Rekey atomically replaces a client-generated id with the server-assigned
// one after a queued create syncs, including references: tasks pointing at a
// re-keyed project are rewritten.
func (s *Store) Rekey(kind shared.EntityKind, oldID, newID string) error {
	if oldID == newID {
		return nil
	}

	bucket, err := s.bucket(kind)
	if err != nil {
		return err
	}

	data, err := bucket.Get(oldID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.NotFound(fmt.Sprintf("%s not found: %s", kind, oldID))
		}
		return err
	}

	rewritten, err := rewriteID(kind, data, newID)
	if err != nil {
		return err
	}

	if err := bucket.Put(newID, rewritten); err != nil {
		return fmt.Errorf("storing re-keyed entity: %w", err)
	}
	if err := bucket.Delete(oldID); err != nil {
		return fmt.Errorf("removing old id: %w", err)
	}
	s.cache.Remove(cacheKey(kind, oldID))
	s.cache.Add(cacheKey(kind, newID), rewritten)

	if kind == shared.KindProject {
		if err := s.rekeyTaskRefs(oldID, newID); err != nil {
			return err
		}
	}

	s.logger.Info("re-keyed entity",
		zap.String("kind", kind.String()),
		zap.String("old_id", oldID),
		zap.String("new_id", newID),
	)
	return nil
}

// rekeyTaskRefs rewrites project references on tasks after a project re-key.
func (s *Store) rekeyTaskRefs(oldID, newID string) error {
	type ref struct {
		id   string
		data []byte
	}
	var stale []ref

	err := s.tasks.List(func(id string, data []byte) error {
		var t task.Task
		if err := json.Unmarshal(data, &t); err != nil {
			return fmt.Errorf("decoding task %s: %w", id, err)
		}
		if t.ProjectID == oldID {
			t.ProjectID = newID
			updated, err := json.Marshal(&t)
			if err != nil {
				return err
			}
			stale = append(stale, ref{id: id, data: updated})
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, r := range stale {
		if err := s.tasks.Put(r.id, r.data); err != nil {
			return fmt.Errorf("rewriting task reference %s: %w", r.id, err)
		}
		s.cache.Remove(cacheKey(shared.KindTask, r.id))
	}
	return nil
}
