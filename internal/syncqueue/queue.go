// Package syncqueue is the durable record of deferred work: every mutation
// applied while offline becomes an entry here, replayed with bounded
// retries once connectivity returns.
package syncqueue

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"latch/internal/logging"
	"latch/internal/storage"
	shared "latch/shared/types"
	"latch/shared/utils"
)

type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusInflight Status = "inflight"
	StatusFailed   Status = "failed"
	// Entries that sync successfully are removed; StatusDone only ever
	// appears on in-memory copies handed to callbacks.
	StatusDone Status = "done"
)

// Entry describes one deferred operation. EntityID matches the entity the
// optimistic mutation was applied to, so a successful sync can be
// correlated back (create re-keying in particular).
type Entry struct {
	ID            string            `json:"id"`
	Op            shared.Op         `json:"op"`
	Kind          shared.EntityKind `json:"kind"`
	EntityID      string            `json:"entity_id"`
	Payload       json.RawMessage   `json:"payload,omitempty"`
	Priority      Priority          `json:"priority"`
	Attempts      int               `json:"attempts"`
	MaxRetries    int               `json:"max_retries"`
	NextAttemptAt time.Time         `json:"next_attempt_at"`
	Status        Status            `json:"status"`
	LastError     string            `json:"last_error,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// storedEntry is the at-rest form: the payload travels as raw bytes
// (base64 in JSON) so it can be zstd-compressed independently.
type storedEntry struct {
	Entry
	Payload []byte `json:"payload,omitempty"`
}

type Queue struct {
	store  *storage.BadgerStore
	codec  *codec
	logger *logging.Logger
	mu     sync.Mutex
}

func New(db *badger.DB, logger *logging.Logger) (*Queue, error) {
	c, err := newCodec()
	if err != nil {
		return nil, fmt.Errorf("creating payload codec: %w", err)
	}

	return &Queue{
		store:  storage.NewBadgerStore(db, "queue"),
		codec:  c,
		logger: logger,
	}, nil
}

// Close releases the payload codec.
func (q *Queue) Close() {
	q.codec.close()
}

// Enqueue persists a new entry. Fire-and-forget from the coordinator's
// perspective; defaults are filled in here.
func (q *Queue) Enqueue(e *Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	if e.ID == "" {
		e.ID = utils.NewID()
	}
	if e.MaxRetries == 0 {
		e.MaxRetries = 3
	}
	e.Status = StatusPending
	e.Attempts = 0
	if e.NextAttemptAt.IsZero() {
		e.NextAttemptAt = now
	}
	e.CreatedAt = now
	e.UpdatedAt = now

	if err := q.persist(e, true); err != nil {
		return fmt.Errorf("persisting queue entry: %w", err)
	}

	q.logger.Info("enqueued operation",
		zap.String("queue_id", e.ID),
		zap.String("op", string(e.Op)),
		zap.String("kind", e.Kind.String()),
		zap.String("entity_id", e.EntityID),
	)
	return nil
}

func (q *Queue) persist(e *Entry, create bool) error {
	se := storedEntry{Entry: *e}
	se.Entry.Payload = nil
	if len(e.Payload) > 0 {
		se.Payload = q.codec.compress(e.Payload)
	}

	data, err := json.Marshal(&se)
	if err != nil {
		return err
	}

	if create {
		return q.store.Create(e.ID, data)
	}
	return q.store.Put(e.ID, data)
}

func (q *Queue) load(data []byte) (*Entry, error) {
	var se storedEntry
	if err := json.Unmarshal(data, &se); err != nil {
		return nil, fmt.Errorf("unmarshaling queue entry: %w", err)
	}

	e := se.Entry
	if len(se.Payload) > 0 {
		payload, err := q.codec.decompress(se.Payload)
		if err != nil {
			return nil, fmt.Errorf("decompressing payload: %w", err)
		}
		e.Payload = payload
	}
	return &e, nil
}

// List returns every entry, highest priority first, oldest first within a
// priority.
func (q *Queue) List() ([]*Entry, error) {
	var entries []*Entry
	err := q.store.List(func(id string, data []byte) error {
		e, err := q.load(data)
		if err != nil {
			return err
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortEntries(entries)
	return entries, nil
}

// Pending returns the entries ready to sync at the given time, in drain
// order.
func (q *Queue) Pending(now time.Time) ([]*Entry, error) {
	all, err := q.List()
	if err != nil {
		return nil, err
	}

	var ready []*Entry
	for _, e := range all {
		if e.Status == StatusPending && !e.NextAttemptAt.After(now) {
			ready = append(ready, e)
		}
	}
	return ready, nil
}

func sortEntries(entries []*Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Priority != entries[j].Priority {
			return entries[i].Priority > entries[j].Priority
		}
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].ID < entries[j].ID
	})
}

// MarkInflight advances an entry to inflight before its replay starts.
func (q *Queue) MarkInflight(e *Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e.Status = StatusInflight
	e.UpdatedAt = time.Now()
	return q.persist(e, false)
}

// Complete removes a successfully synced entry.
func (q *Queue) Complete(e *Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e.Status = StatusDone
	if err := q.store.Delete(e.ID); err != nil {
		return err
	}

	q.logger.Info("completed queue entry",
		zap.String("queue_id", e.ID),
		zap.String("entity_id", e.EntityID),
	)
	return nil
}

// Fail records a failed replay attempt, scheduling a retry with exponential
// backoff or abandoning the entry once its retry budget is spent.
func (q *Queue) Fail(e *Entry, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	e.Attempts++
	e.LastError = cause.Error()
	e.UpdatedAt = now

	if e.Attempts >= e.MaxRetries {
		e.Status = StatusFailed
		q.logger.Warn("queue entry abandoned",
			zap.String("queue_id", e.ID),
			zap.String("entity_id", e.EntityID),
			zap.Int("attempts", e.Attempts),
			zap.Error(cause),
		)
		return q.persist(e, false)
	}

	delay := backoff(e.Attempts)
	e.Status = StatusPending
	e.NextAttemptAt = now.Add(delay)

	q.logger.Info("queue entry scheduled for retry",
		zap.String("queue_id", e.ID),
		zap.Int("attempt", e.Attempts),
		zap.Int("max_retries", e.MaxRetries),
		zap.Duration("backoff", delay),
		zap.Error(cause),
	)
	return q.persist(e, false)
}

// backoff is exponential in the attempt count: 2^attempts * 30s, capped at
// one hour.
func backoff(attempts int) time.Duration {
	d := time.Duration(1<<uint(attempts)) * 30 * time.Second
	if d > time.Hour {
		d = time.Hour
	}
	return d
}

// RetryFailed resets abandoned entries to pending with a fresh retry
// budget. Returns how many were reset.
func (q *Queue) RetryFailed() (int, error) {
	entries, err := q.List()
	if err != nil {
		return 0, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	count := 0
	for _, e := range entries {
		if e.Status != StatusFailed {
			continue
		}
		e.Status = StatusPending
		e.Attempts = 0
		e.LastError = ""
		e.NextAttemptAt = now
		e.UpdatedAt = now
		if err := q.persist(e, false); err != nil {
			return count, err
		}
		count++
	}

	if count > 0 {
		q.logger.Info("reset failed queue entries", zap.Int("count", count))
	}
	return count, nil
}

// Clear drops every entry unconditionally. Demo/reset flows only.
func (q *Queue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.DeleteAll(); err != nil {
		return err
	}
	q.logger.Info("queue cleared")
	return nil
}

// Stats summarizes the queue by status.
func (q *Queue) Stats() (map[string]int, error) {
	entries, err := q.List()
	if err != nil {
		return nil, err
	}

	stats := map[string]int{
		"total":    0,
		"pending":  0,
		"inflight": 0,
		"failed":   0,
	}
	for _, e := range entries {
		stats["total"]++
		stats[string(e.Status)]++
	}
	return stats, nil
}
