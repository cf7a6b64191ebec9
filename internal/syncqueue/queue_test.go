package syncqueue

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"latch/internal/logging"
	shared "latch/shared/types"
)

func setupQueue(t *testing.T) *Queue {
    opts := badger.DefaultOptions("").WithInMemory(true)
    opts.Logger = nil

    db, err := badger.Open(opts)
    require.NoError(t, err)
    t.Cleanup(func() { db.Close() })

    q, err := New(db, logging.NewNop())
    require.NoError(t, err)
    t.Cleanup(q.Close)
    return q
}

func entryFor(id string, priority Priority) *Entry {
    return &Entry{
        ID:       id,
        Op:       shared.OpCreate,
        Kind:     shared.KindTask,
        EntityID: "e-" + id,
        Payload:  []byte(`{"title":"queued"}`),
        Priority: priority,
    }
}

func TestQueueEnqueueDefaults(t *testing.T) {
    q := setupQueue(t)

    e := &Entry{
        Op:       shared.OpUpdate,
        Kind:     shared.KindProject,
        EntityID: "p1",
        Payload:  []byte(`{"name":"renamed"}`),
    }
    require.NoError(t, q.Enqueue(e))

    assert.NotEmpty(t, e.ID)
    assert.Equal(t, StatusPending, e.Status)
    assert.Equal(t, 3, e.MaxRetries)
    assert.Zero(t, e.Attempts)
    assert.False(t, e.CreatedAt.IsZero())
    assert.False(t, e.NextAttemptAt.IsZero())

    // Round-trips through storage intact
    entries, err := q.List()
    require.NoError(t, err)
    require.Len(t, entries, 1)
    got := entries[0]
    assert.Equal(t, e.ID, got.ID)
    assert.Equal(t, shared.OpUpdate, got.Op)
    assert.Equal(t, shared.KindProject, got.Kind)
    assert.Equal(t, "p1", got.EntityID)
    assert.JSONEq(t, `{"name":"renamed"}`, string(got.Payload))
}

func TestQueueOrdering(t *testing.T) {
    q := setupQueue(t)

    require.NoError(t, q.Enqueue(entryFor("c", PriorityLow)))
    require.NoError(t, q.Enqueue(entryFor("a", PriorityNormal)))
    require.NoError(t, q.Enqueue(entryFor("b", PriorityHigh)))
    require.NoError(t, q.Enqueue(entryFor("d", PriorityNormal)))

    entries, err := q.List()
    require.NoError(t, err)
    require.Len(t, entries, 4)

    // Highest priority first, then enqueue order
    assert.Equal(t, "b", entries[0].ID)
    assert.Equal(t, "a", entries[1].ID)
    assert.Equal(t, "d", entries[2].ID)
    assert.Equal(t, "c", entries[3].ID)
}

func TestQueuePending(t *testing.T) {
    q := setupQueue(t)

    ready := entryFor("ready", PriorityNormal)
    require.NoError(t, q.Enqueue(ready))

    deferred := entryFor("deferred", PriorityNormal)
    deferred.NextAttemptAt = time.Now().Add(time.Hour)
    require.NoError(t, q.Enqueue(deferred))

    inflight := entryFor("inflight", PriorityNormal)
    require.NoError(t, q.Enqueue(inflight))
    require.NoError(t, q.MarkInflight(inflight))

    pending, err := q.Pending(time.Now())
    require.NoError(t, err)
    require.Len(t, pending, 1)
    assert.Equal(t, "ready", pending[0].ID)
}

func TestQueueComplete(t *testing.T) {
    q := setupQueue(t)

    e := entryFor("done", PriorityNormal)
    require.NoError(t, q.Enqueue(e))
    require.NoError(t, q.Complete(e))

    entries, err := q.List()
    require.NoError(t, err)
    assert.Empty(t, entries)
}

func TestQueueFail(t *testing.T) {
    q := setupQueue(t)

    e := entryFor("flaky", PriorityNormal)
    e.MaxRetries = 2
    require.NoError(t, q.Enqueue(e))
    // Enqueue resets MaxRetries only when zero
    require.Equal(t, 2, e.MaxRetries)

    cause := fmt.Errorf("connection refused")

    before := time.Now()
    require.NoError(t, q.Fail(e, cause))
    assert.Equal(t, StatusPending, e.Status)
    assert.Equal(t, 1, e.Attempts)
    assert.Equal(t, "connection refused", e.LastError)
    // First retry backs off by a minute
    assert.True(t, e.NextAttemptAt.After(before.Add(50*time.Second)))

    // Budget spent: abandoned, stays visible as failed
    require.NoError(t, q.Fail(e, cause))
    assert.Equal(t, StatusFailed, e.Status)
    assert.Equal(t, 2, e.Attempts)

    entries, err := q.List()
    require.NoError(t, err)
    require.Len(t, entries, 1)
    assert.Equal(t, StatusFailed, entries[0].Status)
}

func TestBackoff(t *testing.T) {
    assert.Equal(t, time.Minute, backoff(1))
    assert.Equal(t, 2*time.Minute, backoff(2))
    assert.Equal(t, 4*time.Minute, backoff(3))
    // Capped
    assert.Equal(t, time.Hour, backoff(10))
    assert.Equal(t, time.Hour, backoff(30))
}

func TestQueueRetryFailed(t *testing.T) {
    q := setupQueue(t)

    e := entryFor("abandoned", PriorityNormal)
    e.MaxRetries = 1
    require.NoError(t, q.Enqueue(e))
    require.NoError(t, q.Fail(e, fmt.Errorf("boom")))
    require.Equal(t, StatusFailed, e.Status)

    healthy := entryFor("healthy", PriorityNormal)
    require.NoError(t, q.Enqueue(healthy))

    count, err := q.RetryFailed()
    require.NoError(t, err)
    assert.Equal(t, 1, count)

    entries, err := q.List()
    require.NoError(t, err)
    for _, got := range entries {
        assert.Equal(t, StatusPending, got.Status)
        assert.Zero(t, got.Attempts)
        assert.Empty(t, got.LastError)
    }
}

func TestQueueClearAndStats(t *testing.T) {
    q := setupQueue(t)

    require.NoError(t, q.Enqueue(entryFor("a", PriorityNormal)))
    require.NoError(t, q.Enqueue(entryFor("b", PriorityNormal)))

    failed := entryFor("c", PriorityNormal)
    failed.MaxRetries = 1
    require.NoError(t, q.Enqueue(failed))
    require.NoError(t, q.Fail(failed, fmt.Errorf("boom")))

    stats, err := q.Stats()
    require.NoError(t, err)
    assert.Equal(t, 3, stats["total"])
    assert.Equal(t, 2, stats["pending"])
    assert.Equal(t, 1, stats["failed"])
    assert.Zero(t, stats["inflight"])

    require.NoError(t, q.Clear())

    stats, err = q.Stats()
    require.NoError(t, err)
    assert.Zero(t, stats["total"])
}

func TestQueueCompressesLargePayloads(t *testing.T) {
    q := setupQueue(t)

    // Well past the compression threshold and highly compressible
    payload := []byte(`{"notes":"` + string(bytes.Repeat([]byte("abcdefgh"), 512)) + `"}`)

    e := entryFor("big", PriorityNormal)
    e.Payload = payload
    require.NoError(t, q.Enqueue(e))

    entries, err := q.List()
    require.NoError(t, err)
    require.Len(t, entries, 1)
    assert.Equal(t, payload, []byte(entries[0].Payload))

    // At rest the entry is smaller than its payload
    raw, err := q.store.Get(e.ID)
    require.NoError(t, err)
    assert.Less(t, len(raw), len(payload))
}

func TestQueueSmallPayloadRoundTrip(t *testing.T) {
    q := setupQueue(t)

    e := entryFor("small", PriorityNormal)
    e.Payload = []byte(`{"title":"tiny"}`)
    require.NoError(t, q.Enqueue(e))

    entries, err := q.List()
    require.NoError(t, err)
    require.Len(t, entries, 1)
    assert.JSONEq(t, `{"title":"tiny"}`, string(entries[0].Payload))
}
