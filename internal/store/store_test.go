package store

import (
	"encoding/json"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"latch/internal/errors"
	"latch/internal/logging"
	"latch/internal/task"
	shared "latch/shared/types"
)

func setupStore(t *testing.T) *Store {
    opts := badger.DefaultOptions("").WithInMemory(true)
    opts.Logger = nil

    db, err := badger.Open(opts)
    require.NoError(t, err)
    t.Cleanup(func() { db.Close() })

    s, err := New(db, logging.NewNop())
    require.NoError(t, err)
    return s
}

func getTask(t *testing.T, s *Store, id string) task.Task {
    data, err := s.Get(shared.KindTask, id)
    require.NoError(t, err)

    var out task.Task
    require.NoError(t, json.Unmarshal(data, &out))
    return out
}

func TestStoreCreate(t *testing.T) {
    s := setupStore(t)

    opID, err := s.Create(shared.KindTask, "t1", []byte(`{"title":"write tests"}`))
    require.NoError(t, err)
    assert.NotEmpty(t, opID)

    created := getTask(t, s, "t1")
    assert.Equal(t, "t1", created.ID)
    assert.Equal(t, "write tests", created.Title)
    assert.Equal(t, task.StatusOpen, created.Status)
    assert.False(t, created.CreatedAt.IsZero())

    // Duplicate id fails without touching the journal
    _, err = s.Create(shared.KindTask, "t1", []byte(`{"title":"again"}`))
    assert.Error(t, err)

    // Validation runs before disk
    _, err = s.Create(shared.KindTask, "t2", []byte(`{"title":""}`))
    assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestStoreUpdate(t *testing.T) {
    s := setupStore(t)

    _, err := s.Create(shared.KindTask, "t1", []byte(`{"title":"original"}`))
    require.NoError(t, err)

    opID, err := s.Update(shared.KindTask, "t1", []byte(`{"title":"patched","priority":2}`))
    require.NoError(t, err)
    assert.NotEmpty(t, opID)

    updated := getTask(t, s, "t1")
    assert.Equal(t, "patched", updated.Title)
    assert.Equal(t, 2, updated.Priority)

    // Patch on a missing entity
    _, err = s.Update(shared.KindTask, "missing", []byte(`{"title":"x"}`))
    assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestStoreDelete(t *testing.T) {
    s := setupStore(t)

    _, err := s.Create(shared.KindTask, "t1", []byte(`{"title":"doomed"}`))
    require.NoError(t, err)

    opID, err := s.Delete(shared.KindTask, "t1")
    require.NoError(t, err)
    assert.NotEmpty(t, opID)

    _, err = s.Get(shared.KindTask, "t1")
    assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))

    _, err = s.Delete(shared.KindTask, "t1")
    assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestStoreRevert(t *testing.T) {
    s := setupStore(t)

    t.Run("create reverts to absence", func(t *testing.T) {
        opID, err := s.Create(shared.KindTask, "c1", []byte(`{"title":"optimistic"}`))
        require.NoError(t, err)

        require.NoError(t, s.Revert(opID))

        _, err = s.Get(shared.KindTask, "c1")
        assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
    })

    t.Run("update reverts to before-image", func(t *testing.T) {
        _, err := s.Create(shared.KindTask, "u1", []byte(`{"title":"before"}`))
        require.NoError(t, err)

        opID, err := s.Update(shared.KindTask, "u1", []byte(`{"title":"after"}`))
        require.NoError(t, err)

        require.NoError(t, s.Revert(opID))
        assert.Equal(t, "before", getTask(t, s, "u1").Title)
    })

    t.Run("delete reverts to restoration", func(t *testing.T) {
        _, err := s.Create(shared.KindTask, "d1", []byte(`{"title":"kept"}`))
        require.NoError(t, err)

        opID, err := s.Delete(shared.KindTask, "d1")
        require.NoError(t, err)

        require.NoError(t, s.Revert(opID))
        assert.Equal(t, "kept", getTask(t, s, "d1").Title)
    })

    t.Run("idempotent", func(t *testing.T) {
        _, err := s.Create(shared.KindTask, "i1", []byte(`{"title":"first"}`))
        require.NoError(t, err)

        opID, err := s.Update(shared.KindTask, "i1", []byte(`{"title":"second"}`))
        require.NoError(t, err)

        // A later write must survive a double revert of the earlier op
        require.NoError(t, s.Revert(opID))
        _, err = s.Update(shared.KindTask, "i1", []byte(`{"title":"third"}`))
        require.NoError(t, err)

        require.NoError(t, s.Revert(opID))
        assert.Equal(t, "third", getTask(t, s, "i1").Title)
    })

    t.Run("resolved op cannot revert", func(t *testing.T) {
        opID, err := s.Create(shared.KindTask, "r1", []byte(`{"title":"confirmed"}`))
        require.NoError(t, err)

        s.Resolve(opID)
        require.NoError(t, s.Revert(opID))

        assert.Equal(t, "confirmed", getTask(t, s, "r1").Title)
    })
}

func TestStoreUpdateSnapshotsBeforeImage(t *testing.T) {
    s := setupStore(t)

    _, err := s.Create(shared.KindTask, "t1", []byte(`{"title":"v0"}`))
    require.NoError(t, err)

    _, err = s.Update(shared.KindTask, "t1", []byte(`{"title":"v1"}`))
    require.NoError(t, err)

    opID2, err := s.Update(shared.KindTask, "t1", []byte(`{"title":"v2"}`))
    require.NoError(t, err)

    // Reverting the second update lands on v1, not v0
    require.NoError(t, s.Revert(opID2))
    assert.Equal(t, "v1", getTask(t, s, "t1").Title)
}

func TestStoreUnknownKind(t *testing.T) {
    s := setupStore(t)

    bogus := shared.EntityKind(99)
    assert.False(t, s.Recognizes(bogus))

    _, err := s.Create(bogus, "x", []byte(`{}`))
    assert.True(t, errors.IsType(err, errors.ErrorTypeUnknownEntity))

    _, err = s.Get(bogus, "x")
    assert.True(t, errors.IsType(err, errors.ErrorTypeUnknownEntity))
}

func TestStoreList(t *testing.T) {
    s := setupStore(t)

    entities, err := s.List(shared.KindTask)
    require.NoError(t, err)
    assert.Empty(t, entities)

    _, err = s.Create(shared.KindTask, "a", []byte(`{"title":"one"}`))
    require.NoError(t, err)
    _, err = s.Create(shared.KindTask, "b", []byte(`{"title":"two"}`))
    require.NoError(t, err)

    entities, err = s.List(shared.KindTask)
    require.NoError(t, err)
    assert.Len(t, entities, 2)
}

func TestStoreRekey(t *testing.T) {
    s := setupStore(t)

    t.Run("entity moves to new id", func(t *testing.T) {
        _, err := s.Create(shared.KindTask, "local-1", []byte(`{"title":"rekeyed"}`))
        require.NoError(t, err)

        require.NoError(t, s.Rekey(shared.KindTask, "local-1", "srv-1"))

        moved := getTask(t, s, "srv-1")
        assert.Equal(t, "srv-1", moved.ID)
        assert.Equal(t, "rekeyed", moved.Title)

        _, err = s.Get(shared.KindTask, "local-1")
        assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
    })

    t.Run("project rekey rewrites task references", func(t *testing.T) {
        _, err := s.Create(shared.KindProject, "local-p", []byte(`{"name":"inbox"}`))
        require.NoError(t, err)
        _, err = s.Create(shared.KindTask, "ref-1", []byte(`{"title":"filed","project_id":"local-p"}`))
        require.NoError(t, err)
        _, err = s.Create(shared.KindTask, "ref-2", []byte(`{"title":"elsewhere","project_id":"other"}`))
        require.NoError(t, err)

        require.NoError(t, s.Rekey(shared.KindProject, "local-p", "srv-p"))

        assert.Equal(t, "srv-p", getTask(t, s, "ref-1").ProjectID)
        assert.Equal(t, "other", getTask(t, s, "ref-2").ProjectID)
    })

    t.Run("same id is a no-op", func(t *testing.T) {
        assert.NoError(t, s.Rekey(shared.KindTask, "whatever", "whatever"))
    })

    t.Run("missing entity", func(t *testing.T) {
        err := s.Rekey(shared.KindTask, "ghost", "srv-2")
        assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
    })
}
