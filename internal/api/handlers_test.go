package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"latch/internal/connectivity"
	"latch/internal/logging"
	"latch/internal/optimistic"
	"latch/internal/remote"
	"latch/internal/store"
	"latch/internal/syncqueue"
	"latch/internal/task"
	shared "latch/shared/types"
)

type fixture struct {
    store   *store.Store
    queue   *syncqueue.Queue
    monitor *connectivity.Monitor
    tasks   *EntityHandler
    qh      *QueueHandler
    ch      *ConnectivityHandler
}

func setupFixture(t *testing.T, online bool) *fixture {
    opts := badger.DefaultOptions("").WithInMemory(true)
    opts.Logger = nil

    db, err := badger.Open(opts)
    require.NoError(t, err)
    t.Cleanup(func() { db.Close() })

    logger := logging.NewNop()

    st, err := store.New(db, logger)
    require.NoError(t, err)

    queue, err := syncqueue.New(db, logger)
    require.NoError(t, err)
    t.Cleanup(queue.Close)

    monitor := connectivity.NewMonitor(online)
    coord := optimistic.New(st, queue, monitor, logger)
    factory := remote.Loopback()
    processor := syncqueue.NewProcessor(queue, remote.NewFlusher(factory), st, logger)

    return &fixture{
        store:   st,
        queue:   queue,
        monitor: monitor,
        tasks:   NewEntityHandler(shared.KindTask, coord, st, factory),
        qh:      NewQueueHandler(queue, processor),
        ch:      NewConnectivityHandler(monitor),
    }
}

func TestEntityHandler_Create(t *testing.T) {
    tests := []struct {
        name       string
        body       string
        wantStatus int
    }{
        {
            name:       "valid task",
            body:       `{"title":"ship it"}`,
            wantStatus: http.StatusCreated,
        },
        {
            name:       "missing title",
            body:       `{"notes":"no title"}`,
            wantStatus: http.StatusBadRequest,
        },
        {
            name:       "malformed body",
            body:       `{not json`,
            wantStatus: http.StatusBadRequest,
        },
    }

    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            f := setupFixture(t, true)

            req := httptest.NewRequest("POST", "/api/tasks", bytes.NewBufferString(tt.body))
            rec := httptest.NewRecorder()

            f.tasks.Create(rec, req)
            assert.Equal(t, tt.wantStatus, rec.Code)

            if tt.wantStatus == http.StatusCreated {
                var created task.Task
                require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
                assert.NotEmpty(t, created.ID)
                assert.Equal(t, "ship it", created.Title)
                assert.Equal(t, task.StatusOpen, created.Status)
            }
        })
    }
}

func TestEntityHandler_CreateKeepsClientID(t *testing.T) {
    f := setupFixture(t, true)

    req := httptest.NewRequest("POST", "/api/tasks", bytes.NewBufferString(`{"id":"t-client","title":"mine"}`))
    rec := httptest.NewRecorder()

    f.tasks.Create(rec, req)
    require.Equal(t, http.StatusCreated, rec.Code)

    var created task.Task
    require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
    assert.Equal(t, "t-client", created.ID)
}

func TestEntityHandler_Get(t *testing.T) {
    f := setupFixture(t, true)

    _, err := f.store.Create(shared.KindTask, "t1", []byte(`{"title":"stored"}`))
    require.NoError(t, err)

    req := httptest.NewRequest("GET", "/api/tasks/t1", nil)
    req.SetPathValue("id", "t1")
    rec := httptest.NewRecorder()

    f.tasks.Get(rec, req)
    require.Equal(t, http.StatusOK, rec.Code)

    var got task.Task
    require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
    assert.Equal(t, "stored", got.Title)

    req = httptest.NewRequest("GET", "/api/tasks/missing", nil)
    req.SetPathValue("id", "missing")
    rec = httptest.NewRecorder()

    f.tasks.Get(rec, req)
    assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEntityHandler_List(t *testing.T) {
    f := setupFixture(t, true)

    req := httptest.NewRequest("GET", "/api/tasks", nil)
    rec := httptest.NewRecorder()

    f.tasks.List(rec, req)
    require.Equal(t, http.StatusOK, rec.Code)
    assert.JSONEq(t, `[]`, rec.Body.String())

    _, err := f.store.Create(shared.KindTask, "t1", []byte(`{"title":"one"}`))
    require.NoError(t, err)
    _, err = f.store.Create(shared.KindTask, "t2", []byte(`{"title":"two"}`))
    require.NoError(t, err)

    rec = httptest.NewRecorder()
    f.tasks.List(rec, req)
    require.Equal(t, http.StatusOK, rec.Code)

    var items []task.Task
    require.NoError(t, json.NewDecoder(rec.Body).Decode(&items))
    assert.Len(t, items, 2)
}

func TestEntityHandler_Update(t *testing.T) {
    f := setupFixture(t, true)

    _, err := f.store.Create(shared.KindTask, "t1", []byte(`{"title":"before"}`))
    require.NoError(t, err)

    req := httptest.NewRequest("PATCH", "/api/tasks/t1", bytes.NewBufferString(`{"status":"done"}`))
    req.SetPathValue("id", "t1")
    rec := httptest.NewRecorder()

    f.tasks.Update(rec, req)
    require.Equal(t, http.StatusOK, rec.Code)

    var updated task.Task
    require.NoError(t, json.NewDecoder(rec.Body).Decode(&updated))
    assert.Equal(t, task.StatusDone, updated.Status)
    assert.Equal(t, "before", updated.Title)

    req = httptest.NewRequest("PATCH", "/api/tasks/missing", bytes.NewBufferString(`{"status":"done"}`))
    req.SetPathValue("id", "missing")
    rec = httptest.NewRecorder()

    f.tasks.Update(rec, req)
    assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEntityHandler_Delete(t *testing.T) {
    f := setupFixture(t, true)

    _, err := f.store.Create(shared.KindTask, "t1", []byte(`{"title":"doomed"}`))
    require.NoError(t, err)

    req := httptest.NewRequest("DELETE", "/api/tasks/t1", nil)
    req.SetPathValue("id", "t1")
    rec := httptest.NewRecorder()

    f.tasks.Delete(rec, req)
    assert.Equal(t, http.StatusNoContent, rec.Code)

    req = httptest.NewRequest("GET", "/api/tasks/t1", nil)
    req.SetPathValue("id", "t1")
    rec = httptest.NewRecorder()

    f.tasks.Get(rec, req)
    assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEntityHandler_OfflineCreateQueues(t *testing.T) {
    f := setupFixture(t, false)

    req := httptest.NewRequest("POST", "/api/tasks", bytes.NewBufferString(`{"title":"deferred"}`))
    rec := httptest.NewRecorder()

    f.tasks.Create(rec, req)
    require.Equal(t, http.StatusCreated, rec.Code)

    entries, err := f.queue.List()
    require.NoError(t, err)
    require.Len(t, entries, 1)
    assert.Equal(t, shared.OpCreate, entries[0].Op)
    assert.Equal(t, shared.KindTask, entries[0].Kind)
}

func TestQueueHandler(t *testing.T) {
    f := setupFixture(t, false)

    // Seed the queue through an offline create
    req := httptest.NewRequest("POST", "/api/tasks", bytes.NewBufferString(`{"title":"queued"}`))
    rec := httptest.NewRecorder()
    f.tasks.Create(rec, req)
    require.Equal(t, http.StatusCreated, rec.Code)

    t.Run("List", func(t *testing.T) {
        rec := httptest.NewRecorder()
        f.qh.List(rec, httptest.NewRequest("GET", "/api/queue", nil))
        require.Equal(t, http.StatusOK, rec.Code)

        var entries []syncqueue.Entry
        require.NoError(t, json.NewDecoder(rec.Body).Decode(&entries))
        assert.Len(t, entries, 1)
    })

    t.Run("Stats", func(t *testing.T) {
        rec := httptest.NewRecorder()
        f.qh.Stats(rec, httptest.NewRequest("GET", "/api/queue/stats", nil))
        require.Equal(t, http.StatusOK, rec.Code)

        var stats map[string]int
        require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
        assert.Equal(t, 1, stats["total"])
        assert.Equal(t, 1, stats["pending"])
    })

    t.Run("Flush", func(t *testing.T) {
        rec := httptest.NewRecorder()
        f.qh.Flush(rec, httptest.NewRequest("POST", "/api/queue/flush", nil))
        require.Equal(t, http.StatusOK, rec.Code)

        var result syncqueue.Result
        require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
        assert.Equal(t, 1, result.Flushed)
    })

    t.Run("Retry", func(t *testing.T) {
        rec := httptest.NewRecorder()
        f.qh.Retry(rec, httptest.NewRequest("POST", "/api/queue/retry", nil))
        require.Equal(t, http.StatusOK, rec.Code)

        var body map[string]int
        require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
        assert.Zero(t, body["reset"])
    })

    t.Run("Clear", func(t *testing.T) {
        rec := httptest.NewRecorder()
        f.qh.Clear(rec, httptest.NewRequest("DELETE", "/api/queue", nil))
        assert.Equal(t, http.StatusNoContent, rec.Code)
    })
}

func TestConnectivityHandler(t *testing.T) {
    f := setupFixture(t, true)

    rec := httptest.NewRecorder()
    f.ch.Get(rec, httptest.NewRequest("GET", "/api/connectivity", nil))
    require.Equal(t, http.StatusOK, rec.Code)
    assert.JSONEq(t, `{"online":true}`, rec.Body.String())

    rec = httptest.NewRecorder()
    f.ch.Set(rec, httptest.NewRequest("PUT", "/api/connectivity", bytes.NewBufferString(`{"online":false}`)))
    require.Equal(t, http.StatusOK, rec.Code)
    assert.JSONEq(t, `{"online":false}`, rec.Body.String())
    assert.False(t, f.monitor.Online())

    rec = httptest.NewRecorder()
    f.ch.Set(rec, httptest.NewRequest("PUT", "/api/connectivity", bytes.NewBufferString(`not json`)))
    assert.Equal(t, http.StatusBadRequest, rec.Code)
}
