// internal/api/handlers.go
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"latch/internal/errors"
	"latch/internal/optimistic"
	"latch/internal/remote"
	"latch/internal/store"
	"latch/internal/syncqueue"
	shared "latch/shared/types"
	"latch/shared/utils"
)

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    if v != nil {
        json.NewEncoder(w).Encode(v)
    }
}

func writeError(w http.ResponseWriter, err error) {
    var appErr *errors.Error
    if e, ok := err.(*errors.Error); ok {
        appErr = e
    } else {
        appErr = errors.Internal("internal error", err)
    }
    respondJSON(w, appErr.Code, appErr)
}

// EntityHandler serves one aggregate's CRUD surface, routing every write
// through the optimistic coordinator so API callers get the same
// apply-now / reconcile-later semantics as embedded users.
type EntityHandler struct {
    kind   shared.EntityKind
    coord  *optimistic.Coordinator
    store  *store.Store
    remote remote.Factory
}

func NewEntityHandler(kind shared.EntityKind, coord *optimistic.Coordinator, st *store.Store, factory remote.Factory) *EntityHandler {
    return &EntityHandler{
        kind:   kind,
        coord:  coord,
        store:  st,
        remote: factory,
    }
}

func (h *EntityHandler) Create(w http.ResponseWriter, r *http.Request) {
    payload, err := io.ReadAll(r.Body)
    if err != nil {
        writeError(w, errors.ValidationError("reading request body"))
        return
    }

    var probe struct {
        ID string `json:"id"`
    }
    if err := json.Unmarshal(payload, &probe); err != nil {
        writeError(w, errors.ValidationError("invalid request body"))
        return
    }

    id := probe.ID
    if id == "" {
        id = utils.NewID()
    }

    intent := shared.Intent{
        Op:          shared.OpCreate,
        Kind:        h.kind,
        EntityID:    id,
        Payload:     payload,
        SubmittedAt: time.Now(),
    }

    if _, err := h.coord.Apply(r.Context(), intent, h.remote(intent), optimistic.Options{}); err != nil {
        writeError(w, err)
        return
    }

    // Respond with the optimistic value; reconciliation settles in the
    // background and failures revert visibly.
    entity, err := h.store.Get(h.kind, id)
    if err != nil {
        writeError(w, err)
        return
    }
    respondJSON(w, http.StatusCreated, json.RawMessage(entity))
}

func (h *EntityHandler) Get(w http.ResponseWriter, r *http.Request) {
    entity, err := h.store.Get(h.kind, r.PathValue("id"))
    if err != nil {
        writeError(w, err)
        return
    }
    respondJSON(w, http.StatusOK, json.RawMessage(entity))
}

func (h *EntityHandler) List(w http.ResponseWriter, r *http.Request) {
    entities, err := h.store.List(h.kind)
    if err != nil {
        writeError(w, err)
        return
    }
    if entities == nil {
        entities = []json.RawMessage{}
    }
    respondJSON(w, http.StatusOK, entities)
}

func (h *EntityHandler) Update(w http.ResponseWriter, r *http.Request) {
    id := r.PathValue("id")

    patch, err := io.ReadAll(r.Body)
    if err != nil {
        writeError(w, errors.ValidationError("reading request body"))
        return
    }

    intent := shared.Intent{
        Op:          shared.OpUpdate,
        Kind:        h.kind,
        EntityID:    id,
        Payload:     patch,
        SubmittedAt: time.Now(),
    }

    if _, err := h.coord.Apply(r.Context(), intent, h.remote(intent), optimistic.Options{}); err != nil {
        writeError(w, err)
        return
    }

    entity, err := h.store.Get(h.kind, id)
    if err != nil {
        writeError(w, err)
        return
    }
    respondJSON(w, http.StatusOK, json.RawMessage(entity))
}

func (h *EntityHandler) Delete(w http.ResponseWriter, r *http.Request) {
    intent := shared.Intent{
        Op:          shared.OpDelete,
        Kind:        h.kind,
        EntityID:    r.PathValue("id"),
        SubmittedAt: time.Now(),
    }

    if _, err := h.coord.Apply(r.Context(), intent, h.remote(intent), optimistic.Options{}); err != nil {
        writeError(w, err)
        return
    }
    w.WriteHeader(http.StatusNoContent)
}

// QueueHandler exposes the sync queue for inspection and manual draining.
type QueueHandler struct {
    queue     *syncqueue.Queue
    processor *syncqueue.Processor
}

func NewQueueHandler(queue *syncqueue.Queue, processor *syncqueue.Processor) *QueueHandler {
    return &QueueHandler{
        queue:     queue,
        processor: processor,
    }
}

func (h *QueueHandler) List(w http.ResponseWriter, r *http.Request) {
    entries, err := h.queue.List()
    if err != nil {
        writeError(w, err)
        return
    }
    if entries == nil {
        entries = []*syncqueue.Entry{}
    }
    respondJSON(w, http.StatusOK, entries)
}

func (h *QueueHandler) Stats(w http.ResponseWriter, r *http.Request) {
    stats, err := h.queue.Stats()
    if err != nil {
        writeError(w, err)
        return
    }
    respondJSON(w, http.StatusOK, stats)
}

func (h *QueueHandler) Flush(w http.ResponseWriter, r *http.Request) {
    result, err := h.processor.Process(r.Context())
    if err != nil {
        writeError(w, errors.Internal("draining queue", err))
        return
    }
    respondJSON(w, http.StatusOK, result)
}

func (h *QueueHandler) Retry(w http.ResponseWriter, r *http.Request) {
    count, err := h.queue.RetryFailed()
    if err != nil {
        writeError(w, err)
        return
    }
    respondJSON(w, http.StatusOK, map[string]int{"reset": count})
}

func (h *QueueHandler) Clear(w http.ResponseWriter, r *http.Request) {
    if err := h.queue.Clear(); err != nil {
        writeError(w, err)
        return
    }
    w.WriteHeader(http.StatusNoContent)
}

// ConnectivityHandler toggles and reports the online/offline state.
type ConnectivityHandler struct {
    monitor connectivityMonitor
}

type connectivityMonitor interface {
    Online() bool
    SetOnline(v bool)
}

func NewConnectivityHandler(monitor connectivityMonitor) *ConnectivityHandler {
    return &ConnectivityHandler{monitor: monitor}
}

func (h *ConnectivityHandler) Get(w http.ResponseWriter, r *http.Request) {
    respondJSON(w, http.StatusOK, map[string]bool{"online": h.monitor.Online()})
}

func (h *ConnectivityHandler) Set(w http.ResponseWriter, r *http.Request) {
    var body struct {
        Online bool `json:"online"`
    }
    if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
        writeError(w, errors.ValidationError("invalid request body"))
        return
    }

    h.monitor.SetOnline(body.Online)
    respondJSON(w, http.StatusOK, map[string]bool{"online": h.monitor.Online()})
}
