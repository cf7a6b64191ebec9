// Package optimistic implements the update coordinator: a mutation intent
// applies to the local store immediately, then reconciles with the remote
// authority asynchronously. Failures revert the store to the pre-mutation
// state; offline intents are deferred into the sync queue instead of being
// sent at all.
package optimistic

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"latch/internal/errors"
	"latch/internal/logging"
	"latch/internal/syncqueue"
	shared "latch/shared/types"
)

// Store is the state-store port the coordinator mutates. Injected so the
// coordinator is testable against a fake and never reaches for a global.
type Store interface {
	Recognizes(kind shared.EntityKind) bool
	Create(kind shared.EntityKind, id string, payload []byte) (opID string, err error)
	Update(kind shared.EntityKind, id string, patch []byte) (opID string, err error)
	Delete(kind shared.EntityKind, id string) (opID string, err error)
	Get(kind shared.EntityKind, id string) ([]byte, error)
	Revert(opID string) error
	Resolve(opID string)
}

// Queue is the sync-queue port used by the offline branch.
type Queue interface {
	Enqueue(e *syncqueue.Entry) error
}

// Connectivity reports whether the remote authority is reachable.
type Connectivity interface {
	Online() bool
}

// RemoteFunc performs the authoritative remote call and returns the
// confirmed payload. The coordinator imposes only a deadline on it, not a
// format.
type RemoteFunc func(ctx context.Context) ([]byte, error)

type Coordinator struct {
	store  Store
	queue  Queue
	conn   Connectivity
	logger *logging.Logger
	locks  *keyedLocks
}

func New(store Store, queue Queue, conn Connectivity, logger *logging.Logger) *Coordinator {
	return &Coordinator{
		store:  store,
		queue:  queue,
		conn:   conn,
		logger: logger,
		locks:  newKeyedLocks(),
	}
}

// Apply runs one optimistic operation. The store mutation is applied before
// Apply returns, so callers observe the change immediately; reconciliation
// settles through the returned Pending. An error return means nothing was
// mutated (unrecognized kind, validation, store failure).
//
// Post-settlement the entity is in exactly one of three states: the
// confirmed remote result, the optimistic value (offline branch), or the
// pre-mutation original (failure branch).
func (c *Coordinator) Apply(ctx context.Context, intent shared.Intent, remote RemoteFunc, opts Options) (*Pending, error) {
	opts = opts.withDefaults()

	// Fail loudly before any mutation: silent fallthrough on an unknown
	// kind would leave the UI believing a write happened.
	if !c.store.Recognizes(intent.Kind) {
		return nil, errors.UnknownEntity(intent.Kind.String())
	}
	if intent.EntityID == "" {
		return nil, errors.ValidationError("intent entity id is required")
	}

	unlock := c.locks.lock(lockKey(intent.Kind, intent.EntityID))

	opID, err := c.apply(intent)
	if err != nil {
		unlock()
		return nil, err
	}

	p := newPending()

	if !c.conn.Online() {
		c.dispatchOffline(intent, opts, opID, p)
		unlock()
		return p, nil
	}

	go c.dispatchOnline(ctx, intent, remote, opts, opID, p, unlock)
	return p, nil
}

// apply performs the synchronous optimistic mutation.
func (c *Coordinator) apply(intent shared.Intent) (string, error) {
	switch intent.Op {
	case shared.OpCreate:
		return c.store.Create(intent.Kind, intent.EntityID, intent.Payload)
	case shared.OpUpdate:
		return c.store.Update(intent.Kind, intent.EntityID, intent.Payload)
	case shared.OpDelete:
		return c.store.Delete(intent.Kind, intent.EntityID)
	}
	return "", errors.ValidationError(fmt.Sprintf("unknown op: %q", intent.Op))
}

// dispatchOffline defers the intent into the sync queue and settles with
// the optimistic payload. The remote call is never invoked. An enqueue
// failure rolls back and surfaces like any other failure: an optimistic
// value with no durable retry behind it would be a silent lie.
func (c *Coordinator) dispatchOffline(intent shared.Intent, opts Options, opID string, p *Pending) {
	entry := &syncqueue.Entry{
		Op:         intent.Op,
		Kind:       intent.Kind,
		EntityID:   intent.EntityID,
		Payload:    intent.Payload,
		Priority:   opts.Priority,
		MaxRetries: opts.MaxRetries,
	}

	if err := c.queue.Enqueue(entry); err != nil {
		c.fail(opID, errors.EnqueueFailed(err), opts, p)
		return
	}

	c.store.Resolve(opID)
	c.logger.Debug("operation deferred to sync queue",
		zap.String("op_id", opID),
		zap.String("entity_id", intent.EntityID),
	)
	if opts.OnSuccess != nil {
		opts.OnSuccess(intent.Payload)
	}
	p.settle(intent.Payload, nil)
}

// dispatchOnline races the remote call against the timeout. A late result
// from a slow remote is discarded; the underlying request is not aborted
// beyond ctx cancellation.
func (c *Coordinator) dispatchOnline(ctx context.Context, intent shared.Intent, remote RemoteFunc, opts Options, opID string, p *Pending, unlock func()) {
	defer unlock()

	// Settlement outlives the caller's request scope; only the timeout can
	// end the race. Context values (request id) still flow to the remote.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opts.Timeout)
	defer cancel()

	type result struct {
		payload []byte
		err     error
	}
	ch := make(chan result, 1)

	go func() {
		payload, err := remote(rctx)
		ch <- result{payload: payload, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			c.fail(opID, errors.RemoteRejected(res.err), opts, p)
			return
		}
		// The store keeps the optimistic value even if the server payload
		// differs; reconciling further is the caller's decision.
		c.store.Resolve(opID)
		if opts.OnSuccess != nil {
			opts.OnSuccess(res.payload)
		}
		p.settle(res.payload, nil)

	case <-rctx.Done():
		c.fail(opID, errors.RemoteTimeout(opts.Timeout.Milliseconds()), opts, p)
	}
}

// fail reverts the store unconditionally, then notifies the caller. The
// rollback handle passed to OnError is idempotent; the coordinator's own
// revert does not depend on the caller invoking it.
func (c *Coordinator) fail(opID string, failure error, opts Options, p *Pending) {
	if err := c.store.Revert(opID); err != nil {
		c.logger.Error("reverting optimistic mutation",
			zap.String("op_id", opID),
			zap.Error(err),
		)
	}

	c.logger.Warn("optimistic operation failed",
		zap.String("op_id", opID),
		zap.Error(failure),
	)

	if opts.OnError != nil {
		rollback := func() { _ = c.store.Revert(opID) }
		opts.OnError(failure, rollback)
	}
	p.settle(nil, failure)
}

func lockKey(kind shared.EntityKind, id string) string {
	return kind.String() + ":" + id
}
