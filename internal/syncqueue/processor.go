package syncqueue

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"latch/internal/logging"
	shared "latch/shared/types"
)

// Outcome is what a successful replay reports back for one entry.
type Outcome struct {
	// ServerID carries the authoritative id the server assigned to a
	// created entity. Empty when the client id was accepted as-is.
	ServerID string
}

// Flusher replays a queued operation against the remote authority.
type Flusher interface {
	Flush(ctx context.Context, e *Entry) (*Outcome, error)
}

// FlusherFunc adapts a function to the Flusher interface.
type FlusherFunc func(ctx context.Context, e *Entry) (*Outcome, error)

func (f FlusherFunc) Flush(ctx context.Context, e *Entry) (*Outcome, error) {
	return f(ctx, e)
}

// Rekeyer is the slice of the state store the processor needs: replacing a
// client-generated id with the server-assigned one after a create syncs.
type Rekeyer interface {
	Rekey(kind shared.EntityKind, oldID, newID string) error
}

// Result summarizes one drain pass.
type Result struct {
	Flushed   int           `json:"flushed"`
	Retried   int           `json:"retried"`
	Abandoned int           `json:"abandoned"`
	Duration  time.Duration `json:"duration"`
}

// Processor owns the drain loop: pending entries are replayed in priority
// order, then age order, each advancing inflight -> done or back to pending
// with backoff until the retry budget runs out.
type Processor struct {
	queue   *Queue
	flusher Flusher
	store   Rekeyer
	logger  *logging.Logger
	running atomic.Bool
}

func NewProcessor(queue *Queue, flusher Flusher, store Rekeyer, logger *logging.Logger) *Processor {
	return &Processor{
		queue:   queue,
		flusher: flusher,
		store:   store,
		logger:  logger,
	}
}

// Process drains everything currently ready. Only one drain runs at a time.
func (p *Processor) Process(ctx context.Context) (*Result, error) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("sync already in progress")
	}
	defer p.running.Store(false)

	start := time.Now()
	result := &Result{}

	entries, err := p.queue.Pending(start)
	if err != nil {
		return nil, fmt.Errorf("reading pending entries: %w", err)
	}

	for _, e := range entries {
		select {
		case <-ctx.Done():
			result.Duration = time.Since(start)
			return result, ctx.Err()
		default:
		}

		if err := p.queue.MarkInflight(e); err != nil {
			p.logger.Error("marking entry inflight", zap.String("queue_id", e.ID), zap.Error(err))
			continue
		}

		outcome, err := p.flusher.Flush(ctx, e)
		if err != nil {
			if failErr := p.queue.Fail(e, err); failErr != nil {
				p.logger.Error("recording entry failure", zap.String("queue_id", e.ID), zap.Error(failErr))
			}
			if e.Status == StatusFailed {
				result.Abandoned++
			} else {
				result.Retried++
			}
			continue
		}

		// A create confirmed under a different id needs the local entity
		// re-keyed before the entry is dropped, or the correlation is lost.
		if e.Op == shared.OpCreate && outcome != nil && outcome.ServerID != "" && outcome.ServerID != e.EntityID {
			if err := p.store.Rekey(e.Kind, e.EntityID, outcome.ServerID); err != nil {
				p.logger.Error("re-keying synced entity",
					zap.String("queue_id", e.ID),
					zap.String("entity_id", e.EntityID),
					zap.String("server_id", outcome.ServerID),
					zap.Error(err),
				)
			}
		}

		if err := p.queue.Complete(e); err != nil {
			p.logger.Error("completing entry", zap.String("queue_id", e.ID), zap.Error(err))
			continue
		}
		result.Flushed++
	}

	result.Duration = time.Since(start)
	if result.Flushed+result.Retried+result.Abandoned > 0 {
		p.logger.Info("queue drained",
			zap.Int("flushed", result.Flushed),
			zap.Int("retried", result.Retried),
			zap.Int("abandoned", result.Abandoned),
			zap.Duration("duration", result.Duration),
		)
	}
	return result, nil
}

// Watch drains the queue every time connectivity comes back, until ctx is
// done. Transitions arrive on ch (see connectivity.Monitor.Subscribe).
func (p *Processor) Watch(ctx context.Context, ch <-chan bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case online, ok := <-ch:
			if !ok {
				return
			}
			if !online {
				continue
			}
			if _, err := p.Process(ctx); err != nil && ctx.Err() == nil {
				p.logger.Warn("processing queue after reconnect", zap.Error(err))
			}
		}
	}
}
