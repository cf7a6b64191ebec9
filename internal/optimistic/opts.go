package optimistic

import (
	"time"

	"latch/internal/syncqueue"
)

const (
	// DefaultTimeout bounds the online remote confirmation.
	DefaultTimeout = 10 * time.Second
	// DefaultMaxRetries is the retry budget a queued entry gets.
	DefaultMaxRetries = 3
)

// Options tune a single Apply call.
type Options struct {
	// Timeout for the remote confirmation race. Zero means DefaultTimeout.
	Timeout time.Duration

	// MaxRetries for the queue entry created in the offline branch. Unused
	// online. Zero means DefaultMaxRetries.
	MaxRetries int

	// Priority of the queue entry in the offline branch.
	Priority syncqueue.Priority

	// OnSuccess runs once with the settled payload: the remote result
	// online, the optimistic payload offline.
	OnSuccess func(payload []byte)

	// OnError runs after the store has already been reverted. The rollback
	// handle is for caller-specific cleanup; invoking it again is safe and
	// does not double-revert.
	OnError func(err error, rollback func())
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	return o
}
