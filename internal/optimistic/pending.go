package optimistic

import (
	"context"
)

// Pending is the settlement handle for one optimistic operation. The
// optimistic mutation is already visible in the store when a Pending is
// handed out; Wait reports how the operation reconciled.
type Pending struct {
	done    chan struct{}
	payload []byte
	err     error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func (p *Pending) settle(payload []byte, err error) {
	p.payload = payload
	p.err = err
	close(p.done)
}

// Done is closed once the operation has settled.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until settlement or ctx cancellation. On success it returns
// the confirmed payload (remote result online, optimistic payload offline).
func (p *Pending) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-p.done:
		return p.payload, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
