// Package connectivity tracks whether the workspace currently has a route
// to the remote authority. The coordinator consults it to pick the online
// or offline branch; subscribers (the sync processor) learn about
// transitions back online.
package connectivity

import (
	"sync"
	"sync/atomic"
)

type Monitor struct {
	online atomic.Bool

	mu   sync.Mutex
	subs []chan bool
}

func NewMonitor(online bool) *Monitor {
	m := &Monitor{}
	m.online.Store(online)
	return m
}

func (m *Monitor) Online() bool {
	return m.online.Load()
}

// SetOnline flips the connectivity state. Subscribers are only notified on
// an actual transition; sends never block.
func (m *Monitor) SetOnline(v bool) {
	if m.online.Swap(v) == v {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- v:
		default:
		}
	}
}

// Subscribe returns a channel receiving the new state on every transition.
// The channel is buffered; a slow consumer misses intermediate flips but
// always observes the latest pending one.
func (m *Monitor) Subscribe() <-chan bool {
	ch := make(chan bool, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}
