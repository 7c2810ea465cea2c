// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package bridge

import (
	"context"
	"sync"
)

// Link carries dispatched handles from the bridge to the decision service.
// Sends never block. Once the receiving side calls Close the link is gone for
// good: queued handles are freed (their calls resolve ErrCancelled) and every
// later Send fails with ErrLinkGone.
type Link struct {
	mu     sync.Mutex
	queue  []*Handle
	closed bool
	ready  chan struct{}
	gone   chan struct{}
}

// NewLink returns an open link.
func NewLink() *Link {
	return &Link{
		ready: make(chan struct{}, 1),
		gone:  make(chan struct{}),
	}
}

// Send enqueues h for the decision service.
func (l *Link) Send(h *Handle) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLinkGone
	}
	l.queue = append(l.queue, h)
	l.mu.Unlock()
	l.signal()
	return nil
}

// Recv takes the next handle, waiting until one arrives, the link closes or
// ctx ends.
func (l *Link) Recv(ctx context.Context) (*Handle, error) {
	for {
		l.mu.Lock()
		if n := len(l.queue); n > 0 {
			h := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			more := n > 1
			l.mu.Unlock()
			if more {
				l.signal()
			}
			return h, nil
		}
		closed := l.closed
		l.mu.Unlock()
		if closed {
			return nil, ErrLinkGone
		}

		select {
		case <-l.ready:
		case <-l.gone:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close marks the receiving side as gone and cancels every queued call.
func (l *Link) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	queued := l.queue
	l.queue = nil
	close(l.gone)
	l.mu.Unlock()

	for _, h := range queued {
		var f Fault
		h.Free(&f)
	}
}

// Gone is closed once the receiving side has exited.
func (l *Link) Gone() <-chan struct{} { return l.gone }

// Len reports how many handles wait to be received.
func (l *Link) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *Link) signal() {
	select {
	case l.ready <- struct{}{}:
	default:
	}
}
