package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by operations on a closed queue.
var ErrClosed = errors.New("queue closed")

// MemoryQueue is a bounded in-process Queue for tests and single-process
// runs. Send on a full queue fails immediately rather than blocking the
// request path.
type MemoryQueue struct {
	mu     sync.Mutex
	ch     chan Message
	closed bool
}

// ErrFull is returned by Send when the queue is at capacity.
var ErrFull = errors.New("queue full")

// NewMemoryQueue creates a queue holding at most capacity messages.
func NewMemoryQueue(capacity int) *MemoryQueue {
	return &MemoryQueue{ch: make(chan Message, capacity)}
}

func (q *MemoryQueue) Send(ctx context.Context, msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.ch <- msg:
		return nil
	default:
		return ErrFull
	}
}

func (q *MemoryQueue) Receive(ctx context.Context) (*Message, error) {
	select {
	case msg, ok := <-q.ch:
		if !ok {
			return nil, ErrClosed
		}
		return &msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	return nil
}

var _ Queue = (*MemoryQueue)(nil)
