// Package bottleneck implements a fair, cancellable bounded semaphore used to
// admit concurrent transport reads.
package bottleneck

import (
	"container/list"
	"context"
	"fmt"
	"sync"
)

// AsyncBottleneck is a fair bounded admission gate of capacity K. Waiters are
// granted permits in FIFO submission order; a cancelled waiter never consumes
// a slot.
type AsyncBottleneck struct {
	mu       sync.Mutex
	capacity int
	inUse    int
	waiters  *list.List // of *waiter
}

type waiter struct {
	ready chan struct{}
	// granted is set true exactly once, under mu, when a slot is handed to
	// this waiter. A waiter that is cancelled before that never sees it true.
	granted bool
}

// New creates an AsyncBottleneck admitting at most capacity concurrent permits.
func New(capacity int) *AsyncBottleneck {
	if capacity <= 0 {
		panic("bottleneck: capacity must be positive")
	}
	return &AsyncBottleneck{
		capacity: capacity,
		waiters:  list.New(),
	}
}

// Permit is a scoped admission slot. Release is idempotent.
type Permit struct {
	b    *AsyncBottleneck
	once sync.Once
}

// Release returns the slot to the bottleneck and wakes the next FIFO waiter,
// if any. Safe to call more than once.
func (p *Permit) Release() {
	p.once.Do(func() {
		p.b.release()
	})
}

// Enter acquires a permit, blocking until one is available or ctx is done.
// Enter(ctx) → permit per the coordinator's read-admission contract.
func (b *AsyncBottleneck) Enter(ctx context.Context) (*Permit, error) {
	b.mu.Lock()
	if b.inUse < b.capacity {
		b.inUse++
		b.mu.Unlock()
		return &Permit{b: b}, nil
	}

	w := &waiter{ready: make(chan struct{})}
	elem := b.waiters.PushBack(w)
	b.mu.Unlock()

	select {
	case <-w.ready:
		return &Permit{b: b}, nil
	case <-ctx.Done():
		b.mu.Lock()
		if w.granted {
			// Slot was handed over concurrently with cancellation; honor the
			// grant rather than leak a slot.
			b.mu.Unlock()
			return &Permit{b: b}, nil
		}
		b.waiters.Remove(elem)
		b.mu.Unlock()
		return nil, fmt.Errorf("bottleneck: %w", ctx.Err())
	}
}

// release hands the freed slot to the next waiter, or returns it to the pool
// if none are waiting.
func (b *AsyncBottleneck) release() {
	b.mu.Lock()
	front := b.waiters.Front()
	if front == nil {
		b.inUse--
		b.mu.Unlock()
		return
	}
	b.waiters.Remove(front)
	w := front.Value.(*waiter)
	w.granted = true
	b.mu.Unlock()
	close(w.ready)
}

// Capacity returns the configured maximum number of outstanding permits.
func (b *AsyncBottleneck) Capacity() int {
	return b.capacity
}

// InUse returns the current number of outstanding permits.
func (b *AsyncBottleneck) InUse() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inUse
}

// Waiting returns the current number of goroutines queued for a permit.
func (b *AsyncBottleneck) Waiting() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.waiters.Len()
}
