// Package memory implements an in-process ports.Transport backed by a
// lock-free ring buffer; the demo program uses it in place of a live broker.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ibs-source/workers-coordinator/internal/ports"
	"github.com/ibs-source/workers-coordinator/pkg/ringbuffer"
)

// ErrQueueFull is returned by Send when the destination queue has no room.
var ErrQueueFull = errors.New("memory transport: queue is full")

const defaultCapacity = 1024

// Transport implements ports.Transport with one ring buffer per address.
type Transport struct {
	addr   string
	logger ports.Logger
	queues sync.Map // string -> *ringbuffer.RingBuffer[ports.Message]
}

// New creates a Transport that receives from addr.
func New(addr string, logger ports.Logger) *Transport {
	return &Transport{
		addr:   addr,
		logger: logger.WithFields(ports.Field{Key: "component", Value: "memory-transport"}),
	}
}

// Address returns the address this transport receives from.
func (t *Transport) Address() string {
	return t.addr
}

// CreateQueue idempotently allocates the ring buffer backing addr.
func (t *Transport) CreateQueue(_ context.Context, addr string) error {
	t.queueFor(addr)
	return nil
}

// Send enqueues message onto destAddr's ring buffer.
func (t *Transport) Send(_ context.Context, destAddr string, message *ports.Message, tx ports.TxContext) error {
	q := t.queueFor(destAddr)
	if !q.Put(message) {
		if tx != nil {
			tx.Abort()
		}
		return ErrQueueFull
	}
	if tx != nil {
		tx.Commit()
	}
	return nil
}

// Receive polls this transport's queue until a message arrives or ctx ends.
func (t *Transport) Receive(ctx context.Context) (*ports.Message, ports.TxContext, error) {
	q := t.queueFor(t.addr)
	const pollInterval = 2 * time.Millisecond
	for {
		if msg := q.Get(); msg != nil {
			return msg, newTx(), nil
		}
		select {
		case <-ctx.Done():
			return nil, nil, nil
		case <-time.After(pollInterval):
		}
	}
}

// GetProperties reports queue depth for diagnostics.
func (t *Transport) GetProperties(_ context.Context) map[string]interface{} {
	q := t.queueFor(t.addr)
	return map[string]interface{}{
		"address": t.addr,
		"depth":   q.Size(),
	}
}

func (t *Transport) queueFor(addr string) *ringbuffer.RingBuffer[ports.Message] {
	actual, _ := t.queues.LoadOrStore(addr, ringbuffer.New[ports.Message](defaultCapacity))
	return actual.(*ringbuffer.RingBuffer[ports.Message])
}

// tx is a no-op transactional scope: in-memory delivery has nothing to commit
// to, only callbacks to run.
type tx struct {
	onCommit []func()
	onAbort  []func()
}

func newTx() *tx { return &tx{} }

func (x *tx) OnCommitted(fn func()) { x.onCommit = append(x.onCommit, fn) }
func (x *tx) OnAborted(fn func())   { x.onAbort = append(x.onAbort, fn) }
func (x *tx) Commit() {
	for _, fn := range x.onCommit {
		fn()
	}
}
func (x *tx) Abort() {
	for _, fn := range x.onAbort {
		fn()
	}
}
