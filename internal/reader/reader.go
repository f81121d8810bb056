// Package reader implements the per-worker message-reading loop: acquire a
// read permit, receive one message, dispatch it, and report the outcome back
// to the coordinator.
package reader

import (
	"context"
	"fmt"
	"time"

	"github.com/ibs-source/workers-coordinator/internal/domain"
	"github.com/ibs-source/workers-coordinator/internal/ports"
)

// Reader implements ports.MessageReader. Each ProcessMessage call performs one
// end-to-end read-dispatch attempt.
type Reader struct {
	id          uint64
	coordinator ports.CoordinatorAdvanced
	transport   ports.Transport
	worker      ports.MessageWorker
	breaker     ports.CircuitBreaker
	idleBackoff time.Duration
	metrics     *domain.Metrics
	logger      ports.Logger
}

// Factory creates Readers bound to a worker id and the coordinator's advanced
// contract. Safe for concurrent use.
type Factory struct {
	Transport   ports.Transport
	Worker      ports.MessageWorker
	Breaker     ports.CircuitBreaker
	IdleBackoff time.Duration
	Metrics     *domain.Metrics
	Logger      ports.Logger
}

// CreateReader implements ports.MessageReaderFactory.
func (f *Factory) CreateReader(taskID uint64, coordinator ports.CoordinatorAdvanced) ports.MessageReader {
	return &Reader{
		id:          taskID,
		coordinator: coordinator,
		transport:   f.Transport,
		worker:      f.Worker,
		breaker:     f.Breaker,
		idleBackoff: f.IdleBackoff,
		metrics:     f.Metrics,
		logger:      f.Logger.WithFields(ports.Field{Key: "taskId", Value: taskID}),
	}
}

// ProcessMessage performs one acquire-receive-dispatch-report cycle.
func (r *Reader) ProcessMessage(ctx context.Context) ports.ProcessResult {
	permit, err := r.coordinator.WaitReadAsync(ctx)
	if err != nil {
		return ports.ProcessResult{IsRemoved: ctx.Err() != nil}
	}
	defer permit.Release()

	msg, tx, err := r.transport.Receive(ctx)
	if err != nil {
		r.logger.Warn("transport receive error", ports.Field{Key: "error", Value: err})
		return r.idleOutcome(ctx)
	}
	if msg == nil {
		return r.idleOutcome(ctx)
	}

	r.metrics.MessagesReceived.Add(1)
	r.coordinator.OnBeforeDoWork(r)

	start := time.Now()
	dispatchErr := r.dispatch(ctx, msg)
	r.metrics.ProcessingTimeNs.Add(uint64(time.Since(start).Nanoseconds()))

	if dispatchErr != nil {
		r.metrics.DispatchErrors.Add(1)
		r.logger.Error("message dispatch failed", ports.Field{Key: "error", Value: dispatchErr})
		if tx != nil {
			tx.Abort()
		}
	} else if tx != nil {
		tx.Commit()
	}

	r.coordinator.OnAfterDoWork(r)
	return ports.ProcessResult{
		IsWorkDone: true,
		IsRemoved:  r.coordinator.IsSafeToRemoveReader(r, true),
	}
}

// idleOutcome is the no-message branch of ProcessMessage: consult
// IsSafeToRemoveReader, otherwise back off before the next attempt.
func (r *Reader) idleOutcome(ctx context.Context) ports.ProcessResult {
	if r.coordinator.IsSafeToRemoveReader(r, false) {
		return ports.ProcessResult{IsRemoved: true}
	}
	select {
	case <-time.After(r.idleBackoff):
	case <-ctx.Done():
	}
	return ports.ProcessResult{IsRemoved: false}
}

// dispatch invokes the user-supplied worker, through the circuit breaker when
// one is configured, with panic recovery either way so a misbehaving
// MessageWorker never escapes as an unhandled exception from the worker loop.
func (r *Reader) dispatch(ctx context.Context, msg *ports.Message) error {
	call := func() error { return r.worker.OnDoWork(ctx, msg) }
	if r.breaker != nil {
		return r.breaker.Execute(call)
	}
	return safeCall(call)
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in message worker: %v", rec)
		}
	}()
	return fn()
}
