// Package ports defines the service interfaces (ports) used by the coordinator to decouple
// it from any concrete transport, logging, or worker implementation.
package ports

import (
	"context"
	"time"
)

// Logger defines the interface for logging.
type Logger interface {
	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)
	WithFields(fields ...Field) Logger
}

// Field represents a logging field.
type Field struct {
	Key   string
	Value interface{}
}

// TxContext is the transactional scope a Transport hands back on Receive. Callers
// invoke Commit or Abort exactly once per message; OnCommitted/OnAborted hooks fire
// at that point.
type TxContext interface {
	OnCommitted(fn func())
	OnAborted(fn func())
	Commit()
	Abort()
}

// Message is an opaque payload moved through a Transport queue.
type Message struct {
	ID   string
	Body []byte
}

// Transport is consumed by MessageReader, never directly by the Coordinator.
// Implementations must be safe for concurrent use by multiple readers.
type Transport interface {
	// Address identifies this transport endpoint (e.g. a queue name or topic).
	Address() string
	// CreateQueue idempotently ensures the named queue/subscription exists.
	CreateQueue(ctx context.Context, addr string) error
	// Send delivers message to destAddr within the given transactional scope.
	Send(ctx context.Context, destAddr string, message *Message, tx TxContext) error
	// Receive waits for the next message, or returns (nil, nil, nil) if ctx is
	// cancelled before one arrives. The returned TxContext must be committed or
	// aborted by the caller.
	Receive(ctx context.Context) (*Message, TxContext, error)
	// GetProperties reports implementation-defined metadata (queue depth, broker
	// identity, and the like) for diagnostics.
	GetProperties(ctx context.Context) map[string]interface{}
}

// ProcessResult is returned by MessageReader.ProcessMessage.
type ProcessResult struct {
	// IsWorkDone reports whether a message was actually received and dispatched.
	IsWorkDone bool
	// IsRemoved reports that this reader is stepping down and its worker loop
	// should terminate.
	IsRemoved bool
}

// MessageReader drives one end-to-end read-dispatch attempt per ProcessMessage call.
type MessageReader interface {
	ProcessMessage(ctx context.Context) ProcessResult
}

// MessageWorker is the user-supplied dispatch target for a received message.
type MessageWorker interface {
	OnDoWork(ctx context.Context, msg *Message) error
}

// MessageReaderFactory creates a MessageReader bound to a worker id and a
// back-reference to the coordinator's advanced contract. Must be safe to call
// concurrently from arbitrary worker goroutines.
type MessageReaderFactory interface {
	CreateReader(taskID uint64, coordinator CoordinatorAdvanced) MessageReader
}

// ReadPermit is a scoped admission slot obtained from WaitReadAsync. Release is
// idempotent and must be called exactly once per successful acquisition.
type ReadPermit interface {
	Release()
}

// CoordinatorAdvanced is the subset of the coordinator's API consumed by readers
// rather than by end users: spawn, primary-election, safe-to-remove, read-permit.
type CoordinatorAdvanced interface {
	StartNewTask() bool
	IsPrimaryReader(reader MessageReader) bool
	IsSafeToRemoveReader(reader MessageReader, workDone bool) bool
	OnBeforeDoWork(reader MessageReader)
	OnAfterDoWork(reader MessageReader)
	WaitReadAsync(ctx context.Context) (ReadPermit, error)
}

// CircuitBreaker defines the interface for the circuit breaker pattern.
type CircuitBreaker interface {
	Execute(fn func() error) error
	GetState() string
	GetStats() CircuitBreakerStats
}

// CircuitBreakerStats represents circuit breaker statistics.
type CircuitBreakerStats struct {
	Requests            uint64
	TotalSuccess        uint64
	TotalFailure        uint64
	ConsecutiveFailures uint64
	State               string
}

// RetryPolicy defines retry behavior for transports that need it.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxElapsedTime  time.Duration
}

// BackoffStrategy defines the backoff strategy for retries.
type BackoffStrategy interface {
	NextInterval(attempt int) time.Duration
}
