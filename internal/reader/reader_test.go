package reader

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ibs-source/workers-coordinator/internal/domain"
	"github.com/ibs-source/workers-coordinator/internal/logger"
	"github.com/ibs-source/workers-coordinator/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePermit is a no-op ports.ReadPermit.
type fakePermit struct{}

func (fakePermit) Release() {}

// fakeCoordinator is a minimal ports.CoordinatorAdvanced stand-in that lets
// tests script IsSafeToRemoveReader and observe the before/after-work calls.
type fakeCoordinator struct {
	safeToRemove   bool
	beforeCalls    atomic.Int32
	afterCalls     atomic.Int32
	startNewCalled atomic.Int32
	primary        ports.MessageReader
}

func (f *fakeCoordinator) StartNewTask() bool {
	f.startNewCalled.Add(1)
	return true
}
func (f *fakeCoordinator) IsPrimaryReader(r ports.MessageReader) bool { return f.primary == r }
func (f *fakeCoordinator) IsSafeToRemoveReader(ports.MessageReader, bool) bool {
	return f.safeToRemove
}
func (f *fakeCoordinator) OnBeforeDoWork(ports.MessageReader) { f.beforeCalls.Add(1) }
func (f *fakeCoordinator) OnAfterDoWork(ports.MessageReader)  { f.afterCalls.Add(1) }
func (f *fakeCoordinator) WaitReadAsync(context.Context) (ports.ReadPermit, error) {
	return fakePermit{}, nil
}

// fakeTransport hands back a scripted sequence of messages.
type fakeTransport struct {
	messages []*ports.Message
	idx      int
}

func (f *fakeTransport) Address() string                             { return "fake" }
func (f *fakeTransport) CreateQueue(context.Context, string) error    { return nil }
func (f *fakeTransport) Send(context.Context, string, *ports.Message, ports.TxContext) error {
	return nil
}
func (f *fakeTransport) GetProperties(context.Context) map[string]interface{} { return nil }
func (f *fakeTransport) Receive(context.Context) (*ports.Message, ports.TxContext, error) {
	if f.idx >= len(f.messages) {
		return nil, nil, nil
	}
	m := f.messages[f.idx]
	f.idx++
	if m == nil {
		return nil, nil, nil
	}
	return m, &noopTx{}, nil
}

type noopTx struct{}

func (*noopTx) OnCommitted(func()) {}
func (*noopTx) OnAborted(func())   {}
func (*noopTx) Commit()            {}
func (*noopTx) Abort()             {}

type fakeWorker struct {
	err  error
	done atomic.Int32
}

func (w *fakeWorker) OnDoWork(context.Context, *ports.Message) error {
	w.done.Add(1)
	return w.err
}

func testLogger(t *testing.T) ports.Logger {
	t.Helper()
	l, err := logger.NewLogrusLogger("error", "text")
	require.NoError(t, err)
	return l
}

func TestProcessMessageNoMessageConsultsSafeToRemove(t *testing.T) {
	coord := &fakeCoordinator{safeToRemove: true}
	f := &Factory{
		Transport:   &fakeTransport{},
		Worker:      &fakeWorker{},
		IdleBackoff: time.Millisecond,
		Metrics:     domain.NewMetrics(),
		Logger:      testLogger(t),
	}
	r := f.CreateReader(1, coord)

	result := r.ProcessMessage(context.Background())
	assert.False(t, result.IsWorkDone)
	assert.True(t, result.IsRemoved)
}

func TestProcessMessageNoMessageBacksOffWhenNotSafe(t *testing.T) {
	coord := &fakeCoordinator{safeToRemove: false}
	f := &Factory{
		Transport:   &fakeTransport{},
		Worker:      &fakeWorker{},
		IdleBackoff: 5 * time.Millisecond,
		Metrics:     domain.NewMetrics(),
		Logger:      testLogger(t),
	}
	r := f.CreateReader(1, coord)

	start := time.Now()
	result := r.ProcessMessage(context.Background())
	assert.False(t, result.IsRemoved)
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestProcessMessageDispatchesAndReportsOutcome(t *testing.T) {
	coord := &fakeCoordinator{safeToRemove: false}
	worker := &fakeWorker{}
	transport := &fakeTransport{messages: []*ports.Message{{ID: "1", Body: []byte("x")}}}
	f := &Factory{
		Transport: transport,
		Worker:    worker,
		Metrics:   domain.NewMetrics(),
		Logger:    testLogger(t),
	}
	r := f.CreateReader(1, coord)
	coord.primary = r

	result := r.ProcessMessage(context.Background())
	assert.True(t, result.IsWorkDone)
	assert.False(t, result.IsRemoved)
	assert.Equal(t, int32(1), worker.done.Load())
	assert.Equal(t, int32(1), coord.beforeCalls.Load())
	assert.Equal(t, int32(1), coord.afterCalls.Load())
}

func TestProcessMessageRecoversFromWorkerPanic(t *testing.T) {
	coord := &fakeCoordinator{safeToRemove: false}
	transport := &fakeTransport{messages: []*ports.Message{{ID: "1"}}}
	panicWorker := panicWorkerFunc(func(context.Context, *ports.Message) error {
		panic("boom")
	})
	f := &Factory{
		Transport: transport,
		Worker:    panicWorker,
		Metrics:   domain.NewMetrics(),
		Logger:    testLogger(t),
	}
	r := f.CreateReader(1, coord)

	assert.NotPanics(t, func() {
		result := r.ProcessMessage(context.Background())
		assert.True(t, result.IsWorkDone)
	})
}

type panicWorkerFunc func(context.Context, *ports.Message) error

func (p panicWorkerFunc) OnDoWork(ctx context.Context, m *ports.Message) error { return p(ctx, m) }

func TestProcessMessageDispatchErrorStillReportsWorkDone(t *testing.T) {
	coord := &fakeCoordinator{safeToRemove: false}
	transport := &fakeTransport{messages: []*ports.Message{{ID: "1"}}}
	worker := &fakeWorker{err: errors.New("boom")}
	f := &Factory{
		Transport: transport,
		Worker:    worker,
		Metrics:   domain.NewMetrics(),
		Logger:    testLogger(t),
	}
	r := f.CreateReader(1, coord)

	result := r.ProcessMessage(context.Background())
	assert.True(t, result.IsWorkDone)
}
