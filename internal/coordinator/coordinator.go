// Package coordinator implements the dynamic worker-pool scheduler that drives
// concurrent message consumption: elastic worker-count accounting, primary-reader
// election, cooperative cancellation, and graceful shutdown.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ibs-source/workers-coordinator/internal/bottleneck"
	"github.com/ibs-source/workers-coordinator/internal/domain"
	"github.com/ibs-source/workers-coordinator/internal/ports"
)

// ErrNegativeMaxWorkers is returned synchronously by SetMaxWorkersCount for a
// negative argument; it never reaches Stop/Dispose, which never fail.
var ErrNegativeMaxWorkers = errors.New("coordinator: max workers must be non-negative")

// workerHandle is the active-workers map value. Before a worker's reader is
// constructed it is a placeholder with reader == nil.
type workerHandle struct {
	reader ports.MessageReader
}

// primaryBox is the boxed value behind the single-slot primary-reader cell.
// A fresh box is allocated on every successful installation so that pointer
// identity alone tells release() whether the slot still belongs to it.
type primaryBox struct {
	reader ports.MessageReader
}

type lifecycle struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Coordinator is the dynamic worker-pool scheduler described by this package's
// doc comment. The zero value is not usable; construct with New.
type Coordinator struct {
	name   string
	logger ports.Logger

	bottleneck    *bottleneck.AsyncBottleneck
	readerFactory ports.MessageReaderFactory
	metrics       *domain.Metrics

	shutdownTimeout time.Duration
	stopGraceWindow time.Duration

	maxWorkers        atomic.Int64
	tasksCanBeStarted atomic.Int64
	taskIDSeq         atomic.Uint64

	activeWorkers sync.Map // uint64 -> *workerHandle
	activeCount   atomic.Int32

	primaryReader atomic.Pointer[primaryBox]

	started atomic.Bool
	paused  atomic.Bool

	lc atomic.Pointer[lifecycle]
	wg sync.WaitGroup
}

// New constructs a stopped Coordinator. Start must be called before it spawns
// any workers.
func New(
	name string,
	maxWorkers int,
	maxReadParallelism int,
	shutdownTimeout time.Duration,
	stopGraceWindow time.Duration,
	readerFactory ports.MessageReaderFactory,
	logger ports.Logger,
) *Coordinator {
	c := &Coordinator{
		name:            name,
		logger:          logger.WithFields(ports.Field{Key: "component", Value: "coordinator"}, ports.Field{Key: "name", Value: name}),
		bottleneck:      bottleneck.New(maxReadParallelism),
		readerFactory:   readerFactory,
		metrics:         domain.NewMetrics(),
		shutdownTimeout: shutdownTimeout,
		stopGraceWindow: stopGraceWindow,
	}
	c.maxWorkers.Store(int64(maxWorkers))

	noopCtx, noopCancel := context.WithCancel(context.Background())
	noopCancel()
	c.lc.Store(&lifecycle{ctx: noopCtx, cancel: noopCancel})
	return c
}

// Metrics returns the live metrics instance for this coordinator.
func (c *Coordinator) Metrics() *domain.Metrics {
	return c.metrics
}

func (c *Coordinator) currentCtx() context.Context {
	return c.lc.Load().ctx
}

// Token returns the cancellation context governing the current (or most
// recent) run. Cancelled once Stop has been called.
func (c *Coordinator) Token() context.Context {
	return c.currentCtx()
}

// Start is an idempotent transition from stopped to started. On first success
// it resets all bookkeeping and attempts to spawn a single initial prober.
func (c *Coordinator) Start() bool {
	if !c.started.CompareAndSwap(false, true) {
		return true
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.lc.Store(&lifecycle{ctx: ctx, cancel: cancel})

	c.taskIDSeq.Store(0)
	c.activeWorkers.Range(func(key, _ interface{}) bool {
		c.activeWorkers.Delete(key)
		return true
	})
	c.activeCount.Store(0)
	c.primaryReader.Store(nil)
	c.tasksCanBeStarted.Store(c.maxWorkers.Load())

	c.logger.Info("coordinator started", ports.Field{Key: "maxWorkers", Value: c.maxWorkers.Load()})
	c.StartNewTask()
	return true
}

// Stop triggers cancellation, waits a brief grace window for in-flight
// receives to unwind, then waits for either all workers to finish or
// shutdownTimeout to elapse. Idempotent; never returns an error.
func (c *Coordinator) Stop() {
	if !c.started.CompareAndSwap(true, false) {
		return
	}
	c.paused.Store(false)
	c.lc.Load().cancel()

	time.Sleep(c.stopGraceWindow)

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(c.shutdownTimeout):
		c.logger.Warn("stop timed out waiting for workers",
			ports.Field{Key: "remaining", Value: c.TasksCount()})
	}

	c.activeWorkers.Range(func(key, _ interface{}) bool {
		c.activeWorkers.Delete(key)
		return true
	})
	c.activeCount.Store(0)
	c.tasksCanBeStarted.Store(0)
	c.primaryReader.Store(nil)
	c.logger.Info("coordinator stopped")
}

// Dispose stops the coordinator and waits synchronously for completion. Safe
// to call multiple times.
func (c *Coordinator) Dispose() {
	c.Stop()
	if c.TasksCount() > 0 {
		c.logger.Warn("dispose: workers still active after stop", ports.Field{Key: "count", Value: c.TasksCount()})
	}
}

// MaxWorkersCount returns the current target upper bound on concurrent workers.
func (c *Coordinator) MaxWorkersCount() int {
	return int(c.maxWorkers.Load())
}

// SetMaxWorkersCount changes the target upper bound. The delta is applied
// atomically to the start-token bucket; lowering the cap may leave it
// transiently negative until excess workers drain on their own. If no
// workers are active, one is started immediately.
func (c *Coordinator) SetMaxWorkersCount(n int) error {
	if n < 0 {
		return ErrNegativeMaxWorkers
	}
	old := c.maxWorkers.Swap(int64(n))
	delta := int64(n) - old
	c.tasksCanBeStarted.Add(delta)

	if c.started.Load() && c.TasksCount() == 0 {
		c.StartNewTask()
	}
	return nil
}

// TasksCount returns the number of currently active workers.
func (c *Coordinator) TasksCount() int {
	return int(c.activeCount.Load())
}

// FreeReadersAvailable returns the signed start-token bucket. It may be
// negative immediately after the cap is lowered; see SetMaxWorkersCount.
func (c *Coordinator) FreeReadersAvailable() int {
	return int(c.tasksCanBeStarted.Load())
}

// IsPaused reports the pause flag. Informational only: the worker loop does
// not consult it (see this repository's decision on the upstream open
// question about honoring pause).
func (c *Coordinator) IsPaused() bool {
	return c.paused.Load()
}

// SetPaused records pause intent for callers that want to gate their own
// dispatch on it.
func (c *Coordinator) SetPaused(paused bool) {
	c.paused.Store(paused)
}

// StartNewTask attempts to spawn one additional worker. Succeeds iff a start
// token can be taken from the bucket.
func (c *Coordinator) StartNewTask() bool {
	for {
		cur := c.tasksCanBeStarted.Load()
		if cur <= 0 {
			return false
		}
		if c.tasksCanBeStarted.CompareAndSwap(cur, cur-1) {
			break
		}
	}

	id := c.taskIDSeq.Add(1)
	c.activeWorkers.Store(id, &workerHandle{})
	c.activeCount.Add(1)
	c.wg.Add(1)

	lc := c.lc.Load()
	go c.runWorker(lc.ctx, id)
	return true
}

// IsPrimaryReader reports whether reader currently holds the single primary
// (probing) slot.
func (c *Coordinator) IsPrimaryReader(reader ports.MessageReader) bool {
	cur := c.primaryReader.Load()
	return cur != nil && cur.reader == reader
}

func (c *Coordinator) installAsPrimary(reader ports.MessageReader) bool {
	return c.primaryReader.CompareAndSwap(nil, &primaryBox{reader: reader})
}

func (c *Coordinator) releasePrimaryIfHeld(reader ports.MessageReader) {
	for {
		cur := c.primaryReader.Load()
		if cur == nil || cur.reader != reader {
			return
		}
		if c.primaryReader.CompareAndSwap(cur, nil) {
			return
		}
	}
}

// IsSafeToRemoveReader reports whether reader may step down: true iff
// cancellation is requested, OR reader is not primary, OR the start-token
// bucket is negative (excess drain after the cap was lowered). A primary
// reader is never removed while the pool is within cap, guaranteeing at
// least one prober survives.
func (c *Coordinator) IsSafeToRemoveReader(reader ports.MessageReader, _ bool) bool {
	if c.currentCtx().Err() != nil {
		return true
	}
	if !c.IsPrimaryReader(reader) {
		return true
	}
	return c.tasksCanBeStarted.Load() < 0
}

// OnBeforeDoWork releases the primary slot if reader holds it, checks
// cancellation, then attempts to spawn an additional worker so a new prober
// exists while this one is busy. Order matters: release before the
// cancellation check, so a Stop racing with message receipt never leaves the
// slot wrongly held.
func (c *Coordinator) OnBeforeDoWork(reader ports.MessageReader) {
	c.releasePrimaryIfHeld(reader)
	if c.currentCtx().Err() != nil {
		return
	}
	c.StartNewTask()
}

// OnAfterDoWork re-offers reader as primary; it takes the slot only if
// currently empty.
func (c *Coordinator) OnAfterDoWork(reader ports.MessageReader) {
	c.installAsPrimary(reader)
}

// WaitReadAsync delegates to the bottleneck. Cancellation of ctx aborts waiting.
func (c *Coordinator) WaitReadAsync(ctx context.Context) (ports.ReadPermit, error) {
	c.metrics.BottleneckWaits.Add(1)
	return c.bottleneck.Enter(ctx)
}

// exitAccount performs the worker-exit bookkeeping exactly once per worker id:
// removing it from the active set and refunding its start token. sync.Map's
// LoadAndDelete reports loaded=false on every call after the first for a given
// key, which is what makes this safe to invoke from more than one path.
func (c *Coordinator) exitAccount(id uint64) {
	if _, loaded := c.activeWorkers.LoadAndDelete(id); loaded {
		c.metrics.ActiveWorkers.Store(c.activeCount.Add(-1))
		c.tasksCanBeStarted.Add(1)
		c.metrics.TasksRefunded.Add(1)
		c.wg.Done()
	}
}

// runWorker is the JobRunner loop described by this package's Start/§4.2
// counterpart: install as primary, repeatedly process messages, exit
// (primary release + exit-accounting) on removal or cancellation.
func (c *Coordinator) runWorker(ctx context.Context, id uint64) {
	defer c.exitAccount(id)
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("worker panicked",
				ports.Field{Key: "taskId", Value: id},
				ports.Field{Key: "panic", Value: fmt.Sprintf("%v", r)})
		}
	}()

	if ctx.Err() != nil {
		return
	}

	reader := c.readerFactory.CreateReader(id, c)
	c.activeWorkers.Store(id, &workerHandle{reader: reader})
	c.installAsPrimary(reader)
	c.metrics.TasksStarted.Add(1)
	c.metrics.ActiveWorkers.Store(c.activeCount.Load())

	for {
		if ctx.Err() != nil {
			c.releasePrimaryIfHeld(reader)
			return
		}

		result := reader.ProcessMessage(ctx)
		if result.IsWorkDone {
			c.metrics.MessagesDispatched.Add(1)
		}
		if result.IsRemoved || ctx.Err() != nil {
			c.releasePrimaryIfHeld(reader)
			return
		}
	}
}
