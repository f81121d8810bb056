// Package main boots the worker-pool coordinator demo, wiring configuration,
// logger, the in-memory transport, a circuit breaker around dispatch, and the
// coordinator itself behind a health server and OS signal handling.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ibs-source/workers-coordinator/internal/config"
	"github.com/ibs-source/workers-coordinator/internal/coordinator"
	"github.com/ibs-source/workers-coordinator/internal/logger"
	core "github.com/ibs-source/workers-coordinator/internal/ports"
	"github.com/ibs-source/workers-coordinator/internal/reader"
	"github.com/ibs-source/workers-coordinator/internal/transport/memory"
	"github.com/ibs-source/workers-coordinator/pkg/circuitbreaker"
)

// Application wires the demo program's dependencies and lifecycle.
type Application struct {
	config      *config.Config
	logger      core.Logger
	coordinator *coordinator.Coordinator
	transport   *memory.Transport
	healthSrv   *http.Server
	wg          sync.WaitGroup
}

func main() {
	os.Exit(run())
}

// run contains the program logic and returns an exit code.
func run() int {
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}

	logr, err := logger.NewLogrusLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return 1
	}

	app := &Application{config: cfg, logger: logr}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Start(ctx); err != nil {
		logr.Error("failed to start application", core.Field{Key: "error", Value: err})
		return 1
	}

	if cfg.App.LogLevel == "debug" {
		app.wg.Add(1)
		go app.logMetrics(ctx)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logr.Info("received shutdown signal", core.Field{Key: "signal", Value: sig})
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	app.Shutdown(shutdownCtx)
	logr.Info("application shutdown complete")
	return 0
}

// Start wires the worker and builds the coordinator, then starts it.
func (app *Application) Start(_ context.Context) error {
	app.logger.Info("starting application", core.Field{Key: "name", Value: app.config.App.Name})

	app.transport = memory.New(app.config.Reader.QueueAddress, app.logger)

	var breaker core.CircuitBreaker
	if app.config.CircuitBreaker.Enabled {
		breaker = circuitbreaker.New(
			"message-dispatch",
			app.config.CircuitBreaker.ErrorThreshold,
			app.config.CircuitBreaker.SuccessThreshold,
			app.config.CircuitBreaker.Timeout,
			app.config.CircuitBreaker.MaxConcurrentCalls,
			app.config.CircuitBreaker.RequestVolumeThreshold,
		)
	}

	factory := &reader.Factory{
		Transport:   app.transport,
		Worker:      demoWorker{logger: app.logger},
		Breaker:     breaker,
		IdleBackoff: app.config.Reader.IdleBackoff,
		Logger:      app.logger,
	}

	app.coordinator = coordinator.New(
		app.config.Coordinator.Name,
		app.config.Coordinator.MaxWorkers,
		app.config.Bottleneck.MaxReadParallelism,
		app.config.Coordinator.ShutdownTimeout,
		app.config.Coordinator.StopGraceWindow,
		factory,
		app.logger,
	)
	factory.Metrics = app.coordinator.Metrics()

	app.coordinator.Start()
	app.startHealthServer()

	app.logger.Info("application started successfully")
	return nil
}

// Shutdown stops the coordinator and the health server.
func (app *Application) Shutdown(ctx context.Context) {
	app.logger.Info("shutting down application")

	if app.coordinator != nil {
		app.coordinator.Dispose()
	}
	if app.healthSrv != nil {
		if err := app.healthSrv.Shutdown(ctx); err != nil {
			app.logger.Error("failed to shutdown health server", core.Field{Key: "error", Value: err})
		}
	}
	app.wg.Wait()
}

func (app *Application) startHealthServer() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", app.healthHandler)
	mux.HandleFunc("/ready", app.readyHandler)
	mux.HandleFunc("/live", app.liveHandler)

	app.healthSrv = &http.Server{
		Addr:         ":8080",
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	app.wg.Add(1)
	go app.runHealthServer()
}

func (app *Application) runHealthServer() {
	defer app.wg.Done()
	app.logger.Info("starting health server")
	err := app.healthSrv.ListenAndServe()
	if err == nil || err == http.ErrServerClosed {
		return
	}
	app.logger.Error("health server error", core.Field{Key: "error", Value: err})
}

func (app *Application) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, `{"status":"healthy","workers":%d}`, app.coordinator.TasksCount())
}

func (app *Application) readyHandler(w http.ResponseWriter, _ *http.Request) {
	if app.coordinator.TasksCount() > 0 {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, `{"status":"ready"}`)
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = fmt.Fprint(w, `{"status":"not_ready"}`)
}

func (app *Application) liveHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, `{"status":"alive"}`)
}

// logMetrics periodically logs a metrics snapshot when the log level is debug.
func (app *Application) logMetrics(ctx context.Context) {
	defer app.wg.Done()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			snapshot := app.coordinator.Metrics().Snapshot()
			app.logger.Debug("metrics snapshot",
				core.Field{Key: "active_workers", Value: snapshot.ActiveWorkers},
				core.Field{Key: "tasks_started", Value: snapshot.TasksStarted},
				core.Field{Key: "messages_dispatched", Value: snapshot.MessagesDispatched},
				core.Field{Key: "dispatch_errors", Value: snapshot.DispatchErrors},
				core.Field{Key: "throughput_rate", Value: snapshot.ThroughputRate},
				core.Field{Key: "error_rate", Value: snapshot.ErrorRate},
			)
		case <-ctx.Done():
			return
		}
	}
}

// demoWorker is a placeholder ports.MessageWorker that logs each message it
// receives; real deployments supply their own.
type demoWorker struct {
	logger core.Logger
}

func (w demoWorker) OnDoWork(_ context.Context, msg *core.Message) error {
	w.logger.Debug("processing message", core.Field{Key: "id", Value: msg.ID})
	return nil
}
