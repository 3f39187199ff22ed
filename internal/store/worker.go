package store

import (
	"context"
	"time"
)

// handleTimeout bounds one event's database work so a wedged disk cannot
// back the queue up forever.
const handleTimeout = 5 * time.Second

// Logger defines the logging interface used by the worker.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Reloader re-reads the devices file into the live registries. Implemented
// by the loader package.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Worker consumes persistence events off the engine's queue and applies them
// to the repository, keeping all database I/O out of the control loop.
//
// Thread Safety: one Run goroutine owns the channel; events are handled
// strictly in arrival order.
type Worker struct {
	events   <-chan Event
	repo     *Repository
	reloader Reloader
	logger   Logger

	handled uint64
	failed  uint64
}

// WorkerConfig collects the worker's dependencies.
type WorkerConfig struct {
	// Events is the queue the engine produces into.
	Events <-chan Event

	// Repo persists counters; nil disables counter handling.
	Repo *Repository

	// Reloader services ReloadDevices events; nil makes them a logged no-op.
	Reloader Reloader

	Logger Logger
}

// NewWorker creates a worker from the given configuration.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Worker{
		events:   cfg.Events,
		repo:     cfg.Repo,
		reloader: cfg.Reloader,
		logger:   logger,
	}
}

// Run consumes events until ctx is cancelled. Events already queued when
// cancellation arrives are abandoned; counters are best-effort.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("persistence worker started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("persistence worker stopped",
				"handled", w.handled,
				"failed", w.failed,
			)
			return
		case ev := <-w.events:
			w.handle(ctx, ev)
		}
	}
}

// handle applies one event. Failures are logged and counted, never fatal.
func (w *Worker) handle(ctx context.Context, ev Event) {
	hctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	var err error
	switch ev.Kind {
	case IncrementRelayCounter:
		err = w.increment(hctx, CounterKindRelay, ev.ID)
	case IncrementSensorCounter:
		err = w.increment(hctx, CounterKindSensor, ev.ID)
	case IncrementYeelightCounter:
		err = w.increment(hctx, CounterKindYeelight, ev.ID)
	case ReloadDevices:
		err = w.reload(hctx)
	default:
		w.logger.Warn("unknown persistence event", "kind", string(ev.Kind), "id", ev.ID)
		return
	}

	if err != nil {
		w.failed++
		w.logger.Error("persistence event failed",
			"kind", string(ev.Kind),
			"id", ev.ID,
			"error", err,
		)
		return
	}
	w.handled++
	w.logger.Debug("persistence event handled", "kind", string(ev.Kind), "id", ev.ID)
}

func (w *Worker) increment(ctx context.Context, kind string, id int) error {
	if w.repo == nil {
		return nil
	}
	return w.repo.IncrementCounter(ctx, kind, id)
}

func (w *Worker) reload(ctx context.Context) error {
	if w.reloader == nil {
		w.logger.Warn("reload requested but no reloader configured")
		return nil
	}
	w.logger.Info("reloading device configuration")
	return w.reloader.Reload(ctx)
}
