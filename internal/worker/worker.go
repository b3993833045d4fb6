package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DukeRupert/folio/internal/metrics"
)

// Worker runs registered tasks on fixed intervals until stopped.
type Worker struct {
	tasks  []scheduledTask
	config Config
	logger *slog.Logger

	// Synchronization
	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

type scheduledTask struct {
	task  Task
	every time.Duration
}

// New creates a new Worker with the given configuration.
// The worker must be started with Start() and stopped with Stop().
func New(config Config, logger *slog.Logger) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Worker{
		config: config,
		logger: logger,
		stopCh: make(chan struct{}),
	}, nil
}

// Register schedules task to run every interval. A non-positive interval
// leaves the task disabled. Call this before Start().
func (w *Worker) Register(task Task, every time.Duration) {
	if every <= 0 {
		w.logger.Info("Task disabled", "task", task.Name())
		return
	}
	w.tasks = append(w.tasks, scheduledTask{task: task, every: every})
	w.logger.Debug("Registered task", "task", task.Name(), "every", every.String())
}

// Start launches one goroutine per registered task.
func (w *Worker) Start(ctx context.Context) {
	for _, st := range w.tasks {
		w.wg.Add(1)
		go w.loop(ctx, st)
	}

	w.logger.Info("Worker started", "tasks", len(w.tasks))
}

// Stop signals all task loops to stop and waits for them to finish.
// It respects the configured ShutdownTimeout.
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopCh) })

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("Worker stopped gracefully")
	case <-time.After(w.config.ShutdownTimeout):
		w.logger.Warn("Worker shutdown timeout exceeded, some tasks may still be running")
	}
}

// loop runs one task until the worker stops, the context ends, or the
// task reports a permanent error.
func (w *Worker) loop(ctx context.Context, st scheduledTask) {
	defer w.wg.Done()

	logger := w.logger.With("task", st.task.Name())
	logger.Debug("Task loop started")

	if w.config.RunOnStart {
		if stop := w.runOnce(ctx, st.task, logger); stop {
			return
		}
	}

	ticker := time.NewTicker(st.every)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			logger.Debug("Task loop stopping")
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if stop := w.runOnce(ctx, st.task, logger); stop {
				return
			}
		}
	}
}

// runOnce executes a single pass with a timeout context. It reports
// whether the task asked never to run again.
func (w *Worker) runOnce(ctx context.Context, task Task, logger *slog.Logger) bool {
	taskCtx, cancel := context.WithTimeout(ctx, w.timeoutFor(task))
	defer cancel()

	start := time.Now()
	err := task.Run(taskCtx)
	duration := time.Since(start)

	if err != nil {
		metrics.TaskFailed(task.Name(), duration)
		if IsPermanent(err) {
			logger.Error("Task failed with permanent error, will not run again", "error", err)
			return true
		}
		logger.Error("Task failed", "error", err, "duration_ms", duration.Milliseconds())
		return false
	}

	metrics.TaskCompleted(task.Name(), duration)
	logger.Debug("Task completed", "duration_ms", duration.Milliseconds())
	return false
}

// timeoutFor returns the task's own timeout when it sets one, otherwise
// Config.TaskTimeout.
func (w *Worker) timeoutFor(task Task) time.Duration {
	if tt, ok := task.(TimeoutTask); ok {
		if d := tt.Timeout(); d > 0 {
			return d
		}
	}
	return w.config.TaskTimeout
}
