package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/marketsync-ledger/internal/config"
	"github.com/marketsync-ledger/internal/domain/task"
	"github.com/marketsync-ledger/internal/platform/messaging/producers"
	"github.com/marketsync-ledger/internal/progress"
	"github.com/marketsync-ledger/internal/sessionlog"
)

// Worker sweeps the enabled task definitions on a fixed tick and runs every
// due task on a bounded pool. One task failing never stops the sweep or the
// other tasks of the same sweep.
type Worker struct {
	cfg        *config.SchedulerConfig
	tasks      task.Repository
	registry   *Registry
	tracker    *progress.Tracker
	sessionLog *sessionlog.Logger
	events     *producers.RunEventProducer
	pool       *ants.Pool
	logger     *slog.Logger

	// Guards against the same task being started twice while a slow run is
	// still in flight.
	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}

	wg sync.WaitGroup
}

// NewWorker creates the scheduled-task worker with its run pool.
func NewWorker(
	logger *slog.Logger,
	cfg *config.SchedulerConfig,
	tasks task.Repository,
	registry *Registry,
	tracker *progress.Tracker,
	sessionLog *sessionlog.Logger,
	events *producers.RunEventProducer,
) (*Worker, error) {
	pool, err := ants.NewPool(cfg.WorkerPoolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create task run pool: %w", err)
	}

	return &Worker{
		cfg:        cfg,
		tasks:      tasks,
		registry:   registry,
		tracker:    tracker,
		sessionLog: sessionLog,
		events:     events,
		pool:       pool,
		logger:     logger,
		inflight:   make(map[uuid.UUID]struct{}),
	}, nil
}

// Start runs the sweep loop until the context is cancelled. It blocks, so
// callers run it on its own goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Scheduled task worker started",
		"tick_interval", w.cfg.TickInterval,
		"pool_size", w.cfg.WorkerPoolSize,
		"registered_types", w.registry.Types(),
	)

	ticker := time.NewTicker(w.cfg.TickInterval)
	defer ticker.Stop()

	// Run an initial sweep immediately rather than waiting a full tick.
	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Scheduled task worker stopping")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// Shutdown waits for in-flight runs to finish and releases the pool.
func (w *Worker) Shutdown() {
	w.wg.Wait()
	w.logger.Info("Shutting down task run pool", "running_workers", w.pool.Running())
	w.pool.Release()
}

// sweep loads the enabled tasks and submits every due one to the pool.
func (w *Worker) sweep(ctx context.Context) {
	tasks, err := w.tasks.ListEnabled(ctx)
	if err != nil {
		w.logger.Error("Failed to load enabled tasks for sweep", "error", err)
		return
	}

	now := time.Now().UTC()
	for _, t := range tasks {
		if !t.IsDue(now) {
			continue
		}
		if !w.markInflight(t.ID) {
			w.logger.Debug("Task still running, skipping", "code", t.Code)
			continue
		}

		t := t
		w.wg.Add(1)
		err := w.pool.Submit(func() {
			defer w.wg.Done()
			defer w.clearInflight(t.ID)
			w.runTask(ctx, t)
		})
		if err != nil {
			w.wg.Done()
			w.clearInflight(t.ID)
			w.logger.Error("Failed to submit task to run pool", "code", t.Code, "error", err)
		}
	}
}

func (w *Worker) markInflight(id uuid.UUID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, running := w.inflight[id]; running {
		return false
	}
	w.inflight[id] = struct{}{}
	return true
}

func (w *Worker) clearInflight(id uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inflight, id)
}

// runTask executes one task end to end: session setup, bookkeeping to Running,
// executor dispatch, terminal bookkeeping and the optional run event. A panic
// in an executor is contained here and recorded as a failed run.
func (w *Worker) runTask(ctx context.Context, t *task.ScheduledTask) {
	sessionID := uuid.New().String()
	startedAt := time.Now().UTC()
	logger := w.logger.With("code", t.Code, "task_type", t.TaskType, "session_id", sessionID)

	w.tracker.CreateSession(sessionID)
	if err := w.sessionLog.WriteLog(sessionID, fmt.Sprintf("Task %s (%s) started", t.Code, t.TaskType)); err != nil {
		logger.Warn("Failed to write session log", "error", err)
	}

	// Compute the next run up front so a crashed run still reschedules.
	nextRun, err := NextRun(t.ScheduleCron, startedAt, w.cfg.FallbackRunGap)
	if err != nil {
		logger.Error("Task has invalid schedule, using fallback gap", "error", err)
		_ = w.sessionLog.WriteLog(sessionID, "Invalid cron expression, falling back to fixed gap: "+err.Error())
		nextRun = startedAt.Add(w.cfg.FallbackRunGap)
	}

	logFile := w.sessionLog.LogFilePath(sessionID)
	w.updateBookkeeping(ctx, logger, t.ID, task.RunBookkeeping{
		LastRunAt: &startedAt,
		NextRunAt: &nextRun,
		LogFile:   logFile,
		Status:    string(progress.StatusRunning),
	})

	status := w.execute(ctx, logger, t, sessionID)

	w.tracker.CompleteSession(sessionID, status)
	if err := w.sessionLog.WriteLog(sessionID, fmt.Sprintf("Task %s finished with status %s", t.Code, status)); err != nil {
		logger.Warn("Failed to write session log", "error", err)
	}

	w.updateBookkeeping(ctx, logger, t.ID, task.RunBookkeeping{
		LastRunAt: &startedAt,
		NextRunAt: &nextRun,
		LogFile:   logFile,
		Status:    string(status),
	})

	w.publishRunEvent(ctx, logger, t, sessionID, status, startedAt)

	logger.Info("Task run finished", "status", status, "next_run_at", nextRun)
}

// execute dispatches to the registered executor and maps the result onto a
// terminal session status.
func (w *Worker) execute(ctx context.Context, logger *slog.Logger, t *task.ScheduledTask, sessionID string) (status progress.Status) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Task executor panicked", "panic", r)
			w.tracker.AddError(sessionID, "", "executor panicked", fmt.Sprint(r))
			_ = w.sessionLog.WriteLog(sessionID, fmt.Sprintf("Executor panicked: %v", r))
			status = progress.StatusFailed
		}
	}()

	manager, ok := w.registry.Get(t.TaskType)
	if !ok {
		logger.Error("No executor registered for task type")
		w.tracker.AddError(sessionID, "", "unknown task type", t.TaskType)
		_ = w.sessionLog.WriteLog(sessionID, "Configuration error: no executor registered for task type "+t.TaskType)
		return progress.StatusFailed
	}

	if err := manager.Run(ctx, t.Config, sessionID); err != nil {
		logger.Error("Task run failed", "error", err)
		_ = w.sessionLog.WriteLog(sessionID, "Run failed: "+err.Error())
		return progress.StatusFailed
	}

	if snapshot := w.tracker.GetProgress(sessionID); snapshot != nil && snapshot.ErrorCount > 0 {
		return progress.StatusCompletedWithErrors
	}
	return progress.StatusCompleted
}

// updateBookkeeping persists the worker-owned task columns. Bookkeeping
// failures are logged, never fatal: losing a status update must not abort an
// import.
func (w *Worker) updateBookkeeping(ctx context.Context, logger *slog.Logger, id uuid.UUID, bk task.RunBookkeeping) {
	if err := w.tasks.UpdateRunBookkeeping(ctx, id, bk); err != nil {
		logger.Error("Failed to update run bookkeeping", "error", err)
	}
}

func (w *Worker) publishRunEvent(ctx context.Context, logger *slog.Logger, t *task.ScheduledTask, sessionID string, status progress.Status, startedAt time.Time) {
	snapshot := w.tracker.GetProgress(sessionID)
	event := producers.RunEvent{
		TaskID:     t.ID.String(),
		TaskCode:   t.Code,
		TaskType:   t.TaskType,
		SessionID:  sessionID,
		Status:     string(status),
		StartedAt:  startedAt.Format(time.RFC3339Nano),
		FinishedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if snapshot != nil {
		event.Processed = snapshot.Processed
		event.Inserted = snapshot.Inserted
		event.Updated = snapshot.Updated
		event.ErrorCount = snapshot.ErrorCount
	}

	if err := w.events.Publish(ctx, event); err != nil {
		logger.Error("Failed to publish run event", "error", err)
	}
}

// RunNow starts one task immediately, outside its schedule, and returns the
// session id the run reports progress under. Used by the administrative API.
func (w *Worker) RunNow(ctx context.Context, id uuid.UUID) (string, error) {
	t, err := w.tasks.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if !w.markInflight(t.ID) {
		return "", fmt.Errorf("task %s is already running", t.Code)
	}

	sessionID := uuid.New().String()
	startedAt := time.Now().UTC()
	logger := w.logger.With("code", t.Code, "task_type", t.TaskType, "session_id", sessionID)

	w.tracker.CreateSession(sessionID)
	if err := w.sessionLog.WriteLog(sessionID, fmt.Sprintf("Task %s (%s) started manually", t.Code, t.TaskType)); err != nil {
		logger.Warn("Failed to write session log", "error", err)
	}

	// The run outlives the triggering HTTP request, so detach its lifetime
	// from the request context.
	runCtx := context.WithoutCancel(ctx)

	w.wg.Add(1)
	err = w.pool.Submit(func() {
		defer w.wg.Done()
		defer w.clearInflight(t.ID)

		status := w.execute(runCtx, logger, t, sessionID)
		w.tracker.CompleteSession(sessionID, status)
		_ = w.sessionLog.WriteLog(sessionID, fmt.Sprintf("Task %s finished with status %s", t.Code, status))

		// Manual runs update status and log pointer but leave the
		// schedule alone.
		w.updateBookkeeping(runCtx, logger, t.ID, task.RunBookkeeping{
			LastRunAt: &startedAt,
			NextRunAt: t.NextRunAt,
			LogFile:   w.sessionLog.LogFilePath(sessionID),
			Status:    string(status),
		})
		w.publishRunEvent(runCtx, logger, t, sessionID, status, startedAt)
		logger.Info("Manual task run finished", "status", status)
	})
	if err != nil {
		w.wg.Done()
		w.clearInflight(t.ID)
		w.tracker.CompleteSession(sessionID, progress.StatusFailed)
		return "", fmt.Errorf("failed to submit task to run pool: %w", err)
	}

	return sessionID, nil
}
