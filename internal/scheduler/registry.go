// Package scheduler drives periodic imports: a registry maps task types to
// their executors, and a timer-driven worker sweeps the task definitions and
// runs whatever is due.
package scheduler

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// TaskManager executes one type of scheduled task. Implementations report
// progress through the shared tracker under the given session id and return an
// error only when the run as a whole failed; row-level problems are recorded
// as session errors instead.
type TaskManager interface {
	TaskType() string
	Run(ctx context.Context, taskConfig json.RawMessage, sessionID string) error
}

// Registry maps task type names to their executors. Registration is
// last-write-wins so a replacement executor can be swapped in.
type Registry struct {
	mu       sync.RWMutex
	managers map[string]TaskManager
	logger   *slog.Logger
}

// NewRegistry creates an empty task registry
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		managers: make(map[string]TaskManager),
		logger:   logger,
	}
}

// Register adds an executor under its task type, replacing any previous one.
func (r *Registry) Register(m TaskManager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.managers[m.TaskType()]; exists {
		r.logger.Warn("Replacing registered task manager", "task_type", m.TaskType())
	}
	r.managers[m.TaskType()] = m
}

// Get returns the executor for a task type, or false when none is registered.
func (r *Registry) Get(taskType string) (TaskManager, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.managers[taskType]
	return m, ok
}

// Types lists the registered task types
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.managers))
	for t := range r.managers {
		types = append(types, t)
	}
	return types
}
