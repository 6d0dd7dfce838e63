// Package task holds scheduled task definitions: the durable description of
// what to import, how often, and how the last run went.
package task

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ScheduledTask is a persisted schedule entry. The code, description, type,
// cron expression, enabled flag and config are operator-owned; the run
// bookkeeping fields are written only by the worker.
type ScheduledTask struct {
	ID           uuid.UUID       `json:"id"`
	Code         string          `json:"code"`
	Description  string          `json:"description"`
	TaskType     string          `json:"task_type"`
	ScheduleCron string          `json:"schedule_cron,omitempty"`
	IsEnabled    bool            `json:"is_enabled"`
	Config       json.RawMessage `json:"config"`

	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	LastRunLogFile string     `json:"last_run_log_file,omitempty"`
	LastRunStatus  string     `json:"last_run_status,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	IsDeleted bool      `json:"-"`
}

// NewScheduledTask builds a task definition ready for insertion.
func NewScheduledTask(code, description, taskType, scheduleCron string, isEnabled bool, config json.RawMessage) *ScheduledTask {
	now := time.Now().UTC()
	return &ScheduledTask{
		ID:           uuid.New(),
		Code:         code,
		Description:  description,
		TaskType:     taskType,
		ScheduleCron: scheduleCron,
		IsEnabled:    isEnabled,
		Config:       config,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsDue reports whether the task should run now. An unset NextRunAt means the
// task has never been scheduled and runs on the next sweep.
func (t *ScheduledTask) IsDue(now time.Time) bool {
	if t.NextRunAt == nil {
		return true
	}
	return !t.NextRunAt.After(now)
}

// RunBookkeeping is the slice of a task definition the worker owns.
type RunBookkeeping struct {
	LastRunAt *time.Time
	NextRunAt *time.Time
	LogFile   string
	Status    string
}

// Repository manages scheduled task persistence. UpdateRunBookkeeping touches
// only the worker-owned columns so administrative edits are never clobbered.
type Repository interface {
	Create(ctx context.Context, t *ScheduledTask) error
	Update(ctx context.Context, t *ScheduledTask) error
	GetByID(ctx context.Context, id uuid.UUID) (*ScheduledTask, error)
	List(ctx context.Context) ([]*ScheduledTask, error)
	ListEnabled(ctx context.Context) ([]*ScheduledTask, error)
	SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	UpdateRunBookkeeping(ctx context.Context, id uuid.UUID, bk RunBookkeeping) error
}

// ErrTaskNotFound indicates a missing task definition
type ErrTaskNotFound struct {
	TaskID uuid.UUID
}

func (e ErrTaskNotFound) Error() string {
	return "scheduled task not found: " + e.TaskID.String()
}

// Is implements the errors.Is interface for ErrTaskNotFound
func (e ErrTaskNotFound) Is(target error) bool {
	t, ok := target.(ErrTaskNotFound)
	if !ok {
		return false
	}
	return t.TaskID == uuid.Nil || t.TaskID == e.TaskID
}
