package handler

import (
	"encoding/json"
	"time"

	"github.com/marketsync-ledger/internal/domain/task"
)

// CreateTaskRequest is the payload for creating a scheduled task definition
type CreateTaskRequest struct {
	Code         string          `json:"code" binding:"required"`
	Description  string          `json:"description"`
	TaskType     string          `json:"task_type" binding:"required"`
	ScheduleCron string          `json:"schedule_cron"`
	IsEnabled    bool            `json:"is_enabled"`
	Config       json.RawMessage `json:"config" binding:"required"`
}

// UpdateTaskRequest is the payload for editing a task definition. Run
// bookkeeping is not editable through the API.
type UpdateTaskRequest struct {
	Code         string          `json:"code" binding:"required"`
	Description  string          `json:"description"`
	TaskType     string          `json:"task_type" binding:"required"`
	ScheduleCron string          `json:"schedule_cron"`
	IsEnabled    bool            `json:"is_enabled"`
	Config       json.RawMessage `json:"config" binding:"required"`
}

// ToggleTaskRequest is the payload for enabling or disabling a task
type ToggleTaskRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// TaskResponse is the outward representation of a task definition
type TaskResponse struct {
	ID             string          `json:"id"`
	Code           string          `json:"code"`
	Description    string          `json:"description"`
	TaskType       string          `json:"task_type"`
	ScheduleCron   string          `json:"schedule_cron,omitempty"`
	IsEnabled      bool            `json:"is_enabled"`
	Config         json.RawMessage `json:"config"`
	LastRunAt      *time.Time      `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time      `json:"next_run_at,omitempty"`
	LastRunLogFile string          `json:"last_run_log_file,omitempty"`
	LastRunStatus  string          `json:"last_run_status,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// RunNowResponse reports the session id a manual run was started under
type RunNowResponse struct {
	SessionID string `json:"session_id"`
}

// SessionLogResponse wraps the downloadable text of a session log
type SessionLogResponse struct {
	SessionID string `json:"session_id"`
	Log       string `json:"log"`
}

func toTaskResponse(t *task.ScheduledTask) *TaskResponse {
	return &TaskResponse{
		ID:             t.ID.String(),
		Code:           t.Code,
		Description:    t.Description,
		TaskType:       t.TaskType,
		ScheduleCron:   t.ScheduleCron,
		IsEnabled:      t.IsEnabled,
		Config:         t.Config,
		LastRunAt:      t.LastRunAt,
		NextRunAt:      t.NextRunAt,
		LastRunLogFile: t.LastRunLogFile,
		LastRunStatus:  t.LastRunStatus,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}
