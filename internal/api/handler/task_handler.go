package handler

import (
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/marketsync-ledger/internal/domain/task"
	"github.com/marketsync-ledger/internal/scheduler"
)

// TaskHandler exposes scheduled task administration: CRUD, enable/disable and
// manual runs.
type TaskHandler struct {
	logger   *slog.Logger
	tasks    task.Repository
	registry *scheduler.Registry
	worker   *scheduler.Worker
}

// NewTaskHandler creates a task administration handler
func NewTaskHandler(logger *slog.Logger, tasks task.Repository, registry *scheduler.Registry, worker *scheduler.Worker) *TaskHandler {
	return &TaskHandler{
		logger:   logger,
		tasks:    tasks,
		registry: registry,
		worker:   worker,
	}
}

// Create handles POST /api/v1/tasks
func (h *TaskHandler) Create(c *gin.Context) {
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request: "+err.Error())
		return
	}

	if _, ok := h.registry.Get(req.TaskType); !ok {
		RespondBadRequest(c, "Unknown task type: "+req.TaskType)
		return
	}

	t := task.NewScheduledTask(req.Code, req.Description, req.TaskType, req.ScheduleCron, req.IsEnabled, req.Config)
	if err := h.tasks.Create(c.Request.Context(), t); err != nil {
		h.logger.Error("Failed to create task", "code", req.Code, "error", err)
		RespondInternalError(c)
		return
	}

	RespondCreated(c, toTaskResponse(t))
}

// List handles GET /api/v1/tasks
func (h *TaskHandler) List(c *gin.Context) {
	tasks, err := h.tasks.List(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list tasks", "error", err)
		RespondInternalError(c)
		return
	}

	responses := make([]*TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		responses = append(responses, toTaskResponse(t))
	}
	RespondOK(c, responses)
}

// GetByID handles GET /api/v1/tasks/:id
func (h *TaskHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondBadRequest(c, "Invalid task ID format")
		return
	}

	t, err := h.tasks.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound{}) {
			RespondNotFound(c, "Task not found")
			return
		}
		h.logger.Error("Failed to get task", "id", id.String(), "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, toTaskResponse(t))
}

// Update handles PUT /api/v1/tasks/:id
func (h *TaskHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondBadRequest(c, "Invalid task ID format")
		return
	}

	var req UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request: "+err.Error())
		return
	}

	if _, ok := h.registry.Get(req.TaskType); !ok {
		RespondBadRequest(c, "Unknown task type: "+req.TaskType)
		return
	}

	t, err := h.tasks.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound{}) {
			RespondNotFound(c, "Task not found")
			return
		}
		h.logger.Error("Failed to get task", "id", id.String(), "error", err)
		RespondInternalError(c)
		return
	}

	t.Code = req.Code
	t.Description = req.Description
	t.TaskType = req.TaskType
	t.ScheduleCron = req.ScheduleCron
	t.IsEnabled = req.IsEnabled
	t.Config = req.Config

	if err := h.tasks.Update(c.Request.Context(), t); err != nil {
		h.logger.Error("Failed to update task", "id", id.String(), "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, toTaskResponse(t))
}

// Toggle handles PATCH /api/v1/tasks/:id/enabled
func (h *TaskHandler) Toggle(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondBadRequest(c, "Invalid task ID format")
		return
	}

	var req ToggleTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request: "+err.Error())
		return
	}

	if err := h.tasks.SetEnabled(c.Request.Context(), id, *req.Enabled); err != nil {
		if errors.Is(err, task.ErrTaskNotFound{}) {
			RespondNotFound(c, "Task not found")
			return
		}
		h.logger.Error("Failed to toggle task", "id", id.String(), "error", err)
		RespondInternalError(c)
		return
	}

	RespondNoContent(c)
}

// Delete handles DELETE /api/v1/tasks/:id
func (h *TaskHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondBadRequest(c, "Invalid task ID format")
		return
	}

	if err := h.tasks.SoftDelete(c.Request.Context(), id); err != nil {
		if errors.Is(err, task.ErrTaskNotFound{}) {
			RespondNotFound(c, "Task not found")
			return
		}
		h.logger.Error("Failed to delete task", "id", id.String(), "error", err)
		RespondInternalError(c)
		return
	}

	RespondNoContent(c)
}

// RunNow handles POST /api/v1/tasks/:id/run. It starts the task outside its
// schedule and returns the session id to poll progress under.
func (h *TaskHandler) RunNow(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondBadRequest(c, "Invalid task ID format")
		return
	}

	sessionID, err := h.worker.RunNow(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound{}) {
			RespondNotFound(c, "Task not found")
			return
		}
		h.logger.Error("Failed to start task", "id", id.String(), "error", err)
		RespondConflict(c, err.Error())
		return
	}

	RespondAccepted(c, &RunNowResponse{SessionID: sessionID})
}
