package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/marketsync-ledger/internal/domain/task"
	"github.com/marketsync-ledger/internal/platform/persistence"
)

// TaskRepository implements the task.Repository interface for PostgreSQL
type TaskRepository struct {
	db     persistence.Querier
	logger *slog.Logger
}

// NewTaskRepository creates a new PostgreSQL scheduled task repository
func NewTaskRepository(logger *slog.Logger, db *persistence.PostgresDB) task.Repository {
	return &TaskRepository{
		db:     db.Pool(),
		logger: logger,
	}
}

const taskColumns = `
	id, code, description, task_type, schedule_cron, is_enabled, config,
	last_run_at, next_run_at, last_run_log_file, last_run_status,
	created_at, updated_at, is_deleted
`

// Create stores a new task definition. A duplicate code is rejected by the
// unique constraint on the table.
func (r *TaskRepository) Create(ctx context.Context, t *task.ScheduledTask) error {
	query := `
		INSERT INTO scheduled_tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.db.Exec(ctx, query,
		t.ID,
		t.Code,
		t.Description,
		t.TaskType,
		t.ScheduleCron,
		t.IsEnabled,
		t.Config,
		t.LastRunAt,
		t.NextRunAt,
		t.LastRunLogFile,
		t.LastRunStatus,
		t.CreatedAt,
		t.UpdatedAt,
		t.IsDeleted,
	)
	if err != nil {
		r.logger.Error("Failed to create scheduled task", "code", t.Code, "error", err)
		return fmt.Errorf("failed to create scheduled task: %w", err)
	}

	return nil
}

// Update rewrites the operator-owned fields of a task definition. Run
// bookkeeping is deliberately not touched here.
func (r *TaskRepository) Update(ctx context.Context, t *task.ScheduledTask) error {
	query := `
		UPDATE scheduled_tasks
		SET code = $1, description = $2, task_type = $3, schedule_cron = $4,
		    is_enabled = $5, config = $6, updated_at = $7
		WHERE id = $8 AND is_deleted = FALSE
	`

	result, err := r.db.Exec(ctx, query,
		t.Code,
		t.Description,
		t.TaskType,
		t.ScheduleCron,
		t.IsEnabled,
		t.Config,
		time.Now().UTC(),
		t.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update scheduled task", "id", t.ID.String(), "error", err)
		return fmt.Errorf("failed to update scheduled task: %w", err)
	}

	if result.RowsAffected() == 0 {
		return task.ErrTaskNotFound{TaskID: t.ID}
	}

	return nil
}

// GetByID retrieves a task definition by its ID
func (r *TaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*task.ScheduledTask, error) {
	query := `SELECT ` + taskColumns + ` FROM scheduled_tasks WHERE id = $1 AND is_deleted = FALSE`

	t, err := r.scanTask(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, task.ErrTaskNotFound{TaskID: id}
		}
		r.logger.Error("Failed to get scheduled task", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get scheduled task: %w", err)
	}

	return t, nil
}

// List retrieves all live task definitions ordered by code
func (r *TaskRepository) List(ctx context.Context) ([]*task.ScheduledTask, error) {
	query := `SELECT ` + taskColumns + ` FROM scheduled_tasks WHERE is_deleted = FALSE ORDER BY code`
	return r.queryTasks(ctx, query)
}

// ListEnabled retrieves the task definitions the worker should consider on a
// sweep
func (r *TaskRepository) ListEnabled(ctx context.Context) ([]*task.ScheduledTask, error) {
	query := `SELECT ` + taskColumns + ` FROM scheduled_tasks WHERE is_deleted = FALSE AND is_enabled = TRUE ORDER BY code`
	return r.queryTasks(ctx, query)
}

func (r *TaskRepository) queryTasks(ctx context.Context, query string) ([]*task.ScheduledTask, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list scheduled tasks", "error", err)
		return nil, fmt.Errorf("failed to list scheduled tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.ScheduledTask
	for rows.Next() {
		t, err := r.scanTask(rows)
		if err != nil {
			r.logger.Error("Failed to scan scheduled task", "error", err)
			return nil, fmt.Errorf("failed to scan scheduled task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read scheduled tasks: %w", err)
	}

	return tasks, nil
}

// SetEnabled toggles a task definition on or off
func (r *TaskRepository) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	query := `
		UPDATE scheduled_tasks
		SET is_enabled = $1, updated_at = NOW()
		WHERE id = $2 AND is_deleted = FALSE
	`

	result, err := r.db.Exec(ctx, query, enabled, id)
	if err != nil {
		r.logger.Error("Failed to toggle scheduled task", "id", id.String(), "error", err)
		return fmt.Errorf("failed to toggle scheduled task: %w", err)
	}

	if result.RowsAffected() == 0 {
		return task.ErrTaskNotFound{TaskID: id}
	}

	return nil
}

// SoftDelete marks a task definition deleted so the worker and listings skip it
func (r *TaskRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE scheduled_tasks
		SET is_deleted = TRUE, updated_at = NOW()
		WHERE id = $1 AND is_deleted = FALSE
	`

	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to soft delete scheduled task", "id", id.String(), "error", err)
		return fmt.Errorf("failed to soft delete scheduled task: %w", err)
	}

	if result.RowsAffected() == 0 {
		return task.ErrTaskNotFound{TaskID: id}
	}

	return nil
}

// UpdateRunBookkeeping writes only the worker-owned columns so a concurrent
// administrative edit of the definition is never overwritten.
func (r *TaskRepository) UpdateRunBookkeeping(ctx context.Context, id uuid.UUID, bk task.RunBookkeeping) error {
	query := `
		UPDATE scheduled_tasks
		SET last_run_at = $1, next_run_at = $2, last_run_log_file = $3, last_run_status = $4, updated_at = NOW()
		WHERE id = $5
	`

	result, err := r.db.Exec(ctx, query,
		bk.LastRunAt,
		bk.NextRunAt,
		bk.LogFile,
		bk.Status,
		id,
	)
	if err != nil {
		r.logger.Error("Failed to update run bookkeeping", "id", id.String(), "error", err)
		return fmt.Errorf("failed to update run bookkeeping: %w", err)
	}

	if result.RowsAffected() == 0 {
		return task.ErrTaskNotFound{TaskID: id}
	}

	return nil
}

func (r *TaskRepository) scanTask(row pgx.Row) (*task.ScheduledTask, error) {
	var t task.ScheduledTask
	err := row.Scan(
		&t.ID,
		&t.Code,
		&t.Description,
		&t.TaskType,
		&t.ScheduleCron,
		&t.IsEnabled,
		&t.Config,
		&t.LastRunAt,
		&t.NextRunAt,
		&t.LastRunLogFile,
		&t.LastRunStatus,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.IsDeleted,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
