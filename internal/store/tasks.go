package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dayplanhq/dayplan/internal/model"
)

const taskColumns = `id, title, description, domain, priority, energy,
	estimated_minutes, status, due_at, start_at, end_at, created_at, updated_at`

// UpsertTask inserts or updates a task.
//
// If a task with the same ID exists, its mutable fields are updated and
// created_at is preserved.
func (db *DB) UpsertTask(ctx context.Context, task *model.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	query := `
	INSERT INTO tasks (
		id, title, description, domain, priority, energy,
		estimated_minutes, status, due_at, start_at, end_at,
		created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		description = excluded.description,
		domain = excluded.domain,
		priority = excluded.priority,
		energy = excluded.energy,
		estimated_minutes = excluded.estimated_minutes,
		status = excluded.status,
		due_at = excluded.due_at,
		start_at = excluded.start_at,
		end_at = excluded.end_at,
		updated_at = excluded.updated_at
	`

	_, err := db.conn.ExecContext(ctx, query,
		task.ID,
		task.Title,
		task.Description,
		task.Domain,
		string(task.Priority),
		string(task.Energy),
		task.EstimatedMinutes,
		string(task.Status),
		timeToNullString(task.DueAt),
		timeToNullString(task.StartAt),
		timeToNullString(task.EndAt),
		task.CreatedAt.Format(time.RFC3339),
		task.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert task: %w", err)
	}

	return nil
}

// GetTask retrieves a single task by ID.
// Returns sql.ErrNoRows if the task is not found.
func (db *DB) GetTask(ctx context.Context, id string) (*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`
	row := db.conn.QueryRowContext(ctx, query, id)
	return scanTask(row)
}

// DeleteTask removes a task. Metadata cascades with it.
// Returns nil if the task doesn't exist (idempotent).
func (db *DB) DeleteTask(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return nil
}

// ListTasksFilter configures the ListTasks query.
type ListTasksFilter struct {
	// Status filters by task status (empty = all statuses)
	Status model.Status
	// Priority filters by exact priority (empty = all priorities)
	Priority model.Priority
	// Limit restricts the number of results (0 = no limit)
	Limit int
}

// ListTasks retrieves tasks matching the given filters,
// ordered by created_at ASC.
func (db *DB) ListTasks(ctx context.Context, filter ListTasksFilter) ([]*model.Task, error) {
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Priority != "" {
		conditions = append(conditions, "priority = ?")
		args = append(args, string(filter.Priority))
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// scanner abstracts sql.Row and sql.Rows for the shared scan path.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row scanner) (*model.Task, error) {
	var task model.Task
	var priority, energy, status string
	var description, domain sql.NullString
	var createdAt, updatedAt string
	var dueAt, startAt, endAt sql.NullString

	err := row.Scan(
		&task.ID,
		&task.Title,
		&description,
		&domain,
		&priority,
		&energy,
		&task.EstimatedMinutes,
		&status,
		&dueAt,
		&startAt,
		&endAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Description = description.String
	task.Domain = domain.String
	task.Priority = model.Priority(priority)
	task.Energy = model.Energy(energy)
	task.Status = model.Status(status)

	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		task.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		task.UpdatedAt = t
	}

	task.DueAt = nullStringToTime(dueAt)
	task.StartAt = nullStringToTime(startAt)
	task.EndAt = nullStringToTime(endAt)

	return &task, nil
}

func scanTasks(rows *sql.Rows) ([]*model.Task, error) {
	var tasks []*model.Task

	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}
