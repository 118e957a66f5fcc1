package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samuelogino/taskpay/internal/database"
	"github.com/samuelogino/taskpay/internal/models"
)

const (
	OrderByCreatedAtDesc = "t.created_at DESC"
	OrderByDeadlineAsc   = "t.deadline ASC NULLS LAST, t.title ASC"
)

type TaskFilter struct {
	FamilyID     *string
	ExecutorID   *string
	Status       *models.TaskStatus
	WithDeadline bool
	OrderBy      string
}

type TaskRepository interface {
	FindByID(ctx context.Context, id string) (models.Task, error)
	FindAll(ctx context.Context, filter TaskFilter) ([]models.Task, error)
	Create(ctx context.Context, task models.Task) (models.Task, error)
	UpdateStatus(ctx context.Context, id string, status models.TaskStatus) error
}

type SQLiteTaskRepository struct {
	database database.DBTX
}

func NewTaskRepository(db database.DBTX) *SQLiteTaskRepository {
	return &SQLiteTaskRepository{database: db}
}

const taskColumns = `t.id, t.title, t.description, t.base_value, t.status, t.requires_photo,
	t.deadline, t.priority, t.icon, t.creator_id, t.executor_id, t.created_at`

func scanTask(scanner rowScanner) (models.Task, error) {
	var task models.Task
	err := scanner.Scan(
		&task.ID, &task.Title, &task.Description, &task.BaseValue, &task.Status, &task.RequiresPhoto,
		&task.Deadline, &task.Priority, &task.Icon, &task.CreatorID, &task.ExecutorID, &task.CreatedAt,
	)
	return task, err
}

func (repository *SQLiteTaskRepository) FindByID(ctx context.Context, id string) (models.Task, error) {
	task, err := scanTask(repository.database.QueryRowContext(ctx,
		"SELECT "+taskColumns+" FROM tasks t WHERE t.id = ?", id,
	))
	if err != nil {
		return models.Task{}, fmt.Errorf("finding task by id: %w", err)
	}
	return task, nil
}

func (repository *SQLiteTaskRepository) FindAll(ctx context.Context, filter TaskFilter) ([]models.Task, error) {
	query := "SELECT " + taskColumns + " FROM tasks t JOIN members c ON c.id = t.creator_id WHERE 1=1"

	var args []any

	if filter.FamilyID != nil {
		query += " AND c.family_id = ?"
		args = append(args, *filter.FamilyID)
	}
	if filter.ExecutorID != nil {
		query += " AND t.executor_id = ?"
		args = append(args, *filter.ExecutorID)
	}
	if filter.Status != nil {
		query += " AND t.status = ?"
		args = append(args, *filter.Status)
	}
	if filter.WithDeadline {
		query += " AND t.deadline IS NOT NULL"
	}

	orderBy := filter.OrderBy
	if orderBy == "" {
		orderBy = OrderByCreatedAtDesc
	}
	query += " ORDER BY " + orderBy

	rows, err := repository.database.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finding tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (repository *SQLiteTaskRepository) Create(ctx context.Context, task models.Task) (models.Task, error) {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.Status == "" {
		task.Status = models.TaskStatusActive
	}
	task.CreatedAt = time.Now().UTC()

	_, err := repository.database.ExecContext(ctx,
		`INSERT INTO tasks (id, title, description, base_value, status, requires_photo,
			deadline, priority, icon, creator_id, executor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Title, task.Description, task.BaseValue.StringFixed(2), task.Status, task.RequiresPhoto,
		task.Deadline, task.Priority, task.Icon, task.CreatorID, task.ExecutorID, task.CreatedAt,
	)
	if err != nil {
		return models.Task{}, fmt.Errorf("creating task: %w", err)
	}
	return task, nil
}

func (repository *SQLiteTaskRepository) UpdateStatus(ctx context.Context, id string, status models.TaskStatus) error {
	_, err := repository.database.ExecContext(ctx,
		"UPDATE tasks SET status = ? WHERE id = ?", status, id,
	)
	if err != nil {
		return fmt.Errorf("updating task status: %w", err)
	}
	return nil
}
