package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samuelogino/taskpay/internal/database"
	"github.com/samuelogino/taskpay/internal/models"
	"github.com/shopspring/decimal"
)

type SubmissionFilter struct {
	FamilyID   *string
	ExecutorID *string
	Status     *models.SubmissionStatus
	Limit      int
}

type SubmissionRepository interface {
	FindByID(ctx context.Context, id string) (models.Submission, error)
	FindByTask(ctx context.Context, taskID string) (models.Submission, error)
	FindDetails(ctx context.Context, filter SubmissionFilter) ([]models.SubmissionDetail, error)
	Upsert(ctx context.Context, submission models.Submission) (models.Submission, error)
	MarkApproved(ctx context.Context, id string, value decimal.Decimal, approvedAt time.Time) (bool, error)
	MarkRejected(ctx context.Context, id string) (bool, error)
	ApprovedTimes(ctx context.Context, executorID string) ([]time.Time, error)
	CountByStatus(ctx context.Context, executorID string, status models.SubmissionStatus) (int, error)
	SumValueByStatus(ctx context.Context, executorID string, status models.SubmissionStatus) (decimal.Decimal, error)
}

type SQLiteSubmissionRepository struct {
	database database.DBTX
}

func NewSubmissionRepository(db database.DBTX) *SQLiteSubmissionRepository {
	return &SQLiteSubmissionRepository{database: db}
}

const submissionColumns = "s.id, s.task_id, s.status, s.note, s.photo_url, s.submitted_at, s.approved_at, s.approved_value"

func scanSubmission(scanner rowScanner, extra ...any) (models.Submission, error) {
	var submission models.Submission
	var approvedValue decimal.NullDecimal
	dest := []any{
		&submission.ID, &submission.TaskID, &submission.Status, &submission.Note, &submission.PhotoURL,
		&submission.SubmittedAt, &submission.ApprovedAt, &approvedValue,
	}
	if err := scanner.Scan(append(dest, extra...)...); err != nil {
		return models.Submission{}, err
	}
	if approvedValue.Valid {
		submission.ApprovedValue = &approvedValue.Decimal
	}
	return submission, nil
}

func (repository *SQLiteSubmissionRepository) FindByID(ctx context.Context, id string) (models.Submission, error) {
	submission, err := scanSubmission(repository.database.QueryRowContext(ctx,
		"SELECT "+submissionColumns+" FROM submissions s WHERE s.id = ?", id,
	))
	if err != nil {
		return models.Submission{}, fmt.Errorf("finding submission by id: %w", err)
	}
	return submission, nil
}

func (repository *SQLiteSubmissionRepository) FindByTask(ctx context.Context, taskID string) (models.Submission, error) {
	submission, err := scanSubmission(repository.database.QueryRowContext(ctx,
		"SELECT "+submissionColumns+" FROM submissions s WHERE s.task_id = ?", taskID,
	))
	if err != nil {
		return models.Submission{}, fmt.Errorf("finding submission by task: %w", err)
	}
	return submission, nil
}

// FindDetails lists submissions joined with task and executor, newest first.
func (repository *SQLiteSubmissionRepository) FindDetails(ctx context.Context, filter SubmissionFilter) ([]models.SubmissionDetail, error) {
	query := "SELECT " + submissionColumns + `, t.title, t.icon, t.base_value, e.id, u.name
		FROM submissions s
		JOIN tasks t ON t.id = s.task_id
		JOIN members e ON e.id = t.executor_id
		JOIN users u ON u.id = e.user_id
		WHERE 1=1`

	var args []any

	if filter.FamilyID != nil {
		query += " AND e.family_id = ?"
		args = append(args, *filter.FamilyID)
	}
	if filter.ExecutorID != nil {
		query += " AND e.id = ?"
		args = append(args, *filter.ExecutorID)
	}
	if filter.Status != nil {
		query += " AND s.status = ?"
		args = append(args, *filter.Status)
	}
	query += " ORDER BY s.submitted_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := repository.database.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finding submission details: %w", err)
	}
	defer rows.Close()

	var details []models.SubmissionDetail
	for rows.Next() {
		var detail models.SubmissionDetail
		submission, err := scanSubmission(rows,
			&detail.TaskTitle, &detail.TaskIcon, &detail.TaskValue, &detail.ExecutorID, &detail.ExecutorName,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning submission detail: %w", err)
		}
		detail.Submission = submission
		details = append(details, detail)
	}
	return details, rows.Err()
}

// Upsert files a submission for its task. A task has at most one
// submission row, so re-filing resets the existing row to PENDING.
func (repository *SQLiteSubmissionRepository) Upsert(ctx context.Context, submission models.Submission) (models.Submission, error) {
	if submission.SubmittedAt.IsZero() {
		submission.SubmittedAt = time.Now().UTC()
	}

	_, err := repository.database.ExecContext(ctx,
		`INSERT INTO submissions (id, task_id, status, note, photo_url, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			status = excluded.status,
			note = excluded.note,
			photo_url = excluded.photo_url,
			submitted_at = excluded.submitted_at,
			approved_at = NULL,
			approved_value = NULL`,
		uuid.New().String(), submission.TaskID, models.SubmissionPending, submission.Note, submission.PhotoURL, submission.SubmittedAt,
	)
	if err != nil {
		return models.Submission{}, fmt.Errorf("upserting submission: %w", err)
	}
	return repository.FindByTask(ctx, submission.TaskID)
}

// MarkApproved reports false when the submission was already approved.
func (repository *SQLiteSubmissionRepository) MarkApproved(ctx context.Context, id string, value decimal.Decimal, approvedAt time.Time) (bool, error) {
	result, err := repository.database.ExecContext(ctx,
		"UPDATE submissions SET status = ?, approved_at = ?, approved_value = ? WHERE id = ? AND status <> ?",
		models.SubmissionApproved, approvedAt, value.StringFixed(2), id, models.SubmissionApproved,
	)
	if err != nil {
		return false, fmt.Errorf("approving submission: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking approved submission: %w", err)
	}
	return affected == 1, nil
}

// MarkRejected reports false when the submission was already approved or rejected.
func (repository *SQLiteSubmissionRepository) MarkRejected(ctx context.Context, id string) (bool, error) {
	result, err := repository.database.ExecContext(ctx,
		"UPDATE submissions SET status = ? WHERE id = ? AND status NOT IN (?, ?)",
		models.SubmissionRejected, id, models.SubmissionApproved, models.SubmissionRejected,
	)
	if err != nil {
		return false, fmt.Errorf("rejecting submission: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rejected submission: %w", err)
	}
	return affected == 1, nil
}

func (repository *SQLiteSubmissionRepository) ApprovedTimes(ctx context.Context, executorID string) ([]time.Time, error) {
	rows, err := repository.database.QueryContext(ctx,
		`SELECT s.approved_at FROM submissions s
		JOIN tasks t ON t.id = s.task_id
		WHERE t.executor_id = ? AND s.status = ? AND s.approved_at IS NOT NULL`,
		executorID, models.SubmissionApproved,
	)
	if err != nil {
		return nil, fmt.Errorf("finding approval times: %w", err)
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var approvedAt time.Time
		if err := rows.Scan(&approvedAt); err != nil {
			return nil, fmt.Errorf("scanning approval time: %w", err)
		}
		times = append(times, approvedAt)
	}
	return times, rows.Err()
}

func (repository *SQLiteSubmissionRepository) CountByStatus(ctx context.Context, executorID string, status models.SubmissionStatus) (int, error) {
	var count int
	err := repository.database.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM submissions s JOIN tasks t ON t.id = s.task_id
		WHERE t.executor_id = ? AND s.status = ?`, executorID, status,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting submissions: %w", err)
	}
	return count, nil
}

// SumValueByStatus totals the task values of the executor's submissions in
// the given status.
func (repository *SQLiteSubmissionRepository) SumValueByStatus(ctx context.Context, executorID string, status models.SubmissionStatus) (decimal.Decimal, error) {
	rows, err := repository.database.QueryContext(ctx,
		`SELECT t.base_value FROM submissions s JOIN tasks t ON t.id = s.task_id
		WHERE t.executor_id = ? AND s.status = ?`, executorID, status,
	)
	if err != nil {
		return decimal.Zero, fmt.Errorf("summing submission values: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var value decimal.Decimal
		if err := rows.Scan(&value); err != nil {
			return decimal.Zero, fmt.Errorf("scanning submission value: %w", err)
		}
		total = total.Add(value)
	}
	return total, rows.Err()
}
