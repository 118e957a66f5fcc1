package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/samuelogino/taskpay/internal/database"
	"github.com/samuelogino/taskpay/internal/models"
)

type ProgressRepository interface {
	Ensure(ctx context.Context, memberID string) (models.Progress, error)
	FindByMember(ctx context.Context, memberID string) (models.Progress, error)
	Update(ctx context.Context, progress models.Progress) error
}

type SQLiteProgressRepository struct {
	database database.DBTX
}

func NewProgressRepository(db database.DBTX) *SQLiteProgressRepository {
	return &SQLiteProgressRepository{database: db}
}

func (repository *SQLiteProgressRepository) Ensure(ctx context.Context, memberID string) (models.Progress, error) {
	_, err := repository.database.ExecContext(ctx,
		`INSERT INTO progress (id, member_id, level_xp, cumulative_xp, level) VALUES (?, ?, 0, 0, 1)
		ON CONFLICT(member_id) DO NOTHING`,
		uuid.New().String(), memberID,
	)
	if err != nil {
		return models.Progress{}, fmt.Errorf("ensuring progress: %w", err)
	}
	return repository.FindByMember(ctx, memberID)
}

func (repository *SQLiteProgressRepository) FindByMember(ctx context.Context, memberID string) (models.Progress, error) {
	var progress models.Progress
	err := repository.database.QueryRowContext(ctx,
		"SELECT id, member_id, level_xp, cumulative_xp, level, last_task_at FROM progress WHERE member_id = ?", memberID,
	).Scan(&progress.ID, &progress.MemberID, &progress.LevelXP, &progress.CumulativeXP, &progress.Level, &progress.LastTaskAt)
	if err != nil {
		return models.Progress{}, fmt.Errorf("finding progress by member: %w", err)
	}
	return progress, nil
}

func (repository *SQLiteProgressRepository) Update(ctx context.Context, progress models.Progress) error {
	_, err := repository.database.ExecContext(ctx,
		"UPDATE progress SET level_xp = ?, cumulative_xp = ?, level = ?, last_task_at = ? WHERE id = ?",
		progress.LevelXP, progress.CumulativeXP, progress.Level, progress.LastTaskAt, progress.ID,
	)
	if err != nil {
		return fmt.Errorf("updating progress: %w", err)
	}
	return nil
}
