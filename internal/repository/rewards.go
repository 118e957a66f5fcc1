package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samuelogino/taskpay/internal/database"
	"github.com/samuelogino/taskpay/internal/models"
)

type RewardRepository interface {
	FindByID(ctx context.Context, id string) (models.Reward, error)
	FindAvailable(ctx context.Context, familyID string) ([]models.Reward, error)
	FindAvailableNewest(ctx context.Context, familyID string) ([]models.Reward, error)
	IsAvailable(ctx context.Context, id string) (bool, error)
	Create(ctx context.Context, reward models.Reward) (models.Reward, error)
}

type SQLiteRewardRepository struct {
	database database.DBTX
}

func NewRewardRepository(db database.DBTX) *SQLiteRewardRepository {
	return &SQLiteRewardRepository{database: db}
}

const rewardColumns = "r.id, r.family_id, r.title, r.description, r.cost_xp, r.active, r.creator_id, r.created_at"

// A reward is available while it is active and nobody in its family has
// redeemed it, whatever the redemption's status.
const rewardAvailable = `r.active = 1 AND NOT EXISTS (
		SELECT 1 FROM redemptions x
		JOIN members m ON m.id = x.member_id
		WHERE x.reward_id = r.id AND m.family_id = r.family_id
	)`

func scanReward(scanner rowScanner) (models.Reward, error) {
	var reward models.Reward
	err := scanner.Scan(
		&reward.ID, &reward.FamilyID, &reward.Title, &reward.Description, &reward.CostXP,
		&reward.Active, &reward.CreatorID, &reward.CreatedAt,
	)
	return reward, err
}

func (repository *SQLiteRewardRepository) FindByID(ctx context.Context, id string) (models.Reward, error) {
	reward, err := scanReward(repository.database.QueryRowContext(ctx,
		"SELECT "+rewardColumns+" FROM rewards r WHERE r.id = ?", id,
	))
	if err != nil {
		return models.Reward{}, fmt.Errorf("finding reward by id: %w", err)
	}
	return reward, nil
}

// FindAvailable lists the family's available rewards, cheapest first.
func (repository *SQLiteRewardRepository) FindAvailable(ctx context.Context, familyID string) ([]models.Reward, error) {
	return repository.findAvailable(ctx, familyID, "r.cost_xp ASC, r.title ASC")
}

// FindAvailableNewest lists the same rewards, most recently created first.
func (repository *SQLiteRewardRepository) FindAvailableNewest(ctx context.Context, familyID string) ([]models.Reward, error) {
	return repository.findAvailable(ctx, familyID, "r.created_at DESC, r.title ASC")
}

func (repository *SQLiteRewardRepository) findAvailable(ctx context.Context, familyID string, order string) ([]models.Reward, error) {
	rows, err := repository.database.QueryContext(ctx,
		"SELECT "+rewardColumns+" FROM rewards r WHERE r.family_id = ? AND "+rewardAvailable+
			" ORDER BY "+order, familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("finding available rewards: %w", err)
	}
	defer rows.Close()

	var rewards []models.Reward
	for rows.Next() {
		reward, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning reward: %w", err)
		}
		rewards = append(rewards, reward)
	}
	return rewards, rows.Err()
}

func (repository *SQLiteRewardRepository) IsAvailable(ctx context.Context, id string) (bool, error) {
	var count int
	err := repository.database.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM rewards r WHERE r.id = ? AND "+rewardAvailable, id,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking reward availability: %w", err)
	}
	return count == 1, nil
}

func (repository *SQLiteRewardRepository) Create(ctx context.Context, reward models.Reward) (models.Reward, error) {
	if reward.ID == "" {
		reward.ID = uuid.New().String()
	}
	reward.Active = true
	reward.CreatedAt = time.Now().UTC()

	_, err := repository.database.ExecContext(ctx,
		`INSERT INTO rewards (id, family_id, title, description, cost_xp, active, creator_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		reward.ID, reward.FamilyID, reward.Title, reward.Description, reward.CostXP,
		reward.Active, reward.CreatorID, reward.CreatedAt,
	)
	if err != nil {
		return models.Reward{}, fmt.Errorf("creating reward: %w", err)
	}
	return reward, nil
}
