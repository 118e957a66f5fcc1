package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samuelogino/taskpay/internal/database"
	"github.com/samuelogino/taskpay/internal/models"
)

type RedemptionFilter struct {
	FamilyID *string
	MemberID *string
}

type RedemptionRepository interface {
	FindDetailByID(ctx context.Context, id string) (models.RedemptionDetail, error)
	FindDetails(ctx context.Context, filter RedemptionFilter) ([]models.RedemptionDetail, error)
	Create(ctx context.Context, redemption models.Redemption) (models.Redemption, error)
	TransitionFromPending(ctx context.Context, id string, status models.RedemptionStatus) (bool, error)
	SumXPPaid(ctx context.Context, memberID string, status models.RedemptionStatus) (int, error)
}

type SQLiteRedemptionRepository struct {
	database database.DBTX
}

func NewRedemptionRepository(db database.DBTX) *SQLiteRedemptionRepository {
	return &SQLiteRedemptionRepository{database: db}
}

const redemptionDetailSelect = `SELECT x.id, x.reward_id, x.member_id, x.xp_paid, x.status, x.created_at,
		r.title, u.name, m.family_id, m.user_id
	FROM redemptions x
	JOIN rewards r ON r.id = x.reward_id
	JOIN members m ON m.id = x.member_id
	JOIN users u ON u.id = m.user_id`

func scanRedemptionDetail(scanner rowScanner) (models.RedemptionDetail, error) {
	var detail models.RedemptionDetail
	err := scanner.Scan(
		&detail.ID, &detail.RewardID, &detail.MemberID, &detail.XPPaid, &detail.Status, &detail.CreatedAt,
		&detail.RewardTitle, &detail.MemberName, &detail.FamilyID, &detail.UserID,
	)
	return detail, err
}

func (repository *SQLiteRedemptionRepository) FindDetailByID(ctx context.Context, id string) (models.RedemptionDetail, error) {
	detail, err := scanRedemptionDetail(repository.database.QueryRowContext(ctx,
		redemptionDetailSelect+" WHERE x.id = ?", id,
	))
	if err != nil {
		return models.RedemptionDetail{}, fmt.Errorf("finding redemption by id: %w", err)
	}
	return detail, nil
}

func (repository *SQLiteRedemptionRepository) FindDetails(ctx context.Context, filter RedemptionFilter) ([]models.RedemptionDetail, error) {
	query := redemptionDetailSelect + " WHERE 1=1"
	var args []any

	if filter.FamilyID != nil {
		query += " AND m.family_id = ?"
		args = append(args, *filter.FamilyID)
	}
	if filter.MemberID != nil {
		query += " AND x.member_id = ?"
		args = append(args, *filter.MemberID)
	}
	query += " ORDER BY x.created_at DESC"

	rows, err := repository.database.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finding redemptions: %w", err)
	}
	defer rows.Close()

	var details []models.RedemptionDetail
	for rows.Next() {
		detail, err := scanRedemptionDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning redemption: %w", err)
		}
		details = append(details, detail)
	}
	return details, rows.Err()
}

func (repository *SQLiteRedemptionRepository) Create(ctx context.Context, redemption models.Redemption) (models.Redemption, error) {
	if redemption.ID == "" {
		redemption.ID = uuid.New().String()
	}
	if redemption.Status == "" {
		redemption.Status = models.RedemptionPending
	}
	if redemption.CreatedAt.IsZero() {
		redemption.CreatedAt = time.Now().UTC()
	}

	_, err := repository.database.ExecContext(ctx,
		"INSERT INTO redemptions (id, reward_id, member_id, xp_paid, status, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		redemption.ID, redemption.RewardID, redemption.MemberID, redemption.XPPaid, redemption.Status, redemption.CreatedAt,
	)
	if err != nil {
		return models.Redemption{}, fmt.Errorf("creating redemption: %w", err)
	}
	return redemption, nil
}

// TransitionFromPending moves a PENDING redemption to status. It reports
// false when the redemption had already left PENDING.
func (repository *SQLiteRedemptionRepository) TransitionFromPending(ctx context.Context, id string, status models.RedemptionStatus) (bool, error) {
	result, err := repository.database.ExecContext(ctx,
		"UPDATE redemptions SET status = ? WHERE id = ? AND status = ?",
		status, id, models.RedemptionPending,
	)
	if err != nil {
		return false, fmt.Errorf("updating redemption status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking redemption status: %w", err)
	}
	return affected == 1, nil
}

func (repository *SQLiteRedemptionRepository) SumXPPaid(ctx context.Context, memberID string, status models.RedemptionStatus) (int, error) {
	var total int
	err := repository.database.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(xp_paid), 0) FROM redemptions WHERE member_id = ? AND status = ?",
		memberID, status,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("summing redeemed xp: %w", err)
	}
	return total, nil
}
