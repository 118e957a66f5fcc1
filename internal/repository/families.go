package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samuelogino/taskpay/internal/database"
	"github.com/samuelogino/taskpay/internal/models"
)

type FamilyRepository interface {
	FindByID(ctx context.Context, id string) (models.Family, error)
	Create(ctx context.Context, family models.Family) (models.Family, error)
	UpdatePlan(ctx context.Context, id string, plan models.Plan) error
}

type SQLiteFamilyRepository struct {
	database database.DBTX
}

func NewFamilyRepository(db database.DBTX) *SQLiteFamilyRepository {
	return &SQLiteFamilyRepository{database: db}
}

func (repository *SQLiteFamilyRepository) FindByID(ctx context.Context, id string) (models.Family, error) {
	var family models.Family
	err := repository.database.QueryRowContext(ctx,
		"SELECT id, name, plan, created_at FROM families WHERE id = ?", id,
	).Scan(&family.ID, &family.Name, &family.Plan, &family.CreatedAt)
	if err != nil {
		return models.Family{}, fmt.Errorf("finding family by id: %w", err)
	}
	return family, nil
}

func (repository *SQLiteFamilyRepository) Create(ctx context.Context, family models.Family) (models.Family, error) {
	if family.ID == "" {
		family.ID = uuid.New().String()
	}
	if family.Plan == "" {
		family.Plan = models.PlanFree
	}
	family.CreatedAt = time.Now().UTC()

	_, err := repository.database.ExecContext(ctx,
		"INSERT INTO families (id, name, plan, created_at) VALUES (?, ?, ?, ?)",
		family.ID, family.Name, family.Plan, family.CreatedAt,
	)
	if err != nil {
		return models.Family{}, fmt.Errorf("creating family: %w", err)
	}
	return family, nil
}

func (repository *SQLiteFamilyRepository) UpdatePlan(ctx context.Context, id string, plan models.Plan) error {
	_, err := repository.database.ExecContext(ctx,
		"UPDATE families SET plan = ? WHERE id = ?", plan, id,
	)
	if err != nil {
		return fmt.Errorf("updating family plan: %w", err)
	}
	return nil
}
