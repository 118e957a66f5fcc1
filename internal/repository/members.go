package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samuelogino/taskpay/internal/database"
	"github.com/samuelogino/taskpay/internal/models"
)

type MemberRepository interface {
	FindByID(ctx context.Context, id string) (models.Member, error)
	FindByUserAndRole(ctx context.Context, userID string, role models.Role) (models.Member, error)
	FindByUser(ctx context.Context, userID string) ([]models.Member, error)
	FindByFamily(ctx context.Context, familyID string, role models.Role) ([]models.Member, error)
	Create(ctx context.Context, member models.Member) (models.Member, error)
	AddXP(ctx context.Context, id string, amount int) error
	SpendXP(ctx context.Context, id string, amount int) (bool, error)
}

type SQLiteMemberRepository struct {
	database database.DBTX
}

func NewMemberRepository(db database.DBTX) *SQLiteMemberRepository {
	return &SQLiteMemberRepository{database: db}
}

const memberSelect = `SELECT m.id, m.user_id, m.family_id, m.role, m.xp_balance, m.joined_at,
		u.name, u.email, u.avatar_url
	FROM members m JOIN users u ON u.id = m.user_id`

func scanMember(scanner rowScanner) (models.Member, error) {
	var member models.Member
	err := scanner.Scan(
		&member.ID, &member.UserID, &member.FamilyID, &member.Role, &member.XPBalance, &member.JoinedAt,
		&member.Name, &member.Email, &member.AvatarURL,
	)
	return member, err
}

func (repository *SQLiteMemberRepository) FindByID(ctx context.Context, id string) (models.Member, error) {
	member, err := scanMember(repository.database.QueryRowContext(ctx, memberSelect+" WHERE m.id = ?", id))
	if err != nil {
		return models.Member{}, fmt.Errorf("finding member by id: %w", err)
	}
	return member, nil
}

func (repository *SQLiteMemberRepository) FindByUserAndRole(ctx context.Context, userID string, role models.Role) (models.Member, error) {
	member, err := scanMember(repository.database.QueryRowContext(ctx,
		memberSelect+" WHERE m.user_id = ? AND m.role = ?", userID, role,
	))
	if err != nil {
		return models.Member{}, fmt.Errorf("finding member by user and role: %w", err)
	}
	return member, nil
}

func (repository *SQLiteMemberRepository) FindByUser(ctx context.Context, userID string) ([]models.Member, error) {
	rows, err := repository.database.QueryContext(ctx,
		memberSelect+" WHERE m.user_id = ? ORDER BY m.role DESC", userID,
	)
	if err != nil {
		return nil, fmt.Errorf("finding members by user: %w", err)
	}
	return collectMembers(rows)
}

// FindByFamily lists the family's members holding role, ordered by name.
func (repository *SQLiteMemberRepository) FindByFamily(ctx context.Context, familyID string, role models.Role) ([]models.Member, error) {
	rows, err := repository.database.QueryContext(ctx,
		memberSelect+" WHERE m.family_id = ? AND m.role = ? ORDER BY u.name", familyID, role,
	)
	if err != nil {
		return nil, fmt.Errorf("finding members by family: %w", err)
	}
	return collectMembers(rows)
}

func collectMembers(rows *sql.Rows) ([]models.Member, error) {
	defer rows.Close()

	var members []models.Member
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning member: %w", err)
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

func (repository *SQLiteMemberRepository) Create(ctx context.Context, member models.Member) (models.Member, error) {
	if member.ID == "" {
		member.ID = uuid.New().String()
	}
	member.JoinedAt = time.Now().UTC()

	_, err := repository.database.ExecContext(ctx,
		"INSERT INTO members (id, user_id, family_id, role, xp_balance, joined_at) VALUES (?, ?, ?, ?, ?, ?)",
		member.ID, member.UserID, member.FamilyID, member.Role, member.XPBalance, member.JoinedAt,
	)
	if err != nil {
		return models.Member{}, fmt.Errorf("creating member: %w", err)
	}
	return member, nil
}

func (repository *SQLiteMemberRepository) AddXP(ctx context.Context, id string, amount int) error {
	_, err := repository.database.ExecContext(ctx,
		"UPDATE members SET xp_balance = xp_balance + ? WHERE id = ?", amount, id,
	)
	if err != nil {
		return fmt.Errorf("adding member xp: %w", err)
	}
	return nil
}

// SpendXP deducts amount only when the balance covers it. It reports false
// when the balance was too low and nothing changed.
func (repository *SQLiteMemberRepository) SpendXP(ctx context.Context, id string, amount int) (bool, error) {
	result, err := repository.database.ExecContext(ctx,
		"UPDATE members SET xp_balance = xp_balance - ? WHERE id = ? AND xp_balance >= ?",
		amount, id, amount,
	)
	if err != nil {
		return false, fmt.Errorf("spending member xp: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking spent xp: %w", err)
	}
	return affected == 1, nil
}
