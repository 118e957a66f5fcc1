package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samuelogino/taskpay/internal/database"
	"github.com/samuelogino/taskpay/internal/models"
	"github.com/shopspring/decimal"
)

type WalletRepository interface {
	Ensure(ctx context.Context, memberID string, currency string) (models.Wallet, error)
	FindByMember(ctx context.Context, memberID string) (models.Wallet, error)
	UpdateBalance(ctx context.Context, id string, balance decimal.Decimal) error
}

type SQLiteWalletRepository struct {
	database database.DBTX
}

func NewWalletRepository(db database.DBTX) *SQLiteWalletRepository {
	return &SQLiteWalletRepository{database: db}
}

// Ensure returns the member's wallet, creating an empty one first if the
// member has none.
func (repository *SQLiteWalletRepository) Ensure(ctx context.Context, memberID string, currency string) (models.Wallet, error) {
	_, err := repository.database.ExecContext(ctx,
		`INSERT INTO wallets (id, member_id, balance, currency) VALUES (?, ?, ?, ?)
		ON CONFLICT(member_id) DO NOTHING`,
		uuid.New().String(), memberID, decimal.Zero, currency,
	)
	if err != nil {
		return models.Wallet{}, fmt.Errorf("ensuring wallet: %w", err)
	}
	return repository.FindByMember(ctx, memberID)
}

func (repository *SQLiteWalletRepository) FindByMember(ctx context.Context, memberID string) (models.Wallet, error) {
	var wallet models.Wallet
	err := repository.database.QueryRowContext(ctx,
		"SELECT id, member_id, balance, currency FROM wallets WHERE member_id = ?", memberID,
	).Scan(&wallet.ID, &wallet.MemberID, &wallet.Balance, &wallet.Currency)
	if err != nil {
		return models.Wallet{}, fmt.Errorf("finding wallet by member: %w", err)
	}
	return wallet, nil
}

func (repository *SQLiteWalletRepository) UpdateBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	_, err := repository.database.ExecContext(ctx,
		"UPDATE wallets SET balance = ? WHERE id = ?", balance.StringFixed(2), id,
	)
	if err != nil {
		return fmt.Errorf("updating wallet balance: %w", err)
	}
	return nil
}

// LedgerRepository is append-only: entries are never updated or removed.
type LedgerRepository interface {
	Append(ctx context.Context, entry models.LedgerEntry) (models.LedgerEntry, error)
	FindRecent(ctx context.Context, walletID string, limit int) ([]models.LedgerEntry, error)
	TotalsByWallet(ctx context.Context, walletID string) (map[models.LedgerKind]decimal.Decimal, error)
	TotalsByFamily(ctx context.Context, familyID string) (map[models.LedgerKind]decimal.Decimal, error)
}

type SQLiteLedgerRepository struct {
	database database.DBTX
}

func NewLedgerRepository(db database.DBTX) *SQLiteLedgerRepository {
	return &SQLiteLedgerRepository{database: db}
}

func (repository *SQLiteLedgerRepository) Append(ctx context.Context, entry models.LedgerEntry) (models.LedgerEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := repository.database.ExecContext(ctx,
		"INSERT INTO ledger_entries (id, wallet_id, kind, amount, description, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		entry.ID, entry.WalletID, entry.Kind, entry.Amount.StringFixed(2), entry.Description, entry.CreatedAt,
	)
	if err != nil {
		return models.LedgerEntry{}, fmt.Errorf("appending ledger entry: %w", err)
	}
	return entry, nil
}

func (repository *SQLiteLedgerRepository) FindRecent(ctx context.Context, walletID string, limit int) ([]models.LedgerEntry, error) {
	rows, err := repository.database.QueryContext(ctx,
		`SELECT id, wallet_id, kind, amount, description, created_at
		FROM ledger_entries WHERE wallet_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, walletID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("finding recent ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var entry models.LedgerEntry
		if err := rows.Scan(&entry.ID, &entry.WalletID, &entry.Kind, &entry.Amount, &entry.Description, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (repository *SQLiteLedgerRepository) TotalsByWallet(ctx context.Context, walletID string) (map[models.LedgerKind]decimal.Decimal, error) {
	rows, err := repository.database.QueryContext(ctx,
		"SELECT kind, amount FROM ledger_entries WHERE wallet_id = ?", walletID,
	)
	if err != nil {
		return nil, fmt.Errorf("totalling wallet ledger: %w", err)
	}
	return sumByKind(rows)
}

func (repository *SQLiteLedgerRepository) TotalsByFamily(ctx context.Context, familyID string) (map[models.LedgerKind]decimal.Decimal, error) {
	rows, err := repository.database.QueryContext(ctx,
		`SELECT l.kind, l.amount FROM ledger_entries l
		JOIN wallets w ON w.id = l.wallet_id
		JOIN members m ON m.id = w.member_id
		WHERE m.family_id = ?`, familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("totalling family ledger: %w", err)
	}
	return sumByKind(rows)
}

// sumByKind adds amounts in Go; amounts are stored as decimal text.
func sumByKind(rows *sql.Rows) (map[models.LedgerKind]decimal.Decimal, error) {
	defer rows.Close()

	totals := make(map[models.LedgerKind]decimal.Decimal)
	for rows.Next() {
		var kind models.LedgerKind
		var amount decimal.Decimal
		if err := rows.Scan(&kind, &amount); err != nil {
			return nil, fmt.Errorf("scanning ledger amount: %w", err)
		}
		totals[kind] = totals[kind].Add(amount)
	}
	return totals, rows.Err()
}
