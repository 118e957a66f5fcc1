package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/samuelogino/taskpay/internal/database"
	"github.com/samuelogino/taskpay/internal/models"
	"github.com/samuelogino/taskpay/internal/repository"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount        = errors.New("amount must be a positive number")
	ErrAmountExceedsBalance = errors.New("amount exceeds wallet balance")
)

const recentLedgerEntries = 10

// Statement summarizes a child's wallet for the parent's detail page.
type Statement struct {
	Child       models.Member
	Wallet      models.Wallet
	TotalEarned decimal.Decimal
	TotalPaid   decimal.Decimal
	Recent      []models.LedgerEntry
}

type WalletService struct {
	database *sql.DB
	notifier *Notifier
	currency string
	now      func() time.Time
}

func NewWalletService(db *sql.DB, notifier *Notifier, currency string) *WalletService {
	return &WalletService{
		database: db,
		notifier: notifier,
		currency: currency,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// FormatMoney renders an amount with two decimals.
func FormatMoney(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

// ParsePositiveAmount is the strict counterpart of ParseMoney used for
// payouts: anything other than a positive number is ErrInvalidAmount.
func ParsePositiveAmount(raw string) (decimal.Decimal, error) {
	amount, err := parseAmount(raw)
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return amount, nil
}

func creditWallet(ctx context.Context, transaction *sql.Tx, memberID string, currency string, kind models.LedgerKind, amount decimal.Decimal, description string, now time.Time) error {
	wallets := repository.NewWalletRepository(transaction)
	wallet, err := wallets.Ensure(ctx, memberID, currency)
	if err != nil {
		return err
	}
	if err := wallets.UpdateBalance(ctx, wallet.ID, wallet.Balance.Add(amount)); err != nil {
		return err
	}
	_, err = repository.NewLedgerRepository(transaction).Append(ctx, models.LedgerEntry{
		WalletID:    wallet.ID,
		Kind:        kind,
		Amount:      amount,
		Description: description,
		CreatedAt:   now,
	})
	return err
}

// childOf loads childID and checks it is a child in the parent's family.
func childOf(ctx context.Context, db database.DBTX, parent models.Identity, childID string) (models.Member, error) {
	if !parent.IsParent() {
		return models.Member{}, ErrForbidden
	}
	child, err := repository.NewMemberRepository(db).FindByID(ctx, childID)
	if repository.IsNotFound(err) {
		return models.Member{}, ErrNotFound
	}
	if err != nil {
		return models.Member{}, err
	}
	if child.FamilyID != parent.FamilyID || child.Role != models.RoleChild {
		return models.Member{}, ErrForbidden
	}
	return child, nil
}

// PayChild records a cash payout to the child, lowering the wallet balance.
func (service *WalletService) PayChild(ctx context.Context, parent models.Identity, childID string, rawAmount string) (decimal.Decimal, error) {
	amount, err := ParsePositiveAmount(rawAmount)
	if err != nil {
		return decimal.Zero, err
	}

	var box *outbox
	err = database.WithTx(ctx, service.database, func(transaction *sql.Tx) error {
		child, err := childOf(ctx, transaction, parent, childID)
		if err != nil {
			return err
		}

		wallets := repository.NewWalletRepository(transaction)
		wallet, err := wallets.Ensure(ctx, child.ID, service.currency)
		if err != nil {
			return err
		}
		if amount.GreaterThan(wallet.Balance) {
			return ErrAmountExceedsBalance
		}
		if err := wallets.UpdateBalance(ctx, wallet.ID, wallet.Balance.Sub(amount)); err != nil {
			return err
		}
		if _, err := repository.NewLedgerRepository(transaction).Append(ctx, models.LedgerEntry{
			WalletID:    wallet.ID,
			Kind:        models.LedgerDebitPayment,
			Amount:      amount,
			Description: "Payment from " + parent.Name,
			CreatedAt:   service.now(),
		}); err != nil {
			return err
		}

		box = newOutbox(transaction)
		return box.notify(ctx, child.UserID, models.NotificationPaymentReceived,
			fmt.Sprintf("You received a payment of %s %s.", wallet.Currency, FormatMoney(amount)))
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("paying child: %w", err)
	}

	service.notifier.Deliver(ctx, box.created)
	return amount, nil
}

// GrantAllowance credits an allowance to the child's wallet.
func (service *WalletService) GrantAllowance(ctx context.Context, parent models.Identity, childID string, rawAmount string) (decimal.Decimal, error) {
	amount, err := ParsePositiveAmount(rawAmount)
	if err != nil {
		return decimal.Zero, err
	}

	var box *outbox
	err = database.WithTx(ctx, service.database, func(transaction *sql.Tx) error {
		child, err := childOf(ctx, transaction, parent, childID)
		if err != nil {
			return err
		}
		if err := creditWallet(ctx, transaction, child.ID, service.currency, models.LedgerCreditAllowance,
			amount, "Allowance from "+parent.Name, service.now()); err != nil {
			return err
		}

		box = newOutbox(transaction)
		return box.notify(ctx, child.UserID, models.NotificationAllowanceGranted,
			fmt.Sprintf("You received an allowance of %s %s.", service.currency, FormatMoney(amount)))
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("granting allowance: %w", err)
	}

	service.notifier.Deliver(ctx, box.created)
	return amount, nil
}

func (service *WalletService) Statement(ctx context.Context, parent models.Identity, childID string) (Statement, error) {
	child, err := childOf(ctx, service.database, parent, childID)
	if err != nil {
		return Statement{}, err
	}

	wallet, err := repository.NewWalletRepository(service.database).Ensure(ctx, child.ID, service.currency)
	if err != nil {
		return Statement{}, fmt.Errorf("loading statement wallet: %w", err)
	}

	ledger := repository.NewLedgerRepository(service.database)
	totals, err := ledger.TotalsByWallet(ctx, wallet.ID)
	if err != nil {
		return Statement{}, fmt.Errorf("loading statement totals: %w", err)
	}
	recent, err := ledger.FindRecent(ctx, wallet.ID, recentLedgerEntries)
	if err != nil {
		return Statement{}, fmt.Errorf("loading statement entries: %w", err)
	}

	return Statement{
		Child:       child,
		Wallet:      wallet,
		TotalEarned: EarnedTotal(totals),
		TotalPaid:   totals[models.LedgerDebitPayment],
		Recent:      recent,
	}, nil
}

// EarnedTotal adds task payments and allowances.
func EarnedTotal(totals map[models.LedgerKind]decimal.Decimal) decimal.Decimal {
	return totals[models.LedgerCreditTask].Add(totals[models.LedgerCreditAllowance])
}
