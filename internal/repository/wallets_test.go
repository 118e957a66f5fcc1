package repository_test

import (
	"context"
	"testing"

	"github.com/samuelogino/taskpay/internal/models"
	"github.com/samuelogino/taskpay/internal/repository"
	"github.com/samuelogino/taskpay/internal/testutil"
	"github.com/shopspring/decimal"
)

func TestWalletRepository_EnsureIsIdempotent(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	family := testutil.CreateFamily(t, db, "Marta", "Pedro")
	repo := repository.NewWalletRepository(db)
	ctx := context.Background()

	first, err := repo.Ensure(ctx, family.Children[0].ID, "BRL")
	if err != nil {
		t.Fatalf("ensuring wallet: %v", err)
	}
	second, err := repo.Ensure(ctx, family.Children[0].ID, "BRL")
	if err != nil {
		t.Fatalf("ensuring wallet again: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected the same wallet, got %s and %s", first.ID, second.ID)
	}
	if !first.Balance.IsZero() {
		t.Errorf("expected zero balance, got %s", first.Balance)
	}
}

func TestWalletRepository_UpdateBalance(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	family := testutil.CreateFamily(t, db, "Marta", "Pedro")
	repo := repository.NewWalletRepository(db)
	ctx := context.Background()

	wallet, _ := repo.FindByMember(ctx, family.Children[0].ID)
	if err := repo.UpdateBalance(ctx, wallet.ID, decimal.RequireFromString("12.50")); err != nil {
		t.Fatalf("updating balance: %v", err)
	}

	reloaded, _ := repo.FindByMember(ctx, family.Children[0].ID)
	if !reloaded.Balance.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("expected 12.50, got %s", reloaded.Balance)
	}
}

func TestLedgerRepository_AppendAndTotals(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	family := testutil.CreateFamily(t, db, "Marta", "Pedro", "Bia")
	wallets := repository.NewWalletRepository(db)
	ledger := repository.NewLedgerRepository(db)
	ctx := context.Background()

	pedroWallet, _ := wallets.FindByMember(ctx, family.Children[0].ID)
	biaWallet, _ := wallets.FindByMember(ctx, family.Children[1].ID)

	entries := []models.LedgerEntry{
		{WalletID: pedroWallet.ID, Kind: models.LedgerCreditTask, Amount: decimal.RequireFromString("5.00")},
		{WalletID: pedroWallet.ID, Kind: models.LedgerCreditTask, Amount: decimal.RequireFromString("2.25")},
		{WalletID: pedroWallet.ID, Kind: models.LedgerDebitPayment, Amount: decimal.RequireFromString("3.00")},
		{WalletID: biaWallet.ID, Kind: models.LedgerCreditAllowance, Amount: decimal.RequireFromString("10.00")},
	}
	for _, entry := range entries {
		if _, err := ledger.Append(ctx, entry); err != nil {
			t.Fatalf("appending entry: %v", err)
		}
	}

	totals, err := ledger.TotalsByWallet(ctx, pedroWallet.ID)
	if err != nil {
		t.Fatalf("totalling wallet: %v", err)
	}
	if !totals[models.LedgerCreditTask].Equal(decimal.RequireFromString("7.25")) {
		t.Errorf("expected task credits 7.25, got %s", totals[models.LedgerCreditTask])
	}
	if !totals[models.LedgerDebitPayment].Equal(decimal.RequireFromString("3")) {
		t.Errorf("expected payments 3, got %s", totals[models.LedgerDebitPayment])
	}

	familyTotals, err := ledger.TotalsByFamily(ctx, family.Family.ID)
	if err != nil {
		t.Fatalf("totalling family: %v", err)
	}
	if !familyTotals[models.LedgerCreditAllowance].Equal(decimal.RequireFromString("10")) {
		t.Errorf("expected allowance 10, got %s", familyTotals[models.LedgerCreditAllowance])
	}

	recent, err := ledger.FindRecent(ctx, pedroWallet.ID, 2)
	if err != nil {
		t.Fatalf("finding recent entries: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("expected 2 recent entries, got %d", len(recent))
	}
}

func TestProgressRepository_EnsureDefaults(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	family := testutil.CreateFamily(t, db, "Marta", "Pedro")
	repo := repository.NewProgressRepository(db)

	progress, err := repo.Ensure(context.Background(), family.Children[0].ID)
	if err != nil {
		t.Fatalf("ensuring progress: %v", err)
	}
	if progress.Level != 1 || progress.LevelXP != 0 || progress.CumulativeXP != 0 {
		t.Errorf("unexpected initial progress: %+v", progress)
	}
	if progress.LastTaskAt != nil {
		t.Errorf("expected no last task time, got %v", progress.LastTaskAt)
	}
}
