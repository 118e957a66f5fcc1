package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/samuelogino/taskpay/internal/models"
	"github.com/samuelogino/taskpay/internal/repository"
	"github.com/samuelogino/taskpay/internal/testutil"
)

func TestRewardRepository_FindAvailable_OrdersByCost(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	family := testutil.CreateFamily(t, db, "Marta", "Pedro")
	other := testutil.CreateFamily(t, db, "Joao", "Lia")
	repo := repository.NewRewardRepository(db)

	testutil.CreateReward(t, db, family.Parent, "Cinema", 500)
	testutil.CreateReward(t, db, family.Parent, "Ice cream", 50)
	testutil.CreateReward(t, db, other.Parent, "Other family reward", 10)

	rewards, err := repo.FindAvailable(context.Background(), family.Family.ID)
	if err != nil {
		t.Fatalf("finding rewards: %v", err)
	}
	if len(rewards) != 2 {
		t.Fatalf("expected 2 rewards, got %d", len(rewards))
	}
	if rewards[0].Title != "Ice cream" || rewards[1].Title != "Cinema" {
		t.Errorf("expected ascending cost order, got %s then %s", rewards[0].Title, rewards[1].Title)
	}
}

func TestRewardRepository_FindAvailableNewest(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	family := testutil.CreateFamily(t, db, "Marta", "Pedro")
	repo := repository.NewRewardRepository(db)

	older := testutil.CreateReward(t, db, family.Parent, "Ice cream", 50)
	newer := testutil.CreateReward(t, db, family.Parent, "Cinema", 500)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for offset, id := range []string{older.ID, newer.ID} {
		if _, err := db.Exec("UPDATE rewards SET created_at = ? WHERE id = ?", base.Add(time.Duration(offset)*time.Hour), id); err != nil {
			t.Fatalf("setting created_at: %v", err)
		}
	}

	rewards, err := repo.FindAvailableNewest(context.Background(), family.Family.ID)
	if err != nil {
		t.Fatalf("finding rewards: %v", err)
	}
	if len(rewards) != 2 {
		t.Fatalf("expected 2 rewards, got %d", len(rewards))
	}
	if rewards[0].ID != newer.ID || rewards[1].ID != older.ID {
		t.Errorf("expected newest first, got %s then %s", rewards[0].Title, rewards[1].Title)
	}
}

func TestRewardRepository_RedeemedRewardsLeaveTheShop(t *testing.T) {
	statuses := []models.RedemptionStatus{
		models.RedemptionPending,
		models.RedemptionDelivered,
		models.RedemptionRejected,
	}

	for _, status := range statuses {
		t.Run(string(status), func(t *testing.T) {
			db := testutil.NewTestDatabase(t)
			family := testutil.CreateFamily(t, db, "Marta", "Pedro")
			repo := repository.NewRewardRepository(db)
			ctx := context.Background()

			reward := testutil.CreateReward(t, db, family.Parent, "Cinema", 100)
			_, err := repository.NewRedemptionRepository(db).Create(ctx, models.Redemption{
				RewardID: reward.ID,
				MemberID: family.Children[0].ID,
				XPPaid:   100,
				Status:   status,
			})
			if err != nil {
				t.Fatalf("creating redemption: %v", err)
			}

			rewards, _ := repo.FindAvailable(ctx, family.Family.ID)
			if len(rewards) != 0 {
				t.Errorf("expected reward hidden after %s redemption, got %d rewards", status, len(rewards))
			}

			available, err := repo.IsAvailable(ctx, reward.ID)
			if err != nil {
				t.Fatalf("checking availability: %v", err)
			}
			if available {
				t.Error("expected reward to be unavailable")
			}
		})
	}
}
