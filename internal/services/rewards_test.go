package services_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/samuelogino/taskpay/internal/models"
	"github.com/samuelogino/taskpay/internal/repository"
	"github.com/samuelogino/taskpay/internal/services"
	"github.com/samuelogino/taskpay/internal/testutil"
)

func setupRewardService(t *testing.T) (*services.RewardService, *sql.DB) {
	t.Helper()
	db := testutil.NewTestDatabase(t)
	return services.NewRewardService(db, services.NewNotifier(db, nil)), db
}

func xpBalance(t *testing.T, db *sql.DB, member models.Member) int {
	t.Helper()
	reloaded, err := repository.NewMemberRepository(db).FindByID(context.Background(), member.ID)
	if err != nil {
		t.Fatalf("finding member: %v", err)
	}
	return reloaded.XPBalance
}

func TestCreateReward_NotifiesChildren(t *testing.T) {
	service, db := setupRewardService(t)
	family := testutil.CreateFamily(t, db, "Ana", "Bia", "Caio")

	reward, err := service.CreateReward(context.Background(), family.ParentIdentity(), services.CreateRewardInput{
		Title:  "Movie night",
		CostXP: 300,
	})
	if err != nil {
		t.Fatalf("creating reward: %v", err)
	}
	if !reward.Active || reward.FamilyID != family.Family.ID {
		t.Errorf("unexpected reward: %+v", reward)
	}

	for _, child := range family.Children {
		kinds := unreadKinds(t, db, child.UserID)
		if len(kinds) != 1 || kinds[0] != models.NotificationNewReward {
			t.Errorf("expected NOVA_RECOMPENSA for %s, got %v", child.Name, kinds)
		}
	}
	if kinds := unreadKinds(t, db, family.Parent.UserID); len(kinds) != 0 {
		t.Errorf("expected no notification for the parent, got %v", kinds)
	}
}

func TestCreateReward_Validation(t *testing.T) {
	service, db := setupRewardService(t)
	family := testutil.CreateFamily(t, db, "Ana")

	_, err := service.CreateReward(context.Background(), family.ParentIdentity(), services.CreateRewardInput{Title: "  "})
	var validationErrors services.ValidationErrors
	if !errors.As(err, &validationErrors) {
		t.Errorf("expected ValidationErrors, got %v", err)
	}
}

func TestRedeem_InsufficientXPWritesNothing(t *testing.T) {
	service, db := setupRewardService(t)
	family := testutil.CreateFamily(t, db, "Ana", "Bia")
	child := family.Children[0]
	reward := testutil.CreateReward(t, db, family.Parent, "Ice cream", 500)
	testutil.GrantXP(t, db, child, 499)

	_, err := service.Redeem(context.Background(), family.ChildIdentity(0), reward.ID)
	if !errors.Is(err, services.ErrInsufficientXP) {
		t.Fatalf("expected ErrInsufficientXP, got %v", err)
	}
	if balance := xpBalance(t, db, child); balance != 499 {
		t.Errorf("expected xp to stay 499, got %d", balance)
	}

	history, err := service.History(context.Background(), family.ChildIdentity(0))
	if err != nil {
		t.Fatalf("loading history: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("expected no redemption, got %d", len(history))
	}
}

func TestRedeem_DebitsAndHidesReward(t *testing.T) {
	service, db := setupRewardService(t)
	family := testutil.CreateFamily(t, db, "Ana", "Bia", "Caio")
	child := family.Children[0]
	reward := testutil.CreateReward(t, db, family.Parent, "Ice cream", 300)
	testutil.CreateReward(t, db, family.Parent, "Sticker", 50)
	testutil.GrantXP(t, db, child, 400)
	testutil.GrantXP(t, db, family.Children[1], 400)
	ctx := context.Background()

	redemption, err := service.Redeem(ctx, family.ChildIdentity(0), reward.ID)
	if err != nil {
		t.Fatalf("redeeming reward: %v", err)
	}
	if redemption.Status != models.RedemptionPending || redemption.XPPaid != 300 {
		t.Errorf("unexpected redemption: %+v", redemption)
	}
	if balance := xpBalance(t, db, child); balance != 100 {
		t.Errorf("expected xp 100, got %d", balance)
	}

	kinds := unreadKinds(t, db, family.Parent.UserID)
	if len(kinds) != 1 || kinds[0] != models.NotificationNewRedemption {
		t.Errorf("expected NOVO_RESGATE for the parent, got %v", kinds)
	}

	shop, err := service.ListShop(ctx, family.ChildIdentity(1))
	if err != nil {
		t.Fatalf("listing shop: %v", err)
	}
	if len(shop) != 1 || shop[0].Title != "Sticker" {
		t.Errorf("expected only the sticker left, got %+v", shop)
	}

	_, err = service.Redeem(ctx, family.ChildIdentity(1), reward.ID)
	if !errors.Is(err, services.ErrRewardUnavailable) {
		t.Errorf("expected ErrRewardUnavailable for a sibling, got %v", err)
	}
}

func TestRedeem_OtherFamilyReward(t *testing.T) {
	service, db := setupRewardService(t)
	family := testutil.CreateFamily(t, db, "Ana", "Bia")
	other := testutil.CreateFamily(t, db, "Caio", "Duda")
	reward := testutil.CreateReward(t, db, other.Parent, "Bike ride", 10)
	testutil.GrantXP(t, db, family.Children[0], 100)

	_, err := service.Redeem(context.Background(), family.ChildIdentity(0), reward.ID)
	if !errors.Is(err, services.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListShop_OrderedByCost(t *testing.T) {
	service, db := setupRewardService(t)
	family := testutil.CreateFamily(t, db, "Ana", "Bia")
	testutil.CreateReward(t, db, family.Parent, "Bike ride", 800)
	testutil.CreateReward(t, db, family.Parent, "Sticker", 50)
	testutil.CreateReward(t, db, family.Parent, "Ice cream", 300)

	shop, err := service.ListShop(context.Background(), family.ChildIdentity(0))
	if err != nil {
		t.Fatalf("listing shop: %v", err)
	}
	if len(shop) != 3 {
		t.Fatalf("expected 3 rewards, got %d", len(shop))
	}
	for i := 1; i < len(shop); i++ {
		if shop[i-1].CostXP > shop[i].CostXP {
			t.Errorf("shop not ordered by cost: %+v", shop)
		}
	}
}

func TestCatalog(t *testing.T) {
	service, db := setupRewardService(t)
	family := testutil.CreateFamily(t, db, "Ana", "Bia")
	sticker := testutil.CreateReward(t, db, family.Parent, "Sticker", 50)
	bike := testutil.CreateReward(t, db, family.Parent, "Bike ride", 800)
	if _, err := db.Exec("UPDATE rewards SET created_at = ? WHERE id = ?", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), sticker.ID); err != nil {
		t.Fatalf("backdating reward: %v", err)
	}

	catalog, err := service.Catalog(context.Background(), family.ParentIdentity())
	if err != nil {
		t.Fatalf("listing catalog: %v", err)
	}
	if len(catalog) != 2 || catalog[0].ID != bike.ID || catalog[1].ID != sticker.ID {
		t.Errorf("expected newest reward first, got %+v", catalog)
	}

	if _, err := service.Catalog(context.Background(), family.ChildIdentity(0)); !errors.Is(err, services.ErrForbidden) {
		t.Errorf("expected ErrForbidden for a child, got %v", err)
	}
}

func TestDeliver(t *testing.T) {
	service, db := setupRewardService(t)
	family := testutil.CreateFamily(t, db, "Ana", "Bia")
	child := family.Children[0]
	reward := testutil.CreateReward(t, db, family.Parent, "Ice cream", 100)
	testutil.GrantXP(t, db, child, 100)
	ctx := context.Background()

	redemption, err := service.Redeem(ctx, family.ChildIdentity(0), reward.ID)
	if err != nil {
		t.Fatalf("redeeming reward: %v", err)
	}

	if err := service.Deliver(ctx, family.ParentIdentity(), redemption.ID); err != nil {
		t.Fatalf("delivering: %v", err)
	}
	detail, err := repository.NewRedemptionRepository(db).FindDetailByID(ctx, redemption.ID)
	if err != nil {
		t.Fatalf("finding redemption: %v", err)
	}
	if detail.Status != models.RedemptionDelivered {
		t.Errorf("expected DELIVERED, got %s", detail.Status)
	}

	kinds := unreadKinds(t, db, child.UserID)
	if len(kinds) != 1 || kinds[0] != models.NotificationRewardDelivered {
		t.Errorf("expected RECOMPENSA_ENTREGUE, got %v", kinds)
	}

	if err := service.Deliver(ctx, family.ParentIdentity(), redemption.ID); !errors.Is(err, services.ErrRedemptionProcessed) {
		t.Errorf("expected ErrRedemptionProcessed, got %v", err)
	}
	if err := service.RejectRedemption(ctx, family.ParentIdentity(), redemption.ID); !errors.Is(err, services.ErrRedemptionProcessed) {
		t.Errorf("expected ErrRedemptionProcessed on reject after delivery, got %v", err)
	}
	if balance := xpBalance(t, db, child); balance != 0 {
		t.Errorf("expected no refund after delivery, got %d", balance)
	}
}

func TestRejectRedemption_RefundsXP(t *testing.T) {
	service, db := setupRewardService(t)
	family := testutil.CreateFamily(t, db, "Ana", "Bia")
	other := testutil.CreateFamily(t, db, "Caio")
	child := family.Children[0]
	reward := testutil.CreateReward(t, db, family.Parent, "Ice cream", 250)
	testutil.GrantXP(t, db, child, 300)
	ctx := context.Background()

	redemption, err := service.Redeem(ctx, family.ChildIdentity(0), reward.ID)
	if err != nil {
		t.Fatalf("redeeming reward: %v", err)
	}

	if err := service.RejectRedemption(ctx, other.ParentIdentity(), redemption.ID); !errors.Is(err, services.ErrForbidden) {
		t.Errorf("expected ErrForbidden for another family, got %v", err)
	}

	if err := service.RejectRedemption(ctx, family.ParentIdentity(), redemption.ID); err != nil {
		t.Fatalf("rejecting redemption: %v", err)
	}
	if balance := xpBalance(t, db, child); balance != 300 {
		t.Errorf("expected xp refunded to 300, got %d", balance)
	}

	kinds := unreadKinds(t, db, child.UserID)
	if len(kinds) != 1 || kinds[0] != models.NotificationRewardRejected {
		t.Errorf("expected RECOMPENSA_REJEITADA, got %v", kinds)
	}

	shop, err := service.ListShop(ctx, family.ChildIdentity(0))
	if err != nil {
		t.Fatalf("listing shop: %v", err)
	}
	if len(shop) != 0 {
		t.Errorf("expected a rejected reward to stay out of the shop, got %+v", shop)
	}
}

func TestHistory_ParentSeesFamily(t *testing.T) {
	service, db := setupRewardService(t)
	family := testutil.CreateFamily(t, db, "Ana", "Bia", "Caio")
	first := testutil.CreateReward(t, db, family.Parent, "Ice cream", 10)
	second := testutil.CreateReward(t, db, family.Parent, "Sticker", 10)
	testutil.GrantXP(t, db, family.Children[0], 10)
	testutil.GrantXP(t, db, family.Children[1], 10)
	ctx := context.Background()

	if _, err := service.Redeem(ctx, family.ChildIdentity(0), first.ID); err != nil {
		t.Fatalf("redeeming first reward: %v", err)
	}
	if _, err := service.Redeem(ctx, family.ChildIdentity(1), second.ID); err != nil {
		t.Fatalf("redeeming second reward: %v", err)
	}

	parentHistory, err := service.History(ctx, family.ParentIdentity())
	if err != nil {
		t.Fatalf("loading parent history: %v", err)
	}
	if len(parentHistory) != 2 {
		t.Errorf("expected 2 family redemptions, got %d", len(parentHistory))
	}

	childHistory, err := service.History(ctx, family.ChildIdentity(1))
	if err != nil {
		t.Fatalf("loading child history: %v", err)
	}
	if len(childHistory) != 1 || childHistory[0].RewardTitle != "Sticker" {
		t.Errorf("unexpected child history: %+v", childHistory)
	}
}

func TestVisibleRedemptions(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	redemption := func(status models.RedemptionStatus, age time.Duration) models.RedemptionDetail {
		return models.RedemptionDetail{Redemption: models.Redemption{
			ID:        string(status) + age.String(),
			Status:    status,
			CreatedAt: now.Add(-age),
		}}
	}

	details := []models.RedemptionDetail{
		redemption(models.RedemptionPending, 100*time.Hour),
		redemption(models.RedemptionDelivered, 35*time.Hour),
		redemption(models.RedemptionDelivered, 37*time.Hour),
		redemption(models.RedemptionRejected, time.Hour),
		redemption(models.RedemptionRejected, 48*time.Hour),
		redemption(models.RedemptionApproved, time.Hour),
	}

	visible := services.VisibleRedemptions(details, now)

	if len(visible) != 3 {
		t.Fatalf("expected 3 visible redemptions, got %d: %+v", len(visible), visible)
	}
	if visible[0].Status != models.RedemptionPending ||
		visible[1].Status != models.RedemptionDelivered ||
		visible[2].Status != models.RedemptionRejected {
		t.Errorf("unexpected visible redemptions: %+v", visible)
	}
}

func TestXPBalances(t *testing.T) {
	service, db := setupRewardService(t)
	family := testutil.CreateFamily(t, db, "Ana", "Bia")
	testutil.GrantXP(t, db, family.Children[0], 700)

	children, err := service.XPBalances(context.Background(), family.ParentIdentity())
	if err != nil {
		t.Fatalf("listing xp balances: %v", err)
	}
	if len(children) != 1 || children[0].XPBalance != 700 {
		t.Errorf("unexpected balances: %+v", children)
	}
}
