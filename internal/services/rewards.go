package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/samuelogino/taskpay/internal/database"
	"github.com/samuelogino/taskpay/internal/models"
	"github.com/samuelogino/taskpay/internal/repository"
)

var (
	ErrInsufficientXP      = errors.New("not enough XP for this reward")
	ErrRewardUnavailable   = errors.New("reward is no longer available")
	ErrRedemptionProcessed = errors.New("redemption already processed")
)

// HistoryWindow is how long delivered and rejected redemptions stay listed.
const HistoryWindow = 36 * time.Hour

type CreateRewardInput struct {
	Title       string `form:"title" validate:"required,max=120"`
	Description string `form:"description" validate:"max=500"`
	CostXP      int    `form:"cost_xp" validate:"gte=0"`
}

// ParseCostXP reads an XP cost from a form, defaulting to zero.
func ParseCostXP(raw string) int {
	cost, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || cost < 0 {
		return 0
	}
	return cost
}

type RewardService struct {
	database *sql.DB
	notifier *Notifier
	now      func() time.Time
}

func NewRewardService(db *sql.DB, notifier *Notifier) *RewardService {
	return &RewardService{
		database: db,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (service *RewardService) CreateReward(ctx context.Context, parent models.Identity, input CreateRewardInput) (models.Reward, error) {
	if !parent.IsParent() {
		return models.Reward{}, ErrForbidden
	}
	input.Title = strings.TrimSpace(input.Title)
	if err := validateInput(input); err != nil {
		return models.Reward{}, err
	}

	var created models.Reward
	var box *outbox
	err := database.WithTx(ctx, service.database, func(transaction *sql.Tx) error {
		var err error
		created, err = repository.NewRewardRepository(transaction).Create(ctx, models.Reward{
			FamilyID:    parent.FamilyID,
			Title:       input.Title,
			Description: strings.TrimSpace(input.Description),
			CostXP:      input.CostXP,
			CreatorID:   parent.MemberID,
		})
		if err != nil {
			return err
		}

		box = newOutbox(transaction)
		return box.notifyFamily(ctx, parent.FamilyID, models.RoleChild, models.NotificationNewReward,
			fmt.Sprintf("New reward in the shop: %s for %d XP.", created.Title, created.CostXP))
	})
	if err != nil {
		return models.Reward{}, fmt.Errorf("creating reward: %w", err)
	}

	service.notifier.Deliver(ctx, box.created)
	return created, nil
}

// ListShop returns the family's rewards that nobody has redeemed yet,
// cheapest first.
func (service *RewardService) ListShop(ctx context.Context, identity models.Identity) ([]models.Reward, error) {
	rewards, err := repository.NewRewardRepository(service.database).FindAvailable(ctx, identity.FamilyID)
	if err != nil {
		return nil, fmt.Errorf("listing shop: %w", err)
	}
	return rewards, nil
}

// Catalog is the parent's view of the same rewards, newest first.
func (service *RewardService) Catalog(ctx context.Context, parent models.Identity) ([]models.Reward, error) {
	if !parent.IsParent() {
		return nil, ErrForbidden
	}
	rewards, err := repository.NewRewardRepository(service.database).FindAvailableNewest(ctx, parent.FamilyID)
	if err != nil {
		return nil, fmt.Errorf("listing catalog: %w", err)
	}
	return rewards, nil
}

// Redeem spends the child's XP on a reward and opens a pending redemption
// for the parents to deliver.
func (service *RewardService) Redeem(ctx context.Context, child models.Identity, rewardID string) (models.Redemption, error) {
	if !child.IsChild() {
		return models.Redemption{}, ErrForbidden
	}

	var redemption models.Redemption
	var box *outbox
	err := database.WithTx(ctx, service.database, func(transaction *sql.Tx) error {
		rewards := repository.NewRewardRepository(transaction)
		reward, err := rewards.FindByID(ctx, rewardID)
		if repository.IsNotFound(err) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if reward.FamilyID != child.FamilyID {
			return ErrNotFound
		}

		available, err := rewards.IsAvailable(ctx, reward.ID)
		if err != nil {
			return err
		}
		if !available {
			return ErrRewardUnavailable
		}

		spent, err := repository.NewMemberRepository(transaction).SpendXP(ctx, child.MemberID, reward.CostXP)
		if err != nil {
			return err
		}
		if !spent {
			return ErrInsufficientXP
		}

		redemption, err = repository.NewRedemptionRepository(transaction).Create(ctx, models.Redemption{
			RewardID:  reward.ID,
			MemberID:  child.MemberID,
			XPPaid:    reward.CostXP,
			Status:    models.RedemptionPending,
			CreatedAt: service.now(),
		})
		if err != nil {
			return err
		}

		box = newOutbox(transaction)
		return box.notifyFamily(ctx, child.FamilyID, models.RoleParent, models.NotificationNewRedemption,
			fmt.Sprintf("%s redeemed %q for %d XP.", child.Name, reward.Title, reward.CostXP))
	})
	if err != nil {
		return models.Redemption{}, fmt.Errorf("redeeming reward: %w", err)
	}

	service.notifier.Deliver(ctx, box.created)
	return redemption, nil
}

// pendingRedemption loads a redemption the parent may act on.
func pendingRedemption(ctx context.Context, transaction *sql.Tx, parent models.Identity, redemptionID string) (models.RedemptionDetail, error) {
	if !parent.IsParent() {
		return models.RedemptionDetail{}, ErrForbidden
	}
	detail, err := repository.NewRedemptionRepository(transaction).FindDetailByID(ctx, redemptionID)
	if repository.IsNotFound(err) {
		return models.RedemptionDetail{}, ErrNotFound
	}
	if err != nil {
		return models.RedemptionDetail{}, err
	}
	if detail.FamilyID != parent.FamilyID {
		return models.RedemptionDetail{}, ErrForbidden
	}
	if detail.Status != models.RedemptionPending {
		return models.RedemptionDetail{}, ErrRedemptionProcessed
	}
	return detail, nil
}

func (service *RewardService) Deliver(ctx context.Context, parent models.Identity, redemptionID string) error {
	var box *outbox
	err := database.WithTx(ctx, service.database, func(transaction *sql.Tx) error {
		detail, err := pendingRedemption(ctx, transaction, parent, redemptionID)
		if err != nil {
			return err
		}

		changed, err := repository.NewRedemptionRepository(transaction).TransitionFromPending(ctx, detail.ID, models.RedemptionDelivered)
		if err != nil {
			return err
		}
		if !changed {
			return ErrRedemptionProcessed
		}

		box = newOutbox(transaction)
		return box.notify(ctx, detail.UserID, models.NotificationRewardDelivered,
			fmt.Sprintf("Your reward %q has been delivered. Enjoy!", detail.RewardTitle))
	})
	if err != nil {
		return fmt.Errorf("delivering redemption: %w", err)
	}

	service.notifier.Deliver(ctx, box.created)
	return nil
}

// RejectRedemption cancels a pending redemption and refunds the XP paid.
func (service *RewardService) RejectRedemption(ctx context.Context, parent models.Identity, redemptionID string) error {
	var box *outbox
	err := database.WithTx(ctx, service.database, func(transaction *sql.Tx) error {
		detail, err := pendingRedemption(ctx, transaction, parent, redemptionID)
		if err != nil {
			return err
		}

		changed, err := repository.NewRedemptionRepository(transaction).TransitionFromPending(ctx, detail.ID, models.RedemptionRejected)
		if err != nil {
			return err
		}
		if !changed {
			return ErrRedemptionProcessed
		}

		if err := repository.NewMemberRepository(transaction).AddXP(ctx, detail.MemberID, detail.XPPaid); err != nil {
			return err
		}

		box = newOutbox(transaction)
		return box.notify(ctx, detail.UserID, models.NotificationRewardRejected,
			fmt.Sprintf("Your redemption of %q was declined. %d XP were returned to you.", detail.RewardTitle, detail.XPPaid))
	})
	if err != nil {
		return fmt.Errorf("rejecting redemption: %w", err)
	}

	service.notifier.Deliver(ctx, box.created)
	return nil
}

// History lists the caller's recent redemptions: a child's own, or the
// whole family's for a parent. Newest first.
func (service *RewardService) History(ctx context.Context, identity models.Identity) ([]models.RedemptionDetail, error) {
	filter := repository.RedemptionFilter{}
	switch identity.Role {
	case models.RoleChild:
		filter.MemberID = &identity.MemberID
	case models.RoleParent:
		filter.FamilyID = &identity.FamilyID
	default:
		return nil, ErrForbidden
	}

	details, err := repository.NewRedemptionRepository(service.database).FindDetails(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing redemption history: %w", err)
	}
	return VisibleRedemptions(details, service.now()), nil
}

// VisibleRedemptions keeps pending redemptions and those settled within
// HistoryWindow of now.
func VisibleRedemptions(details []models.RedemptionDetail, now time.Time) []models.RedemptionDetail {
	cutoff := now.Add(-HistoryWindow)
	var visible []models.RedemptionDetail
	for _, detail := range details {
		switch detail.Status {
		case models.RedemptionPending:
			visible = append(visible, detail)
		case models.RedemptionDelivered, models.RedemptionRejected:
			if !detail.CreatedAt.Before(cutoff) {
				visible = append(visible, detail)
			}
		}
	}
	return visible
}

// XPBalances lists the children of the parent's family with their spendable XP.
func (service *RewardService) XPBalances(ctx context.Context, parent models.Identity) ([]models.Member, error) {
	children, err := repository.NewMemberRepository(service.database).FindByFamily(ctx, parent.FamilyID, models.RoleChild)
	if err != nil {
		return nil, fmt.Errorf("listing children xp: %w", err)
	}
	return children, nil
}

// XPBalance is the caller's spendable XP.
func (service *RewardService) XPBalance(ctx context.Context, identity models.Identity) (int, error) {
	member, err := repository.NewMemberRepository(service.database).FindByID(ctx, identity.MemberID)
	if err != nil {
		return 0, fmt.Errorf("loading xp balance: %w", err)
	}
	return member.XPBalance, nil
}
