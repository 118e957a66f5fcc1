package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/samuelogino/taskpay/internal/middleware"
	"github.com/samuelogino/taskpay/internal/models"
	"github.com/samuelogino/taskpay/internal/services"
)

type RewardHandler struct {
	rewardService *services.RewardService
	renderer      *Renderer
}

func NewRewardHandler(rewardService *services.RewardService, renderer *Renderer) *RewardHandler {
	return &RewardHandler{rewardService: rewardService, renderer: renderer}
}

type rewardsManageData struct {
	Rewards     []models.Reward
	Redemptions []models.RedemptionDetail
	Children    []models.Member
}

type rewardsShopData struct {
	Rewards     []models.Reward
	Redemptions []models.RedemptionDetail
	XPBalance   int
}

func (handler *RewardHandler) NewForm(w http.ResponseWriter, r *http.Request) {
	handler.renderer.Render(w, r, http.StatusOK, "reward_new", Page{Title: "New reward"})
}

func (handler *RewardHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	reward, err := handler.rewardService.CreateReward(ctx, identity, services.CreateRewardInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		CostXP:      services.ParseCostXP(r.FormValue("cost_xp")),
	})

	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		handler.renderer.Render(w, r, http.StatusUnprocessableEntity, "reward_new", Page{
			Title:  "New reward",
			Errors: validationErrors,
			Form:   r.PostForm,
		})
		return
	}
	if err != nil {
		handler.renderer.Fail(w, r, err, "/rewards/new", "creating reward")
		return
	}

	handler.renderer.Redirect(w, r, services.FlashSuccess, fmt.Sprintf("Reward %q added to the shop.", reward.Title), "/rewards/manage")
}

func (handler *RewardHandler) Manage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	rewards, err := handler.rewardService.Catalog(ctx, identity)
	if err != nil {
		slog.Error("finding rewards", "error", err)
		http.Error(w, "Error loading rewards", http.StatusInternalServerError)
		return
	}
	redemptions, err := handler.rewardService.History(ctx, identity)
	if err != nil {
		slog.Error("finding redemptions", "error", err)
	}
	children, err := handler.rewardService.XPBalances(ctx, identity)
	if err != nil {
		slog.Error("finding children xp", "error", err)
	}

	handler.renderer.Render(w, r, http.StatusOK, "rewards_manage", Page{
		Title: "Rewards",
		Data:  rewardsManageData{Rewards: rewards, Redemptions: redemptions, Children: children},
	})
}

func (handler *RewardHandler) Shop(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	rewards, err := handler.rewardService.ListShop(ctx, identity)
	if err != nil {
		slog.Error("finding rewards", "error", err)
		http.Error(w, "Error loading shop", http.StatusInternalServerError)
		return
	}
	redemptions, err := handler.rewardService.History(ctx, identity)
	if err != nil {
		slog.Error("finding redemptions", "error", err)
	}
	balance, err := handler.rewardService.XPBalance(ctx, identity)
	if err != nil {
		slog.Error("finding xp balance", "error", err)
	}

	handler.renderer.Render(w, r, http.StatusOK, "rewards_shop", Page{
		Title: "Reward shop",
		Data:  rewardsShopData{Rewards: rewards, Redemptions: redemptions, XPBalance: balance},
	})
}

func (handler *RewardHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	redemption, err := handler.rewardService.Redeem(ctx, identity, chi.URLParam(r, "id"))
	if err != nil {
		handler.renderer.Fail(w, r, err, "/rewards/shop", "redeeming reward")
		return
	}
	handler.renderer.Redirect(w, r, services.FlashSuccess,
		fmt.Sprintf("Reward redeemed for %d XP. Your parents will deliver it soon.", redemption.XPPaid), "/rewards/shop")
}

func (handler *RewardHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	if err := handler.rewardService.Deliver(ctx, identity, chi.URLParam(r, "id")); err != nil {
		handler.renderer.Fail(w, r, err, "/rewards/manage", "delivering reward")
		return
	}
	handler.renderer.Redirect(w, r, services.FlashSuccess, "Reward marked as delivered.", "/rewards/manage")
}

func (handler *RewardHandler) Reject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	if err := handler.rewardService.RejectRedemption(ctx, identity, chi.URLParam(r, "id")); err != nil {
		handler.renderer.Fail(w, r, err, "/rewards/manage", "rejecting redemption")
		return
	}
	handler.renderer.Redirect(w, r, services.FlashWarning, "Redemption rejected and XP refunded.", "/rewards/manage")
}
