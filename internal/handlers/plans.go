package handlers

import (
	"log/slog"
	"net/http"

	"github.com/samuelogino/taskpay/internal/middleware"
	"github.com/samuelogino/taskpay/internal/services"
)

type PlanHandler struct {
	familyService *services.FamilyService
	renderer      *Renderer
}

func NewPlanHandler(familyService *services.FamilyService, renderer *Renderer) *PlanHandler {
	return &PlanHandler{familyService: familyService, renderer: renderer}
}

func (handler *PlanHandler) Plans(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	family, err := handler.familyService.Family(ctx, identity.FamilyID)
	if err != nil {
		slog.Error("finding family", "error", err)
		http.Error(w, "Error loading plans", http.StatusInternalServerError)
		return
	}

	handler.renderer.Render(w, r, http.StatusOK, "plans", Page{Title: "Plans", Data: family})
}

func (handler *PlanHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	if err := handler.familyService.SubscribePro(ctx, identity); err != nil {
		handler.renderer.Fail(w, r, err, "/plans", "subscribing to pro")
		return
	}
	handler.renderer.Redirect(w, r, services.FlashSuccess, "Your family is now on the Pro plan.", "/home/parent")
}
