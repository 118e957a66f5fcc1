package handlers

import (
	"log/slog"
	"net/http"

	"github.com/samuelogino/taskpay/internal/middleware"
	"github.com/samuelogino/taskpay/internal/services"
)

type DashboardHandler struct {
	dashboardService *services.DashboardService
	notifier         *services.Notifier
	renderer         *Renderer
}

func NewDashboardHandler(dashboardService *services.DashboardService, notifier *services.Notifier, renderer *Renderer) *DashboardHandler {
	return &DashboardHandler{
		dashboardService: dashboardService,
		notifier:         notifier,
		renderer:         renderer,
	}
}

// Root sends the caller to the home page of their role.
func (handler *DashboardHandler) Root(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	http.Redirect(w, r, identity.Role.HomePath(), http.StatusFound)
}

func (handler *DashboardHandler) ParentHome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	overview, err := handler.dashboardService.ParentOverview(ctx, identity)
	if err != nil {
		slog.Error("loading parent overview", "error", err, "member_id", identity.MemberID)
		http.Error(w, "Error loading dashboard", http.StatusInternalServerError)
		return
	}

	handler.renderer.Render(w, r, http.StatusOK, "parent_home", Page{Title: "Family overview", Data: overview})
}

// ChildHome shows the child's progress. Notifications listed on it count
// as read once the page is rendered.
func (handler *DashboardHandler) ChildHome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	overview, err := handler.dashboardService.ChildOverview(ctx, identity)
	if err != nil {
		slog.Error("loading child overview", "error", err, "member_id", identity.MemberID)
		http.Error(w, "Error loading dashboard", http.StatusInternalServerError)
		return
	}

	if len(overview.Notifications) > 0 {
		if _, err := handler.notifier.MarkAllRead(ctx, identity.UserID); err != nil {
			slog.Error("marking child notifications read", "error", err)
		}
	}

	handler.renderer.Render(w, r, http.StatusOK, "child_home", Page{Title: "My tasks", Data: overview})
}
