package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/samuelogino/taskpay/internal/middleware"
	"github.com/samuelogino/taskpay/internal/services"
)

type ProfileHandler struct {
	dashboardService *services.DashboardService
	familyService    *services.FamilyService
	renderer         *Renderer
}

func NewProfileHandler(dashboardService *services.DashboardService, familyService *services.FamilyService, renderer *Renderer) *ProfileHandler {
	return &ProfileHandler{
		dashboardService: dashboardService,
		familyService:    familyService,
		renderer:         renderer,
	}
}

type profileData struct {
	Child  *services.ChildOverview
	Parent *services.ParentOverview
}

func (handler *ProfileHandler) Show(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	var data profileData
	if identity.IsChild() {
		overview, err := handler.dashboardService.ChildOverview(ctx, identity)
		if err != nil {
			slog.Error("loading child profile", "error", err)
			http.Error(w, "Error loading profile", http.StatusInternalServerError)
			return
		}
		data.Child = &overview
	} else {
		overview, err := handler.dashboardService.ParentOverview(ctx, identity)
		if err != nil {
			slog.Error("loading parent profile", "error", err)
			http.Error(w, "Error loading profile", http.StatusInternalServerError)
			return
		}
		data.Parent = &overview
	}

	handler.renderer.Render(w, r, http.StatusOK, "profile", Page{Title: "Profile", Data: data})
}

func (handler *ProfileHandler) EditForm(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	handler.renderer.Render(w, r, http.StatusOK, "profile_edit", Page{
		Title: "Edit profile",
		Form:  url.Values{"name": {identity.Name}},
	})
}

func (handler *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		handler.renderer.Redirect(w, r, services.FlashError, "The picture is too large.", "/profile/edit")
		return
	}

	avatar, closeAvatar, err := formUpload(r, "avatar")
	if err != nil {
		handler.renderer.Fail(w, r, err, "/profile/edit", "reading avatar")
		return
	}
	defer closeAvatar()

	_, err = handler.familyService.UpdateProfile(ctx, identity, services.ProfileInput{Name: r.FormValue("name")}, avatar)

	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		handler.renderer.Render(w, r, http.StatusUnprocessableEntity, "profile_edit", Page{
			Title:  "Edit profile",
			Errors: validationErrors,
			Form:   url.Values{"name": {r.FormValue("name")}},
		})
		return
	}
	if err != nil {
		handler.renderer.Fail(w, r, err, "/profile/edit", "updating profile")
		return
	}

	handler.renderer.Redirect(w, r, services.FlashSuccess, "Profile updated.", "/profile")
}
