package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/samuelogino/taskpay/internal/middleware"
	"github.com/samuelogino/taskpay/internal/services"
)

type NotificationHandler struct {
	notifier *services.Notifier
	renderer *Renderer
}

func NewNotificationHandler(notifier *services.Notifier, renderer *Renderer) *NotificationHandler {
	return &NotificationHandler{notifier: notifier, renderer: renderer}
}

func (handler *NotificationHandler) Read(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	err := handler.notifier.MarkRead(ctx, identity.UserID, chi.URLParam(r, "id"))
	if err != nil && !errors.Is(err, services.ErrNotFound) {
		slog.Error("marking notification read", "error", err)
	}
	http.Redirect(w, r, identity.Role.HomePath(), http.StatusFound)
}

func (handler *NotificationHandler) ReadAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	if _, err := handler.notifier.MarkAllRead(ctx, identity.UserID); err != nil {
		handler.renderer.Fail(w, r, err, identity.Role.HomePath(), "marking notifications read")
		return
	}
	handler.renderer.Redirect(w, r, services.FlashSuccess, "All notifications marked as read.", identity.Role.HomePath())
}
