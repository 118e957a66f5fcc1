package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/samuelogino/taskpay/internal/middleware"
	"github.com/samuelogino/taskpay/internal/services"
)

type CalendarHandler struct {
	calendarService *services.CalendarService
	authService     *services.AuthService
	renderer        *Renderer
	baseURL         string
}

func NewCalendarHandler(
	calendarService *services.CalendarService,
	authService *services.AuthService,
	renderer *Renderer,
	baseURL string,
) *CalendarHandler {
	return &CalendarHandler{
		calendarService: calendarService,
		authService:     authService,
		renderer:        renderer,
		baseURL:         baseURL,
	}
}

type calendarShareData struct {
	FeedURL string
}

// Feed serves the family's task deadlines as iCalendar. Calendar clients
// cannot carry the session cookie, so the family comes from a signed token.
func (handler *CalendarHandler) Feed(w http.ResponseWriter, r *http.Request) {
	familyID, err := handler.authService.FamilyFromCalendarToken(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	feed, err := handler.calendarService.Feed(r.Context(), familyID)
	if errors.Is(err, services.ErrNotFound) {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("building calendar feed", "error", err, "family_id", familyID)
		http.Error(w, "Error building calendar", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="taskpay.ics"`)
	w.Write([]byte(feed))
}

func (handler *CalendarHandler) Share(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	token, err := handler.authService.CalendarToken(identity.FamilyID)
	if err != nil {
		handler.renderer.Fail(w, r, err, "/home/parent", "creating calendar token")
		return
	}

	handler.renderer.Render(w, r, http.StatusOK, "calendar_share", Page{
		Title: "Calendar",
		Data:  calendarShareData{FeedURL: handler.baseURL + "/calendar.ics?token=" + url.QueryEscape(token)},
	})
}
