package server

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/samuelogino/taskpay/internal/config"
	"github.com/samuelogino/taskpay/internal/handlers"
	"github.com/samuelogino/taskpay/internal/middleware"
	"github.com/samuelogino/taskpay/internal/models"
	"github.com/samuelogino/taskpay/internal/services"
)

type Server struct {
	router *chi.Mux
	config config.Config
}

func New(database *sql.DB, cfg config.Config, authService *services.AuthService, storage services.Storage, notifier *services.Notifier) (*Server, error) {
	renderer, err := handlers.NewRenderer(authService, cfg.Currency)
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	taskService := services.NewTaskService(database, storage, notifier, cfg.Currency)
	walletService := services.NewWalletService(database, notifier, cfg.Currency)
	rewardService := services.NewRewardService(database, notifier)
	familyService := services.NewFamilyService(database, storage)
	dashboardService := services.NewDashboardService(database, cfg.Currency)
	calendarService := services.NewCalendarService(database, cfg.Currency)

	authHandler := handlers.NewAuthHandler(authService, renderer)
	dashboardHandler := handlers.NewDashboardHandler(dashboardService, notifier, renderer)
	taskHandler := handlers.NewTaskHandler(taskService, familyService, renderer)
	rewardHandler := handlers.NewRewardHandler(rewardService, renderer)
	walletHandler := handlers.NewWalletHandler(walletService, renderer)
	notificationHandler := handlers.NewNotificationHandler(notifier, renderer)
	profileHandler := handlers.NewProfileHandler(dashboardService, familyService, renderer)
	planHandler := handlers.NewPlanHandler(familyService, renderer)
	calendarHandler := handlers.NewCalendarHandler(calendarService, authService, renderer, strings.TrimSuffix(cfg.BaseURL, "/"))

	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Compress(5))

	if local, ok := storage.(*services.LocalStorage); ok {
		router.Handle(services.LocalUploadPrefix+"*",
			http.StripPrefix(services.LocalUploadPrefix, http.FileServer(http.Dir(local.Directory()))))
	}

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	router.Get("/login", authHandler.LoginPage)
	router.Get("/register", authHandler.RegisterPage)
	router.Post("/auth/register", authHandler.Register)
	router.Post("/auth/login", authHandler.Login)
	router.Post("/login/submit", authHandler.Login)
	router.Get("/auth/logout", authHandler.Logout)
	router.Get("/auth/sso", authHandler.SSO)
	router.Get("/auth/callback", authHandler.Callback)

	router.Get("/calendar.ics", calendarHandler.Feed)

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(authService))

		r.Get("/", dashboardHandler.Root)

		r.Get("/notifications/read/{id}", notificationHandler.Read)
		r.Get("/notifications/read_all", notificationHandler.ReadAll)

		r.Get("/profile", profileHandler.Show)
		r.Get("/profile/edit", profileHandler.EditForm)
		r.Post("/profile/edit", profileHandler.Update)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(authService, models.RoleParent))

			r.Get("/home/parent", dashboardHandler.ParentHome)

			r.Get("/tasks/new", taskHandler.NewForm)
			r.Post("/tasks/new", taskHandler.Create)
			r.Get("/parent/tasks", taskHandler.ParentList)
			r.Get("/submission/approve/{id}", taskHandler.Approve)
			r.Get("/submission/reject/{id}", taskHandler.Reject)

			r.Get("/rewards/new", rewardHandler.NewForm)
			r.Post("/rewards/new", rewardHandler.Create)
			r.Get("/rewards/manage", rewardHandler.Manage)
			r.Get("/rewards/deliver/{id}", rewardHandler.Deliver)
			r.Get("/rewards/reject/{id}", rewardHandler.Reject)

			r.Post("/wallet/pay/{childID}", walletHandler.Pay)
			r.Post("/wallet/allowance/{childID}", walletHandler.Allowance)
			r.Get("/wallet/details/{childID}", walletHandler.Details)

			r.Get("/plans", planHandler.Plans)
			r.Post("/plans/subscribe", planHandler.Subscribe)

			r.Get("/calendar/share", calendarHandler.Share)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(authService, models.RoleChild))

			r.Get("/home/child", dashboardHandler.ChildHome)

			r.Get("/child/tasks", taskHandler.ChildList)
			r.Post("/tasks/submit/{id}", taskHandler.Submit)
			r.Post("/tasks/submit_photo/{id}", taskHandler.SubmitPhoto)

			r.Get("/rewards/shop", rewardHandler.Shop)
			r.Post("/rewards/redeem/{id}", rewardHandler.Redeem)
		})
	})

	server := &Server{
		router: router,
		config: cfg,
	}

	return server, nil
}

func (server *Server) Handler() http.Handler {
	return server.router
}

func (server *Server) Start() error {
	address := ":" + server.config.Port
	slog.Info("starting server", "address", address, "base_url", server.config.BaseURL)
	return http.ListenAndServe(address, server.router)
}
