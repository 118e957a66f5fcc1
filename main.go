package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/samuelogino/taskpay/internal/config"
	"github.com/samuelogino/taskpay/internal/database"
	"github.com/samuelogino/taskpay/internal/server"
	"github.com/samuelogino/taskpay/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		slog.Error("opening database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		slog.Error("running migrations", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	authService, err := services.NewAuthService(ctx, cfg, db)
	if err != nil {
		slog.Error("creating auth service", "error", err)
		os.Exit(1)
	}

	mailer, err := services.NewMailer(ctx, cfg)
	if err != nil {
		slog.Error("creating mailer", "error", err)
		os.Exit(1)
	}

	storage, err := services.NewStorage(cfg)
	if err != nil {
		slog.Error("creating upload storage", "error", err)
		os.Exit(1)
	}

	notifier := services.NewNotifier(db, mailer)

	srv, err := server.New(db, cfg, authService, storage, notifier)
	if err != nil {
		slog.Error("creating server", "error", err)
		os.Exit(1)
	}
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
