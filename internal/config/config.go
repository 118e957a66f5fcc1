package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabasePath string
	Port         string
	LogLevel     string
	BaseURL      string

	SessionSecret string

	OIDCIssuer       string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCRedirectURL  string

	UploadDir     string
	CloudinaryURL string
	Currency      string

	MailFrom     string
	MailFromName string
	AWSRegion    string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
}

func Load() (Config, error) {
	// A missing .env file is normal outside local development.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("reading .env file", "error", err)
	}

	smtpPort, err := strconv.Atoi(envOrDefault("SMTP_PORT", "587"))
	if err != nil {
		return Config{}, fmt.Errorf("parsing SMTP_PORT: %w", err)
	}

	config := Config{
		DatabasePath:     envOrDefault("DATABASE_PATH", "./data/taskpay.db"),
		Port:             envOrDefault("PORT", "8080"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		BaseURL:          envOrDefault("BASE_URL", "http://localhost:8080"),
		SessionSecret:    os.Getenv("SESSION_SECRET"),
		OIDCIssuer:       os.Getenv("OIDC_ISSUER"),
		OIDCClientID:     os.Getenv("OIDC_CLIENT_ID"),
		OIDCClientSecret: os.Getenv("OIDC_CLIENT_SECRET"),
		OIDCRedirectURL:  os.Getenv("OIDC_REDIRECT_URL"),
		UploadDir:        envOrDefault("UPLOAD_DIR", "./data/uploads"),
		CloudinaryURL:    os.Getenv("CLOUDINARY_URL"),
		Currency:         envOrDefault("CURRENCY", "BRL"),
		MailFrom:         os.Getenv("MAIL_FROM"),
		MailFromName:     envOrDefault("MAIL_FROM_NAME", "TaskPay"),
		AWSRegion:        os.Getenv("AWS_REGION"),
		SMTPHost:         os.Getenv("SMTP_HOST"),
		SMTPPort:         smtpPort,
		SMTPUsername:     os.Getenv("SMTP_USERNAME"),
		SMTPPassword:     os.Getenv("SMTP_PASSWORD"),
	}

	if config.SessionSecret == "" {
		return Config{}, fmt.Errorf("SESSION_SECRET is required")
	}

	return config, nil
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (config Config) SlogLevel() slog.Level {
	switch config.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
