package app

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kudiwallet/kudi/internal/auth"
	"github.com/kudiwallet/kudi/internal/cache"
	"github.com/kudiwallet/kudi/internal/config"
	"github.com/kudiwallet/kudi/internal/env"
	"github.com/kudiwallet/kudi/internal/errHandler"
	"github.com/kudiwallet/kudi/internal/helper"
	"github.com/kudiwallet/kudi/internal/ledger"
	"github.com/kudiwallet/kudi/internal/paystack"
	"github.com/kudiwallet/kudi/internal/repository"
	"github.com/kudiwallet/kudi/internal/smtp"
	"github.com/kudiwallet/kudi/internal/stream"
	"github.com/joho/godotenv"
)

// Essential services and resources are exposed to the application
// this makes it possible for methods to have access to these items as and when they need them
type Application struct {
	Config       config.Config
	DB           repository.Database
	Logger       *slog.Logger
	Mailer       *smtp.Mailer
	WG           sync.WaitGroup
	errorHandler *errHandler.ErrorRepository
	helper       *helper.HelperRepository
	Kafka        *stream.KafkaStream
	Cache        *cache.Cache
	Gate         *auth.Gate
	Keys         *auth.KeyService
	Ledger       *ledger.Ledger
}

func NewApplication(logger *slog.Logger) (*Application, error) {
	if err := godotenv.Load(); err != nil {
		logger.Error("Error loading .env file", "error", err)
	}

	var cfg config.Config

	// config values are loaded from the .env file
	// Default values are provided for these items and these should strictly be values for development mode only
	// make sure no production-level value is exposed as default value here
	cfg.BaseURL = env.GetString("BASE_URL", "http://localhost:4444")
	cfg.HttpPort = env.GetInt("HTTP_PORT", 4444)

	cfg.Db.Dsn = env.GetString("DB_DSN", "user:pass@localhost:5432/db")
	cfg.Db.Automigrate = env.GetBool("DB_AUTOMIGRATE", true)

	cfg.Jwt.SecretKey = env.GetString("JWT_SECRET_KEY", "ajf5nx3qmp6zquevllxocxqvyz42ypuo")

	cfg.Paystack.BaseURL = env.GetString("PAYSTACK_BASE_URL", "https://api.paystack.co")
	cfg.Paystack.SecretKey = env.GetString("PAYSTACK_SECRET_KEY", "")
	cfg.Paystack.WebhookSecret = env.GetString("PAYSTACK_WEBHOOK_SECRET", cfg.Paystack.SecretKey)
	cfg.Paystack.Timeout = time.Duration(env.GetInt("PAYSTACK_TIMEOUT_SECONDS", 10)) * time.Second

	cfg.ApiKeys.MaxPerUser = env.GetInt("API_KEYS_MAX_PER_USER", 5)
	cfg.Pagination.MaxPageSize = env.GetInt("PAGINATION_MAX_PAGE_SIZE", 100)

	// server errors won't be sent via email if the NOTIFICATIONS_EMAIL wasn't set in the .env file
	cfg.Notifications.Email = env.GetString("NOTIFICATIONS_EMAIL", "")

	cfg.Smtp.Host = env.GetString("SMTP_HOST", "example.smtp.host")
	cfg.Smtp.Port = env.GetInt("SMTP_PORT", 25)
	cfg.Smtp.Username = env.GetString("SMTP_USERNAME", "example_username")
	cfg.Smtp.Password = env.GetString("SMTP_PASSWORD", "pa55word")
	cfg.Smtp.From = env.GetString("SMTP_FROM", "Kudi <no_reply@example.org>")

	cfg.Redis.Addr = env.GetString("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Db = env.GetInt("REDIS_DB", 0)

	cfg.KafkaServers = env.GetString("KAFKA_SERVERS", "localhost:9092")

	db, err := repository.New(cfg.Db.Dsn, cfg.Db.Automigrate)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	mailer, err := smtp.NewMailer(cfg.Smtp.Host, cfg.Smtp.Port, cfg.Smtp.Username, cfg.Smtp.Password, cfg.Smtp.From)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mailer: %w", err)
	}

	app := &Application{
		Config: cfg,
		DB:     db,
		Logger: logger,
		Mailer: mailer,
	}

	helper := helper.New(&cfg.BaseURL, &app.WG, nil)
	errorHandler := errHandler.New(cfg.Notifications.Email, mailer, logger, helper)
	helper.SetErrorReporter(errorHandler)

	provider := paystack.New(cfg.Paystack.BaseURL, cfg.Paystack.SecretKey, cfg.Paystack.WebhookSecret, cfg.Paystack.Timeout)

	app.helper = helper
	app.errorHandler = errorHandler
	app.Kafka = stream.New(cfg.KafkaServers)
	app.Cache = cache.New(cfg.Redis.Addr, cfg.Redis.Db)
	app.Gate = auth.NewGate(db, cfg.Jwt.SecretKey, cfg.BaseURL)
	app.Keys = auth.NewKeyService(db, cfg.ApiKeys.MaxPerUser, logger)
	app.Ledger = ledger.New(db, provider, logger)

	return app, nil
}
