package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/cash-point/cashpoint/internal/atm"
	"github.com/cash-point/cashpoint/internal/config"
	"github.com/cash-point/cashpoint/internal/credential"
	"github.com/cash-point/cashpoint/internal/directory"
	"github.com/cash-point/cashpoint/internal/infra"
	"github.com/cash-point/cashpoint/internal/ledger"
	"github.com/cash-point/cashpoint/internal/notification"
	"github.com/cash-point/cashpoint/internal/routes"
	"github.com/cash-point/cashpoint/internal/session"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app      *fiber.App
	cfg      config.Config
	accounts *directory.Directory
	logger   *slog.Logger
}

// New loads the account directory, builds the services and delegates route
// wiring to routes.Setup.
func New(ctx context.Context, cfg config.Config, res *infra.Resources, logger *slog.Logger) (*Server, error) {
	if res == nil {
		res = &infra.Resources{}
	}

	repo, err := accountRepository(ctx, cfg, res.DB, logger)
	if err != nil {
		return nil, err
	}
	accounts := directory.New(repo)
	if err := accounts.Load(ctx); err != nil {
		return nil, err
	}
	logger.Info("accounts loaded", "count", len(accounts.All()))

	pins, err := credential.SchemeFor(cfg.PINScheme)
	if err != nil {
		return nil, err
	}

	led := ledger.New(ledger.WithLimitPolicy(ledger.LimitPolicy{
		MaxAmount: cfg.DailyWithdrawalLimit,
		MaxCount:  cfg.DailyWithdrawalCount,
	}))

	var notifier notification.Notifier = notification.NewLoggerNotifier(logger)
	if res.Events != nil {
		notifier = notification.NewKafkaNotifier(res.Events)
	}

	terminal := atm.NewService(accounts, led,
		atm.WithPINScheme(pins),
		atm.WithPINPolicy(credential.Policy{MinLength: cfg.PINMinLength, DigitsOnly: cfg.PINDigitsOnly}),
		atm.WithNotifier(notifier),
		atm.WithLogger(logger),
	)
	sessions := session.NewService([]byte(cfg.JWTSecret), cfg.SessionTTL, revocations(res.Cache))

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	if err := routes.Setup(app, routes.Deps{
		Cfg:      cfg,
		DB:       res.DB,
		Cache:    res.Cache,
		Logger:   logger,
		ATM:      terminal,
		Sessions: sessions,
	}); err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg, accounts: accounts, logger: logger}, nil
}

// App exposes the Fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown stops the HTTP server and writes the directory back to storage.
func (s *Server) Shutdown(ctx context.Context) error {
	httpErr := s.app.ShutdownWithContext(ctx)
	flushErr := s.accounts.Flush(ctx)
	if flushErr != nil {
		flushErr = fmt.Errorf("flush accounts: %w", flushErr)
	}
	return errors.Join(httpErr, flushErr)
}

func accountRepository(ctx context.Context, cfg config.Config, db *pgxpool.Pool, logger *slog.Logger) (directory.Repository, error) {
	switch {
	case db != nil:
		repo := directory.NewPostgresRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		logger.Info("account storage", "backend", "postgres")
		return repo, nil
	case cfg.SnapshotPath != "":
		logger.Info("account storage", "backend", "file", "path", cfg.SnapshotPath)
		return directory.NewFileRepository(cfg.SnapshotPath), nil
	default:
		logger.Warn("account storage is in memory; accounts are lost on exit")
		return directory.NewMemoryRepository(), nil
	}
}

func revocations(cache *redis.Client) session.Revocations {
	if cache == nil {
		return session.NewMemoryRevocations()
	}
	return session.NewRedisRevocations(cache)
}
