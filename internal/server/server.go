package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/tip-zed/tipzed/internal/access"
	"github.com/tip-zed/tipzed/internal/config"
	"github.com/tip-zed/tipzed/internal/middleware"
	"github.com/tip-zed/tipzed/internal/payouts"
	"github.com/tip-zed/tipzed/internal/routes"
)

// Server wraps the Fiber application, the payout scheduler and shared dependencies.
type Server struct {
	app       *fiber.App
	cfg       config.Config
	scheduler *payouts.Scheduler
	logger    *slog.Logger
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
// db and cache may be nil in development, in which case in-memory stores back
// the services and the sweep runs without a distributed lock.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Server, error) {
	deps := routes.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger}
	services, err := routes.NewServices(deps)
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: middleware.ErrorHandler(logger),
	})
	routes.Setup(app, deps, services)

	s := &Server{app: app, cfg: cfg, logger: logger}
	if services.Schedule != nil {
		s.scheduler = payouts.NewScheduler(
			services.Sweeper,
			services.Schedule,
			access.System(cfg.SystemPrincipalID),
			cache,
			cfg.Payout.SweepLockTTL,
			logger,
		)
	}
	return s, nil
}

// App exposes the underlying Fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the payout scheduler and then the HTTP server.
func (s *Server) Listen() error {
	if s.scheduler != nil {
		s.scheduler.Start()
	}
	return s.app.Listen(s.cfg.Address())
}

// Shutdown stops the scheduler, waiting for a running sweep, and then the
// HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.scheduler != nil {
		if err := s.scheduler.Stop(ctx); err != nil {
			s.logger.Warn("payout scheduler did not stop in time", slog.Any("error", err))
		}
	}
	return s.app.ShutdownWithContext(ctx)
}
