package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/tip-zed/tipzed/internal/access"
	"github.com/tip-zed/tipzed/internal/cashin"
	"github.com/tip-zed/tipzed/internal/config"
	"github.com/tip-zed/tipzed/internal/creator"
	"github.com/tip-zed/tipzed/internal/ledger"
	"github.com/tip-zed/tipzed/internal/middleware"
	"github.com/tip-zed/tipzed/internal/notification"
	"github.com/tip-zed/tipzed/internal/payouts"
	"github.com/tip-zed/tipzed/internal/wallet"
)

const (
	apiRateLimit  = 120
	apiRateWindow = time.Minute
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Services is the wired application graph shared by the HTTP routes and
// the background sweep.
type Services struct {
	Ledger   *ledger.Service
	Wallets  *wallet.Service
	Creators *creator.Service
	CashIn   *cashin.Service
	Payouts  *payouts.Orchestrator
	Sweeper  *payouts.Sweeper
	Checker  access.Checker
	Tokens   *access.Tokens
	Resolver *access.Resolver
	// Schedule is nil when the automatic sweep is disabled.
	Schedule cron.Schedule
}

// NewServices builds the application services on Postgres when a pool is
// available and on in-memory stores otherwise.
func NewServices(d Deps) (*Services, error) {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	var (
		ledgerStore ledger.Store
		walletRepo  wallet.Repository
		creatorRepo creator.Repository
	)
	if d.DB != nil {
		ledgerStore = ledger.NewPostgresStore(d.DB)
		walletRepo = wallet.NewPostgresRepository(d.DB)
		creatorRepo = creator.NewPostgresRepository(d.DB)
	} else {
		ledgerStore = ledger.NewInMemory()
		walletRepo = wallet.NewMemoryRepository()
		creatorRepo = creator.NewMemoryRepository()
	}

	var schedule cron.Schedule
	if d.Cfg.Payout.SweepEnabled {
		parsed, err := payouts.ParseSchedule(d.Cfg.Payout.SweepSchedule)
		if err != nil {
			return nil, fmt.Errorf("parse PAYOUT_SWEEP_SCHEDULE: %w", err)
		}
		schedule = parsed
	}

	notifier := notification.NewLoggerNotifier(d.Logger)
	checker := access.NewCapabilityChecker()
	led := ledger.NewService(ledgerStore)
	wallets := wallet.NewService(walletRepo, led, d.Cfg.DefaultCurrency, d.Logger)

	cashIn, err := cashin.NewService(led, wallets, cashin.StaticGateway{}, notifier, d.Logger)
	if err != nil {
		return nil, err
	}
	orchestrator := payouts.NewOrchestrator(led, wallets, checker, notifier, d.Logger, payouts.Config{
		FeeRate:            d.Cfg.Payout.FeeRate,
		RefundFeeOnFailure: d.Cfg.Payout.RefundFeeOnFailure,
		Schedule:           schedule,
	})
	tokens := access.NewTokens(d.Cfg.JWTSecret, d.Cfg.AccessTokenTTL, d.Cfg.AppName)

	return &Services{
		Ledger:   led,
		Wallets:  wallets,
		Creators: creator.NewService(creatorRepo, wallets, notifier, d.Logger),
		CashIn:   cashIn,
		Payouts:  orchestrator,
		Sweeper:  payouts.NewSweeper(orchestrator, wallets, d.Logger, 0),
		Checker:  checker,
		Tokens:   tokens,
		Resolver: access.NewResolver(tokens, d.Cfg.SystemAPIKeyHash, d.Cfg.SystemPrincipalID),
		Schedule: schedule,
	}, nil
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps, s *Services) {
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d, s)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	protected := api.Group("",
		middleware.Authenticate(s.Resolver),
		middleware.RateLimit(d.Cache, "ratelimit:api:", apiRateLimit, apiRateWindow, d.Logger),
	)

	idempotent := func(c *fiber.Ctx) error { return c.Next() }
	if d.Cache != nil {
		idempotent = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	}

	RegisterAuthRoutes(protected, s)
	RegisterCreatorRoutes(protected, s)
	RegisterWalletRoutes(protected, s, idempotent)
	RegisterPayoutRoutes(protected, s, idempotent)
}
