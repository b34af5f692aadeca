package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

const healthProbeTimeout = 2 * time.Second

type dependencyProbe struct {
	name string
	// absent is reported when the dependency is not configured.
	absent string
	ping   func(ctx context.Context) error
}

func (p dependencyProbe) check(ctx context.Context) (string, bool) {
	if p.ping == nil {
		return p.absent, true
	}
	if err := p.ping(ctx); err != nil {
		return err.Error(), false
	}
	return "ok", true
}

// RegisterHealthRoutes exposes /healthz: store reachability plus the next
// automatic payout sweep when one is scheduled.
func RegisterHealthRoutes(app *fiber.App, d Deps, s *Services) {
	probes := []dependencyProbe{
		{name: "postgres", absent: "in-memory"},
		{name: "redis", absent: "disabled"},
	}
	if d.DB != nil {
		probes[0].ping = d.DB.Ping
	}
	if d.Cache != nil {
		probes[1].ping = func(ctx context.Context) error { return d.Cache.Ping(ctx).Err() }
	}

	app.Get("/healthz", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), healthProbeTimeout)
		defer cancel()

		code := http.StatusOK
		deps := fiber.Map{}
		for _, p := range probes {
			state, healthy := p.check(ctx)
			deps[p.name] = state
			if !healthy {
				code = http.StatusServiceUnavailable
			}
		}

		now := time.Now().UTC()
		body := fiber.Map{"status": deps, "timestamp": now.Format(time.RFC3339Nano)}
		if s.Schedule != nil {
			body["next_payout_sweep"] = s.Schedule.Next(now).Format(time.RFC3339)
		}
		return c.Status(code).JSON(body)
	})
}
