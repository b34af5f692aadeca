package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tip-zed/tipzed/internal/access"
	"github.com/tip-zed/tipzed/internal/apperr"
	"github.com/tip-zed/tipzed/internal/ledger"
	"github.com/tip-zed/tipzed/internal/logging"
)

func TestClassify(t *testing.T) {
	notFound := apperr.NotFound("payout_not_found", "Payout not found")
	cases := []struct {
		err    error
		status int
		code   string
		msg    string
	}{
		{fmt.Errorf("wrapped: %w", notFound), 404, "payout_not_found", "Payout not found"},
		{fmt.Errorf("payout: %w", ledger.Invalid(ledger.ReasonPendingPayout)), 422, "invalid_transaction", ledger.ReasonPendingPayout},
		{fmt.Errorf("payout: %w", ledger.ErrInsufficientBalance), 422, "insufficient_balance", "Insufficient balance"},
		{access.ErrInvalidToken, 401, "unauthenticated", "Authentication required"},
		{fiber.NewError(fiber.StatusForbidden, "permission denied"), 403, "forbidden", "permission denied"},
		{errors.New("db down"), 500, "internal_error", "db down"},
	}
	for _, tc := range cases {
		status, code, msg := Classify(tc.err)
		if status != tc.status || code != tc.code || msg != tc.msg {
			t.Fatalf("%v: got (%d, %s, %s)", tc.err, status, code, msg)
		}
	}
}

func TestErrorHandlerHidesInternalErrors(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.Discard())})
	app.Get("/fail", func(c *fiber.Ctx) error { return errors.New("connection refused") })

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/fail", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	var body errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != 500 || body.Status != "failed" || body.Message != "internal server error" {
		t.Fatalf("unexpected response %d %+v", resp.StatusCode, body)
	}
}

func newAuthApp(t *testing.T) (*fiber.App, *access.Tokens) {
	t.Helper()
	hash, err := access.HashAPIKey("system-key")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	tokens := access.NewTokens("secret", time.Minute, "tipzed")
	resolver := access.NewResolver(tokens, hash, "scheduler")

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.Discard())})
	app.Use(Authenticate(resolver))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		p, _ := access.FromContext(c.UserContext())
		return c.JSON(fiber.Map{"id": p.ID, "role": p.Role})
	})
	app.Post("/admin", RequireCapability(access.NewCapabilityChecker(), access.CapabilityManagePayouts), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app, tokens
}

func TestAuthenticate(t *testing.T) {
	app, tokens := newAuthApp(t)

	resp, _ := app.Test(httptest.NewRequest(fiber.MethodGet, "/whoami", nil))
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", resp.StatusCode)
	}

	req := httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
	req.Header.Set(apiKeyHeader, "system-key")
	resp, _ = app.Test(req)
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != fiber.StatusOK || body["id"] != "scheduler" || body["role"] != "system" {
		t.Fatalf("unexpected api key response %d %v", resp.StatusCode, body)
	}

	creatorToken, _ := tokens.Issue(access.Principal{ID: "c-1", Role: access.RoleCreator})
	req = httptest.NewRequest(fiber.MethodPost, "/admin", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+creatorToken)
	resp, _ = app.Test(req)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("expected creator forbidden, got %d", resp.StatusCode)
	}

	staffToken, _ := tokens.Issue(access.Principal{ID: "s-1", Role: access.RoleStaff})
	req = httptest.NewRequest(fiber.MethodPost, "/admin", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+staffToken)
	resp, _ = app.Test(req)
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected staff allowed, got %d", resp.StatusCode)
	}
}

func TestRateLimit(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.Discard())})
	app.Use(RateLimit(cache, "rl:test:", 2, time.Minute, logging.Discard()))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	for i := 0; i < 2; i++ {
		resp, _ := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, resp.StatusCode)
		}
	}
	resp, _ := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}

	mr.FastForward(time.Minute + time.Second)
	resp, _ = app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected window reset, got %d", resp.StatusCode)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(c.Locals(requestIDHeader).(string)) })

	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "req-42")
	resp, _ := app.Test(req)
	if resp.Header.Get(requestIDHeader) != "req-42" {
		t.Fatalf("expected request id echoed, got %q", resp.Header.Get(requestIDHeader))
	}

	resp, _ = app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	if resp.Header.Get(requestIDHeader) == "" {
		t.Fatalf("expected generated request id")
	}
}
