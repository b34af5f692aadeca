package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tip-zed/tipzed/internal/logging"
)

func setupTestApp(t *testing.T) (*fiber.App, *int, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := logging.Discard()
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logger)})
	app.Use(Idempotency(cache, time.Minute, logger))

	calls := 0
	app.Post("/resource", func(c *fiber.Ctx) error {
		calls++
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"call": calls})
	})
	app.Post("/broken", func(c *fiber.Ctx) error {
		calls++
		return errors.New("boom")
	})

	cleanup := func() {
		cache.Close()
		mr.Close()
	}

	return app, &calls, cleanup
}

func postWithKey(t *testing.T, app *fiber.App, path, key string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	app, _, cleanup := setupTestApp(t)
	defer cleanup()

	status, _ := postWithKey(t, app, "/resource", "")
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, status)
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	status, payload := postWithKey(t, app, "/resource", "abc123")
	if status != fiber.StatusCreated {
		t.Fatalf("expected status %d got %d", fiber.StatusCreated, status)
	}

	// Second request should return the cached response without invoking handler again.
	status, cachedPayload := postWithKey(t, app, "/resource", "abc123")
	if status != fiber.StatusCreated {
		t.Fatalf("expected cached status %d got %d", fiber.StatusCreated, status)
	}
	if cachedPayload != payload {
		t.Fatalf("expected cached payload %s got %s", payload, cachedPayload)
	}
	if *calls != 1 {
		t.Fatalf("expected handler invoked once, got %d", *calls)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(cachedPayload), &decoded); err != nil {
		t.Fatalf("cached payload invalid json: %v", err)
	}
}

func TestIdempotencyKeysAreScopedToRoute(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	postWithKey(t, app, "/resource", "shared")
	status, _ := postWithKey(t, app, "/broken", "shared")
	if status != fiber.StatusInternalServerError {
		t.Fatalf("expected broken handler to run, got %d", status)
	}
	if *calls != 2 {
		t.Fatalf("expected both handlers invoked, got %d", *calls)
	}
}

func TestIdempotencyReleasesKeyOnError(t *testing.T) {
	app, calls, cleanup := setupTestApp(t)
	defer cleanup()

	postWithKey(t, app, "/broken", "retry-me")
	postWithKey(t, app, "/broken", "retry-me")
	if *calls != 2 {
		t.Fatalf("failed requests must be retryable, got %d calls", *calls)
	}
}
