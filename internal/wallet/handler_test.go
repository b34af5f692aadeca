package wallet

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/tip-zed/tipzed/internal/access"
	"github.com/tip-zed/tipzed/internal/ledger"
	"github.com/tip-zed/tipzed/internal/logging"
	"github.com/tip-zed/tipzed/internal/middleware"
)

func newTestApp(svc *Service, as access.Principal) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(logging.Discard())})
	app.Use(func(c *fiber.Ctx) error {
		c.SetUserContext(access.WithPrincipal(c.UserContext(), as))
		return c.Next()
	})
	h := NewHandler(svc, access.NewCapabilityChecker())
	app.Get("/wallets/:walletId", h.Summary)
	app.Get("/wallets/:walletId/transactions", h.Transactions)
	app.Patch("/wallets/:walletId/verification", h.SetVerification)
	return app
}

func TestHandlerSummaryOwnership(t *testing.T) {
	svc, led := newTestService()
	ctx := context.Background()
	creatorID := uuid.NewString()
	w, _ := svc.Provision(ctx, creatorID)
	ledger.SeedBalance(ctx, led, w.ID, "12.5")

	owner := newTestApp(svc, access.Principal{ID: creatorID, Role: access.RoleCreator})
	resp, err := owner.Test(httptest.NewRequest(fiber.MethodGet, "/wallets/"+w.ID, nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	var body summaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK || body.Balance != "12.50" || body.Currency != "ZMW" {
		t.Fatalf("unexpected summary %d %+v", resp.StatusCode, body)
	}

	stranger := newTestApp(svc, access.Principal{ID: uuid.NewString(), Role: access.RoleCreator})
	resp, _ = stranger.Test(httptest.NewRequest(fiber.MethodGet, "/wallets/"+w.ID, nil))
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("expected 403 for stranger, got %d", resp.StatusCode)
	}

	resp, _ = owner.Test(httptest.NewRequest(fiber.MethodGet, "/wallets/"+uuid.NewString(), nil))
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestHandlerTransactionsFilter(t *testing.T) {
	svc, led := newTestService()
	ctx := context.Background()
	w, _ := svc.Provision(ctx, uuid.NewString())
	ledger.SeedBalance(ctx, led, w.ID, "5.00")

	app := newTestApp(svc, access.Principal{ID: "staff", Role: access.RoleStaff})
	resp, _ := app.Test(httptest.NewRequest(fiber.MethodGet, "/wallets/"+w.ID+"/transactions?type=cash_in&page_size=10", nil))
	var body pageResponse
	json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != fiber.StatusOK || body.Total != 1 || body.Items[0].Amount != "5.00" {
		t.Fatalf("unexpected page %d %+v", resp.StatusCode, body)
	}

	resp, _ = app.Test(httptest.NewRequest(fiber.MethodGet, "/wallets/"+w.ID+"/transactions?type=payout", nil))
	json.NewDecoder(resp.Body).Decode(&body)
	if body.Total != 0 {
		t.Fatalf("expected no payouts, got %d", body.Total)
	}

	resp, _ = app.Test(httptest.NewRequest(fiber.MethodGet, "/wallets/"+w.ID+"/transactions?status=lost", nil))
	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown status, got %d", resp.StatusCode)
	}
}

func TestHandlerSetVerification(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	w, _ := svc.Provision(ctx, uuid.NewString())
	app := newTestApp(svc, access.Principal{ID: "staff", Role: access.RoleStaff})

	req := httptest.NewRequest(fiber.MethodPatch, "/wallets/"+w.ID+"/verification", strings.NewReader(`{"verified":true}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, _ := app.Test(req)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	got, _ := svc.Get(ctx, w.ID)
	if !got.IsVerified {
		t.Fatalf("expected wallet verified")
	}

	req = httptest.NewRequest(fiber.MethodPatch, "/wallets/"+w.ID+"/verification", strings.NewReader(`{}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, _ = app.Test(req)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 without flag, got %d", resp.StatusCode)
	}
}
