package payouts

import (
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

func newTestApp(f *fixture, as access.Principal) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(logging.Discard())})
	app.Use(func(c *fiber.Ctx) error {
		c.SetUserContext(access.WithPrincipal(c.UserContext(), as))
		return c.Next()
	})
	h := NewHandler(f.orch, NewSweeper(f.orch, f.wallets, logging.Discard(), 1), access.NewCapabilityChecker())
	app.Post("/wallets/:walletId/payouts", h.Initiate)
	app.Get("/wallets/:walletId/payouts/preview", h.Preview)
	app.Post("/payouts/sweep", h.Sweep)
	app.Post("/payouts/:transactionId/finalize", h.Finalize)
	return app
}

func TestHandlerInitiateAndFinalize(t *testing.T) {
	f := newFixture(t, Config{})
	w := f.wallet(t, "100.00", true)
	app := newTestApp(f, staff)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/wallets/"+w.ID+"/payouts", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created initiateResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Payout.Amount != "-90.00" || created.Fee != "10.00" || created.Gross != "100.00" {
		t.Fatalf("unexpected body %+v", created)
	}

	req := httptest.NewRequest(fiber.MethodPost, "/payouts/"+created.Payout.ID+"/finalize", strings.NewReader(`{}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, _ = app.Test(req)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 without success flag, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest(fiber.MethodPost, "/payouts/"+created.Payout.ID+"/finalize", strings.NewReader(`{"success":true}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, _ = app.Test(req)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest(fiber.MethodPost, "/payouts/"+created.Payout.ID+"/finalize", strings.NewReader(`{"success":false}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, _ = app.Test(req)
	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected 422 on second finalize, got %d", resp.StatusCode)
	}
	var body map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body["message"] != ledger.ReasonOnlyPending {
		t.Fatalf("unexpected error body %+v", body)
	}

	req = httptest.NewRequest(fiber.MethodPost, "/payouts/"+uuid.NewString()+"/finalize", strings.NewReader(`{"success":true}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, _ = app.Test(req)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404 for unknown payout, got %d", resp.StatusCode)
	}
}

func TestHandlerInitiateErrors(t *testing.T) {
	f := newFixture(t, Config{})
	unverified := f.wallet(t, "100.00", false)

	resp, _ := newTestApp(f, staff).Test(httptest.NewRequest(fiber.MethodPost, "/wallets/"+unverified.ID+"/payouts", nil))
	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unverified wallet, got %d", resp.StatusCode)
	}
	var body map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body["error"] != "invalid_transaction" || body["message"] != ledger.ReasonKYCNotVerified {
		t.Fatalf("unexpected error body %+v", body)
	}

	creator := access.Principal{ID: unverified.CreatorID, Role: access.RoleCreator}
	resp, _ = newTestApp(f, creator).Test(httptest.NewRequest(fiber.MethodPost, "/wallets/"+unverified.ID+"/payouts", nil))
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("expected 403 for creator, got %d", resp.StatusCode)
	}
}

func TestHandlerPreviewOwnership(t *testing.T) {
	f := newFixture(t, Config{})
	w := f.wallet(t, "40.00", true)

	owner := access.Principal{ID: w.CreatorID, Role: access.RoleCreator}
	resp, err := newTestApp(f, owner).Test(httptest.NewRequest(fiber.MethodGet, "/wallets/"+w.ID+"/payouts/preview", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	var body previewResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK || body.Net != "36.00" || body.Fee != "4.00" || !body.Eligible {
		t.Fatalf("unexpected preview %d %+v", resp.StatusCode, body)
	}

	stranger := access.Principal{ID: uuid.NewString(), Role: access.RoleCreator}
	resp, _ = newTestApp(f, stranger).Test(httptest.NewRequest(fiber.MethodGet, "/wallets/"+w.ID+"/payouts/preview", nil))
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestHandlerSweep(t *testing.T) {
	f := newFixture(t, Config{})
	f.wallet(t, "10.00", true)
	f.wallet(t, "20.00", true)

	resp, err := newTestApp(f, staff).Test(httptest.NewRequest(fiber.MethodPost, "/payouts/sweep", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	var body sweepResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK || body.Attempted != 2 || len(body.Initiated) != 2 || len(body.Failures) != 0 {
		t.Fatalf("unexpected sweep %d %+v", resp.StatusCode, body)
	}
}
