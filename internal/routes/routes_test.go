package routes

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/tip-zed/tipzed/internal/access"
	"github.com/tip-zed/tipzed/internal/config"
	"github.com/tip-zed/tipzed/internal/logging"
	"github.com/tip-zed/tipzed/internal/middleware"
)

const (
	testSecret = "test-secret"
	testAPIKey = "sys-key"
)

type testEnv struct {
	app    *fiber.App
	tokens *access.Tokens
	mr     *miniredis.Miniredis
}

func newTestEnv(t *testing.T, withCache bool) *testEnv {
	t.Helper()
	keyHash, err := access.HashAPIKey(testAPIKey)
	if err != nil {
		t.Fatalf("hash api key: %v", err)
	}
	cfg := config.Config{
		AppName:           "TipZed",
		AppEnv:            "test",
		DefaultCurrency:   "ZMW",
		IdempotencyTTL:    time.Hour,
		JWTSecret:         testSecret,
		AccessTokenTTL:    time.Hour,
		SystemAPIKeyHash:  keyHash,
		SystemPrincipalID: "system",
		Payout: config.PayoutConfig{
			FeeRate:       decimal.RequireFromString("0.10"),
			SweepEnabled:  true,
			SweepSchedule: "@daily",
		},
	}
	d := Deps{Cfg: cfg, Logger: logging.Discard()}
	env := &testEnv{tokens: access.NewTokens(testSecret, time.Hour, cfg.AppName)}
	if withCache {
		env.mr = miniredis.RunT(t)
		d.Cache = redis.NewClient(&redis.Options{Addr: env.mr.Addr()})
		t.Cleanup(func() { _ = d.Cache.Close() })
	}

	services, err := NewServices(d)
	if err != nil {
		t.Fatalf("services: %v", err)
	}
	env.app = fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(d.Logger)})
	Setup(env.app, d, services)
	return env
}

func (e *testEnv) do(t *testing.T, as access.Principal, method, path, body string, headers ...string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if as.ID != "" {
		token, err := e.tokens.Issue(as)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := e.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test %s %s: %v", method, path, err)
	}
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

var staffPrincipal = access.Principal{ID: "staff-1", Role: access.RoleStaff}

func TestPayoutFlowEndToEnd(t *testing.T) {
	env := newTestEnv(t, false)

	status, body := env.do(t, staffPrincipal, http.MethodPost, "/api/v1/creators", `{"username":"Mwila_Art","email":"mwila@example.com"}`)
	if status != http.StatusCreated {
		t.Fatalf("register: %d %v", status, body)
	}
	creatorID := body["id"].(string)
	walletID := body["wallet"].(map[string]any)["id"].(string)
	creatorPrincipal := access.Principal{ID: creatorID, Role: access.RoleCreator}

	status, _ = env.do(t, staffPrincipal, http.MethodPost, "/api/v1/wallets/"+walletID+"/cash-in", `{"amount":"100.00","payment_ref":"mm-1"}`)
	if status != http.StatusCreated {
		t.Fatalf("cash-in: %d", status)
	}

	status, body = env.do(t, staffPrincipal, http.MethodPost, "/api/v1/wallets/"+walletID+"/payouts", "")
	if status != http.StatusUnprocessableEntity || body["message"] != "KYC not verified. Payouts are blocked" {
		t.Fatalf("expected kyc rejection, got %d %v", status, body)
	}

	status, _ = env.do(t, staffPrincipal, http.MethodPatch, "/api/v1/wallets/"+walletID+"/verification", `{"verified":true}`)
	if status != http.StatusOK {
		t.Fatalf("verify: %d", status)
	}

	status, _ = env.do(t, creatorPrincipal, http.MethodPost, "/api/v1/wallets/"+walletID+"/payouts", "")
	if status != http.StatusForbidden {
		t.Fatalf("creators must not initiate payouts, got %d", status)
	}

	status, body = env.do(t, staffPrincipal, http.MethodPost, "/api/v1/wallets/"+walletID+"/payouts", "")
	if status != http.StatusCreated {
		t.Fatalf("initiate: %d %v", status, body)
	}
	payoutID := body["payout"].(map[string]any)["id"].(string)

	status, body = env.do(t, creatorPrincipal, http.MethodGet, "/api/v1/wallets/"+walletID, "")
	if status != http.StatusOK || body["balance"] != "0.00" || body["pending_payout"] != "90.00" {
		t.Fatalf("summary after initiate: %d %v", status, body)
	}

	status, _ = env.do(t, staffPrincipal, http.MethodPost, "/api/v1/payouts/"+payoutID+"/finalize", `{"success":false}`)
	if status != http.StatusOK {
		t.Fatalf("finalize: %d", status)
	}

	status, body = env.do(t, creatorPrincipal, http.MethodGet, "/api/v1/wallets/"+walletID, "")
	if status != http.StatusOK || body["balance"] != "90.00" || body["fees"] != "10.00" {
		t.Fatalf("summary after failure: %d %v", status, body)
	}

	status, body = env.do(t, creatorPrincipal, http.MethodGet, "/api/v1/wallets/"+walletID+"/transactions?type=payout,payout_reversal", "")
	if status != http.StatusOK || body["total"].(float64) != 2 {
		t.Fatalf("transactions: %d %v", status, body)
	}

	status, body = env.do(t, creatorPrincipal, http.MethodGet, "/api/v1/creators/"+creatorID, "")
	if status != http.StatusOK || body["username"] != "mwila_art" {
		t.Fatalf("creator lookup: %d %v", status, body)
	}
}

func TestProtectedRoutesRequireAuthentication(t *testing.T) {
	env := newTestEnv(t, false)

	status, body := env.do(t, access.Principal{}, http.MethodGet, "/api/v1/wallets/any", "")
	if status != http.StatusUnauthorized || body["error"] != "unauthenticated" {
		t.Fatalf("expected 401, got %d %v", status, body)
	}

	status, _ = env.do(t, access.Principal{ID: "creator", Role: access.RoleCreator}, http.MethodPost, "/api/v1/creators", `{"username":"someone"}`)
	if status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", status)
	}
}

func TestHealthAndPing(t *testing.T) {
	env := newTestEnv(t, false)

	status, body := env.do(t, access.Principal{}, http.MethodGet, "/healthz", "")
	if status != http.StatusOK || body["next_payout_sweep"] == nil {
		t.Fatalf("healthz: %d %v", status, body)
	}
	status, body = env.do(t, access.Principal{}, http.MethodGet, "/api/v1/ping", "")
	if status != http.StatusOK || body["request_id"] == "" {
		t.Fatalf("ping: %d %v", status, body)
	}
}

func TestPayoutRoutesAreIdempotent(t *testing.T) {
	env := newTestEnv(t, true)

	_, body := env.do(t, staffPrincipal, http.MethodPost, "/api/v1/creators", `{"username":"chanda"}`)
	walletID := body["wallet"].(map[string]any)["id"].(string)
	env.do(t, staffPrincipal, http.MethodPatch, "/api/v1/wallets/"+walletID+"/verification", `{"verified":true}`)
	status, _ := env.do(t, staffPrincipal, http.MethodPost, "/api/v1/wallets/"+walletID+"/cash-in", `{"amount":50,"payment_ref":"mm-2"}`, "Idempotency-Key", "cash-1")
	if status != http.StatusCreated {
		t.Fatalf("cash-in: %d", status)
	}

	status, _ = env.do(t, staffPrincipal, http.MethodPost, "/api/v1/wallets/"+walletID+"/payouts", "")
	if status != http.StatusBadRequest {
		t.Fatalf("expected missing key rejection, got %d", status)
	}

	status, first := env.do(t, staffPrincipal, http.MethodPost, "/api/v1/wallets/"+walletID+"/payouts", "", "Idempotency-Key", "payout-1")
	if status != http.StatusCreated {
		t.Fatalf("initiate: %d %v", status, first)
	}
	status, replayed := env.do(t, staffPrincipal, http.MethodPost, "/api/v1/wallets/"+walletID+"/payouts", "", "Idempotency-Key", "payout-1")
	if status != http.StatusCreated {
		t.Fatalf("replay: %d %v", status, replayed)
	}
	firstID := first["payout"].(map[string]any)["id"]
	if replayed["payout"].(map[string]any)["id"] != firstID {
		t.Fatalf("replay returned a different payout")
	}
}

func TestIssueTokenWithAPIKey(t *testing.T) {
	env := newTestEnv(t, false)

	status, body := env.do(t, access.Principal{}, http.MethodPost, "/api/v1/auth/tokens", `{"subject":"staff-9","role":"staff"}`, "X-API-Key", testAPIKey)
	if status != http.StatusCreated || body["token_type"] != "Bearer" || body["expires_in"].(float64) != 3600 {
		t.Fatalf("issue: %d %v", status, body)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/creators", strings.NewReader(`{"username":"bwalya"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+body["access_token"].(string))
	resp, err := env.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("issued staff token should register creators, got %d", resp.StatusCode)
	}

	status, _ = env.do(t, staffPrincipal, http.MethodPost, "/api/v1/auth/tokens", `{"subject":"x","role":"staff"}`)
	if status != http.StatusForbidden {
		t.Fatalf("staff must not mint tokens, got %d", status)
	}
	status, _ = env.do(t, access.Principal{}, http.MethodPost, "/api/v1/auth/tokens", `{"subject":"x","role":"system"}`, "X-API-Key", testAPIKey)
	if status != http.StatusBadRequest {
		t.Fatalf("system tokens must not be minted, got %d", status)
	}
	status, _ = env.do(t, access.Principal{}, http.MethodPost, "/api/v1/auth/tokens", `{"subject":"x","role":"staff"}`, "X-API-Key", "wrong")
	if status != http.StatusUnauthorized {
		t.Fatalf("wrong api key should be rejected, got %d", status)
	}
}
