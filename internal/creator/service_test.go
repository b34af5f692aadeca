package creator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/tip-zed/tipzed/internal/ledger"
	"github.com/tip-zed/tipzed/internal/logging"
	"github.com/tip-zed/tipzed/internal/middleware"
	"github.com/tip-zed/tipzed/internal/notification"
	"github.com/tip-zed/tipzed/internal/wallet"
)

type testNotifier struct {
	sent []notification.Message
}

func (n *testNotifier) Send(_ context.Context, msg notification.Message) error {
	n.sent = append(n.sent, msg)
	return nil
}

func newTestService() (*Service, *wallet.Service, *testNotifier) {
	led := ledger.NewService(ledger.NewInMemory())
	wallets := wallet.NewService(wallet.NewMemoryRepository(), led, "ZMW", logging.Discard())
	notifier := &testNotifier{}
	return NewService(NewMemoryRepository(), wallets, notifier, logging.Discard()), wallets, notifier
}

func TestRegisterProvisionsWallet(t *testing.T) {
	svc, wallets, notifier := newTestService()
	ctx := context.Background()

	c, w, err := svc.Register(ctx, RegisterInput{Username: " Mwila_Art ", Email: "mwila@example.com"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if c.Username != "mwila_art" || c.DisplayName != "mwila_art" {
		t.Fatalf("unexpected creator: %+v", c)
	}
	if w.CreatorID != c.ID {
		t.Fatalf("wallet not linked to creator: %+v", w)
	}
	owned, err := wallets.GetByCreator(ctx, c.ID)
	if err != nil || owned.ID != w.ID {
		t.Fatalf("expected wallet lookup by creator, got %+v %v", owned, err)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].Kind != notification.KindWalletCreated {
		t.Fatalf("expected wallet_created notification, got %+v", notifier.sent)
	}

	_, again, err := svc.Get(ctx, c.ID)
	if err != nil || again.ID != w.ID {
		t.Fatalf("expected same wallet on get, got %+v %v", again, err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, RegisterInput{Username: "ab"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid username, got %v", err)
	}
	if _, _, err := svc.Register(ctx, RegisterInput{Username: "valid_name", Email: "nope"}); err == nil {
		t.Fatalf("expected invalid email to fail")
	}
	if _, _, err := svc.Register(ctx, RegisterInput{Username: "taken"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, _, err := svc.Register(ctx, RegisterInput{Username: "TAKEN"}); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected username taken, got %v", err)
	}
}

func TestHandlerRegister(t *testing.T) {
	svc, _, _ := newTestService()
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(logging.Discard())})
	h := NewHandler(svc)
	app.Post("/creators", h.Register)
	app.Get("/creators/:creatorId", h.Get)

	req := httptest.NewRequest(fiber.MethodPost, "/creators", strings.NewReader(`{"username":"chanda","display_name":"Chanda"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var body struct {
		ID     string `json:"id"`
		Wallet struct {
			ID       string `json:"id"`
			Currency string `json:"currency"`
		} `json:"wallet"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Wallet.ID == "" || body.Wallet.Currency != "ZMW" {
		t.Fatalf("expected wallet in response, got %+v", body)
	}

	resp, _ = app.Test(httptest.NewRequest(fiber.MethodGet, "/creators/"+body.ID, nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp, _ = app.Test(httptest.NewRequest(fiber.MethodGet, "/creators/missing", nil))
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest(fiber.MethodPost, "/creators", strings.NewReader(`{"username":"chanda"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, _ = app.Test(req)
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", resp.StatusCode)
	}
}
