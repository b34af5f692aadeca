package creator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tip-zed/tipzed/internal/apperr"
	"github.com/tip-zed/tipzed/internal/notification"
	"github.com/tip-zed/tipzed/internal/wallet"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9_]{3,30}$`)

// ErrInvalidInput rejects malformed registration data.
var ErrInvalidInput = apperr.New(http.StatusUnprocessableEntity, "invalid_input", "Username must be 3-30 lowercase letters, digits or underscores")

// Service manages creator lifecycle and keeps every creator paired with a wallet.
type Service struct {
	repo     Repository
	wallets  *wallet.Service
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService creates a new creator service.
func NewService(repo Repository, wallets *wallet.Service, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{repo: repo, wallets: wallets, notifier: notifier, logger: logger}
}

// Register creates a creator and provisions its wallet.
func (s *Service) Register(ctx context.Context, input RegisterInput) (Creator, wallet.Wallet, error) {
	username := strings.ToLower(strings.TrimSpace(input.Username))
	if !usernamePattern.MatchString(username) {
		return Creator{}, wallet.Wallet{}, ErrInvalidInput
	}
	email := strings.TrimSpace(input.Email)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return Creator{}, wallet.Wallet{}, apperr.New(http.StatusUnprocessableEntity, "invalid_input", "Email address is invalid")
		}
	}
	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		displayName = username
	}

	c := Creator{
		ID:          uuid.NewString(),
		Username:    username,
		DisplayName: displayName,
		Email:       email,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return Creator{}, wallet.Wallet{}, err
	}

	w, err := s.wallets.Provision(ctx, c.ID)
	if err != nil {
		return Creator{}, wallet.Wallet{}, fmt.Errorf("register creator %s: %w", c.ID, err)
	}

	s.logger.Info("creator registered", slog.String("creator_id", c.ID), slog.String("wallet_id", w.ID))
	notification.Deliver(ctx, s.notifier, s.logger, notification.Message{
		Kind:        notification.KindWalletCreated,
		Destination: c.ID,
		Body:        fmt.Sprintf("Welcome %s, your %s wallet is ready", c.DisplayName, w.Currency),
		Attributes:  map[string]string{"wallet_id": w.ID},
	})
	return c, w, nil
}

// Get returns a creator with its wallet. Provisioning is repeated so a
// creator whose wallet creation was interrupted gets one now.
func (s *Service) Get(ctx context.Context, id string) (Creator, wallet.Wallet, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return Creator{}, wallet.Wallet{}, err
	}
	w, err := s.wallets.Provision(ctx, c.ID)
	if err != nil {
		return Creator{}, wallet.Wallet{}, err
	}
	return c, w, nil
}

// FindByUsername looks a creator up by public handle.
func (s *Service) FindByUsername(ctx context.Context, username string) (Creator, error) {
	return s.repo.FindByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
}
