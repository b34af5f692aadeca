package creator

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/tip-zed/tipzed/internal/wallet"
)

// Handler exposes creator endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a creator HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

type creatorResponse struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Wallet      any       `json:"wallet"`
}

// Register handles creator onboarding.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	cr, w, err := h.service.Register(c.UserContext(), RegisterInput{
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Email:       req.Email,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toResponse(cr, w))
}

// Get returns a creator and its wallet.
func (h *Handler) Get(c *fiber.Ctx) error {
	cr, w, err := h.service.Get(c.UserContext(), c.Params("creatorId"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toResponse(cr, w))
}

func toResponse(c Creator, w wallet.Wallet) creatorResponse {
	return creatorResponse{
		ID:          c.ID,
		Username:    c.Username,
		DisplayName: c.DisplayName,
		Email:       c.Email,
		CreatedAt:   c.CreatedAt,
		Wallet:      wallet.NewWalletResponse(w),
	}
}
