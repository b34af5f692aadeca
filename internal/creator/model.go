package creator

import (
	"time"

	"github.com/tip-zed/tipzed/internal/apperr"
)

var (
	// ErrNotFound is returned when a creator does not exist.
	ErrNotFound = apperr.NotFound("creator_not_found", "Creator not found")
	// ErrUsernameTaken is returned when registering an existing username.
	ErrUsernameTaken = apperr.Conflict("username_taken", "Username is already taken")
)

// Creator is a tip recipient. Each creator owns exactly one wallet.
type Creator struct {
	ID          string
	Username    string
	DisplayName string
	Email       string
	CreatedAt   time.Time
}

// RegisterInput captures the data needed to register a creator.
type RegisterInput struct {
	Username    string
	DisplayName string
	Email       string
}
