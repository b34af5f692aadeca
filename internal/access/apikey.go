package access

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashAPIKey produces the bcrypt hash stored in SYSTEM_API_KEY_HASH.
func HashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash api key: %w", err)
	}
	return string(hash), nil
}

// Resolver turns request credentials into a Principal.
type Resolver struct {
	tokens     *Tokens
	apiKeyHash []byte
	systemID   string
}

// NewResolver builds a resolver. An empty apiKeyHash disables API-key auth.
func NewResolver(tokens *Tokens, apiKeyHash, systemID string) *Resolver {
	return &Resolver{tokens: tokens, apiKeyHash: []byte(apiKeyHash), systemID: systemID}
}

// Resolve authenticates either an "Authorization: Bearer" header value or a
// system API key. The API key takes precedence when both are present.
func (r *Resolver) Resolve(authorization, apiKey string) (Principal, error) {
	if apiKey != "" {
		if len(r.apiKeyHash) == 0 {
			return Principal{}, ErrUnauthenticated
		}
		if err := bcrypt.CompareHashAndPassword(r.apiKeyHash, []byte(apiKey)); err != nil {
			return Principal{}, ErrUnauthenticated
		}
		return System(r.systemID), nil
	}

	if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
		return Principal{}, ErrUnauthenticated
	}
	return r.tokens.Parse(strings.TrimSpace(authorization[len("Bearer "):]))
}
