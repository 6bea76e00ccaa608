// Package auth implements bearer-token authentication for the KeyHub gateway.
// Tokens are validated against the store and cached in a W-TinyLFU cache.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/maypok86/otter/v2"

	gateway "github.com/keyhub-gw/keyhub/internal"
	"github.com/keyhub-gw/keyhub/internal/storage"
)

const (
	cacheTTL    = 30 * time.Second // short enough to pick up token revocations promptly
	cacheMaxLen = 10_000
)

// Sentinel errors distinguish the two 401 shapes the surface must produce.
var (
	ErrMissingHeader = fmt.Errorf("missing or invalid authorization header: %w", gateway.ErrUnauthorized)
	ErrInvalidToken  = fmt.Errorf("invalid token: %w", gateway.ErrUnauthorized)
)

// TokenAuth authenticates requests using KeyHub-issued "kh-" bearer tokens.
type TokenAuth struct {
	store       storage.TokenStore
	cache       *otter.Cache[string, *gateway.Token]
	idToValue   sync.Map // tokenID -> token value, for cache invalidation by id
}

// NewTokenAuth returns a TokenAuth backed by store.
func NewTokenAuth(store storage.TokenStore) (*TokenAuth, error) {
	c, err := otter.New(&otter.Options[string, *gateway.Token]{
		MaximumSize:      cacheMaxLen,
		ExpiryCalculator: otter.ExpiryWriting[string, *gateway.Token](cacheTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("create auth cache: %w", err)
	}
	return &TokenAuth{store: store, cache: c}, nil
}

// Authenticate extracts the Bearer value from the Authorization header,
// resolves it to a Token, and touches lastUsed best-effort.
func (a *TokenAuth) Authenticate(ctx context.Context, r *http.Request) (*gateway.Token, error) {
	header := r.Header.Get("Authorization")
	raw := strings.TrimPrefix(header, "Bearer ")
	if raw == "" || raw == header {
		return nil, ErrMissingHeader
	}

	tok, ok := a.cache.GetIfPresent(raw)
	if !ok {
		var err error
		tok, err = a.store.GetTokenByValue(ctx, raw)
		if err != nil {
			return nil, err
		}
		if tok == nil {
			return nil, ErrInvalidToken
		}
		a.cache.Set(raw, tok)
		a.idToValue.Store(tok.ID, raw)
	}

	if !tok.Enabled {
		return nil, gateway.ErrTokenDisabled
	}

	// Touch last-used asynchronously; auth never waits on a write.
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		a.store.TouchTokenUsed(ctx, tok.ID) //nolint:errcheck
	}()

	return tok, nil
}

// Invalidate removes a cached token by id. Called when management operations
// update or delete a token.
func (a *TokenAuth) Invalidate(tokenID string) {
	if value, ok := a.idToValue.LoadAndDelete(tokenID); ok {
		a.cache.Invalidate(value.(string))
	}
}
