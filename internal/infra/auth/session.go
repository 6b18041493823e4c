package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"iap-sync-engine/internal/domain/ports/adapter"
	derror "iap-sync-engine/internal/error"
)

// TokenStore holds the signed-in user's access token.
type TokenStore interface {
	// Get returns the cached token, or derror.ErrNotSignedIn when absent.
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

var _ adapter.SessionManager = (*SessionManager)(nil)

// SessionManager hands out the access token for reconciliation calls.
// Tokens are JWTs minted by the entitlement server; only time-validity is
// checked locally (the signature is the server's concern), so a token that
// already expired fails fast instead of burning a round-trip.
type SessionManager struct {
	store  TokenStore
	leeway time.Duration
	log    *zerolog.Logger
}

func NewSessionManager(store TokenStore, logger *zerolog.Logger) *SessionManager {
	return &SessionManager{store: store, leeway: 30 * time.Second, log: logger}
}

func (m *SessionManager) GetAccessToken(ctx context.Context) (string, error) {
	token, err := m.store.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("session token lookup: %w", err)
	}
	if token == "" {
		return "", derror.ErrNotSignedIn
	}

	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		// Opaque (non-JWT) tokens pass through; the server decides.
		m.log.Debug().Msg("session token is not a JWT, skipping expiry check")
		return token, nil
	}
	if claims.ExpiresAt != nil && time.Now().Add(-m.leeway).After(claims.ExpiresAt.Time) {
		return "", fmt.Errorf("access token expired at %s: %w", claims.ExpiresAt.Time, derror.ErrNotSignedIn)
	}
	return token, nil
}

// SignIn caches the token handed back by the auth flow.
func (m *SessionManager) SignIn(ctx context.Context, token string) error {
	if token == "" {
		return derror.ErrInvalidArgument
	}
	return m.store.Set(ctx, token)
}

// SignOut drops the cached token; subsequent reconciliations fail with
// derror.ErrNotSignedIn until a new sign-in.
func (m *SessionManager) SignOut(ctx context.Context) error {
	return m.store.Clear(ctx)
}
