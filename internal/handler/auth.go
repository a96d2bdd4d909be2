package handler

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/auth"
)

// APIKeyHeader carries the admin API key.
const APIKeyHeader = "X-API-Key"

// verifiedTTL bounds how long a revoked key keeps its own rate limit budget.
const verifiedTTL = time.Minute

var (
	errUnauthorized = echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	errForbidden    = echo.NewHTTPError(http.StatusForbidden, "forbidden")
)

// Authenticator checks admin API keys hashed with HMAC-SHA256.
type Authenticator struct {
	apikeys  auth.Repository
	pepper   []byte
	verified *cache.Cache
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(apikeys auth.Repository, pepper []byte) *Authenticator {
	return &Authenticator{
		apikeys:  apikeys,
		pepper:   pepper,
		verified: cache.New(verifiedTTL, 2*verifiedTTL),
	}
}

// Authenticate resolves raw to an active key. Unknown and inactive keys
// yield a 401 error; repository failures are returned wrapped.
func (a *Authenticator) Authenticate(ctx context.Context, raw string) (*auth.APIKeyInfo, error) {
	if raw == "" || a.apikeys == nil {
		return nil, errUnauthorized
	}

	hash := auth.HashKey(a.pepper, raw)
	info, err := a.apikeys.FindByHash(ctx, hex.EncodeToString(hash))
	switch {
	case errors.Is(err, auth.ErrKeyNotFound):
		return nil, errUnauthorized
	case err != nil:
		return nil, errors.Wrap(err, "look up api key")
	}

	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 || !info.Active {
		return nil, errUnauthorized
	}
	return info, nil
}

// VerifyKey reports whether raw is an active key. Positive answers are
// cached for a minute.
func (a *Authenticator) VerifyKey(ctx context.Context, raw string) bool {
	id := auth.HashKeyHex(a.pepper, raw)
	if _, ok := a.verified.Get(id); ok {
		return true
	}
	if _, err := a.Authenticate(ctx, raw); err != nil {
		var httpErr *echo.HTTPError
		if !errors.As(err, &httpErr) {
			zctx.From(ctx).Error("API key verification failed", zap.Error(err))
		}
		return false
	}
	a.verified.SetDefault(id, struct{}{})
	return true
}

// Require returns a middleware admitting active keys granted scope.
func (a *Authenticator) Require(scope string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			info, err := a.Authenticate(ctx, c.Request().Header.Get(APIKeyHeader))
			if err != nil {
				return err
			}
			if !info.HasScope(scope) {
				return errForbidden
			}

			c.SetRequest(c.Request().WithContext(auth.WithKey(ctx, info)))
			return next(c)
		}
	}
}
