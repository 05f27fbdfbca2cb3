package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/task-service/internal/domain"
	"github.com/spec-kit/task-service/internal/observability"
)

const identityKey = "auth_identity"

// AuthMiddleware is the admission gate for protected routes. It combines
// the token store, which can revoke, with the signature check, which
// cannot.
type AuthMiddleware struct {
	tokens  *TokenManager
	store   *TokenStore
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, store *TokenStore, logger *zap.Logger, metrics *observability.Metrics) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, store: store, logger: logger.Named("auth"), metrics: metrics}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || scheme != "Bearer" {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

// Authenticate decides whether the request carrying header is admitted.
func (m *AuthMiddleware) Authenticate(ctx context.Context, header string) (domain.Identity, error) {
	token, ok := BearerToken(header)
	if !ok {
		return m.reject("auth_required", ErrAuthRequired)
	}

	if !m.store.Verify(ctx, token) {
		return m.reject("not_cached", ErrTokenInvalidOrExpired)
	}

	v := m.tokens.Verify(token)
	switch v.Status {
	case VerifyOK:
		m.metrics.RecordGateDecision("admitted")
		return v.Identity, nil
	case VerifyExpired:
		if err := m.store.Invalidate(ctx, token); err != nil {
			m.logger.Warn("cleanup of expired token failed", zap.Error(err))
		}
		return m.reject("expired", ErrTokenExpired)
	default:
		m.logger.Debug("token rejected", zap.Error(v.Err))
		return m.reject("invalid", ErrTokenInvalid)
	}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	identity, err := m.Authenticate(c.UserContext(), c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return err
	}
	c.Locals(identityKey, identity)
	return c.Next()
}

func (m *AuthMiddleware) reject(outcome string, err error) (domain.Identity, error) {
	m.metrics.RecordGateDecision(outcome)
	return domain.Identity{}, err
}

// IdentityFromContext retrieves the authenticated identity.
func IdentityFromContext(c *fiber.Ctx) (domain.Identity, bool) {
	identity, ok := c.Locals(identityKey).(domain.Identity)
	return identity, ok
}
