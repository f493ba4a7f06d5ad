package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/blog-service/internal/domain"
	"github.com/spec-kit/blog-service/internal/repository"
	apperrors "github.com/spec-kit/blog-service/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Transport names where a credential was found.
type Transport string

const (
	TransportNone   Transport = ""
	TransportHeader Transport = "header"
	TransportCookie Transport = "cookie"
)

var (
	errNoCredential        = errors.New("no credential presented")
	errMalformedAuthHeader = errors.New("malformed authorization header")
)

// Principal represents the authenticated caller.
type Principal struct {
	Identity  domain.SessionIdentity
	User      *domain.User
	Transport Transport
}

// AuthMiddleware resolves the caller from a bearer header or the auth cookie
// and loads the account behind it.
type AuthMiddleware struct {
	tokens     *TokenManager
	users      repository.UserRepository
	cookieName string
	logger     *zap.Logger
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, users repository.UserRepository, cookieName string, logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{tokens: tokens, users: users, cookieName: cookieName, logger: logger}
}

// ExtractCredential picks the token to validate. A present Authorization
// header always wins, even when it is malformed; the cookie is consulted only
// when no header was sent.
func ExtractCredential(authHeader, cookieValue string) (string, Transport, error) {
	if header := strings.TrimSpace(authHeader); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", TransportHeader, errMalformedAuthHeader
		}
		token := strings.TrimSpace(parts[1])
		if token == "" {
			return "", TransportHeader, errMalformedAuthHeader
		}
		return token, TransportHeader, nil
	}
	if token := strings.TrimSpace(cookieValue); token != "" {
		return token, TransportCookie, nil
	}
	return "", TransportNone, errNoCredential
}

// Resolve turns the raw credential carriers into a principal. Every failure
// other than a storage error is reported as unauthenticated.
func (m *AuthMiddleware) Resolve(ctx context.Context, authHeader, cookieValue string) (*Principal, error) {
	token, transport, err := ExtractCredential(authHeader, cookieValue)
	if err != nil {
		m.logger.Debug("credential rejected", zap.String("transport", string(transport)), zap.Error(err))
		if errors.Is(err, errNoCredential) {
			return nil, apperrors.NewUnauthorized("authentication required")
		}
		return nil, apperrors.NewUnauthorized("invalid or expired token")
	}

	identity, err := m.tokens.Validate(token)
	if err != nil {
		m.logger.Debug("token rejected", zap.String("transport", string(transport)), zap.Error(err))
		return nil, apperrors.NewUnauthorized("invalid or expired token")
	}

	user, err := m.users.GetByID(ctx, identity.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			m.logger.Debug("token subject no longer exists", zap.String("account_id", identity.AccountID))
			return nil, apperrors.NewUnauthorized("account unavailable")
		}
		return nil, apperrors.NewInternalError(err)
	}
	if err := domain.RequireVerified(user.State()); err != nil {
		m.logger.Debug("token subject not verified", zap.String("account_id", identity.AccountID))
		return nil, apperrors.NewUnauthorized("account unavailable")
	}
	// The stored role is authoritative; the claim may predate a role change.
	identity.Role = user.Role

	return &Principal{Identity: identity, User: user, Transport: transport}, nil
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	principal, err := m.Resolve(c.UserContext(), c.Get(fiber.HeaderAuthorization), c.Cookies(m.cookieName))
	if err != nil {
		return err
	}
	c.Locals(principalKey, principal)
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok && principal != nil
}

// IdentityFromContext returns the session identity of the caller, if any.
func IdentityFromContext(c *fiber.Ctx) (*domain.SessionIdentity, bool) {
	principal, ok := PrincipalFromContext(c)
	if !ok {
		return nil, false
	}
	return &principal.Identity, true
}
