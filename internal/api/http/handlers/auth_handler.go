package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/blog-service/internal/api/dto"
	"github.com/spec-kit/blog-service/internal/config"
	"github.com/spec-kit/blog-service/internal/observability"
	"github.com/spec-kit/blog-service/internal/service"
	apperrors "github.com/spec-kit/blog-service/pkg/util/errorutil"
)

// AuthHandler exposes registration, verification and session endpoints.
type AuthHandler struct {
	auth    *service.AuthService
	cookie  config.AuthConfig
	metrics *observability.Metrics
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService, cookie config.AuthConfig, metrics *observability.Metrics) *AuthHandler {
	return &AuthHandler{auth: authService, cookie: cookie, metrics: metrics}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.UserRegisterRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	result, err := h.auth.Register(c.UserContext(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"data": withWarnings(fiber.Map{
			"user":                  dto.NewUserResponse(result.User),
			"verification_required": true,
		}, result.Warnings),
	})
}

// VerifyLink handles GET /auth/verify?token=..., the link sent by mail.
func (h *AuthHandler) VerifyLink(c *fiber.Ctx) error {
	req := dto.VerifyEmailRequest{Token: c.Query("token")}
	if err := req.Validate(); err != nil {
		return dto.AsDomainError(err)
	}
	return h.verify(c, req.Token)
}

// Verify handles POST /auth/verify.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	var req dto.VerifyEmailRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	return h.verify(c, req.Token)
}

func (h *AuthHandler) verify(c *fiber.Ctx, token string) error {
	user, err := h.auth.VerifyEmail(c.UserContext(), token)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"user": dto.NewUserResponse(user)}})
}

// ResendVerification handles POST /auth/verify/resend. The response does not
// reveal whether the address belongs to an account.
func (h *AuthHandler) ResendVerification(c *fiber.Ctx) error {
	var req dto.ResendVerificationRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if err := h.auth.ResendVerification(c.UserContext(), req.Email); err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{
		"data": fiber.Map{"message": "if the account exists and is unverified, a verification email has been sent"},
	})
}

// Login handles POST /auth/login. The token is returned in the body and set
// as an HTTP-only cookie.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.UserLoginRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	result, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		if code := apperrors.ToDomainError(err).Code; code != apperrors.CodeInternal {
			h.metrics.RecordAuthEvent("login_rejected")
		}
		return err
	}
	h.metrics.RecordAuthEvent("login_succeeded")

	c.Cookie(h.sessionCookie(result.Token, result.ExpiresAt))
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"user": dto.NewUserResponse(result.User),
			"auth": dto.AuthResponse{Token: result.Token, ExpiresAt: result.ExpiresAt},
		},
	})
}

// Logout handles POST /auth/logout. Tokens are stateless; only the cookie is cleared.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if err := h.auth.Logout(c.UserContext()); err != nil {
		return err
	}
	clearSessionCookie(c, h.cookie)
	return c.JSON(fiber.Map{"data": fiber.Map{"message": "logged out"}})
}

func (h *AuthHandler) sessionCookie(token string, expiresAt time.Time) *fiber.Cookie {
	return &fiber.Cookie{
		Name:     h.cookie.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cookie.AccessTokenTTL().Seconds()),
		Expires:  expiresAt,
		HTTPOnly: true,
		Secure:   h.cookie.CookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
	}
}

func clearSessionCookie(c *fiber.Ctx, cfg config.AuthConfig) {
	c.Cookie(&fiber.Cookie{
		Name:     cfg.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
