package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/blog-service/internal/api/dto"
	"github.com/spec-kit/blog-service/internal/auth"
	"github.com/spec-kit/blog-service/internal/config"
	"github.com/spec-kit/blog-service/internal/service"
	apperrors "github.com/spec-kit/blog-service/pkg/util/errorutil"
)

// UsersHandler serves the caller's own account.
type UsersHandler struct {
	accounts *service.AccountService
	cookie   config.AuthConfig
}

// NewUsersHandler constructs handler.
func NewUsersHandler(accounts *service.AccountService, cookie config.AuthConfig) *UsersHandler {
	return &UsersHandler{accounts: accounts, cookie: cookie}
}

// Me handles GET /users/me.
func (h *UsersHandler) Me(c *fiber.Ctx) error {
	identity, _ := auth.IdentityFromContext(c)
	user, err := h.accounts.Profile(c.UserContext(), identity)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}

// UpdateMe handles PATCH /users/me.
func (h *UsersHandler) UpdateMe(c *fiber.Ctx) error {
	var req dto.UpdateProfileRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	identity, _ := auth.IdentityFromContext(c)

	result, err := h.accounts.UpdateProfile(c.UserContext(), identity, service.UpdateProfileInput{
		Name:  req.Name,
		Email: req.Email,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data": withWarnings(fiber.Map{
			"user":                  dto.NewUserResponse(result.User),
			"verification_required": result.VerificationRequired,
		}, result.Warnings),
	})
}

// ChangePassword handles POST /users/me/password.
func (h *UsersHandler) ChangePassword(c *fiber.Ctx) error {
	var req dto.ChangePasswordRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	identity, _ := auth.IdentityFromContext(c)
	if err := h.accounts.ChangePassword(c.UserContext(), identity, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"message": "password updated"}})
}

// DeleteMe handles DELETE /users/me and ends the cookie session.
func (h *UsersHandler) DeleteMe(c *fiber.Ctx) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	if err := h.accounts.DeleteAccount(c.UserContext(), identity, identity.AccountID); err != nil {
		return err
	}
	clearSessionCookie(c, h.cookie)
	return c.SendStatus(fiber.StatusNoContent)
}

// Delete handles DELETE /users/:id. Callers may delete themselves; admins anyone.
func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	identity, _ := auth.IdentityFromContext(c)
	targetID := c.Params("id")
	if err := h.accounts.DeleteAccount(c.UserContext(), identity, targetID); err != nil {
		return err
	}
	if identity.AccountID == targetID {
		clearSessionCookie(c, h.cookie)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
