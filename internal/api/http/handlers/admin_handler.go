package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/blog-service/internal/api/dto"
	"github.com/spec-kit/blog-service/internal/auth"
	"github.com/spec-kit/blog-service/internal/domain"
	"github.com/spec-kit/blog-service/internal/service"
)

// AdminHandler exposes account management for administrators.
type AdminHandler struct {
	accounts *service.AccountService
}

// NewAdminHandler constructs handler.
func NewAdminHandler(accounts *service.AccountService) *AdminHandler {
	return &AdminHandler{accounts: accounts}
}

// ListUsers handles GET /admin/users.
func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	identity, _ := auth.IdentityFromContext(c)
	users, err := h.accounts.ListUsers(c.UserContext(), identity)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserListResponse(users)})
}

// ChangeRole handles PATCH /admin/users/:id/role.
func (h *AdminHandler) ChangeRole(c *fiber.Ctx) error {
	var req dto.ChangeRoleRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		return dto.AsDomainError(err)
	}
	identity, _ := auth.IdentityFromContext(c)

	user, err := h.accounts.ChangeRole(c.UserContext(), identity, c.Params("id"), role)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}
