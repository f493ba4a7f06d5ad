package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/blog-service/internal/domain"
	apperrors "github.com/spec-kit/blog-service/pkg/util/errorutil"
)

// Requirement is an access rule evaluated against a session identity.
type Requirement interface {
	allows(identity domain.SessionIdentity) bool
	String() string
}

type anyAuthenticated struct{}

func (anyAuthenticated) allows(identity domain.SessionIdentity) bool {
	return identity.AccountID != ""
}

func (anyAuthenticated) String() string { return "authenticated" }

type ownerOf struct {
	ownerID string
}

func (r ownerOf) allows(identity domain.SessionIdentity) bool {
	return r.ownerID != "" && identity.AccountID == r.ownerID
}

func (r ownerOf) String() string { return "owner of " + r.ownerID }

type roleAtLeast struct {
	role domain.Role
}

func (r roleAtLeast) allows(identity domain.SessionIdentity) bool {
	return identity.Role.AtLeast(r.role)
}

func (r roleAtLeast) String() string { return "role >= " + string(r.role) }

type anyOf []Requirement

func (rs anyOf) allows(identity domain.SessionIdentity) bool {
	for _, r := range rs {
		if r != nil && r.allows(identity) {
			return true
		}
	}
	return false
}

func (rs anyOf) String() string {
	parts := make([]string, 0, len(rs))
	for _, r := range rs {
		if r != nil {
			parts = append(parts, r.String())
		}
	}
	return strings.Join(parts, " or ")
}

// AnyAuthenticated is satisfied by every valid identity.
func AnyAuthenticated() Requirement { return anyAuthenticated{} }

// OwnerOf is satisfied when the caller owns the resource.
func OwnerOf(ownerID string) Requirement { return ownerOf{ownerID: ownerID} }

// RoleAtLeast is satisfied when the caller's role ranks at or above role.
func RoleAtLeast(role domain.Role) Requirement { return roleAtLeast{role: role} }

// AnyOf is satisfied when at least one of reqs is.
func AnyOf(reqs ...Requirement) Requirement { return anyOf(reqs) }

// OwnerOrAdmin is the self-or-admin rule used by deletions.
func OwnerOrAdmin(ownerID string) Requirement {
	return AnyOf(OwnerOf(ownerID), RoleAtLeast(domain.RoleAdmin))
}

// Authorize decides whether identity satisfies req. A nil identity is
// unauthenticated; a failed rule is forbidden.
func Authorize(identity *domain.SessionIdentity, req Requirement) error {
	if identity == nil || identity.AccountID == "" {
		return apperrors.NewUnauthorized("authentication required")
	}
	if req == nil || !req.allows(*identity) {
		return apperrors.NewForbidden("insufficient permissions")
	}
	return nil
}

// RequireAuthenticated ensures the resolver ran and produced an identity.
func RequireAuthenticated() fiber.Handler {
	return Require(func(*fiber.Ctx) Requirement { return AnyAuthenticated() })
}

// RequireRole ensures the caller's role ranks at or above role.
func RequireRole(role domain.Role) fiber.Handler {
	return Require(func(*fiber.Ctx) Requirement { return RoleAtLeast(role) })
}

// Require evaluates a requirement built from the request.
func Require(build func(c *fiber.Ctx) Requirement) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, _ := IdentityFromContext(c)
		if err := Authorize(identity, build(c)); err != nil {
			return err
		}
		return c.Next()
	}
}
