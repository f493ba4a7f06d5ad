package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/blog-service/internal/api/dto"
	apperrors "github.com/spec-kit/blog-service/pkg/util/errorutil"
)

type validatable interface {
	Validate() error
}

// bindJSON parses the body into req and validates it.
func bindJSON(c *fiber.Ctx, req validatable) error {
	if err := c.BodyParser(req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := req.Validate(); err != nil {
		return dto.AsDomainError(err)
	}
	return nil
}

func withWarnings(data fiber.Map, warnings []string) fiber.Map {
	if len(warnings) > 0 {
		data["warnings"] = warnings
	}
	return data
}
