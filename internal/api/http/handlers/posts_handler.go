package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/blog-service/internal/api/dto"
	"github.com/spec-kit/blog-service/internal/auth"
	"github.com/spec-kit/blog-service/internal/service"
	apperrors "github.com/spec-kit/blog-service/pkg/util/errorutil"
)

// PostsHandler manages post endpoints.
type PostsHandler struct {
	posts *service.PostService
}

// NewPostsHandler constructs handler.
func NewPostsHandler(posts *service.PostService) *PostsHandler {
	return &PostsHandler{posts: posts}
}

// List handles GET /posts.
func (h *PostsHandler) List(c *fiber.Ctx) error {
	filter, err := parsePostQuery(c)
	if err != nil {
		return err
	}
	posts, err := h.posts.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewPostListResponse(posts)})
}

// ListMine handles GET /users/me/posts.
func (h *PostsHandler) ListMine(c *fiber.Ctx) error {
	filter, err := parsePostQuery(c)
	if err != nil {
		return err
	}
	identity, _ := auth.IdentityFromContext(c)
	posts, err := h.posts.ListMine(c.UserContext(), identity, filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewPostListResponse(posts)})
}

// Get handles GET /posts/:id.
func (h *PostsHandler) Get(c *fiber.Ctx) error {
	post, err := h.posts.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewPostResponse(post)})
}

// Create handles POST /posts.
func (h *PostsHandler) Create(c *fiber.Ctx) error {
	var req dto.CreatePostRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	identity, _ := auth.IdentityFromContext(c)
	post, err := h.posts.Create(c.UserContext(), identity, service.PostCreateInput{
		Title:   req.Title,
		Content: req.Content,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewPostResponse(post)})
}

// Update handles PATCH /posts/:id.
func (h *PostsHandler) Update(c *fiber.Ctx) error {
	var req dto.UpdatePostRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	identity, _ := auth.IdentityFromContext(c)
	post, err := h.posts.Update(c.UserContext(), identity, c.Params("id"), service.PostUpdateInput{
		Title:   req.Title,
		Content: req.Content,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewPostResponse(post)})
}

// Delete handles DELETE /posts/:id.
func (h *PostsHandler) Delete(c *fiber.Ctx) error {
	identity, _ := auth.IdentityFromContext(c)
	if err := h.posts.Delete(c.UserContext(), identity, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func parsePostQuery(c *fiber.Ctx) (service.PostListFilter, error) {
	var q dto.PostListQuery
	if err := c.QueryParser(&q); err != nil {
		return service.PostListFilter{}, apperrors.NewValidationError("invalid query", nil)
	}
	if err := q.Validate(); err != nil {
		return service.PostListFilter{}, dto.AsDomainError(err)
	}
	filter := service.PostListFilter{Limit: q.Limit(), Offset: q.Offset()}
	if term := strings.TrimSpace(q.Search); term != "" {
		filter.SearchTerm = &term
	}
	return filter, nil
}
