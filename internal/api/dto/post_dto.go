package dto

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/spec-kit/blog-service/internal/domain"
)

// CreatePostRequest payload.
type CreatePostRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Validate checks the payload.
func (r CreatePostRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.RuneLength(1, 200)),
		validation.Field(&r.Content, validation.Required),
	)
}

// UpdatePostRequest is a partial post update.
type UpdatePostRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

// Validate checks the payload.
func (r UpdatePostRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.NilOrNotEmpty, validation.RuneLength(1, 200)),
		validation.Field(&r.Content, validation.NilOrNotEmpty),
	)
}

// PostListQuery captures query filters for listings.
type PostListQuery struct {
	Search   string `query:"q"`
	Page     int    `query:"page"`
	PageSize int    `query:"page_size"`
}

// Validate checks the query.
func (q PostListQuery) Validate() error {
	return validation.ValidateStruct(&q,
		validation.Field(&q.Page, validation.Min(0)),
		validation.Field(&q.PageSize, validation.Min(0), validation.Max(100)),
	)
}

// Offset converts page numbers (1-based) into a row offset.
func (q PostListQuery) Offset() int {
	if q.Page <= 1 {
		return 0
	}
	return (q.Page - 1) * q.Limit()
}

// Limit returns the page size with the default applied.
func (q PostListQuery) Limit() int {
	if q.PageSize <= 0 {
		return 20
	}
	return q.PageSize
}

// PostResponse is the public representation of a post.
type PostResponse struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Author    PostAuthor `json:"author"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// PostAuthor is the embedded author summary.
type PostAuthor struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// NewPostResponse maps a post.
func NewPostResponse(p *domain.PostWithAuthor) PostResponse {
	return PostResponse{
		ID:      p.ID,
		Title:   p.Title,
		Content: p.Content,
		Author: PostAuthor{
			ID:    p.AuthorID,
			Name:  p.AuthorName,
			Email: p.AuthorEmail,
		},
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// NewPostListResponse maps posts.
func NewPostListResponse(posts []domain.PostWithAuthor) []PostResponse {
	out := make([]PostResponse, 0, len(posts))
	for i := range posts {
		out = append(out, NewPostResponse(&posts[i]))
	}
	return out
}
