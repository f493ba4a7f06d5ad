package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/blog-service/internal/auth"
	"github.com/spec-kit/blog-service/internal/domain"
	"github.com/spec-kit/blog-service/internal/repository"
	"github.com/spec-kit/blog-service/pkg/util/errorutil"
)

const maxTitleLength = 200

// PostService coordinates post workflows. Reads are public; writes are
// checked against the authorization guard.
type PostService struct {
	posts  repository.PostRepository
	logger *zap.Logger
}

// NewPostService builds the service.
func NewPostService(posts repository.PostRepository, logger *zap.Logger) *PostService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostService{posts: posts, logger: logger}
}

// PostCreateInput describes post creation payload.
type PostCreateInput struct {
	Title   string
	Content string
}

// PostUpdateInput lists fields to change; nil means unchanged.
type PostUpdateInput struct {
	Title   *string
	Content *string
}

// PostListFilter describes public listing filters.
type PostListFilter struct {
	SearchTerm *string
	Limit      int
	Offset     int
}

// List returns posts newest first.
func (s *PostService) List(ctx context.Context, filter PostListFilter) ([]domain.PostWithAuthor, error) {
	return s.list(ctx, repository.PostFilter{
		SearchTerm: filter.SearchTerm,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

// ListMine returns the caller's own posts.
func (s *PostService) ListMine(ctx context.Context, identity *domain.SessionIdentity, filter PostListFilter) ([]domain.PostWithAuthor, error) {
	if err := auth.Authorize(identity, auth.AnyAuthenticated()); err != nil {
		return nil, err
	}
	authorID := identity.AccountID
	return s.list(ctx, repository.PostFilter{
		AuthorID:   &authorID,
		SearchTerm: filter.SearchTerm,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

// Get returns one post.
func (s *PostService) Get(ctx context.Context, id string) (*domain.PostWithAuthor, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrPostNotFound
	}
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return nil, s.storageError(err)
	}
	return post, nil
}

// Create stores a post authored by the caller.
func (s *PostService) Create(ctx context.Context, identity *domain.SessionIdentity, in PostCreateInput) (*domain.PostWithAuthor, error) {
	if err := auth.Authorize(identity, auth.AnyAuthenticated()); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if err := validatePostFields(&title, &in.Content); err != nil {
		return nil, err
	}

	post := &domain.Post{AuthorID: identity.AccountID, Title: title, Content: in.Content}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, s.storageError(err)
	}
	s.logger.Info("post created", zap.String("post_id", post.ID), zap.String("author_id", post.AuthorID))
	return s.Get(ctx, post.ID)
}

// Update edits a post. Only its author may do so.
func (s *PostService) Update(ctx context.Context, identity *domain.SessionIdentity, id string, in PostUpdateInput) (*domain.PostWithAuthor, error) {
	if err := auth.Authorize(identity, auth.AnyAuthenticated()); err != nil {
		return nil, err
	}
	if in.Title == nil && in.Content == nil {
		return nil, errorutil.NewValidationError("nothing to update", nil)
	}

	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(identity, auth.OwnerOf(existing.AuthorID)); err != nil {
		return nil, err
	}

	post := existing.Post
	if in.Title != nil {
		post.Title = strings.TrimSpace(*in.Title)
	}
	if in.Content != nil {
		post.Content = *in.Content
	}
	if err := validatePostFields(&post.Title, &post.Content); err != nil {
		return nil, err
	}
	if err := s.posts.Update(ctx, &post); err != nil {
		return nil, s.storageError(err)
	}

	existing.Post = post
	return existing, nil
}

// Delete removes a post. Its author and admins may do so.
func (s *PostService) Delete(ctx context.Context, identity *domain.SessionIdentity, id string) error {
	if err := auth.Authorize(identity, auth.AnyAuthenticated()); err != nil {
		return err
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := auth.Authorize(identity, auth.OwnerOrAdmin(existing.AuthorID)); err != nil {
		return err
	}
	if err := s.posts.Delete(ctx, id); err != nil {
		return s.storageError(err)
	}
	s.logger.Info("post deleted", zap.String("post_id", id), zap.String("actor_id", identity.AccountID))
	return nil
}

func (s *PostService) list(ctx context.Context, filter repository.PostFilter) ([]domain.PostWithAuthor, error) {
	posts, err := s.posts.List(ctx, filter)
	if err != nil {
		return nil, s.storageError(err)
	}
	return posts, nil
}

func (s *PostService) storageError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrPostNotFound
	}
	s.logger.Error("post storage failure", zap.Error(err))
	return errorutil.NewInternalError(err)
}

func validatePostFields(title, content *string) error {
	details := map[string]any{}
	if *title == "" {
		details["title"] = "cannot be blank"
	} else if len([]rune(*title)) > maxTitleLength {
		details["title"] = "must be at most 200 characters"
	}
	if strings.TrimSpace(*content) == "" {
		details["content"] = "cannot be blank"
	}
	if len(details) > 0 {
		return errorutil.NewValidationError("invalid post", details)
	}
	return nil
}
