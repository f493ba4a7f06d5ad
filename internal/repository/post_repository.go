package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/blog-service/internal/domain"
)

const defaultPostLimit = 20

// PostFilter captures listing parameters.
type PostFilter struct {
	AuthorID   *string
	SearchTerm *string
	Limit      int
	Offset     int
}

// Normalized applies default paging bounds.
func (f PostFilter) Normalized() PostFilter {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = defaultPostLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// PostRepository encapsulates post persistence.
type PostRepository interface {
	Create(ctx context.Context, post *domain.Post) error
	Update(ctx context.Context, post *domain.Post) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.PostWithAuthor, error)
	List(ctx context.Context, filter PostFilter) ([]domain.PostWithAuthor, error)
}

type postRepository struct {
	pool *pgxpool.Pool
}

// NewPostRepository instantiates repository.
func NewPostRepository(pool *pgxpool.Pool) PostRepository {
	return &postRepository{pool: pool}
}

const postSelect = `
        SELECT p.id, p.author_id, p.title, p.content, p.created_at, p.updated_at,
               u.name AS author_name, u.email AS author_email
        FROM posts p JOIN users u ON u.id = p.author_id`

func (r *postRepository) Create(ctx context.Context, post *domain.Post) error {
	const query = `
        INSERT INTO posts (author_id, title, content)
        VALUES ($1,$2,$3)
        RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		post.AuthorID,
		post.Title,
		post.Content,
	).Scan(&post.ID, &post.CreatedAt, &post.UpdatedAt)
	return mapPgError(err)
}

func (r *postRepository) Update(ctx context.Context, post *domain.Post) error {
	const query = `
        UPDATE posts SET title=$1, content=$2, updated_at=NOW()
        WHERE id=$3
        RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		post.Title,
		post.Content,
		post.ID,
	).Scan(&post.UpdatedAt)
	return mapPgError(err)
}

func (r *postRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM posts WHERE id=$1`, id)
	if err != nil {
		return mapPgError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*domain.PostWithAuthor, error) {
	var post domain.PostWithAuthor
	if err := pgxscan.Get(ctx, r.pool, &post, postSelect+` WHERE p.id=$1`, id); err != nil {
		if pgxscan.NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, mapPgError(err)
	}
	return &post, nil
}

func (r *postRepository) List(ctx context.Context, filter PostFilter) ([]domain.PostWithAuthor, error) {
	filter = filter.Normalized()
	clauses := []string{"1=1"}
	args := []any{}

	if filter.AuthorID != nil {
		args = append(args, *filter.AuthorID)
		clauses = append(clauses, fmt.Sprintf("p.author_id=$%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(p.title) LIKE %s OR LOWER(p.content) LIKE %s)", placeholder, placeholder))
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY p.created_at DESC LIMIT %d OFFSET %d`,
		postSelect, strings.Join(clauses, " AND "), filter.Limit, filter.Offset)

	posts := make([]domain.PostWithAuthor, 0)
	if err := pgxscan.Select(ctx, r.pool, &posts, query, args...); err != nil {
		return nil, mapPgError(err)
	}
	return posts, nil
}
