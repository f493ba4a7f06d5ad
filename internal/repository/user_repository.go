package repository

import (
	"context"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/blog-service/internal/domain"
)

// UserRepository defines persistence access for accounts.
//
// Mutations are column-targeted so that concurrent writers touching
// different fields do not overwrite each other with stale copies.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	// UpdateProfile applies the non-nil fields in one write. A new email
	// clears email_verified and removes outstanding verification tokens.
	UpdateProfile(ctx context.Context, id string, changes ProfileChanges) (*domain.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateRole(ctx context.Context, id string, role domain.Role) (*domain.User, error)
	// Delete removes the account; posts and verification tokens cascade.
	Delete(ctx context.Context, id string) error
}

// ProfileChanges lists profile fields to write; nil means unchanged.
type ProfileChanges struct {
	Name  *string
	Email *string
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `id, name, email, password_hash, role, email_verified, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.EmailVerified,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, mapPgError(err)
	}
	return &user, nil
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (name, email, password_hash, role, email_verified)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		user.Name,
		domain.NormalizeEmail(user.Email),
		user.PasswordHash,
		user.Role,
		user.EmailVerified,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return mapPgError(err)
	}
	user.Email = domain.NormalizeEmail(user.Email)
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email)=$1`
	return scanUser(r.pool.QueryRow(ctx, query, domain.NormalizeEmail(email)))
}

func (r *userRepository) List(ctx context.Context) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC`
	users := make([]domain.User, 0)
	if err := pgxscan.Select(ctx, r.pool, &users, query); err != nil {
		return nil, mapPgError(err)
	}
	return users, nil
}

func (r *userRepository) UpdateProfile(ctx context.Context, id string, changes ProfileChanges) (*domain.User, error) {
	var email *string
	if changes.Email != nil {
		normalized := domain.NormalizeEmail(*changes.Email)
		email = &normalized
	}

	var user *domain.User
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		query := `
            UPDATE users SET
                name=COALESCE($2, name),
                email=COALESCE($3, email),
                email_verified=CASE WHEN $3::text IS NULL THEN email_verified ELSE FALSE END,
                updated_at=NOW()
            WHERE id=$1
            RETURNING ` + userColumns
		updated, err := scanUser(tx.QueryRow(ctx, query, id, changes.Name, email))
		if err != nil {
			return err
		}
		if email != nil {
			if _, err := tx.Exec(ctx, `DELETE FROM verification_tokens WHERE user_id=$1`, id); err != nil {
				return mapPgError(err)
			}
		}
		user = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *userRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	const query = `
        UPDATE users SET password_hash=$1, updated_at=NOW()
        WHERE id=$2`

	cmd, err := r.pool.Exec(ctx, query, passwordHash, id)
	if err != nil {
		return mapPgError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepository) UpdateRole(ctx context.Context, id string, role domain.Role) (*domain.User, error) {
	query := `
        UPDATE users SET role=$1, updated_at=NOW()
        WHERE id=$2
        RETURNING ` + userColumns
	return scanUser(r.pool.QueryRow(ctx, query, role, id))
}

func (r *userRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return mapPgError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
