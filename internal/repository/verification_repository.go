package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/blog-service/internal/domain"
)

// VerificationTokenRepository manages email verification token persistence.
type VerificationTokenRepository interface {
	// Replace stores token as the only outstanding token of its user.
	Replace(ctx context.Context, token *domain.VerificationToken) error
	// Redeem consumes the token with the given digest and marks its owner
	// verified in one atomic step. Exactly one concurrent caller succeeds.
	Redeem(ctx context.Context, tokenHash string, now time.Time) (string, error)
}

type verificationTokenRepository struct {
	pool *pgxpool.Pool
}

// NewVerificationTokenRepository constructs repository.
func NewVerificationTokenRepository(pool *pgxpool.Pool) VerificationTokenRepository {
	return &verificationTokenRepository{pool: pool}
}

func (r *verificationTokenRepository) Replace(ctx context.Context, token *domain.VerificationToken) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM verification_tokens WHERE user_id=$1`, token.UserID); err != nil {
			return mapPgError(err)
		}

		const query = `
            INSERT INTO verification_tokens (user_id, token_hash, expires_at)
            VALUES ($1,$2,$3)
            RETURNING id, created_at`
		if err := tx.QueryRow(ctx, query,
			token.UserID,
			token.TokenHash,
			token.ExpiresAt,
		).Scan(&token.ID, &token.CreatedAt); err != nil {
			return mapPgError(err)
		}
		return nil
	})
}

func (r *verificationTokenRepository) Redeem(ctx context.Context, tokenHash string, now time.Time) (string, error) {
	var userID string
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const consume = `
            UPDATE verification_tokens SET consumed_at=$2
            WHERE token_hash=$1 AND consumed_at IS NULL AND expires_at > $2
            RETURNING user_id`
		err := tx.QueryRow(ctx, consume, tokenHash, now).Scan(&userID)
		if errors.Is(err, pgx.ErrNoRows) {
			return r.classifyMiss(ctx, tx, tokenHash, now)
		}
		if err != nil {
			return mapPgError(err)
		}

		cmd, err := tx.Exec(ctx, `UPDATE users SET email_verified=TRUE, updated_at=NOW() WHERE id=$1`, userID)
		if err != nil {
			return mapPgError(err)
		}
		if cmd.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return userID, nil
}

// classifyMiss explains why the conditional consume matched nothing.
func (r *verificationTokenRepository) classifyMiss(ctx context.Context, tx pgx.Tx, tokenHash string, now time.Time) error {
	var (
		consumedAt *time.Time
		expiresAt  time.Time
	)
	err := tx.QueryRow(ctx,
		`SELECT consumed_at, expires_at FROM verification_tokens WHERE token_hash=$1`,
		tokenHash,
	).Scan(&consumedAt, &expiresAt)
	if err != nil {
		return mapPgError(err)
	}
	switch {
	case consumedAt != nil:
		return ErrTokenConsumed
	case !now.Before(expiresAt):
		return ErrTokenExpired
	default:
		return fmt.Errorf("verification token %w", ErrNotFound)
	}
}
