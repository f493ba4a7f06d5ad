package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateEmail is returned when an email is already taken by another account.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrTokenConsumed is returned when a verification token was already redeemed.
	ErrTokenConsumed = errors.New("verification token already consumed")
	// ErrTokenExpired is returned when a verification token is past its expiry.
	ErrTokenExpired = errors.New("verification token expired")
)

const (
	pgUniqueViolation      = "23505"
	pgInvalidTextRepresent = "22P02"
	usersEmailUniqueIndex  = "users_email_lower_key"
)

// mapPgError converts driver errors into repository sentinels.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			if pgErr.ConstraintName == usersEmailUniqueIndex {
				return ErrDuplicateEmail
			}
		case pgInvalidTextRepresent:
			// malformed uuid in a lookup
			return ErrNotFound
		}
	}
	return err
}
