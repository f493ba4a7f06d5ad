package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spec-kit/blog-service/internal/domain"
	"github.com/spec-kit/blog-service/internal/repository"
)

const verificationTokenBytes = 32

// VerificationService issues and redeems single-use email verification tokens.
type VerificationService struct {
	tokens repository.VerificationTokenRepository
	ttl    time.Duration
	now    func() time.Time
}

// NewVerificationService builds the service. now may be nil.
func NewVerificationService(tokens repository.VerificationTokenRepository, ttl time.Duration, now func() time.Time) *VerificationService {
	if now == nil {
		now = time.Now
	}
	return &VerificationService{tokens: tokens, ttl: ttl, now: now}
}

// Issue creates a new token for accountID, replacing any earlier one. The
// returned secret is never stored.
func (s *VerificationService) Issue(ctx context.Context, accountID string) (string, time.Time, error) {
	buf := make([]byte, verificationTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, fmt.Errorf("generate verification token: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(buf)
	expiresAt := s.now().Add(s.ttl)

	token := &domain.VerificationToken{
		UserID:    accountID,
		TokenHash: hashVerificationToken(secret),
		ExpiresAt: expiresAt,
	}
	if err := s.tokens.Replace(ctx, token); err != nil {
		return "", time.Time{}, fmt.Errorf("store verification token: %w", err)
	}
	return secret, expiresAt, nil
}

// Redeem consumes token and marks its account verified, returning the
// account id.
func (s *VerificationService) Redeem(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrVerificationNotFound
	}

	accountID, err := s.tokens.Redeem(ctx, hashVerificationToken(token), s.now())
	switch {
	case err == nil:
		return accountID, nil
	case errors.Is(err, repository.ErrNotFound):
		return "", ErrVerificationNotFound
	case errors.Is(err, repository.ErrTokenConsumed):
		return "", ErrVerificationConsumed
	case errors.Is(err, repository.ErrTokenExpired):
		return "", ErrVerificationExpired
	default:
		return "", err
	}
}

func hashVerificationToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
