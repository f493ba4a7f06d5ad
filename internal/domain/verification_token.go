package domain

import "time"

// VerificationToken is a single-use email verification secret. Only the
// digest of the secret is stored.
type VerificationToken struct {
	ID         string
	UserID     string
	TokenHash  string
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

// Consumed reports whether the token has been redeemed.
func (t *VerificationToken) Consumed() bool {
	return t.ConsumedAt != nil
}

// Expired reports whether the token is no longer redeemable at now.
func (t *VerificationToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
