package domain

import "time"

// SessionIdentity is the caller identity derived from a validated JWT.
// It is never persisted.
type SessionIdentity struct {
	AccountID string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}
