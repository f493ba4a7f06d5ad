package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role is the access level carried by an account and its tokens.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// rank orders roles so ADMIN >= USER. Unknown roles rank below every known role.
func (r Role) rank() int {
	switch r {
	case RoleUser:
		return 1
	case RoleAdmin:
		return 2
	default:
		return 0
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r.rank() > 0
}

// AtLeast reports whether r grants everything min grants.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && r.rank() >= min.rank()
}

// ParseRole converts a wire value into a Role.
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return role, nil
}

// User is the account that owns posts and authenticates against the API.
type User struct {
	ID            string
	Name          string
	Email         string
	PasswordHash  string
	Role          Role
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// State derives the lifecycle state of a persisted account.
func (u *User) State() AccountState {
	if u == nil {
		return StateDeleted
	}
	if u.EmailVerified {
		return StateVerified
	}
	return StateUnverified
}

// NormalizeEmail is the canonical form used for storage and lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
