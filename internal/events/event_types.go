package events

import (
	"time"

	"github.com/spec-kit/blog-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventAccountRegistered   EventType = "account_registered"
	EventAccountVerified     EventType = "account_verified"
	EventAccountEmailChanged EventType = "account_email_changed"
	EventAccountDeleted      EventType = "account_deleted"
	EventAccountRoleChanged  EventType = "account_role_changed"
)

// AllTypes lists every account event type.
var AllTypes = []EventType{
	EventAccountRegistered,
	EventAccountVerified,
	EventAccountEmailChanged,
	EventAccountDeleted,
	EventAccountRoleChanged,
}

// Event represents an account lifecycle event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	AccountID string      `json:"account_id"`
	ActorID   string      `json:"actor_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// AccountDeletedPayload payload.
type AccountDeletedPayload struct {
	ByAdmin bool `json:"by_admin"`
}

// AccountRoleChangedPayload payload.
type AccountRoleChangedPayload struct {
	OldRole domain.Role `json:"old_role"`
	NewRole domain.Role `json:"new_role"`
}
