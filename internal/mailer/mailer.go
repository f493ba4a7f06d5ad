// Package mailer delivers account verification mail.
package mailer

import (
	"context"
	"errors"
	"strings"
)

// ErrInvalidMessage is returned for messages without a recipient or body.
var ErrInvalidMessage = errors.New("mailer: message requires recipient, subject and body")

// Message is a single outbound HTML mail.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Validate checks the message has the fields every sender needs.
func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" || strings.TrimSpace(m.Subject) == "" || m.HTML == "" {
		return ErrInvalidMessage
	}
	if strings.ContainsAny(m.To, "\r\n") || strings.ContainsAny(m.Subject, "\r\n") {
		return ErrInvalidMessage
	}
	return nil
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
