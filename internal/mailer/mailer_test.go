package mailer

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/blog-service/internal/config"
)

func TestVerificationMessage(t *testing.T) {
	link := VerificationLink("https://blog.example.com", "abc-_123")
	assert.Equal(t, "https://blog.example.com/auth/verify?token=abc-_123", link)

	msg, err := NewVerificationMessage("blog-service", "ada@example.com", "<Ada>", link)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", msg.To)
	assert.Equal(t, VerificationSubject, msg.Subject)
	assert.Contains(t, msg.HTML, `href="https://blog.example.com/auth/verify?token=abc-_123"`)
	assert.Contains(t, msg.HTML, "Hi &lt;Ada&gt;,")
	assert.NotContains(t, msg.HTML, "<Ada>")
}

func TestMessageValidate(t *testing.T) {
	ok := Message{To: "a@b.c", Subject: "s", HTML: "<p>x</p>"}
	assert.NoError(t, ok.Validate())

	for name, msg := range map[string]Message{
		"no recipient":      {Subject: "s", HTML: "x"},
		"no body":           {To: "a@b.c", Subject: "s"},
		"header injection":  {To: "a@b.c\r\nBcc: x@y.z", Subject: "s", HTML: "x"},
		"subject injection": {To: "a@b.c", Subject: "s\nBcc: x@y.z", HTML: "x"},
	} {
		assert.ErrorIs(t, msg.Validate(), ErrInvalidMessage, name)
	}
}

func TestSMTPSenderComposesMessage(t *testing.T) {
	s := NewSMTPSender(config.MailConfig{
		From:         "noreply@example.com",
		SMTPHost:     "smtp.example.com",
		SMTPPort:     2525,
		SMTPUsername: "user",
		SMTPPassword: "pass",
	})
	s.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
		gotAuth smtp.Auth
	)
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg, gotAuth = addr, to, string(msg), a
		assert.Equal(t, "noreply@example.com", from)
		return nil
	}

	err := s.Send(context.Background(), Message{To: "ada@example.com", Subject: "Hello", HTML: "<p>hi</p>"})
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com:2525", gotAddr)
	assert.Equal(t, []string{"ada@example.com"}, gotTo)
	assert.NotNil(t, gotAuth)
	assert.True(t, strings.HasPrefix(gotMsg, "From: noreply@example.com\r\nTo: ada@example.com\r\nSubject: Hello\r\n"))
	assert.Contains(t, gotMsg, "Content-Type: text/html; charset=UTF-8\r\n\r\n<p>hi</p>")
}

func TestSMTPSenderErrors(t *testing.T) {
	s := NewSMTPSender(config.MailConfig{From: "f@example.com", SMTPHost: "smtp.example.com", SMTPPort: 25})
	assert.Nil(t, s.auth)

	s.sendMail = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("refused") }
	err := s.Send(context.Background(), Message{To: "a@b.c", Subject: "s", HTML: "x"})
	assert.ErrorContains(t, err, "refused")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Send(ctx, Message{To: "a@b.c", Subject: "s", HTML: "x"}), context.Canceled)
}

func TestLogSenderOmitsBody(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewLogSender(zap.New(core))

	err := s.Send(context.Background(), Message{To: "a@b.c", Subject: "s", HTML: "secret-token"})
	require.NoError(t, err)
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "a@b.c", entry.ContextMap()["to"])
	for _, v := range entry.ContextMap() {
		assert.NotEqual(t, "secret-token", v)
	}
}
