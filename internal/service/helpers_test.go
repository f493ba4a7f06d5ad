package service

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/blog-service/internal/auth"
	"github.com/spec-kit/blog-service/internal/config"
	"github.com/spec-kit/blog-service/internal/domain"
	"github.com/spec-kit/blog-service/internal/events"
	"github.com/spec-kit/blog-service/internal/mailer"
	"github.com/spec-kit/blog-service/internal/repository"
	"github.com/spec-kit/blog-service/internal/repository/memory"
)

const (
	testJWTSecret = "service-test-secret-at-least-32-bytes"
	testPassword  = "Corr3ct-Horse!"
)

// MockSender implements mailer.Sender.
type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, msg mailer.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// captureSender records every message it is asked to send.
type captureSender struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (c *captureSender) Send(_ context.Context, msg mailer.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

var tokenInLink = regexp.MustCompile(`/auth/verify\?token=([A-Za-z0-9_-]+)`)

// lastToken extracts the verification token from the most recent message.
func (c *captureSender) lastToken(t *testing.T) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.sent, "no mail sent")
	m := tokenInLink.FindStringSubmatch(c.sent[len(c.sent)-1].HTML)
	require.Len(t, m, 2, "no verification link in mail")
	return m[1]
}

type recordedEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordedEvents) handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordedEvents) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type testEnv struct {
	store    *memory.Store
	auth     *AuthService
	accounts *AccountService
	posts    *PostService
	tokens   *auth.TokenManager
	hasher   *auth.PasswordHasher
	mail     *captureSender
	events   *recordedEvents

	clockMu sync.Mutex
	now     time.Time
}

func (e *testEnv) clock() time.Time {
	e.clockMu.Lock()
	defer e.clockMu.Unlock()
	return e.now
}

func (e *testEnv) advance(d time.Duration) {
	e.clockMu.Lock()
	defer e.clockMu.Unlock()
	e.now = e.now.Add(d)
}

type envOption func(*AuthDependencies)

func withSender(s mailer.Sender) envOption {
	return func(d *AuthDependencies) { d.Mailer = s }
}

func withLimiter(l LoginLimiter) envOption {
	return func(d *AuthDependencies) { d.Limiter = l }
}

// flakyTokenStore fails Replace while failReplace is set.
type flakyTokenStore struct {
	repository.VerificationTokenRepository
	failReplace bool
}

func (f *flakyTokenStore) Replace(ctx context.Context, token *domain.VerificationToken) error {
	if f.failReplace {
		return errors.New("token store unavailable")
	}
	return f.VerificationTokenRepository.Replace(ctx, token)
}

func withFlakyTokens(f *flakyTokenStore) envOption {
	return func(d *AuthDependencies) {
		v := d.Verifications
		f.VerificationTokenRepository = v.tokens
		d.Verifications = NewVerificationService(f, v.ttl, v.now)
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	env := &testEnv{
		store:  memory.NewStore(),
		hasher: auth.NewPasswordHasher(bcrypt.MinCost),
		tokens: auth.NewTokenManager(testJWTSecret, time.Hour),
		mail:   &captureSender{},
		events: &recordedEvents{},
		now:    time.Now(),
	}

	cfg := config.Config{
		App:  config.AppConfig{Name: "blog-service", BaseURL: "http://localhost:8080"},
		Auth: config.AuthConfig{VerificationTTLMinutes: 60},
	}
	dispatcher := events.NewInMemoryDispatcher()
	events.SubscribeAll(dispatcher, env.events.handle)

	deps := AuthDependencies{
		Users:         env.store.Users(),
		Verifications: NewVerificationService(env.store.VerificationTokens(), cfg.Auth.VerificationTTL(), env.clock),
		Tokens:        env.tokens,
		Hasher:        env.hasher,
		Mailer:        env.mail,
		Dispatcher:    dispatcher,
		Logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&deps)
	}

	env.auth = NewAuthService(cfg, deps)
	env.accounts = NewAccountService(cfg, deps)
	env.posts = NewPostService(env.store.Posts(), zap.NewNop())
	return env
}

// register creates an account through the service and returns it with the
// token from its verification mail.
func (e *testEnv) register(t *testing.T, name, email string) (*domain.User, string) {
	t.Helper()
	res, err := e.auth.Register(context.Background(), RegisterInput{Name: name, Email: email, Password: testPassword})
	require.NoError(t, err)
	require.Empty(t, res.Warnings)
	return res.User, e.mail.lastToken(t)
}

// verifiedAccount registers, verifies and returns the caller identity.
func (e *testEnv) verifiedAccount(t *testing.T, name, email string) *domain.SessionIdentity {
	t.Helper()
	user, token := e.register(t, name, email)
	_, err := e.auth.VerifyEmail(context.Background(), token)
	require.NoError(t, err)
	return &domain.SessionIdentity{AccountID: user.ID, Role: domain.RoleUser}
}

// adminAccount creates a verified admin directly in the store.
func (e *testEnv) adminAccount(t *testing.T, email string) *domain.SessionIdentity {
	t.Helper()
	hash, err := e.hasher.Hash(testPassword)
	require.NoError(t, err)
	admin := &domain.User{Name: "Admin", Email: email, PasswordHash: hash, Role: domain.RoleAdmin, EmailVerified: true}
	require.NoError(t, e.store.Users().Create(context.Background(), admin))
	return &domain.SessionIdentity{AccountID: admin.ID, Role: domain.RoleAdmin}
}
