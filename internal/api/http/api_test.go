package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/blog-service/internal/api/http/handlers"
	"github.com/spec-kit/blog-service/internal/auth"
	"github.com/spec-kit/blog-service/internal/config"
	"github.com/spec-kit/blog-service/internal/domain"
	"github.com/spec-kit/blog-service/internal/events"
	"github.com/spec-kit/blog-service/internal/mailer"
	"github.com/spec-kit/blog-service/internal/observability"
	"github.com/spec-kit/blog-service/internal/persistence"
	"github.com/spec-kit/blog-service/internal/repository/memory"
	"github.com/spec-kit/blog-service/internal/service"
)

const (
	apiPassword = "Corr3ct-Horse!"
	cookieName  = "auth-token"
)

type outbox struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (o *outbox) Send(_ context.Context, msg mailer.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

var linkToken = regexp.MustCompile(`/auth/verify\?token=([A-Za-z0-9_-]+)`)

func (o *outbox) lastToken(t *testing.T) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.sent)
	m := linkToken.FindStringSubmatch(o.sent[len(o.sent)-1].HTML)
	require.Len(t, m, 2)
	return m[1]
}

type apiFixture struct {
	app     *fiber.App
	store   *memory.Store
	mail    *outbox
	hasher  *auth.PasswordHasher
	metrics *observability.Metrics
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	cfg := config.Config{
		App: config.AppConfig{Name: "blog-test", Env: "development", Version: "test", BaseURL: "http://localhost:8080"},
		Auth: config.AuthConfig{
			JWTSecret:              "api-test-secret-at-least-32-bytes!",
			AccessTokenTTLMinutes:  60,
			VerificationTTLMinutes: 60,
			BcryptCost:             bcrypt.MinCost,
			CookieName:             cookieName,
			CookieSecure:           true,
		},
	}
	logger := zap.NewNop()
	store := memory.NewStore()
	mail := &outbox{}
	hasher := auth.NewPasswordHasher(bcrypt.MinCost)
	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	service.NewNotificationService(dispatcher, logger, metrics, nil).RegisterHandlers()

	deps := service.AuthDependencies{
		Users:         store.Users(),
		Verifications: service.NewVerificationService(store.VerificationTokens(), cfg.Auth.VerificationTTL(), time.Now),
		Tokens:        auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL()),
		Hasher:        hasher,
		Mailer:        mail,
		Dispatcher:    dispatcher,
		Logger:        logger,
	}
	authService := service.NewAuthService(cfg, deps)
	accounts := service.NewAccountService(cfg, deps)

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, &persistence.Postgres{}, nil),
		Auth:           handlers.NewAuthHandler(authService, cfg.Auth, metrics),
		Users:          handlers.NewUsersHandler(accounts, cfg.Auth),
		Posts:          handlers.NewPostsHandler(service.NewPostService(store.Posts(), logger)),
		Admin:          handlers.NewAdminHandler(accounts),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), store.Users(), cfg.Auth.CookieName, logger),
		Metrics:        metrics,
	})

	return &apiFixture{app: app, store: store, mail: mail, hasher: hasher, metrics: metrics}
}

type requestOption func(*nethttp.Request)

func bearer(token string) requestOption {
	return func(r *nethttp.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withCookie(c *nethttp.Cookie) requestOption {
	return func(r *nethttp.Request) { r.AddCookie(c) }
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, opts ...requestOption) (*nethttp.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	var decoded map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), string(raw))
	}
	return resp, decoded
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()
	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok, "missing error envelope: %v", body)
	return errBody["code"].(string)
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	d, ok := body["data"].(map[string]any)
	require.True(t, ok, "missing data envelope: %v", body)
	return d
}

// seedAccount stores a verified account directly and logs it in.
func (f *apiFixture) seedAccount(t *testing.T, email string, role domain.Role) (string, string) {
	t.Helper()
	hash, err := f.hasher.Hash(apiPassword)
	require.NoError(t, err)
	user := &domain.User{Name: "Seed", Email: email, PasswordHash: hash, Role: role, EmailVerified: true}
	require.NoError(t, f.store.Users().Create(context.Background(), user))

	resp, body := f.do(t, fiber.MethodPost, "/auth/login", map[string]string{"email": email, "password": apiPassword})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	token := data(t, body)["auth"].(map[string]any)["token"].(string)
	return user.ID, token
}

func sessionCookie(resp *nethttp.Response) *nethttp.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == cookieName {
			return c
		}
	}
	return nil
}

func TestRegisterVerifyLoginFlow(t *testing.T) {
	f := newAPIFixture(t)

	resp, body := f.do(t, fiber.MethodPost, "/auth/register", map[string]string{
		"name": "Ada", "email": "Ada@Example.com", "password": apiPassword,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, body)
	user := data(t, body)["user"].(map[string]any)
	assert.Equal(t, "ada@example.com", user["email"])
	assert.Equal(t, false, user["email_verified"])
	assert.NotContains(t, data(t, body), "warnings")

	creds := map[string]string{"email": "ada@example.com", "password": apiPassword}
	resp, body = f.do(t, fiber.MethodPost, "/auth/login", creds)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "EMAIL_NOT_VERIFIED", errorCode(t, body))
	assert.EqualValues(t, fiber.StatusForbidden, body["error"].(map[string]any)["status"])

	token := f.mail.lastToken(t)
	resp, body = f.do(t, fiber.MethodGet, "/auth/verify?token="+token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, true, data(t, body)["user"].(map[string]any)["email_verified"])

	resp, body = f.do(t, fiber.MethodPost, "/auth/verify", map[string]string{"token": token})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "VERIFICATION_TOKEN_CONSUMED", errorCode(t, body))

	resp, body = f.do(t, fiber.MethodPost, "/auth/login", creds)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	jwt := data(t, body)["auth"].(map[string]any)["token"].(string)
	assert.NotEmpty(t, jwt)

	cookie := sessionCookie(resp)
	require.NotNil(t, cookie)
	assert.Equal(t, jwt, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, nethttp.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, 3600, cookie.MaxAge)

	resp, body = f.do(t, fiber.MethodGet, "/users/me", nil, withCookie(&nethttp.Cookie{Name: cookieName, Value: jwt}))
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "ada@example.com", data(t, body)["email"])

	resp, _ = f.do(t, fiber.MethodGet, "/users/me", nil, bearer(jwt))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = f.do(t, fiber.MethodPost, "/auth/logout", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	cleared := sessionCookie(resp)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.True(t, cleared.Expires.Before(time.Now()))
}

func TestUnauthenticatedResponses(t *testing.T) {
	f := newAPIFixture(t)
	_, token := f.seedAccount(t, "ada@example.com", domain.RoleUser)

	cases := []struct {
		name string
		opts []requestOption
	}{
		{"no credential", nil},
		{"garbage bearer", []requestOption{bearer("not-a-jwt")}},
		{"malformed header beats valid cookie", []requestOption{
			func(r *nethttp.Request) { r.Header.Set("Authorization", "Token "+token) },
			withCookie(&nethttp.Cookie{Name: cookieName, Value: token}),
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := f.do(t, fiber.MethodGet, "/users/me", nil, tc.opts...)
			assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, "UNAUTHORIZED", errorCode(t, body))
		})
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newAPIFixture(t)

	resp, body := f.do(t, fiber.MethodPost, "/auth/register", map[string]string{
		"name": "Ada", "email": "not-an-email", "password": "weak",
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(t, body))
	details := body["error"].(map[string]any)["details"].(map[string]any)
	assert.Contains(t, details, "email")
	assert.Contains(t, details, "password")

	payload := map[string]string{"name": "Ada", "email": "ada@example.com", "password": apiPassword}
	resp, _ = f.do(t, fiber.MethodPost, "/auth/register", payload)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	payload["email"] = "ADA@example.com"
	resp, body = f.do(t, fiber.MethodPost, "/auth/register", payload)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "EMAIL_TAKEN", errorCode(t, body))
}

func TestResendIsSilent(t *testing.T) {
	f := newAPIFixture(t)

	resp, _ := f.do(t, fiber.MethodPost, "/auth/verify/resend", map[string]string{"email": "nobody@example.com"})
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	assert.Empty(t, f.mail.sent)
}

func TestPostPermissions(t *testing.T) {
	f := newAPIFixture(t)
	_, author := f.seedAccount(t, "author@example.com", domain.RoleUser)
	_, stranger := f.seedAccount(t, "stranger@example.com", domain.RoleUser)
	_, admin := f.seedAccount(t, "admin@example.com", domain.RoleAdmin)

	resp, body := f.do(t, fiber.MethodPost, "/posts", map[string]string{"title": "Hello", "content": "World"})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, body)

	resp, body = f.do(t, fiber.MethodPost, "/posts", map[string]string{"title": "Hello", "content": "World"}, bearer(author))
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, body)
	postID := data(t, body)["id"].(string)
	assert.Equal(t, "author@example.com", data(t, body)["author"].(map[string]any)["email"])

	resp, body = f.do(t, fiber.MethodGet, "/posts?q=hello", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, body["data"], 1)

	resp, _ = f.do(t, fiber.MethodGet, "/posts/"+postID, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, body = f.do(t, fiber.MethodPatch, "/posts/"+postID, map[string]string{"title": "Mine now"}, bearer(stranger))
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", errorCode(t, body))

	resp, _ = f.do(t, fiber.MethodPatch, "/posts/"+postID, map[string]string{"title": "Edited"}, bearer(admin))
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode, "admins cannot edit other authors' posts")

	resp, body = f.do(t, fiber.MethodPatch, "/posts/"+postID, map[string]string{"title": "Edited"}, bearer(author))
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "Edited", data(t, body)["title"])

	resp, _ = f.do(t, fiber.MethodDelete, "/posts/"+postID, nil, bearer(stranger))
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = f.do(t, fiber.MethodDelete, "/posts/"+postID, nil, bearer(admin))
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp, body = f.do(t, fiber.MethodGet, "/posts/"+postID, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", errorCode(t, body))
}

func TestAdminRoutes(t *testing.T) {
	f := newAPIFixture(t)
	userID, user := f.seedAccount(t, "user@example.com", domain.RoleUser)
	adminID, admin := f.seedAccount(t, "admin@example.com", domain.RoleAdmin)

	resp, _ := f.do(t, fiber.MethodGet, "/admin/users", nil, bearer(user))
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, body := f.do(t, fiber.MethodGet, "/admin/users", nil, bearer(admin))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, body["data"], 2)

	resp, body = f.do(t, fiber.MethodPatch, "/admin/users/"+userID+"/role", map[string]string{"role": "SUPERUSER"}, bearer(admin))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(t, body))

	resp, body = f.do(t, fiber.MethodPatch, "/admin/users/"+adminID+"/role", map[string]string{"role": "USER"}, bearer(admin))
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "SELF_DEMOTION", errorCode(t, body))

	resp, body = f.do(t, fiber.MethodPatch, "/admin/users/"+userID+"/role", map[string]string{"role": "ADMIN"}, bearer(admin))
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "ADMIN", data(t, body)["role"])

	// the promoted account's existing session picks up the new role
	resp, _ = f.do(t, fiber.MethodGet, "/admin/users", nil, bearer(user))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = f.do(t, fiber.MethodDelete, "/users/"+userID, nil, bearer(admin))
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp, body = f.do(t, fiber.MethodPost, "/auth/login", map[string]string{"email": "user@example.com", "password": apiPassword})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_CREDENTIALS", errorCode(t, body))
}

func TestDeleteMeClearsCookie(t *testing.T) {
	f := newAPIFixture(t)
	_, token := f.seedAccount(t, "ada@example.com", domain.RoleUser)

	resp, _ := f.do(t, fiber.MethodDelete, "/users/me", nil, bearer(token))
	require.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	cleared := sessionCookie(resp)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	resp, body := f.do(t, fiber.MethodGet, "/users/me", nil, bearer(token))
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "account unavailable", body["error"].(map[string]any)["message"])
}

func TestEmailChangeRequiresReverification(t *testing.T) {
	f := newAPIFixture(t)
	_, token := f.seedAccount(t, "ada@example.com", domain.RoleUser)

	resp, body := f.do(t, fiber.MethodPatch, "/users/me", map[string]string{"email": "new@example.com"}, bearer(token))
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, true, data(t, body)["verification_required"])
	assert.Equal(t, false, data(t, body)["user"].(map[string]any)["email_verified"])

	resp, _ = f.do(t, fiber.MethodGet, "/users/me", nil, bearer(token))
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, "unverified accounts cannot use existing sessions")
}

func TestFrameworkErrorsUseEnvelope(t *testing.T) {
	f := newAPIFixture(t)

	resp, body := f.do(t, fiber.MethodGet, "/nowhere", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", errorCode(t, body))

	req := httptest.NewRequest(fiber.MethodPost, "/auth/login", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	raw, err := f.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, raw.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newAPIFixture(t)

	resp, body := f.do(t, fiber.MethodGet, "/health/live", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "alive", body["status"])

	resp, body = f.do(t, fiber.MethodGet, "/health/ready", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "degraded", body["status"])
	deps := body["dependencies"].(map[string]any)
	assert.Equal(t, "in-memory", deps["postgres"])

	req := httptest.NewRequest(fiber.MethodGet, "/metrics", nil)
	raw, err := f.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, raw.StatusCode)
	text, err := io.ReadAll(raw.Body)
	require.NoError(t, err)
	assert.Contains(t, string(text), "http_requests_total")
}
