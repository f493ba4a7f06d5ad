package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/blog-service/internal/auth"
	"github.com/spec-kit/blog-service/internal/config"
	"github.com/spec-kit/blog-service/internal/domain"
	"github.com/spec-kit/blog-service/internal/events"
	"github.com/spec-kit/blog-service/internal/mailer"
	"github.com/spec-kit/blog-service/internal/repository"
	"github.com/spec-kit/blog-service/pkg/util/errorutil"
)

const maxNameLength = 100

// AuthService coordinates registration, verification and login flows.
type AuthService struct {
	users         repository.UserRepository
	verifications *VerificationService
	tokens        *auth.TokenManager
	hasher        *auth.PasswordHasher
	limiter       LoginLimiter
	dispatcher    events.Dispatcher
	mail          *verificationMail
	logger        *zap.Logger

	dummyOnce sync.Once
	dummyHash string
}

// AuthDependencies encapsulates collaborators of the auth and account services.
type AuthDependencies struct {
	Users         repository.UserRepository
	Verifications *VerificationService
	Tokens        *auth.TokenManager
	Hasher        *auth.PasswordHasher
	Mailer        mailer.Sender
	Limiter       LoginLimiter
	Dispatcher    events.Dispatcher
	Logger        *zap.Logger
}

func (d AuthDependencies) verificationMail(cfg config.Config) *verificationMail {
	return &verificationMail{
		verifications: d.Verifications,
		sender:        d.Mailer,
		appName:       cfg.App.Name,
		baseURL:       cfg.App.BaseURL,
		logger:        d.Logger,
	}
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Limiter == nil {
		deps.Limiter = NoopLoginLimiter{}
	}
	return &AuthService{
		users:         deps.Users,
		verifications: deps.Verifications,
		tokens:        deps.Tokens,
		hasher:        deps.Hasher,
		limiter:       deps.Limiter,
		dispatcher:    deps.Dispatcher,
		mail:          deps.verificationMail(cfg),
		logger:        deps.Logger,
	}
}

// RegisterInput carries registration fields.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// RegisterResult is the outcome of a registration. Warnings report
// non-fatal problems such as an undelivered verification mail.
type RegisterResult struct {
	User     *domain.User
	Warnings []string
}

// LoginResult carries the issued session.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Identity  domain.SessionIdentity
	User      *domain.User
}

// Register creates an unverified account and sends its verification mail.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	name := strings.TrimSpace(in.Name)
	email := domain.NormalizeEmail(in.Email)
	if err := validateName(name); err != nil {
		return nil, err
	}
	if email == "" {
		return nil, errorutil.NewValidationError("email is required", map[string]any{"email": "cannot be blank"})
	}
	if err := auth.CheckPasswordStrength(in.Password); err != nil {
		return nil, errorutil.NewValidationError(err.Error(), map[string]any{"password": err.Error()})
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, errorutil.NewInternalError(err)
	}

	user := &domain.User{
		Name:          name,
		Email:         email,
		PasswordHash:  hash,
		Role:          domain.RoleUser,
		EmailVerified: false,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, errorutil.NewInternalError(err)
	}

	s.logger.Info("account registered", zap.String("account_id", user.ID))
	warnings := s.mail.send(ctx, user)
	publishAccountEvent(ctx, s.dispatcher, s.logger, events.EventAccountRegistered, user.ID, user.ID, nil)

	return &RegisterResult{User: user, Warnings: warnings}, nil
}

// VerifyEmail redeems a verification token and returns the now verified account.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (*domain.User, error) {
	accountID, err := s.verifications.Redeem(ctx, token)
	if err != nil {
		var domainErr *errorutil.DomainError
		if errors.As(err, &domainErr) {
			return nil, err
		}
		return nil, errorutil.NewInternalError(err)
	}

	user, err := s.users.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrVerificationNotFound
		}
		return nil, errorutil.NewInternalError(err)
	}

	s.logger.Info("email verified", zap.String("account_id", user.ID))
	publishAccountEvent(ctx, s.dispatcher, s.logger, events.EventAccountVerified, user.ID, user.ID, nil)
	return user, nil
}

// ResendVerification issues a fresh verification mail for an unverified
// account. Unknown and already verified addresses succeed silently so the
// endpoint cannot be used to probe for accounts.
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return errorutil.NewInternalError(err)
	}
	if user.EmailVerified {
		return nil
	}
	if warnings := s.mail.send(ctx, user); len(warnings) > 0 {
		s.logger.Warn("verification resend incomplete", zap.String("account_id", user.ID), zap.Strings("warnings", warnings))
	}
	return nil
}

// Login checks credentials and issues a JWT. Unverified accounts are
// refused even with the right password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = domain.NormalizeEmail(email)

	blocked, err := s.limiter.Blocked(ctx, email)
	if err != nil {
		s.logger.Warn("login limiter unavailable", zap.Error(err))
	}
	if blocked {
		return nil, ErrTooManyAttempts
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, errorutil.NewInternalError(err)
	}
	if user == nil {
		// Spend the same bcrypt work as a real comparison.
		s.hasher.Verify(s.dummyPasswordHash(), password)
		s.recordFailure(ctx, email)
		return nil, ErrInvalidCredentials
	}
	if !s.hasher.Verify(user.PasswordHash, password) {
		s.recordFailure(ctx, email)
		return nil, ErrInvalidCredentials
	}
	if err := domain.RequireVerified(user.State()); err != nil {
		return nil, ErrEmailNotVerified
	}

	if err := s.limiter.Reset(ctx, email); err != nil {
		s.logger.Warn("reset login failures", zap.Error(err))
	}

	token, exp, err := s.tokens.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, errorutil.NewInternalError(err)
	}
	identity, err := s.tokens.Validate(token)
	if err != nil {
		return nil, errorutil.NewInternalError(err)
	}

	return &LoginResult{Token: token, ExpiresAt: exp, Identity: identity, User: user}, nil
}

// Logout is a no-op server side; sessions are stateless and the transport
// clears the cookie.
func (s *AuthService) Logout(_ context.Context) error {
	return nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokens
}

func (s *AuthService) recordFailure(ctx context.Context, email string) {
	if err := s.limiter.RecordFailure(ctx, email); err != nil {
		s.logger.Warn("record login failure", zap.Error(err))
	}
}

func (s *AuthService) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("not-a-real-password")
		if err == nil {
			s.dummyHash = hash
		}
	})
	return s.dummyHash
}

func validateName(name string) error {
	if name == "" {
		return errorutil.NewValidationError("name is required", map[string]any{"name": "cannot be blank"})
	}
	if len([]rune(name)) > maxNameLength {
		return errorutil.NewValidationError("name is too long", map[string]any{"name": "must be at most 100 characters"})
	}
	return nil
}
