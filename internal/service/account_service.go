package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/blog-service/internal/auth"
	"github.com/spec-kit/blog-service/internal/config"
	"github.com/spec-kit/blog-service/internal/domain"
	"github.com/spec-kit/blog-service/internal/events"
	"github.com/spec-kit/blog-service/internal/repository"
	"github.com/spec-kit/blog-service/pkg/util/errorutil"
)

// AccountService handles operations an authenticated caller performs on
// accounts: profile changes, password changes, deletion and role management.
type AccountService struct {
	users      repository.UserRepository
	hasher     *auth.PasswordHasher
	dispatcher events.Dispatcher
	mail       *verificationMail
	logger     *zap.Logger
}

// NewAccountService builds the service from the same dependencies as AuthService.
func NewAccountService(cfg config.Config, deps AuthDependencies) *AccountService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &AccountService{
		users:      deps.Users,
		hasher:     deps.Hasher,
		dispatcher: deps.Dispatcher,
		mail:       deps.verificationMail(cfg),
		logger:     deps.Logger,
	}
}

// UpdateProfileInput lists the fields to change; nil means unchanged.
type UpdateProfileInput struct {
	Name  *string
	Email *string
}

// UpdateProfileResult is the updated account plus non-fatal warnings.
type UpdateProfileResult struct {
	User                 *domain.User
	VerificationRequired bool
	Warnings             []string
}

// Profile returns the caller's account.
func (s *AccountService) Profile(ctx context.Context, identity *domain.SessionIdentity) (*domain.User, error) {
	if err := auth.Authorize(identity, auth.AnyAuthenticated()); err != nil {
		return nil, err
	}
	return s.load(ctx, identity.AccountID)
}

// UpdateProfile changes the caller's name and/or email in a single write. A
// new email resets the account to unverified, cancels any pending
// verification token and sends a fresh verification mail.
func (s *AccountService) UpdateProfile(ctx context.Context, identity *domain.SessionIdentity, in UpdateProfileInput) (*UpdateProfileResult, error) {
	if err := auth.Authorize(identity, auth.AnyAuthenticated()); err != nil {
		return nil, err
	}
	if in.Name == nil && in.Email == nil {
		return nil, errorutil.NewValidationError("nothing to update", nil)
	}

	user, err := s.load(ctx, identity.AccountID)
	if err != nil {
		return nil, err
	}

	var changes repository.ProfileChanges
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if err := validateName(name); err != nil {
			return nil, err
		}
		if name != user.Name {
			changes.Name = &name
		}
	}
	if in.Email != nil {
		email := domain.NormalizeEmail(*in.Email)
		if email == "" {
			return nil, errorutil.NewValidationError("email is required", map[string]any{"email": "cannot be blank"})
		}
		if email != user.Email {
			if _, err := domain.NextState(user.State(), domain.EventEmailChange); err != nil {
				return nil, errorutil.NewConflict(err.Error(), nil)
			}
			changes.Email = &email
		}
	}

	result := &UpdateProfileResult{User: user}
	if changes.Name == nil && changes.Email == nil {
		return result, nil
	}

	updated, err := s.users.UpdateProfile(ctx, user.ID, changes)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, s.storageError(err)
	}
	result.User = updated

	if changes.Email != nil {
		s.logger.Info("account email changed", zap.String("account_id", updated.ID))
		result.VerificationRequired = true
		result.Warnings = s.mail.send(ctx, updated)
		publishAccountEvent(ctx, s.dispatcher, s.logger, events.EventAccountEmailChanged, updated.ID, identity.AccountID, nil)
	}
	return result, nil
}

// ChangePassword replaces the caller's password after re-checking the
// current one. Verification state is untouched.
func (s *AccountService) ChangePassword(ctx context.Context, identity *domain.SessionIdentity, currentPassword, newPassword string) error {
	if err := auth.Authorize(identity, auth.AnyAuthenticated()); err != nil {
		return err
	}
	if err := auth.CheckPasswordStrength(newPassword); err != nil {
		return errorutil.NewValidationError(err.Error(), map[string]any{"new_password": err.Error()})
	}

	user, err := s.load(ctx, identity.AccountID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(user.PasswordHash, currentPassword) {
		return ErrWrongPassword
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return errorutil.NewInternalError(err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return s.storageError(err)
	}
	s.logger.Info("password changed", zap.String("account_id", user.ID))
	return nil
}

// DeleteAccount removes targetID. Callers may delete themselves; admins may
// delete anyone. Owned posts and verification tokens go with the account.
func (s *AccountService) DeleteAccount(ctx context.Context, identity *domain.SessionIdentity, targetID string) error {
	if err := auth.Authorize(identity, auth.OwnerOrAdmin(targetID)); err != nil {
		return err
	}

	target, err := s.load(ctx, targetID)
	if err != nil {
		return err
	}
	if _, err := domain.NextState(target.State(), domain.EventDelete); err != nil {
		return errorutil.NewConflict(err.Error(), nil)
	}
	if err := s.users.Delete(ctx, target.ID); err != nil {
		return s.storageError(err)
	}

	byAdmin := identity.AccountID != target.ID
	s.logger.Info("account deleted", zap.String("account_id", target.ID), zap.Bool("by_admin", byAdmin))
	publishAccountEvent(ctx, s.dispatcher, s.logger, events.EventAccountDeleted, target.ID, identity.AccountID,
		events.AccountDeletedPayload{ByAdmin: byAdmin})
	return nil
}

// ListUsers returns every account. Admin only.
func (s *AccountService) ListUsers(ctx context.Context, identity *domain.SessionIdentity) ([]domain.User, error) {
	if err := auth.Authorize(identity, auth.RoleAtLeast(domain.RoleAdmin)); err != nil {
		return nil, err
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, errorutil.NewInternalError(err)
	}
	return users, nil
}

// ChangeRole sets the role of targetID. Admin only; an admin cannot demote
// themselves.
func (s *AccountService) ChangeRole(ctx context.Context, identity *domain.SessionIdentity, targetID string, role domain.Role) (*domain.User, error) {
	if err := auth.Authorize(identity, auth.RoleAtLeast(domain.RoleAdmin)); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, errorutil.NewValidationError("unknown role", map[string]any{"role": "must be USER or ADMIN"})
	}
	if targetID == identity.AccountID && !role.AtLeast(domain.RoleAdmin) {
		return nil, ErrSelfDemotion
	}

	target, err := s.load(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if target.Role == role {
		return target, nil
	}

	oldRole := target.Role
	updated, err := s.users.UpdateRole(ctx, target.ID, role)
	if err != nil {
		return nil, s.storageError(err)
	}
	s.logger.Info("account role changed",
		zap.String("account_id", updated.ID),
		zap.String("old_role", string(oldRole)),
		zap.String("new_role", string(role)),
	)
	publishAccountEvent(ctx, s.dispatcher, s.logger, events.EventAccountRoleChanged, updated.ID, identity.AccountID,
		events.AccountRoleChangedPayload{OldRole: oldRole, NewRole: role})
	return updated, nil
}

func (s *AccountService) load(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, s.storageError(err)
	}
	return user, nil
}

func (s *AccountService) storageError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrAccountNotFound
	}
	s.logger.Error("account storage failure", zap.Error(err))
	return errorutil.NewInternalError(err)
}
