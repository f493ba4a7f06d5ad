package service

import (
	"net/http"

	"github.com/spec-kit/blog-service/pkg/util/errorutil"
)

// Errors returned to callers of the account and post services. They are
// DomainErrors so the HTTP layer renders them unchanged.
var (
	ErrInvalidCredentials = errorutil.NewDomainError("INVALID_CREDENTIALS", "invalid email or password", http.StatusUnauthorized, nil)
	ErrEmailNotVerified   = errorutil.NewDomainError("EMAIL_NOT_VERIFIED", "email address has not been verified", http.StatusForbidden, nil)
	ErrEmailTaken         = errorutil.NewDomainError("EMAIL_TAKEN", "email already registered", http.StatusConflict, nil)
	ErrTooManyAttempts    = errorutil.NewDomainError(errorutil.CodeTooManyAttempts, "too many failed login attempts; try again later", http.StatusTooManyRequests, nil)
	ErrWrongPassword      = errorutil.NewDomainError("INVALID_CURRENT_PASSWORD", "current password is incorrect", http.StatusBadRequest, nil)
	ErrSelfDemotion       = errorutil.NewDomainError("SELF_DEMOTION", "admins cannot remove their own admin role", http.StatusForbidden, nil)
	ErrAccountNotFound    = errorutil.NewDomainError(errorutil.CodeNotFound, "account not found", http.StatusNotFound, nil)
	ErrPostNotFound       = errorutil.NewDomainError(errorutil.CodeNotFound, "post not found", http.StatusNotFound, nil)

	ErrVerificationNotFound = errorutil.NewDomainError("VERIFICATION_TOKEN_NOT_FOUND", "verification token not found", http.StatusNotFound, nil)
	ErrVerificationConsumed = errorutil.NewDomainError("VERIFICATION_TOKEN_CONSUMED", "verification token already used", http.StatusConflict, nil)
	ErrVerificationExpired  = errorutil.NewDomainError("VERIFICATION_TOKEN_EXPIRED", "verification token expired", http.StatusBadRequest, nil)
)
