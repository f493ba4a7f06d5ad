package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/blog-service/internal/domain"
	"github.com/spec-kit/blog-service/internal/mailer"
)

// Warning texts returned alongside successful mutations.
const (
	WarningVerificationNotIssued = "verification token could not be issued; request a new verification email"
	WarningVerificationNotSent   = "verification email could not be sent; request a new verification email"
)

// verificationMail issues a token for an account and mails the link.
type verificationMail struct {
	verifications *VerificationService
	sender        mailer.Sender
	appName       string
	baseURL       string
	logger        *zap.Logger
}

// send never fails the caller; problems come back as warnings.
func (v *verificationMail) send(ctx context.Context, user *domain.User) []string {
	token, _, err := v.verifications.Issue(ctx, user.ID)
	if err != nil {
		v.logger.Error("issue verification token", zap.String("account_id", user.ID), zap.Error(err))
		return []string{WarningVerificationNotIssued}
	}

	msg, err := mailer.NewVerificationMessage(v.appName, user.Email, user.Name, mailer.VerificationLink(v.baseURL, token))
	if err == nil {
		err = v.sender.Send(ctx, msg)
	}
	if err != nil {
		v.logger.Warn("verification mail failed", zap.String("account_id", user.ID), zap.Error(err))
		return []string{WarningVerificationNotSent}
	}
	return nil
}
