package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ViddeM/accounts/internal/domain"
	apperrors "github.com/ViddeM/accounts/pkg/errors"
)

// Login authenticates an account with email and password and opens a session.
func (s *AccountService) Login(ctx context.Context, email, pass string) (*domain.Session, error) {
	details, err := s.Authenticate(ctx, email, pass)
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.Create(ctx, details.AccountID)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.logger.InfoContext(ctx, "login successful",
		slog.String("account_id", details.AccountID),
	)
	return sess, nil
}

// Authenticate verifies an email/password pair against the lockout policy
// without opening a session. Used by the login flow and by the basic-auth
// token grant.
//
// The password is always verified before the lockout state is consulted, so a
// wrong guess during a lockout still advances the failure count and extends
// the deadline.
func (s *AccountService) Authenticate(ctx context.Context, email, pass string) (*domain.LoginDetails, error) {
	if email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	if pass == "" {
		return nil, apperrors.InvalidInput("password is required")
	}

	details, err := s.loginRepo.GetByEmail(ctx, email)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.Unauthorized("invalid email or password")
	}
	if err != nil {
		return nil, fmt.Errorf("get login details: %w", err)
	}

	now := s.now().UTC()

	if !s.codec.Verify(pass, details.Password, details.Nonce) {
		count := details.IncorrectPasswordCount + 1
		until := lockoutUntil(count, now)
		if err := s.loginRepo.RecordLoginFailure(ctx, details.AccountID, count, until); err != nil {
			return nil, fmt.Errorf("record login failure: %w", err)
		}

		s.logger.WarnContext(ctx, "incorrect password",
			slog.String("account_id", details.AccountID),
			slog.Int("incorrect_password_count", count),
		)
		return nil, apperrors.Unauthorized("invalid email or password")
	}

	if details.LockedAt(now) {
		return nil, apperrors.Policy("ACCOUNT_LOCKED", "account is locked due to excessive incorrect login attempts")
	}

	if !details.Activated() {
		return nil, apperrors.Policy("ACCOUNT_NOT_ACTIVATED", "account has not yet been activated")
	}

	if err := s.loginRepo.ClearLoginFailures(ctx, details.AccountID); err != nil {
		return nil, fmt.Errorf("clear login failures: %w", err)
	}

	return details, nil
}

// Logout revokes the given session.
func (s *AccountService) Logout(ctx context.Context, sess *domain.Session) error {
	if err := s.sessions.Revoke(ctx, sess); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}
