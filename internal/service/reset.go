package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ViddeM/accounts/internal/mailer"
	"github.com/ViddeM/accounts/internal/repository"
	apperrors "github.com/ViddeM/accounts/pkg/errors"
)

// RequestPasswordReset mails a reset code to the account behind the email.
// Unknown emails are silently accepted so the endpoint cannot be used to
// probe which addresses have accounts. Repeat requests inside the cooldown
// are dropped the same way.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) error {
	if email == "" {
		return apperrors.InvalidInput("email is required")
	}

	details, err := s.loginRepo.GetByEmail(ctx, email)
	if errors.Is(err, apperrors.ErrNotFound) {
		s.logger.InfoContext(ctx, "password reset requested for unknown email",
			slog.String("email", email),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get login details: %w", err)
	}

	now := s.now().UTC()

	existing, err := s.resetRepo.GetLatestByLoginDetails(ctx, details.AccountID)
	switch {
	case err == nil:
		if now.Sub(existing.CreatedAt) < ResetCooldown {
			s.logger.InfoContext(ctx, "password reset requested within cooldown",
				slog.String("account_id", details.AccountID),
			)
			return nil
		}
	case errors.Is(err, apperrors.ErrNotFound):
		existing = nil
	default:
		return fmt.Errorf("get existing password reset: %w", err)
	}

	// Replacing the old code and mailing the new one commit together: a
	// failed send keeps the previous code redeemable.
	err = s.tx.InTx(ctx, func(tx repository.Tx) error {
		if existing != nil {
			if err := tx.PasswordResets.Delete(ctx, existing.ID); err != nil {
				return fmt.Errorf("delete old password reset: %w", err)
			}
		}

		reset, err := tx.PasswordResets.Create(ctx, details.AccountID)
		if err != nil {
			return fmt.Errorf("create password reset: %w", err)
		}

		msg := mailer.Message{
			To:      email,
			Subject: "Password reset request for your account",
			Body:    resetEmailBody(reset.Code),
		}
		if err := s.mail.Send(ctx, msg); err != nil {
			return fmt.Errorf("send reset email: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "password reset requested",
		slog.String("account_id", details.AccountID),
	)
	return nil
}

// CompletePasswordReset redeems a reset code and replaces the account's
// password. All sessions for the account are revoked afterwards.
func (s *AccountService) CompletePasswordReset(ctx context.Context, email, code, newPassword string) error {
	if email == "" || code == "" {
		return apperrors.InvalidInput("email and code are required")
	}
	if newPassword == "" {
		return apperrors.InvalidInput("password is required")
	}

	details, err := s.loginRepo.GetByEmail(ctx, email)
	if errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.Unauthorized("invalid email or reset code")
	}
	if err != nil {
		return fmt.Errorf("get login details: %w", err)
	}

	reset, err := s.resetRepo.GetByCode(ctx, code)
	if errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.Unauthorized("invalid email or reset code")
	}
	if err != nil {
		return fmt.Errorf("get password reset: %w", err)
	}

	if reset.LoginDetails != details.AccountID {
		return apperrors.Unauthorized("invalid email or reset code")
	}

	now := s.now().UTC()
	if now.Sub(reset.CreatedAt) > ResetWindow {
		return apperrors.Unauthorized("reset code has expired")
	}

	sealed, nonce, err := s.codec.Seal(newPassword)
	if err != nil {
		return fmt.Errorf("seal password: %w", err)
	}

	// The password swap and the code burn commit together, so a spent code
	// always means the new password is in place.
	err = s.tx.InTx(ctx, func(tx repository.Tx) error {
		if err := tx.LoginDetails.UpdatePassword(ctx, details.AccountID, sealed, nonce); err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		if err := tx.PasswordResets.Delete(ctx, reset.ID); err != nil {
			return fmt.Errorf("delete password reset: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Anyone holding a stolen session loses it along with the old password.
	if err := s.sessions.RevokeAll(ctx, details.AccountID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}

	if err := s.producer.PublishPasswordReset(ctx, details.AccountID, email); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish password.reset event",
			slog.String("account_id", details.AccountID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "password reset completed",
		slog.String("account_id", details.AccountID),
	)
	return nil
}

func resetEmailBody(code string) string {
	return fmt.Sprintf(`Hi!

A request has been made to reset the password of your account.
If you requested this password reset, here is your reset code:

%s

This code will be valid for 3 hours.

If you did not request this password reset you can safely ignore this email.
`, code)
}
