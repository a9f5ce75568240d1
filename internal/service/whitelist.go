package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ViddeM/accounts/internal/domain"
	apperrors "github.com/ViddeM/accounts/pkg/errors"
)

// AddToWhitelist allows the given email to register an account.
func (s *AccountService) AddToWhitelist(ctx context.Context, email string) (*domain.WhitelistEntry, error) {
	if email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}

	entry, err := s.whitelistRepo.Add(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("add to whitelist: %w", err)
	}

	s.logger.InfoContext(ctx, "email whitelisted", slog.String("email", email))
	return entry, nil
}

// ListWhitelist returns all whitelisted emails.
func (s *AccountService) ListWhitelist(ctx context.Context) ([]domain.WhitelistEntry, error) {
	entries, err := s.whitelistRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list whitelist: %w", err)
	}
	return entries, nil
}

// RemoveFromWhitelist removes an email from the whitelist. Existing accounts
// are unaffected.
func (s *AccountService) RemoveFromWhitelist(ctx context.Context, email string) error {
	if email == "" {
		return apperrors.InvalidInput("email is required")
	}

	if err := s.whitelistRepo.Remove(ctx, email); err != nil {
		return fmt.Errorf("remove from whitelist: %w", err)
	}

	s.logger.InfoContext(ctx, "email removed from whitelist", slog.String("email", email))
	return nil
}
