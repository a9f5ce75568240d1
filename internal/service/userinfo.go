package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ViddeM/accounts/internal/domain"
	"github.com/ViddeM/accounts/internal/oauth"
	"github.com/ViddeM/accounts/internal/repository"
	apperrors "github.com/ViddeM/accounts/pkg/errors"
	"github.com/ViddeM/accounts/pkg/middleware"
)

// UserInfoService resolves access tokens to account claims for the userinfo
// endpoint and for bearer-authenticated resource requests.
type UserInfoService struct {
	engine      *oauth.Engine
	accountRepo repository.AccountRepository
	loginRepo   repository.LoginDetailsRepository
	logger      *slog.Logger
}

// NewUserInfoService creates a new userinfo service.
func NewUserInfoService(
	engine *oauth.Engine,
	accountRepo repository.AccountRepository,
	loginRepo repository.LoginDetailsRepository,
	logger *slog.Logger,
) *UserInfoService {
	return &UserInfoService{
		engine:      engine,
		accountRepo: accountRepo,
		loginRepo:   loginRepo,
		logger:      logger,
	}
}

// UserInfo is the claim set returned for an access token. Fields outside the
// token's granted scopes are left empty.
type UserInfo struct {
	Subject   string `json:"sub"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Resolve returns the claims for an access token, filtered by its scopes.
func (s *UserInfoService) Resolve(ctx context.Context, accessToken string) (*UserInfo, error) {
	record, err := s.engine.Introspect(ctx, accessToken)
	if errors.Is(err, oauth.ErrInvalidToken) {
		return nil, apperrors.Unauthorized("invalid access token")
	}
	if err != nil {
		return nil, fmt.Errorf("introspect access token: %w", err)
	}

	account, err := s.accountRepo.GetByID(ctx, record.AccountID)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}

	info := &UserInfo{
		Subject:   account.ID,
		FirstName: account.FirstName,
		LastName:  account.LastName,
	}

	if hasScope(record.Scopes, domain.ScopeEmail) {
		details, err := s.loginRepo.GetByAccountID(ctx, record.AccountID)
		if err != nil {
			return nil, fmt.Errorf("get login details: %w", err)
		}
		info.Email = details.Email
	}

	return info, nil
}

// Profile is the full account profile exposed to first-party resource servers.
type Profile struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// ProfileByAccountID returns the full profile for an account. Unlike Resolve
// it ignores token scopes: this backs the endpoint trusted resource servers
// call after the bearer-auth middleware has validated their token.
func (s *UserInfoService) ProfileByAccountID(ctx context.Context, accountID string) (*Profile, error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	details, err := s.loginRepo.GetByAccountID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get login details: %w", err)
	}

	return &Profile{
		FirstName: account.FirstName,
		LastName:  account.LastName,
		Email:     details.Email,
	}, nil
}

// Validator adapts token introspection to the bearer-auth middleware.
func (s *UserInfoService) Validator() middleware.TokenValidator {
	return func(ctx context.Context, accessToken string) (*middleware.Claims, error) {
		record, err := s.engine.Introspect(ctx, accessToken)
		if err != nil {
			return nil, err
		}

		account, err := s.accountRepo.GetByID(ctx, record.AccountID)
		if err != nil {
			return nil, err
		}

		details, err := s.loginRepo.GetByAccountID(ctx, record.AccountID)
		if err != nil {
			return nil, err
		}

		scopes := make([]string, len(record.Scopes))
		for i, scope := range record.Scopes {
			scopes[i] = string(scope)
		}

		s.logger.DebugContext(ctx, "access token validated",
			slog.String("account_id", account.ID),
			slog.String("client_id", record.ClientID),
		)

		return &middleware.Claims{
			AccountID: account.ID,
			Email:     details.Email,
			Authority: string(account.Authority),
			Scopes:    scopes,
		}, nil
	}
}

func hasScope(scopes []domain.Scope, want domain.Scope) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}
