package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ViddeM/accounts/internal/domain"
	"github.com/ViddeM/accounts/internal/event"
	"github.com/ViddeM/accounts/internal/mailer"
	"github.com/ViddeM/accounts/internal/password"
	"github.com/ViddeM/accounts/internal/repository"
	"github.com/ViddeM/accounts/internal/session"
	apperrors "github.com/ViddeM/accounts/pkg/errors"
)

const (
	// ActivationWindow is how long a new account has to activate before the
	// retention sweeper deletes it.
	ActivationWindow = 12 * time.Hour

	// ResetWindow is how long a password reset code stays redeemable.
	ResetWindow = 3 * time.Hour

	// ResetCooldown is the minimum time between reset emails per account.
	ResetCooldown = 60 * time.Second
)

// AccountService implements the business logic for account lifecycle, login,
// and password reset operations.
type AccountService struct {
	accountRepo    repository.AccountRepository
	loginRepo      repository.LoginDetailsRepository
	activationRepo repository.ActivationCodeRepository
	resetRepo      repository.PasswordResetRepository
	whitelistRepo  repository.WhitelistRepository
	tx             repository.TxRunner
	codec          *password.Codec
	sessions       *session.Manager
	mail           mailer.Sender
	producer       *event.Producer
	baseURL        string
	logger         *slog.Logger

	now func() time.Time
}

// NewAccountService creates a new account service. baseURL is the externally
// reachable address used in activation emails.
func NewAccountService(
	accountRepo repository.AccountRepository,
	loginRepo repository.LoginDetailsRepository,
	activationRepo repository.ActivationCodeRepository,
	resetRepo repository.PasswordResetRepository,
	whitelistRepo repository.WhitelistRepository,
	tx repository.TxRunner,
	codec *password.Codec,
	sessions *session.Manager,
	mail mailer.Sender,
	producer *event.Producer,
	baseURL string,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		accountRepo:    accountRepo,
		loginRepo:      loginRepo,
		activationRepo: activationRepo,
		resetRepo:      resetRepo,
		whitelistRepo:  whitelistRepo,
		tx:             tx,
		codec:          codec,
		sessions:       sessions,
		mail:           mail,
		producer:       producer,
		baseURL:        baseURL,
		logger:         logger,
		now:            time.Now,
	}
}

// CreateAccountInput holds the parameters for registering a new account.
type CreateAccountInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// CreateAccount registers a new unactivated account for a whitelisted email
// and mails its activation code.
func (s *AccountService) CreateAccount(ctx context.Context, input CreateAccountInput) error {
	if input.Email == "" {
		return apperrors.InvalidInput("email is required")
	}
	if input.FirstName == "" {
		return apperrors.InvalidInput("first name is required")
	}
	if input.LastName == "" {
		return apperrors.InvalidInput("last name is required")
	}
	if input.Password == "" {
		return apperrors.InvalidInput("password is required")
	}

	_, err := s.loginRepo.GetByEmail(ctx, input.Email)
	if err == nil {
		return apperrors.AlreadyExists("account", "email", input.Email)
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return fmt.Errorf("check existing email: %w", err)
	}

	if _, err := s.whitelistRepo.Get(ctx, input.Email); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.logger.WarnContext(ctx, "registration attempt for non-whitelisted email",
				slog.String("email", input.Email),
			)
			return apperrors.Policy("EMAIL_NOT_WHITELISTED", "email is not in the whitelist")
		}
		return fmt.Errorf("check whitelist: %w", err)
	}

	sealed, nonce, err := s.codec.Seal(input.Password)
	if err != nil {
		return fmt.Errorf("seal password: %w", err)
	}

	account := &domain.Account{
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Authority: domain.AuthorityUser,
	}

	// The email is sent inside the transaction on purpose: a failed send
	// rolls everything back so the address can register again immediately,
	// at the cost of a rare duplicate email if the commit itself fails.
	err = s.tx.InTx(ctx, func(tx repository.Tx) error {
		if err := tx.Accounts.Create(ctx, account); err != nil {
			return fmt.Errorf("create account: %w", err)
		}

		details := &domain.LoginDetails{
			AccountID: account.ID,
			Email:     input.Email,
			Password:  sealed,
			Nonce:     nonce,
		}
		if err := tx.LoginDetails.Create(ctx, details); err != nil {
			return fmt.Errorf("create login details: %w", err)
		}

		code, err := tx.ActivationCodes.Create(ctx, account.ID)
		if err != nil {
			return fmt.Errorf("create activation code: %w", err)
		}

		msg := mailer.Message{
			To:      input.Email,
			Subject: "Activate your account",
			Body:    s.activationEmailBody(input.Email, code.Code),
		}
		if err := s.mail.Send(ctx, msg); err != nil {
			return fmt.Errorf("send activation email: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.producer.PublishAccountCreated(ctx, account, input.Email); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish account.created event",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "account created",
		slog.String("account_id", account.ID),
		slog.String("email", input.Email),
	)
	return nil
}

// ActivateAccount redeems an activation code for the given email. Codes older
// than the activation window are rejected.
func (s *AccountService) ActivateAccount(ctx context.Context, email, code string) error {
	if email == "" || code == "" {
		return apperrors.InvalidInput("email and code are required")
	}

	details, err := s.loginRepo.GetByEmail(ctx, email)
	if errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.Unauthorized("invalid email or activation code")
	}
	if err != nil {
		return fmt.Errorf("get login details: %w", err)
	}

	activation, err := s.activationRepo.GetByCode(ctx, code)
	if errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.Unauthorized("invalid email or activation code")
	}
	if err != nil {
		return fmt.Errorf("get activation code: %w", err)
	}

	if activation.LoginDetails != details.AccountID {
		return apperrors.Unauthorized("invalid email or activation code")
	}

	now := s.now().UTC()
	if now.Sub(activation.CreatedAt) > ActivationWindow {
		return apperrors.Unauthorized("activation code has expired")
	}

	// Stamping the credential and burning the code commit together, so the
	// code can never be spent without the account coming out activated.
	err = s.tx.InTx(ctx, func(tx repository.Tx) error {
		if err := tx.LoginDetails.MarkActivated(ctx, details.AccountID, now); err != nil {
			return fmt.Errorf("mark activated: %w", err)
		}
		if err := tx.ActivationCodes.Delete(ctx, activation.ID); err != nil {
			return fmt.Errorf("delete activation code: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.producer.PublishAccountActivated(ctx, details.AccountID, email); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish account.activated event",
			slog.String("account_id", details.AccountID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "account activated",
		slog.String("account_id", details.AccountID),
	)
	return nil
}

// GetAccount returns the account and email profile for an account id.
func (s *AccountService) GetAccount(ctx context.Context, accountID string) (*domain.Account, string, error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, "", fmt.Errorf("get account: %w", err)
	}

	details, err := s.loginRepo.GetByAccountID(ctx, accountID)
	if err != nil {
		return nil, "", fmt.Errorf("get login details: %w", err)
	}

	return account, details.Email, nil
}

// ListAccounts returns all registered accounts.
func (s *AccountService) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	accounts, err := s.accountRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

func (s *AccountService) activationEmailBody(email, code string) string {
	link := fmt.Sprintf("%s/api/accounts/activate?email=%s&code=%s", s.baseURL, email, code)
	return fmt.Sprintf(`Hi!

An account has been created with this email address but it must be activated before use.
To activate the account, go to the following address: %s

If the account is not activated within 12 hours it will be deleted.

If you did not register this account, please ignore this email!
`, link)
}
