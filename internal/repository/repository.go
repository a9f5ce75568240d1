package repository

import (
	"context"
	"time"

	"github.com/ViddeM/accounts/internal/domain"
)

// Tx bundles repositories bound to a single relational transaction. Writes
// made through its repositories become visible together or not at all.
type Tx struct {
	Accounts        AccountRepository
	LoginDetails    LoginDetailsRepository
	ActivationCodes ActivationCodeRepository
	PasswordResets  PasswordResetRepository
}

// TxRunner runs a function inside one database transaction, committing only
// after the function returns nil. A non-nil return rolls every write back.
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// AccountRepository defines the interface for account persistence operations.
type AccountRepository interface {
	// Create inserts a new account into the store.
	Create(ctx context.Context, account *domain.Account) error

	// GetByID retrieves an account by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Account, error)

	// List returns all accounts ordered by creation time.
	List(ctx context.Context) ([]domain.Account, error)

	// DeleteMany removes the accounts with the given identifiers.
	DeleteMany(ctx context.Context, ids []string) error
}

// LoginDetailsRepository defines the interface for credential persistence.
type LoginDetailsRepository interface {
	// Create inserts a new credential row for an account.
	Create(ctx context.Context, details *domain.LoginDetails) error

	// GetByEmail retrieves a credential by email address.
	GetByEmail(ctx context.Context, email string) (*domain.LoginDetails, error)

	// GetByAccountID retrieves a credential by account identifier.
	GetByAccountID(ctx context.Context, accountID string) (*domain.LoginDetails, error)

	// UpdatePassword replaces the stored password envelope and nonce.
	UpdatePassword(ctx context.Context, accountID, password, nonce string) error

	// MarkActivated stamps the credential as activated.
	MarkActivated(ctx context.Context, accountID string, at time.Time) error

	// RecordLoginFailure stores the updated failure count and lockout deadline.
	RecordLoginFailure(ctx context.Context, accountID string, count int, lockedUntil *time.Time) error

	// ClearLoginFailures resets the failure count and lockout deadline.
	ClearLoginFailures(ctx context.Context, accountID string) error

	// DeleteMany removes the credentials for the given account identifiers.
	DeleteMany(ctx context.Context, accountIDs []string) error
}

// ActivationCodeRepository defines the interface for activation code persistence.
type ActivationCodeRepository interface {
	// Create inserts a new activation code for a credential.
	Create(ctx context.Context, loginDetailsID string) (*domain.ActivationCode, error)

	// GetByCode retrieves an activation code by its code value.
	GetByCode(ctx context.Context, code string) (*domain.ActivationCode, error)

	// Delete removes an activation code by its identifier.
	Delete(ctx context.Context, id string) error

	// DeleteOlderThan removes codes created before the cutoff and returns them.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]domain.ActivationCode, error)
}

// PasswordResetRepository defines the interface for password reset persistence.
type PasswordResetRepository interface {
	// Create inserts a new password reset code for a credential.
	Create(ctx context.Context, loginDetailsID string) (*domain.PasswordReset, error)

	// GetByCode retrieves a pending reset by its code value.
	GetByCode(ctx context.Context, code string) (*domain.PasswordReset, error)

	// GetLatestByLoginDetails returns the most recent pending reset for a
	// credential, or ErrNotFound if none exists.
	GetLatestByLoginDetails(ctx context.Context, loginDetailsID string) (*domain.PasswordReset, error)

	// Delete removes a reset by its identifier.
	Delete(ctx context.Context, id string) error

	// DeleteOlderThan removes resets created before the cutoff and returns them.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]domain.PasswordReset, error)
}

// WhitelistRepository defines the interface for registration whitelist persistence.
type WhitelistRepository interface {
	// Add inserts an email into the whitelist.
	Add(ctx context.Context, email string) (*domain.WhitelistEntry, error)

	// Get retrieves a whitelist entry by email.
	Get(ctx context.Context, email string) (*domain.WhitelistEntry, error)

	// List returns all whitelist entries.
	List(ctx context.Context) ([]domain.WhitelistEntry, error)

	// Remove deletes an email from the whitelist.
	Remove(ctx context.Context, email string) error
}

// OauthClientRepository defines the interface for OAuth2 client persistence.
type OauthClientRepository interface {
	// Create inserts a new client registration.
	Create(ctx context.Context, client *domain.OauthClient) error

	// GetByClientID retrieves a client by its public client_id.
	GetByClientID(ctx context.Context, clientID string) (*domain.OauthClient, error)

	// GetByID retrieves a client by its internal identifier.
	GetByID(ctx context.Context, id string) (*domain.OauthClient, error)

	// List returns all registered clients.
	List(ctx context.Context) ([]domain.OauthClient, error)

	// Delete removes a client registration.
	Delete(ctx context.Context, id string) error

	// AddScope registers a scope for a client.
	AddScope(ctx context.Context, clientID string, scope domain.Scope) (*domain.ClientScope, error)

	// ListScopes returns the scopes registered for a client.
	ListScopes(ctx context.Context, clientID string) ([]domain.ClientScope, error)
}

// ConsentRepository defines the interface for user consent persistence.
type ConsentRepository interface {
	// Grant upserts a consent row for (client, account) and records the
	// consented scopes atomically.
	Grant(ctx context.Context, clientID, accountID string, scopeIDs []string) (*domain.Consent, error)

	// Get retrieves the consent for (client, account), or ErrNotFound.
	Get(ctx context.Context, clientID, accountID string) (*domain.Consent, error)

	// ListScopes returns the scopes the account has consented to for the client.
	ListScopes(ctx context.Context, consentID string) ([]domain.Scope, error)

	// Revoke removes the consent for (client, account).
	Revoke(ctx context.Context, clientID, accountID string) error
}
