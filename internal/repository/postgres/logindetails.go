package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/ViddeM/accounts/pkg/errors"

	"github.com/ViddeM/accounts/internal/domain"
	"github.com/ViddeM/accounts/pkg/database"
)

// LoginDetailsRepository implements repository.LoginDetailsRepository using PostgreSQL.
type LoginDetailsRepository struct {
	db database.DBTX
}

// NewLoginDetailsRepository creates a new PostgreSQL-backed credential repository.
func NewLoginDetailsRepository(db database.DBTX) *LoginDetailsRepository {
	return &LoginDetailsRepository{db: db}
}

// Create inserts a new credential row for an account.
func (r *LoginDetailsRepository) Create(ctx context.Context, d *domain.LoginDetails) error {
	query := `
		INSERT INTO login_details (account_id, email, password, password_nonces)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, modified_at`

	err := r.db.QueryRow(ctx, query, d.AccountID, d.Email, d.Password, d.Nonce).
		Scan(&d.CreatedAt, &d.ModifiedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("login details", "email", d.Email)
		}
		return fmt.Errorf("insert login details: %w", err)
	}

	return nil
}

// GetByEmail retrieves a credential by email address. This runs on every
// login, so it carries a query span.
func (r *LoginDetailsRepository) GetByEmail(ctx context.Context, email string) (d *domain.LoginDetails, err error) {
	query := selectLoginDetails + ` WHERE email = $1`
	ctx, end := database.TraceQuery(ctx, "LoginDetails.GetByEmail", query)
	defer func() { end(err) }()
	return r.scanLoginDetails(ctx, query, email)
}

// GetByAccountID retrieves a credential by account ID.
func (r *LoginDetailsRepository) GetByAccountID(ctx context.Context, accountID string) (d *domain.LoginDetails, err error) {
	query := selectLoginDetails + ` WHERE account_id = $1`
	ctx, end := database.TraceQuery(ctx, "LoginDetails.GetByAccountID", query)
	defer func() { end(err) }()
	return r.scanLoginDetails(ctx, query, accountID)
}

// UpdatePassword replaces the stored password envelope and nonce.
func (r *LoginDetailsRepository) UpdatePassword(ctx context.Context, accountID, password, nonce string) error {
	query := `
		UPDATE login_details
		SET password = $1, password_nonces = $2, modified_at = NOW()
		WHERE account_id = $3`

	ct, err := r.db.Exec(ctx, query, password, nonce, accountID)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("login details", accountID)
	}

	return nil
}

// MarkActivated stamps the credential as activated.
func (r *LoginDetailsRepository) MarkActivated(ctx context.Context, accountID string, at time.Time) error {
	query := `
		UPDATE login_details
		SET activated_at = $1, modified_at = NOW()
		WHERE account_id = $2`

	ct, err := r.db.Exec(ctx, query, at, accountID)
	if err != nil {
		return fmt.Errorf("mark activated: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("login details", accountID)
	}

	return nil
}

// RecordLoginFailure stores the updated failure count and lockout deadline.
func (r *LoginDetailsRepository) RecordLoginFailure(ctx context.Context, accountID string, count int, lockedUntil *time.Time) error {
	query := `
		UPDATE login_details
		SET incorrect_password_count = $1, account_locked_until = $2, modified_at = NOW()
		WHERE account_id = $3`

	ct, err := r.db.Exec(ctx, query, count, lockedUntil, accountID)
	if err != nil {
		return fmt.Errorf("record login failure: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("login details", accountID)
	}

	return nil
}

// ClearLoginFailures resets the failure count and lockout deadline.
func (r *LoginDetailsRepository) ClearLoginFailures(ctx context.Context, accountID string) error {
	query := `
		UPDATE login_details
		SET incorrect_password_count = 0, account_locked_until = NULL, modified_at = NOW()
		WHERE account_id = $1`

	if _, err := r.db.Exec(ctx, query, accountID); err != nil {
		return fmt.Errorf("clear login failures: %w", err)
	}

	return nil
}

// DeleteMany removes the credentials for the given account IDs.
func (r *LoginDetailsRepository) DeleteMany(ctx context.Context, accountIDs []string) error {
	if len(accountIDs) == 0 {
		return nil
	}

	query := `DELETE FROM login_details WHERE account_id = ANY($1)`

	if _, err := r.db.Exec(ctx, query, accountIDs); err != nil {
		return fmt.Errorf("delete login details: %w", err)
	}

	return nil
}

const selectLoginDetails = `
	SELECT account_id, email, password, password_nonces, activated_at,
	       incorrect_password_count, account_locked_until, created_at, modified_at
	FROM login_details`

// scanLoginDetails is a helper that executes a query expected to return a single credential row.
func (r *LoginDetailsRepository) scanLoginDetails(ctx context.Context, query string, args ...any) (*domain.LoginDetails, error) {
	var d domain.LoginDetails

	err := r.db.QueryRow(ctx, query, args...).Scan(
		&d.AccountID,
		&d.Email,
		&d.Password,
		&d.Nonce,
		&d.ActivatedAt,
		&d.IncorrectPasswordCount,
		&d.AccountLockedUntil,
		&d.CreatedAt,
		&d.ModifiedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan login details: %w", err)
	}

	return &d, nil
}
