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

// ActivationCodeRepository implements repository.ActivationCodeRepository using PostgreSQL.
type ActivationCodeRepository struct {
	db database.DBTX
}

// NewActivationCodeRepository creates a new PostgreSQL-backed activation code repository.
func NewActivationCodeRepository(db database.DBTX) *ActivationCodeRepository {
	return &ActivationCodeRepository{db: db}
}

// Create inserts a new activation code for a credential. The code value is
// generated by the database.
func (r *ActivationCodeRepository) Create(ctx context.Context, loginDetailsID string) (*domain.ActivationCode, error) {
	query := `
		INSERT INTO activation_codes (login_details)
		VALUES ($1)
		RETURNING id, login_details, code, created_at, modified_at`

	var c domain.ActivationCode
	err := r.db.QueryRow(ctx, query, loginDetailsID).
		Scan(&c.ID, &c.LoginDetails, &c.Code, &c.CreatedAt, &c.ModifiedAt)
	if err != nil {
		return nil, fmt.Errorf("insert activation code: %w", err)
	}

	return &c, nil
}

// GetByCode retrieves an activation code by its code value.
func (r *ActivationCodeRepository) GetByCode(ctx context.Context, code string) (*domain.ActivationCode, error) {
	query := `
		SELECT id, login_details, code, created_at, modified_at
		FROM activation_codes
		WHERE code = $1`

	var c domain.ActivationCode
	err := r.db.QueryRow(ctx, query, code).
		Scan(&c.ID, &c.LoginDetails, &c.Code, &c.CreatedAt, &c.ModifiedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan activation code: %w", err)
	}

	return &c, nil
}

// Delete removes an activation code by its ID.
func (r *ActivationCodeRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.db.Exec(ctx, `DELETE FROM activation_codes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete activation code: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("activation code", id)
	}

	return nil
}

// DeleteOlderThan removes codes created before the cutoff and returns them.
func (r *ActivationCodeRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]domain.ActivationCode, error) {
	query := `
		DELETE FROM activation_codes
		WHERE created_at < $1
		RETURNING id, login_details, code, created_at, modified_at`

	rows, err := r.db.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("delete outdated activation codes: %w", err)
	}
	defer rows.Close()

	var codes []domain.ActivationCode
	for rows.Next() {
		var c domain.ActivationCode
		if err := rows.Scan(&c.ID, &c.LoginDetails, &c.Code, &c.CreatedAt, &c.ModifiedAt); err != nil {
			return nil, fmt.Errorf("scan activation code: %w", err)
		}
		codes = append(codes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activation codes: %w", err)
	}

	return codes, nil
}

// PasswordResetRepository implements repository.PasswordResetRepository using PostgreSQL.
type PasswordResetRepository struct {
	db database.DBTX
}

// NewPasswordResetRepository creates a new PostgreSQL-backed password reset repository.
func NewPasswordResetRepository(db database.DBTX) *PasswordResetRepository {
	return &PasswordResetRepository{db: db}
}

// Create inserts a new password reset code for a credential.
func (r *PasswordResetRepository) Create(ctx context.Context, loginDetailsID string) (*domain.PasswordReset, error) {
	query := `
		INSERT INTO password_resets (login_details)
		VALUES ($1)
		RETURNING id, login_details, code, created_at, modified_at`

	var p domain.PasswordReset
	err := r.db.QueryRow(ctx, query, loginDetailsID).
		Scan(&p.ID, &p.LoginDetails, &p.Code, &p.CreatedAt, &p.ModifiedAt)
	if err != nil {
		return nil, fmt.Errorf("insert password reset: %w", err)
	}

	return &p, nil
}

// GetByCode retrieves a pending reset by its code value.
func (r *PasswordResetRepository) GetByCode(ctx context.Context, code string) (*domain.PasswordReset, error) {
	query := selectPasswordReset + ` WHERE code = $1`
	return r.scanPasswordReset(ctx, query, code)
}

// GetLatestByLoginDetails returns the most recent pending reset for a credential.
func (r *PasswordResetRepository) GetLatestByLoginDetails(ctx context.Context, loginDetailsID string) (*domain.PasswordReset, error) {
	query := selectPasswordReset + `
		WHERE login_details = $1
		ORDER BY created_at DESC
		LIMIT 1`
	return r.scanPasswordReset(ctx, query, loginDetailsID)
}

// Delete removes a reset by its ID.
func (r *PasswordResetRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.db.Exec(ctx, `DELETE FROM password_resets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete password reset: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("password reset", id)
	}

	return nil
}

// DeleteOlderThan removes resets created before the cutoff and returns them.
func (r *PasswordResetRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]domain.PasswordReset, error) {
	query := `
		DELETE FROM password_resets
		WHERE created_at < $1
		RETURNING id, login_details, code, created_at, modified_at`

	rows, err := r.db.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("delete outdated password resets: %w", err)
	}
	defer rows.Close()

	var resets []domain.PasswordReset
	for rows.Next() {
		var p domain.PasswordReset
		if err := rows.Scan(&p.ID, &p.LoginDetails, &p.Code, &p.CreatedAt, &p.ModifiedAt); err != nil {
			return nil, fmt.Errorf("scan password reset: %w", err)
		}
		resets = append(resets, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate password resets: %w", err)
	}

	return resets, nil
}

const selectPasswordReset = `
	SELECT id, login_details, code, created_at, modified_at
	FROM password_resets`

// scanPasswordReset is a helper that executes a query expected to return a single reset row.
func (r *PasswordResetRepository) scanPasswordReset(ctx context.Context, query string, args ...any) (*domain.PasswordReset, error) {
	var p domain.PasswordReset

	err := r.db.QueryRow(ctx, query, args...).
		Scan(&p.ID, &p.LoginDetails, &p.Code, &p.CreatedAt, &p.ModifiedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan password reset: %w", err)
	}

	return &p, nil
}
