package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/ViddeM/accounts/pkg/errors"

	"github.com/ViddeM/accounts/internal/domain"
	"github.com/ViddeM/accounts/pkg/database"
)

// WhitelistRepository implements repository.WhitelistRepository using PostgreSQL.
type WhitelistRepository struct {
	db database.DBTX
}

// NewWhitelistRepository creates a new PostgreSQL-backed whitelist repository.
func NewWhitelistRepository(db database.DBTX) *WhitelistRepository {
	return &WhitelistRepository{db: db}
}

// Add inserts an email into the whitelist.
func (r *WhitelistRepository) Add(ctx context.Context, email string) (*domain.WhitelistEntry, error) {
	query := `
		INSERT INTO whitelist (email)
		VALUES ($1)
		RETURNING email, created_at, modified_at`

	var e domain.WhitelistEntry
	err := r.db.QueryRow(ctx, query, email).Scan(&e.Email, &e.CreatedAt, &e.ModifiedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.AlreadyExists("whitelist entry", "email", email)
		}
		return nil, fmt.Errorf("insert whitelist entry: %w", err)
	}

	return &e, nil
}

// Get retrieves a whitelist entry by email.
func (r *WhitelistRepository) Get(ctx context.Context, email string) (*domain.WhitelistEntry, error) {
	query := `
		SELECT email, created_at, modified_at
		FROM whitelist
		WHERE email = $1`

	var e domain.WhitelistEntry
	err := r.db.QueryRow(ctx, query, email).Scan(&e.Email, &e.CreatedAt, &e.ModifiedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan whitelist entry: %w", err)
	}

	return &e, nil
}

// List returns all whitelist entries.
func (r *WhitelistRepository) List(ctx context.Context) ([]domain.WhitelistEntry, error) {
	query := `
		SELECT email, created_at, modified_at
		FROM whitelist
		ORDER BY email`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list whitelist: %w", err)
	}
	defer rows.Close()

	var entries []domain.WhitelistEntry
	for rows.Next() {
		var e domain.WhitelistEntry
		if err := rows.Scan(&e.Email, &e.CreatedAt, &e.ModifiedAt); err != nil {
			return nil, fmt.Errorf("scan whitelist entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate whitelist: %w", err)
	}

	return entries, nil
}

// Remove deletes an email from the whitelist.
func (r *WhitelistRepository) Remove(ctx context.Context, email string) error {
	ct, err := r.db.Exec(ctx, `DELETE FROM whitelist WHERE email = $1`, email)
	if err != nil {
		return fmt.Errorf("delete whitelist entry: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("whitelist entry", email)
	}

	return nil
}
