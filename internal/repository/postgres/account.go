package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/ViddeM/accounts/pkg/errors"

	"github.com/ViddeM/accounts/internal/domain"
	"github.com/ViddeM/accounts/pkg/database"
)

// AccountRepository implements repository.AccountRepository using PostgreSQL.
type AccountRepository struct {
	db database.DBTX
}

// NewAccountRepository creates a new PostgreSQL-backed account repository.
func NewAccountRepository(db database.DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts a new account into the database. The generated ID and
// timestamps are written back to the given account.
func (r *AccountRepository) Create(ctx context.Context, a *domain.Account) error {
	query := `
		INSERT INTO accounts (first_name, last_name, authority)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, modified_at`

	err := r.db.QueryRow(ctx, query, a.FirstName, a.LastName, a.Authority).
		Scan(&a.ID, &a.CreatedAt, &a.ModifiedAt)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by its ID.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (a *domain.Account, err error) {
	query := `
		SELECT id, first_name, last_name, authority, created_at, modified_at
		FROM accounts
		WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "Account.GetByID", query)
	defer func() { end(err) }()
	return r.scanAccount(ctx, query, id)
}

// List returns all accounts ordered by creation time.
func (r *AccountRepository) List(ctx context.Context) ([]domain.Account, error) {
	query := `
		SELECT id, first_name, last_name, authority, created_at, modified_at
		FROM accounts
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.ID, &a.FirstName, &a.LastName, &a.Authority, &a.CreatedAt, &a.ModifiedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}

	return accounts, nil
}

// DeleteMany removes the accounts with the given IDs.
func (r *AccountRepository) DeleteMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query := `DELETE FROM accounts WHERE id = ANY($1)`

	if _, err := r.db.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("delete accounts: %w", err)
	}

	return nil
}

// scanAccount is a helper that executes a query expected to return a single account row.
func (r *AccountRepository) scanAccount(ctx context.Context, query string, args ...any) (*domain.Account, error) {
	var a domain.Account

	err := r.db.QueryRow(ctx, query, args...).Scan(
		&a.ID,
		&a.FirstName,
		&a.LastName,
		&a.Authority,
		&a.CreatedAt,
		&a.ModifiedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	return &a, nil
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
