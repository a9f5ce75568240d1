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

// ConsentRepository implements repository.ConsentRepository using PostgreSQL.
type ConsentRepository struct {
	db database.DBTX
}

// NewConsentRepository creates a new PostgreSQL-backed consent repository.
func NewConsentRepository(db database.DBTX) *ConsentRepository {
	return &ConsentRepository{db: db}
}

// Grant upserts a consent row for (client, account) and records the consented
// scopes. The whole operation runs in a single transaction so a partially
// recorded consent can never be observed.
func (r *ConsentRepository) Grant(ctx context.Context, clientID, accountID string, scopeIDs []string) (*domain.Consent, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin consent tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	upsert := `
		INSERT INTO user_client_consents (client_id, account_id)
		VALUES ($1, $2)
		ON CONFLICT (client_id, account_id)
		DO UPDATE SET consented_on = NOW()
		RETURNING id, client_id, account_id, consented_on`

	var c domain.Consent
	err = tx.QueryRow(ctx, upsert, clientID, accountID).
		Scan(&c.ID, &c.ClientID, &c.AccountID, &c.ConsentedOn)
	if err != nil {
		return nil, fmt.Errorf("upsert consent: %w", err)
	}

	insertScope := `
		INSERT INTO user_client_consented_scopes (user_client_consent_id, client_scope_id)
		VALUES ($1, $2)
		ON CONFLICT (user_client_consent_id, client_scope_id) DO NOTHING`

	for _, scopeID := range scopeIDs {
		if _, err := tx.Exec(ctx, insertScope, c.ID, scopeID); err != nil {
			return nil, fmt.Errorf("insert consented scope: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit consent tx: %w", err)
	}

	return &c, nil
}

// Get retrieves the consent for (client, account).
func (r *ConsentRepository) Get(ctx context.Context, clientID, accountID string) (*domain.Consent, error) {
	query := `
		SELECT id, client_id, account_id, consented_on
		FROM user_client_consents
		WHERE client_id = $1 AND account_id = $2`

	var c domain.Consent
	err := r.db.QueryRow(ctx, query, clientID, accountID).
		Scan(&c.ID, &c.ClientID, &c.AccountID, &c.ConsentedOn)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan consent: %w", err)
	}

	return &c, nil
}

// ListScopes returns the scopes the account has consented to for the client.
func (r *ConsentRepository) ListScopes(ctx context.Context, consentID string) ([]domain.Scope, error) {
	query := `
		SELECT cs.scope
		FROM user_client_consented_scopes ucs
		JOIN client_scopes cs ON cs.id = ucs.client_scope_id
		WHERE ucs.user_client_consent_id = $1
		ORDER BY cs.scope`

	rows, err := r.db.Query(ctx, query, consentID)
	if err != nil {
		return nil, fmt.Errorf("list consented scopes: %w", err)
	}
	defer rows.Close()

	var scopes []domain.Scope
	for rows.Next() {
		var s domain.Scope
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan consented scope: %w", err)
		}
		scopes = append(scopes, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consented scopes: %w", err)
	}

	return scopes, nil
}

// Revoke removes the consent for (client, account).
func (r *ConsentRepository) Revoke(ctx context.Context, clientID, accountID string) error {
	query := `DELETE FROM user_client_consents WHERE client_id = $1 AND account_id = $2`

	ct, err := r.db.Exec(ctx, query, clientID, accountID)
	if err != nil {
		return fmt.Errorf("delete consent: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("consent", clientID)
	}

	return nil
}
