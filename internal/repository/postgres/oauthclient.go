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

// OauthClientRepository implements repository.OauthClientRepository using PostgreSQL.
type OauthClientRepository struct {
	db database.DBTX
}

// NewOauthClientRepository creates a new PostgreSQL-backed OAuth2 client repository.
func NewOauthClientRepository(db database.DBTX) *OauthClientRepository {
	return &OauthClientRepository{db: db}
}

// Create inserts a new client registration. The generated ID and timestamps
// are written back to the given client.
func (r *OauthClientRepository) Create(ctx context.Context, c *domain.OauthClient) error {
	query := `
		INSERT INTO oauth_clients (client_id, client_secret, client_name, redirect_uri)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, modified_at`

	err := r.db.QueryRow(ctx, query, c.ClientID, c.ClientSecret, c.ClientName, c.RedirectURI).
		Scan(&c.ID, &c.CreatedAt, &c.ModifiedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("oauth client", "client_id", c.ClientID)
		}
		return fmt.Errorf("insert oauth client: %w", err)
	}

	return nil
}

// GetByClientID retrieves a client by its public client_id.
func (r *OauthClientRepository) GetByClientID(ctx context.Context, clientID string) (c *domain.OauthClient, err error) {
	query := selectOauthClient + ` WHERE client_id = $1`
	ctx, end := database.TraceQuery(ctx, "OauthClient.GetByClientID", query)
	defer func() { end(err) }()
	return r.scanClient(ctx, query, clientID)
}

// GetByID retrieves a client by its internal ID.
func (r *OauthClientRepository) GetByID(ctx context.Context, id string) (*domain.OauthClient, error) {
	query := selectOauthClient + ` WHERE id = $1`
	return r.scanClient(ctx, query, id)
}

// List returns all registered clients.
func (r *OauthClientRepository) List(ctx context.Context) ([]domain.OauthClient, error) {
	query := selectOauthClient + ` ORDER BY created_at`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list oauth clients: %w", err)
	}
	defer rows.Close()

	var clients []domain.OauthClient
	for rows.Next() {
		var c domain.OauthClient
		if err := rows.Scan(&c.ID, &c.ClientID, &c.ClientSecret, &c.ClientName, &c.RedirectURI, &c.CreatedAt, &c.ModifiedAt); err != nil {
			return nil, fmt.Errorf("scan oauth client: %w", err)
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate oauth clients: %w", err)
	}

	return clients, nil
}

// Delete removes a client registration.
func (r *OauthClientRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.db.Exec(ctx, `DELETE FROM oauth_clients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete oauth client: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("oauth client", id)
	}

	return nil
}

// AddScope registers a scope for a client.
func (r *OauthClientRepository) AddScope(ctx context.Context, clientID string, scope domain.Scope) (*domain.ClientScope, error) {
	query := `
		INSERT INTO client_scopes (client_id, scope)
		VALUES ($1, $2)
		RETURNING id, client_id, scope, created_at`

	var cs domain.ClientScope
	err := r.db.QueryRow(ctx, query, clientID, scope).
		Scan(&cs.ID, &cs.ClientID, &cs.Scope, &cs.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.AlreadyExists("client scope", "scope", string(scope))
		}
		return nil, fmt.Errorf("insert client scope: %w", err)
	}

	return &cs, nil
}

// ListScopes returns the scopes registered for a client.
func (r *OauthClientRepository) ListScopes(ctx context.Context, clientID string) ([]domain.ClientScope, error) {
	query := `
		SELECT id, client_id, scope, created_at
		FROM client_scopes
		WHERE client_id = $1
		ORDER BY scope`

	rows, err := r.db.Query(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("list client scopes: %w", err)
	}
	defer rows.Close()

	var scopes []domain.ClientScope
	for rows.Next() {
		var cs domain.ClientScope
		if err := rows.Scan(&cs.ID, &cs.ClientID, &cs.Scope, &cs.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan client scope: %w", err)
		}
		scopes = append(scopes, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate client scopes: %w", err)
	}

	return scopes, nil
}

const selectOauthClient = `
	SELECT id, client_id, client_secret, client_name, redirect_uri, created_at, modified_at
	FROM oauth_clients`

// scanClient is a helper that executes a query expected to return a single client row.
func (r *OauthClientRepository) scanClient(ctx context.Context, query string, args ...any) (*domain.OauthClient, error) {
	var c domain.OauthClient

	err := r.db.QueryRow(ctx, query, args...).Scan(
		&c.ID,
		&c.ClientID,
		&c.ClientSecret,
		&c.ClientName,
		&c.RedirectURI,
		&c.CreatedAt,
		&c.ModifiedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan oauth client: %w", err)
	}

	return &c, nil
}
