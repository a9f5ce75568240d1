package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ViddeM/accounts/internal/domain"
	"github.com/ViddeM/accounts/internal/repository"
	"github.com/ViddeM/accounts/internal/token"
	apperrors "github.com/ViddeM/accounts/pkg/errors"
)

const (
	clientIDLength     = 32
	clientSecretLength = 128
)

// ClientService implements the admin-facing management of OAuth2 client
// registrations.
type ClientService struct {
	clientRepo repository.OauthClientRepository
	logger     *slog.Logger

	now func() time.Time
}

// NewClientService creates a new client service.
func NewClientService(clientRepo repository.OauthClientRepository, logger *slog.Logger) *ClientService {
	return &ClientService{
		clientRepo: clientRepo,
		logger:     logger,
		now:        time.Now,
	}
}

// CreateClientInput holds the parameters for registering an OAuth2 client.
type CreateClientInput struct {
	ClientName  string
	RedirectURI string
	Scopes      []domain.Scope
}

// CreateClient registers a client with a freshly generated client_id and
// client_secret. The secret is only returned here; it is never exposed again.
func (s *ClientService) CreateClient(ctx context.Context, input CreateClientInput) (*domain.OauthClient, string, error) {
	if input.ClientName == "" {
		return nil, "", apperrors.InvalidInput("client name is required")
	}
	if input.RedirectURI == "" {
		return nil, "", apperrors.InvalidInput("redirect uri is required")
	}

	clientID, err := token.New(clientIDLength)
	if err != nil {
		return nil, "", fmt.Errorf("generate client_id: %w", err)
	}
	clientSecret, err := token.New(clientSecretLength)
	if err != nil {
		return nil, "", fmt.Errorf("generate client_secret: %w", err)
	}

	client := &domain.OauthClient{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		ClientName:   input.ClientName,
		RedirectURI:  input.RedirectURI,
	}
	if err := s.clientRepo.Create(ctx, client); err != nil {
		return nil, "", fmt.Errorf("create oauth client: %w", err)
	}

	for _, scope := range input.Scopes {
		if _, err := s.clientRepo.AddScope(ctx, client.ID, scope); err != nil {
			return nil, "", fmt.Errorf("register scope %q: %w", scope, err)
		}
	}

	s.logger.InfoContext(ctx, "oauth client created",
		slog.String("client_id", clientID),
		slog.String("client_name", input.ClientName),
	)
	return client, clientSecret, nil
}

// ListClients returns all registered clients.
func (s *ClientService) ListClients(ctx context.Context) ([]domain.OauthClient, error) {
	clients, err := s.clientRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list oauth clients: %w", err)
	}
	return clients, nil
}

// DeleteClient removes a client registration by its internal id.
func (s *ClientService) DeleteClient(ctx context.Context, id string) error {
	if err := s.clientRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete oauth client: %w", err)
	}

	s.logger.InfoContext(ctx, "oauth client deleted", slog.String("id", id))
	return nil
}
