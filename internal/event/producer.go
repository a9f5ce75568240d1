package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ViddeM/accounts/internal/domain"
	pkgkafka "github.com/ViddeM/accounts/pkg/kafka"
)

// Kafka topic constants for account domain events.
const (
	TopicAccountCreated   = "accounts.account.created"
	TopicAccountActivated = "accounts.account.activated"
	TopicAccountDeleted   = "accounts.account.deleted"
	TopicPasswordReset    = "accounts.password.reset"
)

// Aggregate type constant.
const AggregateTypeAccount = "account"

// Source identifier for events originating from this service.
const SourceAccountsService = "accounts-service"

// AccountCreatedData is the payload for an account.created event.
type AccountCreatedData struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// AccountActivatedData is the payload for an account.activated event.
type AccountActivatedData struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
}

// AccountDeletedData is the payload for an account.deleted event. Emitted by
// the retention sweeper when unactivated accounts are pruned.
type AccountDeletedData struct {
	AccountID string `json:"account_id"`
	Reason    string `json:"reason"`
}

// PasswordResetData is the payload for a password.reset event.
type PasswordResetData struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
}

// Producer publishes account domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the accounts service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishAccountCreated publishes an account.created event.
func (p *Producer) PublishAccountCreated(ctx context.Context, account *domain.Account, email string) error {
	data := AccountCreatedData{
		AccountID: account.ID,
		Email:     email,
		FirstName: account.FirstName,
		LastName:  account.LastName,
	}

	event, err := pkgkafka.NewEvent(TopicAccountCreated, account.ID, AggregateTypeAccount, SourceAccountsService, data)
	if err != nil {
		return fmt.Errorf("create account.created event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicAccountCreated, event); err != nil {
		return fmt.Errorf("publish account.created event: %w", err)
	}

	p.logger.DebugContext(ctx, "published account.created event",
		slog.String("account_id", account.ID),
	)
	return nil
}

// PublishAccountActivated publishes an account.activated event.
func (p *Producer) PublishAccountActivated(ctx context.Context, accountID, email string) error {
	data := AccountActivatedData{AccountID: accountID, Email: email}

	event, err := pkgkafka.NewEvent(TopicAccountActivated, accountID, AggregateTypeAccount, SourceAccountsService, data)
	if err != nil {
		return fmt.Errorf("create account.activated event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicAccountActivated, event); err != nil {
		return fmt.Errorf("publish account.activated event: %w", err)
	}

	p.logger.DebugContext(ctx, "published account.activated event",
		slog.String("account_id", accountID),
	)
	return nil
}

// PublishAccountDeleted publishes an account.deleted event.
func (p *Producer) PublishAccountDeleted(ctx context.Context, accountID, reason string) error {
	data := AccountDeletedData{AccountID: accountID, Reason: reason}

	event, err := pkgkafka.NewEvent(TopicAccountDeleted, accountID, AggregateTypeAccount, SourceAccountsService, data)
	if err != nil {
		return fmt.Errorf("create account.deleted event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicAccountDeleted, event); err != nil {
		return fmt.Errorf("publish account.deleted event: %w", err)
	}

	p.logger.DebugContext(ctx, "published account.deleted event",
		slog.String("account_id", accountID),
		slog.String("reason", reason),
	)
	return nil
}

// PublishPasswordReset publishes a password.reset event.
func (p *Producer) PublishPasswordReset(ctx context.Context, accountID, email string) error {
	data := PasswordResetData{AccountID: accountID, Email: email}

	event, err := pkgkafka.NewEvent(TopicPasswordReset, accountID, AggregateTypeAccount, SourceAccountsService, data)
	if err != nil {
		return fmt.Errorf("create password.reset event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicPasswordReset, event); err != nil {
		return fmt.Errorf("publish password.reset event: %w", err)
	}

	p.logger.DebugContext(ctx, "published password.reset event",
		slog.String("account_id", accountID),
	)
	return nil
}
