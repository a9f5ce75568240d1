package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ViddeM/accounts/pkg/httpclient"
)

// HTTPSenderConfig configures the HTTP email provider.
type HTTPSenderConfig struct {
	URL    string `env:"MAIL_PROVIDER_URL"`
	APIKey string `env:"MAIL_PROVIDER_API_KEY"`
	From   string `env:"MAIL_FROM" envDefault:"no-reply@accounts.local"`
}

// HTTPSender delivers email through a JSON HTTP provider API, guarded by a
// circuit breaker so a struggling provider cannot stall account flows.
type HTTPSender struct {
	cfg    HTTPSenderConfig
	client *httpclient.CircuitBreakerClient
	logger *slog.Logger
}

// NewHTTPSender creates a sender that posts messages to the provider API.
func NewHTTPSender(cfg HTTPSenderConfig, logger *slog.Logger) *HTTPSender {
	client := httpclient.New(httpclient.DefaultConfig())
	cb := httpclient.NewCircuitBreakerClient(client, httpclient.DefaultCircuitBreakerConfig("mail-provider"), logger)
	return &HTTPSender{cfg: cfg, client: cb, logger: logger}
}

// Name returns the name of this sender.
func (s *HTTPSender) Name() string {
	return "http"
}

type providerMessage struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// Send posts the message to the provider and treats any non-2xx reply as a
// delivery failure.
func (s *HTTPSender) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(providerMessage{
		From:    s.cfg.From,
		To:      msg.To,
		Subject: msg.Subject,
		Text:    msg.Body,
	})
	if err != nil {
		return fmt.Errorf("marshal mail payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return httpclient.ParseResponseError(resp, "mail-provider")
	}

	s.logger.InfoContext(ctx, "email sent",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}
