package mailer

import (
	"context"
	"log/slog"
)

// Message is an outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers email messages through a specific provider.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// LogSender logs messages instead of delivering them. Used in development
// and as a fallback when no provider is configured.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a sender that writes messages to the log.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Name returns the name of this sender.
func (s *LogSender) Name() string {
	return "log"
}

// Send logs the message details and always succeeds.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "log sender: email sent",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.Int("body_bytes", len(msg.Body)),
	)
	return nil
}
