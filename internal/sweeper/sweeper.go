package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ViddeM/accounts/internal/domain"
	"github.com/ViddeM/accounts/internal/event"
	"github.com/ViddeM/accounts/internal/repository"
	"github.com/ViddeM/accounts/internal/service"
)

// Interval is how often the sweeper runs its retention tasks.
const Interval = 30 * time.Minute

var (
	sweptAccounts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "accounts_sweeper_deleted_accounts_total",
		Help: "Number of unactivated accounts deleted by the retention sweeper.",
	})
	sweptResets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "accounts_sweeper_deleted_password_resets_total",
		Help: "Number of expired password resets deleted by the retention sweeper.",
	})
	sweepErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "accounts_sweeper_errors_total",
		Help: "Number of sweeper task failures.",
	}, []string{"task"})
)

// Sweeper periodically prunes unactivated accounts and expired password
// resets. Each task failure is logged and counted; one failing task never
// stops the loop or the other task.
type Sweeper struct {
	tx       repository.TxRunner
	producer *event.Producer
	logger   *slog.Logger

	interval time.Duration
	now      func() time.Time
}

// New creates a retention sweeper.
func New(tx repository.TxRunner, producer *event.Producer, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		tx:       tx,
		producer: producer,
		logger:   logger,
		interval: Interval,
		now:      time.Now,
	}
}

// Run executes the retention tasks on the sweeper interval until the context
// is cancelled. One pass runs immediately on startup.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.InfoContext(ctx, "retention sweeper started",
		slog.Duration("interval", s.interval),
	)

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retention sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if err := s.sweepUnactivatedAccounts(ctx); err != nil {
		sweepErrors.WithLabelValues("unactivated_accounts").Inc()
		s.logger.ErrorContext(ctx, "failed to sweep unactivated accounts",
			slog.String("error", err.Error()),
		)
	}

	if err := s.sweepExpiredPasswordResets(ctx); err != nil {
		sweepErrors.WithLabelValues("password_resets").Inc()
		s.logger.ErrorContext(ctx, "failed to sweep expired password resets",
			slog.String("error", err.Error()),
		)
	}
}

// sweepUnactivatedAccounts deletes activation codes past the activation
// window together with the accounts that never redeemed them. Codes and
// accounts go in one transaction: a partial failure rolls the codes back so
// the next pass picks the same accounts up again.
func (s *Sweeper) sweepUnactivatedAccounts(ctx context.Context) error {
	cutoff := s.now().UTC().Add(-service.ActivationWindow)

	var accountIDs []string
	err := s.tx.InTx(ctx, func(tx repository.Tx) error {
		outdated, err := tx.ActivationCodes.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("delete outdated activation codes: %w", err)
		}
		if len(outdated) == 0 {
			return nil
		}

		accountIDs = make([]string, len(outdated))
		for i, code := range outdated {
			accountIDs[i] = code.LoginDetails
		}

		if err := tx.LoginDetails.DeleteMany(ctx, accountIDs); err != nil {
			return fmt.Errorf("delete login details: %w", err)
		}
		if err := tx.Accounts.DeleteMany(ctx, accountIDs); err != nil {
			return fmt.Errorf("delete accounts: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(accountIDs) == 0 {
		return nil
	}

	sweptAccounts.Add(float64(len(accountIDs)))
	for _, id := range accountIDs {
		if err := s.producer.PublishAccountDeleted(ctx, id, "activation window elapsed"); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish account.deleted event",
				slog.String("account_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "swept unactivated accounts",
		slog.Int("deleted", len(accountIDs)),
	)
	return nil
}

// sweepExpiredPasswordResets deletes reset codes past the reset window.
func (s *Sweeper) sweepExpiredPasswordResets(ctx context.Context) error {
	cutoff := s.now().UTC().Add(-service.ResetWindow)

	var expired []domain.PasswordReset
	err := s.tx.InTx(ctx, func(tx repository.Tx) error {
		var err error
		expired, err = tx.PasswordResets.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("delete expired password resets: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(expired) == 0 {
		return nil
	}

	sweptResets.Add(float64(len(expired)))
	s.logger.InfoContext(ctx, "swept expired password resets",
		slog.Int("deleted", len(expired)),
	)
	return nil
}
