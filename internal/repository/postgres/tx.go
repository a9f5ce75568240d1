package postgres

import (
	"context"

	"github.com/ViddeM/accounts/internal/repository"
	"github.com/ViddeM/accounts/pkg/database"
)

// TxRunner implements repository.TxRunner over a pgx pool. Every repository
// in the Tx handed to the callback is bound to the same transaction.
type TxRunner struct {
	db database.DBTX
}

// NewTxRunner creates a transaction runner over the given pool.
func NewTxRunner(db database.DBTX) *TxRunner {
	return &TxRunner{db: db}
}

func (r *TxRunner) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	return database.WithTx(ctx, r.db, func(q database.DBTX) error {
		return fn(repository.Tx{
			Accounts:        NewAccountRepository(q),
			LoginDetails:    NewLoginDetailsRepository(q),
			ActivationCodes: NewActivationCodeRepository(q),
			PasswordResets:  NewPasswordResetRepository(q),
		})
	})
}
