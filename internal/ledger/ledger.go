// Package ledger holds the transactional core: every wallet balance
// mutation in the system goes through this package, inside a unit of work
// obtained from the repository layer.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/kudiwallet/kudi/internal/models"
	"github.com/kudiwallet/kudi/internal/paystack"
	"github.com/kudiwallet/kudi/internal/repository"
)

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSameWalletTransfer  = errors.New("cannot transfer to your own wallet")
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrUnknownReference    = errors.New("unknown transaction reference")
	ErrSignatureMismatch   = errors.New("invalid webhook signature")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
)

// Provider is the slice of the payment processor the ledger consumes:
// checkout initiation, authoritative status lookup, and webhook signature
// verification.
type Provider interface {
	InitializeTransaction(ctx context.Context, email string, amount decimal.Decimal, reference string) (*paystack.InitializedTransaction, error)
	VerifyTransaction(ctx context.Context, reference string) (*paystack.TransactionStatus, error)
	VerifySignature(signature string, body []byte) bool
}

type Ledger struct {
	db       repository.Database
	provider Provider
	logger   *slog.Logger
}

func New(db repository.Database, provider Provider, logger *slog.Logger) *Ledger {
	return &Ledger{
		db:       db,
		provider: provider,
		logger:   logger,
	}
}

// apply adjusts the wallet balance by delta and resolves the transaction's
// status, all within the caller's unit of work. The wallet row must already
// be locked by the caller, so the balance read below cannot race another
// debit. A debit that would take the balance negative marks the transaction
// failed and leaves the balance untouched.
func (l *Ledger) apply(ctx context.Context, store repository.Store, wallet *models.Wallet, delta decimal.Decimal, transactionID string) error {
	newBalance := wallet.Balance.Add(delta)

	if newBalance.IsNegative() {
		reason := sql.NullString{String: models.FailureReasonInsufficientBalance, Valid: true}

		err := store.Transaction().UpdateStatus(ctx, transactionID, models.TransactionStatusFailed, reason)
		if err != nil {
			return err
		}

		return ErrInsufficientBalance
	}

	if err := store.Wallet().UpdateBalance(ctx, wallet.ID, newBalance); err != nil {
		return err
	}
	wallet.Balance = newBalance

	return store.Transaction().UpdateStatus(ctx, transactionID, models.TransactionStatusSuccess, sql.NullString{})
}

// Balance returns the current wallet balance for the user.
func (l *Ledger) Balance(ctx context.Context, userID string) (*models.Wallet, error) {
	wallet, found, err := l.db.Wallet().GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrWalletNotFound
	}

	return wallet, nil
}

// Transactions returns a recency-ordered page of the wallet's ledger
// entries along with the total row count.
func (l *Ledger) Transactions(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, int, error) {
	wallet, found, err := l.db.Wallet().GetByUserID(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	if !found {
		return nil, 0, ErrWalletNotFound
	}

	return l.db.Transaction().ListByWallet(ctx, wallet.ID, limit, offset)
}
