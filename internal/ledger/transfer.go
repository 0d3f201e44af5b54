package ledger

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kudiwallet/kudi/internal/auth"
	"github.com/kudiwallet/kudi/internal/models"
	"github.com/kudiwallet/kudi/internal/repository"
)

// TransferResult is the committed outcome of a transfer request: the debit
// row on the source wallet and, when the debit succeeded, the matching
// credit row on the destination wallet.
type TransferResult struct {
	OutTransaction *models.Transaction
	InTransaction  *models.Transaction

	// Replayed is set when the idempotency key matched a previously
	// committed transfer and the stored outcome was returned unchanged.
	Replayed bool
}

// Transfer moves amount from the caller's wallet to the wallet addressed by
// destinationNumber as one atomic unit of work. The caller-supplied
// idempotency key makes retries safe: a key that was already processed
// returns the recorded outcome without touching any balance.
func (l *Ledger) Transfer(ctx context.Context, authCtx *auth.Context, destinationNumber string, amount decimal.Decimal, idempotencyKey string) (*TransferResult, error) {
	if !authCtx.Can(auth.PermissionTransfer) {
		return nil, auth.ErrForbidden
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	var result TransferResult

	err := l.db.InTx(ctx, func(store repository.Store) error {
		return l.transfer(ctx, store, authCtx.UserID, destinationNumber, amount, idempotencyKey, &result)
	})

	if errors.Is(err, repository.ErrDuplicateReference) {
		// Lost a race against a concurrent request carrying the same key.
		// The winner's outcome is committed by now; return it.
		return l.replay(ctx, idempotencyKey)
	}
	if err != nil {
		return nil, err
	}

	if result.Replayed {
		l.logger.Warn("duplicate transfer request replayed",
			"user_id", authCtx.UserID, "idempotency_key", idempotencyKey)
	}

	// A failed debit still commits its transfer_out record so that retries
	// return the same failure instead of re-attempting.
	if result.OutTransaction.Status == models.TransactionStatusFailed {
		return &result, ErrInsufficientBalance
	}

	return &result, nil
}

func (l *Ledger) transfer(ctx context.Context, store repository.Store, userID, destinationNumber string, amount decimal.Decimal, idempotencyKey string, result *TransferResult) error {
	existing, found, err := store.Transaction().GetByTypeAndReference(ctx, models.TransactionTypeTransferOut, idempotencyKey)
	if err != nil {
		return err
	}
	if found {
		return l.loadRecorded(ctx, store, existing, result)
	}

	source, found, err := store.Wallet().GetByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if !found {
		return ErrWalletNotFound
	}

	destination, found, err := store.Wallet().GetByNumber(ctx, destinationNumber)
	if err != nil {
		return err
	}
	if !found {
		return ErrWalletNotFound
	}

	if source.ID == destination.ID {
		return ErrSameWalletTransfer
	}

	// Lock both wallets in ascending id order so that two transfers
	// targeting each other's wallets cannot deadlock.
	firstID, secondID := source.ID, destination.ID
	if secondID < firstID {
		firstID, secondID = secondID, firstID
	}

	for _, id := range []string{firstID, secondID} {
		locked, found, err := store.Wallet().GetOneForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !found {
			return ErrWalletNotFound
		}

		if id == source.ID {
			source = locked
		} else {
			destination = locked
		}
	}

	correlationID := uuid.NewString()

	out, err := store.Transaction().Insert(ctx, &models.Transaction{
		WalletID:             source.ID,
		CounterpartyWalletID: sql.NullString{String: destination.ID, Valid: true},
		CorrelationID:        sql.NullString{String: correlationID, Valid: true},
		Type:                 models.TransactionTypeTransferOut,
		Amount:               amount,
		Status:               models.TransactionStatusPending,
		Reference:            idempotencyKey,
	})
	if err != nil {
		return err
	}

	if err := l.apply(ctx, store, source, amount.Neg(), out.ID); err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			out.Status = models.TransactionStatusFailed
			out.FailureReason = sql.NullString{String: models.FailureReasonInsufficientBalance, Valid: true}
			result.OutTransaction = out

			l.logger.Info("transfer failed",
				"source_wallet", source.ID, "amount", amount, "reason", models.FailureReasonInsufficientBalance)

			// Commit the failed record.
			return nil
		}
		return err
	}

	in, err := store.Transaction().Insert(ctx, &models.Transaction{
		WalletID:             destination.ID,
		CounterpartyWalletID: sql.NullString{String: source.ID, Valid: true},
		CorrelationID:        sql.NullString{String: correlationID, Valid: true},
		Type:                 models.TransactionTypeTransferIn,
		Amount:               amount,
		Status:               models.TransactionStatusPending,
		Reference:            idempotencyKey,
	})
	if err != nil {
		return err
	}

	if err := l.apply(ctx, store, destination, amount, in.ID); err != nil {
		return err
	}

	out.Status = models.TransactionStatusSuccess
	in.Status = models.TransactionStatusSuccess
	result.OutTransaction = out
	result.InTransaction = in

	l.logger.Info("transfer completed",
		"source_wallet", source.ID, "destination_wallet", destination.ID,
		"amount", amount, "correlation_id", correlationID)

	return nil
}

// loadRecorded fills result from a previously committed transfer_out row
// and its correlated credit, without re-applying anything.
func (l *Ledger) loadRecorded(ctx context.Context, store repository.Store, out *models.Transaction, result *TransferResult) error {
	result.Replayed = true
	result.OutTransaction = out

	if out.CorrelationID.Valid && out.Status == models.TransactionStatusSuccess {
		pair, err := store.Transaction().GetByCorrelationID(ctx, out.CorrelationID.String)
		if err != nil {
			return err
		}
		for i := range pair {
			if pair[i].Type == models.TransactionTypeTransferIn {
				result.InTransaction = &pair[i]
			}
		}
	}

	return nil
}

func (l *Ledger) replay(ctx context.Context, idempotencyKey string) (*TransferResult, error) {
	var result TransferResult

	out, found, err := l.db.Transaction().GetByTypeAndReference(ctx, models.TransactionTypeTransferOut, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrTransactionNotFound
	}

	if err := l.loadRecorded(ctx, l.db, out, &result); err != nil {
		return nil, err
	}

	if result.OutTransaction.Status == models.TransactionStatusFailed {
		return &result, ErrInsufficientBalance
	}

	return &result, nil
}
