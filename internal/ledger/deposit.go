package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/kudiwallet/kudi/internal/auth"
	"github.com/kudiwallet/kudi/internal/helper"
	"github.com/kudiwallet/kudi/internal/models"
	"github.com/kudiwallet/kudi/internal/paystack"
	"github.com/kudiwallet/kudi/internal/repository"
)

const depositReferencePrefix = "TXN"

// InitiatedDeposit is returned to the caller for the external checkout
// step; the wallet is only credited later, by reconciliation.
type InitiatedDeposit struct {
	Reference        string
	AuthorizationURL string
	Transaction      *models.Transaction
}

// ReconcileResult is the outcome of matching a provider notification
// against a locally pending deposit.
type ReconcileResult struct {
	Transaction *models.Transaction

	// Duplicate is set when the deposit was already in a terminal state and
	// the stored outcome was returned without any state change.
	Duplicate bool

	// Ignored is set for provider events that carry no charge outcome.
	Ignored bool
}

// InitiateDeposit creates a pending deposit transaction bound to a fresh
// provider reference and opens a hosted checkout session for it.
func (l *Ledger) InitiateDeposit(ctx context.Context, authCtx *auth.Context, amount decimal.Decimal) (*InitiatedDeposit, error) {
	if !authCtx.Can(auth.PermissionDeposit) {
		return nil, auth.ErrForbidden
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	wallet, found, err := l.db.Wallet().GetByUserID(ctx, authCtx.UserID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrWalletNotFound
	}

	reference, err := helper.NewReference(depositReferencePrefix)
	if err != nil {
		return nil, err
	}

	initialized, err := l.provider.InitializeTransaction(ctx, authCtx.Email, amount, reference)
	if err != nil {
		if errors.Is(err, paystack.ErrUnavailable) {
			return nil, ErrProviderUnavailable
		}
		return nil, err
	}

	transaction, err := l.db.Transaction().Insert(ctx, &models.Transaction{
		WalletID:   wallet.ID,
		Type:       models.TransactionTypeDeposit,
		Amount:     amount,
		Status:     models.TransactionStatusPending,
		Reference:  reference,
		PaymentURL: sql.NullString{String: initialized.AuthorizationURL, Valid: true},
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("deposit initiated",
		"wallet_id", wallet.ID, "reference", reference, "amount", amount)

	return &InitiatedDeposit{
		Reference:        reference,
		AuthorizationURL: initialized.AuthorizationURL,
		Transaction:      transaction,
	}, nil
}

type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string         `json:"reference"`
		Status    string         `json:"status"`
		Amount    int64          `json:"amount"`
		Metadata  map[string]any `json:"metadata"`
	} `json:"data"`
}

// ReconcileWebhook verifies and applies a provider webhook delivery. The
// signature check runs before anything touches the database, so a forged
// payload can not even probe for reference existence.
func (l *Ledger) ReconcileWebhook(ctx context.Context, body []byte, signature string) (*ReconcileResult, error) {
	if !l.provider.VerifySignature(signature, body) {
		l.logger.Warn("webhook rejected: signature mismatch")
		return nil, ErrSignatureMismatch
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, ErrSignatureMismatch
	}

	switch event.Event {
	case "charge.success", "charge.failed":
	default:
		l.logger.Info("webhook event ignored", "event", event.Event)
		return &ReconcileResult{Ignored: true}, nil
	}

	succeeded := event.Event == "charge.success" && event.Data.Status == "success"

	return l.reconcile(ctx, event.Data.Reference, succeeded, event.Data.Metadata)
}

// VerifyDeposit is the pull-based alternative to the webhook. The provider
// is only consulted while the local record is still pending; terminal
// outcomes are served from the ledger without a remote call.
func (l *Ledger) VerifyDeposit(ctx context.Context, reference string) (*models.Transaction, error) {
	transaction, found, err := l.db.Transaction().GetByTypeAndReference(ctx, models.TransactionTypeDeposit, reference)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrUnknownReference
	}

	if transaction.Status != models.TransactionStatusPending {
		return transaction, nil
	}

	status, err := l.provider.VerifyTransaction(ctx, reference)
	if err != nil {
		if errors.Is(err, paystack.ErrUnavailable) {
			return nil, ErrProviderUnavailable
		}
		return nil, err
	}

	switch status.Status {
	case "success":
		result, err := l.reconcile(ctx, reference, true, status.Metadata)
		if err != nil {
			return nil, err
		}
		return result.Transaction, nil
	case "failed", "abandoned":
		result, err := l.reconcile(ctx, reference, false, status.Metadata)
		if err != nil {
			return nil, err
		}
		return result.Transaction, nil
	default:
		// Still pending at the provider.
		return transaction, nil
	}
}

// reconcile applies a charge outcome to the pending deposit identified by
// reference: on success the wallet credit and the status flip commit
// together; a deposit already in a terminal state is returned unchanged.
func (l *Ledger) reconcile(ctx context.Context, reference string, succeeded bool, metadata models.Metadata) (*ReconcileResult, error) {
	var result ReconcileResult

	err := l.db.InTx(ctx, func(store repository.Store) error {
		transaction, found, err := store.Transaction().GetByTypeAndReference(ctx, models.TransactionTypeDeposit, reference)
		if err != nil {
			return err
		}
		if !found {
			// An unsolicited notification never creates a transaction.
			return ErrUnknownReference
		}

		if transaction.Status != models.TransactionStatusPending {
			result.Transaction = transaction
			result.Duplicate = true
			return nil
		}

		status := models.TransactionStatusSuccess
		reason := sql.NullString{}
		if !succeeded {
			status = models.TransactionStatusFailed
			reason = sql.NullString{String: models.FailureReasonProviderDeclined, Valid: true}
		}

		// The conditional flip is the exactly-once gate. A concurrent
		// delivery that also read the row as pending loses this update and
		// takes the duplicate path, so the credit below runs at most once
		// per deposit.
		claimed, err := store.Transaction().UpdateStatusIfPending(ctx, transaction.ID, status, reason)
		if err != nil {
			return err
		}
		if !claimed {
			settled, found, err := store.Transaction().GetByTypeAndReference(ctx, models.TransactionTypeDeposit, reference)
			if err != nil {
				return err
			}
			if !found {
				return ErrUnknownReference
			}
			result.Transaction = settled
			result.Duplicate = true
			return nil
		}
		transaction.Status = status
		transaction.FailureReason = reason

		if len(metadata) > 0 {
			if err := store.Transaction().SetProviderMetadata(ctx, transaction.ID, metadata); err != nil {
				return err
			}
			transaction.ProviderMetadata = metadata
		}

		if !succeeded {
			result.Transaction = transaction

			l.logger.Info("deposit failed", "reference", reference)
			return nil
		}

		wallet, found, err := store.Wallet().GetOneForUpdate(ctx, transaction.WalletID)
		if err != nil {
			return err
		}
		if !found {
			return ErrWalletNotFound
		}

		if err := l.apply(ctx, store, wallet, transaction.Amount, transaction.ID); err != nil {
			return err
		}
		result.Transaction = transaction

		l.logger.Info("deposit credited",
			"wallet_id", wallet.ID, "reference", reference, "amount", transaction.Amount)

		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Duplicate {
		l.logger.Info("duplicate deposit notification ignored", "reference", reference)
	}

	return &result, nil
}
