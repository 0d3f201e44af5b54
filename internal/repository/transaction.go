package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/kudiwallet/kudi/internal/models"
)

type TransactionRepository interface {
	Insert(ctx context.Context, transaction *models.Transaction) (*models.Transaction, error)
	GetOne(ctx context.Context, id string) (*models.Transaction, bool, error)
	GetByTypeAndReference(ctx context.Context, txnType, reference string) (*models.Transaction, bool, error)
	GetByCorrelationID(ctx context.Context, correlationID string) ([]models.Transaction, error)
	UpdateStatus(ctx context.Context, id, status string, failureReason sql.NullString) error
	UpdateStatusIfPending(ctx context.Context, id, status string, failureReason sql.NullString) (bool, error)
	SetProviderMetadata(ctx context.Context, id string, metadata models.Metadata) error
	ListByWallet(ctx context.Context, walletID string, limit, offset int) ([]models.Transaction, int, error)
}

type TransactionRepositoryImpl struct {
	q queryer
}

const transactionColumns = `id, wallet_id, counterparty_wallet_id, correlation_id, type, amount,
	status, reference, failure_reason, payment_url, provider_metadata, created_at, updated_at`

func (repo *TransactionRepositoryImpl) Insert(ctx context.Context, transaction *models.Transaction) (*models.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var trans models.Transaction

	query := `
		INSERT INTO transactions (wallet_id, counterparty_wallet_id, correlation_id, type, amount, status, reference, failure_reason, payment_url, provider_metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + transactionColumns

	err := sqlx.GetContext(ctx, repo.q, &trans, query,
		transaction.WalletID,
		transaction.CounterpartyWalletID,
		transaction.CorrelationID,
		transaction.Type,
		transaction.Amount,
		transaction.Status,
		transaction.Reference,
		transaction.FailureReason,
		transaction.PaymentURL,
		transaction.ProviderMetadata,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateReference
		}
		return nil, err
	}

	return &trans, nil
}

func (repo *TransactionRepositoryImpl) GetOne(ctx context.Context, id string) (*models.Transaction, bool, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id=$1`
	return repo.getOne(ctx, query, id)
}

func (repo *TransactionRepositoryImpl) GetByTypeAndReference(ctx context.Context, txnType, reference string) (*models.Transaction, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var trans models.Transaction

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE type=$1 AND reference=$2`

	err := sqlx.GetContext(ctx, repo.q, &trans, query, txnType, reference)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &trans, true, nil
}

func (repo *TransactionRepositoryImpl) GetByCorrelationID(ctx context.Context, correlationID string) ([]models.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var transactions []models.Transaction

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE correlation_id=$1 ORDER BY type DESC`

	err := sqlx.SelectContext(ctx, repo.q, &transactions, query, correlationID)
	if err != nil {
		return nil, err
	}

	return transactions, nil
}

func (repo *TransactionRepositoryImpl) UpdateStatus(ctx context.Context, id, status string, failureReason sql.NullString) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `UPDATE transactions SET status=$1, failure_reason=$2, updated_at=NOW() WHERE id=$3`

	_, err := repo.q.ExecContext(ctx, query, status, failureReason, id)
	return err
}

// UpdateStatusIfPending flips the transaction to status only if it is still
// pending, reporting whether this call won the flip. Two units of work
// racing on the same row serialize on the row lock here, and the loser sees
// zero rows affected once the winner commits.
func (repo *TransactionRepositoryImpl) UpdateStatusIfPending(ctx context.Context, id, status string, failureReason sql.NullString) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `UPDATE transactions SET status=$1, failure_reason=$2, updated_at=NOW() WHERE id=$3 AND status=$4`

	result, err := repo.q.ExecContext(ctx, query, status, failureReason, id, models.TransactionStatusPending)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

func (repo *TransactionRepositoryImpl) SetProviderMetadata(ctx context.Context, id string, metadata models.Metadata) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `UPDATE transactions SET provider_metadata=$1, updated_at=NOW() WHERE id=$2`

	_, err := repo.q.ExecContext(ctx, query, metadata, id)
	return err
}

func (repo *TransactionRepositoryImpl) ListByWallet(ctx context.Context, walletID string, limit, offset int) ([]models.Transaction, int, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var total int

	query := `SELECT COUNT(*) FROM transactions WHERE wallet_id=$1`

	err := sqlx.GetContext(ctx, repo.q, &total, query, walletID)
	if err != nil {
		return nil, 0, err
	}

	var transactions []models.Transaction

	query = `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE wallet_id=$1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	err = sqlx.SelectContext(ctx, repo.q, &transactions, query, walletID, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	return transactions, total, nil
}

func (repo *TransactionRepositoryImpl) getOne(ctx context.Context, query string, arg any) (*models.Transaction, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var trans models.Transaction

	err := sqlx.GetContext(ctx, repo.q, &trans, query, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &trans, true, nil
}
