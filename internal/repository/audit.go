package repository

import (
	"context"

	"github.com/kudiwallet/kudi/internal/models"
)

// account log entities
const (
	AccountLogUserEntity        = "user"
	AccountLogWalletEntity      = "wallet"
	AccountLogTransactionEntity = "transaction"
	AccountLogAPIKeyEntity      = "api_key"
)

// transaction log actions
const (
	TransactionLogActionInitiated = "initiated"
	TransactionLogActionDebit     = "debit"
	TransactionLogActionCredit    = "credit"
	TransactionLogActionFailed    = "failed"
	TransactionLogActionSuccess   = "success"
)

type AuditRepository interface {
	InsertAccountLog(ctx context.Context, log *models.AccountLog) error
	InsertTransactionLog(ctx context.Context, log *models.TransactionLog) error
}

type AuditRepositoryImpl struct {
	q queryer
}

func (repo *AuditRepositoryImpl) InsertAccountLog(ctx context.Context, log *models.AccountLog) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `
		INSERT INTO account_logs (user_id, entity, entity_id, description)
		VALUES ($1, $2, $3, $4)`

	_, err := repo.q.ExecContext(ctx, query,
		log.UserID,
		log.Entity,
		log.EntityID,
		log.Description,
	)
	return err
}

func (repo *AuditRepositoryImpl) InsertTransactionLog(ctx context.Context, log *models.TransactionLog) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `
		INSERT INTO transaction_logs (transaction_id, wallet_id, action)
		VALUES ($1, $2, $3)`

	_, err := repo.q.ExecContext(ctx, query,
		log.TransactionID,
		log.WalletID,
		log.Action,
	)
	return err
}
