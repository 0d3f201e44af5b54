package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/kudiwallet/kudi/internal/models"
)

type WalletRepository interface {
	Insert(ctx context.Context, wallet *models.Wallet) (string, error)
	GetOne(ctx context.Context, id string) (*models.Wallet, bool, error)
	GetByUserID(ctx context.Context, userID string) (*models.Wallet, bool, error)
	GetByNumber(ctx context.Context, walletNumber string) (*models.Wallet, bool, error)
	GetOneForUpdate(ctx context.Context, id string) (*models.Wallet, bool, error)
	UpdateBalance(ctx context.Context, id string, balance decimal.Decimal) error
}

type WalletRepositoryImpl struct {
	q queryer
}

const walletColumns = `id, user_id, wallet_number, balance, created_at, updated_at`

func (repo *WalletRepositoryImpl) Insert(ctx context.Context, wallet *models.Wallet) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var id string

	query := `
		INSERT INTO wallets (user_id, wallet_number)
		VALUES ($1, $2)
		RETURNING id`

	err := sqlx.GetContext(ctx, repo.q, &id, query,
		wallet.UserID,
		wallet.WalletNumber,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", ErrDuplicateReference
		}
		return "", err
	}

	return id, nil
}

func (repo *WalletRepositoryImpl) GetOne(ctx context.Context, id string) (*models.Wallet, bool, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id=$1`
	return repo.getOne(ctx, query, id)
}

func (repo *WalletRepositoryImpl) GetByUserID(ctx context.Context, userID string) (*models.Wallet, bool, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id=$1`
	return repo.getOne(ctx, query, userID)
}

func (repo *WalletRepositoryImpl) GetByNumber(ctx context.Context, walletNumber string) (*models.Wallet, bool, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE wallet_number=$1`
	return repo.getOne(ctx, query, walletNumber)
}

// GetOneForUpdate acquires a row lock on the wallet for the duration of the
// surrounding unit of work. Callers that lock more than one wallet must
// acquire the locks in ascending wallet id order.
func (repo *WalletRepositoryImpl) GetOneForUpdate(ctx context.Context, id string) (*models.Wallet, bool, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id=$1 FOR UPDATE`
	return repo.getOne(ctx, query, id)
}

func (repo *WalletRepositoryImpl) getOne(ctx context.Context, query string, arg any) (*models.Wallet, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var wallet models.Wallet

	err := sqlx.GetContext(ctx, repo.q, &wallet, query, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &wallet, true, nil
}

func (repo *WalletRepositoryImpl) UpdateBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `UPDATE wallets SET balance=$1, updated_at=NOW() WHERE id=$2`

	_, err := repo.q.ExecContext(ctx, query, balance, id)
	return err
}
