package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kudiwallet/kudi/internal/models"
)

type APIKeyRepository interface {
	Insert(ctx context.Context, key *models.APIKey) (*models.APIKey, error)
	GetOne(ctx context.Context, id string) (*models.APIKey, bool, error)
	GetByHash(ctx context.Context, keyHash string) (*models.APIKey, bool, error)
	ListByUserID(ctx context.Context, userID string) ([]models.APIKey, error)
	CountActive(ctx context.Context, userID string, now time.Time) (int, error)
	Revoke(ctx context.Context, id string) error
}

type APIKeyRepositoryImpl struct {
	q queryer
}

const apiKeyColumns = `id, user_id, name, key_hash, permissions, expires_at, revoked, created_at, updated_at`

func (repo *APIKeyRepositoryImpl) Insert(ctx context.Context, key *models.APIKey) (*models.APIKey, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var created models.APIKey

	query := `
		INSERT INTO api_keys (user_id, name, key_hash, permissions, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + apiKeyColumns

	err := sqlx.GetContext(ctx, repo.q, &created, query,
		key.UserID,
		key.Name,
		key.KeyHash,
		key.Permissions,
		key.ExpiresAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateReference
		}
		return nil, err
	}

	return &created, nil
}

func (repo *APIKeyRepositoryImpl) GetOne(ctx context.Context, id string) (*models.APIKey, bool, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id=$1`
	return repo.getOne(ctx, query, id)
}

func (repo *APIKeyRepositoryImpl) GetByHash(ctx context.Context, keyHash string) (*models.APIKey, bool, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_hash=$1`
	return repo.getOne(ctx, query, keyHash)
}

func (repo *APIKeyRepositoryImpl) ListByUserID(ctx context.Context, userID string) ([]models.APIKey, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var keys []models.APIKey

	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE user_id=$1 ORDER BY created_at DESC`

	err := sqlx.SelectContext(ctx, repo.q, &keys, query, userID)
	if err != nil {
		return nil, err
	}

	return keys, nil
}

func (repo *APIKeyRepositoryImpl) CountActive(ctx context.Context, userID string, now time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var count int

	query := `SELECT COUNT(*) FROM api_keys WHERE user_id=$1 AND revoked=FALSE AND expires_at > $2`

	err := sqlx.GetContext(ctx, repo.q, &count, query, userID, now)
	if err != nil {
		return 0, err
	}

	return count, nil
}

func (repo *APIKeyRepositoryImpl) Revoke(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `UPDATE api_keys SET revoked=TRUE, updated_at=NOW() WHERE id=$1`

	_, err := repo.q.ExecContext(ctx, query, id)
	return err
}

func (repo *APIKeyRepositoryImpl) getOne(ctx context.Context, query string, arg any) (*models.APIKey, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var key models.APIKey

	err := sqlx.GetContext(ctx, repo.q, &key, query, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &key, true, nil
}
