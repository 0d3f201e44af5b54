package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/kudiwallet/kudi/internal/models"
)

const (
	// UserAccountActiveStatus indicates that the user's account is active and fully functional.
	UserAccountActiveStatus = "active"

	// UserAccountLockedStatus indicates that the user's account has been locked.
	// A locked account cannot authenticate until unlocked.
	UserAccountLockedStatus = "locked"
)

type UserRepository interface {
	Insert(ctx context.Context, user *models.User) (string, error)
	GetOne(ctx context.Context, id string) (*models.User, bool, error)
	GetByEmail(ctx context.Context, email string) (*models.User, bool, error)
	Lock(ctx context.Context, id string) error
}

type UserRepositoryImpl struct {
	q queryer
}

const userColumns = `id, first_name, last_name, email, hashed_password, status, created_at, updated_at`

func (repo *UserRepositoryImpl) Insert(ctx context.Context, user *models.User) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var id string

	query := `
		INSERT INTO users (first_name, last_name, email, hashed_password)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	err := sqlx.GetContext(ctx, repo.q, &id, query,
		user.FirstName,
		user.LastName,
		user.Email,
		user.HashedPassword,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", ErrDuplicateReference
		}
		return "", err
	}

	return id, nil
}

func (repo *UserRepositoryImpl) GetOne(ctx context.Context, id string) (*models.User, bool, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return repo.getOne(ctx, query, id)
}

func (repo *UserRepositoryImpl) GetByEmail(ctx context.Context, email string) (*models.User, bool, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email=$1`
	return repo.getOne(ctx, query, email)
}

func (repo *UserRepositoryImpl) Lock(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `UPDATE users SET status=$1, updated_at=NOW() WHERE id=$2`

	_, err := repo.q.ExecContext(ctx, query, UserAccountLockedStatus, id)
	return err
}

func (repo *UserRepositoryImpl) getOne(ctx context.Context, query string, arg any) (*models.User, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var user models.User

	err := sqlx.GetContext(ctx, repo.q, &user, query, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &user, true, nil
}
