package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kudiwallet/kudi/assets"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
)

const defaultTimeout = 3 * time.Second

// ErrDuplicateReference is returned when an insert violates the
// (type, reference) uniqueness constraint. It is the storage-level
// backstop for idempotency checks.
var ErrDuplicateReference = errors.New("duplicate transaction reference")

// Store groups the repositories that can take part in a single unit of work.
// Balance reads and writes must always happen through a Store obtained
// from InTx, never through ad-hoc connections.
type Store interface {
	Wallet() WalletRepository
	Transaction() TransactionRepository
	APIKey() APIKeyRepository
	User() UserRepository
	Audit() AuditRepository
}

// Database is the durable ledger store.
type Database interface {
	Store

	// InTx runs fn inside one database transaction. The transaction is
	// committed when fn returns nil and rolled back otherwise.
	InTx(ctx context.Context, fn func(store Store) error) error

	Close() error
}

type DatabaseImpl struct {
	db *sqlx.DB
	stores
}

// New initializes a database connection and runs migrations if enabled
func New(dsn string, automigrate bool) (Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "postgres", "postgres://"+dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(2 * time.Hour)

	if automigrate {
		iofsDriver, err := iofs.New(assets.EmbeddedFiles, "migrations")
		if err != nil {
			return nil, err
		}

		migrator, err := migrate.NewWithSourceInstance("iofs", iofsDriver, "postgres://"+dsn)
		if err != nil {
			return nil, err
		}

		if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return nil, err
		}
	}

	return &DatabaseImpl{db: db, stores: newStores(db)}, nil
}

func (d *DatabaseImpl) Close() error {
	return d.db.Close()
}

func (d *DatabaseImpl) InTx(ctx context.Context, fn func(store Store) error) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer tx.Rollback()

	if err := fn(newStores(tx)); err != nil {
		return err
	}

	return tx.Commit()
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx, so every repository
// works unchanged inside and outside a unit of work.
type queryer interface {
	sqlx.ExtContext
}

type stores struct {
	walletRepo      WalletRepository
	transactionRepo TransactionRepository
	apiKeyRepo      APIKeyRepository
	userRepo        UserRepository
	auditRepo       AuditRepository
}

func newStores(q queryer) stores {
	return stores{
		walletRepo:      &WalletRepositoryImpl{q: q},
		transactionRepo: &TransactionRepositoryImpl{q: q},
		apiKeyRepo:      &APIKeyRepositoryImpl{q: q},
		userRepo:        &UserRepositoryImpl{q: q},
		auditRepo:       &AuditRepositoryImpl{q: q},
	}
}

func (s stores) Wallet() WalletRepository           { return s.walletRepo }
func (s stores) Transaction() TransactionRepository { return s.transactionRepo }
func (s stores) APIKey() APIKeyRepository           { return s.apiKeyRepo }
func (s stores) User() UserRepository               { return s.userRepo }
func (s stores) Audit() AuditRepository             { return s.auditRepo }

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
