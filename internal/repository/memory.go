package repository

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kudiwallet/kudi/internal/models"
)

// MemoryDatabase is an in-memory implementation of Database. It mirrors the
// Postgres implementation's semantics closely enough for service-level tests:
// units of work are serialized by a single mutex and rolled back by snapshot
// on error, and the (type, reference) uniqueness constraint is enforced.
type MemoryDatabase struct {
	mu    sync.Mutex
	state *memoryState
	memoryStore
}

type memoryState struct {
	wallets         map[string]models.Wallet
	transactions    map[string]models.Transaction
	apiKeys         map[string]models.APIKey
	users           map[string]models.User
	accountLogs     []models.AccountLog
	transactionLogs []models.TransactionLog
}

func NewMemoryDatabase() *MemoryDatabase {
	db := &MemoryDatabase{
		state: &memoryState{
			wallets:      make(map[string]models.Wallet),
			transactions: make(map[string]models.Transaction),
			apiKeys:      make(map[string]models.APIKey),
			users:        make(map[string]models.User),
		},
	}
	db.memoryStore = memoryStore{db: db, inTx: false}
	return db
}

func (d *MemoryDatabase) Close() error { return nil }

func (d *MemoryDatabase) InTx(_ context.Context, fn func(store Store) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	snapshot := d.state.clone()

	if err := fn(memoryStore{db: d, inTx: true}); err != nil {
		d.state = snapshot
		return err
	}

	return nil
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		wallets:         make(map[string]models.Wallet, len(s.wallets)),
		transactions:    make(map[string]models.Transaction, len(s.transactions)),
		apiKeys:         make(map[string]models.APIKey, len(s.apiKeys)),
		users:           make(map[string]models.User, len(s.users)),
		accountLogs:     append([]models.AccountLog(nil), s.accountLogs...),
		transactionLogs: append([]models.TransactionLog(nil), s.transactionLogs...),
	}
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	for k, v := range s.apiKeys {
		c.apiKeys[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	return c
}

type memoryStore struct {
	db   *MemoryDatabase
	inTx bool
}

func (s memoryStore) Wallet() WalletRepository           { return &memoryWalletRepo{s} }
func (s memoryStore) Transaction() TransactionRepository { return &memoryTransactionRepo{s} }
func (s memoryStore) APIKey() APIKeyRepository           { return &memoryAPIKeyRepo{s} }
func (s memoryStore) User() UserRepository               { return &memoryUserRepo{s} }
func (s memoryStore) Audit() AuditRepository             { return &memoryAuditRepo{s} }

// lock is a no-op inside a unit of work, which already holds the mutex.
func (s memoryStore) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.db.mu.Lock()
	return s.db.mu.Unlock
}

type memoryWalletRepo struct{ memoryStore }

func (r *memoryWalletRepo) Insert(_ context.Context, wallet *models.Wallet) (string, error) {
	defer r.lock()()

	for _, w := range r.db.state.wallets {
		if w.WalletNumber == wallet.WalletNumber || w.UserID == wallet.UserID {
			return "", ErrDuplicateReference
		}
	}

	id := uuid.NewString()
	stored := *wallet
	stored.ID = id
	stored.Balance = decimal.Zero
	stored.CreatedAt = time.Now()
	r.db.state.wallets[id] = stored

	return id, nil
}

func (r *memoryWalletRepo) GetOne(_ context.Context, id string) (*models.Wallet, bool, error) {
	defer r.lock()()

	w, ok := r.db.state.wallets[id]
	if !ok {
		return nil, false, nil
	}
	return &w, true, nil
}

func (r *memoryWalletRepo) GetByUserID(_ context.Context, userID string) (*models.Wallet, bool, error) {
	defer r.lock()()

	for _, w := range r.db.state.wallets {
		if w.UserID == userID {
			wallet := w
			return &wallet, true, nil
		}
	}
	return nil, false, nil
}

func (r *memoryWalletRepo) GetByNumber(_ context.Context, walletNumber string) (*models.Wallet, bool, error) {
	defer r.lock()()

	for _, w := range r.db.state.wallets {
		if w.WalletNumber == walletNumber {
			wallet := w
			return &wallet, true, nil
		}
	}
	return nil, false, nil
}

func (r *memoryWalletRepo) GetOneForUpdate(ctx context.Context, id string) (*models.Wallet, bool, error) {
	return r.GetOne(ctx, id)
}

func (r *memoryWalletRepo) UpdateBalance(_ context.Context, id string, balance decimal.Decimal) error {
	defer r.lock()()

	w, ok := r.db.state.wallets[id]
	if !ok {
		return nil
	}
	w.Balance = balance
	w.UpdatedAt.Time = time.Now()
	w.UpdatedAt.Valid = true
	r.db.state.wallets[id] = w

	return nil
}

type memoryTransactionRepo struct{ memoryStore }

func (r *memoryTransactionRepo) Insert(_ context.Context, transaction *models.Transaction) (*models.Transaction, error) {
	defer r.lock()()

	for _, t := range r.db.state.transactions {
		if t.Type == transaction.Type && t.Reference == transaction.Reference {
			return nil, ErrDuplicateReference
		}
	}

	stored := *transaction
	stored.ID = uuid.NewString()
	stored.CreatedAt = time.Now()
	if stored.Status == "" {
		stored.Status = models.TransactionStatusPending
	}
	r.db.state.transactions[stored.ID] = stored

	return &stored, nil
}

func (r *memoryTransactionRepo) GetOne(_ context.Context, id string) (*models.Transaction, bool, error) {
	defer r.lock()()

	t, ok := r.db.state.transactions[id]
	if !ok {
		return nil, false, nil
	}
	return &t, true, nil
}

func (r *memoryTransactionRepo) GetByTypeAndReference(_ context.Context, txnType, reference string) (*models.Transaction, bool, error) {
	defer r.lock()()

	for _, t := range r.db.state.transactions {
		if t.Type == txnType && t.Reference == reference {
			trans := t
			return &trans, true, nil
		}
	}
	return nil, false, nil
}

func (r *memoryTransactionRepo) GetByCorrelationID(_ context.Context, correlationID string) ([]models.Transaction, error) {
	defer r.lock()()

	var out []models.Transaction
	for _, t := range r.db.state.transactions {
		if t.CorrelationID.Valid && t.CorrelationID.String == correlationID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type > out[j].Type })

	return out, nil
}

func (r *memoryTransactionRepo) UpdateStatus(_ context.Context, id, status string, failureReason sql.NullString) error {
	defer r.lock()()

	t, ok := r.db.state.transactions[id]
	if !ok {
		return nil
	}
	t.Status = status
	t.FailureReason = failureReason
	t.UpdatedAt.Time = time.Now()
	t.UpdatedAt.Valid = true
	r.db.state.transactions[id] = t

	return nil
}

func (r *memoryTransactionRepo) UpdateStatusIfPending(_ context.Context, id, status string, failureReason sql.NullString) (bool, error) {
	defer r.lock()()

	t, ok := r.db.state.transactions[id]
	if !ok || t.Status != models.TransactionStatusPending {
		return false, nil
	}
	t.Status = status
	t.FailureReason = failureReason
	t.UpdatedAt.Time = time.Now()
	t.UpdatedAt.Valid = true
	r.db.state.transactions[id] = t

	return true, nil
}

func (r *memoryTransactionRepo) SetProviderMetadata(_ context.Context, id string, metadata models.Metadata) error {
	defer r.lock()()

	t, ok := r.db.state.transactions[id]
	if !ok {
		return nil
	}
	t.ProviderMetadata = metadata
	r.db.state.transactions[id] = t

	return nil
}

func (r *memoryTransactionRepo) ListByWallet(_ context.Context, walletID string, limit, offset int) ([]models.Transaction, int, error) {
	defer r.lock()()

	var all []models.Transaction
	for _, t := range r.db.state.transactions {
		if t.WalletID == walletID {
			all = append(all, t)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}

	return all[offset:end], total, nil
}

type memoryAPIKeyRepo struct{ memoryStore }

func (r *memoryAPIKeyRepo) Insert(_ context.Context, key *models.APIKey) (*models.APIKey, error) {
	defer r.lock()()

	for _, k := range r.db.state.apiKeys {
		if k.KeyHash == key.KeyHash {
			return nil, ErrDuplicateReference
		}
	}

	stored := *key
	stored.ID = uuid.NewString()
	stored.CreatedAt = time.Now()
	r.db.state.apiKeys[stored.ID] = stored

	return &stored, nil
}

func (r *memoryAPIKeyRepo) GetOne(_ context.Context, id string) (*models.APIKey, bool, error) {
	defer r.lock()()

	k, ok := r.db.state.apiKeys[id]
	if !ok {
		return nil, false, nil
	}
	return &k, true, nil
}

func (r *memoryAPIKeyRepo) GetByHash(_ context.Context, keyHash string) (*models.APIKey, bool, error) {
	defer r.lock()()

	for _, k := range r.db.state.apiKeys {
		if k.KeyHash == keyHash {
			key := k
			return &key, true, nil
		}
	}
	return nil, false, nil
}

func (r *memoryAPIKeyRepo) ListByUserID(_ context.Context, userID string) ([]models.APIKey, error) {
	defer r.lock()()

	var out []models.APIKey
	for _, k := range r.db.state.apiKeys {
		if k.UserID == userID {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	return out, nil
}

func (r *memoryAPIKeyRepo) CountActive(_ context.Context, userID string, now time.Time) (int, error) {
	defer r.lock()()

	count := 0
	for _, k := range r.db.state.apiKeys {
		if k.UserID == userID && !k.Revoked && k.ExpiresAt.After(now) {
			count++
		}
	}
	return count, nil
}

func (r *memoryAPIKeyRepo) Revoke(_ context.Context, id string) error {
	defer r.lock()()

	k, ok := r.db.state.apiKeys[id]
	if !ok {
		return nil
	}
	k.Revoked = true
	k.UpdatedAt.Time = time.Now()
	k.UpdatedAt.Valid = true
	r.db.state.apiKeys[id] = k

	return nil
}

type memoryUserRepo struct{ memoryStore }

func (r *memoryUserRepo) Insert(_ context.Context, user *models.User) (string, error) {
	defer r.lock()()

	for _, u := range r.db.state.users {
		if u.Email == user.Email {
			return "", ErrDuplicateReference
		}
	}

	stored := *user
	stored.ID = uuid.NewString()
	stored.Status = UserAccountActiveStatus
	stored.CreatedAt = time.Now()
	r.db.state.users[stored.ID] = stored

	return stored.ID, nil
}

func (r *memoryUserRepo) GetOne(_ context.Context, id string) (*models.User, bool, error) {
	defer r.lock()()

	u, ok := r.db.state.users[id]
	if !ok {
		return nil, false, nil
	}
	return &u, true, nil
}

func (r *memoryUserRepo) GetByEmail(_ context.Context, email string) (*models.User, bool, error) {
	defer r.lock()()

	for _, u := range r.db.state.users {
		if u.Email == email {
			user := u
			return &user, true, nil
		}
	}
	return nil, false, nil
}

func (r *memoryUserRepo) Lock(_ context.Context, id string) error {
	defer r.lock()()

	u, ok := r.db.state.users[id]
	if !ok {
		return nil
	}
	u.Status = UserAccountLockedStatus
	r.db.state.users[id] = u

	return nil
}

type memoryAuditRepo struct{ memoryStore }

func (r *memoryAuditRepo) InsertAccountLog(_ context.Context, log *models.AccountLog) error {
	defer r.lock()()

	stored := *log
	stored.ID = uuid.NewString()
	stored.CreatedAt = time.Now()
	r.db.state.accountLogs = append(r.db.state.accountLogs, stored)

	return nil
}

func (r *memoryAuditRepo) InsertTransactionLog(_ context.Context, log *models.TransactionLog) error {
	defer r.lock()()

	stored := *log
	stored.ID = uuid.NewString()
	stored.CreatedAt = time.Now()
	r.db.state.transactionLogs = append(r.db.state.transactionLogs, stored)

	return nil
}
