package ledger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kudiwallet/kudi/internal/auth"
	"github.com/kudiwallet/kudi/internal/models"
	"github.com/kudiwallet/kudi/internal/paystack"
	"github.com/kudiwallet/kudi/internal/repository"
)

type fakeProvider struct {
	initErr        error
	verifyStatus   string
	verifyErr      error
	verifyCalls    int
	validSignature string
}

func (p *fakeProvider) InitializeTransaction(_ context.Context, _ string, _ decimal.Decimal, reference string) (*paystack.InitializedTransaction, error) {
	if p.initErr != nil {
		return nil, p.initErr
	}

	return &paystack.InitializedTransaction{
		AuthorizationURL: "https://checkout.example.com/" + reference,
		AccessCode:       "access-code",
		Reference:        reference,
	}, nil
}

func (p *fakeProvider) VerifyTransaction(_ context.Context, reference string) (*paystack.TransactionStatus, error) {
	p.verifyCalls++

	if p.verifyErr != nil {
		return nil, p.verifyErr
	}

	return &paystack.TransactionStatus{
		Status:    p.verifyStatus,
		Reference: reference,
	}, nil
}

func (p *fakeProvider) VerifySignature(signature string, _ []byte) bool {
	return signature == p.validSignature
}

func newDepositLedger(t *testing.T, provider *fakeProvider) (*Ledger, repository.Database) {
	t.Helper()

	db := repository.NewMemoryDatabase()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(db, provider, logger), db
}

func initiateDeposit(t *testing.T, l *Ledger, authCtx *auth.Context, amount decimal.Decimal) *InitiatedDeposit {
	t.Helper()

	initiated, err := l.InitiateDeposit(context.Background(), authCtx, amount)
	require.NoError(t, err)

	return initiated
}

func chargeWebhookBody(reference, event, status string) []byte {
	return []byte(fmt.Sprintf(`{"event":%q,"data":{"reference":%q,"status":%q,"amount":500000}}`, event, reference, status))
}

func TestInitiateDepositRecordsPendingTransaction(t *testing.T) {
	provider := &fakeProvider{validSignature: "good"}
	l, db := newDepositLedger(t, provider)

	owner, wallet := seedAccount(t, db, "owner@example.com", "1000000000001", decimal.Zero)

	initiated := initiateDeposit(t, l, owner, decimal.NewFromInt(5000))

	require.Contains(t, initiated.Reference, "TXN_")
	require.Equal(t, "https://checkout.example.com/"+initiated.Reference, initiated.AuthorizationURL)
	require.Equal(t, models.TransactionStatusPending, initiated.Transaction.Status)
	require.Equal(t, wallet.ID, initiated.Transaction.WalletID)

	// Initiation never credits anything.
	require.True(t, walletBalance(t, db, wallet.ID).Equal(decimal.Zero))
}

func TestInitiateDepositProviderUnavailable(t *testing.T) {
	provider := &fakeProvider{initErr: paystack.ErrUnavailable}
	l, db := newDepositLedger(t, provider)

	owner, wallet := seedAccount(t, db, "owner@example.com", "1000000000001", decimal.Zero)

	_, err := l.InitiateDeposit(context.Background(), owner, decimal.NewFromInt(5000))
	require.ErrorIs(t, err, ErrProviderUnavailable)

	// No dangling pending record.
	_, total, listErr := l.Transactions(context.Background(), owner.UserID, 10, 0)
	require.NoError(t, listErr)
	require.Equal(t, 0, total)
	require.True(t, walletBalance(t, db, wallet.ID).Equal(decimal.Zero))
}

func TestWebhookCreditsWallet(t *testing.T) {
	provider := &fakeProvider{validSignature: "good"}
	l, db := newDepositLedger(t, provider)

	owner, wallet := seedAccount(t, db, "owner@example.com", "1000000000001", decimal.Zero)
	initiated := initiateDeposit(t, l, owner, decimal.NewFromInt(5000))

	body := chargeWebhookBody(initiated.Reference, "charge.success", "success")

	result, err := l.ReconcileWebhook(context.Background(), body, "good")
	require.NoError(t, err)
	require.False(t, result.Duplicate)
	require.Equal(t, models.TransactionStatusSuccess, result.Transaction.Status)

	require.True(t, walletBalance(t, db, wallet.ID).Equal(decimal.NewFromInt(5000)))
}

func TestWebhookRedeliveryIsIdempotent(t *testing.T) {
	provider := &fakeProvider{validSignature: "good"}
	l, db := newDepositLedger(t, provider)

	owner, wallet := seedAccount(t, db, "owner@example.com", "1000000000001", decimal.Zero)
	initiated := initiateDeposit(t, l, owner, decimal.NewFromInt(5000))

	body := chargeWebhookBody(initiated.Reference, "charge.success", "success")

	_, err := l.ReconcileWebhook(context.Background(), body, "good")
	require.NoError(t, err)

	result, err := l.ReconcileWebhook(context.Background(), body, "good")
	require.NoError(t, err)
	require.True(t, result.Duplicate)
	require.Equal(t, models.TransactionStatusSuccess, result.Transaction.Status)

	// Credited exactly once.
	require.True(t, walletBalance(t, db, wallet.ID).Equal(decimal.NewFromInt(5000)))
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	provider := &fakeProvider{validSignature: "good"}
	l, db := newDepositLedger(t, provider)

	owner, wallet := seedAccount(t, db, "owner@example.com", "1000000000001", decimal.Zero)
	initiated := initiateDeposit(t, l, owner, decimal.NewFromInt(5000))

	body := chargeWebhookBody(initiated.Reference, "charge.success", "success")

	_, err := l.ReconcileWebhook(context.Background(), body, "forged")
	require.ErrorIs(t, err, ErrSignatureMismatch)

	require.True(t, walletBalance(t, db, wallet.ID).Equal(decimal.Zero))
}

func TestWebhookUnknownReference(t *testing.T) {
	provider := &fakeProvider{validSignature: "good"}
	l, _ := newDepositLedger(t, provider)

	body := chargeWebhookBody("TXN_0_deadbeef", "charge.success", "success")

	_, err := l.ReconcileWebhook(context.Background(), body, "good")
	require.ErrorIs(t, err, ErrUnknownReference)
}

func TestWebhookIgnoresUnrelatedEvents(t *testing.T) {
	provider := &fakeProvider{validSignature: "good"}
	l, db := newDepositLedger(t, provider)

	owner, wallet := seedAccount(t, db, "owner@example.com", "1000000000001", decimal.Zero)
	initiated := initiateDeposit(t, l, owner, decimal.NewFromInt(5000))

	body := chargeWebhookBody(initiated.Reference, "transfer.success", "success")

	result, err := l.ReconcileWebhook(context.Background(), body, "good")
	require.NoError(t, err)
	require.True(t, result.Ignored)

	require.True(t, walletBalance(t, db, wallet.ID).Equal(decimal.Zero))
}

func TestWebhookFailedChargeMarksDepositFailed(t *testing.T) {
	provider := &fakeProvider{validSignature: "good"}
	l, db := newDepositLedger(t, provider)

	owner, wallet := seedAccount(t, db, "owner@example.com", "1000000000001", decimal.Zero)
	initiated := initiateDeposit(t, l, owner, decimal.NewFromInt(5000))

	body := chargeWebhookBody(initiated.Reference, "charge.failed", "failed")

	result, err := l.ReconcileWebhook(context.Background(), body, "good")
	require.NoError(t, err)
	require.Equal(t, models.TransactionStatusFailed, result.Transaction.Status)
	require.Equal(t, models.FailureReasonProviderDeclined, result.Transaction.FailureReason.String)

	require.True(t, walletBalance(t, db, wallet.ID).Equal(decimal.Zero))
}

func TestVerifyDepositPullPath(t *testing.T) {
	provider := &fakeProvider{validSignature: "good", verifyStatus: "success"}
	l, db := newDepositLedger(t, provider)

	owner, wallet := seedAccount(t, db, "owner@example.com", "1000000000001", decimal.Zero)
	initiated := initiateDeposit(t, l, owner, decimal.NewFromInt(5000))

	transaction, err := l.VerifyDeposit(context.Background(), initiated.Reference)
	require.NoError(t, err)
	require.Equal(t, models.TransactionStatusSuccess, transaction.Status)
	require.Equal(t, 1, provider.verifyCalls)

	require.True(t, walletBalance(t, db, wallet.ID).Equal(decimal.NewFromInt(5000)))

	// A settled deposit is served from the ledger without a remote call.
	transaction, err = l.VerifyDeposit(context.Background(), initiated.Reference)
	require.NoError(t, err)
	require.Equal(t, models.TransactionStatusSuccess, transaction.Status)
	require.Equal(t, 1, provider.verifyCalls)
}

func TestVerifyDepositStillPendingAtProvider(t *testing.T) {
	provider := &fakeProvider{validSignature: "good", verifyStatus: "pending"}
	l, db := newDepositLedger(t, provider)

	owner, wallet := seedAccount(t, db, "owner@example.com", "1000000000001", decimal.Zero)
	initiated := initiateDeposit(t, l, owner, decimal.NewFromInt(5000))

	transaction, err := l.VerifyDeposit(context.Background(), initiated.Reference)
	require.NoError(t, err)
	require.Equal(t, models.TransactionStatusPending, transaction.Status)

	require.True(t, walletBalance(t, db, wallet.ID).Equal(decimal.Zero))
}

func TestVerifyDepositProviderUnavailable(t *testing.T) {
	provider := &fakeProvider{validSignature: "good", verifyErr: paystack.ErrUnavailable}
	l, db := newDepositLedger(t, provider)

	owner, _ := seedAccount(t, db, "owner@example.com", "1000000000001", decimal.Zero)
	initiated := initiateDeposit(t, l, owner, decimal.NewFromInt(5000))

	_, err := l.VerifyDeposit(context.Background(), initiated.Reference)
	require.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestVerifyDepositUnknownReference(t *testing.T) {
	provider := &fakeProvider{validSignature: "good"}
	l, _ := newDepositLedger(t, provider)

	_, err := l.VerifyDeposit(context.Background(), "TXN_0_deadbeef")
	require.ErrorIs(t, err, ErrUnknownReference)
}

func TestDepositRequiresCapability(t *testing.T) {
	provider := &fakeProvider{validSignature: "good"}
	l, db := newDepositLedger(t, provider)

	owner, _ := seedAccount(t, db, "owner@example.com", "1000000000001", decimal.Zero)

	transferOnly := &auth.Context{
		UserID:      owner.UserID,
		Email:       owner.Email,
		Credential:  auth.CredentialAPIKey,
		Permissions: models.Permissions{auth.PermissionTransfer},
	}

	_, err := l.InitiateDeposit(context.Background(), transferOnly, decimal.NewFromInt(5000))
	require.ErrorIs(t, err, auth.ErrForbidden)
}

// interleavingDB runs units of work directly against the shared state with
// per-statement locking only, so two reconciliations can interleave between
// statements the way they can on a live database connection pool.
type interleavingDB struct {
	*repository.MemoryDatabase
	barrier *pendingReadBarrier
}

func (d *interleavingDB) InTx(_ context.Context, fn func(store repository.Store) error) error {
	return fn(&barrierStore{Store: d.MemoryDatabase, barrier: d.barrier})
}

type barrierStore struct {
	repository.Store
	barrier *pendingReadBarrier
}

func (s *barrierStore) Transaction() repository.TransactionRepository {
	return &barrierTransactionRepo{
		TransactionRepository: s.Store.Transaction(),
		barrier:               s.barrier,
	}
}

// pendingReadBarrier holds every reader that observed a pending deposit row
// until all expected readers have observed it.
type pendingReadBarrier struct {
	wg sync.WaitGroup
}

type barrierTransactionRepo struct {
	repository.TransactionRepository
	barrier *pendingReadBarrier
}

func (r *barrierTransactionRepo) GetByTypeAndReference(ctx context.Context, txnType, reference string) (*models.Transaction, bool, error) {
	transaction, found, err := r.TransactionRepository.GetByTypeAndReference(ctx, txnType, reference)
	if err == nil && found && transaction.Status == models.TransactionStatusPending {
		r.barrier.wg.Done()
		r.barrier.wg.Wait()
	}
	return transaction, found, err
}

func TestConcurrentWebhookDeliveriesCreditOnce(t *testing.T) {
	provider := &fakeProvider{validSignature: "good"}
	mem := repository.NewMemoryDatabase()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	setup := New(mem, provider, logger)
	owner, wallet := seedAccount(t, mem, "owner@example.com", "1000000000001", decimal.Zero)
	initiated := initiateDeposit(t, setup, owner, decimal.NewFromInt(5000))

	// Both deliveries must observe the deposit as pending before either
	// settles it.
	barrier := &pendingReadBarrier{}
	barrier.wg.Add(2)

	racer := New(&interleavingDB{MemoryDatabase: mem, barrier: barrier}, provider, logger)

	body := chargeWebhookBody(initiated.Reference, "charge.success", "success")

	type outcome struct {
		result *ReconcileResult
		err    error
	}
	outcomes := make(chan outcome, 2)

	for i := 0; i < 2; i++ {
		go func() {
			result, err := racer.ReconcileWebhook(context.Background(), body, "good")
			outcomes <- outcome{result: result, err: err}
		}()
	}

	duplicates := 0
	for i := 0; i < 2; i++ {
		got := <-outcomes
		require.NoError(t, got.err)
		require.Equal(t, models.TransactionStatusSuccess, got.result.Transaction.Status)
		if got.result.Duplicate {
			duplicates++
		}
	}

	require.Equal(t, 1, duplicates)
	require.True(t, walletBalance(t, mem, wallet.ID).Equal(decimal.NewFromInt(5000)))
}
