package ledger

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kudiwallet/kudi/internal/auth"
	"github.com/kudiwallet/kudi/internal/models"
	"github.com/kudiwallet/kudi/internal/repository"
)

func newTestLedger(t *testing.T) (*Ledger, repository.Database) {
	t.Helper()

	db := repository.NewMemoryDatabase()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(db, &fakeProvider{}, logger), db
}

func seedAccount(t *testing.T, db repository.Database, email, walletNumber string, balance decimal.Decimal) (*auth.Context, *models.Wallet) {
	t.Helper()

	ctx := context.Background()

	userID, err := db.User().Insert(ctx, &models.User{
		FirstName:      "Ada",
		LastName:       "Obi",
		Email:          email,
		HashedPassword: "x",
	})
	require.NoError(t, err)

	walletID, err := db.Wallet().Insert(ctx, &models.Wallet{
		UserID:       userID,
		WalletNumber: walletNumber,
	})
	require.NoError(t, err)

	if !balance.IsZero() {
		require.NoError(t, db.Wallet().UpdateBalance(ctx, walletID, balance))
	}

	wallet, found, err := db.Wallet().GetOne(ctx, walletID)
	require.NoError(t, err)
	require.True(t, found)

	authCtx := &auth.Context{
		UserID:     userID,
		Email:      email,
		Credential: auth.CredentialSession,
	}

	return authCtx, wallet
}

func walletBalance(t *testing.T, db repository.Database, walletID string) decimal.Decimal {
	t.Helper()

	wallet, found, err := db.Wallet().GetOne(context.Background(), walletID)
	require.NoError(t, err)
	require.True(t, found)

	return wallet.Balance
}

func TestTransferMovesMoneyBetweenWallets(t *testing.T) {
	l, db := newTestLedger(t)

	sender, senderWallet := seedAccount(t, db, "sender@example.com", "1000000000001", decimal.NewFromInt(500))
	_, recipientWallet := seedAccount(t, db, "recipient@example.com", "1000000000002", decimal.Zero)

	result, err := l.Transfer(context.Background(), sender, recipientWallet.WalletNumber, decimal.NewFromInt(120), "key-1")
	require.NoError(t, err)
	require.False(t, result.Replayed)

	require.Equal(t, models.TransactionStatusSuccess, result.OutTransaction.Status)
	require.Equal(t, models.TransactionStatusSuccess, result.InTransaction.Status)
	require.Equal(t, result.OutTransaction.CorrelationID, result.InTransaction.CorrelationID)

	require.True(t, walletBalance(t, db, senderWallet.ID).Equal(decimal.NewFromInt(380)))
	require.True(t, walletBalance(t, db, recipientWallet.ID).Equal(decimal.NewFromInt(120)))
}

func TestTransferInsufficientBalance(t *testing.T) {
	l, db := newTestLedger(t)

	sender, senderWallet := seedAccount(t, db, "sender@example.com", "1000000000001", decimal.NewFromInt(50))
	_, recipientWallet := seedAccount(t, db, "recipient@example.com", "1000000000002", decimal.Zero)

	result, err := l.Transfer(context.Background(), sender, recipientWallet.WalletNumber, decimal.NewFromInt(80), "key-1")
	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.NotNil(t, result)

	// The failed debit leg is committed so that retries see the outcome.
	require.Equal(t, models.TransactionStatusFailed, result.OutTransaction.Status)
	require.Equal(t, models.FailureReasonInsufficientBalance, result.OutTransaction.FailureReason.String)
	require.Nil(t, result.InTransaction)

	// No balance moved.
	require.True(t, walletBalance(t, db, senderWallet.ID).Equal(decimal.NewFromInt(50)))
	require.True(t, walletBalance(t, db, recipientWallet.ID).Equal(decimal.Zero))

	// A retry with the same key replays the recorded failure.
	replayed, err := l.Transfer(context.Background(), sender, recipientWallet.WalletNumber, decimal.NewFromInt(80), "key-1")
	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.True(t, replayed.Replayed)
	require.Equal(t, result.OutTransaction.ID, replayed.OutTransaction.ID)
}

func TestTransferIdempotentRetry(t *testing.T) {
	l, db := newTestLedger(t)

	sender, senderWallet := seedAccount(t, db, "sender@example.com", "1000000000001", decimal.NewFromInt(200))
	_, recipientWallet := seedAccount(t, db, "recipient@example.com", "1000000000002", decimal.Zero)

	first, err := l.Transfer(context.Background(), sender, recipientWallet.WalletNumber, decimal.NewFromInt(75), "key-42")
	require.NoError(t, err)

	second, err := l.Transfer(context.Background(), sender, recipientWallet.WalletNumber, decimal.NewFromInt(75), "key-42")
	require.NoError(t, err)
	require.True(t, second.Replayed)
	require.Equal(t, first.OutTransaction.ID, second.OutTransaction.ID)
	require.Equal(t, first.InTransaction.ID, second.InTransaction.ID)

	// Applied exactly once.
	require.True(t, walletBalance(t, db, senderWallet.ID).Equal(decimal.NewFromInt(125)))
	require.True(t, walletBalance(t, db, recipientWallet.ID).Equal(decimal.NewFromInt(75)))
}

func TestTransferToOwnWallet(t *testing.T) {
	l, db := newTestLedger(t)

	sender, senderWallet := seedAccount(t, db, "sender@example.com", "1000000000001", decimal.NewFromInt(100))

	_, err := l.Transfer(context.Background(), sender, senderWallet.WalletNumber, decimal.NewFromInt(10), "key-1")
	require.ErrorIs(t, err, ErrSameWalletTransfer)

	require.True(t, walletBalance(t, db, senderWallet.ID).Equal(decimal.NewFromInt(100)))
}

func TestTransferUnknownDestination(t *testing.T) {
	l, db := newTestLedger(t)

	sender, _ := seedAccount(t, db, "sender@example.com", "1000000000001", decimal.NewFromInt(100))

	_, err := l.Transfer(context.Background(), sender, "9999999999999", decimal.NewFromInt(10), "key-1")
	require.ErrorIs(t, err, ErrWalletNotFound)
}

func TestTransferInvalidAmount(t *testing.T) {
	l, db := newTestLedger(t)

	sender, _ := seedAccount(t, db, "sender@example.com", "1000000000001", decimal.NewFromInt(100))
	_, recipientWallet := seedAccount(t, db, "recipient@example.com", "1000000000002", decimal.Zero)

	_, err := l.Transfer(context.Background(), sender, recipientWallet.WalletNumber, decimal.Zero, "key-1")
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = l.Transfer(context.Background(), sender, recipientWallet.WalletNumber, decimal.NewFromInt(-5), "key-2")
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestTransferRequiresCapability(t *testing.T) {
	l, db := newTestLedger(t)

	sender, _ := seedAccount(t, db, "sender@example.com", "1000000000001", decimal.NewFromInt(100))
	_, recipientWallet := seedAccount(t, db, "recipient@example.com", "1000000000002", decimal.Zero)

	readOnly := &auth.Context{
		UserID:      sender.UserID,
		Email:       sender.Email,
		Credential:  auth.CredentialAPIKey,
		Permissions: models.Permissions{auth.PermissionRead},
	}

	_, err := l.Transfer(context.Background(), readOnly, recipientWallet.WalletNumber, decimal.NewFromInt(10), "key-1")
	require.ErrorIs(t, err, auth.ErrForbidden)
}

func TestConcurrentTransfersNeverOverdraw(t *testing.T) {
	l, db := newTestLedger(t)

	sender, senderWallet := seedAccount(t, db, "sender@example.com", "1000000000001", decimal.NewFromInt(100))
	_, recipientWallet := seedAccount(t, db, "recipient@example.com", "1000000000002", decimal.Zero)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	keys := []string{"key-a", "key-b"}

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.Transfer(context.Background(), sender, recipientWallet.WalletNumber, decimal.NewFromInt(80), keys[i])
		}(i)
	}
	wg.Wait()

	// Exactly one of the two debits can clear against a balance of 100.
	failures := 0
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, ErrInsufficientBalance)
			failures++
		}
	}
	require.Equal(t, 1, failures)

	require.True(t, walletBalance(t, db, senderWallet.ID).Equal(decimal.NewFromInt(20)))
	require.True(t, walletBalance(t, db, recipientWallet.ID).Equal(decimal.NewFromInt(80)))
}

func TestTransactionsHistoryOrderAndTotal(t *testing.T) {
	l, db := newTestLedger(t)

	sender, _ := seedAccount(t, db, "sender@example.com", "1000000000001", decimal.NewFromInt(1000))
	_, recipientWallet := seedAccount(t, db, "recipient@example.com", "1000000000002", decimal.Zero)

	for _, key := range []string{"k1", "k2", "k3"} {
		_, err := l.Transfer(context.Background(), sender, recipientWallet.WalletNumber, decimal.NewFromInt(10), key)
		require.NoError(t, err)
	}

	transactions, total, err := l.Transactions(context.Background(), sender.UserID, 2, 0)
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, transactions, 2)

	for i := range transactions {
		require.Equal(t, models.TransactionTypeTransferOut, transactions[i].Type)
	}
}
