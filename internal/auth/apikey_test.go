package auth

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kudiwallet/kudi/internal/models"
	"github.com/kudiwallet/kudi/internal/repository"
)

func newKeyFixture(t *testing.T, maxPerUser int) (*KeyService, *Gate, repository.Database, string) {
	t.Helper()

	db := repository.NewMemoryDatabase()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	userID, err := db.User().Insert(context.Background(), &models.User{
		FirstName:      "Ada",
		LastName:       "Obi",
		Email:          "ada@example.com",
		HashedPassword: "x",
	})
	require.NoError(t, err)

	service := NewKeyService(db, maxPerUser, logger)
	gate := NewGate(db, "test-secret-key", "http://localhost:4444")

	return service, gate, db, userID
}

func TestCreateKeyIssuesSecretOnce(t *testing.T) {
	service, gate, _, userID := newKeyFixture(t, 5)

	issued, err := service.Create(context.Background(), userID, "billing", []string{PermissionDeposit, PermissionRead}, "7D")
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(issued.Secret, "sk_live_"))
	require.Equal(t, HashSecret(issued.Secret), issued.Key.KeyHash)
	require.False(t, issued.Key.Revoked)

	authCtx, err := gate.VerifyAPIKey(context.Background(), issued.Secret)
	require.NoError(t, err)
	require.Equal(t, userID, authCtx.UserID)
	require.Equal(t, CredentialAPIKey, authCtx.Credential)
	require.True(t, authCtx.Can(PermissionDeposit))
	require.True(t, authCtx.Can(PermissionRead))
	require.False(t, authCtx.Can(PermissionTransfer))
}

func TestGetKeyScopedToOwner(t *testing.T) {
	service, _, db, userID := newKeyFixture(t, 5)

	issued, err := service.Create(context.Background(), userID, "billing", []string{PermissionRead}, "7D")
	require.NoError(t, err)

	key, err := service.Get(context.Background(), userID, issued.Key.ID)
	require.NoError(t, err)
	require.Equal(t, issued.Key.ID, key.ID)
	require.Equal(t, "billing", key.Name)

	otherID, err := db.User().Insert(context.Background(), &models.User{
		FirstName:      "Chidi",
		LastName:       "Eze",
		Email:          "chidi@example.com",
		HashedPassword: "x",
	})
	require.NoError(t, err)

	_, err = service.Get(context.Background(), otherID, issued.Key.ID)
	require.ErrorIs(t, err, ErrKeyNotFound)

	_, err = service.Get(context.Background(), userID, "missing-id")
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestCreateKeyRejectsUnknownPermission(t *testing.T) {
	service, _, _, userID := newKeyFixture(t, 5)

	_, err := service.Create(context.Background(), userID, "bad", []string{"admin"}, "7D")
	require.ErrorIs(t, err, ErrInvalidPermissions)
}

func TestCreateKeyEnforcesQuota(t *testing.T) {
	service, _, _, userID := newKeyFixture(t, 2)

	for i := 0; i < 2; i++ {
		_, err := service.Create(context.Background(), userID, "key", []string{PermissionRead}, "7D")
		require.NoError(t, err)
	}

	_, err := service.Create(context.Background(), userID, "one-too-many", []string{PermissionRead}, "7D")
	require.ErrorIs(t, err, ErrKeyLimitReached)
}

func TestQuotaCountsOnlyActiveKeys(t *testing.T) {
	service, _, _, userID := newKeyFixture(t, 1)

	issued, err := service.Create(context.Background(), userID, "key", []string{PermissionRead}, "7D")
	require.NoError(t, err)

	_, err = service.Revoke(context.Background(), userID, issued.Key.ID)
	require.NoError(t, err)

	// A revoked key frees its quota slot.
	_, err = service.Create(context.Background(), userID, "replacement", []string{PermissionRead}, "7D")
	require.NoError(t, err)
}

func TestRevokedKeyIsRejected(t *testing.T) {
	service, gate, _, userID := newKeyFixture(t, 5)

	issued, err := service.Create(context.Background(), userID, "key", []string{PermissionRead}, "7D")
	require.NoError(t, err)

	_, err = service.Revoke(context.Background(), userID, issued.Key.ID)
	require.NoError(t, err)

	_, err = gate.VerifyAPIKey(context.Background(), issued.Secret)
	require.ErrorIs(t, err, ErrRevoked)

	// Revocation is terminal.
	_, err = service.Revoke(context.Background(), userID, issued.Key.ID)
	require.ErrorIs(t, err, ErrRevoked)
}

func TestRevokeOtherUsersKey(t *testing.T) {
	service, _, db, userID := newKeyFixture(t, 5)

	otherID, err := db.User().Insert(context.Background(), &models.User{
		FirstName:      "Eze",
		LastName:       "Nna",
		Email:          "eze@example.com",
		HashedPassword: "x",
	})
	require.NoError(t, err)

	issued, err := service.Create(context.Background(), userID, "key", []string{PermissionRead}, "7D")
	require.NoError(t, err)

	_, err = service.Revoke(context.Background(), otherID, issued.Key.ID)
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestExpiredKeyIsRejected(t *testing.T) {
	_, gate, db, userID := newKeyFixture(t, 5)

	secret := "sk_live_expired-secret"
	_, err := db.APIKey().Insert(context.Background(), &models.APIKey{
		UserID:      userID,
		Name:        "stale",
		KeyHash:     HashSecret(secret),
		Permissions: models.Permissions{PermissionRead},
		ExpiresAt:   time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	_, err = gate.VerifyAPIKey(context.Background(), secret)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestRolloverInheritsPermissionsAndRevokesOld(t *testing.T) {
	service, gate, _, userID := newKeyFixture(t, 5)

	old, err := service.Create(context.Background(), userID, "integration", []string{PermissionDeposit, PermissionRead}, "7D")
	require.NoError(t, err)

	rolled, err := service.Rollover(context.Background(), userID, old.Key.ID, "30Min")
	require.NoError(t, err)

	require.NotEqual(t, old.Key.ID, rolled.Key.ID)
	require.NotEqual(t, old.Secret, rolled.Secret)
	require.Equal(t, old.Key.Name, rolled.Key.Name)
	require.Equal(t, old.Key.Permissions, rolled.Key.Permissions)

	// The old secret stops working the moment the new one exists.
	_, err = gate.VerifyAPIKey(context.Background(), old.Secret)
	require.ErrorIs(t, err, ErrRevoked)

	authCtx, err := gate.VerifyAPIKey(context.Background(), rolled.Secret)
	require.NoError(t, err)
	require.True(t, authCtx.Can(PermissionDeposit))
	require.False(t, authCtx.Can(PermissionTransfer))
}

func TestRolloverRevokedKey(t *testing.T) {
	service, _, _, userID := newKeyFixture(t, 5)

	issued, err := service.Create(context.Background(), userID, "key", []string{PermissionRead}, "7D")
	require.NoError(t, err)

	_, err = service.Revoke(context.Background(), userID, issued.Key.ID)
	require.NoError(t, err)

	_, err = service.Rollover(context.Background(), userID, issued.Key.ID, "7D")
	require.ErrorIs(t, err, ErrRevoked)
}

func TestParseExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		duration string
		want     time.Time
	}{
		{"30Min", now.Add(30 * time.Minute)},
		{"12H", now.Add(12 * time.Hour)},
		{"7D", now.AddDate(0, 0, 7)},
		{"3M", now.AddDate(0, 3, 0)},
		{"1Y", now.AddDate(1, 0, 0)},
	}

	for _, tt := range tests {
		got, err := ParseExpiry(tt.duration, now)
		require.NoError(t, err, tt.duration)
		require.Equal(t, tt.want, got, tt.duration)
	}

	for _, bad := range []string{"", "7", "D7", "-1D", "0H", "7W"} {
		_, err := ParseExpiry(bad, now)
		require.ErrorIs(t, err, ErrInvalidExpiry, bad)
	}
}
