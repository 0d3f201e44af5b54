package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kudiwallet/kudi/internal/models"
	"github.com/kudiwallet/kudi/internal/repository"
)

func newGateFixture(t *testing.T) (*Gate, repository.Database, *models.User) {
	t.Helper()

	db := repository.NewMemoryDatabase()

	userID, err := db.User().Insert(context.Background(), &models.User{
		FirstName:      "Ada",
		LastName:       "Obi",
		Email:          "ada@example.com",
		HashedPassword: "x",
	})
	require.NoError(t, err)

	user, found, err := db.User().GetOne(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, found)

	return NewGate(db, "test-secret-key", "http://localhost:4444"), db, user
}

func TestSessionTokenRoundTrip(t *testing.T) {
	gate, _, user := newGateFixture(t)

	token, expiresAt, err := gate.IssueSessionToken(user, time.Hour)
	require.NoError(t, err)
	require.True(t, expiresAt.After(time.Now()))

	authCtx, err := gate.VerifySession(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, user.ID, authCtx.UserID)
	require.Equal(t, user.Email, authCtx.Email)
	require.Equal(t, CredentialSession, authCtx.Credential)

	// Sessions carry the full capability set.
	require.True(t, authCtx.Can(PermissionDeposit))
	require.True(t, authCtx.Can(PermissionTransfer))
	require.True(t, authCtx.Can(PermissionRead))
}

func TestSessionTokenTampered(t *testing.T) {
	gate, _, user := newGateFixture(t)

	token, _, err := gate.IssueSessionToken(user, time.Hour)
	require.NoError(t, err)

	_, err = gate.VerifySession(context.Background(), token+"x")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSessionTokenExpired(t *testing.T) {
	gate, _, user := newGateFixture(t)

	token, _, err := gate.IssueSessionToken(user, -time.Minute)
	require.NoError(t, err)

	_, err = gate.VerifySession(context.Background(), token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestSessionTokenWrongIssuer(t *testing.T) {
	gate, db, user := newGateFixture(t)

	other := NewGate(db, "test-secret-key", "http://elsewhere:9999")
	token, _, err := other.IssueSessionToken(user, time.Hour)
	require.NoError(t, err)

	_, err = gate.VerifySession(context.Background(), token)
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLockedUserSessionRejected(t *testing.T) {
	gate, db, user := newGateFixture(t)

	token, _, err := gate.IssueSessionToken(user, time.Hour)
	require.NoError(t, err)

	require.NoError(t, db.User().Lock(context.Background(), user.ID))

	_, err = gate.VerifySession(context.Background(), token)
	require.ErrorIs(t, err, ErrRevoked)
}

func TestUnknownAPIKeyRejected(t *testing.T) {
	gate, _, _ := newGateFixture(t)

	_, err := gate.VerifyAPIKey(context.Background(), "sk_live_does-not-exist")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}
