package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/pascaldekloe/jwt"

	"github.com/kudiwallet/kudi/internal/models"
	"github.com/kudiwallet/kudi/internal/repository"
)

// Gate resolves inbound credentials (session tokens and api keys) into a
// Context. It is the only component that inspects raw credentials.
type Gate struct {
	db        repository.Database
	secretKey string
	baseURL   string
}

func NewGate(db repository.Database, secretKey, baseURL string) *Gate {
	return &Gate{
		db:        db,
		secretKey: secretKey,
		baseURL:   baseURL,
	}
}

// IssueSessionToken signs a session JWT for the user.
func (g *Gate) IssueSessionToken(user *models.User, ttl time.Duration) (string, time.Time, error) {
	var claims jwt.Claims
	claims.Subject = user.ID

	expiry := time.Now().Add(ttl)
	claims.Issued = jwt.NewNumericTime(time.Now())
	claims.NotBefore = jwt.NewNumericTime(time.Now())
	claims.Expires = jwt.NewNumericTime(expiry)

	claims.Issuer = g.baseURL
	claims.Audiences = []string{g.baseURL}

	jwtBytes, err := claims.HMACSign(jwt.HS256, []byte(g.secretKey))
	if err != nil {
		return "", time.Time{}, err
	}

	return string(jwtBytes), expiry, nil
}

// VerifySession resolves a session JWT into a Context carrying the full
// default capability set.
func (g *Gate) VerifySession(ctx context.Context, token string) (*Context, error) {
	claims, err := jwt.HMACCheck([]byte(token), []byte(g.secretKey))
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if claims.Expires != nil && !claims.Expires.Time().After(time.Now()) {
		return nil, ErrTokenExpired
	}

	if !claims.Valid(time.Now()) {
		return nil, ErrInvalidCredentials
	}

	if claims.Issuer != g.baseURL || !claims.AcceptAudience(g.baseURL) {
		return nil, ErrInvalidCredentials
	}

	user, found, err := g.db.User().GetOne(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrInvalidCredentials
	}
	if user.Status != repository.UserAccountActiveStatus {
		return nil, ErrRevoked
	}

	return &Context{
		UserID:      user.ID,
		Email:       user.Email,
		Credential:  CredentialSession,
		Permissions: AllPermissions,
	}, nil
}

// VerifyAPIKey resolves a service credential into a Context scoped to the
// key's stored permission set. Only the SHA-256 digest of the secret is ever
// compared against storage.
func (g *Gate) VerifyAPIKey(ctx context.Context, secret string) (*Context, error) {
	key, found, err := g.db.APIKey().GetByHash(ctx, HashSecret(secret))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrInvalidCredentials
	}

	if key.Revoked {
		return nil, ErrRevoked
	}
	if key.IsExpired(time.Now()) {
		return nil, ErrTokenExpired
	}

	user, found, err := g.db.User().GetOne(ctx, key.UserID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrInvalidCredentials
	}
	if user.Status != repository.UserAccountActiveStatus {
		return nil, ErrRevoked
	}

	return &Context{
		UserID:      user.ID,
		Email:       user.Email,
		Credential:  CredentialAPIKey,
		Permissions: key.Permissions,
	}, nil
}

func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
