package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/kudiwallet/kudi/internal/models"
	"github.com/kudiwallet/kudi/internal/repository"
)

const keySecretPrefix = "sk_live_"

// KeyService manages the lifecycle of service credentials. Permission sets
// are immutable after creation; rollover is the only way to replace them
// with a new key.
type KeyService struct {
	db         repository.Database
	maxPerUser int
	logger     *slog.Logger
}

func NewKeyService(db repository.Database, maxPerUser int, logger *slog.Logger) *KeyService {
	return &KeyService{
		db:         db,
		maxPerUser: maxPerUser,
		logger:     logger,
	}
}

// IssuedKey carries the plaintext secret exactly once, at creation time.
// Only its hash is persisted.
type IssuedKey struct {
	Key    *models.APIKey
	Secret string
}

func (s *KeyService) Create(ctx context.Context, userID, name string, permissions []string, expiry string) (*IssuedKey, error) {
	for _, permission := range permissions {
		if !AllPermissions.Has(permission) {
			return nil, ErrInvalidPermissions
		}
	}

	expiresAt, err := ParseExpiry(expiry, time.Now())
	if err != nil {
		return nil, err
	}

	var issued *IssuedKey

	err = s.db.InTx(ctx, func(store repository.Store) error {
		active, err := store.APIKey().CountActive(ctx, userID, time.Now())
		if err != nil {
			return err
		}
		if active >= s.maxPerUser {
			return ErrKeyLimitReached
		}

		secret, err := generateSecret()
		if err != nil {
			return err
		}

		key, err := store.APIKey().Insert(ctx, &models.APIKey{
			UserID:      userID,
			Name:        name,
			KeyHash:     HashSecret(secret),
			Permissions: permissions,
			ExpiresAt:   expiresAt,
		})
		if err != nil {
			return err
		}

		issued = &IssuedKey{Key: key, Secret: secret}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("api key created", "user_id", userID, "key_id", issued.Key.ID)

	return issued, nil
}

func (s *KeyService) List(ctx context.Context, userID string) ([]models.APIKey, error) {
	return s.db.APIKey().ListByUserID(ctx, userID)
}

// Get returns one of the caller's keys. Another user's key reads as not
// found, never as forbidden.
func (s *KeyService) Get(ctx context.Context, userID, keyID string) (*models.APIKey, error) {
	key, found, err := s.db.APIKey().GetOne(ctx, keyID)
	if err != nil {
		return nil, err
	}
	if !found || key.UserID != userID {
		return nil, ErrKeyNotFound
	}

	return key, nil
}

// Revoke marks the key revoked. Revocation is terminal.
func (s *KeyService) Revoke(ctx context.Context, userID, keyID string) (*models.APIKey, error) {
	key, found, err := s.db.APIKey().GetOne(ctx, keyID)
	if err != nil {
		return nil, err
	}
	if !found || key.UserID != userID {
		return nil, ErrKeyNotFound
	}
	if key.Revoked {
		return nil, ErrRevoked
	}

	if err := s.db.APIKey().Revoke(ctx, keyID); err != nil {
		return nil, err
	}
	key.Revoked = true

	s.logger.Info("api key revoked", "user_id", userID, "key_id", keyID)

	return key, nil
}

// Rollover replaces a key with a fresh secret carrying the same permission
// set. The old key is revoked and the replacement inserted in one unit of
// work, so there is no moment where both (or neither) are usable.
func (s *KeyService) Rollover(ctx context.Context, userID, keyID, expiry string) (*IssuedKey, error) {
	expiresAt, err := ParseExpiry(expiry, time.Now())
	if err != nil {
		return nil, err
	}

	var issued *IssuedKey

	err = s.db.InTx(ctx, func(store repository.Store) error {
		old, found, err := store.APIKey().GetOne(ctx, keyID)
		if err != nil {
			return err
		}
		if !found || old.UserID != userID {
			return ErrKeyNotFound
		}
		if old.Revoked {
			return ErrRevoked
		}

		if err := store.APIKey().Revoke(ctx, old.ID); err != nil {
			return err
		}

		secret, err := generateSecret()
		if err != nil {
			return err
		}

		key, err := store.APIKey().Insert(ctx, &models.APIKey{
			UserID:      userID,
			Name:        old.Name,
			KeyHash:     HashSecret(secret),
			Permissions: old.Permissions,
			ExpiresAt:   expiresAt,
		})
		if err != nil {
			return err
		}

		issued = &IssuedKey{Key: key, Secret: secret}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("api key rolled over", "user_id", userID, "old_key_id", keyID, "new_key_id", issued.Key.ID)

	return issued, nil
}

// ParseExpiry parses a duration string such as "30Min", "12H", "7D", "3M"
// or "1Y" into an absolute expiry time.
func ParseExpiry(duration string, now time.Time) (time.Time, error) {
	duration = strings.TrimSpace(duration)

	if upper := strings.ToUpper(duration); strings.HasSuffix(upper, "MIN") {
		value, err := strconv.Atoi(duration[:len(duration)-3])
		if err != nil || value <= 0 {
			return time.Time{}, ErrInvalidExpiry
		}
		return now.Add(time.Duration(value) * time.Minute), nil
	}

	if len(duration) < 2 {
		return time.Time{}, ErrInvalidExpiry
	}

	value, err := strconv.Atoi(duration[:len(duration)-1])
	if err != nil || value <= 0 {
		return time.Time{}, ErrInvalidExpiry
	}

	switch strings.ToUpper(duration[len(duration)-1:]) {
	case "H":
		return now.Add(time.Duration(value) * time.Hour), nil
	case "D":
		return now.AddDate(0, 0, value), nil
	case "M":
		return now.AddDate(0, value, 0), nil
	case "Y":
		return now.AddDate(value, 0, 0), nil
	default:
		return time.Time{}, ErrInvalidExpiry
	}
}

func generateSecret() (string, error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}

	return keySecretPrefix + base64.RawURLEncoding.EncodeToString(randomBytes), nil
}
