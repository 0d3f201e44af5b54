package models

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

type APIKey struct {
	ID          string       `db:"id"`
	UserID      string       `db:"user_id"`
	Name        string       `db:"name"`
	KeyHash     string       `db:"key_hash"`
	Permissions Permissions  `db:"permissions"`
	ExpiresAt   time.Time    `db:"expires_at"`
	Revoked     bool         `db:"revoked"`
	CreatedAt   time.Time    `db:"created_at"`
	UpdatedAt   sql.NullTime `db:"updated_at"`
}

func (k *APIKey) IsExpired(now time.Time) bool {
	return !k.ExpiresAt.After(now)
}

// Permissions is the key's capability set, stored as JSONB.
type Permissions []string

func (p Permissions) Has(permission string) bool {
	return slices.Contains(p, permission)
}

func (p Permissions) Value() (driver.Value, error) {
	if p == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal(p)
}

func (p *Permissions) Scan(value any) error {
	if value == nil {
		*p = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	default:
		return fmt.Errorf("unsupported type for permissions: %T", value)
	}
}
