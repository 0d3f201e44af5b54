package auth

import (
	"errors"

	"github.com/kudiwallet/kudi/internal/models"
)

// capabilities a credential can hold
const (
	PermissionDeposit  = "deposit"
	PermissionTransfer = "transfer"
	PermissionRead     = "read"
)

// AllPermissions is the full capability set granted to session credentials.
var AllPermissions = models.Permissions{PermissionDeposit, PermissionTransfer, PermissionRead}

// credential kinds
const (
	CredentialSession = "session"
	CredentialAPIKey  = "api_key"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("credential has expired")
	ErrRevoked            = errors.New("credential has been revoked")
	ErrForbidden          = errors.New("permission denied")

	ErrKeyNotFound        = errors.New("api key not found")
	ErrKeyLimitReached    = errors.New("maximum number of active api keys reached")
	ErrInvalidExpiry      = errors.New("invalid expiry duration")
	ErrInvalidPermissions = errors.New("invalid permission set")
)

// Context is the resolved authority of an inbound request: who the principal
// is and what the credential allows. Capability checks always happen before
// any unit of work begins.
type Context struct {
	UserID      string
	Email       string
	Credential  string
	Permissions models.Permissions
}

// Can reports whether the credential carries the given capability. Session
// credentials carry the full default set.
func (c *Context) Can(permission string) bool {
	if c.Credential == CredentialSession {
		return true
	}
	return c.Permissions.Has(permission)
}
