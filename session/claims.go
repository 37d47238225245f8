package session

import (
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the closed claim set embedded in a session token. Every field
// is fixed at issuance: the permission list is a point-in-time snapshot,
// never re-resolved during validation.
type Claims struct {
	TenantID    *int64   `json:"tenant,omitempty"`
	DisplayName string   `json:"name,omitempty"`
	PrimaryRole string   `json:"role,omitempty"`
	Permissions []string `json:"permissions"`

	jwt.RegisteredClaims
}

// UserID parses the numeric subject claim.
func (c *Claims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// HasPermission checks the embedded snapshot.
func (c *Claims) HasPermission(permission string) bool {
	for _, p := range c.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}
