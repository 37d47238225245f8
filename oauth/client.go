package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

type ClientType string

const (
	ClientTypeConfidential ClientType = "confidential" // Can keep secrets (server-side apps)
	ClientTypePublic       ClientType = "public"       // Cannot keep secrets (SPAs, mobile apps)
)

type ClientStatus string

const (
	ClientStatusActive    ClientStatus = "active"
	ClientStatusSuspended ClientStatus = "suspended"
)

const clientSecretBytes = 32

// Client is a registered third-party integration. The secret is stored
// only as a bcrypt hash; the plaintext exists once, at registration or
// rotation, and is never recoverable or silently updated in place.
type Client struct {
	ID           string       `json:"id"`
	Type         ClientType   `json:"type"`
	Name         string       `json:"name"`
	SecretHash   string       `json:"-"`
	TenantID     *int64       `json:"tenant_id,omitempty"`
	RedirectURIs []string     `json:"redirect_uris"`
	Scopes       []string     `json:"scopes"`
	Status       ClientStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
}

// IsPublic returns true if the client cannot hold a secret.
func (c *Client) IsPublic() bool {
	return c.Type == ClientTypePublic
}

// AllowsRedirectURI checks the registered allow-list. Matching is exact,
// with no prefix, substring, or wildcard forms.
func (c *Client) AllowsRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// HasScope checks whether the client may request a specific scope.
func (c *Client) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// AllowsScopes checks that every requested scope is registered for this
// client.
func (c *Client) AllowsScopes(requested []string) error {
	for _, scope := range requested {
		if !c.HasScope(scope) {
			return ErrInvalidScope
		}
	}
	return nil
}

// VerifySecret compares a presented secret against the stored hash.
func (c *Client) VerifySecret(secret string) bool {
	if c.SecretHash == "" || secret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.SecretHash), []byte(secret)) == nil
}

func validateRedirectURIs(uris []string) error {
	if len(uris) == 0 {
		return errors.Wrap(ErrInvalidRedirectURI, "at least one redirect URI is required")
	}
	for _, raw := range uris {
		u, err := url.Parse(raw)
		if err != nil {
			return errors.Wrapf(ErrInvalidRedirectURI, "redirect URI %q", raw)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.Wrapf(ErrInvalidRedirectURI, "redirect URI %q must be http or https", raw)
		}
		if u.Fragment != "" {
			return errors.Wrapf(ErrInvalidRedirectURI, "redirect URI %q must not contain a fragment", raw)
		}
	}
	return nil
}

// newClientSecret generates the opaque plaintext secret handed to the
// client operator and the bcrypt hash kept at rest.
func newClientSecret() (secret, hash string, err error) {
	buf := make([]byte, clientSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", errors.Wrap(err, "[newClientSecret] rand.Read")
	}
	secret = base64.RawURLEncoding.EncodeToString(buf)

	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", "", errors.Wrap(err, "[newClientSecret] bcrypt.GenerateFromPassword")
	}
	return secret, string(hashed), nil
}
