package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"time"

	"github.com/pkg/errors"
)

// ChallengeMethod is the PKCE transformation recorded with a code.
type ChallengeMethod string

const (
	ChallengeMethodNone  ChallengeMethod = ""
	ChallengeMethodPlain ChallengeMethod = "plain"
	ChallengeMethodS256  ChallengeMethod = "S256"
)

const opaqueTokenBytes = 32

// AuthorizationCode is a single-use grant binding a user's approval to one
// client, one redirect URI, and one scope set. Once exchanged, Used is
// permanently true; expiry cannot resurrect it.
type AuthorizationCode struct {
	Code                string          `json:"code"`
	ClientID            string          `json:"client_id"`
	UserID              int64           `json:"user_id"`
	RedirectURI         string          `json:"redirect_uri"`
	Scopes              []string        `json:"scopes"`
	CodeChallenge       string          `json:"code_challenge,omitempty"`
	CodeChallengeMethod ChallengeMethod `json:"code_challenge_method,omitempty"`
	IssuedAt            time.Time       `json:"issued_at"`
	ExpiresAt           time.Time       `json:"expires_at"`
	Used                bool            `json:"used"`
}

// AccessToken is the short-lived credential record. Only the SHA-256 hash
// of the opaque value is stored.
type AccessToken struct {
	TokenHash string    `json:"token_hash"`
	ClientID  string    `json:"client_id"`
	UserID    int64     `json:"user_id"`
	Scopes    []string  `json:"scopes"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
}

// RefreshToken is the long-lived counterpart. Valid only while !Revoked
// and unexpired.
type RefreshToken struct {
	TokenHash string    `json:"token_hash"`
	ClientID  string    `json:"client_id"`
	UserID    int64     `json:"user_id"`
	Scopes    []string  `json:"scopes"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
}

// TokenPair is what a successful exchange or refresh returns to the
// client: the plaintext opaque values, which are never stored.
type TokenPair struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token,omitempty"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int      `json:"expires_in"`
	Scopes       []string `json:"scope,omitempty"`
}

// newOpaqueValue generates a high-entropy token or code value.
func newOpaqueValue() (string, error) {
	buf := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "[newOpaqueValue] rand.Read")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// hashToken fingerprints an opaque value for storage and lookup so a
// leaked store cannot be replayed directly.
func hashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
