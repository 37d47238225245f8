package oauth

import "errors"

var (
	// ErrInvalidGrant covers every exchange/refresh failure visible to a
	// client: unknown code, replayed code, expired code, wrong client,
	// wrong redirect URI, failed PKCE, dead refresh token. The causes
	// stay indistinguishable at this boundary.
	ErrInvalidGrant = errors.New("invalid grant")

	// ErrInvalidToken is the generic access-token validation failure.
	ErrInvalidToken = errors.New("invalid token")

	ErrInvalidClient      = errors.New("invalid client")
	ErrClientSuspended    = errors.New("client suspended")
	ErrInvalidRedirectURI = errors.New("redirect uri not registered")
	ErrInvalidScope       = errors.New("invalid scope")
	ErrPKCERequired       = errors.New("pkce required for public clients")

	// Repo-level sentinels, mapped to the generic errors above before they
	// leave the Service.
	ErrClientNotFound  = errors.New("client not found")
	ErrCodeNotFound    = errors.New("authorization code not found")
	ErrCodeAlreadyUsed = errors.New("authorization code already used")
	ErrTokenNotFound   = errors.New("token not found")
)
