package oauth

import "context"

// ClientRepo persists registered clients.
type ClientRepo interface {
	Upsert(ctx context.Context, client *Client) error
	Get(ctx context.Context, clientID string) (*Client, error)
	List(ctx context.Context, offset, limit int) ([]*Client, error)
}

// CodeRepo persists authorization codes. MarkUsed must flip used from
// false to true atomically: under concurrent exchange attempts for the
// same code, exactly one caller gets nil and every other caller gets
// ErrCodeAlreadyUsed.
type CodeRepo interface {
	Insert(ctx context.Context, code *AuthorizationCode) error
	Get(ctx context.Context, code string) (*AuthorizationCode, error)
	MarkUsed(ctx context.Context, code string) error
}

// TokenRepo persists access and refresh token records, keyed by token
// hash. Revocation is idempotent: revoking an already-revoked token is
// not an error.
type TokenRepo interface {
	InsertAccess(ctx context.Context, token *AccessToken) error
	InsertRefresh(ctx context.Context, token *RefreshToken) error
	GetAccess(ctx context.Context, tokenHash string) (*AccessToken, error)
	GetRefresh(ctx context.Context, tokenHash string) (*RefreshToken, error)
	RevokeAccess(ctx context.Context, tokenHash string) error
	RevokeRefresh(ctx context.Context, tokenHash string) error
}
