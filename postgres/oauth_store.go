package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/fleetdesk/authcore/oauth"
)

var _ oauth.ClientRepo = (*ClientStore)(nil)

// ClientStore implements oauth.ClientRepo.
type ClientStore struct {
	db *sql.DB
}

func (s *ClientStore) Upsert(ctx context.Context, client *oauth.Client) error {
	redirectURIs, _ := json.Marshal(client.RedirectURIs)
	scopes, _ := json.Marshal(client.Scopes)
	_, err := s.db.ExecContext(ctx,
		`insert into oauth_clients(id, client_type, name, secret_hash, tenant_id, redirect_uris, scopes, status, created_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 on conflict (id) do update set
		   client_type = excluded.client_type,
		   name = excluded.name,
		   secret_hash = excluded.secret_hash,
		   tenant_id = excluded.tenant_id,
		   redirect_uris = excluded.redirect_uris,
		   scopes = excluded.scopes,
		   status = excluded.status`,
		client.ID, client.Type, client.Name, client.SecretHash, client.TenantID,
		redirectURIs, scopes, client.Status, client.CreatedAt,
	)
	return errors.Wrap(err, "[ClientStore.Upsert] exec")
}

func (s *ClientStore) Get(ctx context.Context, clientID string) (*oauth.Client, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, client_type, name, secret_hash, tenant_id, redirect_uris, scopes, status, created_at
		 from oauth_clients where id = $1`, clientID)

	var (
		client       oauth.Client
		redirectURIs []byte
		scopes       []byte
	)
	if err := row.Scan(&client.ID, &client.Type, &client.Name, &client.SecretHash, &client.TenantID,
		&redirectURIs, &scopes, &client.Status, &client.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, oauth.ErrClientNotFound
		}
		return nil, errors.Wrap(err, "[ClientStore.Get] scan")
	}
	_ = json.Unmarshal(redirectURIs, &client.RedirectURIs)
	_ = json.Unmarshal(scopes, &client.Scopes)
	return &client, nil
}

func (s *ClientStore) List(ctx context.Context, offset, limit int) ([]*oauth.Client, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, client_type, name, secret_hash, tenant_id, redirect_uris, scopes, status, created_at
		 from oauth_clients order by created_at asc offset $1 limit $2`, offset, limit)
	if err != nil {
		return nil, errors.Wrap(err, "[ClientStore.List] query")
	}
	defer rows.Close()

	var clients []*oauth.Client
	for rows.Next() {
		var (
			client       oauth.Client
			redirectURIs []byte
			scopes       []byte
		)
		if err := rows.Scan(&client.ID, &client.Type, &client.Name, &client.SecretHash, &client.TenantID,
			&redirectURIs, &scopes, &client.Status, &client.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "[ClientStore.List] scan")
		}
		_ = json.Unmarshal(redirectURIs, &client.RedirectURIs)
		_ = json.Unmarshal(scopes, &client.Scopes)
		clients = append(clients, &client)
	}
	return clients, rows.Err()
}

var _ oauth.CodeRepo = (*CodeStore)(nil)

// CodeStore implements oauth.CodeRepo. The single-use guarantee rides on
// MarkUsed's conditional update.
type CodeStore struct {
	db *sql.DB
}

func (s *CodeStore) Insert(ctx context.Context, code *oauth.AuthorizationCode) error {
	scopes, _ := json.Marshal(code.Scopes)
	_, err := s.db.ExecContext(ctx,
		`insert into authorization_codes(code, client_id, user_id, redirect_uri, scopes, code_challenge, code_challenge_method, issued_at, expires_at, used)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		code.Code, code.ClientID, code.UserID, code.RedirectURI, scopes,
		code.CodeChallenge, code.CodeChallengeMethod, code.IssuedAt, code.ExpiresAt, code.Used,
	)
	return errors.Wrap(err, "[CodeStore.Insert] exec")
}

func (s *CodeStore) Get(ctx context.Context, code string) (*oauth.AuthorizationCode, error) {
	row := s.db.QueryRowContext(ctx,
		`select code, client_id, user_id, redirect_uri, scopes, code_challenge, code_challenge_method, issued_at, expires_at, used
		 from authorization_codes where code = $1`, code)

	var (
		record oauth.AuthorizationCode
		scopes []byte
	)
	if err := row.Scan(&record.Code, &record.ClientID, &record.UserID, &record.RedirectURI, &scopes,
		&record.CodeChallenge, &record.CodeChallengeMethod, &record.IssuedAt, &record.ExpiresAt, &record.Used); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, oauth.ErrCodeNotFound
		}
		return nil, errors.Wrap(err, "[CodeStore.Get] scan")
	}
	_ = json.Unmarshal(scopes, &record.Scopes)
	return &record, nil
}

// MarkUsed flips used only when it is still false. Two concurrent
// exchanges race on this row update; the loser sees zero affected rows
// and gets ErrCodeAlreadyUsed.
func (s *CodeStore) MarkUsed(ctx context.Context, code string) error {
	result, err := s.db.ExecContext(ctx,
		`update authorization_codes set used = true where code = $1 and used = false`, code)
	if err != nil {
		return errors.Wrap(err, "[CodeStore.MarkUsed] exec")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "[CodeStore.MarkUsed] rows affected")
	}
	if affected == 1 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from authorization_codes where code = $1)`, code).Scan(&exists); err != nil {
		return errors.Wrap(err, "[CodeStore.MarkUsed] exists scan")
	}
	if exists {
		return oauth.ErrCodeAlreadyUsed
	}
	return oauth.ErrCodeNotFound
}

var _ oauth.TokenRepo = (*TokenStore)(nil)

// TokenStore implements oauth.TokenRepo.
type TokenStore struct {
	db *sql.DB
}

func (s *TokenStore) InsertAccess(ctx context.Context, token *oauth.AccessToken) error {
	return s.insert(ctx, "access_tokens", token.TokenHash, token.ClientID, token.UserID, token.Scopes, token.IssuedAt, token.ExpiresAt, token.Revoked)
}

func (s *TokenStore) InsertRefresh(ctx context.Context, token *oauth.RefreshToken) error {
	return s.insert(ctx, "refresh_tokens", token.TokenHash, token.ClientID, token.UserID, token.Scopes, token.IssuedAt, token.ExpiresAt, token.Revoked)
}

func (s *TokenStore) insert(ctx context.Context, table, hash, clientID string, userID int64, scopes []string, issuedAt, expiresAt interface{}, revoked bool) error {
	scopesJSON, _ := json.Marshal(scopes)
	_, err := s.db.ExecContext(ctx,
		`insert into `+table+`(token_hash, client_id, user_id, scopes, issued_at, expires_at, revoked)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		hash, clientID, userID, scopesJSON, issuedAt, expiresAt, revoked,
	)
	return errors.Wrapf(err, "[TokenStore.insert] %s", table)
}

func (s *TokenStore) GetAccess(ctx context.Context, tokenHash string) (*oauth.AccessToken, error) {
	var (
		token  oauth.AccessToken
		scopes []byte
	)
	row := s.db.QueryRowContext(ctx,
		`select token_hash, client_id, user_id, scopes, issued_at, expires_at, revoked
		 from access_tokens where token_hash = $1`, tokenHash)
	if err := row.Scan(&token.TokenHash, &token.ClientID, &token.UserID, &scopes, &token.IssuedAt, &token.ExpiresAt, &token.Revoked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, oauth.ErrTokenNotFound
		}
		return nil, errors.Wrap(err, "[TokenStore.GetAccess] scan")
	}
	_ = json.Unmarshal(scopes, &token.Scopes)
	return &token, nil
}

func (s *TokenStore) GetRefresh(ctx context.Context, tokenHash string) (*oauth.RefreshToken, error) {
	var (
		token  oauth.RefreshToken
		scopes []byte
	)
	row := s.db.QueryRowContext(ctx,
		`select token_hash, client_id, user_id, scopes, issued_at, expires_at, revoked
		 from refresh_tokens where token_hash = $1`, tokenHash)
	if err := row.Scan(&token.TokenHash, &token.ClientID, &token.UserID, &scopes, &token.IssuedAt, &token.ExpiresAt, &token.Revoked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, oauth.ErrTokenNotFound
		}
		return nil, errors.Wrap(err, "[TokenStore.GetRefresh] scan")
	}
	_ = json.Unmarshal(scopes, &token.Scopes)
	return &token, nil
}

func (s *TokenStore) RevokeAccess(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx,
		`update access_tokens set revoked = true where token_hash = $1`, tokenHash)
	return errors.Wrap(err, "[TokenStore.RevokeAccess] exec")
}

func (s *TokenStore) RevokeRefresh(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked = true where token_hash = $1`, tokenHash)
	return errors.Wrap(err, "[TokenStore.RevokeRefresh] exec")
}
