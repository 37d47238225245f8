// Package postgres implements the core's repository contracts on
// PostgreSQL through database/sql with the pgx driver.
package postgres

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
)

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "[postgres.Open] sql.Open")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "[postgres.Open] ping")
	}
	return db, nil
}

const schema = `
create table if not exists oauth_clients (
	id            text primary key,
	client_type   text not null,
	name          text not null,
	secret_hash   text not null,
	tenant_id     bigint,
	redirect_uris jsonb not null default '[]',
	scopes        jsonb not null default '[]',
	status        text not null default 'active',
	created_at    timestamptz not null default now()
);

create table if not exists authorization_codes (
	code                  text primary key,
	client_id             text not null references oauth_clients(id),
	user_id               bigint not null,
	redirect_uri          text not null,
	scopes                jsonb not null default '[]',
	code_challenge        text not null default '',
	code_challenge_method text not null default '',
	issued_at             timestamptz not null,
	expires_at            timestamptz not null,
	used                  boolean not null default false
);

create table if not exists access_tokens (
	token_hash text primary key,
	client_id  text not null,
	user_id    bigint not null,
	scopes     jsonb not null default '[]',
	issued_at  timestamptz not null,
	expires_at timestamptz not null,
	revoked    boolean not null default false
);

create table if not exists refresh_tokens (
	token_hash text primary key,
	client_id  text not null,
	user_id    bigint not null,
	scopes     jsonb not null default '[]',
	issued_at  timestamptz not null,
	expires_at timestamptz not null,
	revoked    boolean not null default false
);

create table if not exists totp_credentials (
	user_id            bigint primary key,
	status             text not null default 'disabled',
	secret             text not null default '',
	backup_code_hashes jsonb not null default '[]',
	failed_attempts    int not null default 0,
	locked_until       timestamptz,
	last_verified_at   timestamptz
);

create table if not exists roles (
	id          text primary key,
	name        text not null unique,
	rank        int not null default 0,
	tenant_id   bigint,
	permissions jsonb not null default '[]',
	disabled    boolean not null default false
);
`

// EnsureSchema creates the core's tables if they do not exist. Business
// tables (employees, drivers, paysheets, and the users table itself) are
// owned and migrated elsewhere.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "[postgres.EnsureSchema] exec")
	}
	return nil
}

// Store bundles the repository implementations over one connection pool.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Clients() *ClientStore         { return &ClientStore{db: s.db} }
func (s *Store) Codes() *CodeStore             { return &CodeStore{db: s.db} }
func (s *Store) Tokens() *TokenStore           { return &TokenStore{db: s.db} }
func (s *Store) Credentials() *CredentialStore { return &CredentialStore{db: s.db} }
func (s *Store) Roles() *RoleStore             { return &RoleStore{db: s.db} }
func (s *Store) Directory() *DirectoryStore    { return &DirectoryStore{db: s.db} }
