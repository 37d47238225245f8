package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/fleetdesk/authcore/permissions"
	"github.com/fleetdesk/authcore/totp"
)

var _ totp.CredentialRepo = (*CredentialStore)(nil)

// CredentialStore implements totp.CredentialRepo. The failed-attempt
// counter is bumped server-side so concurrent verification attempts can
// never lose an increment.
type CredentialStore struct {
	db *sql.DB
}

func (s *CredentialStore) Get(ctx context.Context, userID int64) (*totp.Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`select user_id, status, secret, backup_code_hashes, failed_attempts, locked_until, last_verified_at
		 from totp_credentials where user_id = $1`, userID)

	var (
		credential totp.Credential
		hashes     []byte
	)
	if err := row.Scan(&credential.UserID, &credential.Status, &credential.Secret, &hashes,
		&credential.FailedAttempts, &credential.LockedUntil, &credential.LastVerifiedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, totp.ErrNotEnrolled
		}
		return nil, errors.Wrap(err, "[CredentialStore.Get] scan")
	}
	_ = json.Unmarshal(hashes, &credential.BackupCodeHashes)
	return &credential, nil
}

func (s *CredentialStore) Upsert(ctx context.Context, credential *totp.Credential) error {
	hashes, _ := json.Marshal(credential.BackupCodeHashes)
	_, err := s.db.ExecContext(ctx,
		`insert into totp_credentials(user_id, status, secret, backup_code_hashes, failed_attempts, locked_until, last_verified_at)
		 values($1,$2,$3,$4,$5,$6,$7)
		 on conflict (user_id) do update set
		   status = excluded.status,
		   secret = excluded.secret,
		   backup_code_hashes = excluded.backup_code_hashes,
		   failed_attempts = excluded.failed_attempts,
		   locked_until = excluded.locked_until,
		   last_verified_at = excluded.last_verified_at`,
		credential.UserID, credential.Status, credential.Secret, hashes,
		credential.FailedAttempts, credential.LockedUntil, credential.LastVerifiedAt,
	)
	return errors.Wrap(err, "[CredentialStore.Upsert] exec")
}

func (s *CredentialStore) IncrementFailedAttempts(ctx context.Context, userID int64) (int, error) {
	var failures int
	err := s.db.QueryRowContext(ctx,
		`update totp_credentials set failed_attempts = failed_attempts + 1
		 where user_id = $1 returning failed_attempts`, userID).Scan(&failures)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, totp.ErrNotEnrolled
	}
	if err != nil {
		return 0, errors.Wrap(err, "[CredentialStore.IncrementFailedAttempts] exec")
	}
	return failures, nil
}

func (s *CredentialStore) ResetFailedAttempts(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`update totp_credentials set failed_attempts = 0, locked_until = null where user_id = $1`, userID)
	return errors.Wrap(err, "[CredentialStore.ResetFailedAttempts] exec")
}

func (s *CredentialStore) SetLockedUntil(ctx context.Context, userID int64, until time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update totp_credentials set locked_until = $2 where user_id = $1`, userID, until)
	return errors.Wrap(err, "[CredentialStore.SetLockedUntil] exec")
}

// RemoveBackupCode deletes one hash from the credential's remaining set.
// The jsonb rewrite happens in a single statement keyed on the hash still
// being present, so a backup code consumed concurrently fails here rather
// than being honored twice.
func (s *CredentialStore) RemoveBackupCode(ctx context.Context, userID int64, hash string) error {
	result, err := s.db.ExecContext(ctx,
		`update totp_credentials
		 set backup_code_hashes = backup_code_hashes - $2
		 where user_id = $1 and backup_code_hashes ? $2`, userID, hash)
	if err != nil {
		return errors.Wrap(err, "[CredentialStore.RemoveBackupCode] exec")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "[CredentialStore.RemoveBackupCode] rows affected")
	}
	if affected == 0 {
		return totp.ErrInvalidCode
	}
	return nil
}

var _ permissions.RoleRepo = (*RoleStore)(nil)

// RoleStore implements permissions.RoleRepo.
type RoleStore struct {
	db *sql.DB
}

func (s *RoleStore) FindRolesByIDs(ctx context.Context, ids []string) ([]*permissions.Role, error) {
	idsJSON, _ := json.Marshal(ids)
	rows, err := s.db.QueryContext(ctx,
		`select id, name, rank, tenant_id, permissions, disabled
		 from roles where id in (select jsonb_array_elements_text($1::jsonb))`, idsJSON)
	if err != nil {
		return nil, errors.Wrap(err, "[RoleStore.FindRolesByIDs] query")
	}
	defer rows.Close()

	var roles []*permissions.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (s *RoleStore) FindRoleByName(ctx context.Context, name string) (*permissions.Role, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, rank, tenant_id, permissions, disabled from roles where name = $1`, name)
	role, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, permissions.ErrRoleNotFound
	}
	return role, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRole(row rowScanner) (*permissions.Role, error) {
	var (
		role  permissions.Role
		perms []byte
	)
	if err := row.Scan(&role.ID, &role.Name, &role.Rank, &role.TenantID, &perms, &role.Disabled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, errors.Wrap(err, "[scanRole] scan")
	}
	_ = json.Unmarshal(perms, &role.Permissions)
	return &role, nil
}

var _ permissions.UserDirectory = (*DirectoryStore)(nil)
var _ totp.PasswordVerifier = (*DirectoryStore)(nil)

// DirectoryStore reads the identity-management schema owned by the wider
// platform. Only the narrow directory projection is selected here.
type DirectoryStore struct {
	db *sql.DB
}

func (s *DirectoryStore) FindUserByID(ctx context.Context, id int64) (*permissions.DirectoryUser, error) {
	row := s.db.QueryRowContext(ctx,
		`select u.id, u.tenant_id, u.display_name, coalesce(u.primary_role, ''),
		        coalesce(jsonb_agg(ur.role_id) filter (where ur.role_id is not null), '[]')
		 from users u
		 left join user_roles ur on ur.user_id = u.id
		 where u.id = $1
		 group by u.id`, id)

	var (
		user    permissions.DirectoryUser
		roleIDs []byte
	)
	if err := row.Scan(&user.ID, &user.TenantID, &user.DisplayName, &user.PrimaryRole, &roleIDs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, permissions.ErrUserNotFound
		}
		return nil, errors.Wrap(err, "[DirectoryStore.FindUserByID] scan")
	}
	_ = json.Unmarshal(roleIDs, &user.AssignedRoleIDs)
	return &user, nil
}

// VerifyPassword checks a primary credential against the stored bcrypt
// hash. Unknown users report a plain mismatch, not an error.
func (s *DirectoryStore) VerifyPassword(ctx context.Context, userID int64, password string) (bool, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`select password_hash from users where id = $1`, userID).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "[DirectoryStore.VerifyPassword] scan")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil, nil
}
