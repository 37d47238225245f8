package totp

import (
	"context"
	"time"
)

// Status tracks the enrollment state machine: disabled → pending (secret
// generated, not yet confirmed) → enabled (first valid code submitted) →
// disabled (explicit opt-out). Lockout is a sub-state layered on top of
// enabled, driven by the failed-attempt counter.
type Status string

const (
	StatusDisabled Status = "disabled"
	StatusPending  Status = "pending"
	StatusEnabled  Status = "enabled"
)

// Credential is the per-user second-factor record. The secret is immutable
// while enabled; disabling wipes it so re-enrollment starts from scratch.
type Credential struct {
	UserID           int64      `json:"user_id"`
	Status           Status     `json:"status"`
	Secret           string     `json:"secret,omitempty"`
	BackupCodeHashes []string   `json:"backup_code_hashes,omitempty"`
	FailedAttempts   int        `json:"failed_attempts"`
	LockedUntil      *time.Time `json:"locked_until,omitempty"`
	LastVerifiedAt   *time.Time `json:"last_verified_at,omitempty"`
}

// CredentialRepo persists second-factor credentials. IncrementFailedAttempts
// must be atomic under concurrent verification attempts for the same
// account; a lost increment would defeat lockout.
type CredentialRepo interface {
	Get(ctx context.Context, userID int64) (*Credential, error)
	Upsert(ctx context.Context, credential *Credential) error
	IncrementFailedAttempts(ctx context.Context, userID int64) (int, error)
	ResetFailedAttempts(ctx context.Context, userID int64) error
	SetLockedUntil(ctx context.Context, userID int64, until time.Time) error
	RemoveBackupCode(ctx context.Context, userID int64, hash string) error
}

// PasswordVerifier is the external credential-check collaborator. The
// password store itself is out of scope for this core.
type PasswordVerifier interface {
	VerifyPassword(ctx context.Context, userID int64, password string) (bool, error)
}
