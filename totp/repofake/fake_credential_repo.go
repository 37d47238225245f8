package repofake

import (
	"context"
	"sync"
	"time"

	"github.com/fleetdesk/authcore/totp"
)

var _ totp.CredentialRepo = (*FakeCredentialRepo)(nil)

// FakeCredentialRepo is an in-memory CredentialRepo for tests.
type FakeCredentialRepo struct {
	credentials map[int64]*totp.Credential
	lock        sync.Mutex
}

func NewFakeCredentialRepo() *FakeCredentialRepo {
	return &FakeCredentialRepo{credentials: make(map[int64]*totp.Credential)}
}

func (r *FakeCredentialRepo) Get(_ context.Context, userID int64) (*totp.Credential, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	credential, ok := r.credentials[userID]
	if !ok {
		return nil, totp.ErrNotEnrolled
	}
	clone := *credential
	clone.BackupCodeHashes = append([]string(nil), credential.BackupCodeHashes...)
	return &clone, nil
}

func (r *FakeCredentialRepo) Upsert(_ context.Context, credential *totp.Credential) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	clone := *credential
	clone.BackupCodeHashes = append([]string(nil), credential.BackupCodeHashes...)
	r.credentials[credential.UserID] = &clone
	return nil
}

func (r *FakeCredentialRepo) IncrementFailedAttempts(_ context.Context, userID int64) (int, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	credential, ok := r.credentials[userID]
	if !ok {
		return 0, totp.ErrNotEnrolled
	}
	credential.FailedAttempts++
	return credential.FailedAttempts, nil
}

func (r *FakeCredentialRepo) ResetFailedAttempts(_ context.Context, userID int64) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	credential, ok := r.credentials[userID]
	if !ok {
		return totp.ErrNotEnrolled
	}
	credential.FailedAttempts = 0
	credential.LockedUntil = nil
	return nil
}

func (r *FakeCredentialRepo) SetLockedUntil(_ context.Context, userID int64, until time.Time) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	credential, ok := r.credentials[userID]
	if !ok {
		return totp.ErrNotEnrolled
	}
	credential.LockedUntil = &until
	return nil
}

func (r *FakeCredentialRepo) RemoveBackupCode(_ context.Context, userID int64, hash string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	credential, ok := r.credentials[userID]
	if !ok {
		return totp.ErrNotEnrolled
	}
	for i, h := range credential.BackupCodeHashes {
		if h == hash {
			credential.BackupCodeHashes = append(credential.BackupCodeHashes[:i], credential.BackupCodeHashes[i+1:]...)
			return nil
		}
	}
	return totp.ErrInvalidCode
}

var _ totp.PasswordVerifier = (*FakePasswordVerifier)(nil)

// FakePasswordVerifier accepts a fixed password per user.
type FakePasswordVerifier struct {
	Passwords map[int64]string
}

func NewFakePasswordVerifier() *FakePasswordVerifier {
	return &FakePasswordVerifier{Passwords: make(map[int64]string)}
}

func (v *FakePasswordVerifier) VerifyPassword(_ context.Context, userID int64, password string) (bool, error) {
	expected, ok := v.Passwords[userID]
	return ok && expected == password, nil
}
