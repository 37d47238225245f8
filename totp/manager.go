package totp

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/fleetdesk/authcore/audit"
)

const (
	defaultMaxFailures   = 5
	defaultLockoutWindow = 15 * time.Minute
	defaultBackupCodes   = 10
)

// Manager drives enrollment, verification, and lockout for second-factor
// credentials.
type Manager struct {
	repo          CredentialRepo
	passwords     PasswordVerifier
	auditor       audit.Recorder
	issuerName    string
	maxFailures   int
	lockoutWindow time.Duration
	nowFunc       func() time.Time
}

// ManagerOption modifies a Manager during construction.
type ManagerOption func(*Manager)

// WithNowFunc sets the clock (primarily for testing).
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// WithLockoutPolicy sets how many consecutive failures trigger a lockout
// and how long the lockout lasts.
func WithLockoutPolicy(maxFailures int, window time.Duration) ManagerOption {
	return func(m *Manager) {
		m.maxFailures = maxFailures
		m.lockoutWindow = window
	}
}

// WithIssuerName sets the issuer label embedded in provisioning URIs.
func WithIssuerName(name string) ManagerOption {
	return func(m *Manager) {
		m.issuerName = name
	}
}

// NewManager initializes a Manager with required collaborators.
func NewManager(repo CredentialRepo, passwords PasswordVerifier, auditor audit.Recorder, options ...ManagerOption) (*Manager, error) {
	if repo == nil {
		return nil, errors.New("[NewManager] credential repo is required")
	}
	if passwords == nil {
		return nil, errors.New("[NewManager] password verifier is required")
	}
	if auditor == nil {
		auditor = audit.NopRecorder{}
	}

	m := &Manager{
		repo:          repo,
		passwords:     passwords,
		auditor:       auditor,
		issuerName:    "authcore",
		maxFailures:   defaultMaxFailures,
		lockoutWindow: defaultLockoutWindow,
		nowFunc:       time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Enrollment is what BeginEnrollment hands back to the account owner: the
// shared secret and the otpauth URI to render as a QR code.
type Enrollment struct {
	Secret          string
	ProvisioningURI string
}

// BeginEnrollment moves the credential to pending and returns a fresh
// secret. Re-running while still pending regenerates the secret; running
// against an enabled credential is rejected.
func (m *Manager) BeginEnrollment(ctx context.Context, userID int64, account string) (*Enrollment, error) {
	existing, err := m.repo.Get(ctx, userID)
	if err != nil && !errors.Is(err, ErrNotEnrolled) {
		return nil, errors.Wrap(err, "[Manager.BeginEnrollment] repo.Get")
	}
	if existing != nil && existing.Status == StatusEnabled {
		return nil, ErrAlreadyEnabled
	}

	secret, err := GenerateSecret()
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.BeginEnrollment] GenerateSecret")
	}

	if err := m.repo.Upsert(ctx, &Credential{
		UserID: userID,
		Status: StatusPending,
		Secret: secret,
	}); err != nil {
		return nil, errors.Wrap(err, "[Manager.BeginEnrollment] repo.Upsert")
	}

	return &Enrollment{
		Secret:          secret,
		ProvisioningURI: ProvisioningURI(m.issuerName, account, secret),
	}, nil
}

// ConfirmEnrollment transitions pending → enabled on the first valid code
// and returns the freshly generated backup codes. The plaintext codes are
// shown exactly once; only bcrypt hashes are persisted.
func (m *Manager) ConfirmEnrollment(ctx context.Context, userID int64, code string) ([]string, error) {
	credential, err := m.repo.Get(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.ConfirmEnrollment] repo.Get")
	}
	if credential.Status != StatusPending {
		return nil, ErrNotPending
	}

	if !ValidateAt(credential.Secret, code, m.nowFunc()) {
		return nil, ErrInvalidCode
	}

	backupCodes, err := GenerateBackupCodes(defaultBackupCodes)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.ConfirmEnrollment] GenerateBackupCodes")
	}
	hashes := make([]string, 0, len(backupCodes))
	for _, backupCode := range backupCodes {
		hash, err := bcrypt.GenerateFromPassword([]byte(backupCode), bcrypt.DefaultCost)
		if err != nil {
			return nil, errors.Wrap(err, "[Manager.ConfirmEnrollment] bcrypt.GenerateFromPassword")
		}
		hashes = append(hashes, string(hash))
	}

	credential.Status = StatusEnabled
	credential.BackupCodeHashes = hashes
	credential.FailedAttempts = 0
	credential.LockedUntil = nil
	if err := m.repo.Upsert(ctx, credential); err != nil {
		return nil, errors.Wrap(err, "[Manager.ConfirmEnrollment] repo.Upsert")
	}

	m.auditor.Record(ctx, audit.Event{Kind: audit.KindTotpEnabled, UserID: userID})
	return backupCodes, nil
}

// Verify checks a submitted TOTP or backup code. The lockout window is
// consulted first: while locked, even a correct code is rejected. Failed
// attempts are counted through an atomic repo increment so concurrent
// guesses cannot lose updates.
func (m *Manager) Verify(ctx context.Context, userID int64, code string) error {
	credential, err := m.repo.Get(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "[Manager.Verify] repo.Get")
	}
	if credential.Status != StatusEnabled {
		return ErrNotEnrolled
	}

	// Clock is read once for the whole verification.
	now := m.nowFunc()

	if credential.LockedUntil != nil && now.Before(*credential.LockedUntil) {
		return &LockedOutError{RetryAfter: credential.LockedUntil.Sub(now)}
	}

	if ValidateAt(credential.Secret, code, now) {
		return m.markVerified(ctx, credential, now)
	}

	if hash, ok := m.matchBackupCode(credential, code); ok {
		if err := m.repo.RemoveBackupCode(ctx, userID, hash); err != nil {
			// Already consumed by a concurrent attempt: treat as a failure.
			if err := m.recordFailure(ctx, credential, now); err != nil {
				return err
			}
			return ErrInvalidCode
		}
		credential.BackupCodeHashes = dropHash(credential.BackupCodeHashes, hash)
		m.auditor.Record(ctx, audit.Event{Kind: audit.KindBackupConsumed, UserID: userID})
		return m.markVerified(ctx, credential, now)
	}

	if err := m.recordFailure(ctx, credential, now); err != nil {
		return err
	}
	return ErrInvalidCode
}

// Disable opts the user out of TOTP. It requires the current password and
// a valid code (TOTP or backup); both failures surface as the same generic
// rejection. The secret and remaining backup codes are wiped so a later
// re-enrollment regenerates everything.
func (m *Manager) Disable(ctx context.Context, userID int64, password, code string) error {
	credential, err := m.repo.Get(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "[Manager.Disable] repo.Get")
	}
	if credential.Status != StatusEnabled {
		return ErrNotEnrolled
	}

	now := m.nowFunc()
	if credential.LockedUntil != nil && now.Before(*credential.LockedUntil) {
		return &LockedOutError{RetryAfter: credential.LockedUntil.Sub(now)}
	}

	ok, err := m.passwords.VerifyPassword(ctx, userID, password)
	if err != nil {
		return errors.Wrap(err, "[Manager.Disable] passwords.VerifyPassword")
	}
	if !ok {
		return ErrInvalidCredentials
	}

	codeOK := ValidateAt(credential.Secret, code, now)
	if !codeOK {
		if hash, matched := m.matchBackupCode(credential, code); matched {
			codeOK = m.repo.RemoveBackupCode(ctx, userID, hash) == nil
		}
	}
	if !codeOK {
		// The failure still counts toward lockout, but the caller only
		// ever sees the generic rejection.
		if err := m.recordFailure(ctx, credential, now); err != nil {
			return err
		}
		return ErrInvalidCredentials
	}

	if err := m.repo.Upsert(ctx, &Credential{
		UserID: userID,
		Status: StatusDisabled,
	}); err != nil {
		return errors.Wrap(err, "[Manager.Disable] repo.Upsert")
	}

	m.auditor.Record(ctx, audit.Event{Kind: audit.KindTotpDisabled, UserID: userID})
	return nil
}

func (m *Manager) markVerified(ctx context.Context, credential *Credential, now time.Time) error {
	if err := m.repo.ResetFailedAttempts(ctx, credential.UserID); err != nil {
		return errors.Wrap(err, "[Manager.markVerified] repo.ResetFailedAttempts")
	}
	credential.FailedAttempts = 0
	credential.LockedUntil = nil
	credential.LastVerifiedAt = &now
	if err := m.repo.Upsert(ctx, credential); err != nil {
		return errors.Wrap(err, "[Manager.markVerified] repo.Upsert")
	}
	return nil
}

// recordFailure bumps the failure counter and arms the lockout window when
// the limit is reached. It returns repo errors only; the caller decides which
// rejection the user sees.
func (m *Manager) recordFailure(ctx context.Context, credential *Credential, now time.Time) error {
	failures, err := m.repo.IncrementFailedAttempts(ctx, credential.UserID)
	if err != nil {
		return errors.Wrap(err, "[Manager.recordFailure] repo.IncrementFailedAttempts")
	}
	if failures >= m.maxFailures {
		until := now.Add(m.lockoutWindow)
		if err := m.repo.SetLockedUntil(ctx, credential.UserID, until); err != nil {
			return errors.Wrap(err, "[Manager.recordFailure] repo.SetLockedUntil")
		}
		m.auditor.Record(ctx, audit.Event{
			Kind:   audit.KindTotpLockout,
			UserID: credential.UserID,
			Detail: until.UTC().Format(time.RFC3339),
		})
	}
	return nil
}

func dropHash(hashes []string, hash string) []string {
	remaining := make([]string, 0, len(hashes))
	for _, h := range hashes {
		if h != hash {
			remaining = append(remaining, h)
		}
	}
	return remaining
}

func (m *Manager) matchBackupCode(credential *Credential, code string) (string, bool) {
	if !allDigits(code, backupCodeDigits) {
		return "", false
	}
	for _, hash := range credential.BackupCodeHashes {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil {
			return hash, true
		}
	}
	return "", false
}
