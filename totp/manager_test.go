package totp_test

import (
	"context"
	"testing"
	"time"

	"github.com/fleetdesk/authcore/audit"
	"github.com/fleetdesk/authcore/audit/auditfake"
	"github.com/fleetdesk/authcore/totp"
	"github.com/fleetdesk/authcore/totp/repofake"
	"github.com/stretchr/testify/require"
)

const (
	testUserID   = int64(42)
	testPassword = "Secret123"
	testAccount  = "dana@example.com"
)

type managerFixture struct {
	repo      *repofake.FakeCredentialRepo
	passwords *repofake.FakePasswordVerifier
	auditor   *auditfake.CaptureRecorder
	manager   *totp.Manager
	now       time.Time
}

func setupManagerFixture(t *testing.T) *managerFixture {
	t.Helper()

	f := &managerFixture{
		repo:      repofake.NewFakeCredentialRepo(),
		passwords: repofake.NewFakePasswordVerifier(),
		auditor:   auditfake.NewCaptureRecorder(),
		now:       time.Unix(1700000000, 0).UTC(),
	}
	f.passwords.Passwords[testUserID] = testPassword

	manager, err := totp.NewManager(f.repo, f.passwords, f.auditor,
		totp.WithNowFunc(func() time.Time { return f.now }),
		totp.WithLockoutPolicy(3, 10*time.Minute),
		totp.WithIssuerName("FleetDesk"),
	)
	require.NoError(t, err)
	f.manager = manager
	return f
}

// enroll runs the full disabled → pending → enabled transition and returns
// the backup codes issued on confirmation.
func (f *managerFixture) enroll(t *testing.T) (string, []string) {
	t.Helper()

	enrollment, err := f.manager.BeginEnrollment(context.Background(), testUserID, testAccount)
	require.NoError(t, err)

	code, err := totp.CodeAt(enrollment.Secret, f.now)
	require.NoError(t, err)

	backupCodes, err := f.manager.ConfirmEnrollment(context.Background(), testUserID, code)
	require.NoError(t, err)
	require.Len(t, backupCodes, 10)
	return enrollment.Secret, backupCodes
}

func TestEnrollmentLifecycle(t *testing.T) {
	f := setupManagerFixture(t)

	enrollment, err := f.manager.BeginEnrollment(context.Background(), testUserID, testAccount)
	require.NoError(t, err)
	require.NotEmpty(t, enrollment.Secret)
	require.Contains(t, enrollment.ProvisioningURI, "issuer=FleetDesk")

	// Wrong code keeps the credential pending.
	_, err = f.manager.ConfirmEnrollment(context.Background(), testUserID, "000000")
	require.ErrorIs(t, err, totp.ErrInvalidCode)

	code, err := totp.CodeAt(enrollment.Secret, f.now)
	require.NoError(t, err)
	_, err = f.manager.ConfirmEnrollment(context.Background(), testUserID, code)
	require.NoError(t, err)

	// Enabled credentials verify and cannot be re-enrolled.
	require.NoError(t, f.manager.Verify(context.Background(), testUserID, code))
	_, err = f.manager.BeginEnrollment(context.Background(), testUserID, testAccount)
	require.ErrorIs(t, err, totp.ErrAlreadyEnabled)
	require.Equal(t, 1, f.auditor.CountKind(audit.KindTotpEnabled))
}

func TestBeginEnrollmentRegeneratesPendingSecret(t *testing.T) {
	f := setupManagerFixture(t)

	first, err := f.manager.BeginEnrollment(context.Background(), testUserID, testAccount)
	require.NoError(t, err)
	second, err := f.manager.BeginEnrollment(context.Background(), testUserID, testAccount)
	require.NoError(t, err)
	require.NotEqual(t, first.Secret, second.Secret)

	// The superseded secret no longer confirms.
	staleCode, err := totp.CodeAt(first.Secret, f.now)
	require.NoError(t, err)
	_, err = f.manager.ConfirmEnrollment(context.Background(), testUserID, staleCode)
	require.ErrorIs(t, err, totp.ErrInvalidCode)
}

func TestVerifyRejectsWhenNotEnrolled(t *testing.T) {
	f := setupManagerFixture(t)
	err := f.manager.Verify(context.Background(), testUserID, "123456")
	require.ErrorIs(t, err, totp.ErrNotEnrolled)
}

func TestBackupCodeSingleUse(t *testing.T) {
	f := setupManagerFixture(t)
	secret, backupCodes := f.enroll(t)

	require.NoError(t, f.manager.Verify(context.Background(), testUserID, backupCodes[0]))
	require.Equal(t, 1, f.auditor.CountKind(audit.KindBackupConsumed))

	// The stored credential no longer carries the consumed hash.
	stored, err := f.repo.Get(context.Background(), testUserID)
	require.NoError(t, err)
	require.Len(t, stored.BackupCodeHashes, 9)

	// Same code a second time fails even though it never expired.
	err = f.manager.Verify(context.Background(), testUserID, backupCodes[0])
	require.ErrorIs(t, err, totp.ErrInvalidCode)

	// A successful TOTP verify in between must not resurrect it either.
	code, err := totp.CodeAt(secret, f.now)
	require.NoError(t, err)
	require.NoError(t, f.manager.Verify(context.Background(), testUserID, code))
	err = f.manager.Verify(context.Background(), testUserID, backupCodes[0])
	require.ErrorIs(t, err, totp.ErrInvalidCode)

	// A different remaining code still works.
	require.NoError(t, f.manager.Verify(context.Background(), testUserID, backupCodes[1]))
}

func TestLockoutRejectsCorrectCodeUntilWindowElapses(t *testing.T) {
	f := setupManagerFixture(t)
	secret, _ := f.enroll(t)

	for i := 0; i < 3; i++ {
		err := f.manager.Verify(context.Background(), testUserID, "000000")
		require.ErrorIs(t, err, totp.ErrInvalidCode)
	}
	require.Equal(t, 1, f.auditor.CountKind(audit.KindTotpLockout))

	// A correct code is still rejected while locked, with a retry hint.
	code, err := totp.CodeAt(secret, f.now)
	require.NoError(t, err)
	err = f.manager.Verify(context.Background(), testUserID, code)
	require.ErrorIs(t, err, totp.ErrLockedOut)
	var locked *totp.LockedOutError
	require.ErrorAs(t, err, &locked)
	require.Equal(t, 10*time.Minute, locked.RetryAfter)

	// Once the window elapses the same code (still within its step
	// tolerance) is accepted and the counter resets.
	f.now = f.now.Add(10 * time.Minute)
	code, err = totp.CodeAt(secret, f.now)
	require.NoError(t, err)
	require.NoError(t, f.manager.Verify(context.Background(), testUserID, code))
}

func TestVerifySuccessResetsFailureCounter(t *testing.T) {
	f := setupManagerFixture(t)
	secret, _ := f.enroll(t)

	for i := 0; i < 2; i++ {
		require.ErrorIs(t, f.manager.Verify(context.Background(), testUserID, "000000"), totp.ErrInvalidCode)
	}
	code, err := totp.CodeAt(secret, f.now)
	require.NoError(t, err)
	require.NoError(t, f.manager.Verify(context.Background(), testUserID, code))

	// Two more failures should not lock out: the counter restarted.
	for i := 0; i < 2; i++ {
		require.ErrorIs(t, f.manager.Verify(context.Background(), testUserID, "000000"), totp.ErrInvalidCode)
	}
	code, err = totp.CodeAt(secret, f.now)
	require.NoError(t, err)
	require.NoError(t, f.manager.Verify(context.Background(), testUserID, code))
}

func TestDisableRequiresPasswordAndCode(t *testing.T) {
	f := setupManagerFixture(t)
	secret, backupCodes := f.enroll(t)

	code, err := totp.CodeAt(secret, f.now)
	require.NoError(t, err)

	// Wrong password and wrong code are indistinguishable.
	err = f.manager.Disable(context.Background(), testUserID, "wrong-password", code)
	require.ErrorIs(t, err, totp.ErrInvalidCredentials)
	err = f.manager.Disable(context.Background(), testUserID, testPassword, "000000")
	require.ErrorIs(t, err, totp.ErrInvalidCredentials)

	// A backup code works in place of a TOTP code.
	require.NoError(t, f.manager.Disable(context.Background(), testUserID, testPassword, backupCodes[0]))
	require.Equal(t, 1, f.auditor.CountKind(audit.KindTotpDisabled))

	// Disabled credentials no longer verify, and re-enrollment starts a
	// fresh secret.
	require.ErrorIs(t, f.manager.Verify(context.Background(), testUserID, code), totp.ErrNotEnrolled)
	enrollment, err := f.manager.BeginEnrollment(context.Background(), testUserID, testAccount)
	require.NoError(t, err)
	require.NotEqual(t, secret, enrollment.Secret)
}
