package totp

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotEnrolled        = errors.New("totp not enrolled")
	ErrNotPending         = errors.New("no pending totp enrollment")
	ErrAlreadyEnabled     = errors.New("totp already enabled")
	ErrInvalidCode        = errors.New("invalid code")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrLockedOut          = errors.New("verification locked out")
)

// LockedOutError carries the retry-after hint for the account owner.
// It matches ErrLockedOut under errors.Is and never reveals whether the
// submitted code would have been correct.
type LockedOutError struct {
	RetryAfter time.Duration
}

func (e *LockedOutError) Error() string {
	return fmt.Sprintf("verification locked out, retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *LockedOutError) Unwrap() error { return ErrLockedOut }
