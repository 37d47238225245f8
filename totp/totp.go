// Package totp implements an RFC 6238 time-based one-time-password engine
// together with enrollment state, backup codes, and failed-attempt lockout.
// Code generation is bit-compatible with standard authenticator apps:
// HMAC-SHA1 over a 30-second step counter with dynamic truncation to six
// digits.
package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"math/big"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

const (
	// Digits is the code length produced and accepted by this engine.
	Digits = 6

	// Period is the TOTP time-step size.
	Period = 30 * time.Second

	// secretBytes is the shared-secret entropy (160 bits per RFC 4226).
	secretBytes = 20

	backupCodeDigits = 8
)

var base32NoPadding = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateSecret returns a fresh shared secret: 160 bits of cryptographic
// randomness, Base32-encoded with the RFC 4648 alphabet and no padding.
func GenerateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "[GenerateSecret] rand.Read")
	}
	return base32NoPadding.EncodeToString(buf), nil
}

// ProvisioningURI builds the otpauth:// URI encoded into enrollment QR
// codes, in the format authenticator apps expect.
func ProvisioningURI(issuer, account, secret string) string {
	return fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s&digits=%d&period=%d",
		url.PathEscape(issuer),
		url.PathEscape(account),
		secret,
		url.QueryEscape(issuer),
		Digits,
		int(Period.Seconds()),
	)
}

// CodeAt computes the six-digit code for the given secret and wall-clock
// time.
func CodeAt(secret string, t time.Time) (string, error) {
	key, err := base32NoPadding.DecodeString(secret)
	if err != nil {
		return "", errors.Wrap(err, "[CodeAt] secret is not valid base32")
	}
	step := uint64(t.Unix() / int64(Period.Seconds()))
	return hotp(key, step), nil
}

// hotp applies RFC 4226 dynamic truncation: HMAC-SHA1 the 8-byte
// big-endian counter, take the low nibble of the final hash byte as an
// offset, read 4 bytes there masked to 31 bits, and reduce modulo 10^6.
func hotp(key []byte, counter uint64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	code := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff
	return fmt.Sprintf("%0*d", Digits, code%1_000_000)
}

// Validate checks a submitted code against the current time step and both
// adjacent steps, tolerating one step of clock drift in either direction.
func Validate(secret, code string) bool {
	return ValidateAt(secret, code, time.Now())
}

// ValidateAt is Validate with an explicit clock, read once for the whole
// check so a step boundary cannot be crossed mid-validation.
func ValidateAt(secret, code string, now time.Time) bool {
	// Cheap rejection before any HMAC work.
	if !allDigits(code, Digits) {
		return false
	}
	key, err := base32NoPadding.DecodeString(secret)
	if err != nil {
		return false
	}

	step := uint64(now.Unix() / int64(Period.Seconds()))
	match := false
	for _, candidate := range []uint64{step - 1, step, step + 1} {
		if subtle.ConstantTimeCompare([]byte(hotp(key, candidate)), []byte(code)) == 1 {
			match = true
		}
	}
	return match
}

// GenerateBackupCodes returns n independent eight-digit recovery codes.
// Each is usable exactly once; persistence and consumption are handled by
// the Manager.
func GenerateBackupCodes(n int) ([]string, error) {
	codes := make([]string, 0, n)
	max := big.NewInt(1)
	for i := 0; i < backupCodeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	for i := 0; i < n; i++ {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			return nil, errors.Wrap(err, "[GenerateBackupCodes] rand.Int")
		}
		codes = append(codes, fmt.Sprintf("%0*d", backupCodeDigits, v.Int64()))
	}
	return codes, nil
}

func allDigits(s string, length int) bool {
	if len(s) != length {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
