package totp_test

import (
	"encoding/base32"
	"strings"
	"testing"
	"time"

	"github.com/fleetdesk/authcore/totp"
	"github.com/stretchr/testify/require"
)

// rfcSecret is the RFC 6238 Appendix B SHA-1 test secret, the ASCII string
// "12345678901234567890", base32-encoded.
const rfcSecret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

func TestCodeAtMatchesRFC6238Vectors(t *testing.T) {
	// The published vectors are 8-digit; a 6-digit code is the same
	// truncated value modulo 10^6, i.e. the last six digits.
	vectors := []struct {
		unix int64
		code string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1111111111, "050471"},
		{1234567890, "005924"},
		{2000000000, "279037"},
		{20000000000, "353130"},
	}

	for _, v := range vectors {
		code, err := totp.CodeAt(rfcSecret, time.Unix(v.unix, 0).UTC())
		require.NoError(t, err)
		require.Equal(t, v.code, code, "unix time %d", v.unix)
	}
}

func TestValidateAtToleratesOneStepOfDrift(t *testing.T) {
	base := time.Unix(1111111111, 0).UTC()
	code, err := totp.CodeAt(rfcSecret, base)
	require.NoError(t, err)

	require.True(t, totp.ValidateAt(rfcSecret, code, base))
	require.True(t, totp.ValidateAt(rfcSecret, code, base.Add(-totp.Period)))
	require.True(t, totp.ValidateAt(rfcSecret, code, base.Add(totp.Period)))

	require.False(t, totp.ValidateAt(rfcSecret, code, base.Add(-2*totp.Period)))
	require.False(t, totp.ValidateAt(rfcSecret, code, base.Add(2*totp.Period)))
}

func TestValidateAtRejectsMalformedCodesWithoutHashing(t *testing.T) {
	now := time.Unix(1111111111, 0).UTC()
	require.False(t, totp.ValidateAt(rfcSecret, "", now))
	require.False(t, totp.ValidateAt(rfcSecret, "12345", now))
	require.False(t, totp.ValidateAt(rfcSecret, "1234567", now))
	require.False(t, totp.ValidateAt(rfcSecret, "12a456", now))
	require.False(t, totp.ValidateAt("not-base32!", "123456", now))
}

func TestGenerateSecretFormat(t *testing.T) {
	secret, err := totp.GenerateSecret()
	require.NoError(t, err)

	// 160 bits → 32 base32 characters, RFC 4648 alphabet, no padding.
	require.Len(t, secret, 32)
	require.NotContains(t, secret, "=")

	decoded, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
	require.NoError(t, err)
	require.Len(t, decoded, 20)

	other, err := totp.GenerateSecret()
	require.NoError(t, err)
	require.NotEqual(t, secret, other)
}

func TestProvisioningURI(t *testing.T) {
	uri := totp.ProvisioningURI("FleetDesk", "dana@example.com", rfcSecret)
	require.True(t, strings.HasPrefix(uri, "otpauth://totp/FleetDesk:dana@example.com?"))
	require.Contains(t, uri, "secret="+rfcSecret)
	require.Contains(t, uri, "issuer=FleetDesk")
	require.Contains(t, uri, "digits=6")
	require.Contains(t, uri, "period=30")
}

func TestGenerateBackupCodes(t *testing.T) {
	codes, err := totp.GenerateBackupCodes(10)
	require.NoError(t, err)
	require.Len(t, codes, 10)

	seen := make(map[string]struct{})
	for _, code := range codes {
		require.Len(t, code, 8)
		require.Regexp(t, `^\d{8}$`, code)
		seen[code] = struct{}{}
	}
	// Collisions in ten draws from 10^8 would indicate a broken generator.
	require.Len(t, seen, 10)
}
