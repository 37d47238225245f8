package oauth_test

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/fleetdesk/authcore/audit"
	"github.com/fleetdesk/authcore/audit/auditfake"
	"github.com/fleetdesk/authcore/oauth"
	"github.com/fleetdesk/authcore/oauth/repofake"
	"github.com/stretchr/testify/require"
)

const (
	testUserID       = int64(42)
	testRedirectURI  = "https://app.example.com/callback"
	otherRedirectURI = "https://app.example.com/other-callback"
	testCodeVerifier = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
)

type serviceFixture struct {
	clients *repofake.FakeClientRepo
	codes   *repofake.FakeCodeRepo
	tokens  *repofake.FakeTokenRepo
	auditor *auditfake.CaptureRecorder
	service *oauth.Service
	now     time.Time

	client       *oauth.Client
	clientSecret string
}

func setupServiceFixture(t *testing.T, options ...oauth.ServiceOption) *serviceFixture {
	t.Helper()

	f := &serviceFixture{
		clients: repofake.NewFakeClientRepo(),
		codes:   repofake.NewFakeCodeRepo(),
		tokens:  repofake.NewFakeTokenRepo(),
		auditor: auditfake.NewCaptureRecorder(),
		now:     time.Unix(1700000000, 0).UTC(),
	}

	opts := append([]oauth.ServiceOption{
		oauth.WithNowFunc(func() time.Time { return f.now }),
	}, options...)

	service, err := oauth.NewService(oauth.Repos{
		Clients: f.clients,
		Codes:   f.codes,
		Tokens:  f.tokens,
	}, f.auditor, opts...)
	require.NoError(t, err)
	f.service = service

	client, secret, err := service.RegisterClient(context.Background(), "Telematics Sync", oauth.ClientTypeConfidential, nil,
		[]string{testRedirectURI, otherRedirectURI},
		[]string{"drivers:read", "tickets:read"},
	)
	require.NoError(t, err)
	f.client = client
	f.clientSecret = secret
	return f
}

func (f *serviceFixture) issueCode(t *testing.T) *oauth.AuthorizationCode {
	t.Helper()
	code, err := f.service.IssueAuthorizationCode(context.Background(), oauth.IssueCodeRequest{
		ClientID:    f.client.ID,
		UserID:      testUserID,
		RedirectURI: testRedirectURI,
		Scopes:      []string{"drivers:read"},
	})
	require.NoError(t, err)
	return code
}

func TestRegisterClientSecretShownOnce(t *testing.T) {
	f := setupServiceFixture(t)

	require.NotEmpty(t, f.clientSecret)
	stored, err := f.clients.Get(context.Background(), f.client.ID)
	require.NoError(t, err)
	require.NotEqual(t, f.clientSecret, stored.SecretHash)
	require.True(t, stored.VerifySecret(f.clientSecret))
	require.False(t, stored.VerifySecret("not-the-secret"))
}

func TestRotateClientSecretInvalidatesOldSecret(t *testing.T) {
	f := setupServiceFixture(t)

	rotated, err := f.service.RotateClientSecret(context.Background(), f.client.ID)
	require.NoError(t, err)
	require.NotEqual(t, f.clientSecret, rotated)

	stored, err := f.clients.Get(context.Background(), f.client.ID)
	require.NoError(t, err)
	require.True(t, stored.VerifySecret(rotated))
	require.False(t, stored.VerifySecret(f.clientSecret))
	require.Equal(t, 1, f.auditor.CountKind(audit.KindClientRotated))
}

func TestIssueAuthorizationCodeRejectsUnregisteredRedirectURI(t *testing.T) {
	f := setupServiceFixture(t)

	// Exact matching only: a sub-path of a registered URI is a different
	// URI.
	_, err := f.service.IssueAuthorizationCode(context.Background(), oauth.IssueCodeRequest{
		ClientID:    f.client.ID,
		UserID:      testUserID,
		RedirectURI: testRedirectURI + "/extra",
		Scopes:      []string{"drivers:read"},
	})
	require.ErrorIs(t, err, oauth.ErrInvalidRedirectURI)
}

func TestIssueAuthorizationCodeRejectsDisallowedScope(t *testing.T) {
	f := setupServiceFixture(t)

	_, err := f.service.IssueAuthorizationCode(context.Background(), oauth.IssueCodeRequest{
		ClientID:    f.client.ID,
		UserID:      testUserID,
		RedirectURI: testRedirectURI,
		Scopes:      []string{"paysheets:write"},
	})
	require.ErrorIs(t, err, oauth.ErrInvalidScope)
}

func TestIssueAuthorizationCodeRejectsSuspendedClient(t *testing.T) {
	f := setupServiceFixture(t)
	f.client.Status = oauth.ClientStatusSuspended
	require.NoError(t, f.clients.Upsert(context.Background(), f.client))

	_, err := f.service.IssueAuthorizationCode(context.Background(), oauth.IssueCodeRequest{
		ClientID:    f.client.ID,
		UserID:      testUserID,
		RedirectURI: testRedirectURI,
	})
	require.ErrorIs(t, err, oauth.ErrClientSuspended)
}

func TestPublicClientsRequirePKCE(t *testing.T) {
	f := setupServiceFixture(t)
	public, _, err := f.service.RegisterClient(context.Background(), "Driver App", oauth.ClientTypePublic, nil,
		[]string{testRedirectURI}, []string{"drivers:read"})
	require.NoError(t, err)

	_, err = f.service.IssueAuthorizationCode(context.Background(), oauth.IssueCodeRequest{
		ClientID:    public.ID,
		UserID:      testUserID,
		RedirectURI: testRedirectURI,
	})
	require.ErrorIs(t, err, oauth.ErrPKCERequired)
}

func TestExchangeCodeHappyPath(t *testing.T) {
	f := setupServiceFixture(t)
	code := f.issueCode(t)

	pair, err := f.service.ExchangeCode(context.Background(), oauth.ExchangeRequest{
		Code:         code.Code,
		ClientID:     f.client.ID,
		ClientSecret: f.clientSecret,
		RedirectURI:  testRedirectURI,
	})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, "bearer", pair.TokenType)
	require.Equal(t, []string{"drivers:read"}, pair.Scopes)

	accessToken, err := f.service.ValidateAccessToken(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, testUserID, accessToken.UserID)
	require.Equal(t, f.client.ID, accessToken.ClientID)
}

func TestExchangeCodeSingleUse(t *testing.T) {
	f := setupServiceFixture(t)
	code := f.issueCode(t)

	req := oauth.ExchangeRequest{
		Code:         code.Code,
		ClientID:     f.client.ID,
		ClientSecret: f.clientSecret,
		RedirectURI:  testRedirectURI,
	}
	_, err := f.service.ExchangeCode(context.Background(), req)
	require.NoError(t, err)

	// Second exchange fails inside the TTL window and is audited as a
	// replay.
	_, err = f.service.ExchangeCode(context.Background(), req)
	require.ErrorIs(t, err, oauth.ErrInvalidGrant)
	require.Equal(t, 1, f.auditor.CountKind(audit.KindCodeReplay))
}

func TestExchangeCodeConcurrentAttemptsYieldOneSuccess(t *testing.T) {
	f := setupServiceFixture(t)
	code := f.issueCode(t)

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.ExchangeCode(context.Background(), oauth.ExchangeRequest{
				Code:         code.Code,
				ClientID:     f.client.ID,
				ClientSecret: f.clientSecret,
				RedirectURI:  testRedirectURI,
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		} else {
			require.ErrorIs(t, err, oauth.ErrInvalidGrant)
		}
	}
	require.Equal(t, 1, successes)
}

func TestExchangeCodeRejectsExpiredCode(t *testing.T) {
	f := setupServiceFixture(t)
	code := f.issueCode(t)

	f.now = f.now.Add(6 * time.Minute)
	_, err := f.service.ExchangeCode(context.Background(), oauth.ExchangeRequest{
		Code:         code.Code,
		ClientID:     f.client.ID,
		ClientSecret: f.clientSecret,
		RedirectURI:  testRedirectURI,
	})
	require.ErrorIs(t, err, oauth.ErrInvalidGrant)
}

func TestExchangeCodeRedirectURIBinding(t *testing.T) {
	f := setupServiceFixture(t)
	code := f.issueCode(t)

	// otherRedirectURI is registered for the same client, but the code was
	// not issued for it.
	_, err := f.service.ExchangeCode(context.Background(), oauth.ExchangeRequest{
		Code:         code.Code,
		ClientID:     f.client.ID,
		ClientSecret: f.clientSecret,
		RedirectURI:  otherRedirectURI,
	})
	require.ErrorIs(t, err, oauth.ErrInvalidGrant)
}

func TestExchangeCodeClientBinding(t *testing.T) {
	f := setupServiceFixture(t)
	code := f.issueCode(t)

	other, otherSecret, err := f.service.RegisterClient(context.Background(), "Other Integration", oauth.ClientTypeConfidential, nil,
		[]string{testRedirectURI}, []string{"drivers:read"})
	require.NoError(t, err)

	_, err = f.service.ExchangeCode(context.Background(), oauth.ExchangeRequest{
		Code:         code.Code,
		ClientID:     other.ID,
		ClientSecret: otherSecret,
		RedirectURI:  testRedirectURI,
	})
	require.ErrorIs(t, err, oauth.ErrInvalidGrant)
}

func TestExchangeCodeRejectsWrongClientSecret(t *testing.T) {
	f := setupServiceFixture(t)
	code := f.issueCode(t)

	_, err := f.service.ExchangeCode(context.Background(), oauth.ExchangeRequest{
		Code:         code.Code,
		ClientID:     f.client.ID,
		ClientSecret: "wrong-secret",
		RedirectURI:  testRedirectURI,
	})
	require.ErrorIs(t, err, oauth.ErrInvalidClient)
}

func TestExchangeCodePKCES256(t *testing.T) {
	f := setupServiceFixture(t)

	sum := sha256.Sum256([]byte(testCodeVerifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	code, err := f.service.IssueAuthorizationCode(context.Background(), oauth.IssueCodeRequest{
		ClientID:            f.client.ID,
		UserID:              testUserID,
		RedirectURI:         testRedirectURI,
		Scopes:              []string{"drivers:read"},
		CodeChallenge:       challenge,
		CodeChallengeMethod: oauth.ChallengeMethodS256,
	})
	require.NoError(t, err)

	// Wrong verifier fails; the code is not consumed by a failed PKCE
	// check, so the right verifier still succeeds afterwards.
	_, err = f.service.ExchangeCode(context.Background(), oauth.ExchangeRequest{
		Code:         code.Code,
		ClientID:     f.client.ID,
		ClientSecret: f.clientSecret,
		RedirectURI:  testRedirectURI,
		CodeVerifier: "wrong-verifier",
	})
	require.ErrorIs(t, err, oauth.ErrInvalidGrant)

	_, err = f.service.ExchangeCode(context.Background(), oauth.ExchangeRequest{
		Code:         code.Code,
		ClientID:     f.client.ID,
		ClientSecret: f.clientSecret,
		RedirectURI:  testRedirectURI,
		CodeVerifier: testCodeVerifier,
	})
	require.NoError(t, err)
}

func TestRefreshRotationInvalidatesPresentedToken(t *testing.T) {
	f := setupServiceFixture(t)
	code := f.issueCode(t)

	pair, err := f.service.ExchangeCode(context.Background(), oauth.ExchangeRequest{
		Code:         code.Code,
		ClientID:     f.client.ID,
		ClientSecret: f.clientSecret,
		RedirectURI:  testRedirectURI,
	})
	require.NoError(t, err)

	refreshed, err := f.service.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, refreshed.AccessToken)
	require.NotEqual(t, pair.RefreshToken, refreshed.RefreshToken)

	// The rotated-out token is dead; replaying it is audited.
	_, err = f.service.Refresh(context.Background(), pair.RefreshToken)
	require.ErrorIs(t, err, oauth.ErrInvalidGrant)
	require.Equal(t, 1, f.auditor.CountKind(audit.KindRefreshReplay))

	// The successor works.
	_, err = f.service.Refresh(context.Background(), refreshed.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshWithoutRotationKeepsToken(t *testing.T) {
	f := setupServiceFixture(t, oauth.WithRefreshRotation(false))
	code := f.issueCode(t)

	pair, err := f.service.ExchangeCode(context.Background(), oauth.ExchangeRequest{
		Code:         code.Code,
		ClientID:     f.client.ID,
		ClientSecret: f.clientSecret,
		RedirectURI:  testRedirectURI,
	})
	require.NoError(t, err)

	refreshed, err := f.service.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, pair.RefreshToken, refreshed.RefreshToken)

	// Still usable without rotation.
	_, err = f.service.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshRejectsExpiredToken(t *testing.T) {
	f := setupServiceFixture(t)
	code := f.issueCode(t)

	pair, err := f.service.ExchangeCode(context.Background(), oauth.ExchangeRequest{
		Code:         code.Code,
		ClientID:     f.client.ID,
		ClientSecret: f.clientSecret,
		RedirectURI:  testRedirectURI,
	})
	require.NoError(t, err)

	f.now = f.now.Add(31 * 24 * time.Hour)
	_, err = f.service.Refresh(context.Background(), pair.RefreshToken)
	require.ErrorIs(t, err, oauth.ErrInvalidGrant)
}

func TestRevokeIsIdempotentAndBoundsBlastRadius(t *testing.T) {
	f := setupServiceFixture(t)
	code := f.issueCode(t)

	pair, err := f.service.ExchangeCode(context.Background(), oauth.ExchangeRequest{
		Code:         code.Code,
		ClientID:     f.client.ID,
		ClientSecret: f.clientSecret,
		RedirectURI:  testRedirectURI,
	})
	require.NoError(t, err)

	// Revoking the refresh token kills future refreshes but not the
	// already-issued access token.
	require.NoError(t, f.service.Revoke(context.Background(), pair.RefreshToken))
	require.NoError(t, f.service.Revoke(context.Background(), pair.RefreshToken))
	require.NoError(t, f.service.Revoke(context.Background(), "completely-unknown-token"))

	_, err = f.service.Refresh(context.Background(), pair.RefreshToken)
	require.ErrorIs(t, err, oauth.ErrInvalidGrant)

	_, err = f.service.ValidateAccessToken(context.Background(), pair.AccessToken)
	require.NoError(t, err)

	// Revoking the access token takes it out too.
	require.NoError(t, f.service.Revoke(context.Background(), pair.AccessToken))
	_, err = f.service.ValidateAccessToken(context.Background(), pair.AccessToken)
	require.ErrorIs(t, err, oauth.ErrInvalidToken)
}

func TestValidateAccessTokenRejectsExpired(t *testing.T) {
	f := setupServiceFixture(t)
	code := f.issueCode(t)

	pair, err := f.service.ExchangeCode(context.Background(), oauth.ExchangeRequest{
		Code:         code.Code,
		ClientID:     f.client.ID,
		ClientSecret: f.clientSecret,
		RedirectURI:  testRedirectURI,
	})
	require.NoError(t, err)

	f.now = f.now.Add(2 * time.Hour)
	_, err = f.service.ValidateAccessToken(context.Background(), pair.AccessToken)
	require.ErrorIs(t, err, oauth.ErrInvalidToken)
}
