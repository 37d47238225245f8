// Package oauth implements the delegated-authorization lifecycle: client
// registration, single-use authorization codes with proof-of-possession,
// short-lived access tokens, rotatable refresh tokens, and revocation.
package oauth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/fleetdesk/authcore/audit"
)

const (
	defaultCodeTTL    = 5 * time.Minute
	defaultAccessTTL  = 1 * time.Hour
	defaultRefreshTTL = 30 * 24 * time.Hour
)

// Repos holds all repository dependencies for the Service.
type Repos struct {
	Clients ClientRepo
	Codes   CodeRepo
	Tokens  TokenRepo
}

// Service drives the delegated-authorization state machine.
type Service struct {
	repos         Repos
	auditor       audit.Recorder
	codeTTL       time.Duration
	accessTTL     time.Duration
	refreshTTL    time.Duration
	rotateRefresh bool
	nowFunc       func() time.Time
}

// ServiceOption modifies a Service during construction.
type ServiceOption func(*Service)

// WithNowFunc sets the clock (primarily for testing).
func WithNowFunc(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowFunc = now
	}
}

// WithTokenTTLs overrides the code, access, and refresh lifetimes.
func WithTokenTTLs(code, access, refresh time.Duration) ServiceOption {
	return func(s *Service) {
		s.codeTTL = code
		s.accessTTL = access
		s.refreshTTL = refresh
	}
}

// WithRefreshRotation controls whether a presented refresh token is
// revoked and replaced on every refresh. Rotation is on by default.
func WithRefreshRotation(enabled bool) ServiceOption {
	return func(s *Service) {
		s.rotateRefresh = enabled
	}
}

// NewService initializes a Service with required dependencies.
func NewService(repos Repos, auditor audit.Recorder, options ...ServiceOption) (*Service, error) {
	if repos.Clients == nil {
		return nil, errors.New("[NewService] Clients repo is required")
	}
	if repos.Codes == nil {
		return nil, errors.New("[NewService] Codes repo is required")
	}
	if repos.Tokens == nil {
		return nil, errors.New("[NewService] Tokens repo is required")
	}
	if auditor == nil {
		auditor = audit.NopRecorder{}
	}

	s := &Service{
		repos:         repos,
		auditor:       auditor,
		codeTTL:       defaultCodeTTL,
		accessTTL:     defaultAccessTTL,
		refreshTTL:    defaultRefreshTTL,
		rotateRefresh: true,
		nowFunc:       time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// RegisterClient creates a client record and returns it together with the
// plaintext secret, which is shown exactly once.
func (s *Service) RegisterClient(ctx context.Context, name string, clientType ClientType, tenantID *int64, redirectURIs, scopes []string) (*Client, string, error) {
	if name == "" {
		return nil, "", errors.New("[Service.RegisterClient] client name is required")
	}
	if err := validateRedirectURIs(redirectURIs); err != nil {
		return nil, "", errors.Wrap(err, "[Service.RegisterClient] redirect URIs")
	}

	secret, hash, err := newClientSecret()
	if err != nil {
		return nil, "", errors.Wrap(err, "[Service.RegisterClient] newClientSecret")
	}

	client := &Client{
		ID:           uuid.New().String(),
		Type:         clientType,
		Name:         name,
		SecretHash:   hash,
		TenantID:     tenantID,
		RedirectURIs: redirectURIs,
		Scopes:       scopes,
		Status:       ClientStatusActive,
		CreatedAt:    s.nowFunc(),
	}
	if err := s.repos.Clients.Upsert(ctx, client); err != nil {
		return nil, "", errors.Wrap(err, "[Service.RegisterClient] Clients.Upsert")
	}
	return client, secret, nil
}

// RotateClientSecret regenerates a client's secret and returns the fresh
// plaintext. The previous secret stops working immediately.
func (s *Service) RotateClientSecret(ctx context.Context, clientID string) (string, error) {
	client, err := s.repos.Clients.Get(ctx, clientID)
	if err != nil {
		return "", ErrInvalidClient
	}

	secret, hash, err := newClientSecret()
	if err != nil {
		return "", errors.Wrap(err, "[Service.RotateClientSecret] newClientSecret")
	}
	client.SecretHash = hash
	if err := s.repos.Clients.Upsert(ctx, client); err != nil {
		return "", errors.Wrap(err, "[Service.RotateClientSecret] Clients.Upsert")
	}

	s.auditor.Record(ctx, audit.Event{Kind: audit.KindClientRotated, ClientID: clientID})
	return secret, nil
}

// IssueCodeRequest carries the parameters of an authorization-code grant.
type IssueCodeRequest struct {
	ClientID            string
	UserID              int64
	RedirectURI         string
	Scopes              []string
	CodeChallenge       string
	CodeChallengeMethod ChallengeMethod
}

// IssueAuthorizationCode validates the request against the client's
// registration and mints a short-lived, single-use code. Configuration
// failures (unknown client, unregistered redirect URI, disallowed scope)
// are rejected before any code exists; there is no fallback.
func (s *Service) IssueAuthorizationCode(ctx context.Context, req IssueCodeRequest) (*AuthorizationCode, error) {
	client, err := s.repos.Clients.Get(ctx, req.ClientID)
	if err != nil {
		return nil, ErrInvalidClient
	}
	if client.Status != ClientStatusActive {
		return nil, ErrClientSuspended
	}
	if !client.AllowsRedirectURI(req.RedirectURI) {
		return nil, ErrInvalidRedirectURI
	}
	if err := client.AllowsScopes(req.Scopes); err != nil {
		return nil, err
	}

	switch req.CodeChallengeMethod {
	case ChallengeMethodNone, ChallengeMethodPlain, ChallengeMethodS256:
	default:
		return nil, errors.Errorf("[Service.IssueAuthorizationCode] unsupported challenge method %q", req.CodeChallengeMethod)
	}
	if client.IsPublic() && (req.CodeChallenge == "" || req.CodeChallengeMethod == ChallengeMethodNone) {
		return nil, ErrPKCERequired
	}

	value, err := newOpaqueValue()
	if err != nil {
		return nil, errors.Wrap(err, "[Service.IssueAuthorizationCode] newOpaqueValue")
	}

	now := s.nowFunc()
	code := &AuthorizationCode{
		Code:                value,
		ClientID:            client.ID,
		UserID:              req.UserID,
		RedirectURI:         req.RedirectURI,
		Scopes:              req.Scopes,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		IssuedAt:            now,
		ExpiresAt:           now.Add(s.codeTTL),
	}
	if err := s.repos.Codes.Insert(ctx, code); err != nil {
		return nil, errors.Wrap(err, "[Service.IssueAuthorizationCode] Codes.Insert")
	}
	return code, nil
}

// ExchangeRequest carries the parameters of a code exchange.
type ExchangeRequest struct {
	Code         string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	CodeVerifier string
}

// ExchangeCode trades a valid, unexpired, unused authorization code for an
// access/refresh token pair. The used flag is flipped through a
// conditional repo update before any token is issued, so two concurrent
// exchanges of one code yield exactly one success.
func (s *Service) ExchangeCode(ctx context.Context, req ExchangeRequest) (*TokenPair, error) {
	client, err := s.repos.Clients.Get(ctx, req.ClientID)
	if err != nil {
		return nil, ErrInvalidClient
	}
	if client.Status != ClientStatusActive {
		return nil, ErrClientSuspended
	}
	if !client.IsPublic() && !client.VerifySecret(req.ClientSecret) {
		return nil, ErrInvalidClient
	}

	code, err := s.repos.Codes.Get(ctx, req.Code)
	if err != nil {
		return nil, ErrInvalidGrant
	}

	now := s.nowFunc()
	switch {
	case code.ClientID != client.ID:
		return nil, ErrInvalidGrant
	case code.RedirectURI != req.RedirectURI:
		return nil, ErrInvalidGrant
	case now.After(code.ExpiresAt):
		return nil, ErrInvalidGrant
	case !verifyCodeChallenge(code.CodeChallenge, code.CodeChallengeMethod, req.CodeVerifier):
		return nil, ErrInvalidGrant
	}

	if code.Used {
		s.recordReplay(ctx, audit.KindCodeReplay, code.UserID, client.ID)
		return nil, ErrInvalidGrant
	}

	// The conditional mark is the serialization point: issuance happens
	// only after this succeeds.
	if err := s.repos.Codes.MarkUsed(ctx, req.Code); err != nil {
		if errors.Is(err, ErrCodeAlreadyUsed) {
			s.recordReplay(ctx, audit.KindCodeReplay, code.UserID, client.ID)
			return nil, ErrInvalidGrant
		}
		return nil, errors.Wrap(err, "[Service.ExchangeCode] Codes.MarkUsed")
	}

	pair, err := s.issueTokens(ctx, client.ID, code.UserID, code.Scopes)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.ExchangeCode] issueTokens")
	}
	return pair, nil
}

// Refresh trades a live refresh token for a new access token. With
// rotation enabled (the default) the presented refresh token is revoked
// before its successor is issued, so a captured-and-replayed old token is
// rejected.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	record, err := s.repos.Tokens.GetRefresh(ctx, hashToken(refreshToken))
	if err != nil {
		return nil, ErrInvalidGrant
	}
	if record.Revoked {
		s.recordReplay(ctx, audit.KindRefreshReplay, record.UserID, record.ClientID)
		return nil, ErrInvalidGrant
	}
	if s.nowFunc().After(record.ExpiresAt) {
		return nil, ErrInvalidGrant
	}

	if !s.rotateRefresh {
		pair, err := s.issueAccessToken(ctx, record.ClientID, record.UserID, record.Scopes)
		if err != nil {
			return nil, errors.Wrap(err, "[Service.Refresh] issueAccessToken")
		}
		pair.RefreshToken = refreshToken
		return pair, nil
	}

	// Rotation: the old token dies before the new one exists, never the
	// other way round.
	if err := s.repos.Tokens.RevokeRefresh(ctx, record.TokenHash); err != nil {
		return nil, errors.Wrap(err, "[Service.Refresh] Tokens.RevokeRefresh")
	}
	pair, err := s.issueTokens(ctx, record.ClientID, record.UserID, record.Scopes)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.Refresh] issueTokens")
	}
	return pair, nil
}

// Revoke marks an access or refresh token revoked. It is idempotent and
// succeeds for unknown values so a caller cannot probe which tokens
// exist. Revoking a refresh token does not retroactively revoke access
// tokens already issued from it; their short TTL bounds the blast radius.
func (s *Service) Revoke(ctx context.Context, tokenValue string) error {
	tokenHash := hashToken(tokenValue)

	if accessToken, err := s.repos.Tokens.GetAccess(ctx, tokenHash); err == nil {
		if err := s.repos.Tokens.RevokeAccess(ctx, tokenHash); err != nil {
			return errors.Wrap(err, "[Service.Revoke] Tokens.RevokeAccess")
		}
		s.auditor.Record(ctx, audit.Event{Kind: audit.KindTokenRevoked, UserID: accessToken.UserID, ClientID: accessToken.ClientID, Detail: "access"})
		return nil
	}

	if refreshToken, err := s.repos.Tokens.GetRefresh(ctx, tokenHash); err == nil {
		if err := s.repos.Tokens.RevokeRefresh(ctx, tokenHash); err != nil {
			return errors.Wrap(err, "[Service.Revoke] Tokens.RevokeRefresh")
		}
		s.auditor.Record(ctx, audit.Event{Kind: audit.KindTokenRevoked, UserID: refreshToken.UserID, ClientID: refreshToken.ClientID, Detail: "refresh"})
		return nil
	}

	return nil
}

// ValidateAccessToken resolves an opaque access-token value to its record.
// Revoked, expired, and unknown tokens all fail the same way.
func (s *Service) ValidateAccessToken(ctx context.Context, tokenValue string) (*AccessToken, error) {
	record, err := s.repos.Tokens.GetAccess(ctx, hashToken(tokenValue))
	if err != nil {
		return nil, ErrInvalidToken
	}
	if record.Revoked || s.nowFunc().After(record.ExpiresAt) {
		return nil, ErrInvalidToken
	}
	return record, nil
}

func (s *Service) issueTokens(ctx context.Context, clientID string, userID int64, scopes []string) (*TokenPair, error) {
	pair, err := s.issueAccessToken(ctx, clientID, userID, scopes)
	if err != nil {
		return nil, err
	}

	refreshValue, err := newOpaqueValue()
	if err != nil {
		return nil, errors.Wrap(err, "newOpaqueValue")
	}
	now := s.nowFunc()
	if err := s.repos.Tokens.InsertRefresh(ctx, &RefreshToken{
		TokenHash: hashToken(refreshValue),
		ClientID:  clientID,
		UserID:    userID,
		Scopes:    scopes,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.refreshTTL),
	}); err != nil {
		return nil, errors.Wrap(err, "Tokens.InsertRefresh")
	}

	pair.RefreshToken = refreshValue
	return pair, nil
}

func (s *Service) issueAccessToken(ctx context.Context, clientID string, userID int64, scopes []string) (*TokenPair, error) {
	accessValue, err := newOpaqueValue()
	if err != nil {
		return nil, errors.Wrap(err, "newOpaqueValue")
	}
	now := s.nowFunc()
	if err := s.repos.Tokens.InsertAccess(ctx, &AccessToken{
		TokenHash: hashToken(accessValue),
		ClientID:  clientID,
		UserID:    userID,
		Scopes:    scopes,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.accessTTL),
	}); err != nil {
		return nil, errors.Wrap(err, "Tokens.InsertAccess")
	}

	return &TokenPair{
		AccessToken: accessValue,
		TokenType:   "bearer",
		ExpiresIn:   int(s.accessTTL.Seconds()),
		Scopes:      scopes,
	}, nil
}

func (s *Service) recordReplay(ctx context.Context, kind audit.Kind, userID int64, clientID string) {
	s.auditor.Record(ctx, audit.Event{Kind: kind, UserID: userID, ClientID: clientID})
}

// verifyCodeChallenge checks the PKCE proof of possession. A recorded
// challenge demands a verifier; a missing challenge ignores any verifier.
func verifyCodeChallenge(challenge string, method ChallengeMethod, verifier string) bool {
	if challenge == "" {
		return true
	}
	if verifier == "" {
		return false
	}
	switch method {
	case ChallengeMethodS256:
		sum := sha256.Sum256([]byte(verifier))
		computed := base64.RawURLEncoding.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
	case ChallengeMethodPlain:
		return subtle.ConstantTimeCompare([]byte(verifier), []byte(challenge)) == 1
	}
	return false
}
