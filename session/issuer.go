// Package session issues and validates the signed, stateless session
// tokens carried by human users of the platform. Authorization claims are
// embedded at issuance so per-request checks are O(1) and offline; the
// accepted cost is that a permission revoked mid-session stays effective
// until the token expires.
package session

import (
	"context"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/fleetdesk/authcore/permissions"
)

// ErrInvalidToken is the only failure Validate surfaces. Expired, forged,
// and malformed tokens are indistinguishable to the caller.
var ErrInvalidToken = errors.New("invalid session token")

const defaultTokenTTL = 24 * time.Hour

// Issuer mints and validates session tokens.
type Issuer struct {
	resolver *permissions.Resolver
	signer   Signer
	issuer   string
	audience string
	tokenTTL time.Duration
	nowFunc  func() time.Time
}

// IssuerOption modifies an Issuer during construction.
type IssuerOption func(*Issuer)

// WithTokenTTL overrides the default 24h session lifetime.
func WithTokenTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) {
		i.tokenTTL = ttl
	}
}

// WithNowFunc sets the clock (primarily for testing).
func WithNowFunc(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.nowFunc = now
	}
}

// NewIssuer initializes an Issuer.
func NewIssuer(resolver *permissions.Resolver, signer Signer, issuer, audience string, options ...IssuerOption) (*Issuer, error) {
	if resolver == nil {
		return nil, errors.New("[NewIssuer] permission resolver is required")
	}
	if signer == nil {
		return nil, errors.New("[NewIssuer] signer is required")
	}
	if issuer == "" || audience == "" {
		return nil, errors.New("[NewIssuer] issuer and audience are required")
	}

	i := &Issuer{
		resolver: resolver,
		signer:   signer,
		issuer:   issuer,
		audience: audience,
		tokenTTL: defaultTokenTTL,
		nowFunc:  time.Now,
	}
	for _, opt := range options {
		opt(i)
	}
	return i, nil
}

// Issue resolves the user's permissions and mints a signed token carrying
// the snapshot.
func (i *Issuer) Issue(ctx context.Context, user *permissions.DirectoryUser) (string, error) {
	if user == nil {
		return "", errors.New("[Issuer.Issue] user is required")
	}
	resolved, err := i.resolver.ResolvePermissions(ctx, user.ID)
	if err != nil {
		return "", errors.Wrap(err, "[Issuer.Issue] ResolvePermissions")
	}
	return i.IssueWithPermissions(user, resolved)
}

// IssueWithPermissions mints a token for an already-resolved permission
// set, e.g. when the caller has just run the resolver itself.
func (i *Issuer) IssueWithPermissions(user *permissions.DirectoryUser, resolved []permissions.Permission) (string, error) {
	permissionList := make([]string, 0, len(resolved))
	for _, p := range resolved {
		permissionList = append(permissionList, string(p))
	}

	now := i.nowFunc()
	claims := &Claims{
		TenantID:    user.TenantID,
		DisplayName: user.DisplayName,
		PrimaryRole: user.PrimaryRole,
		Permissions: permissionList,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.tokenTTL)),
			ID:        uuid.New().String(),
		},
	}

	signed, err := i.signer.Sign(claims)
	if err != nil {
		return "", errors.Wrap(err, "[Issuer.IssueWithPermissions] signer.Sign")
	}
	return signed, nil
}

// Validate verifies signature, issuer, audience, and expiry (no leeway)
// and returns the embedded claims. All failures collapse to
// ErrInvalidToken so the validator cannot be used as an oracle.
func (i *Issuer) Validate(rawToken string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{i.signer.SigningMethod().Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.nowFunc),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(rawToken, claims, i.signer.VerificationKey)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
