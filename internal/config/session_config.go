package config

import "time"

type SessionConfig interface {
	GetSigningSecret() string
	GetTokenIssuer() string
	GetTokenAudience() string
	GetSessionTTL() time.Duration
}

type Session struct{}

var _ SessionConfig = Session{}

func (Session) GetSigningSecret() string {
	return GetEnv("SESSION_SIGNING_SECRET", "")
}

func (Session) GetTokenIssuer() string {
	return GetEnv("TOKEN_ISSUER", "fleetdesk-auth")
}

func (Session) GetTokenAudience() string {
	return GetEnv("TOKEN_AUDIENCE", "fleetdesk-api")
}

func (Session) GetSessionTTL() time.Duration {
	return GetDurationEnv("SESSION_TTL", 24*time.Hour)
}
