package config

import "time"

type OAuthConfig interface {
	GetAuthCodeTTL() time.Duration
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetRotateRefreshTokens() bool
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

func (OAuth) GetAuthCodeTTL() time.Duration {
	return GetDurationEnv("AUTH_CODE_TTL", 5*time.Minute)
}

func (OAuth) GetAccessTokenTTL() time.Duration {
	return GetDurationEnv("ACCESS_TOKEN_TTL", 1*time.Hour)
}

func (OAuth) GetRefreshTokenTTL() time.Duration {
	return GetDurationEnv("REFRESH_TOKEN_TTL", 30*24*time.Hour)
}

func (OAuth) GetRotateRefreshTokens() bool {
	return GetEnv("ROTATE_REFRESH_TOKENS", "true") != "false"
}
