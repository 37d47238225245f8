package config

type Config interface {
	EnvConfig
	SessionConfig
	OAuthConfig
	TOTPConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetPostgresDSN() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	Session
	OAuth
	TOTP
}

func New() Config {
	return mainConfig{}
}
