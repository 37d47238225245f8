package config

import (
	"strconv"
	"time"
)

type TOTPConfig interface {
	GetTOTPIssuer() string
	GetMaxTOTPFailures() int
	GetTOTPLockoutWindow() time.Duration
}

type TOTP struct{}

var _ TOTPConfig = TOTP{}

func (TOTP) GetTOTPIssuer() string {
	return GetEnv("TOTP_ISSUER", "FleetDesk")
}

func (TOTP) GetMaxTOTPFailures() int {
	value, err := strconv.Atoi(GetEnv("TOTP_MAX_FAILURES", "5"))
	if err != nil || value < 1 {
		return 5
	}
	return value
}

func (TOTP) GetTOTPLockoutWindow() time.Duration {
	return GetDurationEnv("TOTP_LOCKOUT_WINDOW", 15*time.Minute)
}
