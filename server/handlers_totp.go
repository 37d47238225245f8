package server

import (
	"net/http"
	"strconv"

	"github.com/pkg/errors"

	"github.com/fleetdesk/authcore/totp"
)

type totpEnrollResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
}

// TOTPEnrollHandler starts enrollment for the session's user and returns
// the secret to show exactly once.
func (s *Server) TOTPEnrollHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		userID, err := claims.UserID()
		if err != nil {
			writeJSONError(w, "invalid_token", "session token rejected", http.StatusUnauthorized)
			return
		}

		enrollment, err := s.totp.BeginEnrollment(r.Context(), userID, claims.DisplayName)
		if err != nil {
			if errors.Is(err, totp.ErrAlreadyEnabled) {
				writeJSONError(w, "invalid_request", "second factor already enabled", http.StatusConflict)
				return
			}
			writeJSONError(w, "server_error", "enrollment failed", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, totpEnrollResponse{
			Secret:          enrollment.Secret,
			ProvisioningURI: enrollment.ProvisioningURI,
		})
	}
}

type totpCodeRequest struct {
	Code string `json:"code"`
}

type totpConfirmResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

// TOTPConfirmHandler completes enrollment. The backup codes in the
// response are the only time they exist in plaintext.
func (s *Server) TOTPConfirmHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		userID, err := claims.UserID()
		if err != nil {
			writeJSONError(w, "invalid_token", "session token rejected", http.StatusUnauthorized)
			return
		}

		var req totpCodeRequest
		if err := decodeJSON(r, &req); err != nil {
			writeJSONError(w, "invalid_request", "malformed request body", http.StatusBadRequest)
			return
		}

		backupCodes, err := s.totp.ConfirmEnrollment(r.Context(), userID, req.Code)
		if err != nil {
			writeTOTPError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, totpConfirmResponse{BackupCodes: backupCodes})
	}
}

// TOTPVerifyHandler checks a code or backup code against the enabled
// credential.
func (s *Server) TOTPVerifyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		userID, err := claims.UserID()
		if err != nil {
			writeJSONError(w, "invalid_token", "session token rejected", http.StatusUnauthorized)
			return
		}

		var req totpCodeRequest
		if err := decodeJSON(r, &req); err != nil {
			writeJSONError(w, "invalid_request", "malformed request body", http.StatusBadRequest)
			return
		}

		if err := s.totp.Verify(r.Context(), userID, req.Code); err != nil {
			writeTOTPError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]bool{"verified": true})
	}
}

type totpDisableRequest struct {
	Password string `json:"password"`
	Code     string `json:"code"`
}

// TOTPDisableHandler removes the second factor after re-authentication.
func (s *Server) TOTPDisableHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		userID, err := claims.UserID()
		if err != nil {
			writeJSONError(w, "invalid_token", "session token rejected", http.StatusUnauthorized)
			return
		}

		var req totpDisableRequest
		if err := decodeJSON(r, &req); err != nil {
			writeJSONError(w, "invalid_request", "malformed request body", http.StatusBadRequest)
			return
		}

		if err := s.totp.Disable(r.Context(), userID, req.Password, req.Code); err != nil {
			writeTOTPError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]bool{"disabled": true})
	}
}

func writeTOTPError(w http.ResponseWriter, err error) {
	var lockout *totp.LockedOutError
	switch {
	case errors.As(err, &lockout):
		w.Header().Set("Retry-After", strconv.Itoa(int(lockout.RetryAfter.Seconds())))
		writeJSONError(w, "locked_out", "too many failed attempts", http.StatusTooManyRequests)
	case errors.Is(err, totp.ErrInvalidCode), errors.Is(err, totp.ErrInvalidCredentials):
		writeJSONError(w, "invalid_code", "verification failed", http.StatusUnauthorized)
	case errors.Is(err, totp.ErrNotEnrolled), errors.Is(err, totp.ErrNotPending):
		writeJSONError(w, "invalid_request", "no credential in the required state", http.StatusConflict)
	default:
		writeJSONError(w, "server_error", "verification failed", http.StatusInternalServerError)
	}
}
