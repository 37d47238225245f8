package server

import (
	"net/http"

	"github.com/pkg/errors"

	"github.com/fleetdesk/authcore/permissions"
)

type issueSessionRequest struct {
	UserID int64 `json:"user_id"`
}

type issueSessionResponse struct {
	Token string `json:"token"`
}

// IssueSessionHandler mints a signed session token for an already
// authenticated user. Primary credential checks happen upstream; this
// endpoint trusts its caller and only snapshots identity and permissions.
func (s *Server) IssueSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req issueSessionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeJSONError(w, "invalid_request", "malformed request body", http.StatusBadRequest)
			return
		}

		user, err := s.directory.FindUserByID(r.Context(), req.UserID)
		if err != nil {
			if errors.Is(err, permissions.ErrUserNotFound) {
				writeJSONError(w, "invalid_request", "unknown user", http.StatusNotFound)
				return
			}
			writeJSONError(w, "server_error", "directory lookup failed", http.StatusInternalServerError)
			return
		}

		token, err := s.sessions.Issue(r.Context(), user)
		if err != nil {
			writeJSONError(w, "server_error", "token issuance failed", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusCreated, issueSessionResponse{Token: token})
	}
}

type sessionInfoResponse struct {
	UserID      int64    `json:"user_id"`
	TenantID    *int64   `json:"tenant_id,omitempty"`
	DisplayName string   `json:"display_name,omitempty"`
	PrimaryRole string   `json:"primary_role,omitempty"`
	Permissions []string `json:"permissions"`
	ExpiresAt   int64    `json:"expires_at"`
}

// SessionInfoHandler echoes the validated claims back to the caller.
func (s *Server) SessionInfoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		if claims == nil {
			writeJSONError(w, "invalid_token", "session token rejected", http.StatusUnauthorized)
			return
		}

		userID, err := claims.UserID()
		if err != nil {
			writeJSONError(w, "invalid_token", "session token rejected", http.StatusUnauthorized)
			return
		}

		writeJSON(w, http.StatusOK, sessionInfoResponse{
			UserID:      userID,
			TenantID:    claims.TenantID,
			DisplayName: claims.DisplayName,
			PrimaryRole: claims.PrimaryRole,
			Permissions: claims.Permissions,
			ExpiresAt:   claims.ExpiresAt.Unix(),
		})
	}
}
