package server

import (
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/fleetdesk/authcore/oauth"
)

type registerClientRequest struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	TenantID     *int64   `json:"tenant_id,omitempty"`
	RedirectURIs []string `json:"redirect_uris"`
	Scopes       []string `json:"scopes"`
}

type registerClientResponse struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// RegisterClientHandler creates a delegated-authorization client. The
// secret in the response is the only time it exists in plaintext.
func (s *Server) RegisterClientHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerClientRequest
		if err := decodeJSON(r, &req); err != nil {
			writeJSONError(w, "invalid_request", "malformed request body", http.StatusBadRequest)
			return
		}

		clientType := oauth.ClientType(req.Type)
		if clientType != oauth.ClientTypeConfidential && clientType != oauth.ClientTypePublic {
			writeJSONError(w, "invalid_request", "type must be confidential or public", http.StatusBadRequest)
			return
		}

		client, secret, err := s.oauth.RegisterClient(r.Context(), req.Name, clientType, req.TenantID, req.RedirectURIs, req.Scopes)
		if err != nil {
			if errors.Is(err, oauth.ErrInvalidRedirectURI) {
				writeJSONError(w, "invalid_request", "redirect URIs must be absolute http(s) URLs without fragments", http.StatusBadRequest)
				return
			}
			writeJSONError(w, "server_error", "client registration failed", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusCreated, registerClientResponse{
			ClientID:     client.ID,
			ClientSecret: secret,
		})
	}
}

// RotateClientSecretHandler replaces a confidential client's secret.
func (s *Server) RotateClientSecretHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID := r.PathValue("clientID")

		secret, err := s.oauth.RotateClientSecret(r.Context(), clientID)
		if err != nil {
			if errors.Is(err, oauth.ErrInvalidClient) {
				writeJSONError(w, "invalid_client", "unknown client", http.StatusNotFound)
				return
			}
			writeJSONError(w, "server_error", "secret rotation failed", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, registerClientResponse{
			ClientID:     clientID,
			ClientSecret: secret,
		})
	}
}

type authorizeResponse struct {
	Code        string `json:"code"`
	State       string `json:"state,omitempty"`
	RedirectURI string `json:"redirect_uri"`
}

// AuthorizeHandler issues a single-use authorization code bound to the
// session's user. The front end performs the redirect itself; this
// endpoint only mints the code.
func (s *Server) AuthorizeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		userID, err := claims.UserID()
		if err != nil {
			writeJSONError(w, "invalid_token", "session token rejected", http.StatusUnauthorized)
			return
		}

		if err := r.ParseForm(); err != nil {
			writeJSONError(w, "invalid_request", "failed to parse form data", http.StatusBadRequest)
			return
		}

		code, err := s.oauth.IssueAuthorizationCode(r.Context(), oauth.IssueCodeRequest{
			ClientID:            r.FormValue("client_id"),
			UserID:              userID,
			RedirectURI:         r.FormValue("redirect_uri"),
			Scopes:              splitScopes(r.FormValue("scope")),
			CodeChallenge:       r.FormValue("code_challenge"),
			CodeChallengeMethod: oauth.ChallengeMethod(r.FormValue("code_challenge_method")),
		})
		if err != nil {
			writeAuthorizeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, authorizeResponse{
			Code:        code.Code,
			State:       r.FormValue("state"),
			RedirectURI: code.RedirectURI,
		})
	}
}

// TokenHandler exchanges an authorization code or refresh token for an
// access/refresh token pair.
func (s *Server) TokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, "invalid_request", "failed to parse form data", http.StatusBadRequest)
			return
		}

		var (
			pair *oauth.TokenPair
			err  error
		)
		switch grantType := r.FormValue("grant_type"); grantType {
		case "authorization_code":
			pair, err = s.oauth.ExchangeCode(r.Context(), oauth.ExchangeRequest{
				Code:         r.FormValue("code"),
				ClientID:     r.FormValue("client_id"),
				ClientSecret: r.FormValue("client_secret"),
				RedirectURI:  r.FormValue("redirect_uri"),
				CodeVerifier: r.FormValue("code_verifier"),
			})
		case "refresh_token":
			pair, err = s.oauth.Refresh(r.Context(), r.FormValue("refresh_token"))
		default:
			writeJSONError(w, "unsupported_grant_type", "grant_type must be authorization_code or refresh_token", http.StatusBadRequest)
			return
		}
		if err != nil {
			writeJSONError(w, "invalid_grant", "grant rejected", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		writeJSON(w, http.StatusOK, pair)
	}
}

// RevokeHandler revokes an access or refresh token. Unknown tokens
// return 200 per RFC 7009.
func (s *Server) RevokeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, "invalid_request", "failed to parse form data", http.StatusBadRequest)
			return
		}

		token := r.FormValue("token")
		if token == "" {
			writeJSONError(w, "invalid_request", "token parameter is required", http.StatusBadRequest)
			return
		}

		if err := s.oauth.Revoke(r.Context(), token); err != nil {
			writeJSONError(w, "server_error", "revocation failed", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}

type introspectResponse struct {
	Active   bool   `json:"active"`
	ClientID string `json:"client_id,omitempty"`
	UserID   int64  `json:"user_id,omitempty"`
	Scope    string `json:"scope,omitempty"`
	Exp      int64  `json:"exp,omitempty"`
}

// IntrospectHandler reports whether an access token is live. Revoked,
// expired, and unknown tokens all come back inactive.
func (s *Server) IntrospectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			writeJSONError(w, "invalid_request", "failed to parse form data", http.StatusBadRequest)
			return
		}

		token := r.FormValue("token")
		if token == "" {
			writeJSONError(w, "invalid_request", "token parameter is required", http.StatusBadRequest)
			return
		}

		accessToken, err := s.oauth.ValidateAccessToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, introspectResponse{Active: false})
			return
		}

		writeJSON(w, http.StatusOK, introspectResponse{
			Active:   true,
			ClientID: accessToken.ClientID,
			UserID:   accessToken.UserID,
			Scope:    strings.Join(accessToken.Scopes, " "),
			Exp:      accessToken.ExpiresAt.Unix(),
		})
	}
}

func writeAuthorizeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, oauth.ErrClientNotFound), errors.Is(err, oauth.ErrInvalidClient):
		writeJSONError(w, "invalid_client", "unknown client", http.StatusBadRequest)
	case errors.Is(err, oauth.ErrClientSuspended):
		writeJSONError(w, "unauthorized_client", "client suspended", http.StatusForbidden)
	case errors.Is(err, oauth.ErrInvalidRedirectURI):
		writeJSONError(w, "invalid_request", "redirect_uri not registered for this client", http.StatusBadRequest)
	case errors.Is(err, oauth.ErrInvalidScope):
		writeJSONError(w, "invalid_scope", "requested scope exceeds the client's registration", http.StatusBadRequest)
	case errors.Is(err, oauth.ErrPKCERequired):
		writeJSONError(w, "invalid_request", "public clients must send a code challenge", http.StatusBadRequest)
	default:
		writeJSONError(w, "server_error", "authorization failed", http.StatusInternalServerError)
	}
}

func splitScopes(scope string) []string {
	if scope == "" {
		return nil
	}
	return strings.Fields(scope)
}
