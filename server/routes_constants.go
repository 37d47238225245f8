package server

const (
	RouteSessions    = "/api/v1/sessions"
	RouteSessionsMe  = "/api/v1/sessions/me"
	RouteTOTPEnroll  = "/api/v1/totp/enroll"
	RouteTOTPConfirm = "/api/v1/totp/confirm"
	RouteTOTPVerify  = "/api/v1/totp/verify"
	RouteTOTPDisable = "/api/v1/totp/disable"

	RouteOAuthClients      = "/api/v1/oauth/clients"
	RouteOAuthClientRotate = "/api/v1/oauth/clients/{clientID}/rotate-secret"

	RouteOAuth2Authorize  = "/oauth2/authorize"
	RouteOAuth2Token      = "/oauth2/token"
	RouteOAuth2Revoke     = "/oauth2/revoke"
	RouteOAuth2Introspect = "/oauth2/introspect"

	contentTypeJSON = "application/json"
)
