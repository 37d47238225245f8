package server

import "github.com/fleetdesk/authcore/permissions"

func (s *Server) initRoutes() {
	// Session issuance is called by the platform's front door after
	// primary authentication; validation serves every other service.
	s.RegisterRouteHandler("POST "+RouteSessions, ChainMiddleware(s.IssueSessionHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteSessionsMe, ChainMiddleware(s.SessionInfoHandler(), s.APIMiddleware(s.RequireSession())...))

	// Second-factor lifecycle, all bound to the caller's session.
	s.RegisterRouteHandler("POST "+RouteTOTPEnroll, ChainMiddleware(s.TOTPEnrollHandler(), s.APIMiddleware(s.RequireSession())...))
	s.RegisterRouteHandler("POST "+RouteTOTPConfirm, ChainMiddleware(s.TOTPConfirmHandler(), s.APIMiddleware(s.RequireSession())...))
	s.RegisterRouteHandler("POST "+RouteTOTPVerify, ChainMiddleware(s.TOTPVerifyHandler(), s.APIMiddleware(s.RequireSession())...))
	s.RegisterRouteHandler("POST "+RouteTOTPDisable, ChainMiddleware(s.TOTPDisableHandler(), s.APIMiddleware(s.RequireSession())...))

	// Client administration.
	s.RegisterRouteHandler("POST "+RouteOAuthClients, ChainMiddleware(s.RegisterClientHandler(), s.APIMiddleware(s.RequireSession(), s.RequirePermission(permissions.PermClientsManage))...))
	s.RegisterRouteHandler("POST "+RouteOAuthClientRotate, ChainMiddleware(s.RotateClientSecretHandler(), s.APIMiddleware(s.RequireSession(), s.RequirePermission(permissions.PermClientsManage))...))

	// Delegated authorization endpoints.
	s.RegisterRouteHandler("POST "+RouteOAuth2Authorize, ChainMiddleware(s.AuthorizeHandler(), s.APIMiddleware(s.RequireSession())...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Token, ChainMiddleware(s.TokenHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Revoke, ChainMiddleware(s.RevokeHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteOAuth2Introspect, ChainMiddleware(s.IntrospectHandler(), s.APIMiddleware()...))
}
