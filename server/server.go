package server

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/fleetdesk/authcore/internal/config"
	"github.com/fleetdesk/authcore/oauth"
	"github.com/fleetdesk/authcore/permissions"
	"github.com/fleetdesk/authcore/session"
	"github.com/fleetdesk/authcore/totp"
)

type Server struct {
	env    string
	mux    *http.ServeMux
	routes []string
	config config.Config

	sessions  *session.Issuer
	totp      *totp.Manager
	oauth     *oauth.Service
	directory permissions.UserDirectory
}

func New(config config.Config, sessions *session.Issuer, totpManager *totp.Manager, oauthService *oauth.Service, directory permissions.UserDirectory) (*Server, error) {
	if sessions == nil || totpManager == nil || oauthService == nil || directory == nil {
		return nil, errors.New("[Server New] missing service dependency")
	}

	s := &Server{
		mux:       http.NewServeMux(),
		config:    config,
		sessions:  sessions,
		totp:      totpManager,
		oauth:     oauthService,
		directory: directory,
	}
	s.env = config.GetEnv()

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Printf("[%-19s] %s\n", displayMethod, path)
}
