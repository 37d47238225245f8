package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/fleetdesk/authcore/audit"
	"github.com/fleetdesk/authcore/internal/config"
	"github.com/fleetdesk/authcore/oauth"
	oauthfake "github.com/fleetdesk/authcore/oauth/repofake"
	"github.com/fleetdesk/authcore/permissions"
	permfake "github.com/fleetdesk/authcore/permissions/repofake"
	"github.com/fleetdesk/authcore/postgres"
	"github.com/fleetdesk/authcore/server"
	"github.com/fleetdesk/authcore/session"
	"github.com/fleetdesk/authcore/totp"
	totpfake "github.com/fleetdesk/authcore/totp/repofake"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatal().Err(err).Msg("error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	handler, err := buildServer(c)
	if err != nil {
		return err
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: handler}
	go listenAndServe(httpServer)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

func buildServer(c config.Config) (*server.Server, error) {
	signingSecret := c.GetSigningSecret()
	if signingSecret == "" {
		return nil, errors.New("SESSION_SIGNING_SECRET is required")
	}

	auditor := audit.NewLogRecorder(log.Logger)

	var (
		directory   permissions.UserDirectory
		roles       permissions.RoleRepo
		passwords   totp.PasswordVerifier
		credentials totp.CredentialRepo
		oauthRepos  oauth.Repos
	)

	if dsn := c.GetPostgresDSN(); dsn != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		db, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return nil, err
		}

		store := postgres.NewStore(db)
		directory = store.Directory()
		roles = store.Roles()
		passwords = store.Directory()
		credentials = store.Credentials()
		oauthRepos = oauth.Repos{
			Clients: store.Clients(),
			Codes:   store.Codes(),
			Tokens:  store.Tokens(),
		}
		log.Info().Msg("using postgres stores")
	} else {
		directory = permfake.NewFakeDirectory()
		roles = permfake.NewFakeRoleRepo()
		passwords = totpfake.NewFakePasswordVerifier()
		credentials = totpfake.NewFakeCredentialRepo()
		oauthRepos = oauth.Repos{
			Clients: oauthfake.NewFakeClientRepo(),
			Codes:   oauthfake.NewFakeCodeRepo(),
			Tokens:  oauthfake.NewFakeTokenRepo(),
		}
		log.Warn().Msg("POSTGRES_DSN not set, using in-memory stores")
	}

	resolver, err := permissions.NewResolver(directory, roles)
	if err != nil {
		return nil, err
	}

	issuer, err := session.NewIssuer(resolver, session.NewHMACSigner(signingSecret),
		c.GetTokenIssuer(), c.GetTokenAudience(), session.WithTokenTTL(c.GetSessionTTL()))
	if err != nil {
		return nil, err
	}

	totpManager, err := totp.NewManager(credentials, passwords, auditor,
		totp.WithIssuerName(c.GetTOTPIssuer()),
		totp.WithLockoutPolicy(c.GetMaxTOTPFailures(), c.GetTOTPLockoutWindow()))
	if err != nil {
		return nil, err
	}

	oauthService, err := oauth.NewService(oauthRepos, auditor,
		oauth.WithTokenTTLs(c.GetAuthCodeTTL(), c.GetAccessTokenTTL(), c.GetRefreshTokenTTL()),
		oauth.WithRefreshRotation(c.GetRotateRefreshTokens()))
	if err != nil {
		return nil, err
	}

	return server.New(c, issuer, totpManager, oauthService, directory)
}

func listenAndServe(srv *http.Server) {
	log.Info().Str("addr", srv.Addr).Msg("server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "server.Shutdown")
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
