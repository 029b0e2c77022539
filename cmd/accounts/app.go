package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ndenisov/accounts/internal/db"
	"github.com/ndenisov/accounts/internal/handlers"
	"github.com/ndenisov/accounts/internal/handlers/middleware"
	"github.com/ndenisov/accounts/internal/logger"
	"github.com/ndenisov/accounts/internal/mailer"
	"github.com/ndenisov/accounts/internal/repository/postgres"
	"github.com/ndenisov/accounts/internal/service/auth"
	"github.com/ndenisov/accounts/internal/service/reset"
	"github.com/ndenisov/accounts/internal/service/user"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	// Initialize logger
	log, err := logger.NewTextLogger(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while creating logger. Err: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Outbound mail: real SMTP when configured, log-only otherwise
	var outbound mailer.Mailer
	smtpCfg := mailer.SMTPConfig{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		Username: c.SMTPUsername,
		Password: c.SMTPPassword,
		From:     c.EmailFrom,
	}
	if smtpCfg.Configured() {
		outbound, err = mailer.NewSMTP(smtpCfg)
		if err != nil {
			return nil, fmt.Errorf("error while creating mailer. Err: %w", err)
		}
	} else {
		log.Warn("SMTP not configured, password reset emails will be logged only")
		outbound = mailer.LogMailer{Logger: log}
	}

	// Initialize services
	sessionService, err := auth.NewSessionService(auth.SessionConfig{
		AccessSecret:  c.AccessTokenSecret,
		RefreshSecret: c.RefreshTokenSecret,
		Logger:        log,
	}, storage)
	if err != nil {
		return nil, fmt.Errorf("error while creating session service. Err: %w", err)
	}

	userService := user.NewService(auth.DefaultHasher, storage)

	resetService, err := reset.NewService(reset.Config{
		FrontendURL: c.FrontendURL,
		Logger:      log,
	}, storage, outbound)
	if err != nil {
		return nil, fmt.Errorf("error while creating reset service. Err: %w", err)
	}

	if len(c.AllowedOrigins) == 0 {
		log.Warn("no allowed origins configured, cross-origin requests will be rejected")
	}

	mux := handlers.NewRouter(
		sessionService,
		userService,
		resetService,
		handlers.CookieConfig{Secure: c.Production()},
		log,
		middleware.LoggerMiddleware(log),
		middleware.CORSMiddleware(c.AllowedOrigins),
		middleware.IdentityMiddleware(sessionService),
	)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
	}, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			slog.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		slog.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	slog.Info("Starting server", "addr", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
