package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"stash/internal/auth"
	"stash/internal/files"
)

const (
	allowRemoteEnvKey = "STASH_ALLOW_REMOTE"
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 5 * time.Minute
	writeTimeout      = 5 * time.Minute
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 10 * time.Second

	defaultRequestTimeout = 30 * time.Second
	defaultMaxUploadBytes = 512 << 20 // 512 MiB
	defaultSessionMaxAge  = 30 * 24 * time.Hour
	defaultSignInPath     = "/sign-in"

	loginMaxFailures = 5
	loginWindow      = 15 * time.Minute
	loginBlockedFor  = 15 * time.Minute
)

// Config tunes the HTTP layer. Zero values select defaults.
type Config struct {
	Addr           string
	RequestTimeout time.Duration
	MaxUploadBytes int64
	// SessionMaxAge is the lifetime of the session cookie.
	SessionMaxAge time.Duration
	// SignInPath is where sign-out redirects to.
	SignInPath string
}

// Server wraps HTTP handlers for the stash API.
type Server struct {
	addr           string
	auth           *auth.Flow
	files          *files.Service
	logger         *slog.Logger
	requestTimeout time.Duration
	maxUploadBytes int64
	sessionMaxAge  time.Duration
	signInPath     string
	loginLimiter   *loginRateLimiter
	now            func() time.Time
}

// New creates a new server instance.
func New(cfg Config, flow *auth.Flow, fileService *files.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.SessionMaxAge <= 0 {
		cfg.SessionMaxAge = defaultSessionMaxAge
	}
	if strings.TrimSpace(cfg.SignInPath) == "" {
		cfg.SignInPath = defaultSignInPath
	}

	return &Server{
		addr:           cfg.Addr,
		auth:           flow,
		files:          fileService,
		logger:         logger.With("component", "server"),
		requestTimeout: cfg.RequestTimeout,
		maxUploadBytes: cfg.MaxUploadBytes,
		sessionMaxAge:  cfg.SessionMaxAge,
		signInPath:     cfg.SignInPath,
		loginLimiter:   newLoginRateLimiter(loginMaxFailures, loginWindow, loginBlockedFor),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Handler returns the routed handler wrapped in the request middleware.
func (s *Server) Handler() http.Handler {
	return s.withRequestLogging(s.withRequestTimeout(s.routes()))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.log().Info("starting server", "addr", s.addr)
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.log().Info("shutting down server", "addr", s.addr)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
