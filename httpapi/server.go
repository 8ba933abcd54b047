package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/vitalvas/docsign/config"
	"github.com/vitalvas/docsign/session"
)

// readHeaderTimeout bounds the time to read request headers.
const readHeaderTimeout = 30 * time.Second

// Server serves the docsign HTTP API.
type Server struct {
	cfg      config.Config
	logger   zerolog.Logger
	sessions *session.Store
	handler  http.Handler
}

// New returns a Server for cfg. The session store it creates is closed when
// Serve returns.
func New(cfg config.Config, logger zerolog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		sessions: session.New(session.Options{
			TTL:         cfg.SessionTTL,
			MaxSessions: cfg.MaxSessions,
		}),
	}

	handler, err := s.buildHandler()
	if err != nil {
		return nil, err
	}

	s.handler = handler

	return s, nil
}

func (s *Server) buildHandler() (http.Handler, error) {
	security, err := SecurityHeadersMiddleware(SecurityHeadersConfig{})
	if err != nil {
		return nil, err
	}

	sizeLimit, err := RequestSizeLimitMiddleware(s.cfg.MaxUploadBytes)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /generate_keys", s.handleGenerateKeys)
	mux.HandleFunc("GET /download_key/{type}", s.handleDownloadKey)
	mux.HandleFunc("POST /sign_document", s.handleSignDocument)
	mux.HandleFunc("GET /download_signature", s.handleDownloadSignature)
	mux.HandleFunc("POST /verify_signature", s.handleVerifySignature)
	mux.HandleFunc("GET /verification_result", s.handleVerificationResult)
	mux.HandleFunc("DELETE /session", s.handleClearSession)

	return Chain(mux,
		RecoveryMiddleware(RecoveryConfig{LogFunc: s.logPanic}),
		RequestIDMiddleware(false),
		AccessLogMiddleware(s.logger),
		security,
		sizeLimit,
	), nil
}

func (s *Server) logPanic(r *http.Request, err any) {
	s.logger.Error().
		Str("request_id", r.Header.Get(RequestIDHeader)).
		Str("path", r.URL.Path).
		Interface("panic", err).
		Msg("handler panic")
}

// Handler returns the root HTTP handler with all middlewares applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Sessions returns the server's session store.
func (s *Server) Sessions() *session.Store {
	return s.sessions
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("httpapi: listen %s: %w", s.cfg.ListenAddr, err)
	}

	return s.Serve(ctx, ln)
}

// Serve accepts HTTP/1.1 and cleartext HTTP/2 connections on ln until ctx
// is done, then shuts down gracefully and clears every session.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.sessions.Start()
	defer s.sessions.Close()

	srv := &http.Server{
		Handler:           h2c.NewHandler(s.handler, &http2.Server{}),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("httpapi: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info().Msg("shutting down")

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("httpapi: shutdown: %w", err)
	}

	return nil
}
