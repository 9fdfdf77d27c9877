package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"lightup/internal/runtime/supervisor"
	logx "lightup/pkg/logx"
)

const DefaultAddr = "127.0.0.1:8080"

// Config controls the API listener.
type Config struct {
	Enabled      bool
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server runs the API under its own supervisor so that a failed listener
// is retried without affecting the scheduler.
type Server struct {
	mu      sync.Mutex
	log     logx.Logger
	cfg     Config
	handler http.Handler

	ln  net.Listener
	srv *http.Server
	sup *supervisor.Supervisor
}

func NewServer(cfg Config, handler http.Handler, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg, handler: handler, log: log.With(logx.String("comp", "http"))}
}

// Supervisor returns the server's supervisor, nil when not started.
func (s *Server) Supervisor() *supervisor.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

// Addr returns the bound address once listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Start is idempotent. A disabled config does nothing.
func (s *Server) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil || !s.cfg.Enabled {
		return
	}
	s.sup = supervisor.New(ctx,
		supervisor.WithLogger(s.log),
		supervisor.WithCancelOnError(false),
	)
	s.sup.GoRestart("http.serve", s.serveOnce,
		supervisor.WithPublishFirstError(true),
		supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
	)
}

// Stop shuts the listener down gracefully within ctx.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup, srv := s.sup, s.srv
	s.sup, s.srv, s.ln = nil, nil, nil
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}
	sup.Cancel()
	if werr := sup.Wait(ctx); werr != nil && err == nil {
		err = werr
	}
	s.log.Info("http api stopped")
	return err
}

func (s *Server) serveOnce(ctx context.Context) error {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = DefaultAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		return err
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.ln, s.srv = ln, srv
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("http api listening", logx.String("addr", ln.Addr().String()))
	err = srv.Serve(ln)

	s.mu.Lock()
	if s.srv == srv {
		s.ln, s.srv = nil, nil
	}
	s.mu.Unlock()

	if ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("http server exited unexpectedly")
	}
	return err
}
