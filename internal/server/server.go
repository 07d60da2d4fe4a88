// Package server wires the goSession engine into the sessiond HTTP routes.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/middleware"
)

// Options configures routes and listener behavior.
type Options struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration

	// LoginPath starts the OAuth flow; CallbackPath receives the
	// authorization response.
	LoginPath    string
	CallbackPath string

	// RefreshRate and RefreshBurst bound calls to the batch refresh route.
	// A zero rate disables the limit.
	RefreshRate  float64
	RefreshBurst int

	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

// Server serves the session routes for one engine.
type Server struct {
	engine  *goSession.Engine
	log     logrus.FieldLogger
	opts    Options
	limiter *rate.Limiter
}

// New creates a Server. Empty paths take the /auth/login and /login
// defaults.
func New(engine *goSession.Engine, log logrus.FieldLogger, opts Options) *Server {
	if opts.LoginPath == "" {
		opts.LoginPath = "/auth/login"
	}
	if opts.CallbackPath == "" {
		opts.CallbackPath = "/login"
	}
	if opts.ReadHeaderTimeout <= 0 {
		opts.ReadHeaderTimeout = 10 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 15 * time.Second
	}

	s := &Server{
		engine: engine,
		log:    log.WithField("component", "server"),
		opts:   opts,
	}
	if opts.RefreshRate > 0 {
		burst := opts.RefreshBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RefreshRate), burst)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics)
	}

	// Machine route: no session, bearer key only. The limiter runs first so
	// key guesses are throttled too.
	r.With(s.rateLimit, middleware.RequireAPIKey(s.engine.Config().Refresh.APIKey, s.log)).
		Post("/api/refresh-tokens", s.handleRefreshTokens)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Session(s.engine))

		r.Get(s.opts.LoginPath, s.handleLogin)
		r.Get(s.opts.CallbackPath, s.handleCallback)
		r.Post("/auth/logout", s.handleLogout)

		r.With(middleware.RequireAuth(s.engine, s.opts.LoginPath)).
			Get("/api/protected", s.handleProtected)
	})

	return r
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.opts.ReadHeaderTimeout,
	}

	listener, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("address", listener.Addr().String()).Info("Starting session server")
		errCh <- srv.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		s.log.Info("Shutting down session server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			s.log.WithField("path", r.URL.Path).Warn("Rate limit exceeded")
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
