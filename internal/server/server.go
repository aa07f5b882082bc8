// package server contains middleware & handlers for the tunegate authorization gateway
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunegate/internal/auth"
	"github.com/desertthunder/tunegate/internal/services"
	"github.com/desertthunder/tunegate/internal/shared"
	"github.com/desertthunder/tunegate/internal/store"
	"github.com/prometheus/client_golang/prometheus"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
// Common middleware includes logging, sessions, CORS, metrics, etc.
type Middleware func(http.Handler) http.Handler

// Handler defines the interface for HTTP request handlers that own their routes.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
// Implementations register handlers, apply middleware, and configure the HTTP server.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

const shutdownTimeout = 10 * time.Second

// Options are the dependencies of a [Server].
type Options struct {
	Config   *shared.Config
	Manager  *auth.Manager
	Service  services.Service
	Store    store.Store
	Logger   *log.Logger
	Registry *prometheus.Registry
}

// Server is the gateway's HTTP front.
type Server struct {
	cfg     *shared.Config
	manager *auth.Manager
	service services.Service
	store   store.Store
	logger  *log.Logger
	gate    *Gate
	router  *BasicRouter
}

// New wires the routes and middleware.
func New(opts Options) (*Server, error) {
	if opts.Config == nil || opts.Manager == nil || opts.Service == nil || opts.Store == nil {
		return nil, fmt.Errorf("%w: server dependencies", shared.ErrMissingArgument)
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}

	metrics, err := NewHTTPMetrics(opts.Registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register HTTP metrics: %w", err)
	}

	s := &Server{
		cfg:     opts.Config,
		manager: opts.Manager,
		service: opts.Service,
		store:   opts.Store,
		logger:  opts.Logger,
		router:  NewBasicRouter(),
	}
	s.gate = NewGate(opts.Manager, opts.Logger)

	s.router.Use(
		Recover(s.logger),
		Logging(s.logger),
		metrics.Middleware,
		CORS(s.cfg.Server.AllowedOrigins),
	)
	s.router.Handler(&healthHandler{store: s.store})
	s.router.Handle(http.MethodGet, "/metrics", metricsHandler(opts.Registry))

	s.router.Use(Sessions(s.cfg.Server.CookieSecure, s.logger))
	s.router.Handle(http.MethodGet, "/{$}", http.HandlerFunc(s.home))
	s.router.Handle(http.MethodGet, "/callback", http.HandlerFunc(s.callback))
	s.router.Handle(http.MethodGet, "/get_playlists", http.HandlerFunc(s.getPlaylists))
	s.router.Handle(http.MethodPost, "/create_playlist", http.HandlerFunc(s.createPlaylist))
	s.router.Handle(http.MethodGet, "/search_song", http.HandlerFunc(s.searchSong))
	s.router.Handle(http.MethodPost, "/add_song_to_playlist", http.HandlerFunc(s.addSongToPlaylist))
	s.router.Handle(http.MethodGet, "/logout", http.HandlerFunc(s.logout))

	return s, nil
}

// Handler returns the root [http.Handler].
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
