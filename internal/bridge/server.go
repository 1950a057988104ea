// Package bridge exposes a connected device over HTTP and WebSocket. It owns
// the reconnect policy and republishes state changes to browser clients.
package bridge

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/markus-barta/webos-remote/internal/commands"
	"github.com/markus-barta/webos-remote/internal/remote"
	"github.com/markus-barta/webos-remote/internal/state"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Device is what the bridge needs from a remote client.
type Device interface {
	commands.Remote
	Connector
	IsConnected() bool
	RegisterObserver(fn state.Observer) state.ObserverID
	UnregisterObserver(id state.ObserverID)
}

var _ Device = (*remote.Client)(nil)

// Config holds the bridge settings.
type Config struct {
	ListenAddr   string
	TokenHash    string
	TOTPSecret   string
	ReconnectMax time.Duration
}

// Server is the bridge HTTP server.
type Server struct {
	cfg      Config
	device   Device
	registry commands.Registry
	log      zerolog.Logger
	auth     *Auth
	hub      *Hub
	router   *chi.Mux
	upgrader websocket.Upgrader
}

// New creates a bridge server for device.
func New(cfg Config, device Device, log zerolog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		device:   device,
		registry: commands.Default(),
		log:      log.With().Str("component", "bridge").Logger(),
		auth:     NewAuth(cfg.TokenHash, cfg.TOTPSecret),
		hub:      NewHub(log),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.securityHeaders)

	// Public routes
	r.Get("/health", s.handleHealth)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Get("/ws", s.handleWebSocket)

		r.Route("/api", func(r chi.Router) {
			r.Get("/state", s.handleGetState)
			r.Get("/commands", s.handleListCommands)
			r.With(s.requireTOTP).Post("/commands/{name}", s.handleCommand)
		})
	})

	s.router = r
}

// securityHeaders adds security headers to responses.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// requireAuth checks the bearer token when one is configured.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.auth.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		if s.auth.rateLimiter.Blocked(ip) {
			writeError(w, http.StatusTooManyRequests, "too many failed attempts")
			return
		}
		if !s.auth.CheckToken(bearerToken(r)) {
			s.auth.rateLimiter.Fail(ip)
			s.log.Warn().Str("ip", ip).Msg("rejected request: bad token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		s.auth.rateLimiter.Reset(ip)
		next.ServeHTTP(w, r)
	})
}

// requireTOTP checks the X-TOTP-Code header when TOTP is configured.
func (s *Server) requireTOTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.auth.CheckTOTP(r.Header.Get("X-TOTP-Code")) {
			s.log.Warn().Str("ip", clientIP(r)).Msg("rejected command: bad TOTP code")
			writeError(w, http.StatusForbidden, "invalid TOTP code")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Run starts the supervisor, the hub and the HTTP server, and stops all of
// them when ctx is cancelled or one fails.
func (s *Server) Run(ctx context.Context) error {
	id := s.device.RegisterObserver(s.publishState)
	defer s.device.UnregisterObserver(id)

	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.hub.Run(ctx)
	})
	g.Go(func() error {
		return NewSupervisor(s.device, s.cfg.ReconnectMax, s.log).Run(ctx)
	})
	g.Go(func() error {
		s.log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting bridge server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// publishState broadcasts the current snapshot. It runs as a state observer.
func (s *Server) publishState() {
	s.hub.Broadcast(Event{Type: "state", Payload: s.device.State()})
}

// Router returns the HTTP router (for testing).
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the browser hub.
func (s *Server) Hub() *Hub {
	return s.hub
}
