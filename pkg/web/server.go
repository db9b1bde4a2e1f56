// Package web serves the read-only status API, a manual wake trigger, the
// live status websocket and the metrics endpoint.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-presence/pkg/hub"
	"github.com/teslashibe/go-presence/pkg/state"
)

// DefaultAddr matches the port external dashboards already use.
const DefaultAddr = ":5000"

// Waker starts a voice session on demand.
type Waker interface {
	Fire() bool
}

// History lists past presence transitions and item sightings, newest first.
type History interface {
	Presence(ctx context.Context, limit int) ([]state.Presence, error)
	Sightings(ctx context.Context, limit int) ([]state.LastSeen, error)
}

// Config configures the server.
type Config struct {
	Addr string

	// Durable file paths reported by /api/health.
	PresenceFile string
	LastSeenFile string

	// AccessLog enables per-request logging.
	AccessLog bool

	Logger *slog.Logger
}

// Server is the status API server
type Server struct {
	app    *fiber.App
	cfg    Config
	store  *state.Store
	logger *slog.Logger

	// Hub for /ws/status broadcast
	statusHub *hub.Hub

	waker   Waker
	metrics http.Handler
	history History
}

// Option configures a Server.
type Option func(*Server)

// WithWaker enables POST /api/wake.
func WithWaker(w Waker) Option {
	return func(s *Server) { s.waker = w }
}

// WithHistory enables GET /api/history.
func WithHistory(h History) Option {
	return func(s *Server) { s.history = h }
}

// WithMetrics serves h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// NewServer creates the server and registers its routes.
func NewServer(cfg Config, store *state.Store, opts ...Option) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		store:  store,
		logger: log.With("component", "web"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.statusHub = hub.New("status", s.logger)

	app := fiber.New(fiber.Config{
		AppName:               "presenced",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
	})

	app.Use(recover.New())
	if cfg.AccessLog {
		app.Use(logger.New())
	}

	api := app.Group("/api", cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type",
	}))
	api.Get("/health", s.handleHealth)
	api.Get("/last_seen", s.handleLastSeen)
	api.Get("/presence", s.handlePresence)
	api.Get("/summary", s.handleSummary)
	api.Get("/history", s.handleHistory)
	api.Post("/wake", s.handleWake)

	if s.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(s.metrics))
	}

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// StatusHub returns the hub feeding /ws/status.
func (s *Server) StatusHub() *hub.Hub {
	return s.statusHub
}

// Run serves until ctx is cancelled, then shuts down within five seconds.
func (s *Server) Run(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.statusHub.Run(hubCtx)

	unfollow := s.statusHub.Follow(s.store)
	defer unfollow()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status API listening", "addr", s.cfg.Addr)
		errCh <- s.app.Listen(s.cfg.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
