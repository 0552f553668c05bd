package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Community-of-Gia-Lai-Team/ai-statefultask/internal/api/handlers"
	apiMiddleware "github.com/Community-of-Gia-Lai-Team/ai-statefultask/internal/api/middleware"
	"github.com/Community-of-Gia-Lai-Team/ai-statefultask/internal/api/websocket"
	"github.com/Community-of-Gia-Lai-Team/ai-statefultask/internal/config"
	"github.com/Community-of-Gia-Lai-Team/ai-statefultask/internal/engine"
	"github.com/Community-of-Gia-Lai-Team/ai-statefultask/internal/events"
)

// Server represents the admin HTTP server
type Server struct {
	router        *chi.Mux
	config        *config.Config
	engineHandler *handlers.EngineHandler
	taskHandler   *handlers.TaskHandler
	wsHub         *websocket.Hub
	wsHandler     *websocket.Handler
	bus           *events.MemoryBus
}

// NewServer creates a new admin HTTP server over the hosted engines
func NewServer(cfg *config.Config, engines []*engine.Engine, bus *events.MemoryBus) *Server {
	wsHub := websocket.NewHub(bus)

	s := &Server{
		router:        chi.NewRouter(),
		config:        cfg,
		engineHandler: handlers.NewEngineHandler(engines),
		taskHandler:   handlers.NewTaskHandler(),
		wsHub:         wsHub,
		wsHandler:     websocket.NewHandler(wsHub),
		bus:           bus,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(apiMiddleware.RequestLogger())

	// Recoverer
	s.router.Use(middleware.Recoverer)

	// Heartbeat endpoint for load balancers
	s.router.Use(middleware.Heartbeat("/health"))
}

func (s *Server) setupRoutes() {
	authCfg := &apiMiddleware.AuthConfig{
		Enabled:   s.config.Auth.Enabled,
		JWTSecret: s.config.Auth.JWTSecret,
		APIKeys:   make(map[string]bool, len(s.config.Auth.APIKeys)),
	}
	for _, key := range s.config.Auth.APIKeys {
		authCfg.APIKeys[key] = true
	}

	// Admin routes. Reads are open to any authenticated caller; anything
	// that mutates scheduler state needs the operator role.
	s.router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))
		r.Use(apiMiddleware.Auth(authCfg))

		if s.config.Server.RateLimitRPS > 0 {
			r.Use(apiMiddleware.ClientRateLimit(s.config.Server.RateLimitRPS))
		}

		requireOperator := apiMiddleware.RequireRole(authCfg, apiMiddleware.RoleOperator)

		// Engine management
		r.Route("/engines", func(r chi.Router) {
			r.Get("/", s.engineHandler.List)
			r.Get("/{engineName}", s.engineHandler.Get)
			r.Group(func(r chi.Router) {
				r.Use(requireOperator)
				r.Post("/{engineName}/wakeup", s.engineHandler.WakeUp)
				r.Post("/{engineName}/flush", s.engineHandler.Flush)
				r.Post("/{engineName}/duration", s.engineHandler.SetDuration)
			})
		})

		// Task management
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.taskHandler.List)
			r.Get("/{taskID}", s.taskHandler.Get)
			r.Group(func(r chi.Router) {
				r.Use(requireOperator)
				r.Post("/{taskID}/signal", s.taskHandler.Signal)
				r.Post("/{taskID}/abort", s.taskHandler.Abort)
			})
		})
	})

	// WebSocket endpoint
	s.router.Get("/ws", s.wsHandler.ServeWS)

	// Metrics endpoint
	if s.config.Metrics.Enabled {
		s.router.Handle(s.config.Metrics.Path, promhttp.Handler())
	}
}

// Start starts the WebSocket hub
func (s *Server) Start(ctx context.Context) {
	s.wsHub.Run(ctx)
}

// Stop stops the WebSocket hub
func (s *Server) Stop() {
	s.wsHub.Stop()
}

// Router returns the chi router
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ServeHTTP implements the http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
