package api

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/contextd/internal/aggregator"
	"github.com/p-blackswan/contextd/internal/generator"
	"github.com/p-blackswan/contextd/internal/health"
	"github.com/p-blackswan/contextd/internal/metrics"
	"github.com/p-blackswan/contextd/internal/requestid"
)

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	ListenAddr  string
	AuthConfig  AuthConfig
	RateLimit   RateLimitConfig
	CORSOrigins []string
	TLSCert     string
	TLSKey      string
	BodyLimit   int
}

// Server is the contextd Fiber application.
type Server struct {
	app     *fiber.App
	metrics *metrics.Metrics
	logger  zerolog.Logger
	config  ServerConfig
}

// NewServer creates and configures a new API server. metricsCollector may be nil.
func NewServer(
	cfg ServerConfig,
	projects Projects,
	agg *aggregator.Aggregator,
	gen *generator.Generator,
	checker *health.Checker,
	metricsCollector *metrics.Metrics,
	logger zerolog.Logger,
) *Server {
	handlers := NewHandlers(projects, agg, gen, checker, logger)

	bodyLimit := cfg.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = 1 << 20
	}
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler(handlers),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             bodyLimit,
		ReadBufferSize:        8192,
		WriteBufferSize:       8192,
	})

	s := &Server{
		app:     app,
		metrics: metricsCollector,
		logger:  logger.With().Str("component", "api_server").Logger(),
		config:  cfg,
	}

	s.setupMiddleware(cfg)
	s.setupRoutes(handlers)
	return s
}

func (s *Server) setupMiddleware(cfg ServerConfig) {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(requestid.Middleware())

	s.app.Use(s.instrument)

	if len(cfg.CORSOrigins) > 0 {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: strings.Join(cfg.CORSOrigins, ", "),
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, " + requestid.Header,
			AllowMethods: "GET, POST, PATCH, OPTIONS",
		}))
	}

	if cfg.RateLimit.RPS > 0 {
		s.app.Use(NewRateLimitMiddleware(cfg.RateLimit))
	}

	s.app.Use(NewAuthMiddleware(cfg.AuthConfig, s.logger))

	// Audit log
	s.app.Use(func(c *fiber.Ctx) error {
		path := c.Path()
		if isProbe(path) {
			return c.Next()
		}
		s.logger.Info().
			Str("method", c.Method()).
			Str("path", path).
			Str("ip", c.IP()).
			Str("request_id", requestid.FromFiber(c)).
			Msg("api request")
		return c.Next()
	})
}

// instrument records request count and latency per matched route.
func (s *Server) instrument(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	if err != nil {
		status = fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}
	}
	route := c.Route().Path
	if route == "" || (route == "/" && c.Path() != "/") {
		route = "unmatched"
	}
	s.metrics.RecordRequest(c.Method(), route, strconv.Itoa(status), time.Since(start).Seconds())
	return err
}

func (s *Server) setupRoutes(h *Handlers) {
	// Probes (no auth, handled in auth middleware)
	s.app.Get("/healthz", h.Liveness)
	s.app.Get("/readyz", h.Readiness)

	if s.metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	} else {
		s.app.Get("/metrics", func(c *fiber.Ctx) error {
			return c.SendString("# No metrics collector configured\n")
		})
	}

	write := requireRole(RoleOperator)

	v1 := s.app.Group("/api/v1")

	v1.Get("/triggers", h.ListTriggers)

	v1.Get("/projects", h.ListProjects)
	v1.Post("/projects", write, h.CreateProject)
	v1.Get("/projects/:id", h.GetProject)

	v1.Get("/projects/:id/context", h.GetContext)
	v1.Patch("/projects/:id/context", write, h.PatchContext)
	v1.Post("/projects/:id/metrics/:metric", write, h.IncrementMetric)

	v1.Get("/projects/:id/triggers", h.TriggerProgress)
	v1.Get("/projects/:id/triggers/ready", h.ReadyTriggers)
	v1.Post("/projects/:id/triggers/check", write, h.CheckTriggers)
	v1.Post("/projects/:id/triggers/:trigger/regenerated", write, h.MarkRegenerated)
	v1.Get("/projects/:id/regenerations", h.Regenerations)
	v1.Get("/projects/:id/quality", h.Quality)

	v1.Post("/artifacts", write, h.GenerateArtifacts)
	v1.Get("/projects/:id/artifacts", h.LatestArtifacts)
	v1.Post("/projects/:id/artifacts/:type/regenerate", write, h.RegenerateArtifact)
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":8090"
	}

	s.logger.Info().Str("addr", addr).Bool("tls", s.config.TLSCert != "").Msg("API server starting")

	if s.config.TLSCert != "" && s.config.TLSKey != "" {
		return s.app.ListenTLS(addr, s.config.TLSCert, s.config.TLSKey)
	}
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server, waiting at most timeout.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.logger.Info().Msg("API server shutting down")
	if timeout <= 0 {
		return s.app.Shutdown()
	}
	return s.app.ShutdownWithTimeout(timeout)
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}
