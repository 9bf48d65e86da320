package api

import (
	"context"
	"time"

	"github.com/ermrest-eu/ermrestd/internal/catalog"
	"github.com/ermrest-eu/ermrestd/internal/config"
	"github.com/ermrest-eu/ermrestd/internal/identity"
	"github.com/ermrest-eu/ermrestd/internal/middleware"
	"github.com/ermrest-eu/ermrestd/internal/observability"
	"github.com/ermrest-eu/ermrestd/internal/policy"
	"github.com/ermrest-eu/ermrestd/internal/session"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Server is the Fiber-based HTTP front end of the data-path engine: it owns
// the catalog model cache, the transaction envelope, and the pluggable
// identity/policy hooks, and dispatches every /catalog/{id}/{verb}/... request
// through the five verb handlers in handlers.go.
type Server struct {
	app      *fiber.App
	config   *config.Config
	pool     *pgxpool.Pool
	cache    *catalog.Cache
	envelope *session.Envelope
	identity identity.Resolver
	policy   policy.Enforcer
	audit    *middleware.AuditLogger
	metrics  *observability.Metrics

	defaultPageSize int
	maxPageSize     int
}

// NewServer builds a Server with the default AllowAll policy and
// trusted-header identity resolver; a deployment replaces either via
// SetPolicy/SetIdentityResolver before Start.
func NewServer(cfg *config.Config, pool *pgxpool.Pool) *Server {
	app := fiber.New(fiber.Config{
		ServerHeader:          "ermrestd",
		AppName:               "ermrestd",
		BodyLimit:             cfg.Server.BodyLimit,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		DisableStartupMessage: !cfg.Debug,
		ErrorHandler:          customErrorHandler,
		Prefork:               false,
	})

	s := &Server{
		app:             app,
		config:          cfg,
		pool:            pool,
		cache:           catalog.NewCache(pool),
		envelope:        session.NewEnvelope(pool),
		identity:        identity.DefaultTrustedHeaderResolver(),
		policy:          policy.AllowAll{},
		audit:           middleware.NewAuditLogger(log.Logger),
		metrics:         observability.NewMetrics(),
		defaultPageSize: cfg.API.DefaultPageSize,
		maxPageSize:     cfg.API.MaxPageSize,
	}
	if s.defaultPageSize == 0 {
		s.defaultPageSize = 100
	}
	if s.maxPageSize == 0 {
		s.maxPageSize = 10000
	}
	if s.config.Metrics.Path == "" {
		s.config.Metrics.Path = "/metrics"
	}
	s.cache.SetMetrics(s.metrics)

	s.setupMiddlewares()
	s.setupRoutes()
	return s
}

// SetPolicy replaces the default AllowAll policy.Enforcer.
func (s *Server) SetPolicy(p policy.Enforcer) { s.policy = p }

// SetIdentityResolver replaces the default trusted-header identity.Resolver.
func (s *Server) SetIdentityResolver(r identity.Resolver) { s.identity = r }

func (s *Server) setupMiddlewares() {
	s.app.Use(requestid.New())
	s.app.Use(middleware.SecurityHeaders())

	s.app.Use(middleware.StructuredLogger())
	s.app.Use(s.metrics.MetricsMiddleware())

	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: s.config.Debug,
	}))

	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.CORS.AllowedOrigins,
		AllowMethods:     s.config.CORS.AllowedMethods,
		AllowHeaders:     s.config.CORS.AllowedHeaders,
		ExposeHeaders:    s.config.CORS.ExposedHeaders,
		AllowCredentials: s.config.CORS.AllowCredentials,
		MaxAge:           s.config.CORS.MaxAge,
	}))

	s.app.Use(compress.New(compress.Config{
		Level: compress.LevelDefault,
	}))
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", s.handleHealth)
	if s.config.Metrics.Enabled {
		s.app.Get(s.config.Metrics.Path, s.metrics.Handler())
	}

	catalog := s.app.Group("/catalog/:id")
	catalog.Use(middleware.NewPatternBodyLimiter(middleware.DefaultBodyLimitConfig()).Middleware())
	catalog.Get("/entity/*", s.handleEntityGet)
	catalog.Post("/entity/*", s.handleEntityWrite)
	catalog.Put("/entity/*", s.handleEntityWrite)
	catalog.Delete("/entity/*", s.handleEntityDelete)

	catalog.Get("/attribute/*", s.handleAttributeGet)
	catalog.Delete("/attribute/*", s.handleEntityDelete)

	catalog.Get("/attributegroup/*", s.handleAttributeGroupGet)
	catalog.Put("/attributegroup/*", s.handleAttributeGroupPut)

	catalog.Get("/aggregate/*", s.handleAggregateGet)

	catalog.Get("/textfacet/*", s.handleTextFacetGet)

	s.app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Not Found",
			"path":  c.Path(),
			"code":  fiber.StatusNotFound,
		})
	})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	healthy := true
	if err := s.pool.Ping(ctx); err != nil {
		healthy = false
		log.Error().Err(err).Msg("database health check failed")
	}

	status := "ok"
	httpStatus := fiber.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = fiber.StatusServiceUnavailable
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"database":  healthy,
		"timestamp": time.Now().UTC(),
	})
}

// Start begins serving on the configured address.
func (s *Server) Start() error {
	return s.app.Listen(s.config.Server.Address)
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// App exposes the underlying Fiber app, for tests that drive requests
// in-process with app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}
