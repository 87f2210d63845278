package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/opsmono/agentproxy/docs" // Swagger docs
	"github.com/opsmono/agentproxy/internal/artifacts"
	"github.com/opsmono/agentproxy/internal/auth"
	"github.com/opsmono/agentproxy/internal/config"
	"github.com/opsmono/agentproxy/internal/eventbus"
	"github.com/opsmono/agentproxy/internal/handlers"
	"github.com/opsmono/agentproxy/internal/metrics"
	"github.com/opsmono/agentproxy/internal/middleware"
	"github.com/opsmono/agentproxy/internal/prompt"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

// Deps are the collaborators built at startup. Store, Events and
// Metrics are optional.
type Deps struct {
	Logger  *zap.Logger
	Model   handlers.ModelServer
	Store   *artifacts.Store
	Events  *eventbus.Emitter
	Metrics *metrics.Metrics
}

// Server is one agent's HTTP surface
type Server struct {
	cfg     *config.Config
	router  *gin.Engine
	breaker *middleware.CircuitBreaker
	logger  *zap.Logger
}

// New wires middleware, handlers and routes for the configured agent
func New(cfg *config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.New(cfg.Agent.Name)
	}

	breaker := middleware.NewCircuitBreaker(cfg.CircuitFailureThreshold, 1, cfg.CircuitOpenTimeout)
	breaker.OnStateChange = func(from, to middleware.CircuitState) {
		logger.Warn("model server circuit changed state",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(m.Middleware())
	router.NoRoute(func(c *gin.Context) {
		middleware.NotFound(c, "no route for "+c.Request.Method+" "+c.Request.URL.Path)
	})

	// Swagger documentation
	router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	healthHandler := handlers.NewHealthHandler(cfg.Agent.Name, deps.Model, cfg.HealthTimeout, logger)
	router.GET("/health", healthHandler.Health)

	agentHandler := handlers.NewAgentHandler(
		cfg,
		prompt.NewComposer(cfg.Agent.Persona, cfg.MaxInputBytes),
		deps.Model,
		deps.Store,
		deps.Events,
		m,
		logger,
	)

	gate := auth.NewGate(cfg.TokenEnv, cfg.TokenFile)
	protected := router.Group("")
	protected.Use(middleware.TokenGate(gate, logger))
	if cfg.RateLimitPerMinute > 0 {
		protected.Use(middleware.RateLimitMiddleware(middleware.NewPerMinuteLimiter(cfg.RateLimitPerMinute)))
	}
	{
		protected.GET("/models", agentHandler.ListModels)
		protected.GET("/artifacts", agentHandler.ListArtifacts)
		protected.GET("/metrics", gin.WrapH(m.Handler()))

		tasks := protected.Group("")
		tasks.Use(middleware.CircuitBreakerMiddleware(breaker))
		agentHandler.RegisterTasks(tasks)
	}

	if !gate.Enabled() {
		logger.Warn("no agent token configured, every route is open",
			zap.String("token_env", cfg.TokenEnv),
			zap.String("token_file", cfg.TokenFile),
		)
	}

	return &Server{
		cfg:     cfg,
		router:  router,
		breaker: breaker,
		logger:  logger,
	}
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Breaker returns the model server circuit breaker
func (s *Server) Breaker() *middleware.CircuitBreaker {
	return s.breaker
}

// writeTimeout leaves room for the slowest task the agent serves
func (s *Server) writeTimeout() time.Duration {
	longest := s.cfg.ModelTimeout
	for _, d := range s.cfg.Agent.Timeouts {
		if d > longest {
			longest = d
		}
	}
	return longest + 15*time.Second
}

// Run listens on the configured port until ctx is canceled
func (s *Server) Run(ctx context.Context) error {
	l, err := net.Listen("tcp", ":"+s.cfg.Port)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve serves on l until ctx is canceled, then shuts down gracefully
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.writeTimeout(),
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("starting server",
			zap.String("addr", l.Addr().String()),
			zap.String("agent", s.cfg.Agent.Name),
		)
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	s.logger.Info("server exited gracefully")
	return nil
}
