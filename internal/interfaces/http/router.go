// Package http wires the gin engine and HTTP server of the authcore service.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/authcore/internal/application/service"
	"github.com/turtacn/authcore/internal/config"
	"github.com/turtacn/authcore/internal/domain/models"
	domainService "github.com/turtacn/authcore/internal/domain/service"
	"github.com/turtacn/authcore/internal/interfaces/http/handlers"
	"github.com/turtacn/authcore/internal/interfaces/http/middleware"
	"github.com/turtacn/authcore/pkg/constants"
	"github.com/turtacn/authcore/pkg/logger"
)

// Dependencies are the collaborators the routes are built from.
type Dependencies struct {
	OAuth  *handlers.OAuthHandler
	Tenant *handlers.TenantHandler
	Admin  *handlers.AdminHandler
	Health *handlers.HealthHandler

	Authorizer     *service.TenantAuthorizer
	AdminAuth      *service.AdminAuthenticator
	RateLimiter    domainService.RateLimiter
	Metrics        domainService.Metrics
	Tracer         trace.Tracer
	MetricsHandler http.Handler
}

// Router owns the gin engine and the HTTP server serving it.
type Router struct {
	engine *gin.Engine
	config *config.Config
	deps   Dependencies
	logger logger.Logger
	server *http.Server
}

// NewRouter creates the engine and registers every route.
func NewRouter(cfg *config.Config, deps Dependencies, log logger.Logger) *Router {
	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if deps.Metrics == nil {
		deps.Metrics = domainService.NoopMetrics{}
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer("github.com/turtacn/authcore/http")
	}
	if deps.MetricsHandler == nil {
		deps.MetricsHandler = promhttp.Handler()
	}

	r := &Router{
		engine: gin.New(),
		config: cfg,
		deps:   deps,
		logger: log.WithComponent("http"),
	}
	r.setupRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	r.server = &http.Server{
		Addr:           addr,
		Handler:        r.engine,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20,
	}
	return r
}

// Engine exposes the handler for tests and embedding.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) setupRoutes() {
	d := r.deps

	r.engine.Use(gin.Recovery())
	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.Observability(d.Tracer, d.Metrics, r.logger))

	if len(r.config.Server.CORSOrigins) > 0 {
		r.engine.Use(cors.New(cors.Config{
			AllowOrigins:     r.config.Server.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", constants.HeaderRequestID},
			ExposeHeaders:    []string{constants.HeaderRequestID, constants.HeaderRateLimitLimit, constants.HeaderRateLimitRemaining, constants.HeaderRetryAfter},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.engine.GET("/health", d.Health.Health)
	r.engine.GET("/ready", d.Health.Ready)
	r.engine.GET("/live", d.Health.Live)
	r.engine.GET("/metrics", gin.WrapH(d.MetricsHandler))

	if !r.config.Server.IsProduction() && r.config.Server.PprofEnabled {
		pprof.Register(r.engine)
	}

	r.engine.GET(service.PathDiscovery, d.OAuth.Discovery)
	r.engine.GET(service.PathJWKS, d.OAuth.JWKS)

	limited := r.engine.Group("", middleware.RateLimit(d.RateLimiter, r.logger))
	{
		limited.POST(service.PathRegister, d.OAuth.Register)
		limited.GET(service.PathAuthorize, middleware.RequireUserSession(d.Authorizer, r.logger), d.OAuth.Authorize)
		limited.POST(service.PathToken, d.OAuth.Token)
		limited.POST(service.PathRevoke, d.OAuth.Revoke)
	}

	api := r.engine.Group("/api")
	{
		api.POST("/auth/refresh", d.Tenant.RefreshSession)

		tenant := api.Group("/tenant", middleware.RequireTenant(d.Authorizer, r.logger))
		tenant.GET("/me", d.Tenant.Me)

		creds := tenant.Group("/oauth-credentials")
		creds.GET("", middleware.RequireResource(d.Authorizer, service.ResourceOAuthCredentials), d.Tenant.ListCredentials)
		creds.GET("/:provider", middleware.RequireResource(d.Authorizer, service.ResourceOAuthCredentials), d.Tenant.GetCredential)
		creds.PUT("/:provider", middleware.RequireAction(d.Authorizer, service.ActionManageOAuthClients), d.Tenant.SetCredential)
	}

	admin := r.engine.Group("/admin")
	{
		admin.POST("/keys/rotate", middleware.RequireAdmin(d.AdminAuth, "", r.logger), d.Admin.RotateKeys)
		admin.GET("/keys", middleware.RequireAdmin(d.AdminAuth, "", r.logger), d.Admin.ListKeys)

		tokens := admin.Group("/tokens", middleware.RequireAdmin(d.AdminAuth, models.PermissionManageAdminTokens, r.logger))
		tokens.POST("", d.Admin.CreateToken)
		tokens.GET("", d.Admin.ListTokens)
		tokens.DELETE("/:id", d.Admin.RevokeToken)
	}

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":             "not_found",
			"error_description": "The requested resource was not found",
		})
	})
}

// Start serves until Stop is called. It returns nil after a graceful shutdown.
func (r *Router) Start() error {
	r.logger.Info(context.Background(), "Starting HTTP server", logger.String("address", r.server.Addr))
	if err := r.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests until ctx expires.
func (r *Router) Stop(ctx context.Context) error {
	r.logger.Info(ctx, "Stopping HTTP server")
	return r.server.Shutdown(ctx)
}
