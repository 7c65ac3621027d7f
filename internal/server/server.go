package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/metafuse/tenant-gateway/internal/config"
	"github.com/metafuse/tenant-gateway/internal/controlplane"
	"github.com/metafuse/tenant-gateway/internal/handler"
	"github.com/metafuse/tenant-gateway/internal/healthcheck"
	"github.com/metafuse/tenant-gateway/internal/metrics"
	"github.com/metafuse/tenant-gateway/internal/middleware"
	"github.com/metafuse/tenant-gateway/internal/pool"
	"github.com/metafuse/tenant-gateway/internal/proxy"
	"github.com/metafuse/tenant-gateway/internal/ratelimit"
	"github.com/metafuse/tenant-gateway/internal/repository"
	"github.com/metafuse/tenant-gateway/internal/resolver"
	"github.com/metafuse/tenant-gateway/internal/service"
	"github.com/metafuse/tenant-gateway/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	router     *gin.Engine
	config     *config.Config
	log        *zap.Logger
	redis      pinger
	postgres   pinger
	gatherer   prometheus.Gatherer
	upstreams  *proxy.Upstreams
	pool       *pool.Pool
	limiter    *ratelimit.Limiter
	resolver   *resolver.Resolver
	stats      ratelimit.StatsRecorder
	asyncStats *ratelimit.AsyncStats
	metrics    *metrics.Registry
	httpServer *http.Server

	apiKeyService *service.APIKeyService
	tenantService *service.TenantService
	apiKeyHandler *handler.APIKeyHandler
	tenantHandler *handler.TenantHandler
	systemHandler *handler.SystemHandler
}

// New wires the control plane, limiter, connection pool and catalog proxy.
// promReg receives every gateway collector and backs /metrics.
func New(cfg *config.Config, redis *storage.RedisClient, postgres *storage.Postgres, log *zap.Logger, promReg *prometheus.Registry) (*Server, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if log == nil {
		log = zap.NewNop()
	}
	if promReg == nil {
		promReg = prometheus.NewRegistry()
	}

	reg := metrics.New(promReg)

	tenantService := service.NewTenantService(
		repository.NewTenantRepository(postgres),
		repository.NewTenantKeyRepository(postgres),
		redis,
		log.Named("controlplane"),
		reg,
		service.WithKeyCacheTTL(cfg.KeyCacheTTL()),
	)
	apiKeyService := service.NewAPIKeyService(repository.NewAPIKeyRepository(postgres), redis, log.Named("apikeys"))

	upstreams, err := proxy.NewUpstreams(proxy.UpstreamsConfig{
		Targets:              cfg.Catalog.Upstreams,
		LoadBalancerStrategy: cfg.Catalog.LBStrategy,
		HealthCheck: healthcheck.Config{
			Endpoint: cfg.Catalog.HealthPath,
			Interval: cfg.HealthInterval(),
		},
		ResponseHeaderTimeout: cfg.RequestTimeout(),
	}, log.Named("upstreams"))
	if err != nil {
		return nil, fmt.Errorf("failed to configure catalog upstreams: %w", err)
	}

	connPool, err := pool.New(cfg.ConnectionPool(), upstreams, log.Named("pool"), reg)
	if err != nil {
		return nil, fmt.Errorf("invalid connection pool config: %w", err)
	}

	limiterCfg := cfg.RateLimiter()
	if err := limiterCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rate limit config: %w", err)
	}

	router := gin.New()
	// Logged client addresses follow the same proxy trust as the limiter.
	if err := router.SetTrustedProxies(limiterCfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}

	s := &Server{
		router:        router,
		config:        cfg,
		log:           log,
		redis:         redis,
		postgres:      postgres,
		gatherer:      promReg,
		upstreams:     upstreams,
		pool:          connPool,
		limiter:       ratelimit.NewLimiter(limiterCfg),
		metrics:       reg,
		apiKeyService: apiKeyService,
		tenantService: tenantService,
		apiKeyHandler: handler.NewAPIKeyHandler(apiKeyService),
		tenantHandler: handler.NewTenantHandler(tenantService),
		systemHandler: handler.NewSystemHandler(connPool),
	}
	s.resolver = resolver.New(
		controlplane.NewLogger(log.Named("controlplane"), tenantService),
		resolver.Config{AllowHeaderOnly: cfg.Tenancy.AllowHeaderOnly},
		log.Named("resolver"),
	)
	if cfg.RateLimit.StatsEnabled {
		statsLog := log.Named("ratelimit.stats")
		s.asyncStats = ratelimit.NewAsyncStats(ratelimit.NewRedisStats(redis.Client),
			ratelimit.WithStatsErrorHandler(func(err error) {
				statsLog.Debug("failed to write rate limit stats", zap.Error(err))
			}))
		s.stats = s.asyncStats
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery(s.log))
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger(s.log.Named("http")))
	s.router.Use(middleware.Metrics(s.metrics))
	s.router.Use(middleware.APIKeyValidator(s.apiKeyService, s.log))
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	rateLimit := middleware.RateLimit(s.limiter, s.metrics, s.stats, s.log)

	admin := s.router.Group("/admin", middleware.RequireGlobalAdmin(), rateLimit)
	{
		admin.GET("/status", s.adminStatus)

		admin.POST("/keys", s.apiKeyHandler.Create)
		admin.GET("/keys", s.apiKeyHandler.List)
		admin.GET("/keys/:id", s.apiKeyHandler.Get)
		admin.DELETE("/keys/:id", s.apiKeyHandler.Delete)

		admin.POST("/tenants", s.tenantHandler.Create)
		admin.GET("/tenants", s.tenantHandler.List)
		admin.GET("/tenants/:id", s.tenantHandler.Get)
		admin.POST("/tenants/:id/suspend", s.tenantHandler.Suspend)
		admin.POST("/tenants/:id/reactivate", s.tenantHandler.Reactivate)
		admin.DELETE("/tenants/:id", s.tenantHandler.Delete)
		admin.PATCH("/tenants/:id", s.tenantHandler.UpdateTier)
		admin.POST("/tenants/:id/keys", s.tenantHandler.CreateKey)
		admin.GET("/tenants/:id/keys", s.tenantHandler.ListKeys)
		admin.DELETE("/tenants/:id/keys/:keyID", s.tenantHandler.RevokeKey)

		admin.GET("/circuit-breakers", s.systemHandler.CircuitBreakerStatus)
		admin.POST("/circuit-breakers/:tenant/reset", s.systemHandler.ResetCircuitBreaker)
	}

	// Self-service for tenant admins; the tenant comes from the caller's key.
	self := s.router.Group("/tenant",
		middleware.TenantResolver(s.resolver), middleware.RequireTenant(), rateLimit)
	{
		self.GET("", s.tenantHandler.Get)
		self.GET("/keys", middleware.RequireAdmin(), s.tenantHandler.ListKeys)
		self.POST("/keys", middleware.RequireAdmin(), s.tenantHandler.CreateKey)
		self.DELETE("/keys/:keyID", middleware.RequireAdmin(), s.tenantHandler.RevokeKey)
	}

	catalog := proxy.New(s.pool, s.log.Named("proxy"))
	s.router.Any("/api/v1/*path",
		middleware.TenantResolver(s.resolver), middleware.MethodPermission(), rateLimit, catalog.Handle)
}

func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	redisHealthy := true
	if err := s.redis.Ping(ctx); err != nil {
		redisHealthy = false
		s.log.Warn("redis health check failed", zap.Error(err))
	}

	dbHealthy := true
	if err := s.postgres.Ping(ctx); err != nil {
		dbHealthy = false
		s.log.Warn("database health check failed", zap.Error(err))
	}

	upstream := s.upstreams.Health()

	status := healthcheck.Healthy
	switch {
	case !dbHealthy || upstream == healthcheck.Unhealthy:
		status = healthcheck.Unhealthy
	case !redisHealthy || upstream == healthcheck.Degraded:
		status = healthcheck.Degraded
	}

	statusCode := http.StatusOK
	if status != healthcheck.Healthy {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":    status.String(),
		"service":   "tenant-gateway",
		"version":   "1.0.0",
		"timestamp": time.Now().Unix(),
		"checks": gin.H{
			"redis":    redisHealthy,
			"database": dbHealthy,
			"catalog":  upstream,
		},
		"upstreams": s.upstreams.Status(),
	})
}

func (s *Server) adminStatus(c *gin.Context) {
	ctx := c.Request.Context()
	keys, _ := s.apiKeyService.List(ctx)
	tenants, _ := s.tenantService.ListTenants(ctx)
	c.JSON(http.StatusOK, gin.H{
		"gateway":           "running",
		"upstreams":         len(s.config.Catalog.Upstreams),
		"api_keys":          len(keys),
		"tenants":           len(tenants),
		"rate_limit_bucket": s.limiter.Len(),
		"uptime":            time.Since(startTime).Seconds(),
		"timestamp":         time.Now().Unix(),
	})
}

// Run starts upstream health checks and serves until Shutdown.
func (s *Server) Run(addr string) error {
	s.upstreams.Start()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.config.RequestTimeout() + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info("starting tenant gateway",
		zap.String("addr", addr),
		zap.String("environment", s.config.Server.Environment),
		zap.Bool("header_only_tenants", s.config.Tenancy.AllowHeaderOnly))

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down server")
	s.upstreams.Stop()

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	if s.asyncStats != nil {
		if cerr := s.asyncStats.Close(ctx); cerr != nil {
			s.log.Warn("rate limit stats not flushed", zap.Error(cerr),
				zap.Uint64("dropped", s.asyncStats.Dropped()))
		}
	}
	return err
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

var startTime = time.Now()
