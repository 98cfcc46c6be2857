package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"statwatch/internal/config"
	"statwatch/internal/controllers"
	"statwatch/internal/middleware"
	"statwatch/internal/services"
)

// Dependencies are the services the HTTP surface is built on
type Dependencies struct {
	Auth         *services.AuthService
	Orchestrator *services.Orchestrator
	Cache        *services.SnapshotCache
	Logger       *zap.Logger
}

// NewRouter assembles the gin engine with middleware and every route
func NewRouter(cfg config.ServerConfig, deps Dependencies) *gin.Engine {
	r := gin.New()
	sl := middleware.NewSecurityLogger(deps.Logger)

	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.SecurityHeadersMiddleware())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(middleware.IPWhitelistMiddleware(middleware.NewIPWhitelist(cfg.AllowedIPs), sl))
	if cfg.RateLimit > 0 {
		r.Use(middleware.RateLimitMiddleware(middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst), sl))
	}

	mc := controllers.NewMonitorController(deps.Orchestrator, deps.Cache, deps.Logger)
	r.GET("/healthz", mc.Health)

	api := r.Group("/api/v1")
	api.Use(middleware.BearerAuthMiddleware(deps.Auth, sl))
	RegisterMonitorRoutes(api, mc)

	wc := controllers.NewWebSocketController(deps.Auth, deps.Orchestrator, deps.Cache, cfg.AllowedOrigins, sl, deps.Logger)
	RegisterAuthRoutes(r, wc, middleware.NewHandshakeRateLimiter(), sl)

	return r
}
