package httpapi

import (
	"net/http"
	"time"

	"progression-engine/pkg/config"
	"progression-engine/pkg/health"
	"progression-engine/pkg/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewEngine, NewRoutes),
	fx.Invoke(registerHealthEndpoint),
)

// Routes are the groups feature handlers attach to. V1 requires an
// identity; Limited additionally applies the per-user token bucket.
type Routes struct {
	V1      *gin.RouterGroup
	Limited *gin.RouterGroup
}

func NewEngine(cfg *config.Config) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestLog(), middleware.Recovery())

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type", middleware.UserIDHeader, middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.Server.AllowedOrigins) == 0 || (len(cfg.Server.AllowedOrigins) == 1 && cfg.Server.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.Server.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))
	r.Use(middleware.Error())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": "route not found"}})
	})

	return r
}

func NewRoutes(cfg *config.Config, r *gin.Engine) *Routes {
	v1 := r.Group("/v1", middleware.Identity(cfg))
	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitPerMinute)
	return &Routes{
		V1:      v1,
		Limited: v1.Group("", limiter.Middleware()),
	}
}

func registerHealthEndpoint(r *gin.Engine, h health.HealthService) {
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
