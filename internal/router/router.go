package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/janicogyle/ccs-membership-sub001/config"
	"github.com/janicogyle/ccs-membership-sub001/internal/app/controller"
	"github.com/janicogyle/ccs-membership-sub001/internal/metrics"
	"github.com/janicogyle/ccs-membership-sub001/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

type Router struct {
	authController *controller.AuthController
	authMiddleware *middleware.AuthMiddleware
	rateLimiter    middleware.RateLimiter
	recorder       metrics.Recorder
	gatherer       prometheus.Gatherer
	config         *config.Config
}

func NewRouter(
	authController *controller.AuthController,
	authMiddleware *middleware.AuthMiddleware,
	rateLimiter middleware.RateLimiter,
	recorder metrics.Recorder,
	gatherer prometheus.Gatherer,
	cfg *config.Config,
) *Router {
	return &Router{
		authController: authController,
		authMiddleware: authMiddleware,
		rateLimiter:    rateLimiter,
		recorder:       recorder,
		gatherer:       gatherer,
		config:         cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	gin.SetMode(r.config.Server.GinMode)

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.LoggingMiddleware(r.recorder))
	router.Use(corsMiddleware(r.config.CORS.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"message": "CCS membership API is running",
		})
	})

	if r.gatherer != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler(r.gatherer)))
	}

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/register", r.limit("register"), r.authController.Register)
			auth.POST("/login", r.limit("login"), r.authController.Login)
			auth.POST("/forgot-password", r.limit("forgot-password"), r.authController.ForgotPassword)
			auth.POST("/reset-password", r.limit("reset-password"), r.authController.ResetPassword)
			auth.GET("/me", r.authMiddleware.Authenticate(), r.authController.GetMe)
			auth.PUT("/password", r.authMiddleware.Authenticate(), r.authController.ChangePassword)
		}
	}

	return router
}

func (r *Router) limit(scope string) gin.HandlerFunc {
	if r.rateLimiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware.RateLimit(r.rateLimiter, scope, r.recorder)
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := false
		for _, allowedOrigin := range allowedOrigins {
			if origin == allowedOrigin || allowedOrigin == "*" {
				allowed = true
				break
			}
		}

		if allowed {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
