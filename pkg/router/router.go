package router

import (
	"time"

	"fiddle-chat/agent/internal/api"
	"fiddle-chat/agent/internal/ws"
	"fiddle-chat/agent/pkg/config"
	"fiddle-chat/agent/pkg/errors"
	"fiddle-chat/agent/pkg/logger"
	"fiddle-chat/agent/pkg/middleware"
	"fiddle-chat/agent/pkg/validator"

	"github.com/gin-gonic/gin"
)

// Router is the agent's HTTP front door.
type Router struct {
	Engine *gin.Engine
	Logger *logger.Logger
	Hub    *ws.Hub
	Config *config.Config

	handler *api.Handler
}

// New assembles the gin engine with the standard middleware chain.
func New(log *logger.Logger, hub *ws.Hub, handler *api.Handler) *Router {
	cfg := config.Get()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// Log every request first so failures further down are captured
	engine.Use(logger.Middleware(log))
	engine.Use(middleware.RequestIDMiddleware())
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())

	rateLimiter := middleware.NewRateLimiter(log)
	engine.Use(rateLimiter.Middleware())

	go hub.Run()

	return &Router{
		Engine:  engine,
		Logger:  log,
		Hub:     hub,
		Config:  cfg,
		handler: handler,
	}
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	r.Engine.Use(corsMiddleware())

	// Health check stays public
	r.Engine.GET("/health", r.healthCheckHandler())

	// Management API requires an externally minted session token
	v1 := r.Engine.Group("/api/v1")
	v1.Use(middleware.JWTAuthMiddleware())
	r.handler.Register(v1)

	// Transcript stream for room watchers
	r.Engine.GET("/ws", r.Hub.Handler())
}

// AddOpenAPIValidation installs request validation if a schema file is
// configured.
func (r *Router) AddOpenAPIValidation(schemaPath string) {
	v, err := validator.NewOpenAPIValidator(schemaPath)
	if err != nil {
		r.Logger.LogError(err, "failed to load OpenAPI schema, continuing without validation", "path", schemaPath)
		return
	}
	r.Engine.Use(v.Middleware())
}

// healthCheckHandler returns a simple health check handler
func (r *Router) healthCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
			"env":    r.Config.Server.Env,
			"time":   time.Now().Format(time.RFC3339),
		})
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Accept-Encoding, X-CSRF-Token, Authorization, Origin, Upgrade, Connection, Cache-Control")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Upgrade, Connection")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
