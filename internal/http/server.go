package transport

import (
	"context"
	"log/slog"
	nethttp "net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/GolovachevS/cr-dashboard/internal/service"
)

// Options tunes the HTTP surface.
type Options struct {
	// Development exposes internal error text in 500 responses.
	Development    bool
	CORSOrigins    []string
	RequestTimeout time.Duration
}

// NewServer wires routes and returns a configured gin.Engine.
func NewServer(svc *service.Service, opts Options) *gin.Engine {
	engine := gin.New()
	engine.Use(
		gin.Logger(),
		gin.CustomRecovery(recoverPanic(opts.Development)),
		cors.New(corsConfig(opts.CORSOrigins)),
	)
	if opts.RequestTimeout > 0 {
		engine.Use(requestTimeout(opts.RequestTimeout))
	}

	h := handler{svc: svc, development: opts.Development}

	engine.GET("/health", h.health)

	api := engine.Group("/api")

	users := api.Group("/users")
	{
		users.GET("", h.listUsers)
		users.POST("", h.createUser)
	}

	crs := api.Group("/crs")
	{
		crs.GET("", h.listChangeRequests)
		crs.GET("/user/:userId", h.listChangeRequestsForUser)
		crs.POST("", h.createChangeRequest)
		crs.PATCH("/:crId/status", h.updateChangeRequestStatus)
		crs.PUT("/:crId", h.updateChangeRequest)
		crs.DELETE("/:crId", h.deleteChangeRequest)
	}

	tasks := api.Group("/tasks")
	{
		tasks.GET("/cr/:crId", h.listTasks)
		tasks.PATCH("/:taskId/status", h.updateTaskStatus)
	}

	engine.NoRoute(func(c *gin.Context) {
		writeEnvelope(c, nethttp.StatusNotFound, envelope{Message: "Route not found"})
	})

	return engine
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	cfg.MaxAge = 12 * time.Hour

	for _, origin := range origins {
		if origin == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

// requestTimeout bounds the context handed to the service and store.
func requestTimeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func recoverPanic(development bool) gin.RecoveryFunc {
	return func(c *gin.Context, recovered any) {
		slog.Error("panic recovered",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Any("panic", recovered),
		)
		body := envelope{Message: "Internal server error"}
		if development {
			if err, ok := recovered.(error); ok {
				body.Error = err.Error()
			} else if text, ok := recovered.(string); ok {
				body.Error = text
			}
		}
		c.AbortWithStatusJSON(nethttp.StatusInternalServerError, body)
	}
}
