package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/cropwatch/internal/server/handlers"
)

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers groups everything the engine routes to.
type Handlers struct {
	Crops        *handlers.CropHandler
	Stream       *handlers.StreamHandler
	Notification *handlers.NotificationHandler
	Metrics      http.Handler
	Health       Pinger
}

// New wires the Gin engine with required routes and middlewares.
func New(h Handlers, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))

	r.GET("/healthz", healthz(h.Health))
	if h.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.Metrics))
	}

	if h.Crops != nil {
		api := r.Group("/api")
		api.GET("/crops", h.Crops.ListCrops)
		api.POST("/crops", h.Crops.CreateCrop)
		api.GET("/crops/:cropId/status", h.Crops.CropStatus)
		api.POST("/crops/:cropId/plants", h.Crops.AddPlant)
		api.DELETE("/crops/:cropId/plants/:plantId", h.Crops.DeletePlant)
		api.GET("/plants", h.Crops.ListPlants)
		api.GET("/plant-data", h.Crops.PlantData)
	}
	if h.Stream != nil {
		r.GET("/video_feed", h.Stream.VideoFeed)
	}
	if h.Notification != nil {
		r.POST("/send-message", h.Notification.SendMessage)
	}

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

func healthz(p Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
