package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sos-service/internal/auth"
	"sos-service/internal/logging"
)

type RouterConfig struct {
	BasePath   string
	SubmitRate string
}

func NewRouter(h *Handler, verifier *auth.Verifier, logger *logging.Logger, cfg RouterConfig) (*gin.Engine, error) {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))
	r.Use(verifier.Middleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST("/send-sos", h.SendSOS)

	limit, err := SubmitRateLimit(cfg.SubmitRate, logger)
	if err != nil {
		return nil, err
	}

	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api/v0"
	}
	api := r.Group(basePath)
	{
		// Session
		api.POST("/session", h.InitSession)
		api.PUT("/session/location", h.UpdateLocation)
		api.DELETE("/session", h.ClearSession)

		// Alerts
		api.POST("/alerts", limit, h.SubmitAlert)

		admin := api.Group("/alerts", h.RequireAdmin())
		admin.GET("", h.ListAlerts)
		admin.GET("/stream", h.StreamAlerts)
		admin.POST("/:id/resolve", h.ResolveAlert)
		admin.GET("/:id/dispatches", h.ListDispatches)
	}
	return r, nil
}
