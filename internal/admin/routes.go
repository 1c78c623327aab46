package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"tg2x_go/internal/middleware"
)

// SetupRouter собирает маршруты: /health и /metrics открыты, /api только с токеном.
// Без токена группа /api не регистрируется.
func SetupRouter(m Mirror, gatherer prometheus.Gatherer, token string, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	if token == "" {
		logger.Warn("ADMIN_API_TOKEN is empty, /api routes are disabled")
		return r
	}
	h := NewHandler(m, logger)
	api := r.Group("/api", middleware.AuthRequired(token))
	api.GET("/status", h.Status)
	api.GET("/pending", h.Pending)
	api.POST("/pending/:category/:anchor/:action", h.Resolve)
	return r
}
