// internal/web/server.go - Operational HTTP surface
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"solarwatch/internal/config"
	"solarwatch/internal/database"
	"solarwatch/internal/metrics"
)

// Server exposes the read-only operational endpoints: health, the fleet's
// current status, per-site history and Prometheus metrics. It never
// mutates state; the monitoring engine is the only writer.
type Server struct {
	config  *config.Config
	store   database.Store
	metrics *metrics.Collector
	router  *gin.Engine
	server  *http.Server
}

func NewServer(cfg *config.Config, store database.Store, metricsCollector *metrics.Collector) *Server {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	server := &Server{
		config:  cfg,
		store:   store,
		metrics: metricsCollector,
		router:  router,
	}

	server.setupRoutes()
	return server
}

func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Web.Port,
		Handler:      s.router,
		ReadTimeout:  s.config.Web.ReadTimeout,
		WriteTimeout: s.config.Web.WriteTimeout,
	}

	logrus.WithField("port", s.config.Web.Port).Info("Starting web server")

	go s.updateMetricsRoutine(ctx)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("Failed to start web server")
		}
	}()

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.healthCheck)

	api := s.router.Group("/api")
	{
		api.GET("/status", s.getStatus)
		api.GET("/status/:site/history", s.getStatusHistory)
	}

	s.router.GET(s.config.Web.MetricsPath, gin.WrapH(promhttp.Handler()))
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"sites":     len(s.config.Sites),
	})
}

func (s *Server) getStatus(c *gin.Context) {
	states, err := s.store.List(c.Request.Context())
	if err != nil {
		logrus.WithError(err).Error("Failed to list site states")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  states,
		"count": len(states),
	})
}

func (s *Server) getStatusHistory(c *gin.Context) {
	site := c.Param("site")

	since := time.Now().Add(-24 * time.Hour)
	if sinceStr := c.Query("since"); sinceStr != "" {
		if parsed, err := time.Parse(time.RFC3339, sinceStr); err == nil {
			since = parsed
		}
	}

	history, err := s.store.History(c.Request.Context(), site, since)
	if err != nil {
		logrus.WithError(err).Error("Failed to get status history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get status history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  history,
		"count": len(history),
	})
}

func (s *Server) updateMetricsRoutine(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.metrics.UpdateSystemMetrics(ctx); err != nil {
				logrus.WithError(err).Error("Failed to update system metrics")
			}
		}
	}
}
