package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shiptoday/nanochat/config"
	"github.com/shiptoday/nanochat/internal/handler"
	"github.com/shiptoday/nanochat/internal/metrics"
)

func Setup(
	cfg *config.Config,
	runHandler *handler.RunHandler,
	m *metrics.Metrics,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if m != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	{
		api.GET("/run/status", runHandler.Status)

		runs := api.Group("/runs")
		{
			runs.GET("", runHandler.List)
			runs.GET("/:id", runHandler.Get)
		}
	}

	return r
}
