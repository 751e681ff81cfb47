package http

import (
	"context"
	"net/http"

	"github.com/dkeye/CallRelay/internal/adapters/signal"
	"github.com/dkeye/CallRelay/internal/app/orch"
	"github.com/dkeye/CallRelay/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(CORSMiddleware(cfg))

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "WebRTC Server is running!")
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"connections": o.Registry.Count(),
		})
	})

	log.Info().Str("module", "adapters.http").Str("allowed_origin", cfg.AllowedOrigin).Msg("router setup")

	api := r.Group("/api")

	api.GET("/ice-servers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"iceServers": cfg.ICEServers})
	})

	ctrl := signal.NewSignalWSController(
		o,
		signal.NewEventRateLimiter(cfg.RateLimit.Events, cfg.RateLimit.Interval),
		signal.OptionsFromConfig(cfg),
	)
	api.GET("/ws/signal", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("remote", c.ClientIP()).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	return r
}
