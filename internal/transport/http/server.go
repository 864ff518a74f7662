package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/axiomchronicles/drevoid-server/internal/config"
	"github.com/axiomchronicles/drevoid-server/internal/core"
	"github.com/axiomchronicles/drevoid-server/internal/ctf"
)

// NewServer builds the HTTP server: a read-only observer API plus the
// WebSocket bridge into the chat dispatcher.
func NewServer(dispatcher *core.Dispatcher, detector *ctf.Detector, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(LoggerMiddleware(logger), gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	observer := NewObserverHandlers(dispatcher, detector, logger)
	api := router.Group("/api")
	{
		api.GET("/stats", observer.Stats)
		api.GET("/rooms", observer.Rooms)
		api.GET("/flags", observer.Flags)
		api.GET("/leaderboard", observer.Leaderboard)
	}

	wsHandler := NewWSHandler(dispatcher, logger)
	router.GET("/ws", gin.WrapH(wsHandler))

	return &stdhttp.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
