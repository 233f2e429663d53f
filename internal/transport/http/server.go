package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/huddle-realtime/internal/auth"
	"github.com/vovakirdan/huddle-realtime/internal/config"
	"github.com/vovakirdan/huddle-realtime/internal/core"
	"github.com/vovakirdan/huddle-realtime/internal/store"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer builds the development chat server. A nil jwtCfg disables
// authentication: user ids are then taken from join_room payloads.
func NewServer(hub *core.Hub, st store.MessageStore, jwtCfg *auth.JWTConfig, cfg config.ServerConfig, logger *zerolog.Logger) *stdhttp.Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	history := NewHistoryHandlers(st, logger)
	chat := router.Group("/chat")
	chat.Use(AuthMiddleware(jwtCfg, logger))
	chat.GET("/rooms/:roomId/messages", history.ListMessages)

	// /ws stays off gin: its response writer refuses the upgrade hijack.
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, jwtCfg, cfg.MessagesPerMinute, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
