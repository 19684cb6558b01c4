package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/groupsync-server/internal/auth"
	"github.com/vovakirdan/groupsync-server/internal/config"
	"github.com/vovakirdan/groupsync-server/internal/core"
	"github.com/vovakirdan/groupsync-server/internal/service/chat"
	"github.com/vovakirdan/groupsync-server/internal/service/notifications"
)

// Deps are the components the HTTP layer serves.
type Deps struct {
	Hub           *core.Hub
	Chat          *chat.Service
	Notifications *notifications.Dispatcher
	Config        config.Config
	Logger        *zerolog.Logger
}

// NewServer builds the HTTP server. /ws is served directly by the WebSocket handler;
// health and the REST surface go through gin.
func NewServer(deps Deps) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	logger := deps.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(deps.Config.JWTSecret),
		Issuer:   deps.Config.JWTIssuer,
		Audience: deps.Config.JWTAudience,
	}

	r := gin.New()
	r.Use(gin.Recovery(), LoggerMiddleware(logger))

	r.GET("/health", healthHandler)

	chatH := NewChatHandlers(deps.Chat, deps.Hub, logger)
	notifyH := NewNotificationHandlers(deps.Notifications, logger)

	api := r.Group("/api")
	api.Use(AuthMiddleware(jwtConfig, logger))

	api.GET("/groups/:groupId/messages", chatH.History)
	api.POST("/groups/:groupId/messages", chatH.Send)
	api.GET("/groups/:groupId/online", chatH.Online)
	api.PUT("/messages/:messageId", chatH.Edit)
	api.DELETE("/messages/:messageId", chatH.Delete)
	api.POST("/messages/:messageId/reactions", chatH.React)

	api.GET("/notifications", notifyH.List)
	api.PUT("/notifications", notifyH.MarkAllRead)
	api.PUT("/notifications/read-all", notifyH.MarkAllRead)
	api.PUT("/notifications/:id/read", notifyH.MarkRead)

	api.POST("/tasks/assignments", notifyH.AssignTask)

	// The upgrade must not pass through gin's response writer.
	mux := http.NewServeMux()
	mux.Handle("/ws", NewWSHandler(deps.Hub, deps.Config, logger))
	mux.Handle("/", r)

	return &http.Server{
		Addr:              deps.Config.Addr,
		Handler:           mux,
		ReadHeaderTimeout: deps.Config.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}
