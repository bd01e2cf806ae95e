package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"quotechat/internal/infra/config"
	"quotechat/internal/infra/obs"
)

// RoomHTTP exposes the room REST endpoints.
type RoomHTTP interface {
	FindByRequest(c *gin.Context)
	Create(c *gin.Context)
	ListMessages(c *gin.Context)
	UpdateLastMessage(c *gin.Context)
	UpdateUnread(c *gin.Context)
}

// UploadHTTP exposes attachment upload.
type UploadHTTP interface {
	Upload(c *gin.Context)
}

// RealtimeHTTP upgrades room websocket connections.
type RealtimeHTTP interface {
	Serve(c *gin.Context)
}

// Handlers aggregates the HTTP surfaces wired into the router.
type Handlers struct {
	Rooms    RoomHTTP
	Uploads  UploadHTTP
	Realtime RealtimeHTTP
}

// NewServer assembles the router with observability, CORS and routes.
func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", "X-Sender-Type"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
		},
		MaxAge: 12 * time.Hour,
	}))
	router.Use(Identity())

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)

	api := router.Group("/api/v1/chat")
	if h.Rooms != nil {
		api.GET("/rooms/by-request/:requestId", h.Rooms.FindByRequest)
		api.POST("/rooms", h.Rooms.Create)
		api.GET("/rooms/:id/messages", h.Rooms.ListMessages)
		api.PATCH("/rooms/:id/last-message", h.Rooms.UpdateLastMessage)
		api.PATCH("/rooms/:id/unread", h.Rooms.UpdateUnread)
	}
	if h.Uploads != nil {
		api.POST("/uploads", h.Uploads.Upload)
	}
	if h.Realtime != nil {
		router.GET("/ws/rooms/:id", h.Realtime.Serve)
	}

	return &http.Server{Addr: cfg.HTTPAddr, Handler: router, WriteTimeout: cfg.WriteTimeout}
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
