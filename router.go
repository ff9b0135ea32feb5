package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"waffle-chat/internal/config"
	"waffle-chat/internal/handlers"
	"waffle-chat/internal/middleware"
	"waffle-chat/internal/observability"
	"waffle-chat/internal/repositories"
	"waffle-chat/internal/telemetry"
	"waffle-chat/internal/ws"
)

func setupRouter(
	cfg *config.Config,
	roomRepo repositories.RoomRepository,
	messageRepo repositories.MessageRepository,
	hub *ws.Hub,
	audit *telemetry.AuditEmitter,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware(serviceName))
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Identity())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	roomHandler := handlers.NewRoomHandler(roomRepo, hub, audit)
	messageHandler := handlers.NewMessageHandler(roomRepo, messageRepo, hub, audit)
	roomWS := ws.NewRoomWebSocketHandler(hub, roomRepo)

	api := router.Group("")
	api.Use(middleware.RequireIdentity())
	{
		api.GET("/rooms", roomHandler.ListRooms)
		api.POST("/create-room", roomHandler.CreateRoom)
		api.POST("/edit-room-members", roomHandler.EditMembers)
		api.GET("/room-members", roomHandler.RoomMembers)

		api.GET("/messages", messageHandler.ListMessages)
		api.POST("/send", messageHandler.Send)
		api.GET("/clear", messageHandler.Clear)
	}

	router.GET("/ws/rooms/:room", roomWS.Handle)

	handlers.RegisterDebugRoutes(router, hub, audit, cfg.Debug)
	return router
}
