package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"waffle-chat/internal/middleware"
	"waffle-chat/internal/observability"
	"waffle-chat/internal/telemetry"
)

func requestIDFromContext(c *gin.Context) string {
	if id := c.GetString(middleware.RequestIDKey); id != "" {
		return id
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(middleware.RequestIDKey, requestID)
	return requestID
}

func emitAudit(c *gin.Context, audit *telemetry.AuditEmitter, level, text, room string) {
	if audit == nil {
		return
	}
	audit.Emit(c.Request.Context(), telemetry.AuditEvent{
		Level:     level,
		Text:      text,
		RequestID: requestIDFromContext(c),
		UserEmail: middleware.UserEmail(c),
		Room:      room,
	})
}

func publishRoomEvent(c *gin.Context, key, name, room string, payload map[string]interface{}) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	payload["room"] = room
	payload["user_email"] = middleware.UserEmail(c)

	ctx := c.Request.Context()
	_ = observability.PublishEvent(ctx, key,
		observability.NewEvent("room_events", name, payload),
		observability.BuildHeaders(requestIDFromContext(c), observability.TraceIDFromContext(ctx)))
}
