package newsletter

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"waffle-chat/internal/observability"
	"waffle-chat/internal/rabbitmq"
)

// Response messages are part of the relay's public contract.
const (
	MsgForbidden  = "Forbidden: Invalid API Key"
	MsgInvalid    = "Invalid email address"
	MsgDisposable = "Disposable email addresses are not allowed"
	MsgDuplicate  = "Email is already subscribed"
	MsgSubscribed = "Subscribed successfully"
	MsgRateLimit  = "Too many requests"
	MsgInternal   = "Could not subscribe"
)

const apiKeyHeader = "x-api-key"

// SubscribedEvent is published after a successful sign-up.
type SubscribedEvent struct {
	Email string `json:"email"`
	IP    string `json:"ip"`
}

// Handler serves POST /subscribe.
type Handler struct {
	svc       *Service
	limiter   Limiter
	publisher rabbitmq.Publisher
}

// NewHandler builds a Handler. limiter and publisher may be nil.
func NewHandler(svc *Service, limiter Limiter, publisher rabbitmq.Publisher) *Handler {
	return &Handler{svc: svc, limiter: limiter, publisher: publisher}
}

// Register mounts the relay routes on r.
func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/subscribe", h.Subscribe)
}

func (h *Handler) Subscribe(c *gin.Context) {
	ctx := c.Request.Context()
	ip := c.ClientIP()

	if h.limiter != nil {
		allowed, err := h.limiter.Allow(ctx, ip)
		if err != nil {
			log.Warn().Err(err).Str("ip", ip).Msg("rate limiter unavailable, allowing request")
		} else if !allowed {
			h.reply(c, http.StatusTooManyRequests, MsgRateLimit, "rate_limited")
			return
		}
	}

	if !h.svc.CheckKey(c.GetHeader(apiKeyHeader)) {
		h.reply(c, http.StatusForbidden, MsgForbidden, "forbidden")
		return
	}

	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.reply(c, http.StatusBadRequest, MsgInvalid, "invalid")
		return
	}

	email, err := h.svc.Subscribe(ctx, req.Email)
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidEmail):
		h.reply(c, http.StatusBadRequest, MsgInvalid, "invalid")
		return
	case errors.Is(err, ErrDisposableEmail):
		h.reply(c, http.StatusBadRequest, MsgDisposable, "disposable")
		return
	case errors.Is(err, ErrAlreadySubscribed):
		h.reply(c, http.StatusBadRequest, MsgDuplicate, "duplicate")
		return
	default:
		log.Error().Err(err).Msg("subscribe failed")
		h.reply(c, http.StatusInternalServerError, MsgInternal, "error")
		return
	}

	h.publish(ctx, SubscribedEvent{Email: email, IP: ip})
	log.Info().Str("ip", ip).Msg("subscriber added")
	h.reply(c, http.StatusOK, MsgSubscribed, "subscribed")
}

func (h *Handler) reply(c *gin.Context, status int, message, result string) {
	observability.IncSubscription(result)
	if status >= 400 {
		log.Warn().Int("status", status).Msg(message)
	}
	c.JSON(status, gin.H{"message": message})
}

func (h *Handler) publish(ctx context.Context, ev SubscribedEvent) {
	if h.publisher == nil {
		return
	}
	event := observability.NewEvent("newsletter_events", "subscribed", ev)
	if err := h.publisher.Publish(ctx, observability.EventSubscribed, event); err != nil {
		observability.IncAMQPPublishError()
		log.Warn().Err(err).Msg("publish subscription event failed")
	}
}
