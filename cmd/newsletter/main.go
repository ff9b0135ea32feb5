package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"waffle-chat/internal/config"
	"waffle-chat/internal/middleware"
	"waffle-chat/internal/newsletter"
	"waffle-chat/internal/observability"
	"waffle-chat/internal/rabbitmq"
	"waffle-chat/internal/telemetry"
)

const serviceName = "waffle-newsletter"

func main() {
	cfg, err := config.LoadNewsletter()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	telemetry.SetupLogger(cfg.LogLevel, serviceName, cfg.LogPretty)

	shutdownTracer, err := telemetry.InitTracer(context.Background(), telemetry.TracingConfig{
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    true,
		Service:     serviceName,
		Environment: cfg.Environment,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init tracing")
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	svc, err := newsletter.NewService(cfg.APIKey, cfg.SubscribersFile, cfg.BlocklistFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load newsletter lists")
	}

	var limiter newsletter.Limiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, rate limiting fails open")
		}
		limiter = newsletter.NewRedisLimiter(rdb, cfg.RateLimit, cfg.RateWindow)
		log.Info().Int("limit", cfg.RateLimit).Dur("window", cfg.RateWindow).Msg("rate limiting enabled")
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware(serviceName))
	router.Use(middleware.RequestLogger())
	router.Use(corsMiddleware(cfg.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "subscribers": svc.Count()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	newsletter.NewHandler(svc, limiter, publisher).Register(router)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("starting newsletter relay")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("relay forced to shutdown")
	}
	log.Info().Msg("relay exited")
}

// corsMiddleware allows every origin unless a list is configured.
func corsMiddleware(origins []string) gin.HandlerFunc {
	cc := cors.DefaultConfig()
	cc.AllowHeaders = append(cc.AllowHeaders, "x-api-key")
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
	}
	return cors.New(cc)
}
