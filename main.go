package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"waffle-chat/internal/config"
	"waffle-chat/internal/db"
	"waffle-chat/internal/observability"
	"waffle-chat/internal/rabbitmq"
	"waffle-chat/internal/repositories"
	"waffle-chat/internal/telemetry"
	"waffle-chat/internal/ws"
)

const serviceName = "waffle-chat"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	telemetry.SetupLogger(cfg.Log.Level, serviceName, cfg.Log.Pretty)

	ctx := context.Background()
	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.TracingConfig{
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    cfg.Telemetry.OTLPInsecure,
		Service:     cfg.Telemetry.ServiceName,
		Environment: cfg.Environment,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init tracing")
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	database, err := db.Connect(cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to db")
	}
	defer database.Close()
	database.SetMaxOpenConns(cfg.Database.MaxConnections)
	database.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	roomRepo := repositories.NewRoomRepo(database)
	var messageRepo repositories.MessageRepository = repositories.NewMessageRepo(database)
	if cfg.Database.MessageStore == config.StoreMongo {
		mdb, err := db.ConnectMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mongo")
		}
		defer func() { _ = mdb.Client().Disconnect(context.Background()) }()
		messageRepo, err = repositories.NewMongoMessageRepo(ctx, mdb)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to prepare mongo message store")
		}
	}
	log.Info().Str("store", cfg.Database.MessageStore).Msg("message store ready")

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	defer auditPublisher.Close()
	log.Info().
		Str("mode", rabbitmq.PublisherMode(auditPublisher)).
		Str("reason", rabbitmq.PublisherNoopReason(auditPublisher)).
		Msg("audit publisher ready")
	audit := telemetry.NewAuditEmitter(auditPublisher, cfg.AMQP.AuditRouting, serviceName, cfg.Environment)

	if cfg.AMQP.URL != "" {
		eventPublisher, err := observability.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.EventExchange)
		if err != nil {
			log.Warn().Err(err).Msg("event publisher disabled")
		} else {
			observability.SetPublisher(eventPublisher)
			defer eventPublisher.Close()
		}
	}

	hub := ws.NewHub()
	router := setupRouter(cfg, roomRepo, messageRepo, hub, audit)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited")
}
