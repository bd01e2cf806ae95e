package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quotechat/internal/domain/chat"
	"quotechat/internal/infra/broker/kafka"
	"quotechat/internal/infra/config"
	ginserver "quotechat/internal/infra/http/gin"
	"quotechat/internal/infra/obs"
	"quotechat/internal/infra/realtime"
	"quotechat/internal/infra/storage/memory"
	mongostore "quotechat/internal/infra/storage/mongo"
	"quotechat/internal/infra/storage/s3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger := obs.NewLogger("dev")
		logger.Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env)

	store, ready, cleanup := buildStore(ctx, cfg, logger)
	defer cleanup()

	var publisher realtime.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicPrefix, nil)
		if err != nil {
			logger.Warn("kafka unavailable, room events disabled", "error", err)
		} else {
			defer producer.Close()
			publisher = producer
		}
	} else {
		logger.Info("kafka not configured, room events disabled")
	}

	var uploader s3.Uploader = s3.NoopUploader{}
	if cfg.S3Endpoint != "" {
		client, err := s3.NewClient(cfg.S3Endpoint, cfg.S3UseSSL, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3PublicEndpoint, logger)
		if err != nil {
			logger.Warn("s3 unavailable, uploads disabled", "error", err)
		} else {
			uploader = client
		}
	} else {
		logger.Info("s3 not configured, uploads disabled")
	}

	hub := realtime.NewHub(store, publisher, logger)
	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{Ready: ready}, ginserver.Handlers{
		Rooms:    ginserver.RoomHandler{Store: store, Logger: logger},
		Uploads:  ginserver.UploadHandler{Uploader: uploader, Logger: logger},
		Realtime: ginserver.RealtimeHandler{Hub: hub, Logger: logger},
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("chatserver starting", "addr", cfg.HTTPAddr, "env", cfg.Env)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("chatserver stopped")
}

// buildStore prefers Mongo and falls back to the in-memory store so the
// binary still runs without infrastructure.
func buildStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (chat.Store, func() error, func()) {
	if cfg.MongoURI == "" {
		logger.Info("mongo not configured, using in-memory store")
		return memory.NewStore(), func() error { return nil }, func() {}
	}
	client, err := mongostore.New(cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		logger.Warn("mongo unavailable, using in-memory store", "error", err)
		return memory.NewStore(), func() error { return nil }, func() {}
	}
	store := mongostore.NewStore(client.DB)
	if err := store.EnsureIndexes(ctx); err != nil {
		logger.Warn("index creation failed", "error", err)
	}
	ready := func() error {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return client.Ping(pingCtx)
	}
	cleanup := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Close(closeCtx); err != nil {
			logger.Warn("mongo disconnect failed", "error", err)
		}
	}
	logger.Info("mongo connected", "db", cfg.MongoDB)
	return store, ready, cleanup
}
