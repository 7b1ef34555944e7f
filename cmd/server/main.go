package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"anoa.com/kudosfeed/internal/config"
	"anoa.com/kudosfeed/internal/gateway"
	searchService "anoa.com/kudosfeed/internal/modules/search/service"
	"anoa.com/kudosfeed/internal/server"
	"anoa.com/kudosfeed/pkg/database"
	"anoa.com/kudosfeed/pkg/storage"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(database.Options{
		DatabaseURL: cfg.DatabaseURL,
		Host:        cfg.DBHost,
		User:        cfg.DBUser,
		Password:    cfg.DBPass,
		Name:        cfg.DBName,
		Port:        cfg.DBPort,
		LogQueries:  cfg.IsDevelopment(),
	})
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	if err := gateway.Migrate(ctx, db); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	redisClient, err := database.ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn("redis unavailable, running without cache, rate limits and cross-instance events", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var images storage.ImageStorage
	if cfg.CloudinaryCloudName != "" {
		images, err = storage.NewCloudinaryStorage(storage.CloudinaryOptions{
			CloudName:    cfg.CloudinaryCloudName,
			APIKey:       cfg.CloudinaryAPIKey,
			APISecret:    cfg.CloudinaryAPISecret,
			UploadFolder: cfg.CloudinaryUploadFolder,
		})
		if err != nil {
			logger.Warn("cloudinary disabled", zap.Error(err))
			images = nil
		}
	}

	srv, err := server.NewServer(cfg, server.Dependencies{
		DB:     db,
		Redis:  redisClient,
		Meili:  searchService.NewClient(cfg.MeiliSearchHost, cfg.MeiliMasterKey),
		Images: images,
		Clock:  clockwork.NewRealClock(),
	}, logger)
	if err != nil {
		logger.Fatal("failed to build server", zap.Error(err))
	}

	if err := srv.Run(ctx, ":"+cfg.Port); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
