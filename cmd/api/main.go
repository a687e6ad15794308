package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wjiang/picktrace/internal/api"
	"github.com/wjiang/picktrace/internal/config"
	"github.com/wjiang/picktrace/internal/logger"
	"github.com/wjiang/picktrace/internal/provider"
	"github.com/wjiang/picktrace/internal/repository"
	"github.com/wjiang/picktrace/internal/service"
	"github.com/wjiang/picktrace/internal/source/youtube"
	"github.com/wjiang/picktrace/internal/storage"
)

func main() {
	appLogger := logger.New(logger.DefaultConfig())
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	channelRepo := repository.NewChannelRepository(db)
	videoRepo := repository.NewVideoRepository(db)
	mentionRepo := repository.NewMentionRepository(db)
	stockRepo := repository.NewStockRepository(db)
	logRepo := repository.NewLogRepository(db)

	ytClient := youtube.NewClient(cfg.YouTube.APIKey)
	classifier := service.NewLLMClassifier(&service.ClassifierConfig{
		Provider: cfg.Classifier.Provider,
		Model:    cfg.Classifier.Model,
		APIKey:   cfg.Classifier.APIKey,
		BaseURL:  cfg.Classifier.BaseURL,
	})

	finnhub := provider.NewFinnhubClient(cfg.Prices.FinnhubAPIKey)
	yahoo := provider.NewYahooClient()
	alphaVantage := provider.NewAlphaVantageClient(cfg.Prices.AlphaVantageAPIKey)

	priceService := service.NewPriceService(
		stockRepo,
		mentionRepo,
		finnhub,
		finnhub,
		yahoo,
		[]provider.Historical{yahoo, alphaVantage},
		appLogger,
		service.PricesOptions{
			CacheTTL:        cfg.Prices.CacheTTL,
			DBFreshness:     cfg.Prices.DBFreshness,
			BatchInterval:   cfg.Prices.BatchInterval,
			RateLimitPause:  cfg.Prices.RateLimitPause,
			BackfillDelay:   cfg.Prices.BackfillDelay,
			MaxBatchSymbols: cfg.Prices.MaxBatchSymbols,
		},
	)

	var archiver storage.Archiver = storage.NopArchiver{}
	if cfg.Archive.Enabled {
		s3Archiver, err := storage.NewS3Archiver(&storage.S3Config{
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			UseSSL:    cfg.Archive.UseSSL,
			Bucket:    cfg.Archive.Bucket,
			Region:    cfg.Archive.Region,
		})
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize archive storage")
		}
		archiver = s3Archiver
	}

	processingService := service.NewProcessingService(
		channelRepo, videoRepo, mentionRepo, stockRepo, logRepo,
		ytClient, ytClient, classifier, priceService, archiver,
		appLogger,
		&service.ProcessingConfig{Workers: cfg.Pipeline.Workers},
	)
	channelService := service.NewChannelService(
		channelRepo, videoRepo, mentionRepo, stockRepo, logRepo, appLogger,
	)

	runner := service.NewRunner(0, appLogger)
	runner.Start()

	router := api.SetupRouter(channelService, processingService, priceService, runner, api.RouterConfig{
		Mode:        cfg.Server.Mode,
		CORSOrigins: cfg.Server.CORS.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithField("port", cfg.Server.Port).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down")
	runner.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.WithError(err).Error("Forced shutdown")
	}
	appLogger.Info("Server stopped")
}
