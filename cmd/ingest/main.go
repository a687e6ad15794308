package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/wjiang/picktrace/internal/config"
	"github.com/wjiang/picktrace/internal/domain"
	"github.com/wjiang/picktrace/internal/logger"
	"github.com/wjiang/picktrace/internal/provider"
	"github.com/wjiang/picktrace/internal/repository"
	"github.com/wjiang/picktrace/internal/service"
	"github.com/wjiang/picktrace/internal/source/youtube"
	"github.com/wjiang/picktrace/internal/storage"
)

// Processes one channel end to end, synchronously. Useful for trying a
// channel out without standing up the API server.
func main() {
	appLogger := logger.New(logger.DefaultConfig())
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	channelURL := flag.String("url", "", "Channel URL to process")
	months := flag.Int("months", 12, "How many months of videos to analyze")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if *channelURL == "" {
		fmt.Fprintln(os.Stderr, "usage: ingest -url <channel-url> [-months N] [-config path]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
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

	processingService := service.NewProcessingService(
		channelRepo, videoRepo, mentionRepo, stockRepo, logRepo,
		ytClient, ytClient, classifier, priceService, storage.NopArchiver{},
		appLogger,
		&service.ProcessingConfig{Workers: cfg.Pipeline.Workers},
	)
	channelService := service.NewChannelService(
		channelRepo, videoRepo, mentionRepo, stockRepo, logRepo, appLogger,
	)

	ctx := context.Background()

	ch, err := channelService.Create(ctx, *channelURL, *months)
	if err != nil {
		if !errors.Is(err, domain.ErrAlreadyExists) {
			appLogger.WithError(err).Fatal("Failed to create channel")
		}
		ch, err = findByURL(ctx, channelService, *channelURL)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to look up existing channel")
		}
		appLogger.WithField(logger.FieldChannelID, ch.ID).Info("Channel already tracked, re-processing")
	}

	if err := processingService.ProcessChannel(ctx, ch.ID); err != nil {
		appLogger.WithError(err).Fatal("Processing failed")
	}

	ch, err = channelService.Get(ctx, ch.ID)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to re-read channel")
	}

	fmt.Printf("Channel:   %s (%s)\n", ch.Name, ch.ID)
	fmt.Printf("Status:    %s\n", ch.Status)
	fmt.Printf("Videos:    %d processed of %d\n", ch.ProcessedVideoCount, ch.VideoCount)

	rollups, err := channelService.ChannelStocks(ctx, ch.ID)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to compute stock rollup")
	}
	fmt.Printf("Stocks:    %d\n", len(rollups))
	for _, r := range rollups {
		fmt.Printf("  %-6s buy=%d hold=%d sell=%d mentioned=%d\n",
			r.Ticker, r.BuyCount, r.HoldCount, r.SellCount, r.MentionedCount)
	}
}

// findByURL scans the channel list for an exact URL match.
func findByURL(ctx context.Context, channels *service.ChannelService, url string) (*domain.Channel, error) {
	for page := 1; ; page++ {
		batch, _, err := channels.List(ctx, page, 100)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			return nil, fmt.Errorf("channel with URL %s: %w", url, domain.ErrNotFound)
		}
		for i := range batch {
			if batch[i].URL == url {
				return &batch[i], nil
			}
		}
	}
}
