package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wjiang/picktrace/internal/domain"
	"github.com/wjiang/picktrace/internal/logger"
	"github.com/wjiang/picktrace/internal/repository"
	"github.com/wjiang/picktrace/internal/source/youtube"
)

// ChannelService handles channel lifecycle and the read-side views.
type ChannelService struct {
	channelRepo *repository.ChannelRepository
	videoRepo   *repository.VideoRepository
	mentionRepo *repository.MentionRepository
	stockRepo   *repository.StockRepository
	logRepo     *repository.LogRepository
	logger      *logger.Logger
}

// NewChannelService creates a new channel service.
func NewChannelService(
	channelRepo *repository.ChannelRepository,
	videoRepo *repository.VideoRepository,
	mentionRepo *repository.MentionRepository,
	stockRepo *repository.StockRepository,
	logRepo *repository.LogRepository,
	log *logger.Logger,
) *ChannelService {
	return &ChannelService{
		channelRepo: channelRepo,
		videoRepo:   videoRepo,
		mentionRepo: mentionRepo,
		stockRepo:   stockRepo,
		logRepo:     logRepo,
		logger:      log,
	}
}

// Create registers a channel for tracking. The URL must match a supported
// channel URL shape; a channel with the same identifier may only be tracked
// once.
func (s *ChannelService) Create(ctx context.Context, url string, timeRangeMonths int) (*domain.Channel, error) {
	identifier, kind, err := youtube.ExtractIdentifier(url)
	if err != nil {
		return nil, err
	}
	if timeRangeMonths <= 0 {
		timeRangeMonths = 12
	}

	exists, err := s.channelRepo.ExistsByYouTubeID(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("channel %s already tracked: %w", identifier, domain.ErrAlreadyExists)
	}

	ch := &domain.Channel{
		ID:               uuid.New().String(),
		YouTubeChannelID: identifier,
		Name:             identifier,
		URL:              url,
		Status:           domain.ChannelStatusPending,
		TimeRangeMonths:  timeRangeMonths,
	}
	if err := s.channelRepo.Create(ctx, ch); err != nil {
		return nil, err
	}

	s.logger.WithFields(logger.Fields{
		logger.FieldChannelID: ch.ID,
		"identifier":          identifier,
		"kind":                kind,
	}).Info("Channel created")
	return ch, nil
}

// Get retrieves one channel.
func (s *ChannelService) Get(ctx context.Context, id string) (*domain.Channel, error) {
	ch, err := s.channelRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("channel %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	return ch, nil
}

// List retrieves channels newest-first.
func (s *ChannelService) List(ctx context.Context, page, perPage int) ([]domain.Channel, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return s.channelRepo.List(ctx, perPage, (page-1)*perPage)
}

// Delete removes a channel and everything hanging off it: videos, mentions
// and processing logs.
func (s *ChannelService) Delete(ctx context.Context, id string) error {
	if err := s.channelRepo.DeleteCascade(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("channel %s: %w", id, domain.ErrNotFound)
		}
		return err
	}
	s.logger.WithField(logger.FieldChannelID, id).Info("Channel deleted")
	return nil
}

// Logs returns a channel's processing log entries, optionally filtered to
// entries after since.
func (s *ChannelService) Logs(ctx context.Context, id string, since time.Time, limit int) ([]domain.ProcessingLog, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.logRepo.ListByChannel(ctx, id, since, limit)
}
