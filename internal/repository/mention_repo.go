package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/wjiang/picktrace/internal/domain"
)

// MentionRepository handles stock mention data operations.
type MentionRepository struct {
	db *gorm.DB
}

// NewMentionRepository creates a new MentionRepository.
func NewMentionRepository(db *gorm.DB) *MentionRepository {
	return &MentionRepository{db: db}
}

// Create inserts a new stock mention record.
func (r *MentionRepository) Create(ctx context.Context, m *domain.StockMention) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// ListByVideo retrieves all mentions belonging to one video.
func (r *MentionRepository) ListByVideo(ctx context.Context, videoID string) ([]domain.StockMention, error) {
	var mentions []domain.StockMention
	if err := r.db.WithContext(ctx).
		Where("video_id = ?", videoID).
		Order("created_at ASC").
		Find(&mentions).Error; err != nil {
		return nil, err
	}
	return mentions, nil
}

// ListByChannel retrieves every mention of a channel's videos, joined via
// the videos table, ordered by mention creation time for deterministic
// tie-breaks.
func (r *MentionRepository) ListByChannel(ctx context.Context, channelID string) ([]domain.StockMention, error) {
	var mentions []domain.StockMention
	if err := r.db.WithContext(ctx).
		Joins("JOIN videos ON videos.id = stock_mentions.video_id").
		Where("videos.channel_id = ?", channelID).
		Order("stock_mentions.created_at ASC").
		Find(&mentions).Error; err != nil {
		return nil, err
	}
	return mentions, nil
}

// ListByChannelAndTicker retrieves all mentions of one ticker within a
// channel.
func (r *MentionRepository) ListByChannelAndTicker(ctx context.Context, channelID, ticker string) ([]domain.StockMention, error) {
	var mentions []domain.StockMention
	if err := r.db.WithContext(ctx).
		Joins("JOIN videos ON videos.id = stock_mentions.video_id").
		Where("videos.channel_id = ? AND stock_mentions.ticker = ?", channelID, ticker).
		Order("stock_mentions.published_at ASC").
		Find(&mentions).Error; err != nil {
		return nil, err
	}
	return mentions, nil
}

// ListMissingPriceByChannel retrieves mentions that the historical backfill
// has not priced yet.
func (r *MentionRepository) ListMissingPriceByChannel(ctx context.Context, channelID string) ([]domain.StockMention, error) {
	var mentions []domain.StockMention
	if err := r.db.WithContext(ctx).
		Joins("JOIN videos ON videos.id = stock_mentions.video_id").
		Where("videos.channel_id = ? AND stock_mentions.price_at_mention IS NULL", channelID).
		Find(&mentions).Error; err != nil {
		return nil, err
	}
	return mentions, nil
}

// UpdatePrice writes the backfilled historical price of one mention.
func (r *MentionRepository) UpdatePrice(ctx context.Context, id string, price float64) error {
	return r.db.WithContext(ctx).Model(&domain.StockMention{}).
		Where("id = ?", id).
		Update("price_at_mention", price).Error
}

// DistinctTickersByChannel returns the set of tickers mentioned anywhere in
// a channel.
func (r *MentionRepository) DistinctTickersByChannel(ctx context.Context, channelID string) ([]string, error) {
	var tickers []string
	if err := r.db.WithContext(ctx).Model(&domain.StockMention{}).
		Joins("JOIN videos ON videos.id = stock_mentions.video_id").
		Where("videos.channel_id = ?", channelID).
		Distinct("stock_mentions.ticker").
		Pluck("stock_mentions.ticker", &tickers).Error; err != nil {
		return nil, err
	}
	return tickers, nil
}
