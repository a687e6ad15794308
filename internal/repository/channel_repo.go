package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/wjiang/picktrace/internal/domain"
)

// ChannelRepository handles channel data operations.
type ChannelRepository struct {
	db *gorm.DB
}

// NewChannelRepository creates a new ChannelRepository.
func NewChannelRepository(db *gorm.DB) *ChannelRepository {
	return &ChannelRepository{db: db}
}

// Create inserts a new channel record.
func (r *ChannelRepository) Create(ctx context.Context, ch *domain.Channel) error {
	return r.db.WithContext(ctx).Create(ch).Error
}

// GetByID retrieves a channel by its ID.
func (r *ChannelRepository) GetByID(ctx context.Context, id string) (*domain.Channel, error) {
	var ch domain.Channel
	if err := r.db.WithContext(ctx).First(&ch, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &ch, nil
}

// ExistsByYouTubeID checks whether a channel with the given source
// identifier is already tracked.
func (r *ChannelRepository) ExistsByYouTubeID(ctx context.Context, youtubeChannelID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Channel{}).
		Where("youtube_channel_id = ?", youtubeChannelID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// List retrieves channels newest-first with pagination, plus the total count.
func (r *ChannelRepository) List(ctx context.Context, limit, offset int) ([]domain.Channel, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&domain.Channel{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var channels []domain.Channel
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&channels).Error; err != nil {
		return nil, 0, err
	}
	return channels, total, nil
}

// UpdateFields updates specific attributes on a channel record and bumps
// updated_at.
func (r *ChannelRepository) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now().UTC()
	return r.db.WithContext(ctx).Model(&domain.Channel{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// UpdateStatus sets the channel status.
func (r *ChannelRepository) UpdateStatus(ctx context.Context, id string, status domain.ChannelStatus) error {
	return r.UpdateFields(ctx, id, map[string]interface{}{"status": status})
}

// GetStatus re-reads only the status column. Used by the orchestrator's
// cancellation polling loop.
func (r *ChannelRepository) GetStatus(ctx context.Context, id string) (domain.ChannelStatus, error) {
	var ch domain.Channel
	if err := r.db.WithContext(ctx).Select("status").First(&ch, "id = ?", id).Error; err != nil {
		return "", err
	}
	return ch.Status, nil
}

// DeleteCascade removes a channel and all dependent videos, mentions, and
// processing logs. Returns domain semantics via gorm.ErrRecordNotFound when
// the channel does not exist.
func (r *ChannelRepository) DeleteCascade(ctx context.Context, id string) error {
	var ch domain.Channel
	if err := r.db.WithContext(ctx).First(&ch, "id = ?", id).Error; err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		videoIDs := tx.Model(&domain.Video{}).Select("id").Where("channel_id = ?", id)
		if err := tx.Where("video_id IN (?)", videoIDs).Delete(&domain.StockMention{}).Error; err != nil {
			return err
		}
		if err := tx.Where("channel_id = ?", id).Delete(&domain.Video{}).Error; err != nil {
			return err
		}
		if err := tx.Where("channel_id = ?", id).Delete(&domain.ProcessingLog{}).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Channel{}, "id = ?", id).Error
	})
}
