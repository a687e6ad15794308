package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/wjiang/picktrace/internal/domain"
)

// VideoRepository handles video data operations.
type VideoRepository struct {
	db *gorm.DB
}

// NewVideoRepository creates a new VideoRepository.
func NewVideoRepository(db *gorm.DB) *VideoRepository {
	return &VideoRepository{db: db}
}

// Create inserts a new video record.
func (r *VideoRepository) Create(ctx context.Context, v *domain.Video) error {
	return r.db.WithContext(ctx).Create(v).Error
}

// GetByID retrieves a video by its ID.
func (r *VideoRepository) GetByID(ctx context.Context, id string) (*domain.Video, error) {
	var v domain.Video
	if err := r.db.WithContext(ctx).First(&v, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// ExistsByYouTubeVideoID is the idempotency probe: it checks whether a video
// with the given external identifier has already been ingested, by any
// channel run.
func (r *VideoRepository) ExistsByYouTubeVideoID(ctx context.Context, youtubeVideoID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Video{}).
		Where("youtube_video_id = ?", youtubeVideoID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListByChannel retrieves all videos of a channel ordered by publish date
// descending.
func (r *VideoRepository) ListByChannel(ctx context.Context, channelID string) ([]domain.Video, error) {
	var videos []domain.Video
	if err := r.db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Order("published_at DESC").
		Find(&videos).Error; err != nil {
		return nil, err
	}
	return videos, nil
}

// UpdateAnalysisStatus sets a video's classification sub-status.
func (r *VideoRepository) UpdateAnalysisStatus(ctx context.Context, id string, status domain.AnalysisStatus) error {
	return r.db.WithContext(ctx).Model(&domain.Video{}).
		Where("id = ?", id).
		Update("analysis_status", status).Error
}

// UpdateTranscriptStatus sets a video's transcript sub-status.
func (r *VideoRepository) UpdateTranscriptStatus(ctx context.Context, id string, status domain.TranscriptStatus) error {
	return r.db.WithContext(ctx).Model(&domain.Video{}).
		Where("id = ?", id).
		Update("transcript_status", status).Error
}

// CountByChannel counts videos belonging to a channel.
func (r *VideoRepository) CountByChannel(ctx context.Context, channelID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Video{}).
		Where("channel_id = ?", channelID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
