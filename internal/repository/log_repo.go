package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/wjiang/picktrace/internal/domain"
)

// LogRepository handles per-channel processing log entries.
type LogRepository struct {
	db *gorm.DB
}

// NewLogRepository creates a new LogRepository.
func NewLogRepository(db *gorm.DB) *LogRepository {
	return &LogRepository{db: db}
}

// Append records one log entry for a channel.
func (r *LogRepository) Append(ctx context.Context, channelID string, level domain.LogLevel, message string) error {
	entry := &domain.ProcessingLog{
		ChannelID: channelID,
		Level:     level,
		Message:   message,
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListByChannel retrieves a channel's log entries oldest-first. A non-zero
// since filters to entries created after that instant, which lets clients
// poll incrementally.
func (r *LogRepository) ListByChannel(ctx context.Context, channelID string, since time.Time, limit int) ([]domain.ProcessingLog, error) {
	q := r.db.WithContext(ctx).Where("channel_id = ?", channelID)
	if !since.IsZero() {
		q = q.Where("created_at > ?", since)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var entries []domain.ProcessingLog
	if err := q.Order("created_at ASC, id ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
