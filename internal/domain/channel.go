package domain

import "time"

// ChannelStatus represents the lifecycle status of a tracked channel.
// A channel moves pending -> processing -> completed/failed/cancelled;
// all three right-hand states are terminal for a given run.
type ChannelStatus string

const (
	ChannelStatusPending    ChannelStatus = "pending"
	ChannelStatusProcessing ChannelStatus = "processing"
	ChannelStatusCompleted  ChannelStatus = "completed"
	ChannelStatusFailed     ChannelStatus = "failed"
	ChannelStatusCancelled  ChannelStatus = "cancelled"
)

// Channel represents a tracked video channel whose content is scanned
// for stock recommendations.
type Channel struct {
	ID                  string        `gorm:"type:text;primaryKey" json:"id"`
	YouTubeChannelID    string        `gorm:"column:youtube_channel_id;type:text;not null;uniqueIndex:idx_channels_youtube_id" json:"youtube_channel_id"`
	Name                string        `gorm:"type:text;not null" json:"name"`
	URL                 string        `gorm:"type:text;not null" json:"url"`
	ThumbnailURL        string        `gorm:"type:text" json:"thumbnail_url,omitempty"`
	Status              ChannelStatus `gorm:"type:text;index:idx_channels_status;default:pending" json:"status"`
	VideoCount          int           `gorm:"default:0" json:"video_count"`
	ProcessedVideoCount int           `gorm:"default:0" json:"processed_video_count"`
	TimeRangeMonths     int           `gorm:"default:12" json:"time_range_months"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// TableName returns the database table name for Channel.
func (Channel) TableName() string {
	return "channels"
}
