package domain

import "time"

// TranscriptStatus tracks whether a video's transcript could be retrieved.
type TranscriptStatus string

const (
	TranscriptStatusPending TranscriptStatus = "pending"
	TranscriptStatusFetched TranscriptStatus = "fetched"
	TranscriptStatusFailed  TranscriptStatus = "failed"
)

// AnalysisStatus tracks whether a video has been classified for stock mentions.
type AnalysisStatus string

const (
	AnalysisStatusPending   AnalysisStatus = "pending"
	AnalysisStatusCompleted AnalysisStatus = "completed"
	AnalysisStatusFailed    AnalysisStatus = "failed"
)

// Video represents one piece of channel content. The YouTube video ID is
// unique system-wide; it is the idempotency key that makes reprocessing a
// no-op.
type Video struct {
	ID               string           `gorm:"type:text;primaryKey" json:"id"`
	ChannelID        string           `gorm:"type:text;not null;index:idx_videos_channel" json:"channel_id"`
	YouTubeVideoID   string           `gorm:"column:youtube_video_id;type:text;not null;uniqueIndex:idx_videos_youtube_id" json:"youtube_video_id"`
	Title            string           `gorm:"type:text;not null" json:"title"`
	URL              string           `gorm:"type:text;not null" json:"url"`
	PublishedAt      time.Time        `gorm:"type:date;not null;index:idx_videos_published" json:"published_at"`
	TranscriptStatus TranscriptStatus `gorm:"type:text;default:pending" json:"transcript_status"`
	AnalysisStatus   AnalysisStatus   `gorm:"type:text;default:pending" json:"analysis_status"`
	CreatedAt        time.Time        `json:"created_at"`
}

// TableName returns the database table name for Video.
func (Video) TableName() string {
	return "videos"
}
