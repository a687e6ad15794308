package source

import (
	"context"
	"time"
)

// ChannelMeta is resolved channel metadata from a content source.
type ChannelMeta struct {
	SourceChannelID string // stable ID within the source (e.g. UC... for YouTube)
	Name            string
	ThumbnailURL    string
}

// VideoRef is one discovered video, not yet persisted.
type VideoRef struct {
	SourceVideoID string
	Title         string
	URL           string
	PublishedAt   time.Time
}

// Lister defines the discovery interface for a video content source.
type Lister interface {
	// ResolveChannel resolves a channel URL to its metadata. Failures are
	// non-fatal to the pipeline; callers log and proceed with what they have.
	ResolveChannel(ctx context.Context, channelURL string) (*ChannelMeta, error)

	// ListVideos lists videos published within the last monthsBack months,
	// newest first.
	ListVideos(ctx context.Context, sourceChannelID string, monthsBack int) ([]VideoRef, error)
}

// TranscriptFetcher retrieves the spoken-word transcript of a video.
type TranscriptFetcher interface {
	// Transcript returns the full transcript text, or an error when the
	// video has no captions available.
	Transcript(ctx context.Context, sourceVideoID string) (string, error)
}
