package storage

import "context"

// Archiver stores raw classifier payloads for later audit. All writes are
// best-effort; callers log failures and continue.
type Archiver interface {
	// ArchiveClassification stores the raw classifier response for one video.
	ArchiveClassification(ctx context.Context, channelID, videoID string, payload []byte) error
}

// NopArchiver discards everything; used when archiving is disabled.
type NopArchiver struct{}

// ArchiveClassification implements Archiver as a no-op.
func (NopArchiver) ArchiveClassification(ctx context.Context, channelID, videoID string, payload []byte) error {
	return nil
}
