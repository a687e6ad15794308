package domain

import "time"

// LogLevel is the severity of a processing log entry.
type LogLevel string

const (
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// ProcessingLog is an append-only, monotonically ordered note scoped to a
// channel run. Entries are never mutated; they disappear only when the
// owning channel is cascade-deleted.
type ProcessingLog struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ChannelID string    `gorm:"type:text;not null;index:idx_logs_channel_created" json:"channel_id"`
	Level     LogLevel  `gorm:"type:text;default:info" json:"level"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	CreatedAt time.Time `gorm:"index:idx_logs_channel_created" json:"created_at"`
}

// TableName returns the database table name for ProcessingLog.
func (ProcessingLog) TableName() string {
	return "processing_logs"
}
