package domain

import "time"

// Sentiment is the recommendation label attached to a stock mention.
type Sentiment string

const (
	SentimentBuy       Sentiment = "buy"
	SentimentHold      Sentiment = "hold"
	SentimentSell      Sentiment = "sell"
	SentimentMentioned Sentiment = "mentioned"
)

// ValidSentiment reports whether s is one of the four known labels.
func ValidSentiment(s Sentiment) bool {
	switch s {
	case SentimentBuy, SentimentHold, SentimentSell, SentimentMentioned:
		return true
	}
	return false
}

// StockMention records one stock reference extracted from a video.
// PriceAtMention is nil at creation time and written exactly once by the
// historical backfill; PublishedAt is denormalized from the parent video
// so time-ordered queries avoid a join.
type StockMention struct {
	ID              string    `gorm:"type:text;primaryKey" json:"id"`
	VideoID         string    `gorm:"type:text;not null;index:idx_mentions_video;uniqueIndex:idx_mentions_video_ticker" json:"video_id"`
	Ticker          string    `gorm:"type:text;not null;index:idx_mentions_ticker;uniqueIndex:idx_mentions_video_ticker" json:"ticker"`
	Sentiment       Sentiment `gorm:"type:text;not null" json:"sentiment"`
	PriceAtMention  *float64  `json:"price_at_mention,omitempty"`
	ConfidenceScore *float64  `json:"confidence_score,omitempty"`
	ContextSnippet  string    `gorm:"type:text" json:"context_snippet,omitempty"`
	PublishedAt     time.Time `gorm:"type:date;not null" json:"published_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// TableName returns the database table name for StockMention.
func (StockMention) TableName() string {
	return "stock_mentions"
}
