package service

import (
	"context"
	"sort"

	"github.com/wjiang/picktrace/internal/domain"
)

// StockRollup is the derived per-ticker view of a channel. It is computed
// on every read and never persisted.
type StockRollup struct {
	Ticker                 string    `json:"ticker"`
	Name                   string    `json:"name,omitempty"`
	FirstMentionDate       string    `json:"first_mention_date,omitempty"`
	FirstMentionVideoID    string    `json:"first_mention_video_id,omitempty"`
	FirstMentionVideoTitle string    `json:"first_mention_video_title,omitempty"`
	PriceAtFirstMention    *float64  `json:"price_at_first_mention"`
	CurrentPrice           *float64  `json:"current_price"`
	PriceChangePercent     *float64  `json:"price_change_percent"`
	BuyCount               int       `json:"buy_count"`
	HoldCount              int       `json:"hold_count"`
	SellCount              int       `json:"sell_count"`
	MentionedCount         int       `json:"mentioned_count"`
	TotalMentions          int       `json:"total_mentions"`
	YahooFinanceURL        string    `json:"yahoo_finance_url"`
}

// TimelineEntry is one video with its mentions, for the chronological view.
type TimelineEntry struct {
	Video    domain.Video          `json:"video"`
	Mentions []domain.StockMention `json:"mentions"`
}

// DrilldownEntry is one mention of a ticker paired with its video.
type DrilldownEntry struct {
	Mention domain.StockMention `json:"mention"`
	Video   domain.Video        `json:"video"`
}

// ChannelStocks computes the per-ticker rollup for a channel: sentiment
// bucket counts, the first mention (earliest publish date, creation order
// breaking ties), and the price delta between that mention and the stock's
// last known price. The delta is only present when both prices exist and
// the first is non-zero.
func (s *ChannelService) ChannelStocks(ctx context.Context, channelID string) ([]StockRollup, error) {
	if _, err := s.Get(ctx, channelID); err != nil {
		return nil, err
	}

	mentions, err := s.mentionRepo.ListByChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if len(mentions) == 0 {
		return []StockRollup{}, nil
	}

	videos, err := s.videoRepo.ListByChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	videoMap := make(map[string]domain.Video, len(videos))
	for _, v := range videos {
		videoMap[v.ID] = v
	}

	groups := make(map[string][]domain.StockMention)
	for _, m := range mentions {
		groups[m.Ticker] = append(groups[m.Ticker], m)
	}

	tickers := make([]string, 0, len(groups))
	for t := range groups {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	stocks, err := s.stockRepo.ListByTickers(ctx, tickers)
	if err != nil {
		return nil, err
	}
	stockMap := make(map[string]domain.Stock, len(stocks))
	for _, st := range stocks {
		stockMap[st.Ticker] = st
	}

	rollups := make([]StockRollup, 0, len(groups))
	for _, ticker := range tickers {
		group := groups[ticker]

		rollup := StockRollup{
			Ticker:          ticker,
			TotalMentions:   len(group),
			YahooFinanceURL: "https://finance.yahoo.com/quote/" + ticker,
		}
		for _, m := range group {
			switch m.Sentiment {
			case domain.SentimentBuy:
				rollup.BuyCount++
			case domain.SentimentHold:
				rollup.HoldCount++
			case domain.SentimentSell:
				rollup.SellCount++
			default:
				rollup.MentionedCount++
			}
		}

		// Repo order is creation order, so a stable sort by publish date
		// leaves creation order as the tie-break.
		sorted := make([]domain.StockMention, len(group))
		copy(sorted, group)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].PublishedAt.Before(sorted[j].PublishedAt)
		})
		first := sorted[0]
		rollup.PriceAtFirstMention = first.PriceAtMention
		rollup.FirstMentionVideoID = first.VideoID
		if v, ok := videoMap[first.VideoID]; ok {
			rollup.FirstMentionVideoTitle = v.Title
			rollup.FirstMentionDate = v.PublishedAt.Format("2006-01-02")
		}

		if st, ok := stockMap[ticker]; ok {
			rollup.Name = st.Name
			rollup.CurrentPrice = st.LastPrice
		}

		if rollup.PriceAtFirstMention != nil && rollup.CurrentPrice != nil && *rollup.PriceAtFirstMention != 0 {
			change := (*rollup.CurrentPrice - *rollup.PriceAtFirstMention) / *rollup.PriceAtFirstMention * 100
			rollup.PriceChangePercent = &change
		}

		rollups = append(rollups, rollup)
	}
	return rollups, nil
}

// ChannelTimeline returns the channel's videos newest-first, each with its
// mentions. Videos without mentions are omitted.
func (s *ChannelService) ChannelTimeline(ctx context.Context, channelID string) ([]TimelineEntry, error) {
	if _, err := s.Get(ctx, channelID); err != nil {
		return nil, err
	}

	videos, err := s.videoRepo.ListByChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}

	timeline := make([]TimelineEntry, 0, len(videos))
	for _, v := range videos {
		mentions, err := s.mentionRepo.ListByVideo(ctx, v.ID)
		if err != nil {
			return nil, err
		}
		if len(mentions) == 0 {
			continue
		}
		timeline = append(timeline, TimelineEntry{Video: v, Mentions: mentions})
	}
	return timeline, nil
}

// StockDrilldown returns every mention of one ticker within a channel,
// paired with its video, ordered by publish date.
func (s *ChannelService) StockDrilldown(ctx context.Context, channelID, ticker string) ([]DrilldownEntry, error) {
	if _, err := s.Get(ctx, channelID); err != nil {
		return nil, err
	}

	mentions, err := s.mentionRepo.ListByChannelAndTicker(ctx, channelID, ticker)
	if err != nil {
		return nil, err
	}
	if len(mentions) == 0 {
		return []DrilldownEntry{}, nil
	}

	videos, err := s.videoRepo.ListByChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	videoMap := make(map[string]domain.Video, len(videos))
	for _, v := range videos {
		videoMap[v.ID] = v
	}

	entries := make([]DrilldownEntry, 0, len(mentions))
	for _, m := range mentions {
		entries = append(entries, DrilldownEntry{Mention: m, Video: videoMap[m.VideoID]})
	}
	return entries, nil
}
