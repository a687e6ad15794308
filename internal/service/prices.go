package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/wjiang/picktrace/internal/domain"
	"github.com/wjiang/picktrace/internal/logger"
	"github.com/wjiang/picktrace/internal/provider"
	"github.com/wjiang/picktrace/internal/repository"
)

// ErrPriceUnavailable indicates every provider in the chain failed and no
// persisted price exists to fall back to.
var ErrPriceUnavailable = errors.New("price unavailable")

const syncRefreshCap = 50

// PricesOptions tunes the cache, freshness and pacing behavior of the price
// layer. Zero durations disable the corresponding delay, which tests rely on.
type PricesOptions struct {
	CacheTTL        time.Duration
	DBFreshness     time.Duration
	BatchInterval   time.Duration
	RateLimitPause  time.Duration
	BackfillDelay   time.Duration
	MaxBatchSymbols int
}

// DefaultPricesOptions returns production pacing: 5 minute cache, 1 hour DB
// freshness, ~1.1 s between quote calls to stay under 60/min.
func DefaultPricesOptions() PricesOptions {
	return PricesOptions{
		CacheTTL:        5 * time.Minute,
		DBFreshness:     time.Hour,
		BatchInterval:   1100 * time.Millisecond,
		RateLimitPause:  5 * time.Second,
		BackfillDelay:   500 * time.Millisecond,
		MaxBatchSymbols: 55,
	}
}

// PriceService resolves current and historical prices through a provider
// chain: finnhub for quotes, yahoo for batches and history, alphavantage as
// the historical tertiary.
type PriceService struct {
	stockRepo   *repository.StockRepository
	mentionRepo *repository.MentionRepository
	quoter      provider.Quoter
	info        provider.InfoProvider
	batchQuoter provider.BatchQuoter
	historical  []provider.Historical
	cache       *priceCache
	limiter     *rate.Limiter
	logger      *logger.Logger
	opts        PricesOptions
	sleep       func(time.Duration)
	now         func() time.Time
}

// NewPriceService creates a price service. historical is tried in order
// until a provider returns data.
func NewPriceService(
	stockRepo *repository.StockRepository,
	mentionRepo *repository.MentionRepository,
	quoter provider.Quoter,
	info provider.InfoProvider,
	batchQuoter provider.BatchQuoter,
	historical []provider.Historical,
	log *logger.Logger,
	opts PricesOptions,
) *PriceService {
	if opts.MaxBatchSymbols <= 0 {
		opts.MaxBatchSymbols = DefaultPricesOptions().MaxBatchSymbols
	}
	limit := rate.Inf
	if opts.BatchInterval > 0 {
		limit = rate.Every(opts.BatchInterval)
	}
	return &PriceService{
		stockRepo:   stockRepo,
		mentionRepo: mentionRepo,
		quoter:      quoter,
		info:        info,
		batchQuoter: batchQuoter,
		historical:  historical,
		cache:       newPriceCache(opts.CacheTTL),
		limiter:     rate.NewLimiter(limit, 1),
		logger:      log,
		opts:        opts,
		sleep:       time.Sleep,
		now:         time.Now,
	}
}

func (s *PriceService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// IsValidUSTicker reports whether ticker looks like a US-exchange symbol.
// Dotted forms are accepted only as share classes (BRK.A); longer suffixes
// mark foreign listings (HO.PA) and are rejected.
func IsValidUSTicker(ticker string) bool {
	ticker = strings.ToUpper(ticker)
	if strings.Contains(ticker, ".") {
		parts := strings.Split(ticker, ".")
		return len(parts) == 2 && len(parts[0]) <= 4 && len(parts[1]) == 1
	}
	return len(ticker) > 0 && len(ticker) <= 5
}

// CurrentPrice resolves one symbol's current price: cache, then persisted
// price within the freshness window, then the quote provider. On total
// provider failure the last persisted price is returned if one exists.
func (s *PriceService) CurrentPrice(ctx context.Context, ticker string) (float64, time.Time, error) {
	ticker = strings.ToUpper(ticker)

	if price, ok := s.cache.Get(ticker); ok {
		return price, s.now().UTC(), nil
	}

	stock, err := s.stockRepo.GetByTicker(ctx, ticker)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return 0, time.Time{}, err
	}
	if stock != nil && stock.LastPrice != nil && stock.PriceUpdatedAt != nil {
		if s.now().UTC().Sub(*stock.PriceUpdatedAt) < s.opts.DBFreshness {
			s.cache.Set(ticker, *stock.LastPrice)
			return *stock.LastPrice, *stock.PriceUpdatedAt, nil
		}
	}

	quote, qerr := s.quoter.Quote(ctx, ticker)
	if qerr == nil {
		now := s.now().UTC()
		s.cache.Set(ticker, quote.Price)
		if stock != nil {
			if uerr := s.stockRepo.UpdatePrice(ctx, ticker, quote.Price, now); uerr != nil {
				s.log(ctx).WithField(logger.FieldTicker, ticker).
					WithError(uerr).Warn("Failed to persist quote")
			}
		}
		return quote.Price, now, nil
	}

	// Stale fallback: a dated price beats no price.
	if stock != nil && stock.LastPrice != nil {
		at := time.Time{}
		if stock.PriceUpdatedAt != nil {
			at = *stock.PriceUpdatedAt
		}
		return *stock.LastPrice, at, nil
	}
	return 0, time.Time{}, fmt.Errorf("%s: %w", ticker, ErrPriceUnavailable)
}

// BatchCurrentPrices fetches current prices for up to MaxBatchSymbols
// symbols, pacing quote calls under the provider's per-minute ceiling. A
// rate-limit response pauses the batch rather than aborting it; when the
// primary yields nothing the batch provider is tried once for all symbols.
// Fetched prices are persisted onto their stock rows.
func (s *PriceService) BatchCurrentPrices(ctx context.Context, tickers []string) (map[string]float64, error) {
	valid := make([]string, 0, len(tickers))
	for _, t := range tickers {
		t = strings.ToUpper(t)
		if IsValidUSTicker(t) {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		return map[string]float64{}, nil
	}
	if len(valid) > s.opts.MaxBatchSymbols {
		valid = valid[:s.opts.MaxBatchSymbols]
	}

	prices := make(map[string]float64, len(valid))
	for _, ticker := range valid {
		if err := s.limiter.Wait(ctx); err != nil {
			return prices, err
		}
		quote, err := s.quoter.Quote(ctx, ticker)
		if err != nil {
			var perr *provider.Error
			if errors.As(err, &perr) && perr.StatusCode == 429 {
				s.log(ctx).WithField(logger.FieldTicker, ticker).Warn("Rate limited, pausing batch")
				if s.opts.RateLimitPause > 0 {
					s.sleep(s.opts.RateLimitPause)
				}
			} else {
				s.log(ctx).WithField(logger.FieldTicker, ticker).
					WithError(err).Warn("Failed to fetch quote")
			}
			continue
		}
		prices[ticker] = quote.Price
	}

	if len(prices) == 0 && s.batchQuoter != nil {
		fallback, err := s.batchQuoter.BatchQuotes(ctx, valid)
		if err != nil {
			s.log(ctx).WithError(err).Warn("Batch quote fallback failed")
		} else {
			prices = fallback
		}
	}

	now := s.now().UTC()
	for ticker, price := range prices {
		s.cache.Set(ticker, price)
		if err := s.stockRepo.UpdatePrice(ctx, ticker, price, now); err != nil {
			s.log(ctx).WithField(logger.FieldTicker, ticker).
				WithError(err).Warn("Failed to persist quote")
		}
	}
	return prices, nil
}

// BackfillHistorical resolves price_at_mention for every unpriced mention
// in a channel. Mentions are grouped by symbol so each symbol costs one
// time-series call; each mention gets the close of the nearest trading day
// on or before its publish date, never after. Symbols with no data are
// skipped and logged. Returns the number of prices written.
func (s *PriceService) BackfillHistorical(ctx context.Context, channelID string) (int, error) {
	mentions, err := s.mentionRepo.ListMissingPriceByChannel(ctx, channelID)
	if err != nil {
		return 0, err
	}
	if len(mentions) == 0 {
		return 0, nil
	}

	type dated struct {
		mentionID string
		date      time.Time
	}
	groups := make(map[string][]dated)
	for _, m := range mentions {
		ticker := strings.ToUpper(m.Ticker)
		if strings.Contains(ticker, ".") && !IsValidUSTicker(ticker) {
			continue
		}
		groups[ticker] = append(groups[ticker], dated{
			mentionID: m.ID,
			date:      m.PublishedAt.UTC().Truncate(24 * time.Hour),
		})
	}
	if len(groups) == 0 {
		return 0, nil
	}

	tickers := make([]string, 0, len(groups))
	for t := range groups {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldChannelID: channelID,
		logger.FieldCount:     len(tickers),
	}).Info("Backfilling historical prices")

	updated := 0
	for i, ticker := range tickers {
		if i > 0 && s.opts.BackfillDelay > 0 {
			s.sleep(s.opts.BackfillDelay)
		}

		entries := groups[ticker]
		minDate, maxDate := entries[0].date, entries[0].date
		for _, e := range entries[1:] {
			if e.date.Before(minDate) {
				minDate = e.date
			}
			if e.date.After(maxDate) {
				maxDate = e.date
			}
		}

		closes := s.fetchHistory(ctx, ticker, minDate.AddDate(0, 0, -7), maxDate.AddDate(0, 0, 1))
		if len(closes) == 0 {
			s.log(ctx).WithField(logger.FieldTicker, ticker).Warn("No historical data, skipping")
			continue
		}

		for _, e := range entries {
			price, ok := nearestCloseOnOrBefore(closes, e.date)
			if !ok {
				continue
			}
			if err := s.mentionRepo.UpdatePrice(ctx, e.mentionID, price); err != nil {
				s.log(ctx).WithField(logger.FieldTicker, ticker).
					WithError(err).Warn("Failed to write mention price")
				continue
			}
			updated++
		}
	}

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldChannelID: channelID,
		logger.FieldCount:     updated,
	}).Info("Historical backfill complete")
	return updated, nil
}

// fetchHistory walks the historical provider chain until one returns data.
func (s *PriceService) fetchHistory(ctx context.Context, ticker string, from, to time.Time) []provider.DailyClose {
	for _, h := range s.historical {
		closes, err := h.DailyCloses(ctx, ticker, from, to)
		if err != nil {
			s.log(ctx).WithField(logger.FieldTicker, ticker).
				WithError(err).Debug("Historical provider miss")
			continue
		}
		if len(closes) > 0 {
			return closes
		}
	}
	return nil
}

// nearestCloseOnOrBefore finds the latest close whose trading date is on or
// before target. closes must be ordered oldest first.
func nearestCloseOnOrBefore(closes []provider.DailyClose, target time.Time) (float64, bool) {
	for i := len(closes) - 1; i >= 0; i-- {
		if !closes[i].Date.After(target) {
			return closes[i].Close, true
		}
	}
	return 0, false
}

// StockInfo resolves instrument reference data, tolerating provider
// failure; callers fall back to a minimal stub.
func (s *PriceService) StockInfo(ctx context.Context, ticker string) (*provider.StockInfo, error) {
	return s.info.Info(ctx, strings.ToUpper(ticker))
}

// RefreshChannelPrices returns the known current prices for every ticker a
// channel mentions. When more tickers are missing prices than have them,
// up to syncRefreshCap missing ones are fetched synchronously; the rest are
// returned as remaining for the caller to refresh in the background.
func (s *PriceService) RefreshChannelPrices(ctx context.Context, channelID string) (map[string]float64, []string, error) {
	tickers, err := s.mentionRepo.DistinctTickersByChannel(ctx, channelID)
	if err != nil {
		return nil, nil, err
	}
	if len(tickers) == 0 {
		return map[string]float64{}, nil, nil
	}

	stocks, err := s.stockRepo.ListByTickers(ctx, tickers)
	if err != nil {
		return nil, nil, err
	}
	prices := make(map[string]float64, len(tickers))
	for _, st := range stocks {
		if st.LastPrice != nil {
			prices[st.Ticker] = *st.LastPrice
		}
	}

	var missing []string
	for _, t := range tickers {
		if _, ok := prices[t]; !ok {
			missing = append(missing, t)
		}
	}

	if len(missing) > len(prices) {
		batch := missing
		if len(batch) > syncRefreshCap {
			batch = batch[:syncRefreshCap]
		}
		fresh, ferr := s.BatchCurrentPrices(ctx, batch)
		if ferr != nil {
			s.log(ctx).WithField(logger.FieldChannelID, channelID).
				WithError(ferr).Warn("Synchronous price refresh failed")
		}
		for t, p := range fresh {
			prices[t] = p
		}
	}

	var remaining []string
	for _, t := range tickers {
		if _, ok := prices[t]; !ok {
			remaining = append(remaining, t)
		}
	}
	return prices, remaining, nil
}
