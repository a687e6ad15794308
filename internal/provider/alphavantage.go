package provider

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

const alphaVantageDefaultBaseURL = "https://www.alphavantage.co"

// AlphaVantageClient talks to the Alpha Vantage daily time series API. It
// serves as the secondary source for historical closes.
type AlphaVantageClient struct {
	client  *resty.Client
	apiKey  string
	baseURL string
	sleep   func(time.Duration)
}

// AlphaVantageOption customizes an AlphaVantageClient.
type AlphaVantageOption func(*AlphaVantageClient)

// WithAlphaVantageBaseURL overrides the API base URL, mainly for tests.
func WithAlphaVantageBaseURL(url string) AlphaVantageOption {
	return func(c *AlphaVantageClient) { c.baseURL = url }
}

// WithAlphaVantageSleep overrides the backoff sleep, mainly for tests.
func WithAlphaVantageSleep(sleep func(time.Duration)) AlphaVantageOption {
	return func(c *AlphaVantageClient) { c.sleep = sleep }
}

// NewAlphaVantageClient creates an Alpha Vantage API client.
func NewAlphaVantageClient(apiKey string, opts ...AlphaVantageOption) *AlphaVantageClient {
	client := resty.New()
	client.SetTimeout(20 * time.Second)

	c := &AlphaVantageClient{
		client:  client,
		apiKey:  apiKey,
		baseURL: alphaVantageDefaultBaseURL,
		sleep:   time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type alphaVantageDailyResponse struct {
	TimeSeries map[string]struct {
		Close string `json:"4. close"`
	} `json:"Time Series (Daily)"`
	Note         string `json:"Note"`
	ErrorMessage string `json:"Error Message"`
}

// DailyCloses fetches daily closes for symbol, filtered to [from, to] and
// ordered oldest first. Alpha Vantage always returns its full recent
// window, so filtering happens client side.
func (c *AlphaVantageClient) DailyCloses(ctx context.Context, symbol string, from, to time.Time) ([]DailyClose, error) {
	var closes []DailyClose
	err := withRetry(ctx, c.sleep, func() error {
		var resp alphaVantageDailyResponse
		httpResp, err := c.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"function":   "TIME_SERIES_DAILY",
				"symbol":     symbol,
				"outputsize": "full",
				"apikey":     c.apiKey,
			}).
			SetResult(&resp).
			Get(c.baseURL + "/query")
		if err != nil {
			return &Error{Provider: "alphavantage", Transient: true, Err: err}
		}
		if httpResp.StatusCode() != 200 {
			return &Error{
				Provider:   "alphavantage",
				StatusCode: httpResp.StatusCode(),
				Transient:  classifyStatus(httpResp.StatusCode()),
				Err:        fmt.Errorf("daily series request failed for %s", symbol),
			}
		}
		// A Note means the free-tier rate limit kicked in
		if resp.Note != "" {
			return &Error{Provider: "alphavantage", StatusCode: 429, Transient: true, Err: fmt.Errorf("rate limited: %s", resp.Note)}
		}
		if resp.ErrorMessage != "" || len(resp.TimeSeries) == 0 {
			return &Error{Provider: "alphavantage", Err: fmt.Errorf("%s: %w", symbol, ErrNoData)}
		}

		closes = closes[:0]
		for dateStr, day := range resp.TimeSeries {
			date, err := time.Parse("2006-01-02", dateStr)
			if err != nil {
				continue
			}
			if date.Before(from) || date.After(to) {
				continue
			}
			price, err := strconv.ParseFloat(day.Close, 64)
			if err != nil {
				continue
			}
			closes = append(closes, DailyClose{Date: date, Close: price})
		}
		if len(closes) == 0 {
			return &Error{Provider: "alphavantage", Err: fmt.Errorf("%s: %w", symbol, ErrNoData)}
		}
		sort.Slice(closes, func(i, j int) bool { return closes[i].Date.Before(closes[j].Date) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return closes, nil
}
