package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const finnhubDefaultBaseURL = "https://finnhub.io/api/v1"

// FinnhubClient talks to the Finnhub REST API for real-time quotes and
// company profiles.
type FinnhubClient struct {
	client  *resty.Client
	apiKey  string
	baseURL string
	sleep   func(time.Duration)
}

// FinnhubOption customizes a FinnhubClient.
type FinnhubOption func(*FinnhubClient)

// WithFinnhubBaseURL overrides the API base URL, mainly for tests.
func WithFinnhubBaseURL(url string) FinnhubOption {
	return func(c *FinnhubClient) { c.baseURL = url }
}

// WithFinnhubSleep overrides the backoff sleep, mainly for tests.
func WithFinnhubSleep(sleep func(time.Duration)) FinnhubOption {
	return func(c *FinnhubClient) { c.sleep = sleep }
}

// NewFinnhubClient creates a Finnhub API client.
func NewFinnhubClient(apiKey string, opts ...FinnhubOption) *FinnhubClient {
	client := resty.New()
	client.SetTimeout(15 * time.Second)

	c := &FinnhubClient{
		client:  client,
		apiKey:  apiKey,
		baseURL: finnhubDefaultBaseURL,
		sleep:   time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type finnhubQuoteResponse struct {
	Current       float64 `json:"c"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PreviousClose float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
}

// Quote fetches the current price of one symbol, retrying transient
// failures with exponential backoff.
func (c *FinnhubClient) Quote(ctx context.Context, symbol string) (*Quote, error) {
	var quote *Quote
	err := withRetry(ctx, c.sleep, func() error {
		var resp finnhubQuoteResponse
		httpResp, err := c.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"symbol": symbol,
				"token":  c.apiKey,
			}).
			SetResult(&resp).
			Get(c.baseURL + "/quote")
		if err != nil {
			return &Error{Provider: "finnhub", Transient: true, Err: err}
		}
		if httpResp.StatusCode() != 200 {
			return &Error{
				Provider:   "finnhub",
				StatusCode: httpResp.StatusCode(),
				Transient:  classifyStatus(httpResp.StatusCode()),
				Err:        fmt.Errorf("quote request failed for %s", symbol),
			}
		}
		// Finnhub reports unknown symbols as a zero quote rather than an error
		if resp.Current == 0 {
			return &Error{Provider: "finnhub", Err: fmt.Errorf("%s: %w", symbol, ErrNoData)}
		}
		at := time.Now().UTC()
		if resp.Timestamp > 0 {
			at = time.Unix(resp.Timestamp, 0).UTC()
		}
		quote = &Quote{Symbol: symbol, Price: resp.Current, At: at}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return quote, nil
}

type finnhubProfileResponse struct {
	Name     string `json:"name"`
	Ticker   string `json:"ticker"`
	Exchange string `json:"exchange"`
}

// Info resolves company reference data for a symbol.
func (c *FinnhubClient) Info(ctx context.Context, symbol string) (*StockInfo, error) {
	var resp finnhubProfileResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol": symbol,
			"token":  c.apiKey,
		}).
		SetResult(&resp).
		Get(c.baseURL + "/stock/profile2")
	if err != nil {
		return nil, &Error{Provider: "finnhub", Transient: true, Err: err}
	}
	if httpResp.StatusCode() != 200 {
		return nil, &Error{
			Provider:   "finnhub",
			StatusCode: httpResp.StatusCode(),
			Transient:  classifyStatus(httpResp.StatusCode()),
			Err:        fmt.Errorf("profile request failed for %s", symbol),
		}
	}
	if resp.Name == "" {
		return nil, &Error{Provider: "finnhub", Err: fmt.Errorf("%s: %w", symbol, ErrNoData)}
	}
	return &StockInfo{Ticker: symbol, Name: resp.Name, Exchange: resp.Exchange}, nil
}
