package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	yahooDefaultBaseURL = "https://query1.finance.yahoo.com"
	yahooPrimeURL       = "https://finance.yahoo.com"
)

// YahooClient talks to the Yahoo Finance chart and quote APIs. Yahoo
// requires a browser-like session, so the client carries a cookie jar and
// primes it with one page load before the first API call.
type YahooClient struct {
	client   *resty.Client
	baseURL  string
	primeURL string
	sleep    func(time.Duration)

	primeOnce sync.Once
	primeErr  error
}

// YahooOption customizes a YahooClient.
type YahooOption func(*YahooClient)

// WithYahooBaseURL overrides the API base URL, mainly for tests.
func WithYahooBaseURL(url string) YahooOption {
	return func(c *YahooClient) {
		c.baseURL = url
		c.primeURL = url
	}
}

// WithYahooSleep overrides the backoff sleep, mainly for tests.
func WithYahooSleep(sleep func(time.Duration)) YahooOption {
	return func(c *YahooClient) { c.sleep = sleep }
}

// NewYahooClient creates a Yahoo Finance client with a fresh cookie session.
func NewYahooClient(opts ...YahooOption) *YahooClient {
	jar, _ := cookiejar.New(nil)
	client := resty.New()
	client.SetCookieJar(jar)
	client.SetTimeout(20 * time.Second)
	client.SetHeader("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")

	c := &YahooClient{
		client:   client,
		baseURL:  yahooDefaultBaseURL,
		primeURL: yahooPrimeURL,
		sleep:    time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// prime loads the Yahoo Finance landing page once to collect session
// cookies. Failures are tolerated; the API endpoints usually still work.
func (c *YahooClient) prime(ctx context.Context) {
	c.primeOnce.Do(func() {
		_, c.primeErr = c.client.R().SetContext(ctx).Get(c.primeURL)
	})
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Timestamps []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// DailyCloses fetches daily closing prices for symbol within [from, to],
// ordered oldest first. Null closes from half-session days are skipped.
func (c *YahooClient) DailyCloses(ctx context.Context, symbol string, from, to time.Time) ([]DailyClose, error) {
	c.prime(ctx)

	var closes []DailyClose
	err := withRetry(ctx, c.sleep, func() error {
		var resp yahooChartResponse
		httpResp, err := c.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"period1":  fmt.Sprintf("%d", from.Unix()),
				"period2":  fmt.Sprintf("%d", to.Unix()),
				"interval": "1d",
				"events":   "history",
			}).
			SetResult(&resp).
			Get(c.baseURL + "/v8/finance/chart/" + symbol)
		if err != nil {
			return &Error{Provider: "yahoo", Transient: true, Err: err}
		}
		if httpResp.StatusCode() == http.StatusNotFound {
			return &Error{Provider: "yahoo", StatusCode: 404, Err: fmt.Errorf("%s: %w", symbol, ErrNoData)}
		}
		if httpResp.StatusCode() != 200 {
			return &Error{
				Provider:   "yahoo",
				StatusCode: httpResp.StatusCode(),
				Transient:  classifyStatus(httpResp.StatusCode()),
				Err:        fmt.Errorf("chart request failed for %s", symbol),
			}
		}
		if resp.Chart.Error != nil {
			return &Error{Provider: "yahoo", Err: fmt.Errorf("%s: %s: %w", symbol, resp.Chart.Error.Code, ErrNoData)}
		}
		if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
			return &Error{Provider: "yahoo", Err: fmt.Errorf("%s: %w", symbol, ErrNoData)}
		}

		result := resp.Chart.Result[0]
		quote := result.Indicators.Quote[0]
		closes = closes[:0]
		for i, ts := range result.Timestamps {
			if i >= len(quote.Close) || quote.Close[i] == nil {
				continue
			}
			closes = append(closes, DailyClose{
				Date:  time.Unix(ts, 0).UTC().Truncate(24 * time.Hour),
				Close: *quote.Close[i],
			})
		}
		if len(closes) == 0 {
			return &Error{Provider: "yahoo", Err: fmt.Errorf("%s: %w", symbol, ErrNoData)}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return closes, nil
}

type yahooQuoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol             string  `json:"symbol"`
			RegularMarketPrice float64 `json:"regularMarketPrice"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteResponse"`
}

// BatchQuotes fetches current prices for many symbols in one request.
// Symbols missing from the response are absent from the returned map.
func (c *YahooClient) BatchQuotes(ctx context.Context, symbols []string) (map[string]float64, error) {
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}
	c.prime(ctx)

	var resp yahooQuoteResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("symbols", strings.Join(symbols, ",")).
		SetResult(&resp).
		Get(c.baseURL + "/v7/finance/quote")
	if err != nil {
		return nil, &Error{Provider: "yahoo", Transient: true, Err: err}
	}
	if httpResp.StatusCode() != 200 {
		return nil, &Error{
			Provider:   "yahoo",
			StatusCode: httpResp.StatusCode(),
			Transient:  classifyStatus(httpResp.StatusCode()),
			Err:        fmt.Errorf("batch quote request failed"),
		}
	}
	if resp.QuoteResponse.Error != nil {
		return nil, &Error{Provider: "yahoo", Err: fmt.Errorf("batch quote: %s", resp.QuoteResponse.Error.Description)}
	}

	prices := make(map[string]float64, len(resp.QuoteResponse.Result))
	for _, r := range resp.QuoteResponse.Result {
		if r.RegularMarketPrice > 0 {
			prices[r.Symbol] = r.RegularMarketPrice
		}
	}
	return prices, nil
}
