package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestAlphaVantageDailyCloses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/query" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("function") != "TIME_SERIES_DAILY" || q.Get("outputsize") != "full" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"Time Series (Daily)": {
			"2024-03-11": {"4. close": "172.30"},
			"2024-03-08": {"4. close": "170.10"},
			"2024-02-01": {"4. close": "150.00"}
		}}`)
	}))
	defer srv.Close()

	c := NewAlphaVantageClient("key", WithAlphaVantageBaseURL(srv.URL), WithAlphaVantageSleep(func(time.Duration) {}))
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)
	closes, err := c.DailyCloses(context.Background(), "AAPL", from, to)
	if err != nil {
		t.Fatalf("DailyCloses: %v", err)
	}
	if len(closes) != 2 {
		t.Fatalf("len(closes) = %d, want 2 (out-of-range day filtered)", len(closes))
	}
	if !closes[0].Date.Before(closes[1].Date) {
		t.Error("closes not ordered oldest first")
	}
	if closes[0].Close != 170.10 || closes[1].Close != 172.30 {
		t.Errorf("closes = %+v", closes)
	}
}

func TestAlphaVantageRateLimitNote(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"Note": "Thank you for using Alpha Vantage! Our standard API rate limit is 25 requests per day."}`)
	}))
	defer srv.Close()

	c := NewAlphaVantageClient("key", WithAlphaVantageBaseURL(srv.URL), WithAlphaVantageSleep(func(time.Duration) {}))
	_, err := c.DailyCloses(context.Background(), "AAPL", time.Now().AddDate(0, 0, -7), time.Now())
	if err == nil {
		t.Fatal("DailyCloses accepted a rate-limit note")
	}
	var perr *Error
	if !errors.As(err, &perr) || perr.StatusCode != 429 || !perr.Transient {
		t.Errorf("err = %+v, want transient 429", err)
	}
	if calls.Load() != retryAttempts {
		t.Errorf("calls = %d, want %d retries", calls.Load(), retryAttempts)
	}
}

func TestAlphaVantageNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Error Message": "Invalid API call."}`)
	}))
	defer srv.Close()

	c := NewAlphaVantageClient("key", WithAlphaVantageBaseURL(srv.URL), WithAlphaVantageSleep(func(time.Duration) {}))
	_, err := c.DailyCloses(context.Background(), "NOPE", time.Now().AddDate(0, 0, -7), time.Now())
	if !errors.Is(err, ErrNoData) {
		t.Errorf("err = %v, want ErrNoData", err)
	}
}

func TestAlphaVantageEmptyRangeIsNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Time Series (Daily)": {"2020-01-02": {"4. close": "100.00"}}}`)
	}))
	defer srv.Close()

	c := NewAlphaVantageClient("key", WithAlphaVantageBaseURL(srv.URL), WithAlphaVantageSleep(func(time.Duration) {}))
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)
	if _, err := c.DailyCloses(context.Background(), "AAPL", from, to); !errors.Is(err, ErrNoData) {
		t.Errorf("err = %v, want ErrNoData when no closes fall in range", err)
	}
}
