package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoData indicates the provider responded successfully but had no usable
// price data for the requested symbol or date range.
var ErrNoData = errors.New("no price data available")

// Error describes a failed provider call with enough detail for retry
// decisions.
type Error struct {
	Provider   string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: HTTP %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err represents a failure worth retrying, such
// as a rate limit, server error, or network fault.
func IsTransient(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return false
}

// Quote is a real-time price snapshot.
type Quote struct {
	Symbol string
	Price  float64
	At     time.Time
}

// DailyClose is one day's closing price.
type DailyClose struct {
	Date  time.Time
	Close float64
}

// StockInfo is instrument reference data resolved from a provider.
type StockInfo struct {
	Ticker   string
	Name     string
	Exchange string
}

// Quoter fetches the current price of a single symbol.
type Quoter interface {
	Quote(ctx context.Context, symbol string) (*Quote, error)
}

// BatchQuoter fetches current prices for many symbols in one call.
type BatchQuoter interface {
	BatchQuotes(ctx context.Context, symbols []string) (map[string]float64, error)
}

// Historical fetches daily closing prices over a date range, oldest first.
type Historical interface {
	DailyCloses(ctx context.Context, symbol string, from, to time.Time) ([]DailyClose, error)
}

// InfoProvider resolves instrument reference data.
type InfoProvider interface {
	Info(ctx context.Context, symbol string) (*StockInfo, error)
}
