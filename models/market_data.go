package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar represents OHLCV price data for a time period
type Bar struct {
	Symbol    string          `json:"symbol"`
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    int64           `json:"volume"`
}

// Date returns the bar's trading day as YYYY-MM-DD
func (b Bar) Date() string {
	return b.Timestamp.UTC().Format(DateLayout)
}

// PriceHistory is an ordered window of daily bars, oldest first
type PriceHistory struct {
	Symbol string `json:"symbol"`
	Bars   []Bar  `json:"bars"`
}

// Len returns the number of bars in the window
func (h PriceHistory) Len() int {
	return len(h.Bars)
}

// IsEmpty reports whether the window holds no bars
func (h PriceHistory) IsEmpty() bool {
	return len(h.Bars) == 0
}

// First returns the oldest bar
func (h PriceHistory) First() Bar {
	if len(h.Bars) == 0 {
		return Bar{}
	}
	return h.Bars[0]
}

// Last returns the most recent bar
func (h PriceHistory) Last() Bar {
	if len(h.Bars) == 0 {
		return Bar{}
	}
	return h.Bars[len(h.Bars)-1]
}

// ChangePct returns the percentage move from the first close to the last close
func (h PriceHistory) ChangePct() decimal.Decimal {
	start := h.First().Close
	if start.IsZero() {
		return decimal.Zero
	}
	return h.Last().Close.Sub(start).Div(start).Mul(decimal.NewFromInt(100))
}

// Tail returns the most recent n bars
func (h PriceHistory) Tail(n int) []Bar {
	if n <= 0 {
		return nil
	}
	if n >= len(h.Bars) {
		return h.Bars
	}
	return h.Bars[len(h.Bars)-n:]
}

// HighLow returns the highest high and lowest low over the most recent n bars
func (h PriceHistory) HighLow(n int) (high, low decimal.Decimal) {
	tail := h.Tail(n)
	for i, bar := range tail {
		if i == 0 || bar.High.GreaterThan(high) {
			high = bar.High
		}
		if i == 0 || bar.Low.LessThan(low) {
			low = bar.Low
		}
	}
	return high, low
}

// LastCloses returns the most recent n closing prices, oldest first
func (h PriceHistory) LastCloses(n int) []decimal.Decimal {
	tail := h.Tail(n)
	closes := make([]decimal.Decimal, 0, len(tail))
	for _, bar := range tail {
		closes = append(closes, bar.Close)
	}
	return closes
}

// NewsArticle represents a news article about a stock
type NewsArticle struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	Author      string    `json:"author,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}
