package model

import "github.com/shopspring/decimal"

// Candle represents OHLCV data for a time interval, as returned by an
// exchange. Timestamps use the exchange-native epoch granularity
// (milliseconds for the exchanges currently supported).
type Candle struct {
	Timestamp int64           `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// TickerSnapshot is the current price for a symbol on one exchange.
type TickerSnapshot struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp int64           `json:"timestamp"` // epoch millis
}

// Credentials holds one set of exchange API credentials. Passphrase is
// only used by exchanges that require it (OKX). Never logged.
type Credentials struct {
	APIKey     string
	APISecret  string
	Passphrase string
}

// AssetBalance is the balance of a single currency on an exchange.
type AssetBalance struct {
	Currency  string          `json:"currency"`
	Available decimal.Decimal `json:"available"`
	Locked    decimal.Decimal `json:"locked"`
}

// BalanceResult carries either balances or an exchange-specific error
// message. Balance calls return diagnostics in-band rather than as a Go
// error so callers can surface them without retry storms.
type BalanceResult struct {
	Balances []AssetBalance `json:"balances,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// PositionInfo describes an open futures position. Foreign exchanges only.
type PositionInfo struct {
	Symbol        string          `json:"symbol"`
	Size          decimal.Decimal `json:"size"`
	EntryPrice    decimal.Decimal `json:"entryPrice"`
	MarkPrice     decimal.Decimal `json:"markPrice"`
	UnrealizedPnL decimal.Decimal `json:"unrealizedPnl"`
	Leverage      decimal.Decimal `json:"leverage"`
}

// ExchangeRate is one exchange's premium rate inside a broker message.
type ExchangeRate struct {
	Exchange string          `json:"exchange"`
	Rate     decimal.Decimal `json:"rate"`
}

// PremiumTick is a single flattened premium update pushed to stream
// clients. Premium is nil when the broker message carried no rates for
// the symbol.
type PremiumTick struct {
	Symbol           string           `json:"symbol"`
	Premium          *decimal.Decimal `json:"premium"`
	DomesticExchange string           `json:"domesticExchange"`
	ForeignExchange  string           `json:"foreignExchange"`
	PerExchangeRates []ExchangeRate   `json:"perExchangeRates"`
}

// CandlePoint is one entry of the caller-facing premium OHLC series.
type CandlePoint struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// VolumePoint is one entry of a single-value series (volumes, reference
// closing prices).
type VolumePoint struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// KlineResponse is the wire shape of the candle aggregation endpoint.
// Ex1VolumeData (domestic) and Ex2VolumeData (foreign) are present only
// when that market group contributed data; USDTCandleData only when the
// reference fetch succeeded.
type KlineResponse struct {
	CandleData     []CandlePoint `json:"candleData"`
	VolumeData     []VolumePoint `json:"volumeData"`
	Ex1VolumeData  []VolumePoint `json:"ex1VolumeData,omitempty"`
	Ex2VolumeData  []VolumePoint `json:"ex2VolumeData,omitempty"`
	USDTCandleData []VolumePoint `json:"usdtCandleData,omitempty"`
}
