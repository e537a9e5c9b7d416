package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Juhan1212/karbit-sub002/internal/model"
)

// binance is the foreign USDT-margined futures adapter for Binance.
type binance struct {
	rc    *restClient
	creds *model.Credentials
}

func newBinance(creds *model.Credentials) *binance {
	return &binance{
		rc:    newRESTClient("https://fapi.binance.com", 4.5, 10),
		creds: creds,
	}
}

func (b *binance) Name() string { return ExchangeBinance }

func (b *binance) market(symbol string) string { return symbol + "USDT" }

var binanceIntervals = map[string]bool{
	"1m": true, "3m": true, "5m": true, "15m": true,
	"30m": true, "1h": true, "4h": true, "1d": true,
}

func (b *binance) Ticker(ctx context.Context, symbol string) (model.TickerSnapshot, error) {
	q := url.Values{"symbol": {b.market(symbol)}}
	var out struct {
		Price decimal.Decimal `json:"price"`
		Time  int64           `json:"time"`
	}
	if err := b.rc.getJSON(ctx, "/fapi/v1/ticker/price", q, nil, &out); err != nil {
		return model.TickerSnapshot{}, fmt.Errorf("binance ticker %s: %w", symbol, err)
	}
	return model.TickerSnapshot{Symbol: symbol, Price: out.Price, Timestamp: out.Time}, nil
}

func (b *binance) Candles(ctx context.Context, symbol, interval string, to int64) ([]model.Candle, error) {
	if !binanceIntervals[interval] {
		return nil, fmt.Errorf("binance: %w: %q", ErrBadInterval, interval)
	}

	q := url.Values{
		"symbol":   {b.market(symbol)},
		"interval": {interval},
		"limit":    {"200"},
	}
	if to > 0 {
		q.Set("endTime", strconv.FormatInt(to, 10))
	}

	var rows [][]json.RawMessage
	if err := b.rc.getJSON(ctx, "/fapi/v1/klines", q, nil, &rows); err != nil {
		return nil, fmt.Errorf("binance klines %s %s: %w", symbol, interval, err)
	}

	// Rows arrive ascending as [openTime, open, high, low, close, volume, ...].
	candles := make([]model.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		ts, err := intField(row[0])
		if err != nil {
			continue
		}
		open, err1 := decField(row[1])
		high, err2 := decField(row[2])
		low, err3 := decField(row[3])
		close_, err4 := decField(row[4])
		volume, err5 := decField(row[5])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			continue
		}
		candles = append(candles, model.Candle{
			Timestamp: ts,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close_,
			Volume:    volume,
		})
	}
	return candles, nil
}

func (b *binance) Balance(ctx context.Context) (model.BalanceResult, error) {
	if b.creds == nil {
		return model.BalanceResult{Error: "binance: credentials required"}, nil
	}

	var out []struct {
		Asset            string          `json:"asset"`
		Balance          decimal.Decimal `json:"balance"`
		AvailableBalance decimal.Decimal `json:"availableBalance"`
	}
	if err := b.signedGet(ctx, "/fapi/v2/balance", url.Values{}, &out); err != nil {
		return model.BalanceResult{Error: fmt.Sprintf("binance: %v", err)}, nil
	}

	balances := make([]model.AssetBalance, 0, len(out))
	for _, a := range out {
		balances = append(balances, model.AssetBalance{
			Currency:  a.Asset,
			Available: a.AvailableBalance,
			Locked:    a.Balance.Sub(a.AvailableBalance),
		})
	}
	return model.BalanceResult{Balances: balances}, nil
}

func (b *binance) PositionInfo(ctx context.Context, symbol string) (model.PositionInfo, error) {
	if b.creds == nil {
		return model.PositionInfo{}, fmt.Errorf("binance position: %w", ErrAuthFailed)
	}

	var out []struct {
		PositionAmt      decimal.Decimal `json:"positionAmt"`
		EntryPrice       decimal.Decimal `json:"entryPrice"`
		MarkPrice        decimal.Decimal `json:"markPrice"`
		UnRealizedProfit decimal.Decimal `json:"unRealizedProfit"`
		Leverage         decimal.Decimal `json:"leverage"`
	}
	q := url.Values{"symbol": {b.market(symbol)}}
	if err := b.signedGet(ctx, "/fapi/v2/positionRisk", q, &out); err != nil {
		return model.PositionInfo{}, fmt.Errorf("binance position %s: %w", symbol, err)
	}
	if len(out) == 0 {
		return model.PositionInfo{}, fmt.Errorf("binance position %s: %w", symbol, ErrSymbolNotFound)
	}

	p := out[0]
	return model.PositionInfo{
		Symbol:        symbol,
		Size:          p.PositionAmt,
		EntryPrice:    p.EntryPrice,
		MarkPrice:     p.MarkPrice,
		UnrealizedPnL: p.UnRealizedProfit,
		Leverage:      p.Leverage,
	}, nil
}

// signedGet issues a GET with the HMAC-SHA256 query signature Binance
// expects on credentialed endpoints.
func (b *binance) signedGet(ctx context.Context, path string, q url.Values, out any) error {
	q.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	q.Set("recvWindow", "5000")

	mac := hmac.New(sha256.New, []byte(b.creds.APISecret))
	mac.Write([]byte(q.Encode()))
	q.Set("signature", hex.EncodeToString(mac.Sum(nil)))

	headers := map[string]string{"X-MBX-APIKEY": b.creds.APIKey}
	return b.rc.getJSON(ctx, path, q, headers, out)
}
