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

// bybit is the foreign linear futures adapter for Bybit (v5 API).
type bybit struct {
	rc    *restClient
	creds *model.Credentials
}

func newBybit(creds *model.Credentials) *bybit {
	return &bybit{
		rc:    newRESTClient("https://api.bybit.com", 50, 100),
		creds: creds,
	}
}

func (b *bybit) Name() string { return ExchangeBybit }

func (b *bybit) market(symbol string) string { return symbol + "USDT" }

var bybitIntervals = map[string]string{
	"1m":  "1",
	"3m":  "3",
	"5m":  "5",
	"15m": "15",
	"30m": "30",
	"1h":  "60",
	"4h":  "240",
	"1d":  "D",
}

type bybitEnvelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
	Time    int64           `json:"time"`
}

func (b *bybit) checkRet(env bybitEnvelope, op string) error {
	switch env.RetCode {
	case 0:
		return nil
	case 10003, 10004, 33004:
		return fmt.Errorf("bybit %s: %s: %w", op, env.RetMsg, ErrAuthFailed)
	case 10001:
		return fmt.Errorf("bybit %s: %s: %w", op, env.RetMsg, ErrSymbolNotFound)
	default:
		return fmt.Errorf("bybit %s: retCode %d %s: %w", op, env.RetCode, env.RetMsg, ErrUpstreamUnavailable)
	}
}

func (b *bybit) Ticker(ctx context.Context, symbol string) (model.TickerSnapshot, error) {
	q := url.Values{"category": {"linear"}, "symbol": {b.market(symbol)}}
	var env bybitEnvelope
	if err := b.rc.getJSON(ctx, "/v5/market/tickers", q, nil, &env); err != nil {
		return model.TickerSnapshot{}, fmt.Errorf("bybit ticker %s: %w", symbol, err)
	}
	if err := b.checkRet(env, "ticker"); err != nil {
		return model.TickerSnapshot{}, err
	}

	var result struct {
		List []struct {
			LastPrice decimal.Decimal `json:"lastPrice"`
		} `json:"list"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil || len(result.List) == 0 {
		return model.TickerSnapshot{}, fmt.Errorf("bybit ticker %s: %w", symbol, ErrSymbolNotFound)
	}
	return model.TickerSnapshot{Symbol: symbol, Price: result.List[0].LastPrice, Timestamp: env.Time}, nil
}

func (b *bybit) Candles(ctx context.Context, symbol, interval string, to int64) ([]model.Candle, error) {
	native, ok := bybitIntervals[interval]
	if !ok {
		return nil, fmt.Errorf("bybit: %w: %q", ErrBadInterval, interval)
	}

	q := url.Values{
		"category": {"linear"},
		"symbol":   {b.market(symbol)},
		"interval": {native},
		"limit":    {"200"},
	}
	if to > 0 {
		q.Set("end", strconv.FormatInt(to, 10))
	}

	var env bybitEnvelope
	if err := b.rc.getJSON(ctx, "/v5/market/kline", q, nil, &env); err != nil {
		return nil, fmt.Errorf("bybit kline %s %s: %w", symbol, interval, err)
	}
	if err := b.checkRet(env, "kline"); err != nil {
		return nil, err
	}

	var result struct {
		List [][]json.RawMessage `json:"list"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil {
		return nil, fmt.Errorf("bybit kline %s: decode: %w", symbol, err)
	}

	// Bybit returns newest first as [start, open, high, low, close,
	// volume, turnover]; flip to ascending.
	candles := make([]model.Candle, 0, len(result.List))
	for i := len(result.List) - 1; i >= 0; i-- {
		row := result.List[i]
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

func (b *bybit) Balance(ctx context.Context) (model.BalanceResult, error) {
	if b.creds == nil {
		return model.BalanceResult{Error: "bybit: credentials required"}, nil
	}

	q := url.Values{"accountType": {"UNIFIED"}}
	var env bybitEnvelope
	if err := b.rc.getJSON(ctx, "/v5/account/wallet-balance", q, b.authHeaders(q), &env); err != nil {
		return model.BalanceResult{Error: fmt.Sprintf("bybit: %v", err)}, nil
	}
	if err := b.checkRet(env, "balance"); err != nil {
		return model.BalanceResult{Error: err.Error()}, nil
	}

	var result struct {
		List []struct {
			Coin []struct {
				Coin          string          `json:"coin"`
				WalletBalance decimal.Decimal `json:"walletBalance"`
				Locked        decimal.Decimal `json:"locked"`
			} `json:"coin"`
		} `json:"list"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil || len(result.List) == 0 {
		return model.BalanceResult{Error: "bybit: empty wallet balance response"}, nil
	}

	var balances []model.AssetBalance
	for _, c := range result.List[0].Coin {
		balances = append(balances, model.AssetBalance{
			Currency:  c.Coin,
			Available: c.WalletBalance.Sub(c.Locked),
			Locked:    c.Locked,
		})
	}
	return model.BalanceResult{Balances: balances}, nil
}

func (b *bybit) PositionInfo(ctx context.Context, symbol string) (model.PositionInfo, error) {
	if b.creds == nil {
		return model.PositionInfo{}, fmt.Errorf("bybit position: %w", ErrAuthFailed)
	}

	q := url.Values{"category": {"linear"}, "symbol": {b.market(symbol)}}
	var env bybitEnvelope
	if err := b.rc.getJSON(ctx, "/v5/position/list", q, b.authHeaders(q), &env); err != nil {
		return model.PositionInfo{}, fmt.Errorf("bybit position %s: %w", symbol, err)
	}
	if err := b.checkRet(env, "position"); err != nil {
		return model.PositionInfo{}, err
	}

	var result struct {
		List []struct {
			Size          decimal.Decimal `json:"size"`
			AvgPrice      decimal.Decimal `json:"avgPrice"`
			MarkPrice     decimal.Decimal `json:"markPrice"`
			UnrealisedPnl decimal.Decimal `json:"unrealisedPnl"`
			Leverage      decimal.Decimal `json:"leverage"`
		} `json:"list"`
	}
	if err := json.Unmarshal(env.Result, &result); err != nil || len(result.List) == 0 {
		return model.PositionInfo{}, fmt.Errorf("bybit position %s: %w", symbol, ErrSymbolNotFound)
	}

	p := result.List[0]
	return model.PositionInfo{
		Symbol:        symbol,
		Size:          p.Size,
		EntryPrice:    p.AvgPrice,
		MarkPrice:     p.MarkPrice,
		UnrealizedPnL: p.UnrealisedPnl,
		Leverage:      p.Leverage,
	}, nil
}

// authHeaders builds the v5 HMAC headers: sign(timestamp + key +
// recvWindow + queryString).
func (b *bybit) authHeaders(q url.Values) map[string]string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	recvWindow := "5000"

	mac := hmac.New(sha256.New, []byte(b.creds.APISecret))
	mac.Write([]byte(ts + b.creds.APIKey + recvWindow + q.Encode()))

	return map[string]string{
		"X-BAPI-API-KEY":     b.creds.APIKey,
		"X-BAPI-TIMESTAMP":   ts,
		"X-BAPI-RECV-WINDOW": recvWindow,
		"X-BAPI-SIGN":        hex.EncodeToString(mac.Sum(nil)),
	}
}
