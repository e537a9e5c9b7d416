package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Juhan1212/karbit-sub002/internal/model"
)

// upbit is the domestic KRW spot adapter for Upbit.
type upbit struct {
	rc    *restClient
	creds *model.Credentials
}

func newUpbit(creds *model.Credentials) *upbit {
	return &upbit{
		rc:    newRESTClient("https://api.upbit.com", 8, 10),
		creds: creds,
	}
}

func (u *upbit) Name() string { return ExchangeUpbit }

func (u *upbit) market(symbol string) string { return "KRW-" + symbol }

var upbitIntervals = map[string]string{
	"1m":  "/v1/candles/minutes/1",
	"3m":  "/v1/candles/minutes/3",
	"5m":  "/v1/candles/minutes/5",
	"15m": "/v1/candles/minutes/15",
	"30m": "/v1/candles/minutes/30",
	"1h":  "/v1/candles/minutes/60",
	"4h":  "/v1/candles/minutes/240",
	"1d":  "/v1/candles/days",
}

type upbitTicker struct {
	TradePrice decimal.Decimal `json:"trade_price"`
	Timestamp  int64           `json:"timestamp"`
}

func (u *upbit) Ticker(ctx context.Context, symbol string) (model.TickerSnapshot, error) {
	q := url.Values{"markets": {u.market(symbol)}}
	var out []upbitTicker
	if err := u.rc.getJSON(ctx, "/v1/ticker", q, nil, &out); err != nil {
		return model.TickerSnapshot{}, fmt.Errorf("upbit ticker %s: %w", symbol, err)
	}
	if len(out) == 0 {
		return model.TickerSnapshot{}, fmt.Errorf("upbit ticker %s: %w", symbol, ErrSymbolNotFound)
	}
	return model.TickerSnapshot{
		Symbol:    symbol,
		Price:     out[0].TradePrice,
		Timestamp: out[0].Timestamp,
	}, nil
}

type upbitCandle struct {
	DateTimeUTC string          `json:"candle_date_time_utc"`
	Open        decimal.Decimal `json:"opening_price"`
	High        decimal.Decimal `json:"high_price"`
	Low         decimal.Decimal `json:"low_price"`
	Close       decimal.Decimal `json:"trade_price"`
	Volume      decimal.Decimal `json:"candle_acc_trade_volume"`
}

func (u *upbit) Candles(ctx context.Context, symbol, interval string, to int64) ([]model.Candle, error) {
	path, ok := upbitIntervals[interval]
	if !ok {
		return nil, fmt.Errorf("upbit: %w: %q", ErrBadInterval, interval)
	}

	q := url.Values{
		"market": {u.market(symbol)},
		"count":  {"200"},
	}
	if to > 0 {
		q.Set("to", time.UnixMilli(to).UTC().Format("2006-01-02T15:04:05Z"))
	}

	var out []upbitCandle
	if err := u.rc.getJSON(ctx, path, q, nil, &out); err != nil {
		return nil, fmt.Errorf("upbit candles %s %s: %w", symbol, interval, err)
	}

	// Upbit returns newest first; flip to ascending.
	candles := make([]model.Candle, 0, len(out))
	for i := len(out) - 1; i >= 0; i-- {
		c := out[i]
		ts, err := time.Parse("2006-01-02T15:04:05", c.DateTimeUTC)
		if err != nil {
			continue
		}
		candles = append(candles, model.Candle{
			Timestamp: ts.UnixMilli(),
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
		})
	}
	return candles, nil
}

type upbitAccount struct {
	Currency string          `json:"currency"`
	Balance  decimal.Decimal `json:"balance"`
	Locked   decimal.Decimal `json:"locked"`
}

func (u *upbit) Balance(ctx context.Context) (model.BalanceResult, error) {
	if u.creds == nil {
		return model.BalanceResult{Error: "upbit: credentials required"}, nil
	}

	token, err := u.authToken()
	if err != nil {
		return model.BalanceResult{Error: fmt.Sprintf("upbit: sign request: %v", err)}, nil
	}

	var out []upbitAccount
	headers := map[string]string{"Authorization": "Bearer " + token}
	if err := u.rc.getJSON(ctx, "/v1/accounts", nil, headers, &out); err != nil {
		return model.BalanceResult{Error: fmt.Sprintf("upbit: %v", err)}, nil
	}

	balances := make([]model.AssetBalance, 0, len(out))
	for _, a := range out {
		balances = append(balances, model.AssetBalance{
			Currency:  a.Currency,
			Available: a.Balance,
			Locked:    a.Locked,
		})
	}
	return model.BalanceResult{Balances: balances}, nil
}

func (u *upbit) PositionInfo(ctx context.Context, symbol string) (model.PositionInfo, error) {
	return model.PositionInfo{}, fmt.Errorf("upbit is spot-only: %w", ErrNotSupported)
}

// authToken builds the HMAC-SHA256 signed JWT Upbit expects on
// credentialed endpoints.
func (u *upbit) authToken() (string, error) {
	enc := base64.RawURLEncoding

	header, _ := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	payload, _ := json.Marshal(map[string]string{
		"access_key": u.creds.APIKey,
		"nonce":      uuid.New().String(),
	})

	signing := enc.EncodeToString(header) + "." + enc.EncodeToString(payload)
	mac := hmac.New(sha256.New, []byte(u.creds.APISecret))
	if _, err := mac.Write([]byte(signing)); err != nil {
		return "", err
	}
	return signing + "." + enc.EncodeToString(mac.Sum(nil)), nil
}
