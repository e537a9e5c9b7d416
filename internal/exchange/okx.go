package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Juhan1212/karbit-sub002/internal/model"
)

// okx is the foreign perpetual swap adapter for OKX (v5 API).
type okx struct {
	rc    *restClient
	creds *model.Credentials
}

func newOKX(creds *model.Credentials) *okx {
	return &okx{
		rc:    newRESTClient("https://www.okx.com", 3, 5),
		creds: creds,
	}
}

func (o *okx) Name() string { return ExchangeOKX }

func (o *okx) instID(symbol string) string { return symbol + "-USDT-SWAP" }

var okxIntervals = map[string]string{
	"1m":  "1m",
	"3m":  "3m",
	"5m":  "5m",
	"15m": "15m",
	"30m": "30m",
	"1h":  "1H",
	"4h":  "4H",
	"1d":  "1D",
}

type okxEnvelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (o *okx) checkCode(env okxEnvelope, op string) error {
	switch env.Code {
	case "0":
		return nil
	case "50111", "50113", "50114":
		return fmt.Errorf("okx %s: %s: %w", op, env.Msg, ErrAuthFailed)
	case "51001":
		return fmt.Errorf("okx %s: %s: %w", op, env.Msg, ErrSymbolNotFound)
	default:
		return fmt.Errorf("okx %s: code %s %s: %w", op, env.Code, env.Msg, ErrUpstreamUnavailable)
	}
}

func (o *okx) Ticker(ctx context.Context, symbol string) (model.TickerSnapshot, error) {
	q := url.Values{"instId": {o.instID(symbol)}}
	var env okxEnvelope
	if err := o.rc.getJSON(ctx, "/api/v5/market/ticker", q, nil, &env); err != nil {
		return model.TickerSnapshot{}, fmt.Errorf("okx ticker %s: %w", symbol, err)
	}
	if err := o.checkCode(env, "ticker"); err != nil {
		return model.TickerSnapshot{}, err
	}

	var data []struct {
		Last decimal.Decimal `json:"last"`
		Ts   string          `json:"ts"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || len(data) == 0 {
		return model.TickerSnapshot{}, fmt.Errorf("okx ticker %s: %w", symbol, ErrSymbolNotFound)
	}
	ts, _ := strconv.ParseInt(data[0].Ts, 10, 64)
	return model.TickerSnapshot{Symbol: symbol, Price: data[0].Last, Timestamp: ts}, nil
}

func (o *okx) Candles(ctx context.Context, symbol, interval string, to int64) ([]model.Candle, error) {
	bar, ok := okxIntervals[interval]
	if !ok {
		return nil, fmt.Errorf("okx: %w: %q", ErrBadInterval, interval)
	}

	q := url.Values{
		"instId": {o.instID(symbol)},
		"bar":    {bar},
		"limit":  {"200"},
	}
	if to > 0 {
		// "after" pages backwards: records with ts strictly earlier.
		q.Set("after", strconv.FormatInt(to+1, 10))
	}

	var env okxEnvelope
	if err := o.rc.getJSON(ctx, "/api/v5/market/candles", q, nil, &env); err != nil {
		return nil, fmt.Errorf("okx candles %s %s: %w", symbol, interval, err)
	}
	if err := o.checkCode(env, "candles"); err != nil {
		return nil, err
	}

	var rows [][]json.RawMessage
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		return nil, fmt.Errorf("okx candles %s: decode: %w", symbol, err)
	}

	// OKX returns newest first as [ts, open, high, low, close, vol, ...];
	// flip to ascending.
	candles := make([]model.Candle, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
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

func (o *okx) Balance(ctx context.Context) (model.BalanceResult, error) {
	if o.creds == nil {
		return model.BalanceResult{Error: "okx: credentials required"}, nil
	}

	path := "/api/v5/account/balance"
	var env okxEnvelope
	if err := o.rc.getJSON(ctx, path, nil, o.authHeaders("GET", path), &env); err != nil {
		return model.BalanceResult{Error: fmt.Sprintf("okx: %v", err)}, nil
	}
	if err := o.checkCode(env, "balance"); err != nil {
		return model.BalanceResult{Error: err.Error()}, nil
	}

	var data []struct {
		Details []struct {
			Ccy       string          `json:"ccy"`
			AvailBal  decimal.Decimal `json:"availBal"`
			FrozenBal decimal.Decimal `json:"frozenBal"`
		} `json:"details"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || len(data) == 0 {
		return model.BalanceResult{Error: "okx: empty balance response"}, nil
	}

	var balances []model.AssetBalance
	for _, d := range data[0].Details {
		balances = append(balances, model.AssetBalance{
			Currency:  d.Ccy,
			Available: d.AvailBal,
			Locked:    d.FrozenBal,
		})
	}
	return model.BalanceResult{Balances: balances}, nil
}

func (o *okx) PositionInfo(ctx context.Context, symbol string) (model.PositionInfo, error) {
	if o.creds == nil {
		return model.PositionInfo{}, fmt.Errorf("okx position: %w", ErrAuthFailed)
	}

	path := "/api/v5/account/positions"
	q := url.Values{"instType": {"SWAP"}, "instId": {o.instID(symbol)}}
	signPath := path + "?" + q.Encode()

	var env okxEnvelope
	if err := o.rc.getJSON(ctx, path, q, o.authHeaders("GET", signPath), &env); err != nil {
		return model.PositionInfo{}, fmt.Errorf("okx position %s: %w", symbol, err)
	}
	if err := o.checkCode(env, "position"); err != nil {
		return model.PositionInfo{}, err
	}

	var data []struct {
		Pos    decimal.Decimal `json:"pos"`
		AvgPx  decimal.Decimal `json:"avgPx"`
		MarkPx decimal.Decimal `json:"markPx"`
		Upl    decimal.Decimal `json:"upl"`
		Lever  decimal.Decimal `json:"lever"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || len(data) == 0 {
		return model.PositionInfo{}, fmt.Errorf("okx position %s: %w", symbol, ErrSymbolNotFound)
	}

	p := data[0]
	return model.PositionInfo{
		Symbol:        symbol,
		Size:          p.Pos,
		EntryPrice:    p.AvgPx,
		MarkPrice:     p.MarkPx,
		UnrealizedPnL: p.Upl,
		Leverage:      p.Lever,
	}, nil
}

// authHeaders builds the OKX signature headers: base64(hmac-sha256(
// timestamp + method + requestPath)).
func (o *okx) authHeaders(method, requestPath string) map[string]string {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	mac := hmac.New(sha256.New, []byte(o.creds.APISecret))
	mac.Write([]byte(ts + method + requestPath))

	return map[string]string{
		"OK-ACCESS-KEY":        o.creds.APIKey,
		"OK-ACCESS-SIGN":       base64.StdEncoding.EncodeToString(mac.Sum(nil)),
		"OK-ACCESS-TIMESTAMP":  ts,
		"OK-ACCESS-PASSPHRASE": o.creds.Passphrase,
	}
}
