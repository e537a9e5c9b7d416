package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Juhan1212/karbit-sub002/internal/model"
)

// bithumb is the domestic KRW spot adapter for Bithumb.
type bithumb struct {
	rc    *restClient
	creds *model.Credentials
}

func newBithumb(creds *model.Credentials) *bithumb {
	return &bithumb{
		rc:    newRESTClient("https://api.bithumb.com", 10, 20),
		creds: creds,
	}
}

func (b *bithumb) Name() string { return ExchangeBithumb }

func (b *bithumb) market(symbol string) string { return symbol + "_KRW" }

var bithumbIntervals = map[string]string{
	"1m":  "1m",
	"3m":  "3m",
	"5m":  "5m",
	"30m": "30m",
	"1h":  "1h",
	"1d":  "24h",
}

type bithumbEnvelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func (b *bithumb) checkStatus(env bithumbEnvelope, op string) error {
	switch env.Status {
	case "0000":
		return nil
	case "5100", "5200", "5300":
		return fmt.Errorf("bithumb %s: status %s: %w", op, env.Status, ErrAuthFailed)
	case "5500", "5600":
		return fmt.Errorf("bithumb %s: status %s: %w", op, env.Status, ErrSymbolNotFound)
	default:
		return fmt.Errorf("bithumb %s: status %s: %w", op, env.Status, ErrUpstreamUnavailable)
	}
}

func (b *bithumb) Ticker(ctx context.Context, symbol string) (model.TickerSnapshot, error) {
	var env bithumbEnvelope
	if err := b.rc.getJSON(ctx, "/public/ticker/"+b.market(symbol), nil, nil, &env); err != nil {
		return model.TickerSnapshot{}, fmt.Errorf("bithumb ticker %s: %w", symbol, err)
	}
	if err := b.checkStatus(env, "ticker"); err != nil {
		return model.TickerSnapshot{}, err
	}

	var data struct {
		ClosingPrice decimal.Decimal `json:"closing_price"`
		Date         string          `json:"date"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return model.TickerSnapshot{}, fmt.Errorf("bithumb ticker %s: decode: %w", symbol, err)
	}
	ts, _ := strconv.ParseInt(data.Date, 10, 64)
	return model.TickerSnapshot{Symbol: symbol, Price: data.ClosingPrice, Timestamp: ts}, nil
}

func (b *bithumb) Candles(ctx context.Context, symbol, interval string, to int64) ([]model.Candle, error) {
	chart, ok := bithumbIntervals[interval]
	if !ok {
		return nil, fmt.Errorf("bithumb: %w: %q", ErrBadInterval, interval)
	}

	var env bithumbEnvelope
	path := "/public/candlestick/" + b.market(symbol) + "/" + chart
	if err := b.rc.getJSON(ctx, path, nil, nil, &env); err != nil {
		return nil, fmt.Errorf("bithumb candles %s %s: %w", symbol, interval, err)
	}
	if err := b.checkStatus(env, "candles"); err != nil {
		return nil, err
	}

	var rows [][]json.RawMessage
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		return nil, fmt.Errorf("bithumb candles %s: decode: %w", symbol, err)
	}

	// Rows arrive ascending as [ts, open, close, high, low, volume].
	// Bithumb has no "to" parameter, so trim locally.
	candles := make([]model.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		ts, err := intField(row[0])
		if err != nil {
			continue
		}
		if to > 0 && ts > to {
			continue
		}
		open, err1 := decField(row[1])
		close_, err2 := decField(row[2])
		high, err3 := decField(row[3])
		low, err4 := decField(row[4])
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

func (b *bithumb) Balance(ctx context.Context) (model.BalanceResult, error) {
	if b.creds == nil {
		return model.BalanceResult{Error: "bithumb: credentials required"}, nil
	}

	endpoint := "/info/balance"
	nonce := strconv.FormatInt(time.Now().UnixMilli(), 10)
	form := url.Values{"endpoint": {endpoint}, "currency": {"ALL"}}
	encoded := form.Encode()

	headers := map[string]string{
		"Api-Key":      b.creds.APIKey,
		"Api-Sign":     b.sign(endpoint, encoded, nonce),
		"Api-Nonce":    nonce,
		"Content-Type": "application/x-www-form-urlencoded",
	}

	var env bithumbEnvelope
	if err := b.rc.doJSON(ctx, "POST", endpoint, nil, headers, strings.NewReader(encoded), &env); err != nil {
		return model.BalanceResult{Error: fmt.Sprintf("bithumb: %v", err)}, nil
	}
	if err := b.checkStatus(env, "balance"); err != nil {
		return model.BalanceResult{Error: err.Error()}, nil
	}

	var data map[string]json.RawMessage
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return model.BalanceResult{Error: fmt.Sprintf("bithumb: decode balance: %v", err)}, nil
	}

	var balances []model.AssetBalance
	for key, raw := range data {
		currency, ok := strings.CutPrefix(key, "available_")
		if !ok {
			continue
		}
		available, err := decField(raw)
		if err != nil {
			continue
		}
		locked := decimal.Zero
		if inUse, ok := data["in_use_"+currency]; ok {
			if d, err := decField(inUse); err == nil {
				locked = d
			}
		}
		balances = append(balances, model.AssetBalance{
			Currency:  strings.ToUpper(currency),
			Available: available,
			Locked:    locked,
		})
	}
	return model.BalanceResult{Balances: balances}, nil
}

func (b *bithumb) PositionInfo(ctx context.Context, symbol string) (model.PositionInfo, error) {
	return model.PositionInfo{}, fmt.Errorf("bithumb is spot-only: %w", ErrNotSupported)
}

// sign builds the HMAC-SHA512 request signature Bithumb expects on
// credentialed endpoints.
func (b *bithumb) sign(endpoint, encodedForm, nonce string) string {
	msg := endpoint + "\x00" + encodedForm + "\x00" + nonce
	mac := hmac.New(sha512.New, []byte(b.creds.APISecret))
	mac.Write([]byte(msg))
	hexDigest := hex.EncodeToString(mac.Sum(nil))
	return base64.StdEncoding.EncodeToString([]byte(hexDigest))
}
