package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

// testClient points an adapter's REST client at a test server with a
// limiter generous enough to never block.
func testClient(srv *httptest.Server) *restClient {
	rc := newRESTClient(srv.URL, 1000, 1000)
	return rc
}

func TestUpbitCandlesAscending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/candles/minutes/1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("market"); got != "KRW-BTC" {
			t.Errorf("unexpected market %q", got)
		}
		// Upbit order: newest first.
		w.Write([]byte(`[
			{"candle_date_time_utc":"2024-01-01T00:01:00","opening_price":101000,"high_price":102000,"low_price":100500,"trade_price":101500,"candle_acc_trade_volume":2.5},
			{"candle_date_time_utc":"2024-01-01T00:00:00","opening_price":100000,"high_price":101000,"low_price":99500,"trade_price":100800,"candle_acc_trade_volume":1.5}
		]`))
	}))
	defer srv.Close()

	u := newUpbit(nil)
	u.rc = testClient(srv)

	candles, err := u.Candles(context.Background(), "BTC", "1m", 0)
	if err != nil {
		t.Fatalf("Candles returned error: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	if candles[0].Timestamp >= candles[1].Timestamp {
		t.Errorf("candles not ascending: %d >= %d", candles[0].Timestamp, candles[1].Timestamp)
	}
	if !candles[0].Open.Equal(decimal.NewFromInt(100000)) {
		t.Errorf("expected open 100000, got %s", candles[0].Open)
	}
}

func TestUpbitBadInterval(t *testing.T) {
	u := newUpbit(nil)
	if _, err := u.Candles(context.Background(), "BTC", "2h", 0); !errors.Is(err, ErrBadInterval) {
		t.Errorf("expected ErrBadInterval, got %v", err)
	}
}

func TestUpbitTickerSymbolNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	u := newUpbit(nil)
	u.rc = testClient(srv)

	if _, err := u.Ticker(context.Background(), "NOPE"); !errors.Is(err, ErrSymbolNotFound) {
		t.Errorf("expected ErrSymbolNotFound, got %v", err)
	}
}

func TestUpbitBalanceWithoutCredentials(t *testing.T) {
	u := newUpbit(nil)
	result, err := u.Balance(context.Background())
	if err != nil {
		t.Fatalf("Balance must report in-band, got error: %v", err)
	}
	if result.Error == "" {
		t.Error("expected in-band error for missing credentials")
	}
}

func TestBinanceKlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Errorf("unexpected symbol %q", got)
		}
		// Binance order: oldest first; prices quoted, times bare.
		w.Write([]byte(`[
			[1704067200000,"42000.1","42100.0","41900.5","42050.2","12.5",1704067259999],
			[1704067260000,"42050.2","42200.0","42000.0","42150.0","8.25",1704067319999]
		]`))
	}))
	defer srv.Close()

	b := newBinance(nil)
	b.rc = testClient(srv)

	candles, err := b.Candles(context.Background(), "BTC", "1m", 0)
	if err != nil {
		t.Fatalf("Candles returned error: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	if candles[0].Timestamp != 1704067200000 {
		t.Errorf("unexpected first timestamp %d", candles[0].Timestamp)
	}
	if !candles[1].Close.Equal(decimal.RequireFromString("42150.0")) {
		t.Errorf("unexpected close %s", candles[1].Close)
	}
}

func TestBybitKlinesDescendingFlipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("interval"); got != "60" {
			t.Errorf("expected native interval 60, got %q", got)
		}
		w.Write([]byte(`{"retCode":0,"retMsg":"OK","time":1704070000000,"result":{"list":[
			["1704070800000","70.5","71.0","70.0","70.8","100","7050"],
			["1704067200000","70.0","70.6","69.5","70.5","120","8400"]
		]}}`))
	}))
	defer srv.Close()

	b := newBybit(nil)
	b.rc = testClient(srv)

	candles, err := b.Candles(context.Background(), "XRP", "1h", 0)
	if err != nil {
		t.Fatalf("Candles returned error: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	if candles[0].Timestamp != 1704067200000 {
		t.Errorf("expected oldest candle first, got %d", candles[0].Timestamp)
	}
}

func TestBybitAuthErrorMapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"retCode":10003,"retMsg":"API key is invalid.","result":{}}`))
	}))
	defer srv.Close()

	b := newBybit(nil)
	b.rc = testClient(srv)

	if _, err := b.Ticker(context.Background(), "BTC"); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("expected ErrAuthFailed, got %v", err)
	}
}

func TestBithumbStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"5600","message":"Invalid Parameter"}`))
	}))
	defer srv.Close()

	b := newBithumb(nil)
	b.rc = testClient(srv)

	if _, err := b.Ticker(context.Background(), "NOPE"); !errors.Is(err, ErrSymbolNotFound) {
		t.Errorf("expected ErrSymbolNotFound, got %v", err)
	}
}

func TestBithumbCandlesTrimmedByTo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"0000","data":[
			[1704067200000,"55000000","55100000","55200000","54900000","3.5"],
			[1704067260000,"55100000","55050000","55300000","55000000","2.0"]
		]}`))
	}))
	defer srv.Close()

	b := newBithumb(nil)
	b.rc = testClient(srv)

	candles, err := b.Candles(context.Background(), "BTC", "1m", 1704067200000)
	if err != nil {
		t.Fatalf("Candles returned error: %v", err)
	}
	if len(candles) != 1 {
		t.Fatalf("expected trimming to 1 candle, got %d", len(candles))
	}
	// Bithumb row order is [ts, open, close, high, low, volume].
	if !candles[0].High.Equal(decimal.NewFromInt(55200000)) {
		t.Errorf("unexpected high %s", candles[0].High)
	}
	if !candles[0].Close.Equal(decimal.NewFromInt(55100000)) {
		t.Errorf("unexpected close %s", candles[0].Close)
	}
}

func TestOKXCandles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("instId"); got != "ETH-USDT-SWAP" {
			t.Errorf("unexpected instId %q", got)
		}
		if got := r.URL.Query().Get("bar"); got != "1H" {
			t.Errorf("expected native bar 1H, got %q", got)
		}
		w.Write([]byte(`{"code":"0","msg":"","data":[
			["1704070800000","2250.5","2260.0","2240.0","2255.1","1500","3375000"],
			["1704067200000","2240.0","2252.0","2235.5","2250.5","1800","4050000"]
		]}`))
	}))
	defer srv.Close()

	o := newOKX(nil)
	o.rc = testClient(srv)

	candles, err := o.Candles(context.Background(), "ETH", "1h", 0)
	if err != nil {
		t.Fatalf("Candles returned error: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	if candles[0].Timestamp != 1704067200000 {
		t.Errorf("expected oldest candle first, got %d", candles[0].Timestamp)
	}
}

func TestRestClientStatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		expected error
	}{
		{"server error", http.StatusInternalServerError, ErrUpstreamUnavailable},
		{"rate limited", http.StatusTooManyRequests, ErrUpstreamUnavailable},
		{"unauthorized", http.StatusUnauthorized, ErrAuthFailed},
		{"forbidden", http.StatusForbidden, ErrAuthFailed},
		{"not found", http.StatusNotFound, ErrSymbolNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			rc := testClient(srv)
			err := rc.getJSON(context.Background(), "/anything", nil, nil, nil)
			if !errors.Is(err, tt.expected) {
				t.Errorf("status %d mapped to %v, want %v", tt.status, err, tt.expected)
			}
		})
	}
}

func TestRestClientConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse everything

	rc := newRESTClient(srv.URL, 1000, 1000)
	err := rc.getJSON(context.Background(), "/v1/ticker", nil, nil, nil)
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestSpotAdaptersRejectPositionInfo(t *testing.T) {
	for _, a := range []Adapter{newUpbit(nil), newBithumb(nil)} {
		if _, err := a.PositionInfo(context.Background(), "BTC"); !errors.Is(err, ErrNotSupported) {
			t.Errorf("%s: expected ErrNotSupported, got %v", a.Name(), err)
		}
	}
}
