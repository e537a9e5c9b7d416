package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/Juhan1212/karbit-sub002/internal/exchange"
	"github.com/Juhan1212/karbit-sub002/internal/model"
)

// referenceSymbol is the stablecoin pair fetched alongside every
// aggregation to give callers a KRW/USD basis (KRW-USDT on Upbit).
const referenceSymbol = "USDT"

// AdapterFactory builds an exchange adapter for an identifier. Matches
// exchange.NewAdapter; injectable so tests can substitute fakes.
type AdapterFactory func(id string, creds *model.Credentials) (exchange.Adapter, error)

// KlineService aggregates candle series across exchanges and
// synthesizes the cross-market premium series.
type KlineService struct {
	factory AdapterFactory
	logger  *slog.Logger
}

// NewKlineService creates a new kline aggregation service.
func NewKlineService(factory AdapterFactory, logger *slog.Logger) *KlineService {
	if logger == nil {
		logger = slog.Default()
	}
	return &KlineService{
		factory: factory,
		logger:  logger,
	}
}

// fetchResult is one settled fan-out slot. Each goroutine writes only
// its own slot, so no locking is needed.
type fetchResult struct {
	exchange string
	domestic bool
	candles  []model.Candle
	err      error
}

// AggregateKlines fetches candles concurrently from every requested
// exchange plus the reference pair, merges each market group into one
// consolidated view, and synthesizes the premium (domestic/foreign
// ratio) series. A single exchange's failure never aborts the call; its
// contribution is logged and dropped.
func (s *KlineService) AggregateKlines(ctx context.Context, exchanges []string, symbol, interval string, to int64) (*model.KlineResponse, error) {
	slots := make([]fetchResult, 0, len(exchanges))

	// Resolve adapters up front. Unknown identifiers on this path mean
	// "exchange not requested": skip and continue.
	type job struct {
		adapter  exchange.Adapter
		domestic bool
	}
	var jobs []job
	for _, id := range exchanges {
		adapter, err := s.factory(id, nil)
		if err != nil {
			if errors.Is(err, exchange.ErrUnsupportedExchange) {
				s.logger.Warn("skipping unknown exchange", slog.String("exchange", id))
				continue
			}
			return nil, fmt.Errorf("create adapter for %s: %w", id, err)
		}
		jobs = append(jobs, job{adapter: adapter, domestic: exchange.IsDomestic(adapter.Name())})
		slots = append(slots, fetchResult{exchange: adapter.Name(), domestic: exchange.IsDomestic(adapter.Name())})
	}

	// Fan out one fetch per exchange plus the reference fetch, then
	// join-all: wait for every fetch to settle, success or failure.
	var wg sync.WaitGroup
	for i := range jobs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			candles, err := jobs[i].adapter.Candles(ctx, symbol, interval, to)
			slots[i].candles = candles
			slots[i].err = err
		}(i)
	}

	var reference fetchResult
	wg.Add(1)
	go func() {
		defer wg.Done()
		reference = s.fetchReference(ctx, interval, to)
	}()
	wg.Wait()

	var domesticPool, foreignPool []model.Candle
	for _, r := range slots {
		if r.err != nil {
			s.logger.Error("exchange fetch failed",
				slog.String("exchange", r.exchange),
				slog.String("symbol", symbol),
				slog.String("error", r.err.Error()),
			)
			continue
		}
		if r.domestic {
			domesticPool = append(domesticPool, r.candles...)
		} else {
			foreignPool = append(foreignPool, r.candles...)
		}
	}
	if reference.err != nil {
		s.logger.Error("reference fetch failed",
			slog.String("symbol", referenceSymbol),
			slog.String("error", reference.err.Error()),
		)
	}

	domestic := mergePool(domesticPool)
	foreign := mergePool(foreignPool)
	premium := synthesizePremium(domestic, foreign)

	return shapeResponse(premium, domestic, foreign, reference.candles), nil
}

// fetchReference pulls the stablecoin reference series from Upbit.
func (s *KlineService) fetchReference(ctx context.Context, interval string, to int64) fetchResult {
	r := fetchResult{exchange: exchange.ExchangeUpbit, domestic: true}
	adapter, err := s.factory(exchange.ExchangeUpbit, nil)
	if err != nil {
		r.err = err
		return r
	}
	r.candles, r.err = adapter.Candles(ctx, referenceSymbol, interval, to)
	return r
}

// mergePool consolidates a pool of candles from one market group into a
// per-timestamp map. Duplicate timestamps from different exchanges are
// merged: open and close are averaged, high is the max, low is the min,
// volume is summed. Commutative in input order.
func mergePool(pool []model.Candle) map[int64]model.Candle {
	type acc struct {
		openSum  decimal.Decimal
		closeSum decimal.Decimal
		high     decimal.Decimal
		low      decimal.Decimal
		volume   decimal.Decimal
		count    int64
	}

	accs := make(map[int64]*acc, len(pool))
	for _, c := range pool {
		a, ok := accs[c.Timestamp]
		if !ok {
			accs[c.Timestamp] = &acc{
				openSum:  c.Open,
				closeSum: c.Close,
				high:     c.High,
				low:      c.Low,
				volume:   c.Volume,
				count:    1,
			}
			continue
		}
		a.openSum = a.openSum.Add(c.Open)
		a.closeSum = a.closeSum.Add(c.Close)
		if c.High.GreaterThan(a.high) {
			a.high = c.High
		}
		if c.Low.LessThan(a.low) {
			a.low = c.Low
		}
		a.volume = a.volume.Add(c.Volume)
		a.count++
	}

	merged := make(map[int64]model.Candle, len(accs))
	for ts, a := range accs {
		n := decimal.NewFromInt(a.count)
		merged[ts] = model.Candle{
			Timestamp: ts,
			Open:      a.openSum.Div(n),
			High:      a.high,
			Low:       a.low,
			Close:     a.closeSum.Div(n),
			Volume:    a.volume,
		}
	}
	return merged
}

// synthesizePremium emits one ratio candle per timestamp present in
// both market groups; one-sided timestamps are dropped, never
// interpolated. Entries with a zero foreign component are skipped so no
// garbage ratio is ever produced.
func synthesizePremium(domestic, foreign map[int64]model.Candle) []model.Candle {
	if len(domestic) == 0 || len(foreign) == 0 {
		return nil
	}

	premium := make([]model.Candle, 0, len(domestic))
	for ts, d := range domestic {
		f, ok := foreign[ts]
		if !ok {
			continue
		}
		if f.Open.IsZero() || f.High.IsZero() || f.Low.IsZero() || f.Close.IsZero() {
			continue
		}
		premium = append(premium, model.Candle{
			Timestamp: ts,
			Open:      d.Open.Div(f.Open),
			High:      d.High.Div(f.High),
			Low:       d.Low.Div(f.Low),
			Close:     d.Close.Div(f.Close),
			Volume:    d.Volume.Add(f.Volume),
		})
	}

	sort.Slice(premium, func(i, j int) bool {
		return premium[i].Timestamp < premium[j].Timestamp
	})
	return premium
}

// Tickers fetches the current price for a symbol from each requested
// exchange concurrently. Failed exchanges are logged and omitted from
// the result.
func (s *KlineService) Tickers(ctx context.Context, exchanges []string, symbol string) (map[string]model.TickerSnapshot, error) {
	type tickerResult struct {
		exchange string
		snapshot model.TickerSnapshot
		err      error
	}

	results := make([]tickerResult, 0, len(exchanges))
	var adapters []exchange.Adapter
	for _, id := range exchanges {
		adapter, err := s.factory(id, nil)
		if err != nil {
			if errors.Is(err, exchange.ErrUnsupportedExchange) {
				s.logger.Warn("skipping unknown exchange", slog.String("exchange", id))
				continue
			}
			return nil, fmt.Errorf("create adapter for %s: %w", id, err)
		}
		adapters = append(adapters, adapter)
		results = append(results, tickerResult{exchange: adapter.Name()})
	}

	var wg sync.WaitGroup
	for i := range adapters {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i].snapshot, results[i].err = adapters[i].Ticker(ctx, symbol)
		}(i)
	}
	wg.Wait()

	out := make(map[string]model.TickerSnapshot, len(results))
	for _, r := range results {
		if r.err != nil {
			s.logger.Error("ticker fetch failed",
				slog.String("exchange", r.exchange),
				slog.String("symbol", symbol),
				slog.String("error", r.err.Error()),
			)
			continue
		}
		out[r.exchange] = r.snapshot
	}
	return out, nil
}
