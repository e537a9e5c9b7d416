package mock

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Juhan1212/karbit-sub002/internal/model"
)

// Publisher is the broker publish capability the generator needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// GeneratorConfig holds configuration for the premium tick generator
type GeneratorConfig struct {
	Channel      string
	Symbols      []string
	BasePremiums map[string]float64
	Interval     time.Duration
	Volatility   float64
}

// DefaultGeneratorConfig returns a sensible default configuration
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Channel: "premium:ticks",
		Symbols: []string{"BTC", "ETH", "XRP"},
		BasePremiums: map[string]float64{
			"BTC": 1428.5,
			"ETH": 1431.0,
			"XRP": 1419.8,
		},
		Interval:   2 * time.Second,
		Volatility: 0.002, // 0.2% drift per tick
	}
}

// PremiumPublisher publishes synthetic premium tick messages to the
// broker so the stream endpoint has live data during local
// development.
type PremiumPublisher struct {
	publisher Publisher
	config    GeneratorConfig
	premiums  map[string]float64
	rng       *rand.Rand
	logger    *slog.Logger
}

// NewPremiumPublisher creates a generator with default config.
func NewPremiumPublisher(publisher Publisher, logger *slog.Logger) *PremiumPublisher {
	return NewPremiumPublisherWithConfig(publisher, DefaultGeneratorConfig(), logger)
}

// NewPremiumPublisherWithConfig creates a generator with custom config.
func NewPremiumPublisherWithConfig(publisher Publisher, config GeneratorConfig, logger *slog.Logger) *PremiumPublisher {
	premiums := make(map[string]float64)
	for k, v := range config.BasePremiums {
		premiums[k] = v
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PremiumPublisher{
		publisher: publisher,
		config:    config,
		premiums:  premiums,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:    logger,
	}
}

// Start begins publishing ticks until the context is cancelled.
func (p *PremiumPublisher) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(p.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				payload := p.buildMessage()
				if err := p.publisher.Publish(ctx, p.config.Channel, payload); err != nil {
					p.logger.Error("publish mock premium tick", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// buildMessage drifts each symbol's premium and assembles one broker
// message in the results-array shape the relay flattens.
func (p *PremiumPublisher) buildMessage() []byte {
	type record struct {
		Symbol           string               `json:"symbol"`
		DomesticExchange string               `json:"domesticExchange"`
		ForeignExchange  string               `json:"foreignExchange"`
		ExchangeRates    []model.ExchangeRate `json:"exchangeRates"`
	}

	results := make([]record, 0, len(p.config.Symbols))
	for _, symbol := range p.config.Symbols {
		premium := p.premiums[symbol]
		premium += p.rng.NormFloat64() * p.config.Volatility * premium
		if premium <= 0 {
			premium = p.config.BasePremiums[symbol]
		}
		p.premiums[symbol] = premium

		results = append(results, record{
			Symbol:           symbol,
			DomesticExchange: "upbit",
			ForeignExchange:  "binance",
			ExchangeRates: []model.ExchangeRate{
				{Exchange: "binance", Rate: decimal.NewFromFloat(premium).Round(2)},
				{Exchange: "bybit", Rate: decimal.NewFromFloat(premium * 1.0005).Round(2)},
			},
		})
	}

	payload, _ := json.Marshal(map[string]any{"results": results})
	return payload
}
