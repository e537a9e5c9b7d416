package mock

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

// capturePublisher records published payloads
type capturePublisher struct {
	mu       sync.Mutex
	channels []string
	payloads [][]byte
}

func (c *capturePublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels = append(c.channels, channel)
	c.payloads = append(c.payloads, payload)
	return nil
}

func (c *capturePublisher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

func (c *capturePublisher) first() (string, []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channels[0], c.payloads[0]
}

func TestPremiumPublisherMessageShape(t *testing.T) {
	pub := &capturePublisher{}
	p := NewPremiumPublisher(pub, nil)

	payload := p.buildMessage()

	var msg struct {
		Results []struct {
			Symbol           string `json:"symbol"`
			DomesticExchange string `json:"domesticExchange"`
			ForeignExchange  string `json:"foreignExchange"`
			ExchangeRates    []struct {
				Exchange string `json:"exchange"`
				Rate     string `json:"rate"`
			} `json:"exchangeRates"`
		} `json:"results"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("message is not valid JSON: %v", err)
	}

	if len(msg.Results) != 3 {
		t.Fatalf("expected 3 symbol records, got %d", len(msg.Results))
	}
	for _, rec := range msg.Results {
		if rec.Symbol == "" || rec.DomesticExchange == "" || rec.ForeignExchange == "" {
			t.Errorf("incomplete record: %+v", rec)
		}
		if len(rec.ExchangeRates) == 0 {
			t.Errorf("record %s has no rates; the relay needs at least one", rec.Symbol)
		}
	}
}

func TestPremiumPublisherPublishes(t *testing.T) {
	pub := &capturePublisher{}
	cfg := DefaultGeneratorConfig()
	cfg.Interval = 10 * time.Millisecond
	cfg.Channel = "premium:ticks:test"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewPremiumPublisherWithConfig(pub, cfg, nil)
	p.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for pub.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if pub.count() == 0 {
		t.Fatal("publisher never published")
	}

	channel, payload := pub.first()
	if channel != "premium:ticks:test" {
		t.Errorf("published to %q, want premium:ticks:test", channel)
	}
	if len(payload) == 0 {
		t.Error("empty payload")
	}
}

func TestPremiumPublisherDriftStaysPositive(t *testing.T) {
	p := NewPremiumPublisher(&capturePublisher{}, nil)
	for i := 0; i < 1000; i++ {
		p.buildMessage()
	}
	for symbol, premium := range p.premiums {
		if premium <= 0 {
			t.Errorf("premium for %s drifted non-positive: %f", symbol, premium)
		}
	}
}
