// Package broker wraps the Redis pub/sub transport carrying
// pre-computed premium ticks. One Client is created per process in
// main, passed explicitly to the components that need it, and torn down
// only at process shutdown.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/Juhan1212/karbit-sub002/internal/config"
)

// Message is one broker delivery.
type Message struct {
	Channel string
	Payload []byte
}

// Subscription is a live channel subscription. Close is idempotent.
type Subscription interface {
	Messages() <-chan Message
	Close() error
}

// Client is the process-wide broker handle.
type Client struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Client{rdb: rdb, logger: logger}, nil
}

// Subscribe opens a pub/sub subscription on a channel.
func (c *Client) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	pubsub := c.rdb.Subscribe(ctx, channel)

	// Receive forces the SUBSCRIBE round trip so failures surface here
	// rather than as a silently empty message channel.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		out:    make(chan Message, 64),
		done:   make(chan struct{}),
	}
	go sub.pump(pubsub.Channel())
	return sub, nil
}

// SubscriberCount returns the number of subscribers on a channel.
func (c *Client) SubscriberCount(ctx context.Context, channel string) (int64, error) {
	counts, err := c.rdb.PubSubNumSub(ctx, channel).Result()
	if err != nil {
		return 0, fmt.Errorf("pubsub numsub %s: %w", channel, err)
	}
	return counts[channel], nil
}

// Publish sends a payload to a channel.
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Ping checks broker reachability.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close shuts the broker connection down. Process-shutdown only.
func (c *Client) Close() error {
	return c.rdb.Close()
}

type redisSubscription struct {
	pubsub *redis.PubSub
	out    chan Message
	done   chan struct{}
	once   sync.Once
}

// pump forwards broker deliveries into out. A consumer that stopped
// reading leaves the buffer full, so every send also watches done;
// frames pending at teardown are dropped, not delivered late.
func (s *redisSubscription) pump(in <-chan *redis.Message) {
	defer close(s.out)
	for msg := range in {
		select {
		case s.out <- Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Messages() <-chan Message {
	return s.out
}

func (s *redisSubscription) Close() error {
	s.stop()
	// go-redis PubSub.Close is safe to call more than once; it also
	// closes the channel feeding pump.
	return s.pubsub.Close()
}

// stop releases the pump even when it is blocked on a send.
func (s *redisSubscription) stop() {
	s.once.Do(func() { close(s.done) })
}
