// Package stream relays pre-computed premium ticks from the broker to
// a single server-sent-event connection, with heartbeats and idempotent
// teardown.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/Juhan1212/karbit-sub002/internal/broker"
	"github.com/Juhan1212/karbit-sub002/internal/model"
)

// Broker is the subset of the broker client the relay consumes.
type Broker interface {
	Subscribe(ctx context.Context, channel string) (broker.Subscription, error)
	SubscriberCount(ctx context.Context, channel string) (int64, error)
}

// connState is the tagged connection lifecycle state. Transitions only
// move forward; once closing, no further frame is written.
type connState int

const (
	stateInit connState = iota
	stateSubscribing
	stateStreaming
	stateClosing
	stateClosed
)

// defaultHeartbeat keeps idle connections alive through proxies.
const defaultHeartbeat = 20 * time.Second

// Service builds one relay per incoming stream connection.
type Service struct {
	broker         Broker
	defaultChannel string
	heartbeat      time.Duration
	logger         *slog.Logger
}

// NewService creates the premium stream service.
func NewService(b Broker, defaultChannel string, heartbeat time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	// A zero or negative heartbeat would panic the ticker.
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &Service{
		broker:         b,
		defaultChannel: defaultChannel,
		heartbeat:      heartbeat,
		logger:         logger,
	}
}

// Stream relays broker messages on the given channel (or the default
// channel when empty) to one SSE connection. Blocks until the client
// disconnects or ctx is cancelled; the stream never ends on its own.
func (s *Service) Stream(ctx context.Context, w http.ResponseWriter, channel string) {
	if channel == "" {
		channel = s.defaultChannel
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("response writer does not support flushing")
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	r := &relay{
		id:      uuid.New().String(),
		w:       w,
		flusher: flusher,
		state:   stateInit,
		logger:  s.logger,
	}
	r.run(ctx, s.broker, channel, s.heartbeat)
}

// relay owns one connection's lifecycle: one subscription, one
// heartbeat ticker, one state flag. Nothing is shared across
// connections.
type relay struct {
	id      string
	w       http.ResponseWriter
	flusher http.Flusher

	mu    sync.Mutex
	state connState

	sub    broker.Subscription
	ticker *time.Ticker
	logger *slog.Logger
}

func (r *relay) run(ctx context.Context, b Broker, channel string, heartbeat time.Duration) {
	defer r.close()

	// Initial comment frame forces headers out and opens the stream on
	// the client side.
	if err := r.writeComment(fmt.Sprintf("open %d", time.Now().UnixMilli())); err != nil {
		return
	}

	r.setState(stateSubscribing)
	var messages <-chan broker.Message
	var sub broker.Subscription
	err := errors.New("broker unavailable")
	if b != nil {
		sub, err = b.Subscribe(ctx, channel)
	}
	if err != nil {
		// Degraded but alive: the client keeps receiving heartbeats.
		r.logger.Error("broker subscribe failed",
			slog.String("conn_id", r.id),
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		if werr := r.writeEvent("error", errorPayload("subscribe failed")); werr != nil {
			return
		}
	} else {
		r.sub = sub
		messages = sub.Messages()

		count, cerr := b.SubscriberCount(ctx, channel)
		if cerr != nil {
			count = 0
		}
		ack, _ := json.Marshal(map[string]any{"channel": channel, "subscribers": count})
		if werr := r.writeEvent("subscribed", ack); werr != nil {
			return
		}
		r.setState(stateStreaming)
	}

	r.ticker = time.NewTicker(heartbeat)

	for {
		select {
		case <-ctx.Done():
			// Client disconnect or explicit cancel: authoritative.
			return

		case msg, ok := <-messages:
			if !ok {
				// Broker subscription ended underneath us; keep the
				// connection alive on heartbeats alone.
				messages = nil
				if err := r.writeEvent("error", errorPayload("broker subscription closed")); err != nil {
					return
				}
				continue
			}
			for _, frame := range reshapePayload(msg.Payload) {
				if err := r.writeEvent("tick", frame); err != nil {
					return
				}
			}

		case <-r.ticker.C:
			if err := r.writeComment(fmt.Sprintf("hb %d", time.Now().UnixMilli())); err != nil {
				return
			}
		}
	}
}

// close tears the connection down: heartbeat ticker cancelled, broker
// subscription closed. Idempotent; the disconnect signal and an
// explicit cancel can both reach it for the same connection.
func (r *relay) close() {
	r.mu.Lock()
	if r.state == stateClosing || r.state == stateClosed {
		r.mu.Unlock()
		return
	}
	r.state = stateClosing
	r.mu.Unlock()

	if r.ticker != nil {
		r.ticker.Stop()
	}
	if r.sub != nil {
		if err := r.sub.Close(); err != nil {
			r.logger.Error("close subscription", slog.String("conn_id", r.id), slog.String("error", err.Error()))
		}
	}

	r.mu.Lock()
	r.state = stateClosed
	r.mu.Unlock()
}

func (r *relay) setState(s connState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == stateClosing || r.state == stateClosed {
		return
	}
	r.state = s
}

// closingOrClosed reports whether writes are suppressed.
func (r *relay) closingOrClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == stateClosing || r.state == stateClosed
}

// writeEvent writes one complete event frame. Frames are written by a
// single goroutine, so a frame is never interleaved or partial.
func (r *relay) writeEvent(name string, data []byte) error {
	if r.closingOrClosed() {
		return nil
	}
	if _, err := fmt.Fprintf(r.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return r.handleWriteError(err)
	}
	r.flusher.Flush()
	return nil
}

// writeComment writes a comment frame (open ping, heartbeat).
func (r *relay) writeComment(text string) error {
	if r.closingOrClosed() {
		return nil
	}
	if _, err := fmt.Fprintf(r.w, ": %s\n\n", text); err != nil {
		return r.handleWriteError(err)
	}
	r.flusher.Flush()
	return nil
}

// handleWriteError recognizes writes against an already-gone transport
// and folds them into the Closed state instead of re-raising.
func (r *relay) handleWriteError(err error) error {
	if isClosedTransport(err) {
		r.close()
		return err
	}
	r.logger.Error("stream write failed", slog.String("conn_id", r.id), slog.String("error", err.Error()))
	return err
}

func isClosedTransport(err error) bool {
	return errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, http.ErrHandlerTimeout)
}

func errorPayload(msg string) []byte {
	b, _ := json.Marshal(map[string]string{"message": msg})
	return b
}

// brokerRecord is one per-symbol record inside a broker message's
// results array.
type brokerRecord struct {
	Symbol           string               `json:"symbol"`
	DomesticExchange string               `json:"domesticExchange"`
	ForeignExchange  string               `json:"foreignExchange"`
	ExchangeRates    []model.ExchangeRate `json:"exchangeRates"`
}

// reshapePayload flattens a broker message into tick frame payloads.
// Messages carrying a results array yield one frame per record, with
// the premium taken from the record's first rate entry (nil when the
// rate list is empty); anything else is forwarded unchanged.
func reshapePayload(payload []byte) [][]byte {
	var envelope struct {
		Results []brokerRecord `json:"results"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil || envelope.Results == nil {
		return [][]byte{payload}
	}

	frames := make([][]byte, 0, len(envelope.Results))
	for _, rec := range envelope.Results {
		tick := model.PremiumTick{
			Symbol:           rec.Symbol,
			DomesticExchange: rec.DomesticExchange,
			ForeignExchange:  rec.ForeignExchange,
			PerExchangeRates: rec.ExchangeRates,
		}
		if len(rec.ExchangeRates) > 0 {
			rate := rec.ExchangeRates[0].Rate
			tick.Premium = &rate
		}
		b, err := json.Marshal(tick)
		if err != nil {
			continue
		}
		frames = append(frames, b)
	}
	return frames
}
