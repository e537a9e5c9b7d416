package stream

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Juhan1212/karbit-sub002/internal/broker"
)

// syncRecorder is a goroutine-safe ResponseWriter with flush support,
// so tests can read the body while the relay is still writing.
type syncRecorder struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	header http.Header
}

func newSyncRecorder() *syncRecorder {
	return &syncRecorder{header: make(http.Header)}
}

func (r *syncRecorder) Header() http.Header { return r.header }

func (r *syncRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Write(p)
}

func (r *syncRecorder) WriteHeader(statusCode int) {}

func (r *syncRecorder) Flush() {}

func (r *syncRecorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.String()
}

type fakeSub struct {
	ch chan broker.Message

	mu         sync.Mutex
	closeCalls int
}

func (s *fakeSub) Messages() <-chan broker.Message { return s.ch }

func (s *fakeSub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	if s.closeCalls == 1 {
		close(s.ch)
	}
	return nil
}

func (s *fakeSub) closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

type fakeBroker struct {
	sub          *fakeSub
	subscribeErr error
	subscribers  int64
}

func (b *fakeBroker) Subscribe(ctx context.Context, channel string) (broker.Subscription, error) {
	if b.subscribeErr != nil {
		return nil, b.subscribeErr
	}
	return b.sub, nil
}

func (b *fakeBroker) SubscriberCount(ctx context.Context, channel string) (int64, error) {
	return b.subscribers, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// waitFor polls the recorder until the body contains want or the
// deadline passes.
func waitFor(t *testing.T, rec *syncRecorder, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(rec.String(), want) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q in stream output:\n%s", want, rec.String())
}

func TestStreamSubscribeAndTick(t *testing.T) {
	sub := &fakeSub{ch: make(chan broker.Message, 8)}
	b := &fakeBroker{sub: sub, subscribers: 3}
	svc := NewService(b, "premium:ticks", time.Hour, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	rec := newSyncRecorder()

	done := make(chan struct{})
	go func() {
		svc.Stream(ctx, rec, "")
		close(done)
	}()

	waitFor(t, rec, "event: subscribed")
	assert.Contains(t, rec.String(), `"subscribers":3`)
	assert.Contains(t, rec.String(), `"channel":"premium:ticks"`)
	assert.Contains(t, rec.String(), ": open")

	sub.ch <- broker.Message{
		Channel: "premium:ticks",
		Payload: []byte(`{"results":[{"symbol":"BTC","domesticExchange":"upbit","foreignExchange":"binance","exchangeRates":[{"exchange":"binance","rate":1428.57},{"exchange":"bybit","rate":1430.1}]}]}`),
	}

	waitFor(t, rec, "event: tick")
	assert.Contains(t, rec.String(), `"symbol":"BTC"`)
	assert.Contains(t, rec.String(), `"premium":"1428.57"`)
	assert.Contains(t, rec.String(), `"domesticExchange":"upbit"`)

	cancel()
	<-done
	assert.Equal(t, 1, sub.closed(), "subscription must be closed on disconnect")
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
}

func TestStreamForwardsRawPayload(t *testing.T) {
	sub := &fakeSub{ch: make(chan broker.Message, 1)}
	b := &fakeBroker{sub: sub}
	svc := NewService(b, "premium:ticks", time.Hour, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	rec := newSyncRecorder()
	done := make(chan struct{})
	go func() {
		svc.Stream(ctx, rec, "custom:channel")
		close(done)
	}()

	waitFor(t, rec, "event: subscribed")
	assert.Contains(t, rec.String(), `"channel":"custom:channel"`)

	sub.ch <- broker.Message{Channel: "custom:channel", Payload: []byte(`{"hello":"world"}`)}
	waitFor(t, rec, `{"hello":"world"}`)

	cancel()
	<-done
}

func TestStreamSubscribeFailureKeepsHeartbeats(t *testing.T) {
	b := &fakeBroker{subscribeErr: errors.New("broker down")}
	svc := NewService(b, "premium:ticks", 20*time.Millisecond, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	rec := newSyncRecorder()
	done := make(chan struct{})
	go func() {
		svc.Stream(ctx, rec, "")
		close(done)
	}()

	// The connection survives the failure and degrades to heartbeats.
	waitFor(t, rec, "event: error")
	waitFor(t, rec, ": hb ")

	cancel()
	<-done
}

func TestStreamNilBrokerDegrades(t *testing.T) {
	svc := NewService(nil, "premium:ticks", 20*time.Millisecond, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	rec := newSyncRecorder()
	done := make(chan struct{})
	go func() {
		svc.Stream(ctx, rec, "")
		close(done)
	}()

	waitFor(t, rec, "event: error")
	waitFor(t, rec, ": hb ")

	cancel()
	<-done
}

func TestNewServiceClampsHeartbeat(t *testing.T) {
	for _, hb := range []time.Duration{0, -time.Second} {
		svc := NewService(nil, "premium:ticks", hb, quietLogger())
		assert.Equal(t, defaultHeartbeat, svc.heartbeat)
	}
	svc := NewService(nil, "premium:ticks", 5*time.Second, quietLogger())
	assert.Equal(t, 5*time.Second, svc.heartbeat)
}

func TestRelayCloseIdempotent(t *testing.T) {
	sub := &fakeSub{ch: make(chan broker.Message)}
	r := &relay{
		id:      "test",
		w:       newSyncRecorder(),
		flusher: newSyncRecorder(),
		state:   stateStreaming,
		sub:     sub,
		ticker:  time.NewTicker(time.Hour),
		logger:  quietLogger(),
	}

	// Concurrent abort signal and explicit cancel both reach close.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.close()
		}()
	}
	wg.Wait()
	r.close()

	assert.Equal(t, 1, sub.closed(), "underlying subscription closed exactly once")
	r.mu.Lock()
	assert.Equal(t, stateClosed, r.state)
	r.mu.Unlock()
}

func TestWriteSuppressedAfterClose(t *testing.T) {
	rec := newSyncRecorder()
	r := &relay{
		id:      "test",
		w:       rec,
		flusher: rec,
		state:   stateStreaming,
		ticker:  time.NewTicker(time.Hour),
		logger:  quietLogger(),
	}
	r.close()

	assert.NoError(t, r.writeEvent("tick", []byte(`{}`)))
	assert.NoError(t, r.writeComment("hb 123"))
	assert.Empty(t, rec.String(), "no frame may be written once closing")
}

func TestReshapePayloadEmptyRates(t *testing.T) {
	frames := reshapePayload([]byte(`{"results":[{"symbol":"XRP","domesticExchange":"bithumb","foreignExchange":"okx","exchangeRates":[]}]}`))
	assert.Len(t, frames, 1)
	assert.Contains(t, string(frames[0]), `"premium":null`)
}

func TestReshapePayloadMultipleRecords(t *testing.T) {
	frames := reshapePayload([]byte(`{"results":[{"symbol":"BTC","exchangeRates":[{"exchange":"binance","rate":1428.5}]},{"symbol":"ETH","exchangeRates":[{"exchange":"bybit","rate":1431.2}]}]}`))
	assert.Len(t, frames, 2)
	assert.Contains(t, string(frames[0]), `"symbol":"BTC"`)
	assert.Contains(t, string(frames[1]), `"symbol":"ETH"`)
}
