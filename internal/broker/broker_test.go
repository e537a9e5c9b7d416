package broker

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func newTestSubscription() *redisSubscription {
	return &redisSubscription{
		out:  make(chan Message, 64),
		done: make(chan struct{}),
	}
}

func TestSubscriptionPumpForwards(t *testing.T) {
	sub := newTestSubscription()
	in := make(chan *redis.Message, 2)
	in <- &redis.Message{Channel: "premium:ticks", Payload: `{"symbol":"BTC"}`}
	in <- &redis.Message{Channel: "premium:ticks", Payload: `{"symbol":"ETH"}`}
	close(in)

	go sub.pump(in)

	first := <-sub.Messages()
	if first.Channel != "premium:ticks" || string(first.Payload) != `{"symbol":"BTC"}` {
		t.Errorf("unexpected first message: %+v", first)
	}
	<-sub.Messages()

	// Input exhausted: out must close so consumers see the end.
	select {
	case _, ok := <-sub.Messages():
		if ok {
			t.Error("expected out to be closed after input drained")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("out never closed after input drained")
	}
}

func TestSubscriptionPumpExitsWithBlockedConsumer(t *testing.T) {
	sub := newTestSubscription()

	// More input than the out buffer holds, and no consumer draining it:
	// the pump ends up blocked on a send.
	in := make(chan *redis.Message, 65)
	for i := 0; i < 65; i++ {
		in <- &redis.Message{Channel: "premium:ticks", Payload: "{}"}
	}
	close(in)

	exited := make(chan struct{})
	go func() {
		sub.pump(in)
		close(exited)
	}()

	// Stopping the subscription must release the pump even mid-send.
	// Called twice: teardown can race the disconnect signal.
	sub.stop()
	sub.stop()

	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("pump goroutine still blocked after the subscription was stopped")
	}
}
