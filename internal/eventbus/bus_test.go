package eventbus

import (
	"testing"
	"time"
)

func TestPublishFanout(t *testing.T) {
	t.Parallel()
	bus := New()
	a, unsubA := bus.Subscribe(4)
	b, unsubB := bus.Subscribe(4)
	defer unsubA()
	defer unsubB()

	bus.Publish(Event{Type: TypeRefreshRequested})

	for _, ch := range []<-chan Event{a, b} {
		select {
		case ev := <-ch:
			if ev.Type != TypeRefreshRequested {
				t.Fatalf("Type = %s", ev.Type)
			}
			if ev.Time.IsZero() {
				t.Fatal("Publish must stamp Time")
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	t.Parallel()
	bus := New()
	ch, unsub := bus.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(Event{Type: TypeJobStateChanged})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	// The buffer kept the newest it could; at least one event arrived.
	select {
	case <-ch:
	default:
		t.Fatal("expected at least one buffered event")
	}
}

func TestUnsubscribeStopsDeliveryAndIsIdempotent(t *testing.T) {
	t.Parallel()
	bus := New()
	ch, unsub := bus.Subscribe(4)

	unsub()
	unsub() // second call is a no-op

	// Publishing after the close must not panic the bus.
	bus.Publish(Event{Type: TypeJobRunObserved})

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after unsubscribe")
	}
}

func TestSubscribeDefaultBuffer(t *testing.T) {
	t.Parallel()
	bus := New()
	ch, unsub := bus.Subscribe(0)
	defer unsub()

	// A zero buffer request still yields a buffered channel, so a single
	// publish with no reader waiting is not dropped.
	bus.Publish(Event{Type: TypeRefreshRequested})
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("event dropped despite default buffering")
	}
}
