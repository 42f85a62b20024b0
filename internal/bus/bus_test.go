package bus

import (
	"fmt"
	"testing"
)

func TestPublishDeliversInOrder(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe()
	defer cancel()

	for i := 0; i < 10; i++ {
		b.Publish(Event{Type: EventLog, Payload: i})
	}
	for i := 0; i < 10; i++ {
		got := <-ch
		if got.Payload != i {
			t.Fatalf("event %d: payload = %v", i, got.Payload)
		}
	}
}

func TestPublishFansOut(t *testing.T) {
	b := New()
	ch1, cancel1 := b.Subscribe()
	defer cancel1()
	ch2, cancel2 := b.Subscribe()
	defer cancel2()

	b.Publish(Event{Type: EventStatusUpdate})

	if got := <-ch1; got.Type != EventStatusUpdate {
		t.Errorf("sub1 got %v", got.Type)
	}
	if got := <-ch2; got.Type != EventStatusUpdate {
		t.Errorf("sub2 got %v", got.Type)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	b := New()
	_, cancel := b.Subscribe()

	cancel()
	cancel() // second call must not panic or double-close

	if got := b.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount = %d, want 0", got)
	}
}

func TestPublishAfterCancelDoesNotDeliver(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe()
	cancel()

	b.Publish(Event{Type: EventLog})

	// The channel is closed on cancel; any receive yields the zero value.
	if ev, open := <-ch; open {
		t.Errorf("received %v on canceled subscription", ev)
	}
}

func TestPublishNeverBlocksAndCountsDrops(t *testing.T) {
	b := New()
	_, cancel := b.Subscribe()
	defer cancel()

	// Nothing is reading: overflow past the buffer must drop, not block.
	total := subscriberBuffer + 50
	for i := 0; i < total; i++ {
		b.Publish(Event{Type: EventLog, Payload: fmt.Sprintf("m%d", i)})
	}

	if got := b.Dropped(); got != 50 {
		t.Errorf("Dropped = %d, want 50", got)
	}
}
