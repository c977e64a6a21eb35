package broadcast

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/wfunc/blackjackserver/logger"
)

func TestMain(m *testing.M) {
	logger.Init()
	m.Run()
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := NewRoomBroadcaster(8)
	sub1 := b.Subscribe("room1")
	sub2 := b.Subscribe("room1")
	defer b.Unsubscribe(sub1)
	defer b.Unsubscribe(sub2)

	b.Publish("room1", Event{Type: EventChat, Payload: ChatPayload{UserID: 1, Message: "hi"}})

	for _, sub := range []*Subscriber{sub1, sub2} {
		select {
		case event := <-sub.Events():
			if event.Type != EventChat {
				t.Errorf("Expected chat event, got %s", event.Type)
			}
		case <-time.After(time.Second):
			t.Fatal("Subscriber did not receive the event")
		}
	}
}

func TestPublishIsRoomScoped(t *testing.T) {
	b := NewRoomBroadcaster(8)
	sub := b.Subscribe("room2")
	defer b.Unsubscribe(sub)

	b.Publish("room1", Event{Type: EventChat})

	select {
	case event := <-sub.Events():
		t.Errorf("Subscriber of room2 received room1's %s event", event.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConcurrentPublishesAllDelivered(t *testing.T) {
	b := NewRoomBroadcaster(256)
	sub := b.Subscribe("room1")
	defer b.Unsubscribe(sub)

	const total = 100
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < total/4; i++ {
				b.Publish("room1", Event{Type: EventChat, Payload: ChatPayload{UserID: int64(g)}})
			}
		}(g)
	}
	wg.Wait()

	received := 0
	for received < total {
		select {
		case <-sub.Events():
			received++
		case <-time.After(time.Second):
			t.Fatalf("Received %d of %d events", received, total)
		}
	}
}

func TestSingleSubscriberSeesSequentialPublishesInOrder(t *testing.T) {
	b := NewRoomBroadcaster(64)
	sub := b.Subscribe("room1")
	defer b.Unsubscribe(sub)

	for i := 0; i < 20; i++ {
		b.Publish("room1", Event{Type: EventChat, Payload: ChatPayload{Message: fmt.Sprintf("%d", i)}})
	}

	for i := 0; i < 20; i++ {
		event := <-sub.Events()
		got := event.Payload.(ChatPayload).Message
		if got != fmt.Sprintf("%d", i) {
			t.Fatalf("Event %d arrived out of order: %s", i, got)
		}
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewRoomBroadcaster(2)
	dropped := 0
	b.OnDrop = func(roomID string) { dropped++ }

	slow := b.Subscribe("room1")
	defer b.Unsubscribe(slow)

	done := make(chan struct{})
	go func() {
		// Publishes must complete even though nobody is reading.
		for i := 0; i < 10; i++ {
			b.Publish("room1", Event{Type: EventChat})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	if dropped != 8 {
		t.Errorf("Expected 8 drops for buffer 2, got %d", dropped)
	}
}

func TestUnsubscribeClosesChannelAndIsIdempotent(t *testing.T) {
	b := NewRoomBroadcaster(8)
	sub := b.Subscribe("room1")

	b.Unsubscribe(sub)
	b.Unsubscribe(sub) // must not panic

	if _, open := <-sub.Events(); open {
		t.Error("Channel should be closed after Unsubscribe")
	}
	if b.SubscriberCount("room1") != 0 {
		t.Errorf("Expected 0 subscribers, got %d", b.SubscriberCount("room1"))
	}
}

func TestCloseRoomDropsAllSubscribers(t *testing.T) {
	b := NewRoomBroadcaster(8)
	sub1 := b.Subscribe("room1")
	sub2 := b.Subscribe("room1")

	b.CloseRoom("room1")

	for _, sub := range []*Subscriber{sub1, sub2} {
		if _, open := <-sub.Events(); open {
			t.Error("Channel should be closed after CloseRoom")
		}
	}
	// Publishing to a closed room is a no-op.
	b.Publish("room1", Event{Type: EventChat})
}
