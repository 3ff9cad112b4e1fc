package notify

import (
	"testing"
)

func TestHubFanOut(t *testing.T) {
	hub := NewHub()

	chA, cancelA := hub.Subscribe()
	chB, cancelB := hub.Subscribe()
	defer cancelA()
	defer cancelB()

	hub.Publish(RemovedNotice(2))

	for _, ch := range []<-chan Event{chA, chB} {
		select {
		case ev := <-ch:
			if ev.Kind != KindNotice {
				t.Errorf("expected notice, got %q", ev.Kind)
			}
			if ev.Message != "2 add-ons removed because the main product was removed" {
				t.Errorf("unexpected message: %q", ev.Message)
			}
		default:
			t.Fatal("expected buffered event")
		}
	}
}

func TestHubCancelStopsDelivery(t *testing.T) {
	hub := NewHub()

	ch, cancel := hub.Subscribe()
	cancel()
	cancel() // idempotent

	if n := hub.SubscriberCount(); n != 0 {
		t.Fatalf("expected 0 subscribers, got %d", n)
	}

	hub.Publish(CartRefresh())

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after cancel")
	}
}

func TestHubPublishDoesNotBlock(t *testing.T) {
	hub := NewHub()

	_, cancel := hub.Subscribe()
	defer cancel()

	// Overflow the subscriber buffer; Publish must keep returning.
	for i := 0; i < 100; i++ {
		hub.Publish(CartRefresh())
	}
}

func TestNoticeMessages(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{"addons only", AddedNotice(3, 0), "3 add-ons added to cart"},
		{"gifts only", AddedNotice(0, 1), "1 free gifts added to cart"},
		{"both", AddedNotice(2, 1), "2 add-ons and 1 free gifts added to cart"},
		{"removed", RemovedNotice(4), "4 add-ons removed because the main product was removed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.ev.Message != tt.want {
				t.Errorf("got %q, want %q", tt.ev.Message, tt.want)
			}
		})
	}

	if ev := CartRefresh(); ev.Kind != KindCartRefresh || ev.Message != "" {
		t.Errorf("unexpected cart refresh event: %+v", ev)
	}
}
