// Package notify fans out widget notifications and cart-refresh broadcasts
// to connected storefront pages.
package notify

import (
	"fmt"
	"sync"
)

// Kind classifies an event for the widget script.
type Kind string

const (
	// KindNotice is a user-visible informational notification.
	KindNotice Kind = "notice"

	// KindError is a user-visible error notification.
	KindError Kind = "error"

	// KindCartRefresh tells the host theme to re-render its cart UI.
	// Carries no message.
	KindCartRefresh Kind = "cart_refresh"
)

// Event is one broadcast to subscribed pages.
type Event struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message,omitempty"`
}

// AddedNotice builds the consolidated post-add notification.
func AddedNotice(addons, gifts int) Event {
	switch {
	case addons > 0 && gifts > 0:
		return Event{Kind: KindNotice, Message: fmt.Sprintf("%d add-ons and %d free gifts added to cart", addons, gifts)}
	case gifts > 0:
		return Event{Kind: KindNotice, Message: fmt.Sprintf("%d free gifts added to cart", gifts)}
	default:
		return Event{Kind: KindNotice, Message: fmt.Sprintf("%d add-ons added to cart", addons)}
	}
}

// RemovedNotice builds the consolidated orphan-removal notification.
func RemovedNotice(n int) Event {
	return Event{Kind: KindNotice, Message: fmt.Sprintf("%d add-ons removed because the main product was removed", n)}
}

// ErrorNotice builds a user-visible error notification.
func ErrorNotice(message string) Event {
	return Event{Kind: KindError, Message: message}
}

// CartRefresh builds a cart-refresh broadcast.
func CartRefresh() Event {
	return Event{Kind: KindCartRefresh}
}

// Hub is a fan-out broadcaster. Publishing never blocks: subscribers with a
// full buffer miss the event, which is acceptable because every event is
// advisory UI state that the next cart read re-derives.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new subscriber. The returned cancel function must be
// called when the subscriber goes away; it closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber that can take it now.
func (h *Hub) Publish(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- event:
		default:
			// Subscriber is backed up; drop rather than block the publisher.
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
