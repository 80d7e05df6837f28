package relay

import (
	"sync"

	"github.com/crosslane/relayd/pkg/order"
)

// EventType names an order lifecycle event.
type EventType string

const (
	EventOrderCreated   EventType = "order:created"
	EventOrderCancelled EventType = "order:cancelled"
	EventOrderFilling   EventType = "order:filling"
	EventOrderFilled    EventType = "order:filled"
)

// Event is a lifecycle notification published by the engine. OrderStatus is
// the wire status for feeds (the legacy contract reports created orders as
// PLACED); Order is present on creation, FillAmount on fill completion.
type Event struct {
	Type        EventType      `json:"type"`
	OrderID     string         `json:"orderId"`
	Market      string         `json:"market"`
	OrderStatus string         `json:"orderStatus"`
	Order       *order.Summary `json:"order,omitempty"`
	FillAmount  string         `json:"fillAmount,omitempty"`
}

// AllMarkets subscribes to every market, including order:filling events.
// Market subscriptions receive only created/cancelled/filled, matching the
// subscriber wire contract.
const AllMarkets = ""

// Subscription is one sink's view of the event feed. Events are delivered on
// C in emission order; a full buffer drops the event rather than block the
// engine.
type Subscription struct {
	market string
	b      *Broadcaster

	C chan Event
}

// Close detaches the subscription. C is not closed, so a racing Publish
// never sends on a closed channel; readers should stop on Close themselves.
func (s *Subscription) Close() {
	s.b.mu.Lock()
	delete(s.b.subs, s)
	s.b.mu.Unlock()
}

// Broadcaster fans lifecycle events out to market subscribers. Publish holds
// the lock for the whole fan-out so delivery order matches emission order
// across all markets.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
}

func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broadcaster{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a sink for events whose order's market key matches.
// There is no replay of history.
func (b *Broadcaster) Subscribe(market string) *Subscription {
	sub := &Subscription{
		market: market,
		b:      b,
		C:      make(chan Event, b.buffer),
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Publish delivers ev to every matching subscriber, dropping it for sinks
// whose buffers are full.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs {
		if sub.market != AllMarkets {
			if sub.market != ev.Market || ev.Type == EventOrderFilling {
				continue
			}
		}
		select {
		case sub.C <- ev:
		default:
			// Slow sink, drop the event.
		}
	}
}
