package events

import (
	"context"
	"sync"
	"time"
)

// Type names a domain event.
type Type string

const (
	ProductCreated Type = "product.created"
	ProductPosted  Type = "product.posted"
	ProductSold    Type = "product.sold"
	OrderPlaced    Type = "order.placed"
)

// Event is the payload published for every domain change worth fanning out.
type Event struct {
	Type      Type      `json:"type"`
	ProductID string    `json:"product_id"`
	SellerID  int64     `json:"seller_id,omitempty"`
	BuyerID   int64     `json:"buyer_id,omitempty"`
	Channel   string    `json:"channel,omitempty"`
	MessageID int       `json:"message_id,omitempty"`
	OrderID   string    `json:"order_id,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher defines an interface for publishing domain events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards events. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
