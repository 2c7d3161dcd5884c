package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/sweeney/dcf77-receiver/internal/logic"
)

const outboxSize = 64

// ErrOutboxFull is returned when a message is dropped because the delivery
// goroutine has fallen behind.
var ErrOutboxFull = errors.New("mqtt outbox full")

type outboxItem struct {
	event  *logic.Event
	system *SystemEvent
}

// Outbox decouples the sampling loop from broker round trips. Publish and
// PublishSystem only queue; Run hands the messages to the wrapped Publisher in
// order on its own goroutine.
type Outbox struct {
	inner Publisher
	queue chan outboxItem
}

// NewOutbox wraps inner. Nothing is delivered until Run is started.
func NewOutbox(inner Publisher) *Outbox {
	return &Outbox{
		inner: inner,
		queue: make(chan outboxItem, outboxSize),
	}
}

func (o *Outbox) enqueue(item outboxItem, what string) error {
	select {
	case o.queue <- item:
		return nil
	default:
		return fmt.Errorf("%w: dropped %s", ErrOutboxFull, what)
	}
}

// Publish queues a MINUTE event. Other event types are ignored here so bits
// never take queue slots.
func (o *Outbox) Publish(event logic.Event) error {
	if event.Type != logic.EventMinute {
		return nil
	}
	return o.enqueue(outboxItem{event: &event}, string(event.Type))
}

// PublishSystem queues a system event.
func (o *Outbox) PublishSystem(event SystemEvent) error {
	return o.enqueue(outboxItem{system: &event}, event.Event)
}

// IsConnected reports the wrapped publisher's connection state, or false if it
// does not expose one.
func (o *Outbox) IsConnected() bool {
	if cs, ok := o.inner.(ConnectionStatus); ok {
		return cs.IsConnected()
	}
	return false
}

// Run delivers queued messages until ctx is done. Messages still queued at that
// point are delivered before Run returns, so a final SHUTDOWN is not lost.
func (o *Outbox) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case item := <-o.queue:
					o.deliver(item)
				default:
					return nil
				}
			}
		case item := <-o.queue:
			o.deliver(item)
		}
	}
}

func (o *Outbox) deliver(item outboxItem) {
	switch {
	case item.event != nil:
		if err := o.inner.Publish(*item.event); err != nil {
			log.Printf("publish error: %v", err)
		}
	case item.system != nil:
		if err := o.inner.PublishSystem(*item.system); err != nil {
			log.Printf("failed to publish %s event: %v", item.system.Event, err)
		}
	}
}

// Close closes the wrapped publisher. Call it after Run has returned.
func (o *Outbox) Close() error {
	return o.inner.Close()
}
