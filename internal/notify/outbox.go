package notify

import (
	"context"
	"log/slog"
)

// Sink delivers one event to its audience. Implementations must treat
// delivery errors as their own problem; the workflows have already committed.
type Sink interface {
	Send(ctx context.Context, event Event) error
}

// Emitter is the write side handed to workflows.
type Emitter interface {
	Emit(event Event)
}

// Outbox decouples state transitions from notification delivery. Emit never
// blocks the caller: when the buffer is full the event is dropped and logged,
// which is acceptable because notifications are advisory.
type Outbox struct {
	events chan Event
	sink   Sink
	log    *slog.Logger
}

func NewOutbox(sink Sink, buffer int, log *slog.Logger) *Outbox {
	if buffer <= 0 {
		buffer = 256
	}
	return &Outbox{
		events: make(chan Event, buffer),
		sink:   sink,
		log:    log,
	}
}

func (o *Outbox) Emit(event Event) {
	select {
	case o.events <- event:
	default:
		o.log.Warn("notification outbox full, dropping event", "audience", event.Audience())
	}
}

// Run consumes events until the context is cancelled. Send failures are
// logged and swallowed.
func (o *Outbox) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-o.events:
			if err := o.sink.Send(ctx, event); err != nil {
				o.log.Error("deliver notification", "audience", event.Audience(), "err", err)
			}
		}
	}
}

// NopEmitter discards events. Useful in tests and tools.
type NopEmitter struct{}

func (NopEmitter) Emit(Event) {}
