package audit

import (
	"context"
	"time"

	"correspondence/pkg/requestcontext"
)

// Store persists or forwards audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Publisher captures structured audit events. It is append-only and delegates
// to a Store so tests can swap sinks easily.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

// Emit enriches base with request-scoped metadata and appends it.
func (p *Publisher) Emit(ctx context.Context, base Event) error {
	return p.store.Append(ctx, enrich(ctx, base))
}

func enrich(ctx context.Context, e Event) Event {
	if e.Timestamp.IsZero() {
		e.Timestamp = requestcontext.Now(ctx)
	}
	if e.Category == "" {
		e.Category = Action(e.Action).Category()
	}
	if e.RequestID == "" {
		e.RequestID = requestcontext.RequestID(ctx)
	}
	if e.ClientIP == "" {
		e.ClientIP = requestcontext.ClientIP(ctx)
	}
	if e.Client == "" {
		e.Client = requestcontext.Client(ctx)
	}
	if e.ActorID.IsZero() {
		e.ActorID = requestcontext.UserID(ctx)
	}
	return e
}

// AsyncPublisher hands events to a Worker through a bounded buffer so slow
// sinks never block request handling. Events are dropped when the buffer is full.
type AsyncPublisher struct {
	inbox   chan Event
	dropped func(Event)
}

func NewAsyncPublisher(buffer int, onDrop func(Event)) *AsyncPublisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &AsyncPublisher{inbox: make(chan Event, buffer), dropped: onDrop}
}

func (p *AsyncPublisher) Emit(ctx context.Context, base Event) error {
	e := enrich(ctx, base)
	select {
	case p.inbox <- e:
	default:
		if p.dropped != nil {
			p.dropped(e)
		}
	}
	return nil
}

// Inbox is the receive side consumed by a Worker.
func (p *AsyncPublisher) Inbox() <-chan Event {
	return p.inbox
}

// flushTimeout bounds draining the buffer on shutdown.
const flushTimeout = 5 * time.Second
