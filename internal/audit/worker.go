package audit

import (
	"context"
	"log/slog"

	"correspondence/pkg/platform/circuit"
)

// Worker consumes audit events from a channel and appends them to a store.
// Sink failures are logged and the event is dropped; audit never fails a request.
// While the sink keeps failing, individual failures are logged at debug level.
type Worker struct {
	store   Store
	inbox   <-chan Event
	logger  *slog.Logger
	breaker *circuit.Breaker
}

func NewWorker(store Store, inbox <-chan Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:   store,
		inbox:   inbox,
		logger:  logger,
		breaker: circuit.New("audit_sink", circuit.WithFailureThreshold(3)),
	}
}

// Run blocks until ctx is cancelled, then drains whatever is still buffered.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case event := <-w.inbox:
			w.append(ctx, event)
		}
	}
}

func (w *Worker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	for {
		select {
		case event := <-w.inbox:
			w.append(ctx, event)
		default:
			return
		}
	}
}

func (w *Worker) append(ctx context.Context, event Event) {
	err := w.store.Append(ctx, event)
	if err == nil {
		if _, change := w.breaker.RecordSuccess(); change.Closed {
			w.logger.InfoContext(ctx, "audit sink recovered", "breaker", w.breaker.Name())
		}
		return
	}

	open, change := w.breaker.RecordFailure()
	switch {
	case change.Opened:
		w.logger.ErrorContext(ctx, "audit sink unavailable, suppressing further errors",
			"error", err,
			"breaker", w.breaker.Name(),
		)
	case open:
		w.logger.DebugContext(ctx, "audit event dropped",
			"error", err,
			"action", event.Action,
			"request_id", event.RequestID,
		)
	default:
		w.logger.ErrorContext(ctx, "failed to append audit event",
			"error", err,
			"action", event.Action,
			"request_id", event.RequestID,
		)
	}
}
