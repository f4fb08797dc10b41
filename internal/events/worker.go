package events

import (
	"context"
	"log/slog"
	"time"
)

// ChannelPublisher decouples emitters from the delivery sink through a buffered
// channel. A full buffer drops the event rather than blocking a transition.
type ChannelPublisher struct {
	inbox  chan Event
	logger *slog.Logger
}

func NewChannelPublisher(buffer int, logger *slog.Logger) *ChannelPublisher {
	return &ChannelPublisher{inbox: make(chan Event, buffer), logger: logger}
}

func (p *ChannelPublisher) Publish(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	select {
	case p.inbox <- event:
		return nil
	default:
		if p.logger != nil {
			p.logger.WarnContext(ctx, "event buffer full, dropping event", "name", event.Name)
		}
		return nil
	}
}

// Inbox exposes the consuming side for the worker.
func (p *ChannelPublisher) Inbox() <-chan Event { return p.inbox }

// Worker consumes events from a channel and hands them to a sink. It keeps
// background delivery testable without wiring queue implementations.
type Worker struct {
	sink     Sink
	inbox    <-chan Event
	logger   *slog.Logger
	attempts int
	backoff  time.Duration
}

type WorkerOption func(*Worker)

func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) { w.logger = logger }
}

// WithWorkerRetry bounds delivery attempts per event and sets the base
// backoff, doubled between attempts.
func WithWorkerRetry(attempts int, backoff time.Duration) WorkerOption {
	return func(w *Worker) {
		w.attempts = attempts
		w.backoff = backoff
	}
}

func NewWorker(sink Sink, inbox <-chan Event, opts ...WorkerOption) *Worker {
	w := &Worker{
		sink:     sink,
		inbox:    inbox,
		logger:   slog.Default(),
		attempts: 3,
		backoff:  100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run drains the inbox until the context is cancelled. Delivery is retried
// with doubling backoff; an event that exhausts its attempts is logged and
// dropped so one poisoned event cannot stall the stream.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.deliver(ctx, event); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				w.logger.ErrorContext(ctx, "dropping event after retries",
					"name", event.Name, "entity_id", event.EntityID, "error", err)
			}
		}
	}
}

func (w *Worker) deliver(ctx context.Context, event Event) error {
	delay := w.backoff
	var err error
	for attempt := 1; attempt <= w.attempts; attempt++ {
		if err = w.sink.Append(ctx, event); err == nil {
			return nil
		}
		if attempt == w.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
