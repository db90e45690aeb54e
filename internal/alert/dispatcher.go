package alert

import (
	"context"
	"log/slog"
	"sync"

	"watchrag/internal/domain"
)

// DefaultQueueSize bounds pending alerts.
const DefaultQueueSize = 64

// Dispatcher hands alerts to a Notifier on a single background worker.
// Each accepted event is delivered at most once.
type Dispatcher struct {
	notifier domain.Notifier
	log      *slog.Logger
	queue    chan domain.AlertEvent
	done     chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewDispatcher starts the worker.
func NewDispatcher(notifier domain.Notifier, queueSize int, log *slog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	d := &Dispatcher{
		notifier: notifier,
		log:      log,
		queue:    make(chan domain.AlertEvent, queueSize),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

// Enqueue never blocks. It returns false when the event was dropped because
// the queue is full or the dispatcher is closed.
func (d *Dispatcher) Enqueue(event domain.AlertEvent) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- event:
		return true
	default:
		d.log.Warn("Alert queue full, dropping alert", slog.Float64("confidence", event.Confidence))
		return false
	}
}

// Close stops accepting events and waits for queued ones to be delivered
// or for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for event := range d.queue {
		if err := d.notifier.Notify(context.Background(), event); err != nil {
			d.log.Error("Failed to deliver alert", slog.Any("error", err))
			continue
		}
		d.log.Info("Alert delivered", slog.Float64("confidence", event.Confidence))
	}
}
