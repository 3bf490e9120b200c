package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wolfman30/hmpv-lab-platform/pkg/logging"
)

// Publisher delivers an envelope to a single transport.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, env Envelope) error
}

// ErrQueueFull is reported when Emit cannot enqueue without blocking.
var ErrQueueFull = errors.New("events: dispatcher queue full")

// Dispatcher fans canonical events out to every configured publisher on a
// background goroutine so request handlers never wait on transports.
type Dispatcher struct {
	publishers []Publisher
	queue      chan Envelope
	logger     *logging.Logger

	mu      sync.Mutex
	dropped int
}

func NewDispatcher(size int, logger *logging.Logger, publishers ...Publisher) *Dispatcher {
	if size <= 0 {
		size = 256
	}
	if logger == nil {
		logger = logging.Default()
	}
	var pubs []Publisher
	for _, p := range publishers {
		if p != nil {
			pubs = append(pubs, p)
		}
	}
	return &Dispatcher{
		publishers: pubs,
		queue:      make(chan Envelope, size),
		logger:     logger,
	}
}

// Publishers returns the names of the attached transports.
func (d *Dispatcher) Publishers() []string {
	names := make([]string, 0, len(d.publishers))
	for _, p := range d.publishers {
		names = append(names, p.Name())
	}
	return names
}

// Emit wraps evt in an envelope and enqueues it. Failures are logged, never returned.
func (d *Dispatcher) Emit(ctx context.Context, evt CanonicalEvent) {
	if err := d.Enqueue(evt); err != nil {
		d.logger.Warn("event not dispatched", "error", err)
	}
}

// Enqueue is Emit with the error surfaced.
func (d *Dispatcher) Enqueue(evt CanonicalEvent) error {
	env, err := NewEnvelope(evt)
	if err != nil {
		return err
	}
	select {
	case d.queue <- env:
		return nil
	default:
		d.mu.Lock()
		d.dropped++
		d.mu.Unlock()
		return ErrQueueFull
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (d *Dispatcher) Dropped() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Run delivers queued envelopes until ctx is cancelled, then drains what is left.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.flush(context.WithoutCancel(ctx))
			return
		case env := <-d.queue:
			d.deliver(ctx, env)
		}
	}
}

func (d *Dispatcher) flush(ctx context.Context) {
	for {
		select {
		case env := <-d.queue:
			d.deliver(ctx, env)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, env Envelope) {
	for _, p := range d.publishers {
		if err := p.Publish(ctx, env); err != nil {
			d.logger.Error("event publish failed",
				"publisher", p.Name(),
				"event_id", env.EventID,
				"type", env.EventType,
				"error", err,
			)
		}
	}
}

// Fanout publishes to every member and joins their errors. The outbox
// deliverer uses it to relay one stored envelope to all transports.
type Fanout []Publisher

func (f Fanout) Name() string { return "fanout" }

func (f Fanout) Publish(ctx context.Context, env Envelope) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, env); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}
