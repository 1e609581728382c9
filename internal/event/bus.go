// Package event implements the in-process domain event bus. Producers publish
// events after the aggregate write succeeds; observers react independently
// and can never fail or stall the producer.
package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jwalitptl/triage-api/internal/model"
	"github.com/jwalitptl/triage-api/pkg/logger"
	"github.com/jwalitptl/triage-api/pkg/metrics"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("event bus is closed")

// Observer reacts to domain events. Implementations type-switch on the
// concrete event and ignore variants they do not handle.
type Observer interface {
	Name() string
	Update(ctx context.Context, evt model.DomainEvent) error
}

// Publisher is what use cases depend on.
type Publisher interface {
	Publish(ctx context.Context, evt model.DomainEvent) error
}

type Config struct {
	// ObserverTimeout bounds the context handed to each observer call.
	ObserverTimeout time.Duration
}

type envelope struct {
	ctx context.Context
	evt model.DomainEvent
}

// Bus dispatches events to observers in subscription order on a single
// goroutine, so events are delivered in publish order.
type Bus struct {
	mu        sync.RWMutex
	observers map[model.EventType][]Observer

	qmu     sync.Mutex
	queue   []envelope
	pending int
	idle    chan struct{}
	closed  bool
	signal  chan struct{}
	done    chan struct{}

	timeout time.Duration
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewBus(cfg Config, log *logger.Logger, m *metrics.Metrics) *Bus {
	idle := make(chan struct{})
	close(idle)

	b := &Bus{
		observers: make(map[model.EventType][]Observer),
		idle:      idle,
		signal:    make(chan struct{}, 1),
		done:      make(chan struct{}),
		timeout:   cfg.ObserverTimeout,
		logger:    log.With("component", "event_bus"),
		metrics:   m,
	}
	go b.run()
	return b
}

// Subscribe adds an observer for one event type. An observer with the same
// name is only registered once per type.
func (b *Bus) Subscribe(t model.EventType, o Observer) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.observers[t] {
		if existing.Name() == o.Name() {
			return false
		}
	}
	b.observers[t] = append(b.observers[t], o)
	return true
}

// SubscribeAll subscribes o to every event type.
func (b *Bus) SubscribeAll(o Observer) {
	for _, t := range model.EventTypes() {
		b.Subscribe(t, o)
	}
}

func (b *Bus) Unsubscribe(t model.EventType, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.observers[t]
	for i, o := range list {
		if o.Name() == name {
			b.observers[t] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Publish enqueues the event and returns immediately. The request context is
// detached from cancellation so observers outlive the request.
func (b *Bus) Publish(ctx context.Context, evt model.DomainEvent) error {
	if evt == nil {
		return fmt.Errorf("publish: nil event")
	}

	b.qmu.Lock()
	if b.closed {
		b.qmu.Unlock()
		return ErrClosed
	}
	b.queue = append(b.queue, envelope{ctx: context.WithoutCancel(ctx), evt: evt})
	if b.pending == 0 {
		b.idle = make(chan struct{})
	}
	b.pending++
	b.metrics.BusQueueDepth.Set(float64(len(b.queue)))
	b.qmu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
	return nil
}

// PublishSync dispatches inline on the caller's goroutine. Observer failures
// are still isolated.
func (b *Bus) PublishSync(ctx context.Context, evt model.DomainEvent) {
	b.dispatch(ctx, evt)
}

// Flush waits until every event published so far has been dispatched.
func (b *Bus) Flush(ctx context.Context) error {
	b.qmu.Lock()
	idle := b.idle
	b.qmu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flush event bus: %w", ctx.Err())
	}
}

// Close stops accepting events and waits for the queue to drain.
func (b *Bus) Close(ctx context.Context) error {
	b.qmu.Lock()
	already := b.closed
	b.closed = true
	b.qmu.Unlock()

	if !already {
		select {
		case b.signal <- struct{}{}:
		default:
		}
	}

	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		b.qmu.Lock()
		left := len(b.queue)
		b.qmu.Unlock()
		return fmt.Errorf("close event bus with %d events pending: %w", left, ctx.Err())
	}
}

func (b *Bus) run() {
	defer close(b.done)
	for {
		env, ok := b.next()
		if !ok {
			return
		}
		b.dispatch(env.ctx, env.evt)
		b.complete()
	}
}

func (b *Bus) next() (envelope, bool) {
	for {
		b.qmu.Lock()
		if len(b.queue) > 0 {
			env := b.queue[0]
			b.queue[0] = envelope{}
			b.queue = b.queue[1:]
			b.metrics.BusQueueDepth.Set(float64(len(b.queue)))
			b.qmu.Unlock()
			return env, true
		}
		closed := b.closed
		b.qmu.Unlock()

		if closed {
			return envelope{}, false
		}
		<-b.signal
	}
}

func (b *Bus) complete() {
	b.qmu.Lock()
	defer b.qmu.Unlock()

	b.pending--
	if b.pending == 0 {
		close(b.idle)
	}
}

func (b *Bus) dispatch(ctx context.Context, evt model.DomainEvent) {
	b.mu.RLock()
	observers := append([]Observer(nil), b.observers[evt.EventType()]...)
	b.mu.RUnlock()

	b.metrics.EventsPublished.WithLabelValues(string(evt.EventType())).Inc()
	for _, o := range observers {
		b.notify(ctx, o, evt)
	}
}

func (b *Bus) notify(ctx context.Context, o Observer, evt model.DomainEvent) {
	start := time.Now()
	defer func() {
		b.metrics.ObserverLatency.WithLabelValues(o.Name()).Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			b.metrics.ObserverFailures.WithLabelValues(o.Name(), string(evt.EventType()), "panic").Inc()
			b.logger.Error(fmt.Errorf("panic: %v", r), "Observer panicked",
				"observer", o.Name(),
				"event_type", string(evt.EventType()),
				"event_id", evt.EventID())
		}
	}()

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	if err := o.Update(ctx, evt); err != nil {
		b.metrics.ObserverFailures.WithLabelValues(o.Name(), string(evt.EventType()), "error").Inc()
		b.logger.Error(err, "Observer failed",
			"observer", o.Name(),
			"event_type", string(evt.EventType()),
			"event_id", evt.EventID())
	}
}
