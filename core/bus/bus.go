// Package bus provides the in-process publish/subscribe event bus.
//
// Publishing is non-blocking: every handler subscribed to the event kind is
// invoked once on its own goroutine. A slow or failing handler never delays
// the publisher or its siblings.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/koscakluka/luna/core/events"
	"github.com/koscakluka/luna/core/service"
)

// Handler reacts to a delivered event. Its context carries the event's
// correlation id and is cancelled when the bus stops.
type Handler func(ctx context.Context, event events.Event) error

type Bus struct {
	state service.State

	name            string
	maxInFlight     int64
	shutdownTimeout time.Duration

	mu            sync.RWMutex
	subscriptions map[events.Kind]map[string]Handler
	subscribed    map[string]events.Kind
	lastEvents    map[events.Kind]events.Event
	waiters       map[events.Kind][]chan events.Event

	tasksMu  sync.Mutex
	tasks    map[uint64]context.CancelFunc
	nextTask uint64
	closing  bool
	inFlight sync.WaitGroup
	slots    *semaphore.Weighted

	published metric.Int64Counter
	dropped   metric.Int64Counter
	failures  metric.Int64Counter
}

var _ service.Service = (*Bus)(nil)

func New(opts ...Option) *Bus {
	b := &Bus{
		name:            DefaultName,
		maxInFlight:     DefaultMaxInFlight,
		shutdownTimeout: DefaultShutdownTimeout,
		subscriptions:   map[events.Kind]map[string]Handler{},
		subscribed:      map[string]events.Kind{},
		lastEvents:      map[events.Kind]events.Event{},
		waiters:         map[events.Kind][]chan events.Event{},
		tasks:           map[uint64]context.CancelFunc{},
	}
	for _, opt := range opts {
		opt(b)
	}
	b.slots = semaphore.NewWeighted(b.maxInFlight)

	b.published, _ = meter.Int64Counter("luna.bus.events.published",
		metric.WithDescription("Events accepted for delivery"))
	b.dropped, _ = meter.Int64Counter("luna.bus.events.dropped",
		metric.WithDescription("Events discarded because the bus was not running"))
	b.failures, _ = meter.Int64Counter("luna.bus.handler.failures",
		metric.WithDescription("Handler invocations that returned an error or panicked"))
	return b
}

func (b *Bus) Name() string { return b.name }

func (b *Bus) Status() service.Status { return b.state.Status() }

func (b *Bus) Start(ctx context.Context) error {
	b.tasksMu.Lock()
	b.closing = false
	b.tasksMu.Unlock()

	b.state.SetStatus(service.StatusHealthy)
	logger.InfoContext(ctx, "event bus started", "name", b.name)
	return nil
}

// Stop cancels running handlers and waits for them up to the shutdown
// timeout. Pending waiters are released empty-handed and all subscriptions
// are dropped, so callers must subscribe again after a restart.
func (b *Bus) Stop(ctx context.Context) error {
	b.state.SetStatus(service.StatusShutdown)

	b.tasksMu.Lock()
	b.closing = true
	for _, cancel := range b.tasks {
		cancel()
	}
	b.tasksMu.Unlock()

	done := make(chan struct{})
	go func() {
		b.inFlight.Wait()
		close(done)
	}()

	timer := time.NewTimer(b.shutdownTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		logger.WarnContext(ctx, "timed out waiting for event handlers to finish", "timeout", b.shutdownTimeout)
	case <-ctx.Done():
		logger.WarnContext(ctx, "stopped waiting for event handlers", "error", ctx.Err())
	}

	b.mu.Lock()
	for _, waiters := range b.waiters {
		for _, waiter := range waiters {
			close(waiter)
		}
	}
	clear(b.waiters)
	clear(b.subscriptions)
	clear(b.subscribed)
	clear(b.lastEvents)
	b.mu.Unlock()

	logger.InfoContext(ctx, "event bus stopped", "name", b.name)
	return nil
}

func (b *Bus) HealthCheck(context.Context) bool { return b.state.IsHealthy() }

// Subscribe registers handler for kind and returns its subscription id.
func (b *Bus) Subscribe(kind events.Kind, handler Handler) string {
	id := uuid.NewString()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscriptions[kind] == nil {
		b.subscriptions[kind] = map[string]Handler{}
	}
	b.subscriptions[kind][id] = handler
	b.subscribed[id] = kind

	logger.Debug("subscribed to event", "kind", kind, "subscription_id", id)
	return id
}

// Unsubscribe removes the subscription. Unknown ids are ignored. Handlers
// already dispatched for earlier events still run to completion.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	kind, ok := b.subscribed[id]
	if !ok {
		logger.Debug("subscription not found", "subscription_id", id)
		return
	}
	delete(b.subscribed, id)
	delete(b.subscriptions[kind], id)
	if len(b.subscriptions[kind]) == 0 {
		delete(b.subscriptions, kind)
	}
	logger.Debug("unsubscribed from event", "kind", kind, "subscription_id", id)
}

// WithSubscription keeps handler subscribed to kind for the duration of fn.
// The subscription is removed on every exit path, including a panic in fn.
func (b *Bus) WithSubscription(kind events.Kind, handler Handler, fn func() error) error {
	id := b.Subscribe(kind, handler)
	defer b.Unsubscribe(id)
	return fn()
}

// Publish delivers event to every current subscriber of its kind and returns
// without waiting for them. Events published while the bus is not healthy
// are dropped.
func (b *Bus) Publish(ctx context.Context, event events.Event) {
	kindAttr := attribute.String("event.kind", event.Kind().String())

	b.mu.Lock()
	if !b.state.IsHealthy() {
		b.mu.Unlock()
		b.dropped.Add(ctx, 1, metric.WithAttributes(kindAttr))
		logger.WarnContext(ctx, "event bus not running, dropping event",
			"kind", event.Kind(), "event_id", event.ID(), "status", b.state.Status())
		return
	}
	b.lastEvents[event.Kind()] = event
	waiters := b.waiters[event.Kind()]
	delete(b.waiters, event.Kind())
	handlers := make(map[string]Handler, len(b.subscriptions[event.Kind()]))
	for id, handler := range b.subscriptions[event.Kind()] {
		handlers[id] = handler
	}
	b.mu.Unlock()

	b.published.Add(ctx, 1, metric.WithAttributes(kindAttr))

	for _, waiter := range waiters {
		waiter <- event
	}

	if len(handlers) == 0 {
		logger.DebugContext(ctx, "no subscribers for event", "kind", event.Kind())
		return
	}
	for id, handler := range handlers {
		b.dispatch(ctx, id, handler, event)
	}
}

func (b *Bus) dispatch(ctx context.Context, subscriptionID string, handler Handler, event events.Event) {
	handlerCtx, cancel := context.WithCancel(event.Context(context.WithoutCancel(ctx)))

	b.tasksMu.Lock()
	if b.closing {
		b.tasksMu.Unlock()
		cancel()
		return
	}
	b.nextTask++
	taskID := b.nextTask
	b.tasks[taskID] = cancel
	b.inFlight.Add(1)
	b.tasksMu.Unlock()

	go func() {
		defer b.inFlight.Done()
		defer b.forget(taskID)

		if err := b.slots.Acquire(handlerCtx, 1); err != nil {
			return
		}
		defer b.slots.Release(1)

		b.invoke(handlerCtx, subscriptionID, handler, event)
	}()
}

func (b *Bus) forget(taskID uint64) {
	b.tasksMu.Lock()
	cancel := b.tasks[taskID]
	delete(b.tasks, taskID)
	b.tasksMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (b *Bus) invoke(ctx context.Context, subscriptionID string, handler Handler, event events.Event) {
	ctx, span := tracer.Start(ctx, "bus.handle",
		trace.WithAttributes(
			attribute.String("event.kind", event.Kind().String()),
			attribute.String("event.id", event.ID()),
			attribute.String("bus.subscription_id", subscriptionID),
		))
	defer span.End()

	err := func() (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("handler panicked: %v", recovered)
			}
		}()
		return handler(ctx, event)
	}()
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		logger.DebugContext(ctx, "event handler cancelled", "kind", event.Kind(), "subscription_id", subscriptionID)
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	b.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("event.kind", event.Kind().String())))

	correlationID, _ := event.CorrelationID()
	logger.ErrorContext(ctx, "event handler failed",
		"kind", event.Kind(),
		"subscription_id", subscriptionID,
		"event_id", event.ID(),
		"correlation_id", correlationID,
		"error", err,
	)
}

// WaitForEvent blocks until the next event of kind is published, ctx ends or
// timeout elapses. A zero timeout waits indefinitely. It reports false when no
// event arrived, including when the bus is not running or stops meanwhile.
func (b *Bus) WaitForEvent(ctx context.Context, kind events.Kind, timeout time.Duration) (events.Event, bool) {
	waiter := make(chan events.Event, 1)

	b.mu.Lock()
	if !b.state.IsHealthy() {
		b.mu.Unlock()
		return events.Event{}, false
	}
	b.waiters[kind] = append(b.waiters[kind], waiter)
	b.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case event, ok := <-waiter:
		return event, ok
	case <-expired:
	case <-ctx.Done():
	}

	if b.removeWaiter(kind, waiter) {
		return events.Event{}, false
	}
	// Publish or Stop already claimed the waiter.
	event, ok := <-waiter
	return event, ok
}

func (b *Bus) removeWaiter(kind events.Kind, waiter chan events.Event) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	waiters := b.waiters[kind]
	for i, candidate := range waiters {
		if candidate == waiter {
			b.waiters[kind] = append(waiters[:i:i], waiters[i+1:]...)
			if len(b.waiters[kind]) == 0 {
				delete(b.waiters, kind)
			}
			return true
		}
	}
	return false
}

// SubscriptionCount returns the number of subscriptions for kind, or for all
// kinds when kind is empty.
func (b *Bus) SubscriptionCount(kind events.Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if kind == "" {
		return len(b.subscribed)
	}
	return len(b.subscriptions[kind])
}

// LastEvent returns the most recent event of kind published since the bus
// started.
func (b *Bus) LastEvent(kind events.Kind) (events.Event, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	event, ok := b.lastEvents[kind]
	return event, ok
}
