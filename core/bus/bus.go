// Package bus provides the typed publish/subscribe backbone of the pipeline.
//
// Every subscription owns a bounded queue and a dedicated dispatch goroutine,
// so a slow subscriber can never block the publisher or another subscriber.
// When a queue is full the event is dropped for that subscriber and counted.
package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avrelja/sidecoach/core/events"
)

const (
	// DefaultQueueSize bounds each per-subscription queue.
	DefaultQueueSize = 256
	// DefaultGracePeriod bounds how long Stop waits for dispatch loops.
	DefaultGracePeriod = 3 * time.Second
)

// Handler processes one event. It runs on the subscription's dispatch
// goroutine; the next event for the same subscription is not dispatched until
// the handler returns.
type Handler func(ctx context.Context, event events.Event)

// Subscription is the handle returned by Subscribe and SubscribeKinds.
type Subscription struct {
	kinds   []events.Kind
	handler Handler
	queue   chan events.Event

	dropped atomic.Uint64
}

// Kind reports the first event kind this subscription receives.
func (s *Subscription) Kind() events.Kind { return s.kinds[0] }

// Kinds reports every event kind this subscription receives.
func (s *Subscription) Kinds() []events.Kind { return append([]events.Kind(nil), s.kinds...) }

// Dropped reports how many events were dropped for this subscription because
// its queue was full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Bus fans events out to per-kind subscriptions. The zero value is not usable;
// construct with New and inject the instance into every component.
type Bus struct {
	mu            sync.Mutex
	subscriptions map[events.Kind][]*Subscription
	// all holds each subscription exactly once; a multi-kind subscription is
	// routed under several kinds but runs a single dispatch loop.
	all []*Subscription

	queueSize   int
	gracePeriod time.Duration

	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	published atomic.Uint64
	dropped   atomic.Uint64
}

type Option func(*Bus)

// WithQueueSize overrides the per-subscription queue capacity.
func WithQueueSize(size int) Option {
	return func(b *Bus) {
		if size > 0 {
			b.queueSize = size
		}
	}
}

// WithGracePeriod overrides how long Stop waits for dispatch loops to drain.
func WithGracePeriod(period time.Duration) Option {
	return func(b *Bus) {
		if period > 0 {
			b.gracePeriod = period
		}
	}
}

func New(opts ...Option) *Bus {
	b := &Bus{
		subscriptions: map[events.Kind][]*Subscription{},
		queueSize:     DefaultQueueSize,
		gracePeriod:   DefaultGracePeriod,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for one event kind. Each call creates an
// isolated queue; subscribing after Start attaches a live dispatch loop.
func (b *Bus) Subscribe(kind events.Kind, handler Handler) *Subscription {
	return b.SubscribeKinds(handler, kind)
}

// SubscribeKinds registers one handler for several event kinds sharing a
// single queue and dispatch loop, so the subscriber observes those kinds in
// publish order. Per-kind subscriptions give no ordering across kinds;
// consumers that correlate events of different kinds, like a chunk stream with
// its completion marker, must subscribe to them together.
func (b *Bus) SubscribeKinds(handler Handler, kinds ...events.Kind) *Subscription {
	subscription := &Subscription{
		kinds:   append([]events.Kind(nil), kinds...),
		handler: handler,
		queue:   make(chan events.Event, b.queueSize),
	}

	b.mu.Lock()
	for _, kind := range kinds {
		b.subscriptions[kind] = append(b.subscriptions[kind], subscription)
	}
	b.all = append(b.all, subscription)
	started := b.started
	b.mu.Unlock()

	if started {
		b.wg.Add(1)
		go b.dispatchLoop(b.ctx, subscription)
	}

	logger.Debug("subscriber registered", "kinds", fmt.Sprintf("%v", kinds))
	return subscription
}

// Publish enqueues the event for every subscription of its kind. It never
// blocks and never fails; events for saturated subscribers are dropped and
// counted.
func (b *Bus) Publish(event events.Event) {
	b.mu.Lock()
	subscriptions := b.subscriptions[event.Kind()]
	b.mu.Unlock()

	b.published.Add(1)
	for _, subscription := range subscriptions {
		select {
		case subscription.queue <- event:
		default:
			subscription.dropped.Add(1)
			b.dropped.Add(1)
			logger.Warn("subscriber queue full, dropping event",
				"kind", string(event.Kind()), "origin", event.Origin())
		}
	}
}

// Start launches one dispatch loop per subscription. Call at most once.
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		logger.Warn("bus already started, skipping Start")
		return
	}
	b.started = true
	b.ctx, b.cancel = context.WithCancel(ctx)
	loops := 0
	for _, subscription := range b.all {
		b.wg.Add(1)
		go b.dispatchLoop(b.ctx, subscription)
		loops++
	}
	b.mu.Unlock()

	logger.Info("bus started", "dispatch_loops", loops)
}

// Stop cancels all dispatch loops and awaits them for the configured grace
// period. In-flight handlers observe the cancelled context; an exceeded grace
// period is reported as an error.
func (b *Bus) Stop() error {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return nil
	}
	b.started = false
	cancel := b.cancel
	b.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("bus stopped")
		return nil
	case <-time.After(b.gracePeriod):
		return fmt.Errorf("bus stop exceeded grace period of %s", b.gracePeriod)
	}
}

// Dropped reports the total number of events dropped across all
// subscriptions. Exposed as an observable backpressure metric.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Published reports the total number of publish calls.
func (b *Bus) Published() uint64 { return b.published.Load() }

func (b *Bus) dispatchLoop(ctx context.Context, subscription *Subscription) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-subscription.queue:
			b.dispatch(ctx, subscription, event)
		}
	}
}

// dispatch invokes the handler for one event, isolating panics so one faulty
// subscriber cannot take down its loop or affect other subscribers.
func (b *Bus) dispatch(ctx context.Context, subscription *Subscription, event events.Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("subscriber handler panicked",
				"kind", string(event.Kind()), "panic", fmt.Sprintf("%v", r))
		}
	}()

	subscription.handler(ctx, event)
}
