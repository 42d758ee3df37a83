// Package livesync keeps local views of PocketBase collections and records
// in step with the server: an initial fetch followed by realtime mutation
// events folded into the view one at a time, in arrival order.
//
// Each engine owns at most one subscription. Start is idempotent while that
// subscription is open and Stop can be called any number of times. Fetches
// carry a generation number; a result that was overtaken by a newer fetch or
// by Stop is dropped. Events that arrive while a fetch is outstanding are
// applied immediately and replayed on top of the fetch result, so a slow
// fetch never hides newer pushed state.
package livesync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prudhvinik1/lansync/internal/logger"
	"github.com/prudhvinik1/lansync/internal/metrics"
	"github.com/prudhvinik1/lansync/internal/models"
	"go.uber.org/zap"
)

var (
	ErrStopped = errors.New("livesync: engine stopped")
	// ErrFetchDiscarded is returned by Refresh when a newer fetch or Stop
	// overtook it.
	ErrFetchDiscarded = errors.New("livesync: fetch result discarded")
	ErrStreamClosed   = errors.New("livesync: realtime stream closed")
)

type State int

const (
	Idle State = iota
	Fetching
	Subscribed
	Stopped
	Errored
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Subscribed:
		return "subscribed"
	case Stopped:
		return "stopped"
	case Errored:
		return "errored"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// store is the data half of an engine. All methods run under the engine lock.
type store[T any] interface {
	replace(T)
	apply(models.MutationEvent) bool
	clear()
	size() int
}

type engine[T any] struct {
	remote     Remote
	collection string
	topic      string
	fetch      func(ctx context.Context) (T, error)
	noFetch    bool
	onEvent    func(models.MutationEvent)
	log        *zap.Logger

	changes chan struct{}

	mu       sync.Mutex
	data     store[T]
	state    State
	loading  bool
	fetchErr error
	subErr   error
	stopErr  error
	gen      uint64
	pending  []models.MutationEvent
	stream   Stream
	starting bool
	runCtx   context.Context
	cancel   context.CancelFunc
}

func newEngine[T any](remote Remote, collection, topic string, data store[T], opts Options) *engine[T] {
	log := opts.Logger
	if log == nil {
		log = logger.Named("livesync")
	}
	return &engine[T]{
		remote:     remote,
		collection: collection,
		topic:      topic,
		noFetch:    opts.SkipInitialFetch,
		onEvent:    opts.OnEvent,
		log:        log.With(logger.Collection(collection), logger.Topic(topic)),
		changes:    make(chan struct{}, 1),
		data:       data,
	}
}

// Start opens the subscription and, unless disabled, kicks off the initial
// fetch in the background. It is a no-op while a subscription is open or
// being opened, or when ctx is already done. Failures are recorded on the
// engine, never returned.
func (e *engine[T]) Start(ctx context.Context) {
	e.mu.Lock()
	if e.stream != nil || e.starting || ctx.Err() != nil {
		e.mu.Unlock()
		return
	}
	if e.cancel != nil {
		e.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.starting = true
	e.runCtx, e.cancel = runCtx, cancel
	e.fetchErr, e.subErr, e.stopErr = nil, nil, nil
	if e.state == Stopped || e.state == Errored {
		e.state = Idle
	}
	e.mu.Unlock()

	stream, err := e.remote.Subscribe(runCtx, e.collection, e.topic)

	e.mu.Lock()
	if e.runCtx != runCtx {
		// Stop ran while we were subscribing, possibly followed by a newer
		// Start that now owns the engine.
		e.mu.Unlock()
		if stream != nil {
			stream.Close()
		}
		return
	}
	e.starting = false
	if runCtx.Err() != nil {
		e.mu.Unlock()
		if stream != nil {
			stream.Close()
		}
		return
	}

	if err != nil {
		e.subErr = fmt.Errorf("failed to subscribe to %s/%s: %w", e.collection, e.topic, err)
		e.state = Errored
		e.log.Warn("subscribe failed", zap.Error(err))
	} else {
		e.stream = stream
		e.state = Subscribed
		metrics.SubscriptionsActive.Inc()
		go e.pump(stream)
		e.log.Debug("subscribed")
	}

	var gen uint64
	if !e.noFetch {
		gen = e.beginFetchLocked()
	}
	e.mu.Unlock()
	e.notify()

	if !e.noFetch {
		go e.load(runCtx, gen)
	}
}

// Stop closes the subscription and drops any in-flight fetch. Once it
// returns no further events are applied. The current data is kept.
func (e *engine[T]) Stop() {
	e.mu.Lock()
	if e.state == Stopped && e.stream == nil && e.cancel == nil {
		e.mu.Unlock()
		return
	}
	stream, cancel := e.stream, e.cancel
	e.stream, e.cancel, e.runCtx = nil, nil, nil
	e.starting = false
	e.gen++
	e.loading = false
	e.pending = nil
	e.state = Stopped
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stream != nil {
		metrics.SubscriptionsActive.Dec()
		if err := stream.Close(); err != nil {
			e.log.Warn("unsubscribe failed", zap.Error(err))
			e.mu.Lock()
			e.stopErr = fmt.Errorf("failed to unsubscribe from %s/%s: %w", e.collection, e.topic, err)
			e.mu.Unlock()
		}
	}
	e.log.Debug("stopped")
	e.notify()
}

// Refresh fetches again and replaces the data wholesale. It blocks until
// the fetch resolves; the outcome is also recorded on the engine.
func (e *engine[T]) Refresh(ctx context.Context) error {
	e.mu.Lock()
	if e.state == Stopped {
		e.mu.Unlock()
		return ErrStopped
	}
	gen := e.beginFetchLocked()
	runCtx := e.runCtx
	e.mu.Unlock()
	e.notify()

	if runCtx != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
		release := context.AfterFunc(runCtx, cancel)
		defer release()
	}
	return e.load(ctx, gen)
}

// Apply folds one event into the data as if it had arrived on the
// subscription. It reports false once the engine is stopped or when the
// event changes nothing.
func (e *engine[T]) Apply(ev models.MutationEvent) bool {
	e.mu.Lock()
	if e.state == Stopped {
		e.mu.Unlock()
		return false
	}
	applied := e.applyLocked(ev)
	size := e.data.size()
	e.mu.Unlock()

	e.afterApply(ev, applied, size)
	return applied
}

func (e *engine[T]) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *engine[T]) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading
}

// Err is the most relevant recorded failure: fetch, then subscribe, then
// unsubscribe.
func (e *engine[T]) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errLocked()
}

// Changes receives a value after every state or data change. Notifications
// coalesce; read the current view after each one.
func (e *engine[T]) Changes() <-chan struct{} {
	return e.changes
}

func (e *engine[T]) Collection() string {
	return e.collection
}

// Subscribed reports whether a subscription is currently open.
func (e *engine[T]) Subscribed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stream != nil
}

func (e *engine[T]) errLocked() error {
	switch {
	case e.fetchErr != nil:
		return e.fetchErr
	case e.subErr != nil:
		return e.subErr
	default:
		return e.stopErr
	}
}

func (e *engine[T]) beginFetchLocked() uint64 {
	e.gen++
	e.loading = true
	e.pending = nil
	e.fetchErr = nil
	if e.subErr == nil {
		e.state = Fetching
	}
	return e.gen
}

func (e *engine[T]) load(ctx context.Context, gen uint64) error {
	result, err := e.fetch(ctx)

	e.mu.Lock()
	if gen != e.gen || e.state == Stopped {
		e.mu.Unlock()
		metrics.Fetches.WithLabelValues(e.collection, "discarded").Inc()
		e.log.Debug("discarding stale fetch", logger.Generation(gen))
		return ErrFetchDiscarded
	}

	e.loading = false
	if err != nil {
		e.fetchErr = fmt.Errorf("failed to fetch %s: %w", e.collection, err)
		e.data.clear()
		e.state = Errored
	} else {
		e.data.replace(result)
		e.state = e.settledStateLocked()
	}
	for _, ev := range e.pending {
		e.data.apply(ev)
	}
	e.pending = nil
	size := e.data.size()
	e.mu.Unlock()

	if err != nil {
		metrics.Fetches.WithLabelValues(e.collection, "failed").Inc()
		e.log.Warn("fetch failed", zap.Error(err))
	} else {
		metrics.Fetches.WithLabelValues(e.collection, "applied").Inc()
	}
	metrics.SnapshotRecords.WithLabelValues(e.collection).Set(float64(size))
	e.notify()

	if err != nil {
		return e.fetchErr
	}
	return nil
}

func (e *engine[T]) settledStateLocked() State {
	switch {
	case e.stream != nil:
		return Subscribed
	case e.subErr != nil:
		return Errored
	default:
		return Idle
	}
}

func (e *engine[T]) applyLocked(ev models.MutationEvent) bool {
	if e.loading {
		e.pending = append(e.pending, ev)
	}
	return e.data.apply(ev)
}

func (e *engine[T]) afterApply(ev models.MutationEvent, applied bool, size int) {
	if !applied {
		return
	}
	metrics.SnapshotRecords.WithLabelValues(e.collection).Set(float64(size))
	metrics.EventsApplied.WithLabelValues(e.collection, string(ev.Action)).Inc()
	if e.onEvent != nil {
		e.onEvent(ev)
	}
	e.notify()
}

func (e *engine[T]) pump(stream Stream) {
	for ev := range stream.Events() {
		e.mu.Lock()
		if e.stream != stream {
			e.mu.Unlock()
			return
		}
		applied := e.applyLocked(ev)
		size := e.data.size()
		e.mu.Unlock()

		e.afterApply(ev, applied, size)
	}

	e.mu.Lock()
	if e.stream != stream {
		e.mu.Unlock()
		return
	}
	e.stream = nil
	e.subErr = ErrStreamClosed
	if errStream, ok := stream.(interface{ Err() error }); ok && errStream.Err() != nil {
		e.subErr = fmt.Errorf("%w: %v", ErrStreamClosed, errStream.Err())
	}
	e.state = Errored
	e.mu.Unlock()

	metrics.SubscriptionsActive.Dec()
	e.log.Warn("realtime stream closed unexpectedly")
	e.notify()
}

func (e *engine[T]) notify() {
	select {
	case e.changes <- struct{}{}:
	default:
	}
}
