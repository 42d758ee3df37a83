package livesync

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prudhvinik1/lansync/internal/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStream struct {
	out  chan models.MutationEvent
	done chan struct{}

	mu         sync.Mutex
	closeOnce  sync.Once
	closeCalls atomic.Int32
	closeErr   error
	err        error
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		out:  make(chan models.MutationEvent),
		done: make(chan struct{}),
	}
}

func (s *fakeStream) Events() <-chan models.MutationEvent {
	return s.out
}

func (s *fakeStream) Close() error {
	s.closeCalls.Add(1)
	s.shutdown(nil)
	return s.closeErr
}

func (s *fakeStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// end simulates the server dropping the connection.
func (s *fakeStream) end(err error) {
	s.shutdown(err)
}

func (s *fakeStream) shutdown(err error) {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.err = err
		close(s.out)
		s.mu.Unlock()
	})
}

// send blocks until the engine has received ev, or reports false once the
// stream is closed.
func (s *fakeStream) send(ev models.MutationEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- ev:
		return true
	case <-s.done:
		return false
	}
}

type fakeRemote struct {
	mu        sync.Mutex
	listFn    func(ctx context.Context, q Query) ([]models.Record, error)
	oneFn     func(ctx context.Context, id string) (models.Record, error)
	subErr    error
	subGate   *subscribeGate
	streams   []*fakeStream
	topics    []string
	queries   []Query
	subscribe atomic.Int32
	fetches   atomic.Int32
}

func (r *fakeRemote) FetchList(ctx context.Context, collection string, q Query) ([]models.Record, error) {
	r.mu.Lock()
	fn := r.listFn
	r.queries = append(r.queries, q)
	r.fetches.Add(1)
	r.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(ctx, q)
}

func (r *fakeRemote) FetchOne(ctx context.Context, collection, id, expand string) (models.Record, error) {
	r.mu.Lock()
	fn := r.oneFn
	r.fetches.Add(1)
	r.mu.Unlock()
	if fn == nil {
		return nil, ErrRecordNotFound
	}
	return fn(ctx, id)
}

func (r *fakeRemote) Subscribe(ctx context.Context, collection, topic string) (Stream, error) {
	r.subscribe.Add(1)
	r.mu.Lock()
	r.topics = append(r.topics, topic)
	if r.subErr != nil {
		r.mu.Unlock()
		return nil, r.subErr
	}
	s := newFakeStream()
	r.streams = append(r.streams, s)
	gate := r.subGate
	r.subGate = nil
	r.mu.Unlock()

	if gate != nil {
		close(gate.entered)
		<-gate.release
	}
	return s, nil
}

// subscribeGate holds one Subscribe call open until released, regardless of
// its context.
type subscribeGate struct {
	entered chan struct{}
	release chan struct{}
}

func (r *fakeRemote) gateNextSubscribe() *subscribeGate {
	g := &subscribeGate{entered: make(chan struct{}), release: make(chan struct{})}
	r.mu.Lock()
	r.subGate = g
	r.mu.Unlock()
	return g
}

func (r *fakeRemote) stream(t *testing.T, i int) *fakeStream {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.Greater(t, len(r.streams), i, "stream %d not opened", i)
	return r.streams[i]
}

func (r *fakeRemote) setList(fn func(ctx context.Context, q Query) ([]models.Record, error)) {
	r.mu.Lock()
	r.listFn = fn
	r.mu.Unlock()
}

func (r *fakeRemote) setSubErr(err error) {
	r.mu.Lock()
	r.subErr = err
	r.mu.Unlock()
}

func (r *fakeRemote) lastStream(t *testing.T) *fakeStream {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.streams, "no stream opened")
	return r.streams[len(r.streams)-1]
}

func (r *fakeRemote) firstQuery() Query {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queries[0]
}

func staticList(records ...models.Record) func(context.Context, Query) ([]models.Record, error) {
	return func(context.Context, Query) ([]models.Record, error) {
		return records, nil
	}
}

// gatedList blocks the fetch until release is closed or ctx ends.
func gatedList(release <-chan struct{}, records ...models.Record) func(context.Context, Query) ([]models.Record, error) {
	return func(ctx context.Context, _ Query) ([]models.Record, error) {
		select {
		case <-release:
			return records, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func testOptions() Options {
	return Options{Logger: zap.NewNop()}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

func ids(records []models.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID()
	}
	return out
}
