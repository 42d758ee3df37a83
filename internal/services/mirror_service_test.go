package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prudhvinik1/lansync/internal/livesync"
	"github.com/prudhvinik1/lansync/internal/models"
	"github.com/prudhvinik1/lansync/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStream struct {
	events chan models.MutationEvent
	once   sync.Once
	closed atomic.Bool
}

func newStubStream() *stubStream {
	return &stubStream{events: make(chan models.MutationEvent, 16)}
}

func (s *stubStream) Events() <-chan models.MutationEvent { return s.events }

func (s *stubStream) Close() error {
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.events)
	})
	return nil
}

type stubRemote struct {
	mu         sync.Mutex
	records    map[string][]models.Record
	streams    map[string]*stubStream
	queries    map[string]livesync.Query
	subFails   int
	subscribes atomic.Int32
}

func newStubRemote() *stubRemote {
	return &stubRemote{
		records: make(map[string][]models.Record),
		streams: make(map[string]*stubStream),
		queries: make(map[string]livesync.Query),
	}
}

func (r *stubRemote) FetchList(ctx context.Context, collection string, q livesync.Query) ([]models.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries[collection] = q
	return r.records[collection], nil
}

func (r *stubRemote) FetchOne(ctx context.Context, collection, id, expand string) (models.Record, error) {
	return nil, livesync.ErrRecordNotFound
}

func (r *stubRemote) Subscribe(ctx context.Context, collection, topic string) (livesync.Stream, error) {
	r.subscribes.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subFails > 0 {
		r.subFails--
		return nil, errors.New("realtime unavailable")
	}
	s := newStubStream()
	r.streams[collection] = s
	return s, nil
}

func (r *stubRemote) stream(collection string) *stubStream {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streams[collection]
}

func (r *stubRemote) query(collection string) livesync.Query {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queries[collection]
}

type memoryJournal struct {
	mu      sync.Mutex
	entries []*models.JournalEntry
}

func (j *memoryJournal) Append(ctx context.Context, entry *models.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	entry.SequenceNumber = int64(len(j.entries) + 1)
	j.entries = append(j.entries, entry)
	return nil
}

func (j *memoryJournal) ListSince(ctx context.Context, collection string, seq int64, limit int) ([]*models.JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []*models.JournalEntry
	for _, e := range j.entries {
		if e.Collection == collection && e.SequenceNumber > seq && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (j *memoryJournal) LatestSequence(ctx context.Context, collection string) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return int64(len(j.entries)), nil
}

func (j *memoryJournal) len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

type countingAuth struct {
	calls atomic.Int32
	err   error
}

func (a *countingAuth) Ensure(ctx context.Context) error {
	a.calls.Add(1)
	return a.err
}

func runMirror(t *testing.T, svc *MirrorService) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	var once sync.Once
	cancel = func() {
		once.Do(func() {
			stop()
			select {
			case err := <-done:
				assert.NoError(t, err)
			case <-time.After(2 * time.Second):
				t.Error("Run did not return after cancel")
			}
		})
	}
	t.Cleanup(cancel)
	return cancel
}

func testMirrorConfig(collections ...string) MirrorConfig {
	return MirrorConfig{
		Collections:         collections,
		Filters:             map[string]string{models.CollectionSessions: `status = "Active"`},
		PageSize:            50,
		FetchAll:            true,
		ResubscribeInterval: 10 * time.Millisecond,
	}
}

func TestMirrorService_SnapshotsAndJournal(t *testing.T) {
	remote := newStubRemote()
	remote.records[models.CollectionSessions] = []models.Record{{"id": "s1", "status": "Active"}}
	snapshots := repositories.NewMemorySnapshotRepository(0)
	journal := &memoryJournal{}
	svc := NewMirrorService(remote, snapshots, journal, nil, testMirrorConfig(models.CollectionSessions, models.CollectionSnacks))
	runMirror(t, svc)
	ctx := context.Background()

	// ASSERT: Initial fetch lands in the snapshot store
	require.Eventually(t, func() bool {
		snap, err := snapshots.Load(ctx, models.CollectionSessions)
		return err == nil && len(snap.Records) == 1
	}, 2*time.Second, 5*time.Millisecond)

	q := remote.query(models.CollectionSessions)
	assert.Equal(t, `status = "Active"`, q.Filter)
	assert.Equal(t, 50, q.PerPage)
	assert.True(t, q.All)

	// ACT: Push a create over the stream
	require.Eventually(t, func() bool { return remote.stream(models.CollectionSessions) != nil }, 2*time.Second, 5*time.Millisecond)
	remote.stream(models.CollectionSessions).events <- models.MutationEvent{
		Action: models.ActionCreate,
		Record: models.Record{"id": "s2", "status": "Active"},
	}

	// ASSERT: Snapshot and journal both follow
	require.Eventually(t, func() bool {
		snap, err := snapshots.Load(ctx, models.CollectionSessions)
		return err == nil && len(snap.Records) == 2
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return journal.len() == 1 }, 2*time.Second, 5*time.Millisecond)

	entries, err := svc.Journal(ctx, models.CollectionSessions, 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "s2", entries[0].RecordID)
	assert.Equal(t, models.ActionCreate, entries[0].Action)
	assert.JSONEq(t, `{"id":"s2","status":"Active"}`, string(entries[0].Payload))

	view, err := svc.View(models.CollectionSessions)
	require.NoError(t, err)
	assert.Equal(t, livesync.Subscribed, view.State)
	assert.Len(t, view.Records, 2)

	names, err := snapshots.Collections(ctx)
	require.NoError(t, err)
	sort.Strings(names)
	assert.Contains(t, names, models.CollectionSessions)
}

func TestMirrorService_StopsEnginesOnCancel(t *testing.T) {
	remote := newStubRemote()
	svc := NewMirrorService(remote, repositories.NewMemorySnapshotRepository(0), nil, nil, testMirrorConfig(models.CollectionDevices))
	cancel := runMirror(t, svc)

	require.Eventually(t, func() bool { return remote.stream(models.CollectionDevices) != nil }, 2*time.Second, 5*time.Millisecond)
	cancel()

	assert.True(t, remote.stream(models.CollectionDevices).closed.Load(), "stream should be closed on shutdown")
	view, err := svc.View(models.CollectionDevices)
	require.NoError(t, err)
	assert.Equal(t, livesync.Stopped, view.State)
}

func TestMirrorService_Resubscribes(t *testing.T) {
	remote := newStubRemote()
	remote.subFails = 2
	auth := &countingAuth{}
	svc := NewMirrorService(remote, repositories.NewMemorySnapshotRepository(0), nil, auth, testMirrorConfig(models.CollectionDevices))
	runMirror(t, svc)

	eng, err := svc.Engine(models.CollectionDevices)
	require.NoError(t, err)
	require.Eventually(t, eng.Subscribed, 2*time.Second, 5*time.Millisecond, "engine should resubscribe")

	assert.GreaterOrEqual(t, remote.subscribes.Load(), int32(3))
	assert.GreaterOrEqual(t, auth.calls.Load(), int32(3), "auth is checked before each retry")
	assert.Eventually(t, func() bool { return eng.State() == livesync.Subscribed }, 2*time.Second, 5*time.Millisecond)
}

func TestMirrorService_AuthFailureStopsRun(t *testing.T) {
	boom := errors.New("bad credentials")
	svc := NewMirrorService(newStubRemote(), repositories.NewMemorySnapshotRepository(0), nil, &countingAuth{err: boom}, testMirrorConfig(models.CollectionDevices))

	err := svc.Run(context.Background())

	assert.ErrorIs(t, err, boom)
}

func TestMirrorService_Lookups(t *testing.T) {
	svc := NewMirrorService(newStubRemote(), repositories.NewMemorySnapshotRepository(0), nil, nil, testMirrorConfig(models.CollectionDevices))
	ctx := context.Background()

	_, err := svc.View("unknown")
	assert.ErrorIs(t, err, ErrUnknownCollection)

	_, err = svc.Journal(ctx, models.CollectionDevices, 0, 10)
	assert.ErrorIs(t, err, ErrJournalDisabled)

	_, err = svc.Snapshot(ctx, models.CollectionDevices)
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	assert.Equal(t, []string{models.CollectionDevices}, svc.Collections())
}
