package livesync

import (
	"context"

	"github.com/prudhvinik1/lansync/internal/models"
	"go.uber.org/zap"
)

type Options struct {
	Query Query
	// SkipInitialFetch makes Start subscribe only. Refresh still fetches.
	SkipInitialFetch bool
	Logger           *zap.Logger
	// OnEvent runs after each event that changed the data, on the goroutine
	// that applied it, in arrival order. Replays after a fetch do not call it.
	OnEvent func(models.MutationEvent)
}

// CollectionSync mirrors one collection (optionally filtered server-side)
// into an ordered in-memory list with at most one record per id.
type CollectionSync struct {
	*engine[[]models.Record]
	list *listStore
}

// View is a consumer's read-only copy of an engine's current state.
type View struct {
	Records []models.Record
	Loading bool
	Err     error
	State   State
}

func NewCollectionSync(remote Remote, collection string, opts Options) *CollectionSync {
	list := newListStore()
	e := newEngine[[]models.Record](remote, collection, TopicAll, list, opts)
	q := opts.Query
	e.fetch = func(ctx context.Context) ([]models.Record, error) {
		return remote.FetchList(ctx, collection, q)
	}
	return &CollectionSync{engine: e, list: list}
}

func (s *CollectionSync) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		Records: s.list.snapshot(),
		Loading: s.loading,
		Err:     s.errLocked(),
		State:   s.state,
	}
}

func (s *CollectionSync) Records() []models.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list.snapshot()
}

func (s *CollectionSync) Record(id string) (models.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.list.index[id]
	if !ok {
		return nil, false
	}
	return s.list.records[i].Clone(), true
}

func (s *CollectionSync) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.list.records)
}

type listStore struct {
	records []models.Record
	index   map[string]int
}

func newListStore() *listStore {
	return &listStore{index: make(map[string]int)}
}

// replace installs a fetch result. Duplicate ids collapse into the first
// position, later copies merged over it.
func (l *listStore) replace(records []models.Record) {
	l.records = make([]models.Record, 0, len(records))
	l.index = make(map[string]int, len(records))
	for _, rec := range records {
		id := rec.ID()
		if id == "" {
			continue
		}
		if i, ok := l.index[id]; ok {
			l.records[i] = l.records[i].Merge(rec)
			continue
		}
		l.index[id] = len(l.records)
		l.records = append(l.records, rec.Clone())
	}
}

func (l *listStore) apply(ev models.MutationEvent) bool {
	id := ev.Record.ID()
	if id == "" {
		return false
	}

	switch ev.Action {
	case models.ActionCreate, models.ActionUpdate:
		if i, ok := l.index[id]; ok {
			l.records[i] = l.records[i].Merge(ev.Record)
			return true
		}
		l.index[id] = len(l.records)
		l.records = append(l.records, ev.Record.Clone())
		return true

	case models.ActionDelete:
		i, ok := l.index[id]
		if !ok {
			return false
		}
		copy(l.records[i:], l.records[i+1:])
		l.records[len(l.records)-1] = nil
		l.records = l.records[:len(l.records)-1]
		delete(l.index, id)
		for j := i; j < len(l.records); j++ {
			l.index[l.records[j].ID()] = j
		}
		return true
	}
	return false
}

func (l *listStore) clear() {
	l.records = nil
	l.index = make(map[string]int)
}

func (l *listStore) size() int {
	return len(l.records)
}

func (l *listStore) snapshot() []models.Record {
	out := make([]models.Record, len(l.records))
	for i, rec := range l.records {
		out[i] = rec.Clone()
	}
	return out
}
