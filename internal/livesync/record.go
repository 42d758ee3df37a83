package livesync

import (
	"context"
	"errors"

	"github.com/prudhvinik1/lansync/internal/models"
)

// RecordSync mirrors a single record. An engine built with an empty id is
// inert: Start and Refresh do nothing and the record stays absent.
type RecordSync struct {
	*engine[models.Record]
	id  string
	rec *recordStore
}

type RecordView struct {
	// Record is nil while absent: not fetched yet, missing on the server or
	// deleted.
	Record  models.Record
	Loading bool
	Err     error
	State   State
}

// NewRecordSync only honors Expand from opts.Query.
func NewRecordSync(remote Remote, collection, id string, opts Options) *RecordSync {
	rec := &recordStore{id: id}
	e := newEngine[models.Record](remote, collection, id, rec, opts)
	expand := opts.Query.Expand
	e.fetch = func(ctx context.Context) (models.Record, error) {
		r, err := remote.FetchOne(ctx, collection, id, expand)
		if errors.Is(err, ErrRecordNotFound) {
			return nil, nil
		}
		return r, err
	}
	return &RecordSync{engine: e, id: id, rec: rec}
}

func (s *RecordSync) ID() string {
	return s.id
}

func (s *RecordSync) Start(ctx context.Context) {
	if s.id == "" {
		return
	}
	s.engine.Start(ctx)
}

func (s *RecordSync) Refresh(ctx context.Context) error {
	if s.id == "" {
		return nil
	}
	return s.engine.Refresh(ctx)
}

func (s *RecordSync) View() RecordView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return RecordView{
		Record:  s.rec.record.Clone(),
		Loading: s.loading,
		Err:     s.errLocked(),
		State:   s.state,
	}
}

func (s *RecordSync) Record() (models.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.record.Clone(), s.rec.record != nil
}

type recordStore struct {
	id     string
	record models.Record
}

func (r *recordStore) replace(rec models.Record) {
	r.record = rec.Clone()
}

// apply ignores creates; a record is created exactly once and an engine
// only exists for an id that is already known.
func (r *recordStore) apply(ev models.MutationEvent) bool {
	if r.id == "" || ev.Record.ID() != r.id {
		return false
	}
	switch ev.Action {
	case models.ActionUpdate:
		r.record = r.record.Merge(ev.Record)
		return true
	case models.ActionDelete:
		if r.record == nil {
			return false
		}
		r.record = nil
		return true
	}
	return false
}

func (r *recordStore) clear() {
	r.record = nil
}

func (r *recordStore) size() int {
	if r.record == nil {
		return 0
	}
	return 1
}
