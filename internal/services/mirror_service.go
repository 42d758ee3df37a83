package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/prudhvinik1/lansync/internal/livesync"
	"github.com/prudhvinik1/lansync/internal/logger"
	"github.com/prudhvinik1/lansync/internal/models"
	"github.com/prudhvinik1/lansync/internal/repositories"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrUnknownCollection = errors.New("collection is not mirrored")
	ErrJournalDisabled   = errors.New("journal is not configured")
)

const (
	journalBuffer       = 256
	journalWriteTimeout = 5 * time.Second
	defaultJournalLimit = 100
)

type MirrorConfig struct {
	Collections []string
	// Filters maps a collection to a PocketBase filter expression.
	Filters             map[string]string
	PageSize            int
	FetchAll            bool
	ResubscribeInterval time.Duration
}

// MirrorService keeps one CollectionSync per configured collection and
// persists what they hold: a snapshot after every settled change and one
// journal entry per applied event.
type MirrorService struct {
	cfg       MirrorConfig
	snapshots repositories.SnapshotRepository
	journal   repositories.JournalRepository
	auth      Authenticator
	log       *zap.Logger

	engines   map[string]*livesync.CollectionSync
	journalCh chan *models.JournalEntry
	quit      chan struct{}
}

// NewMirrorService wires the engines. journal and auth may be nil.
func NewMirrorService(
	remote livesync.Remote,
	snapshots repositories.SnapshotRepository,
	journal repositories.JournalRepository,
	auth Authenticator,
	cfg MirrorConfig,
) *MirrorService {
	if cfg.ResubscribeInterval <= 0 {
		cfg.ResubscribeInterval = 5 * time.Second
	}
	s := &MirrorService{
		cfg:       cfg,
		snapshots: snapshots,
		journal:   journal,
		auth:      auth,
		log:       logger.Named("mirror"),
		engines:   make(map[string]*livesync.CollectionSync, len(cfg.Collections)),
		journalCh: make(chan *models.JournalEntry, journalBuffer),
		quit:      make(chan struct{}),
	}

	for _, name := range cfg.Collections {
		opts := livesync.Options{
			Query: livesync.Query{
				Filter:  cfg.Filters[name],
				PerPage: cfg.PageSize,
				All:     cfg.FetchAll,
			},
			Logger: s.log.Named(name),
		}
		if journal != nil {
			opts.OnEvent = s.journalHook(name)
		}
		s.engines[name] = livesync.NewCollectionSync(remote, name, opts)
	}
	return s
}

// Run starts every engine and blocks until ctx is done, then stops them.
// It fails early only if the first upstream authentication fails. Run must
// be called at most once.
func (s *MirrorService) Run(ctx context.Context) error {
	if err := s.ensureAuth(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range s.cfg.Collections {
		eng := s.engines[name]
		eng.Start(gctx)
		g.Go(func() error {
			s.persist(gctx, eng)
			return nil
		})
	}
	if s.journal != nil {
		g.Go(func() error {
			s.writeJournal()
			return nil
		})
	}
	g.Go(func() error {
		s.supervise(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		for _, eng := range s.engines {
			eng.Stop()
		}
		close(s.quit)
		return nil
	})

	s.log.Info("mirror running", zap.Strings("collections", s.cfg.Collections))
	err := g.Wait()
	s.log.Info("mirror stopped")
	return err
}

func (s *MirrorService) Collections() []string {
	out := make([]string, len(s.cfg.Collections))
	copy(out, s.cfg.Collections)
	return out
}

func (s *MirrorService) Engine(collection string) (*livesync.CollectionSync, error) {
	eng, ok := s.engines[collection]
	if !ok {
		return nil, ErrUnknownCollection
	}
	return eng, nil
}

func (s *MirrorService) View(collection string) (livesync.View, error) {
	eng, err := s.Engine(collection)
	if err != nil {
		return livesync.View{}, err
	}
	return eng.View(), nil
}

// Record looks one record up in the live view.
func (s *MirrorService) Record(collection, id string) (models.Record, bool, error) {
	eng, err := s.Engine(collection)
	if err != nil {
		return nil, false, err
	}
	rec, ok := eng.Record(id)
	return rec, ok, nil
}

// Snapshot returns the last persisted snapshot, which outlives the engine
// across restarts.
func (s *MirrorService) Snapshot(ctx context.Context, collection string) (*models.Snapshot, error) {
	if _, err := s.Engine(collection); err != nil {
		return nil, err
	}
	return s.snapshots.Load(ctx, collection)
}

func (s *MirrorService) Journal(ctx context.Context, collection string, since int64, limit int) ([]*models.JournalEntry, error) {
	if _, err := s.Engine(collection); err != nil {
		return nil, err
	}
	if s.journal == nil {
		return nil, ErrJournalDisabled
	}
	if limit <= 0 {
		limit = defaultJournalLimit
	}
	return s.journal.ListSince(ctx, collection, since, limit)
}

func (s *MirrorService) ensureAuth(ctx context.Context) error {
	if s.auth == nil {
		return nil
	}
	return s.auth.Ensure(ctx)
}

// persist saves a snapshot whenever the engine settles on new data.
// Snapshots are not written while a fetch is outstanding or after a
// failure, so the last good one survives.
func (s *MirrorService) persist(ctx context.Context, eng *livesync.CollectionSync) {
	log := s.log.With(logger.Collection(eng.Collection()))
	for {
		select {
		case <-ctx.Done():
			return
		case <-eng.Changes():
		}

		v := eng.View()
		if v.Loading || v.Err != nil || v.State == livesync.Stopped {
			continue
		}
		snap := &models.Snapshot{
			Collection: eng.Collection(),
			Records:    v.Records,
			SavedAt:    time.Now(),
		}
		if err := s.snapshots.Save(ctx, snap); err != nil && ctx.Err() == nil {
			log.Warn("failed to save snapshot", zap.Error(err))
		}
	}
}

// supervise restarts engines whose subscription dropped and refetches
// those whose last fetch failed.
func (s *MirrorService) supervise(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ResubscribeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, name := range s.cfg.Collections {
			eng := s.engines[name]
			if eng.State() != livesync.Errored {
				continue
			}
			if err := s.ensureAuth(ctx); err != nil {
				s.log.Warn("pocketbase re-authentication failed", zap.Error(err))
				break
			}
			if ctx.Err() != nil {
				return
			}
			if !eng.Subscribed() {
				s.log.Info("resubscribing", logger.Collection(name), zap.Error(eng.Err()))
				eng.Start(ctx)
				continue
			}
			if err := eng.Refresh(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("refresh failed", logger.Collection(name), zap.Error(err))
			}
		}
	}
}

func (s *MirrorService) journalHook(collection string) func(models.MutationEvent) {
	return func(ev models.MutationEvent) {
		payload, err := json.Marshal(ev.Record)
		if err != nil {
			s.log.Warn("failed to encode journal payload", logger.Collection(collection), zap.Error(err))
			return
		}
		entry := &models.JournalEntry{
			Collection: collection,
			RecordID:   ev.Record.ID(),
			Action:     ev.Action,
			Payload:    payload,
		}
		select {
		case s.journalCh <- entry:
		case <-s.quit:
		}
	}
}

// writeJournal drains journalCh until quit, then flushes what is buffered.
func (s *MirrorService) writeJournal() {
	for {
		select {
		case entry := <-s.journalCh:
			s.appendEntry(entry)
		case <-s.quit:
			for {
				select {
				case entry := <-s.journalCh:
					s.appendEntry(entry)
				default:
					return
				}
			}
		}
	}
}

func (s *MirrorService) appendEntry(entry *models.JournalEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
	defer cancel()
	if err := s.journal.Append(ctx, entry); err != nil {
		s.log.Warn("failed to append journal entry",
			logger.Collection(entry.Collection),
			logger.RecordID(entry.RecordID),
			zap.Error(err),
		)
	}
}
