package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/prudhvinik1/lansync/internal/models"
)

// MemorySnapshotRepository keeps snapshots in process. Used when no Redis
// is configured and in tests.
type MemorySnapshotRepository struct {
	c   *gocache.Cache
	ttl time.Duration
}

func NewMemorySnapshotRepository(ttl time.Duration) *MemorySnapshotRepository {
	return &MemorySnapshotRepository{
		c:   gocache.New(gocache.NoExpiration, time.Minute),
		ttl: ttl,
	}
}

func (r *MemorySnapshotRepository) Save(ctx context.Context, snapshot *models.Snapshot) error {
	if snapshot.SavedAt.IsZero() {
		snapshot.SavedAt = time.Now()
	}
	// Stored encoded so callers never share maps with the cache.
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	ttl := r.ttl
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	r.c.Set(snapshotKey(snapshot.Collection), data, ttl)
	return nil
}

func (r *MemorySnapshotRepository) Load(ctx context.Context, collection string) (*models.Snapshot, error) {
	v, ok := r.c.Get(snapshotKey(collection))
	if !ok {
		return nil, ErrNotFound
	}

	var snapshot models.Snapshot
	if err := json.Unmarshal(v.([]byte), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snapshot, nil
}

func (r *MemorySnapshotRepository) Delete(ctx context.Context, collection string) error {
	r.c.Delete(snapshotKey(collection))
	return nil
}

func (r *MemorySnapshotRepository) Collections(ctx context.Context) ([]string, error) {
	var names []string
	for key := range r.c.Items() {
		if name, ok := strings.CutPrefix(key, snapshotKeyPrefix); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
