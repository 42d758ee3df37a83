package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/prudhvinik1/lansync/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	snapshotKeyPrefix = "snapshot:"
	snapshotIndexKey  = "snapshots:collections"
)

type RedisSnapshotRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSnapshotRepository stores snapshots with the given TTL; 0 keeps
// them until overwritten.
func NewRedisSnapshotRepository(client *redis.Client, ttl time.Duration) *RedisSnapshotRepository {
	return &RedisSnapshotRepository{client: client, ttl: ttl}
}

func (r *RedisSnapshotRepository) Save(ctx context.Context, snapshot *models.Snapshot) error {
	if snapshot.SavedAt.IsZero() {
		snapshot.SavedAt = time.Now()
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, snapshotKey(snapshot.Collection), data, r.ttl)
	pipe.SAdd(ctx, snapshotIndexKey, snapshot.Collection)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (r *RedisSnapshotRepository) Load(ctx context.Context, collection string) (*models.Snapshot, error) {
	data, err := r.client.Get(ctx, snapshotKey(collection)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var snapshot models.Snapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snapshot, nil
}

func (r *RedisSnapshotRepository) Delete(ctx context.Context, collection string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, snapshotKey(collection))
	pipe.SRem(ctx, snapshotIndexKey, collection)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// Collections lists stored snapshots, pruning index entries whose key has
// expired.
func (r *RedisSnapshotRepository) Collections(ctx context.Context) ([]string, error) {
	names, err := r.client.SMembers(ctx, snapshotIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	var live []string
	var expired []interface{}
	for _, name := range names {
		n, err := r.client.Exists(ctx, snapshotKey(name)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check snapshot %s: %w", name, err)
		}
		if n == 0 {
			expired = append(expired, name)
			continue
		}
		live = append(live, name)
	}

	if len(expired) > 0 {
		if err := r.client.SRem(ctx, snapshotIndexKey, expired...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune snapshot index: %w", err)
		}
	}
	sort.Strings(live)
	return live, nil
}

func snapshotKey(collection string) string {
	return snapshotKeyPrefix + collection
}
