package repositories

import (
	"context"
	"errors"

	"github.com/prudhvinik1/lansync/internal/models"
)

var ErrNotFound = errors.New("not found")

type SnapshotRepository interface {
	Save(ctx context.Context, snapshot *models.Snapshot) error
	Load(ctx context.Context, collection string) (*models.Snapshot, error)
	Delete(ctx context.Context, collection string) error
	Collections(ctx context.Context) ([]string, error)
}

type JournalRepository interface {
	Append(ctx context.Context, entry *models.JournalEntry) error
	ListSince(ctx context.Context, collection string, sequenceNumber int64, limit int) ([]*models.JournalEntry, error)
	LatestSequence(ctx context.Context, collection string) (int64, error)
}
