package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/lansync/internal/models"
)

const DefaultJournalPageSize = 100

type PostgresJournalRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresJournalRepository(pool *pgxpool.Pool) *PostgresJournalRepository {
	return &PostgresJournalRepository{pool: pool}
}

// Append stores the entry with the next sequence number of its collection.
// On success entry.ID, SequenceNumber and CreatedAt are populated.
func (r *PostgresJournalRepository) Append(ctx context.Context, entry *models.JournalEntry) error {
	query := `INSERT INTO mutation_journal (collection, record_id, action, sequence_number, payload)
	          SELECT $1, $2, $3, COALESCE(MAX(sequence_number), 0) + 1, $4
	          FROM mutation_journal
	          WHERE collection = $1
	          RETURNING id, sequence_number, created_at`

	err := r.pool.QueryRow(ctx, query,
		entry.Collection,
		entry.RecordID,
		string(entry.Action),
		[]byte(entry.Payload),
	).Scan(&entry.ID, &entry.SequenceNumber, &entry.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}
	return nil
}

// ListSince returns entries with a sequence number greater than
// sequenceNumber, oldest first.
func (r *PostgresJournalRepository) ListSince(ctx context.Context, collection string, sequenceNumber int64, limit int) ([]*models.JournalEntry, error) {
	if limit <= 0 {
		limit = DefaultJournalPageSize
	}
	query := `SELECT id, collection, record_id, action, sequence_number, payload, created_at
	          FROM mutation_journal
	          WHERE collection = $1 AND sequence_number > $2
	          ORDER BY sequence_number ASC
	          LIMIT $3`

	rows, err := r.pool.Query(ctx, query, collection, sequenceNumber, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []*models.JournalEntry
	for rows.Next() {
		var entry models.JournalEntry
		var action string
		var payload []byte
		err := rows.Scan(
			&entry.ID,
			&entry.Collection,
			&entry.RecordID,
			&action,
			&entry.SequenceNumber,
			&payload,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entry.Action = models.Action(action)
		entry.Payload = payload
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal: %w", err)
	}
	return entries, nil
}

func (r *PostgresJournalRepository) LatestSequence(ctx context.Context, collection string) (int64, error) {
	query := `SELECT sequence_number FROM mutation_journal
	          WHERE collection = $1
	          ORDER BY sequence_number DESC
	          LIMIT 1`

	var seq int64
	err := r.pool.QueryRow(ctx, query, collection).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get latest sequence: %w", err)
	}
	return seq, nil
}
