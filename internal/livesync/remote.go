package livesync

import (
	"context"
	"errors"

	"github.com/prudhvinik1/lansync/internal/models"
	"github.com/prudhvinik1/lansync/internal/pocketbase"
)

// TopicAll subscribes to every record of a collection.
const TopicAll = "*"

var ErrRecordNotFound = errors.New("livesync: record not found")

// Stream is one open push channel. Events must be delivered in arrival
// order and the channel closed once the stream ends or Close is called.
type Stream interface {
	Events() <-chan models.MutationEvent
	Close() error
}

// Remote is the backend the engines read from.
type Remote interface {
	FetchList(ctx context.Context, collection string, q Query) ([]models.Record, error)
	// FetchOne returns ErrRecordNotFound when the record does not exist.
	FetchOne(ctx context.Context, collection, id, expand string) (models.Record, error)
	Subscribe(ctx context.Context, collection, topic string) (Stream, error)
}

// Query is passed to the backend verbatim; the engines never filter locally.
type Query struct {
	Filter  string
	Sort    string
	Expand  string
	Page    int
	PerPage int
	// All fetches every page instead of just Page.
	All bool
}

type PocketBaseRemote struct {
	client *pocketbase.Client
}

func NewPocketBaseRemote(client *pocketbase.Client) *PocketBaseRemote {
	return &PocketBaseRemote{client: client}
}

func (r *PocketBaseRemote) FetchList(ctx context.Context, collection string, q Query) ([]models.Record, error) {
	opts := pocketbase.ListOptions{
		Page:    q.Page,
		PerPage: q.PerPage,
		Filter:  q.Filter,
		Sort:    q.Sort,
		Expand:  q.Expand,
	}
	if q.All {
		return r.client.FullList(ctx, collection, opts)
	}
	res, err := r.client.ListRecords(ctx, collection, opts)
	if err != nil {
		return nil, err
	}
	return res.Items, nil
}

func (r *PocketBaseRemote) FetchOne(ctx context.Context, collection, id, expand string) (models.Record, error) {
	rec, err := r.client.GetRecord(ctx, collection, id, expand)
	if errors.Is(err, pocketbase.ErrNotFound) {
		return nil, ErrRecordNotFound
	}
	return rec, err
}

func (r *PocketBaseRemote) Subscribe(ctx context.Context, collection, topic string) (Stream, error) {
	sub, err := r.client.Subscribe(ctx, collection, topic)
	if err != nil {
		return nil, err
	}
	return sub, nil
}
