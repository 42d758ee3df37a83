package pocketbase

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/prudhvinik1/lansync/internal/models"
)

const (
	DefaultPerPage = 30
	// MaxPerPage is the largest page size FullList asks for.
	MaxPerPage = 500
)

type ListOptions struct {
	Page      int
	PerPage   int
	Filter    string
	Sort      string
	Expand    string
	SkipTotal bool
}

func (o ListOptions) values() url.Values {
	q := url.Values{}
	page, perPage := o.Page, o.PerPage
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("perPage", strconv.Itoa(perPage))
	if o.Filter != "" {
		q.Set("filter", o.Filter)
	}
	if o.Sort != "" {
		q.Set("sort", o.Sort)
	}
	if o.Expand != "" {
		q.Set("expand", o.Expand)
	}
	if o.SkipTotal {
		q.Set("skipTotal", "1")
	}
	return q
}

type ListResult struct {
	Page       int             `json:"page"`
	PerPage    int             `json:"perPage"`
	TotalItems int             `json:"totalItems"`
	TotalPages int             `json:"totalPages"`
	Items      []models.Record `json:"items"`
}

func (c *Client) ListRecords(ctx context.Context, collection string, opts ListOptions) (*ListResult, error) {
	var out ListResult
	if err := c.do(ctx, http.MethodGet, collectionPath(collection)+"/records", opts.values(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FullList walks every page for the given filter. Page in opts is ignored.
func (c *Client) FullList(ctx context.Context, collection string, opts ListOptions) ([]models.Record, error) {
	if opts.PerPage <= 0 || opts.PerPage > MaxPerPage {
		opts.PerPage = MaxPerPage
	}
	opts.SkipTotal = true

	var all []models.Record
	for page := 1; ; page++ {
		opts.Page = page
		res, err := c.ListRecords(ctx, collection, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, res.Items...)
		if len(res.Items) < opts.PerPage {
			break
		}
	}
	return all, nil
}

func (c *Client) GetRecord(ctx context.Context, collection, id, expand string) (models.Record, error) {
	q := url.Values{}
	if expand != "" {
		q.Set("expand", expand)
	}
	var out models.Record
	path := collectionPath(collection) + "/records/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodGet, path, q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateRecord(ctx context.Context, collection string, data models.Record) (models.Record, error) {
	var out models.Record
	if err := c.do(ctx, http.MethodPost, collectionPath(collection)+"/records", nil, data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpdateRecord(ctx context.Context, collection, id string, data models.Record) (models.Record, error) {
	var out models.Record
	path := collectionPath(collection) + "/records/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodPatch, path, nil, data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeleteRecord(ctx context.Context, collection, id string) error {
	path := collectionPath(collection) + "/records/" + url.PathEscape(id)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}
