// Package gateway implements the remote side of the cache on top of the
// query and stream connections: every call renders an FQL query, sends it
// and decodes the tagged result into documents and pages.
package gateway

import (
	"context"
	"fmt"

	"github.com/Etesie/fauna-typed/pkg/constants"
	"github.com/Etesie/fauna-typed/pkg/fql"
	"github.com/Etesie/fauna-typed/pkg/logger"
	"github.com/Etesie/fauna-typed/pkg/models"
)

// Querier runs one FQL query and returns its decoded result.
// *connection.HTTPConnection implements it.
type Querier interface {
	Query(ctx context.Context, fql string) (any, error)
}

// OnceQuerier runs a query without retrying it. Writes that are not safe
// to repeat go through it when the Querier offers it.
type OnceQuerier interface {
	QueryOnce(ctx context.Context, fql string) (any, error)
}

// Subscriber opens a change feed. *connection.StreamConnection implements
// it.
type Subscriber interface {
	Subscribe(ctx context.Context, query string) (<-chan models.Event, error)
}

type Option func(f *Fauna)

// WithPageSize sets the batch size of set queries.
func WithPageSize(n int) Option {
	return func(f *Fauna) {
		if n > 0 {
			f.pageSize = n
		}
	}
}

// WithStream enables Changes.
func WithStream(s Subscriber) Option {
	return func(f *Fauna) { f.stream = s }
}

func WithLogger(l logger.Logger) Option {
	return func(f *Fauna) { f.logger = l }
}

// Fauna is the remote gateway backed by the document service.
type Fauna struct {
	q        Querier
	stream   Subscriber
	pageSize int
	logger   logger.Logger
}

func New(q Querier, opts ...Option) *Fauna {
	f := &Fauna{q: q, pageSize: constants.DefaultPageSize, logger: logger.Nop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func target(coll models.Collection) fql.Coll {
	if coll.Named {
		return fql.FromNamed(coll.Name)
	}
	return fql.From(coll.Name)
}

func (f *Fauna) set(e fql.Expr) fql.Expr {
	if f.pageSize != constants.DefaultPageSize {
		return fql.PageSize(e, f.pageSize)
	}
	return e
}

func (f *Fauna) FetchAll(ctx context.Context, coll models.Collection) (models.Page, error) {
	return f.page(ctx, f.set(target(coll).All()))
}

func (f *Fauna) FetchWhere(ctx context.Context, coll models.Collection, pred fql.Predicate) (models.Page, error) {
	return f.page(ctx, f.set(target(coll).Where(pred)))
}

func (f *Fauna) Paginate(ctx context.Context, cursor string) (models.Page, error) {
	return f.page(ctx, fql.Paginate(cursor))
}

func (f *Fauna) FetchByID(ctx context.Context, coll models.Collection, id string) (models.Document, error) {
	return f.document(ctx, target(coll).ByID(id))
}

func (f *Fauna) FetchByName(ctx context.Context, coll models.Collection, name string) (models.Document, error) {
	return f.document(ctx, target(coll).ByName(name))
}

func (f *Fauna) First(ctx context.Context, coll models.Collection) (models.Document, error) {
	return f.document(ctx, target(coll).First())
}

func (f *Fauna) Last(ctx context.Context, coll models.Collection) (models.Document, error) {
	return f.document(ctx, target(coll).Last())
}

func (f *Fauna) FirstWhere(ctx context.Context, coll models.Collection, pred fql.Predicate) (models.Document, error) {
	return f.document(ctx, target(coll).FirstWhere(pred))
}

// Create sends doc's fields. A temporary id is not sent; the service
// assigns the real one. A create is never retried, since a lost response
// may hide a document that was created.
func (f *Fauna) Create(ctx context.Context, coll models.Collection, doc models.Document) (models.Document, error) {
	obj := fql.CreateObject(coll, doc.ID, doc.TTL, doc.Data)
	query := target(coll).Create(obj).FQL()
	var res any
	var err error
	if once, ok := f.q.(OnceQuerier); ok {
		res, err = once.QueryOnce(ctx, query)
	} else {
		res, err = f.q.Query(ctx, query)
	}
	if err != nil {
		return models.Document{}, err
	}
	return AsDocument(res)
}

// Update merges fields into the document identified by key. A "ttl" key
// updates the expiry.
func (f *Fauna) Update(ctx context.Context, coll models.Collection, key string, fields models.Fields) (models.Document, error) {
	_, ttl, hasTTL, data := models.SplitFields(fields)
	return f.document(ctx, target(coll).Update(key, fql.UpdateObject(coll, ttl, hasTTL, data)))
}

// Replace overwrites every declared field of the document identified by
// key.
func (f *Fauna) Replace(ctx context.Context, coll models.Collection, key string, fields models.Fields) (models.Document, error) {
	_, ttl, _, data := models.SplitFields(fields)
	return f.document(ctx, target(coll).Replace(key, fql.ReplaceObject(coll, ttl, data)))
}

func (f *Fauna) Delete(ctx context.Context, coll models.Collection, key string) error {
	_, err := f.q.Query(ctx, target(coll).Delete(key).FQL())
	return err
}

// Changes streams the events of the whole collection.
func (f *Fauna) Changes(ctx context.Context, coll models.Collection) (<-chan models.Event, error) {
	if f.stream == nil {
		return nil, fmt.Errorf("%w: no stream connection configured", constants.ErrNoChangeFeed)
	}
	return f.stream.Subscribe(ctx, target(coll).All().FQL()+".eventSource()")
}

func (f *Fauna) page(ctx context.Context, e fql.Expr) (models.Page, error) {
	res, err := f.q.Query(ctx, e.FQL())
	if err != nil {
		return models.Page{}, err
	}
	return AsPage(res)
}

func (f *Fauna) document(ctx context.Context, e fql.Expr) (models.Document, error) {
	res, err := f.q.Query(ctx, e.FQL())
	if err != nil {
		return models.Document{}, err
	}
	return AsDocument(res)
}

// AsPage interprets a query result as a page of documents.
func AsPage(v any) (models.Page, error) {
	switch t := v.(type) {
	case models.Page:
		return t, nil
	case models.Document:
		return models.Page{Data: []models.Document{t}}, nil
	case nil:
		return models.Page{}, nil
	case []any:
		page := models.Page{Data: make([]models.Document, 0, len(t))}
		for _, e := range t {
			doc, ok := e.(models.Document)
			if !ok {
				return models.Page{}, fmt.Errorf("%w: set element is %T", constants.ErrMalformed, e)
			}
			page.Data = append(page.Data, doc)
		}
		return page, nil
	}
	return models.Page{}, fmt.Errorf("%w: expected a set, got %T", constants.ErrMalformed, v)
}

// AsDocument interprets a query result as a single document. Null results
// and null documents are constants.ErrNotFound.
func AsDocument(v any) (models.Document, error) {
	switch t := v.(type) {
	case models.Document:
		return t, nil
	case models.NullDocument:
		return models.Document{}, fmt.Errorf("%w: %s: %s", constants.ErrNotFound, t.Ref, t.Cause)
	case nil:
		return models.Document{}, constants.ErrNotFound
	}
	return models.Document{}, fmt.Errorf("%w: expected a document, got %T", constants.ErrMalformed, v)
}
