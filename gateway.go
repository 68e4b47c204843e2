package faunatyped

import (
	"context"

	"github.com/Etesie/fauna-typed/pkg/fql"
	"github.com/Etesie/fauna-typed/pkg/models"
)

// Gateway is the remote side of the cache. Lookups of a missing document
// return an error matching constants.ErrNotFound; retryable failures match
// constants.ErrTransient. [gateway.Fauna] implements it.
//
// [gateway.Fauna]: https://pkg.go.dev/github.com/Etesie/fauna-typed/pkg/gateway#Fauna
type Gateway interface {
	FetchAll(ctx context.Context, coll models.Collection) (models.Page, error)
	FetchByID(ctx context.Context, coll models.Collection, id string) (models.Document, error)
	FetchByName(ctx context.Context, coll models.Collection, name string) (models.Document, error)
	FetchWhere(ctx context.Context, coll models.Collection, pred fql.Predicate) (models.Page, error)
	First(ctx context.Context, coll models.Collection) (models.Document, error)
	Last(ctx context.Context, coll models.Collection) (models.Document, error)
	FirstWhere(ctx context.Context, coll models.Collection, pred fql.Predicate) (models.Document, error)

	Create(ctx context.Context, coll models.Collection, doc models.Document) (models.Document, error)
	Update(ctx context.Context, coll models.Collection, key string, fields models.Fields) (models.Document, error)
	Replace(ctx context.Context, coll models.Collection, key string, fields models.Fields) (models.Document, error)
	Delete(ctx context.Context, coll models.Collection, key string) error

	Paginate(ctx context.Context, cursor string) (models.Page, error)
}

// ChangeFeed is implemented by gateways that can stream collection
// changes. The channel is closed or abandoned when ctx ends.
type ChangeFeed interface {
	Changes(ctx context.Context, coll models.Collection) (<-chan models.Event, error)
}

// Persistence stores the contents of one collection under one key. Get
// reports false when nothing was stored.
type Persistence interface {
	Set(ctx context.Context, key string, docs []models.Document) error
	Get(ctx context.Context, key string) ([]models.Document, bool, error)
	Remove(ctx context.Context, key string) error
}
