package faunatyped

import (
	"context"
	"slices"

	"github.com/Etesie/fauna-typed/pkg/fql"
	"github.com/Etesie/fauna-typed/pkg/models"
)

// Page is one batch of documents with a lazily fetched continuation.
type Page struct {
	Data []*Handle

	store *Store
	link  *link
}

// link is the continuation shared by a page and its reorderings.
type link struct {
	ready  chan struct{}
	cursor string

	mu   chan struct{}
	next *Page
}

func newLink() *link {
	l := &link{ready: make(chan struct{}), mu: make(chan struct{}, 1)}
	return l
}

func resolvedLink(cursor string) *link {
	l := newLink()
	l.resolve(cursor)
	return l
}

func (l *link) resolve(cursor string) {
	l.cursor = cursor
	close(l.ready)
}

func (l *link) lock(ctx context.Context) bool {
	select {
	case l.mu <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (l *link) unlock() { <-l.mu }

// After returns the next page. The first call fetches it and later calls
// return the same page. It returns nil when there are no further pages,
// when the fetch fails, or when ctx ends first; a failed fetch is tried
// again on the next call.
func (p *Page) After(ctx context.Context) *Page {
	if p == nil || p.link == nil {
		return nil
	}
	select {
	case <-p.link.ready:
	case <-ctx.Done():
		return nil
	}
	if p.link.cursor == "" {
		return nil
	}
	if !p.link.lock(ctx) {
		return nil
	}
	defer p.link.unlock()
	if p.link.next == nil {
		p.link.next = p.store.Paginate(ctx, p.link.cursor)
	}
	return p.link.next
}

// Docs returns copies of the page's current documents. Documents removed
// since the page was built are left out.
func (p *Page) Docs() []models.Document {
	out := make([]models.Document, 0, len(p.Data))
	for _, h := range p.Data {
		if d, ok := h.Doc(); ok {
			out = append(out, d)
		}
	}
	return out
}

// Keys returns the keys of the page's documents in page order.
func (p *Page) Keys() []string {
	out := make([]string, len(p.Data))
	for i, h := range p.Data {
		out[i] = h.Key()
	}
	return out
}

func (p *Page) Len() int { return len(p.Data) }

// Ordering compares two documents; the first ordering of Order that
// returns non-zero decides.
type Ordering func(a, b models.Document) int

// Asc orders by a field, ascending. Fields may be dotted paths.
func Asc(field string) Ordering {
	return AscBy(func(d models.Document) any {
		v, _ := fql.Lookup(d, field)
		return v
	})
}

func Desc(field string) Ordering {
	return DescBy(func(d models.Document) any {
		v, _ := fql.Lookup(d, field)
		return v
	})
}

// AscBy orders by a derived value, ascending.
func AscBy(value func(models.Document) any) Ordering {
	return func(a, b models.Document) int {
		return models.CompareValues(value(a), value(b))
	}
}

func DescBy(value func(models.Document) any) Ordering {
	return func(a, b models.Document) int {
		return models.CompareValues(value(b), value(a))
	}
}

// Order returns a page with the same continuation whose Data is stably
// sorted by orderings. The store's own order is untouched.
func (p *Page) Order(orderings ...Ordering) *Page {
	type row struct {
		h   *Handle
		doc models.Document
	}
	rows := make([]row, len(p.Data))
	for i, h := range p.Data {
		d, _ := h.store.current(h.key)
		rows[i] = row{h, d}
	}
	slices.SortStableFunc(rows, func(a, b row) int {
		for _, o := range orderings {
			if c := o(a.doc, b.doc); c != 0 {
				return c
			}
		}
		return 0
	})
	out := &Page{Data: make([]*Handle, len(rows)), store: p.store, link: p.link}
	for i, r := range rows {
		out.Data[i] = r.h
	}
	return out
}

// All returns up to a page of cached documents at once and loads the
// first remote batch in the background. After waits for that batch to learn its cursor.
func (st *Store) All(ctx context.Context) *Page {
	def := st.Definition()
	return st.localPage(ctx, nil, func(ctx context.Context) (models.Page, error) {
		return st.stores.gw.FetchAll(ctx, def)
	})
}

// Where is All restricted to documents matching pred, both locally and
// remotely.
func (st *Store) Where(ctx context.Context, pred fql.Predicate) *Page {
	def := st.Definition()
	return st.localPage(ctx, pred, func(ctx context.Context) (models.Page, error) {
		return st.stores.gw.FetchWhere(ctx, def, pred)
	})
}

func (st *Store) localPage(ctx context.Context, pred fql.Predicate, fetch func(ctx context.Context) (models.Page, error)) *Page {
	def := st.Definition()
	local := st.Query(pred)
	if n := st.stores.pageSize; len(local) > n {
		local = local[:n]
	}
	page := &Page{Data: local, store: st, link: newLink()}
	st.goRemote(ctx, func(ctx context.Context) {
		res, err := fetch(ctx)
		if err != nil {
			st.warn("fetch failed", "error", err)
			page.link.resolve("")
			return
		}
		st.reconcileFetched(def, res.Data)
		page.link.resolve(res.After)
	})
	return page
}

// Paginate fetches the page a cursor points at and reconciles its
// documents. It returns nil when the fetch fails.
func (st *Store) Paginate(ctx context.Context, cursor string) *Page {
	def := st.Definition()
	res, err := st.stores.gw.Paginate(ctx, cursor)
	if err != nil {
		st.warn("paginate failed", "error", err)
		return nil
	}
	keys := st.reconcileFetched(def, res.Data)
	page := &Page{Data: make([]*Handle, len(keys)), store: st, link: resolvedLink(res.After)}
	for i, k := range keys {
		page.Data[i] = st.handle(k)
	}
	return page
}
