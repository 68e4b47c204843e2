// Package mock is an in-memory stand-in for the remote document service.
// It records every call, serves pages through opaque cursors and lets
// tests inject failures, hold calls in flight and push change events.
package mock

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/Etesie/fauna-typed/pkg/constants"
	"github.com/Etesie/fauna-typed/pkg/fql"
	"github.com/Etesie/fauna-typed/pkg/models"
)

// Method names recorded in Call.
const (
	MethodFetchAll    = "FetchAll"
	MethodFetchByID   = "FetchByID"
	MethodFetchByName = "FetchByName"
	MethodFetchWhere  = "FetchWhere"
	MethodFirst       = "First"
	MethodLast        = "Last"
	MethodFirstWhere  = "FirstWhere"
	MethodCreate      = "Create"
	MethodUpdate      = "Update"
	MethodReplace     = "Replace"
	MethodDelete      = "Delete"
	MethodPaginate    = "Paginate"
)

// Call is one recorded gateway invocation.
type Call struct {
	Method string
	Coll   string
	Key    string
	Fields models.Fields
	Doc    models.Document
}

type cursor struct {
	coll   string
	pred   fql.Predicate
	offset int
}

type failure struct {
	err   error
	count int // remaining, negative means forever
}

// Gateway implements the remote gateway and change feed contracts over
// in-memory collections.
type Gateway struct {
	mu       sync.Mutex
	colls    map[string][]models.Document
	named    map[string]bool
	calls    []Call
	cursors  map[string]cursor
	failures map[string]*failure
	holds    map[string]chan struct{}
	feeds    map[string][]chan models.Event
	nextID   int
	nextCur  int
	pageSize int
	latency  time.Duration
}

func New() *Gateway {
	return &Gateway{
		colls:    map[string][]models.Document{},
		named:    map[string]bool{},
		cursors:  map[string]cursor{},
		failures: map[string]*failure{},
		holds:    map[string]chan struct{}{},
		feeds:    map[string][]chan models.Event{},
		nextID:   1000,
		pageSize: constants.DefaultPageSize,
	}
}

// SetPageSize changes the size of served pages.
func (g *Gateway) SetPageSize(n int) {
	g.mu.Lock()
	g.pageSize = n
	g.mu.Unlock()
}

// SetLatency delays every call by d.
func (g *Gateway) SetLatency(d time.Duration) {
	g.mu.Lock()
	g.latency = d
	g.mu.Unlock()
}

// Seed stores docs as the remote contents of coll, replacing documents
// with the same key.
func (g *Gateway) Seed(coll string, docs ...models.Document) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, d := range docs {
		d = d.Clone()
		d.Coll = models.Module{Name: coll}
		if d.TS.IsZero() {
			d.TS = models.Now()
		}
		g.put(coll, d)
	}
}

// SeedNamed is Seed for a collection identified by name.
func (g *Gateway) SeedNamed(coll string, docs ...models.Document) {
	g.mu.Lock()
	g.named[coll] = true
	g.mu.Unlock()
	g.Seed(coll, docs...)
}

// Remote returns a copy of the remote document stored under key.
func (g *Gateway) Remote(coll, key string) (models.Document, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.find(coll, key)
	if i < 0 {
		return models.Document{}, false
	}
	return g.colls[coll][i].Clone(), true
}

// Count returns the number of remote documents in coll.
func (g *Gateway) Count(coll string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.colls[coll])
}

// Fail makes the next count calls of method return err. A negative count
// fails every call until Heal.
func (g *Gateway) Fail(method string, err error, count int) {
	g.mu.Lock()
	g.failures[method] = &failure{err: err, count: count}
	g.mu.Unlock()
}

func (g *Gateway) Heal(method string) {
	g.mu.Lock()
	delete(g.failures, method)
	g.mu.Unlock()
}

// Hold blocks calls of method after they are recorded and before they
// are applied, until the returned release function is called.
func (g *Gateway) Hold(method string) (release func()) {
	ch := make(chan struct{})
	g.mu.Lock()
	g.holds[method] = ch
	g.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			if g.holds[method] == ch {
				delete(g.holds, method)
			}
			g.mu.Unlock()
			close(ch)
		})
	}
}

// Calls returns the recorded calls, optionally filtered by method.
func (g *Gateway) Calls(methods ...string) []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(methods) == 0 {
		return append([]Call(nil), g.calls...)
	}
	var out []Call
	for _, c := range g.calls {
		for _, m := range methods {
			if c.Method == m {
				out = append(out, c)
			}
		}
	}
	return out
}

// WaitCalls blocks until at least n calls of method were recorded.
func (g *Gateway) WaitCalls(method string, n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(g.Calls(method)) >= n {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return false
}

// Emit sends ev to every change feed open on coll.
func (g *Gateway) Emit(coll string, ev models.Event) {
	g.mu.Lock()
	feeds := append([]chan models.Event(nil), g.feeds[coll]...)
	g.mu.Unlock()
	for _, ch := range feeds {
		ch <- ev
	}
}

// Feeds returns the number of open change feeds on coll.
func (g *Gateway) Feeds(coll string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.feeds[coll])
}

func (g *Gateway) begin(ctx context.Context, c Call) error {
	g.mu.Lock()
	g.calls = append(g.calls, c)
	latency := g.latency
	hold := g.holds[c.Method]
	var err error
	if f, ok := g.failures[c.Method]; ok {
		err = f.err
		if f.count > 0 {
			f.count--
			if f.count == 0 {
				delete(g.failures, c.Method)
			}
		}
	}
	g.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (g *Gateway) isNamed(coll models.Collection) bool {
	return coll.Named || g.named[coll.Name]
}

func (g *Gateway) key(coll string, d models.Document) string {
	return d.Key(g.named[coll])
}

func (g *Gateway) find(coll, key string) int {
	for i, d := range g.colls[coll] {
		if g.key(coll, d) == key {
			return i
		}
	}
	return -1
}

func (g *Gateway) put(coll string, d models.Document) {
	if i := g.find(coll, g.key(coll, d)); i >= 0 {
		g.colls[coll][i] = d
		return
	}
	g.colls[coll] = append(g.colls[coll], d)
}

func (g *Gateway) register(coll models.Collection) {
	if coll.Named {
		g.named[coll.Name] = true
	}
}

func (g *Gateway) FetchAll(ctx context.Context, coll models.Collection) (models.Page, error) {
	if err := g.begin(ctx, Call{Method: MethodFetchAll, Coll: coll.Name}); err != nil {
		return models.Page{}, err
	}
	return g.page(cursor{coll: coll.Name}), nil
}

func (g *Gateway) FetchWhere(ctx context.Context, coll models.Collection, pred fql.Predicate) (models.Page, error) {
	if err := g.begin(ctx, Call{Method: MethodFetchWhere, Coll: coll.Name, Key: pred.Cond("doc")}); err != nil {
		return models.Page{}, err
	}
	return g.page(cursor{coll: coll.Name, pred: pred}), nil
}

func (g *Gateway) Paginate(ctx context.Context, after string) (models.Page, error) {
	if err := g.begin(ctx, Call{Method: MethodPaginate, Key: after}); err != nil {
		return models.Page{}, err
	}
	g.mu.Lock()
	c, ok := g.cursors[after]
	g.mu.Unlock()
	if !ok {
		return models.Page{}, fmt.Errorf("%w: unknown cursor %q", constants.ErrNotFound, after)
	}
	return g.page(c), nil
}

func (g *Gateway) page(c cursor) models.Page {
	g.mu.Lock()
	defer g.mu.Unlock()
	var matched []models.Document
	for _, d := range g.colls[c.coll] {
		if c.pred == nil || c.pred.Match(d) {
			matched = append(matched, d.Clone())
		}
	}
	end := min(c.offset+g.pageSize, len(matched))
	start := min(c.offset, end)
	page := models.Page{Data: matched[start:end]}
	if end < len(matched) {
		g.nextCur++
		token := "cursor-" + strconv.Itoa(g.nextCur)
		g.cursors[token] = cursor{coll: c.coll, pred: c.pred, offset: end}
		page.After = token
	}
	return page
}

func (g *Gateway) FetchByID(ctx context.Context, coll models.Collection, id string) (models.Document, error) {
	if err := g.begin(ctx, Call{Method: MethodFetchByID, Coll: coll.Name, Key: id}); err != nil {
		return models.Document{}, err
	}
	return g.lookup(coll.Name, id)
}

func (g *Gateway) FetchByName(ctx context.Context, coll models.Collection, name string) (models.Document, error) {
	if err := g.begin(ctx, Call{Method: MethodFetchByName, Coll: coll.Name, Key: name}); err != nil {
		return models.Document{}, err
	}
	return g.lookup(coll.Name, name)
}

func (g *Gateway) lookup(coll, key string) (models.Document, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.find(coll, key)
	if i < 0 {
		return models.Document{}, fmt.Errorf("%w: %s %s", constants.ErrNotFound, coll, key)
	}
	return g.colls[coll][i].Clone(), nil
}

func (g *Gateway) First(ctx context.Context, coll models.Collection) (models.Document, error) {
	if err := g.begin(ctx, Call{Method: MethodFirst, Coll: coll.Name}); err != nil {
		return models.Document{}, err
	}
	return g.pick(coll.Name, nil, false)
}

func (g *Gateway) Last(ctx context.Context, coll models.Collection) (models.Document, error) {
	if err := g.begin(ctx, Call{Method: MethodLast, Coll: coll.Name}); err != nil {
		return models.Document{}, err
	}
	return g.pick(coll.Name, nil, true)
}

func (g *Gateway) FirstWhere(ctx context.Context, coll models.Collection, pred fql.Predicate) (models.Document, error) {
	if err := g.begin(ctx, Call{Method: MethodFirstWhere, Coll: coll.Name, Key: pred.Cond("doc")}); err != nil {
		return models.Document{}, err
	}
	return g.pick(coll.Name, pred, false)
}

func (g *Gateway) pick(coll string, pred fql.Predicate, last bool) (models.Document, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var found *models.Document
	for i := range g.colls[coll] {
		d := &g.colls[coll][i]
		if pred != nil && !pred.Match(*d) {
			continue
		}
		found = d
		if !last {
			break
		}
	}
	if found == nil {
		return models.Document{}, fmt.Errorf("%w: %s is empty", constants.ErrNotFound, coll)
	}
	return found.Clone(), nil
}

// Create stores doc under a fresh id. Temporary ids are replaced; other
// client-chosen ids are kept.
func (g *Gateway) Create(ctx context.Context, coll models.Collection, doc models.Document) (models.Document, error) {
	if err := g.begin(ctx, Call{Method: MethodCreate, Coll: coll.Name, Key: doc.ID, Doc: doc.Clone()}); err != nil {
		return models.Document{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.register(coll)
	d := doc.Clone()
	d.Coll = models.Module{Name: coll.Name}
	d.TS = models.Now()
	if g.isNamed(coll) {
		d.ID = ""
	} else if d.ID == "" || models.IsTempID(d.ID) {
		g.nextID++
		d.ID = strconv.Itoa(g.nextID)
	}
	d.Data = rawData(d.Data)
	g.put(coll.Name, d)
	return d.Clone(), nil
}

func (g *Gateway) Update(ctx context.Context, coll models.Collection, key string, fields models.Fields) (models.Document, error) {
	if err := g.begin(ctx, Call{Method: MethodUpdate, Coll: coll.Name, Key: key, Fields: fields}); err != nil {
		return models.Document{}, err
	}
	return g.write(coll, key, fields, false)
}

func (g *Gateway) Replace(ctx context.Context, coll models.Collection, key string, fields models.Fields) (models.Document, error) {
	if err := g.begin(ctx, Call{Method: MethodReplace, Coll: coll.Name, Key: key, Fields: fields}); err != nil {
		return models.Document{}, err
	}
	return g.write(coll, key, fields, true)
}

func (g *Gateway) write(coll models.Collection, key string, fields models.Fields, replace bool) (models.Document, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.register(coll)
	i := g.find(coll.Name, key)
	if i < 0 {
		return models.Document{}, fmt.Errorf("%w: %s %s", constants.ErrNotFound, coll.Name, key)
	}
	d := g.colls[coll.Name][i].Clone()
	_, ttl, hasTTL, data := models.SplitFields(fields)
	data = rawData(data)
	if replace {
		if name, ok := d.Data[models.FieldName]; ok && g.isNamed(coll) {
			if _, renamed := data[models.FieldName]; !renamed {
				data[models.FieldName] = name
			}
		}
		d.Data = data
		d.TTL = ttl
	} else {
		d.Data = models.Merge(d.Data, data)
		if hasTTL {
			d.TTL = ttl
		}
	}
	d.TS = models.Now()
	g.colls[coll.Name][i] = d
	return d.Clone(), nil
}

func (g *Gateway) Delete(ctx context.Context, coll models.Collection, key string) error {
	if err := g.begin(ctx, Call{Method: MethodDelete, Coll: coll.Name, Key: key}); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.register(coll)
	i := g.find(coll.Name, key)
	if i < 0 {
		return fmt.Errorf("%w: %s %s", constants.ErrNotFound, coll.Name, key)
	}
	g.colls[coll.Name] = append(g.colls[coll.Name][:i], g.colls[coll.Name][i+1:]...)
	return nil
}

// Changes opens a feed on coll. It closes when ctx ends.
func (g *Gateway) Changes(ctx context.Context, coll models.Collection) (<-chan models.Event, error) {
	ch := make(chan models.Event, constants.DefaultSubscriberBuf)
	g.mu.Lock()
	g.feeds[coll.Name] = append(g.feeds[coll.Name], ch)
	g.mu.Unlock()

	context.AfterFunc(ctx, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		feeds := g.feeds[coll.Name]
		for i, c := range feeds {
			if c == ch {
				g.feeds[coll.Name] = append(feeds[:i], feeds[i+1:]...)
				break
			}
		}
	})
	return ch, nil
}

// rawData stores references by identity, as the service does.
func rawData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = rawValue(v)
	}
	return out
}

func rawValue(v any) any {
	switch t := v.(type) {
	case models.Referencer:
		r := t.Reference()
		if r.ID == "" {
			return nil
		}
		return r
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = rawValue(e)
		}
		return out
	}
	return models.Normalize(v)
}
