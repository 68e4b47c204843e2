package faunatyped

import (
	"context"
	"errors"
	"maps"
	"reflect"
	"slices"
	"sync"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/Etesie/fauna-typed/pkg/constants"
	"github.com/Etesie/fauna-typed/pkg/fql"
	"github.com/Etesie/fauna-typed/pkg/history"
	"github.com/Etesie/fauna-typed/pkg/models"
	"github.com/Etesie/fauna-typed/pkg/schema"
)

type ChangeKind int

const (
	// ChangeUpsert reports an inserted or replaced entry.
	ChangeUpsert ChangeKind = iota
	ChangeRemove
	// ChangeReset reports that the whole store was swapped, by undo, redo,
	// rehydration or Destroy.
	ChangeReset
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeUpsert:
		return "upsert"
	case ChangeRemove:
		return "remove"
	}
	return "reset"
}

// Change is sent to subscribers after every committed change.
type Change struct {
	Kind ChangeKind
	Key  string
}

// Store is the observable mirror of one collection. Entries are kept in
// insertion order with at most one entry per key. All changes go through
// one mutex; committed entry slices are never modified, so history
// snapshots share them.
type Store struct {
	name   string
	stores *Stores

	mu       sync.Mutex
	entries  []models.Document
	index    map[string]int
	history  *history.Manager[[]models.Document]
	seq      map[string]uint64
	pending  map[string]int
	creating map[string]bool
	fetching map[string]bool
	aliases  map[string]string
	subs     map[int]chan Change
	nextSub  int
	work     tracker

	valMu     sync.Mutex
	valDef    models.Collection
	validator *schema.Validator
}

func newStore(s *Stores, name string) *Store {
	return &Store{
		name:     name,
		stores:   s,
		index:    map[string]int{},
		history:  history.New[[]models.Document](s.historyLimit),
		seq:      map[string]uint64{},
		pending:  map[string]int{},
		creating: map[string]bool{},
		fetching: map[string]bool{},
		aliases:  map[string]string{},
		subs:     map[int]chan Change{},
	}
}

func (st *Store) Name() string { return st.name }

// Definition returns the collection definition currently held by the
// system store.
func (st *Store) Definition() models.Collection {
	return st.stores.definition(st.name)
}

func (st *Store) warn(msg string, args ...any) {
	st.stores.logger.Warn(msg, append([]any{"collection", st.name}, args...)...)
}

func (st *Store) debug(msg string, args ...any) {
	st.stores.logger.Debug(msg, append([]any{"collection", st.name}, args...)...)
}

// working is a copy-on-write view of the entries, committed as one change.
type working struct {
	docs    []models.Document
	index   map[string]int
	copied  bool
	changes []Change
}

func (st *Store) begin() *working {
	return &working{docs: st.entries, index: st.index}
}

func (w *working) cow() {
	if w.copied {
		return
	}
	w.docs = slices.Clone(w.docs)
	w.index = maps.Clone(w.index)
	w.copied = true
}

func (w *working) reindex(named bool) {
	clear(w.index)
	for i, d := range w.docs {
		w.index[d.Key(named)] = i
	}
}

var docOptions = []cmp.Option{
	cmpopts.EquateEmpty(),
	cmp.Exporter(func(reflect.Type) bool { return true }),
}

func equalDocs(a, b models.Document) bool {
	return cmp.Equal(a, b, docOptions...)
}

// upsertInto puts doc into w by its key. When matchKey names another entry
// that entry is replaced in place, any entry already holding doc's key is
// dropped, and matchKey becomes an alias of the new key. It reports
// whether anything changed.
func (st *Store) upsertInto(w *working, def models.Collection, doc models.Document, matchKey string) (string, bool) {
	key := doc.Key(def.Named)
	i, found := w.index[key]

	if matchKey != "" {
		mk := st.aliasTarget(matchKey)
		if mi, ok := w.index[mk]; ok && mk != key {
			w.cow()
			w.docs[mi] = doc
			if found {
				w.docs = slices.Delete(w.docs, i, i+1)
			}
			w.reindex(def.Named)
			w.changes = append(w.changes, Change{ChangeRemove, mk}, Change{ChangeUpsert, key})
			st.remap(mk, key)
			if matchKey != mk {
				st.aliases[matchKey] = key
			}
			return key, true
		}
	}

	if found {
		if equalDocs(w.docs[i], doc) {
			return key, false
		}
		w.cow()
		w.docs[i] = doc
	} else {
		w.cow()
		w.docs = append(w.docs, doc)
		w.index[key] = len(w.docs) - 1
		delete(st.aliases, key)
	}
	w.changes = append(w.changes, Change{ChangeUpsert, key})
	return key, true
}

func (st *Store) removeFrom(w *working, def models.Collection, key string) bool {
	i, ok := w.index[key]
	if !ok {
		return false
	}
	w.cow()
	w.docs = slices.Delete(w.docs, i, i+1)
	w.reindex(def.Named)
	w.changes = append(w.changes, Change{ChangeRemove, key})
	return true
}

// remap records that the entry known as from is now known as to, and moves
// its bookkeeping along.
func (st *Store) remap(from, to string) {
	if from == to {
		return
	}
	st.aliases[from] = to
	delete(st.aliases, to)
	if n := st.seq[from]; n > st.seq[to] {
		st.seq[to] = n
	}
	delete(st.seq, from)
	delete(st.creating, from)
}

func (st *Store) aliasTarget(key string) string {
	for range 8 {
		next, ok := st.aliases[key]
		if !ok {
			break
		}
		key = next
	}
	return key
}

// commit snapshots the current entries into history, installs w, persists
// and notifies.
func (st *Store) commit(w *working) {
	if len(w.changes) == 0 {
		return
	}
	st.history.Push(st.entries)
	st.entries = w.docs
	st.index = w.index
	st.persist()
	st.notify(w.changes...)
}

func (st *Store) persist() {
	if err := st.stores.storage.Set(context.Background(), st.name, rawDocuments(st.entries)); err != nil {
		st.warn("persisting failed", "error", err)
	}
}

func (st *Store) notify(changes ...Change) {
	for id, ch := range st.subs {
		for _, c := range changes {
			select {
			case ch <- c:
			default:
				st.warn("subscriber is full, dropping change", "subscriber", id, "key", c.Key)
			}
		}
	}
}

// prepare normalizes and resolves doc, and validates it against def when
// validate is set.
func (st *Store) prepare(def models.Collection, doc models.Document, validate bool) (models.Document, error) {
	if doc.Key(def.Named) == "" {
		return models.Document{}, constants.ErrNoIdentity
	}
	if doc.Coll.Name == "" {
		doc.Coll = models.Module{Name: st.name}
	} else if doc.Coll.Name != st.name {
		return models.Document{}, fmtMalformed("document of %s offered to %s", doc.Coll.Name, st.name)
	}
	data, _ := models.Normalize(doc.Data).(map[string]any)
	data, err := st.stores.resolve(def, data)
	if err != nil {
		return models.Document{}, err
	}
	doc.Data = data
	if doc.TTL != nil {
		ttl := *doc.TTL
		doc.TTL = &ttl
	}
	if validate {
		if v := st.validatorFor(def); v != nil {
			if err := v.Validate(doc); err != nil {
				return models.Document{}, err
			}
		}
	}
	return doc, nil
}

func (st *Store) validatorFor(def models.Collection) *schema.Validator {
	if !st.stores.validate || len(def.Fields) == 0 {
		return nil
	}
	st.valMu.Lock()
	defer st.valMu.Unlock()
	if st.validator != nil && cmp.Equal(st.valDef, def) {
		return st.validator
	}
	v, err := schema.Compile(def)
	if err != nil {
		st.warn("compiling schema failed", "error", err)
		return nil
	}
	st.valDef, st.validator = def, v
	return v
}

// Upsert reconciles doc into the store: it replaces the entry with the same
// key, or the entry matchKey names, or appends. A doc deeply equal to the
// current entry changes nothing. A payload that fails validation is logged
// and skipped with a nil handle; a doc without identity is an error.
func (st *Store) Upsert(doc models.Document, matchKey string) (*Handle, error) {
	def := st.Definition()
	prepared, err := st.prepare(def, doc, true)
	if errors.Is(err, constants.ErrNoIdentity) {
		return nil, err
	}
	if err != nil {
		st.warn("skipping document", "id", doc.ID, "error", err)
		return nil, nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	w := st.begin()
	key, _ := st.upsertInto(w, def, prepared, matchKey)
	st.commit(w)
	return st.handle(key), nil
}

// Remove deletes the entry locally. It reports whether one existed.
func (st *Store) Remove(key string) bool {
	def := st.Definition()
	st.mu.Lock()
	defer st.mu.Unlock()
	w := st.begin()
	if !st.removeFrom(w, def, st.aliasTarget(key)) {
		return false
	}
	st.commit(w)
	return true
}

// Query returns handles on the entries matching pred, in store order. A
// nil pred matches everything.
func (st *Store) Query(pred fql.Predicate) []*Handle {
	def := st.Definition()
	st.mu.Lock()
	defer st.mu.Unlock()
	var out []*Handle
	for _, d := range st.entries {
		if pred == nil || pred.Match(d) {
			out = append(out, st.handle(d.Key(def.Named)))
		}
	}
	return out
}

// Handles returns a handle on every entry.
func (st *Store) Handles() []*Handle {
	return st.Query(nil)
}

func (st *Store) handle(key string) *Handle {
	return &Handle{store: st, key: key}
}

// ByKey returns a handle on the entry with key, whether or not it is
// cached yet.
func (st *Store) ByKey(key string) *Handle {
	if key == "" {
		return nil
	}
	return st.handle(key)
}

// current returns the entry for key, following remapped keys.
func (st *Store) current(key string) (models.Document, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	i, ok := st.index[st.aliasTarget(key)]
	if !ok {
		return models.Document{}, false
	}
	return st.entries[i], true
}

func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.entries)
}

// Snapshot returns a copy of the entries in their stored form, with
// references as models.DocumentReference.
func (st *Store) Snapshot() []models.Document {
	st.mu.Lock()
	defer st.mu.Unlock()
	return rawDocuments(st.entries)
}

// Undo restores the state before the last change. It reports false when
// there is nothing to undo.
func (st *Store) Undo() bool {
	named := st.Definition().Named
	st.mu.Lock()
	defer st.mu.Unlock()
	prev, ok := st.history.Undo(st.entries)
	if !ok {
		return false
	}
	st.restore(prev, named)
	return true
}

// Redo reapplies the last undone change.
func (st *Store) Redo() bool {
	named := st.Definition().Named
	st.mu.Lock()
	defer st.mu.Unlock()
	next, ok := st.history.Redo(st.entries)
	if !ok {
		return false
	}
	st.restore(next, named)
	return true
}

func (st *Store) CanUndo() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.history.CanUndo()
}

func (st *Store) CanRedo() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.history.CanRedo()
}

// History returns the depth of the undo and redo stacks.
func (st *Store) History() (undo, redo int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.history.Len()
}

// restore installs a snapshot. Entries that still carry a temporary id
// the service has since confirmed get the confirmed id. Every key touched
// counts as a local edit, so older confirmations no longer apply to it.
func (st *Store) restore(docs []models.Document, named bool) {
	docs = st.confirmedIDs(docs, named)
	for _, d := range st.entries {
		st.seq[d.Key(named)]++
	}
	for _, d := range docs {
		st.seq[d.Key(named)]++
	}
	st.entries = docs
	st.index = make(map[string]int, len(docs))
	for i, d := range docs {
		st.index[d.Key(named)] = i
	}
	st.persist()
	st.notify(Change{Kind: ChangeReset})
}

func (st *Store) confirmedIDs(docs []models.Document, named bool) []models.Document {
	if named || len(st.aliases) == 0 {
		return docs
	}
	stale := slices.ContainsFunc(docs, func(d models.Document) bool {
		return models.IsTempID(d.ID) && st.aliasTarget(d.ID) != d.ID
	})
	if !stale {
		return docs
	}
	out := make([]models.Document, 0, len(docs))
	seen := make(map[string]bool, len(docs))
	for _, d := range docs {
		if models.IsTempID(d.ID) {
			d.ID = st.aliasTarget(d.ID)
		}
		if seen[d.ID] {
			continue
		}
		seen[d.ID] = true
		out = append(out, d)
	}
	return out
}

// Subscribe returns a channel receiving every committed change, and a
// function that ends the subscription. Changes are dropped while the
// channel is full.
func (st *Store) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, st.stores.subBuf)
	st.mu.Lock()
	id := st.nextSub
	st.nextSub++
	st.subs[id] = ch
	st.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			st.mu.Lock()
			delete(st.subs, id)
			st.mu.Unlock()
			close(ch)
		})
	}
}

// Wait blocks until the remote calls started by this store have finished.
func (st *Store) Wait(ctx context.Context) error {
	return st.work.wait(ctx)
}

// Destroy empties the store, forgets its history and removes its persisted
// contents.
func (st *Store) Destroy(ctx context.Context) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	for k := range st.index {
		st.seq[k]++
	}
	st.entries = nil
	st.index = map[string]int{}
	st.history.Clear()
	st.notify(Change{Kind: ChangeReset})
	return st.stores.storage.Remove(ctx, st.name)
}

// rehydrate loads the persisted contents. It does not write back and does
// not record history.
func (st *Store) rehydrate(ctx context.Context) {
	docs, ok, err := st.stores.storage.Get(ctx, st.name)
	if err != nil {
		st.warn("loading persisted documents failed", "error", err)
		return
	}
	if !ok {
		return
	}
	def := st.Definition()
	loaded := make([]models.Document, 0, len(docs))
	index := make(map[string]int, len(docs))
	for _, d := range docs {
		p, err := st.prepare(def, d, true)
		if err != nil {
			st.warn("skipping persisted document", "id", d.ID, "error", err)
			continue
		}
		key := p.Key(def.Named)
		if i, dup := index[key]; dup {
			loaded[i] = p
			continue
		}
		index[key] = len(loaded)
		loaded = append(loaded, p)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.entries = loaded
	st.index = index
	st.notify(Change{Kind: ChangeReset})
	st.debug("rehydrated", "documents", len(loaded))
}
