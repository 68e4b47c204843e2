package faunatyped

import (
	"context"
	"errors"
	"fmt"

	"github.com/Etesie/fauna-typed/pkg/constants"
	"github.com/Etesie/fauna-typed/pkg/fql"
	"github.com/Etesie/fauna-typed/pkg/models"
)

// Local edits bump a per-key sequence number. A remote confirmation carries
// the number current when its call was issued and only applies if no local
// edit happened since. Remote fetches skip keys with writes in flight.

func fmtMalformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", constants.ErrMalformed, fmt.Sprintf(format, args...))
}

func fillComputed(def models.Collection, data map[string]any) {
	for k, v := range def.ComputedDefaults() {
		if _, ok := data[k]; !ok {
			data[k] = v
		}
	}
}

// goRemote runs fn in the background on a context that outlives ctx.
func (st *Store) goRemote(ctx context.Context, fn func(ctx context.Context)) {
	st.work.add()
	st.stores.work.add()
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer st.stores.work.done()
		defer st.work.done()
		fn(ctx)
	}()
}

func (st *Store) settle(key string) {
	if st.pending[key]--; st.pending[key] <= 0 {
		delete(st.pending, key)
	}
}

// Create adds a document locally and asks the service to create it. In a
// collection identified by id the entry carries a temporary id until the
// service confirms the real one, unless fields holds an "id".
func (st *Store) Create(ctx context.Context, fields models.Fields) (*Handle, error) {
	def := st.Definition()
	id, ttl, _, data := models.SplitFields(fields)
	doc := models.Document{ID: id, Coll: models.Module{Name: st.name}, TS: models.Now(), TTL: ttl}
	switch {
	case def.Named:
		doc.ID = ""
	case id == "":
		doc.ID = models.NewTempID()
	}
	fillComputed(def, data)
	doc.Data = data

	prepared, err := st.prepare(def, doc, false)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	w := st.begin()
	key, _ := st.upsertInto(w, def, prepared, "")
	st.commit(w)
	st.seq[key]++
	seq := st.seq[key]
	st.pending[key]++
	st.creating[key] = true
	raw := rawDocument(prepared)
	st.mu.Unlock()

	st.goRemote(ctx, func(ctx context.Context) {
		res, err := st.stores.gw.Create(ctx, def, raw)
		st.confirmCreate(ctx, def, key, seq, res, err)
	})
	return st.handle(key), nil
}

func (st *Store) confirmCreate(ctx context.Context, def models.Collection, local string, seq uint64, res models.Document, err error) {
	var prepared models.Document
	if err == nil {
		prepared, err = st.prepare(def, res, true)
	}

	st.mu.Lock()
	st.settle(local)
	if err != nil {
		delete(st.creating, local)
		st.mu.Unlock()
		st.warn("create failed", "key", local, "error", err)
		return
	}
	confirmed := prepared.Key(def.Named)

	if target := st.aliasTarget(local); target != local {
		if !st.creating[target] {
			st.mu.Unlock()
			st.debug("create already reconciled", "key", local, "confirmed", confirmed)
			return
		}
		local = target
	}
	i, exists := st.index[local]
	if !exists {
		// Removed locally while the create was in flight.
		delete(st.creating, local)
		st.pending[confirmed]++
		st.mu.Unlock()
		st.deleteRemote(ctx, def, confirmed)
		return
	}

	w := st.begin()
	if st.seq[local] == seq {
		st.upsertInto(w, def, prepared, local)
		st.commit(w)
		delete(st.creating, local)
		st.mu.Unlock()
		return
	}

	// Newer local edits win: keep their fields under the confirmed
	// identity and send them along.
	merged := st.entries[i]
	merged.ID, merged.TS = prepared.ID, prepared.TS
	st.upsertInto(w, def, merged, local)
	st.commit(w)
	delete(st.creating, local)
	key := merged.Key(def.Named)
	next := st.seq[key]
	st.pending[key]++
	fields := rawFields(merged.Data, merged.TTL, true)
	st.mu.Unlock()

	res, err = st.stores.gw.Replace(ctx, def, confirmed, fields)
	st.confirmWrite(def, key, next, res, err)
}

// confirmWrite reconciles the result of an update or replace issued at seq.
func (st *Store) confirmWrite(def models.Collection, key string, seq uint64, res models.Document, err error) {
	var prepared models.Document
	if err == nil {
		prepared, err = st.prepare(def, res, true)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.settle(key)
	stale := st.seq[key] != seq
	if err != nil {
		if errors.Is(err, constants.ErrNotFound) && !stale {
			w := st.begin()
			st.removeFrom(w, def, key)
			st.commit(w)
		}
		st.warn("write failed", "key", key, "error", err)
		return
	}
	if stale {
		st.debug("skipping stale confirmation", "key", key)
		return
	}
	w := st.begin()
	st.upsertInto(w, def, prepared, key)
	st.commit(w)
}

func (st *Store) deleteRemote(ctx context.Context, def models.Collection, key string) {
	err := st.stores.gw.Delete(ctx, def, key)
	st.mu.Lock()
	st.settle(key)
	st.mu.Unlock()
	if err != nil && !errors.Is(err, constants.ErrNotFound) {
		st.warn("delete failed", "key", key, "error", err)
	}
}

// edit applies a local update or replace to the entry of key and sends it
// unless the entry's create is still in flight.
func (st *Store) edit(ctx context.Context, key string, fields models.Fields, replace bool) error {
	def := st.Definition()
	_, ttl, hasTTL, data := models.SplitFields(fields)
	norm, _ := models.Normalize(data).(map[string]any)
	resolved, err := st.stores.resolve(def, norm)
	if err != nil {
		return err
	}

	st.mu.Lock()
	key = st.aliasTarget(key)
	i, ok := st.index[key]
	if !ok {
		st.mu.Unlock()
		return fmt.Errorf("%w: %s %s", constants.ErrNotCached, st.name, key)
	}
	next := st.entries[i].Clone()
	if replace {
		if def.Named {
			if _, renamed := resolved[models.FieldName]; !renamed {
				resolved[models.FieldName] = next.Data[models.FieldName]
			}
		}
		next.Data = resolved
		next.TTL = ttl
	} else {
		next.Data = models.Merge(next.Data, resolved)
		if hasTTL {
			next.TTL = ttl
		}
	}
	fillComputed(def, next.Data)
	newKey := next.Key(def.Named)
	if newKey == "" {
		st.mu.Unlock()
		return constants.ErrNoIdentity
	}

	wasCreating := st.creating[key]
	w := st.begin()
	if _, changed := st.upsertInto(w, def, next, key); !changed {
		st.mu.Unlock()
		return nil
	}
	st.commit(w)
	if wasCreating {
		st.creating[newKey] = true
	}
	st.seq[newKey]++
	if st.creating[newKey] {
		st.mu.Unlock()
		return nil
	}
	seq := st.seq[newKey]
	st.pending[newKey]++
	var payload models.Fields
	if replace {
		payload = rawFields(next.Data, next.TTL, true)
	} else {
		payload = rawFields(resolved, ttl, hasTTL)
	}
	st.mu.Unlock()

	st.goRemote(ctx, func(ctx context.Context) {
		var res models.Document
		var err error
		if replace {
			res, err = st.stores.gw.Replace(ctx, def, key, payload)
		} else {
			res, err = st.stores.gw.Update(ctx, def, key, payload)
		}
		st.confirmWrite(def, newKey, seq, res, err)
	})
	return nil
}

// remove deletes the entry of key locally and remotely. An entry whose
// create is in flight is deleted remotely once the create confirms.
func (st *Store) remove(ctx context.Context, key string) error {
	def := st.Definition()
	st.mu.Lock()
	key = st.aliasTarget(key)
	w := st.begin()
	if !st.removeFrom(w, def, key) {
		st.mu.Unlock()
		return fmt.Errorf("%w: %s %s", constants.ErrNotCached, st.name, key)
	}
	st.commit(w)
	st.seq[key]++
	if st.creating[key] {
		st.mu.Unlock()
		return nil
	}
	st.pending[key]++
	st.mu.Unlock()

	st.goRemote(ctx, func(ctx context.Context) {
		st.deleteRemote(ctx, def, key)
	})
	return nil
}

// reconcileFetched upserts remote documents as one change and returns
// their keys. Documents failing validation are skipped; documents with
// local writes in flight keep their local state.
func (st *Store) reconcileFetched(def models.Collection, docs []models.Document) []string {
	prepared := make([]models.Document, 0, len(docs))
	for _, d := range docs {
		p, err := st.prepare(def, d, true)
		if err != nil {
			st.warn("skipping remote document", "id", d.ID, "error", err)
			continue
		}
		prepared = append(prepared, p)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	keys := make([]string, 0, len(prepared))
	w := st.begin()
	for _, p := range prepared {
		key := p.Key(def.Named)
		keys = append(keys, key)
		if st.pending[key] > 0 {
			st.debug("keeping local document with writes in flight", "key", key)
			continue
		}
		st.upsertInto(w, def, p, "")
	}
	st.commit(w)
	return keys
}

// removeFetched drops a document the service reports missing, unless it
// has local writes in flight.
func (st *Store) removeFetched(def models.Collection, key string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.pending[key] > 0 || st.creating[key] {
		return
	}
	w := st.begin()
	st.removeFrom(w, def, key)
	st.commit(w)
}

func (st *Store) fetchOne(ctx context.Context, def models.Collection, what string, fetch func(ctx context.Context) (models.Document, error)) *Handle {
	doc, err := fetch(ctx)
	if err != nil {
		if !errors.Is(err, constants.ErrNotFound) {
			st.warn("fetch failed", "query", what, "error", err)
		}
		return nil
	}
	keys := st.reconcileFetched(def, []models.Document{doc})
	if len(keys) == 0 {
		return nil
	}
	return st.handle(keys[0])
}

// Refresh fetches the document of key and reconciles it. A document the
// service no longer has is removed locally and Refresh returns nil. On
// other failures the cached entry stays as it is.
func (st *Store) Refresh(ctx context.Context, key string) *Handle {
	def := st.Definition()
	st.mu.Lock()
	key = st.aliasTarget(key)
	st.mu.Unlock()

	var doc models.Document
	var err error
	if def.Named {
		doc, err = st.stores.gw.FetchByName(ctx, def, key)
	} else {
		doc, err = st.stores.gw.FetchByID(ctx, def, key)
	}
	if errors.Is(err, constants.ErrNotFound) {
		st.removeFetched(def, key)
		return nil
	}
	if err != nil {
		st.warn("refresh failed", "key", key, "error", err)
		return st.handle(key)
	}
	keys := st.reconcileFetched(def, []models.Document{doc})
	if len(keys) == 0 {
		return st.handle(key)
	}
	return st.handle(keys[0])
}

// ByID returns a handle on the document with id. When it is not cached a
// background fetch loads it.
func (st *Store) ByID(id string) *Handle {
	return st.lookupOrFetch(id)
}

// ByName is ByID for collections identified by name.
func (st *Store) ByName(name string) *Handle {
	return st.lookupOrFetch(name)
}

func (st *Store) lookupOrFetch(key string) *Handle {
	if key == "" {
		return nil
	}
	st.mu.Lock()
	key = st.aliasTarget(key)
	_, cached := st.index[key]
	skip := cached || st.fetching[key] || st.creating[key] || models.IsTempID(key)
	if !skip {
		st.fetching[key] = true
	}
	st.mu.Unlock()

	if !skip {
		st.goRemote(st.stores.ctx, func(ctx context.Context) {
			st.Refresh(ctx, key)
			st.mu.Lock()
			delete(st.fetching, key)
			st.mu.Unlock()
		})
	}
	return st.handle(key)
}

// First returns the first cached document and refreshes it in the
// background. With an empty cache it waits for the remote answer.
func (st *Store) First(ctx context.Context) *Handle {
	def := st.Definition()
	return st.pick(ctx, def, nil, false, "first", func(ctx context.Context) (models.Document, error) {
		return st.stores.gw.First(ctx, def)
	})
}

// Last is First for the last document.
func (st *Store) Last(ctx context.Context) *Handle {
	def := st.Definition()
	return st.pick(ctx, def, nil, true, "last", func(ctx context.Context) (models.Document, error) {
		return st.stores.gw.Last(ctx, def)
	})
}

// FirstWhere is First restricted to documents matching pred.
func (st *Store) FirstWhere(ctx context.Context, pred fql.Predicate) *Handle {
	def := st.Definition()
	return st.pick(ctx, def, pred, false, "firstWhere", func(ctx context.Context) (models.Document, error) {
		return st.stores.gw.FirstWhere(ctx, def, pred)
	})
}

func (st *Store) pick(ctx context.Context, def models.Collection, pred fql.Predicate, last bool, what string, fetch func(ctx context.Context) (models.Document, error)) *Handle {
	local := st.Query(pred)
	if len(local) == 0 {
		return st.fetchOne(ctx, def, what, fetch)
	}
	st.goRemote(ctx, func(ctx context.Context) {
		st.fetchOne(ctx, def, what, fetch)
	})
	if last {
		return local[len(local)-1]
	}
	return local[0]
}
