package faunatyped

import (
	"context"
	"reflect"

	"github.com/Etesie/fauna-typed/pkg/models"
)

// Handle reads and writes one document of a store. It holds only the
// document's key, so every read sees the current entry, and it keeps
// working when a temporary id is replaced by the confirmed one.
type Handle struct {
	store *Store
	key   string
}

func (h *Handle) Store() *Store { return h.store }

// Key returns the document's current identity.
func (h *Handle) Key() string {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return h.store.aliasTarget(h.key)
}

// Exists reports whether the document is cached.
func (h *Handle) Exists() bool {
	_, ok := h.store.current(h.key)
	return ok
}

// Doc returns a copy of the current document.
func (h *Handle) Doc() (models.Document, bool) {
	d, ok := h.store.current(h.key)
	if !ok {
		return models.Document{}, false
	}
	return d.Clone(), true
}

// Get returns a field of the current document, reserved fields included.
// Reference fields are returned as Ref or []any of Ref.
func (h *Handle) Get(field string) any {
	d, ok := h.store.current(h.key)
	if !ok {
		return nil
	}
	v, _ := d.Get(field)
	return models.CloneValue(v)
}

// Ref returns a reference field. Missing or non-reference fields yield a
// null Ref.
func (h *Handle) Ref(field string) Ref {
	r, _ := h.Get(field).(Ref)
	return r
}

// Refs returns an array-of-references field.
func (h *Handle) Refs(field string) []Ref {
	v := h.Get(field)
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil
	}
	out := make([]Ref, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		if r, ok := rv.Index(i).Interface().(Ref); ok {
			out = append(out, r)
		}
	}
	return out
}

// Reference is the wire form of the handle's document.
func (h *Handle) Reference() models.DocumentReference {
	return models.DocumentReference{ID: h.Key(), Coll: models.Module{Name: h.store.name}}
}

func (h *Handle) String() string {
	return h.Reference().String()
}

// Update merges fields into the document locally, then sends them. A
// "ttl" key sets the expiry. It fails only for a document that is not
// cached or fields that cannot be resolved.
func (h *Handle) Update(ctx context.Context, fields models.Fields) error {
	return h.store.edit(ctx, h.key, fields, false)
}

// Replace overwrites every domain field of the document locally, dropping
// fields absent from fields, then sends it. Identity, collection and
// timestamp are kept.
func (h *Handle) Replace(ctx context.Context, fields models.Fields) error {
	return h.store.edit(ctx, h.key, fields, true)
}

// Delete removes the document locally, then asks the service to delete it.
func (h *Handle) Delete(ctx context.Context) error {
	return h.store.remove(ctx, h.key)
}
