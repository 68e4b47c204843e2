package faunatyped

import (
	"fmt"
	"reflect"

	"github.com/Etesie/fauna-typed/pkg/constants"
	"github.com/Etesie/fauna-typed/pkg/models"
)

// Ref is a reference field at rest: the identity of a document in a
// sibling store, looked up on every access. The zero Ref and a Ref built
// from a null value are null references.
type Ref struct {
	stores *Stores
	coll   string
	key    string
}

// IsNull reports whether r points at nothing.
func (r Ref) IsNull() bool { return r.key == "" }

func (r Ref) Coll() string { return r.coll }

func (r Ref) Key() string { return r.key }

// Get returns a handle on the referenced document in its store. It returns
// nil for a null reference or an unregistered collection. The handle may
// not exist yet; it resolves once the document is loaded.
func (r Ref) Get() *Handle {
	if r.key == "" || r.stores == nil {
		return nil
	}
	st, ok := r.stores.Store(r.coll)
	if !ok {
		return nil
	}
	return st.ByKey(r.key)
}

// Doc returns the current referenced document.
func (r Ref) Doc() (models.Document, bool) {
	h := r.Get()
	if h == nil {
		return models.Document{}, false
	}
	return h.Doc()
}

// Reference is the wire form of r.
func (r Ref) Reference() models.DocumentReference {
	return models.DocumentReference{ID: r.key, Coll: models.Module{Name: r.coll}}
}

// Equal compares references by target, ignoring the registry.
func (r Ref) Equal(o Ref) bool {
	return r.coll == o.coll && r.key == o.key
}

func (r Ref) String() string {
	if r.IsNull() {
		return r.coll + "(null)"
	}
	return r.Reference().String()
}

// resolve rewrites the reference fields of data into Ref values. Fields
// declared as references in def bind whatever identity they hold;
// undeclared fields bind only values that carry their own collection.
func (s *Stores) resolve(def models.Collection, data map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(data))
	for k, v := range data {
		if sig, ok := def.Signature(k); ok {
			if target, many, ok := sig.RefTarget(); ok {
				r, err := s.bindField(target, many, v)
				if err != nil {
					return nil, fmt.Errorf("%w: %s.%s: %v", constants.ErrMalformed, def.Name, k, err)
				}
				out[k] = r
				continue
			}
		}
		out[k] = s.bindLoose(v)
	}
	return out, nil
}

func (s *Stores) bindField(target string, many bool, v any) (any, error) {
	if !many {
		return s.bind(target, v)
	}
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("expected a list of references, got %T", v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		r, err := s.bind(target, rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

func (s *Stores) bind(target string, v any) (Ref, error) {
	r := Ref{stores: s, coll: target}
	switch t := v.(type) {
	case nil:
	case string:
		r.key = t
	case Ref:
		r.key = t.key
		if t.coll != "" {
			r.coll = t.coll
		}
	case *Handle:
		if t != nil {
			r.coll, r.key = t.store.name, t.Key()
		}
	case models.DocumentReference:
		r.key = t.ID
		if t.Coll.Name != "" {
			r.coll = t.Coll.Name
		}
	case models.NullDocument:
		r.key = t.Ref.ID
	case models.Document:
		r.key = t.ID
		if r.key == "" {
			r.key, _ = t.Data[models.FieldName].(string)
		}
		if t.Coll.Name != "" {
			r.coll = t.Coll.Name
		}
	case map[string]any:
		id, ok := t[models.FieldID].(string)
		if !ok {
			id, ok = t[models.FieldName].(string)
		}
		if !ok {
			return Ref{}, fmt.Errorf("reference object without id")
		}
		r.key = id
	default:
		return Ref{}, fmt.Errorf("cannot reference %s with %T", target, v)
	}
	return r, nil
}

func (s *Stores) bindLoose(v any) any {
	switch t := v.(type) {
	case models.DocumentReference:
		return Ref{stores: s, coll: t.Coll.Name, key: t.ID}
	case Ref:
		t.stores = s
		return t
	case models.Document:
		r, _ := s.bind(t.Coll.Name, t)
		return r
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = s.bindLoose(e)
		}
		return out
	}
	return v
}

// rawValue turns Ref values back into their wire form.
func rawValue(v any) any {
	switch t := v.(type) {
	case Ref:
		if t.IsNull() {
			return nil
		}
		return t.Reference()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = rawValue(e)
		}
		return out
	case map[string]any:
		return rawData(t)
	}
	return models.CloneValue(v)
}

func rawData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = rawValue(v)
	}
	return out
}

func rawDocument(doc models.Document) models.Document {
	out := doc.Clone()
	out.Data = rawData(doc.Data)
	return out
}

func rawDocuments(docs []models.Document) []models.Document {
	out := make([]models.Document, len(docs))
	for i, d := range docs {
		out[i] = rawDocument(d)
	}
	return out
}

// rawFields is the mutation payload sending doc's fields to the service.
func rawFields(data map[string]any, ttl *models.TimeStub, withTTL bool) models.Fields {
	out := models.Fields(rawData(data))
	if out == nil {
		out = models.Fields{}
	}
	if withTTL {
		if ttl != nil {
			out[models.FieldTTL] = *ttl
		} else {
			out[models.FieldTTL] = nil
		}
	}
	return out
}
