package fql

import (
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/Etesie/fauna-typed/pkg/models"
)

// Object is a rendered document payload.
type Object struct {
	keys   []string
	values map[string]any
}

func (o Object) FQL() string {
	var b strings.Builder
	writeOrderedObject(&b, o.keys, o.values)
	return b.String()
}

// Keys returns the payload keys in rendering order.
func (o Object) Keys() []string { return o.keys }

func (o *Object) set(k string, v any) {
	if o.values == nil {
		o.values = map[string]any{}
	}
	if _, ok := o.values[k]; !ok {
		o.keys = append(o.keys, k)
	}
	o.values[k] = v
}

// CreateObject renders the payload of a create: ttl when set, the id
// unless it is temporary, then every declared field present in data.
func CreateObject(def models.Collection, id string, ttl *models.TimeStub, data map[string]any) Object {
	var o Object
	if ttl != nil {
		o.set(models.FieldTTL, ttlValue(ttl))
	}
	if id != "" && !models.IsTempID(id) {
		o.set(models.FieldID, id)
	}
	for _, name := range fieldNames(def, data) {
		v, ok := data[name]
		if !ok {
			continue
		}
		o.set(name, FieldValue(signatureOf(def, name), v))
	}
	return o
}

// UpdateObject renders the payload of an update: only the fields present.
func UpdateObject(def models.Collection, ttl *models.TimeStub, hasTTL bool, data map[string]any) Object {
	var o Object
	if hasTTL {
		o.set(models.FieldTTL, ttlValue(ttl))
	}
	for _, name := range fieldNames(def, data) {
		v, ok := data[name]
		if !ok {
			continue
		}
		o.set(name, FieldValue(signatureOf(def, name), v))
	}
	return o
}

// ReplaceObject renders the payload of a replace: every declared field,
// absent ones as null.
func ReplaceObject(def models.Collection, ttl *models.TimeStub, data map[string]any) Object {
	var o Object
	o.set(models.FieldTTL, ttlValue(ttl))
	for _, name := range fieldNames(def, data) {
		o.set(name, FieldValue(signatureOf(def, name), data[name]))
	}
	return o
}

// fieldNames lists declared fields, or the data keys when the definition
// declares none.
func fieldNames(def models.Collection, data map[string]any) []string {
	if len(def.Fields) > 0 {
		return def.FieldNames()
	}
	out := make([]string, 0, len(data))
	for k := range data {
		if _, computed := def.ComputedFields[k]; computed {
			continue
		}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func signatureOf(def models.Collection, name string) models.Signature {
	sig, _ := def.Signature(name)
	return sig
}

func ttlValue(ttl *models.TimeStub) any {
	if ttl == nil {
		return nil
	}
	return Raw("Time(" + quote(ttl.String()) + ")")
}

// FieldValue renders v as the FQL value of a field with signature sig.
// Reference fields accept ids, references and bound accessors; Time and
// Date fields accept stubs, time.Time and parseable strings.
func FieldValue(sig models.Signature, v any) any {
	if v == nil {
		return nil
	}
	if target, many, ok := sig.RefTarget(); ok {
		if many {
			items, ok := asSlice(v)
			if !ok {
				return refValue(target, v)
			}
			out := make([]any, len(items))
			for i, e := range items {
				out[i] = refValue(target, e)
			}
			return out
		}
		return refValue(target, v)
	}
	switch {
	case scalarIs(sig, "Time"):
		return mapScalar(v, timeValue)
	case scalarIs(sig, "Date"):
		return mapScalar(v, dateValue)
	}
	return v
}

func scalarIs(sig models.Signature, name string) bool {
	if sig.Is(name) {
		return true
	}
	return sig.Kind == models.KindArray && sig.Elem.Is(name)
}

func mapScalar(v any, conv func(any) any) any {
	if items, ok := asSlice(v); ok {
		out := make([]any, len(items))
		for i, e := range items {
			out[i] = conv(e)
		}
		return out
	}
	return conv(v)
}

func refValue(target string, v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if t == "" {
			return nil
		}
		return Raw(refExpr(target, t))
	case models.DocumentReference:
		return Raw(refExpr(target, t.ID))
	case models.NullDocument:
		return nil
	case models.Document:
		return Raw(refExpr(target, t.ID))
	case models.Referencer:
		r := t.Reference()
		if r.ID == "" {
			return nil
		}
		return Raw(refExpr(target, r.ID))
	case map[string]any:
		if id, ok := t[models.FieldID].(string); ok && id != "" {
			return Raw(refExpr(target, id))
		}
		return nil
	}
	return v
}

func timeValue(v any) any {
	switch t := v.(type) {
	case models.TimeStub:
		return t
	case time.Time:
		return models.NewTimeStub(t)
	case string:
		if ts, err := models.ParseTimeStub(t); err == nil {
			return ts
		}
	}
	return v
}

func dateValue(v any) any {
	switch t := v.(type) {
	case models.DateStub:
		return t
	case models.TimeStub:
		return models.NewDateStub(t.Time)
	case time.Time:
		return models.NewDateStub(t)
	case string:
		if d, err := models.ParseDateStub(t); err == nil {
			return d
		}
		if ts, err := models.ParseTimeStub(t); err == nil {
			return models.NewDateStub(ts.Time)
		}
	}
	return v
}

func asSlice(v any) ([]any, bool) {
	if items, ok := v.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}
