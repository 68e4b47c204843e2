package models

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/Etesie/fauna-typed/pkg/constants"
)

// Tags of the service's tagged value format.
const (
	TagDoc    = "@doc"
	TagSet    = "@set"
	TagRef    = "@ref"
	TagMod    = "@mod"
	TagTime   = "@time"
	TagDate   = "@date"
	TagInt    = "@int"
	TagLong   = "@long"
	TagDouble = "@double"
	TagObject = "@object"
)

// Tag converts a Go value into the tagged format, ready to be encoded with
// any codec that understands maps, slices, strings and booleans.
func Tag(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string, bool:
		return t
	case int64:
		if t >= math.MinInt32 && t <= math.MaxInt32 {
			return map[string]any{TagInt: strconv.FormatInt(t, 10)}
		}
		return map[string]any{TagLong: strconv.FormatInt(t, 10)}
	case float64:
		return map[string]any{TagDouble: strconv.FormatFloat(t, 'g', -1, 64)}
	case TimeStub:
		return map[string]any{TagTime: t.String()}
	case DateStub:
		return map[string]any{TagDate: t.String()}
	case Module:
		return map[string]any{TagMod: t.Name}
	case DocumentReference:
		return map[string]any{TagRef: refObject(t)}
	case NullDocument:
		obj := refObject(t.Ref)
		obj["exists"] = false
		if t.Cause != "" {
			obj["cause"] = t.Cause
		}
		return map[string]any{TagRef: obj}
	case Document:
		return map[string]any{TagDoc: documentObject(t)}
	case *Document:
		if t == nil {
			return nil
		}
		return map[string]any{TagDoc: documentObject(*t)}
	case Page:
		data := make([]any, len(t.Data))
		for i, d := range t.Data {
			data[i] = Tag(d)
		}
		set := map[string]any{"data": data}
		if t.After != "" {
			set["after"] = t.After
		}
		return map[string]any{TagSet: set}
	case Referencer:
		ref := t.Reference()
		if ref.ID == "" {
			return nil
		}
		return map[string]any{TagRef: refObject(ref)}
	case map[string]any:
		out := make(map[string]any, len(t))
		reserved := false
		for k, e := range t {
			if strings.HasPrefix(k, "@") {
				reserved = true
			}
			out[k] = Tag(e)
		}
		if reserved {
			return map[string]any{TagObject: out}
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Tag(e)
		}
		return out
	}
	if n := Normalize(v); reflect.TypeOf(n) != reflect.TypeOf(v) {
		return Tag(n)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Tag(rv.Index(i).Interface())
		}
		return out
	}
	return v
}

func refObject(r DocumentReference) map[string]any {
	return map[string]any{
		FieldID:   r.ID,
		FieldColl: map[string]any{TagMod: r.Coll.Name},
	}
}

func documentObject(d Document) map[string]any {
	obj := make(map[string]any, len(d.Data)+4)
	for k, v := range d.Data {
		obj[k] = Tag(v)
	}
	if d.ID != "" {
		obj[FieldID] = d.ID
	}
	obj[FieldColl] = Tag(d.Coll)
	obj[FieldTS] = Tag(d.TS)
	if d.TTL != nil {
		obj[FieldTTL] = Tag(*d.TTL)
	}
	return obj
}

// Untag converts a decoded tagged tree back into Go values: documents,
// references, stubs, pages, int64 and float64.
func Untag(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 1 {
			for k, inner := range t {
				if strings.HasPrefix(k, "@") {
					return untagValue(k, inner)
				}
			}
		}
		return untagObject(t)
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[fmt.Sprint(k)] = e
		}
		return Untag(m)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			u, err := Untag(e)
			if err != nil {
				return nil, err
			}
			out[i] = u
		}
		return out, nil
	}
	return Normalize(v), nil
}

func untagObject(m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, e := range m {
		u, err := Untag(e)
		if err != nil {
			return nil, err
		}
		out[k] = u
	}
	return out, nil
}

func untagValue(tag string, v any) (any, error) {
	switch tag {
	case TagInt, TagLong:
		s, err := tagString(tag, v)
		if err != nil {
			return nil, err
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, malformed("%s %q", tag, s)
		}
		return n, nil
	case TagDouble:
		s, err := tagString(tag, v)
		if err != nil {
			return nil, err
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, malformed("%s %q", tag, s)
		}
		return f, nil
	case TagTime:
		s, err := tagString(tag, v)
		if err != nil {
			return nil, err
		}
		return ParseTimeStub(s)
	case TagDate:
		s, err := tagString(tag, v)
		if err != nil {
			return nil, err
		}
		return ParseDateStub(s)
	case TagMod:
		s, err := tagString(tag, v)
		if err != nil {
			return nil, err
		}
		return Module{Name: s}, nil
	case TagRef:
		return untagRef(v)
	case TagDoc:
		m, ok := asStringMap(v)
		if !ok {
			return nil, malformed("%s payload is %T", tag, v)
		}
		return documentFromObject(m)
	case TagSet:
		return untagSet(v)
	case TagObject:
		m, ok := asStringMap(v)
		if !ok {
			return nil, malformed("%s payload is %T", tag, v)
		}
		return untagObject(m)
	}
	// Unknown tags are plain keys.
	u, err := Untag(v)
	if err != nil {
		return nil, err
	}
	return map[string]any{tag: u}, nil
}

func tagString(tag string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", malformed("%s payload is %T", tag, v)
	}
	return s, nil
}

func asStringMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[fmt.Sprint(k)] = e
		}
		return m, true
	}
	return nil, false
}

func untagRef(v any) (any, error) {
	m, ok := asStringMap(v)
	if !ok {
		return nil, malformed("%s payload is %T", TagRef, v)
	}
	coll, err := Untag(m[FieldColl])
	if err != nil {
		return nil, err
	}
	mod, ok := coll.(Module)
	if !ok {
		return nil, malformed("%s without collection", TagRef)
	}
	id, _ := m[FieldID].(string)
	if id == "" {
		id, _ = m[FieldName].(string)
	}
	ref := DocumentReference{ID: id, Coll: mod}
	if exists, ok := m["exists"].(bool); ok && !exists {
		cause, _ := m["cause"].(string)
		return NullDocument{Ref: ref, Cause: cause}, nil
	}
	return ref, nil
}

func untagSet(v any) (any, error) {
	if after, ok := v.(string); ok {
		return Page{After: after}, nil
	}
	m, ok := asStringMap(v)
	if !ok {
		return nil, malformed("%s payload is %T", TagSet, v)
	}
	raw, _ := m["data"].([]any)
	page := Page{Data: make([]Document, 0, len(raw))}
	for _, e := range raw {
		u, err := Untag(e)
		if err != nil {
			return nil, err
		}
		doc, ok := u.(Document)
		if !ok {
			return nil, malformed("%s element is %T", TagSet, u)
		}
		page.Data = append(page.Data, doc)
	}
	page.After, _ = m["after"].(string)
	return page, nil
}

func documentFromObject(m map[string]any) (Document, error) {
	var doc Document
	doc.Data = make(map[string]any, len(m))
	for k, e := range m {
		u, err := Untag(e)
		if err != nil {
			return Document{}, err
		}
		switch k {
		case FieldID:
			doc.ID, _ = u.(string)
		case FieldColl:
			mod, ok := u.(Module)
			if !ok {
				return Document{}, malformed("document coll is %T", u)
			}
			doc.Coll = mod
		case FieldTS:
			ts, ok := u.(TimeStub)
			if !ok {
				return Document{}, malformed("document ts is %T", u)
			}
			doc.TS = ts
		case FieldTTL:
			doc.TTL = toTimeStubPtr(u)
		default:
			doc.Data[k] = u
		}
	}
	if doc.Coll.Name == "" {
		return Document{}, malformed("document without collection")
	}
	return doc, nil
}

// UntagDocument decodes one tagged document.
func UntagDocument(v any) (Document, error) {
	u, err := Untag(v)
	if err != nil {
		return Document{}, err
	}
	doc, ok := u.(Document)
	if !ok {
		return Document{}, malformed("expected document, got %T", u)
	}
	return doc, nil
}

// TagDocuments converts a slice of documents to a tagged array.
func TagDocuments(docs []Document) []any {
	out := make([]any, len(docs))
	for i, d := range docs {
		out[i] = Tag(d)
	}
	return out
}

// UntagDocuments decodes a tagged array of documents.
func UntagDocuments(v any) ([]Document, error) {
	if v == nil {
		return nil, nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil, malformed("expected array, got %T", v)
	}
	out := make([]Document, 0, len(raw))
	for _, e := range raw {
		doc, err := UntagDocument(e)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// DecodeJSON decodes tagged JSON into Go values, keeping numbers exact.
func DecodeJSON(b []byte) (any, error) {
	var raw any
	if err := (JSONCodec{}).Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", constants.ErrMalformed, err)
	}
	return Untag(raw)
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{constants.ErrMalformed}, args...)...)
}
