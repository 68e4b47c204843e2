package models

import (
	"fmt"
	"maps"
)

// Reserved document keys. They live in the Document struct, never in Data.
const (
	FieldID   = "id"
	FieldColl = "coll"
	FieldTS   = "ts"
	FieldTTL  = "ttl"
	FieldName = "name"
)

// Fields is a set of domain field values used as mutation input. The
// reserved keys "id" (create only), "ttl" and, for named collections,
// "name" are recognised.
type Fields map[string]any

// Module names a collection (tagged "@mod").
type Module struct {
	Name string
}

// DocumentReference is the identity of a document in a collection
// (tagged "@ref").
type DocumentReference struct {
	ID   string
	Coll Module
}

func (r DocumentReference) String() string {
	return fmt.Sprintf("%s.byId(%q)", r.Coll.Name, r.ID)
}

// NullDocument is what the service returns for a reference whose document
// does not exist.
type NullDocument struct {
	Ref   DocumentReference
	Cause string
}

// Document is one record of a collection. Data holds the domain fields.
type Document struct {
	ID   string
	Coll Module
	TS   TimeStub
	TTL  *TimeStub
	Data map[string]any
}

// Key returns the identity of the document: its name for named
// collections, its id otherwise.
func (d Document) Key(named bool) string {
	if named {
		name, _ := d.Data[FieldName].(string)
		return name
	}
	return d.ID
}

// Get returns a domain field, or one of the reserved fields by key.
func (d Document) Get(field string) (any, bool) {
	switch field {
	case FieldID:
		return d.ID, d.ID != ""
	case FieldColl:
		return d.Coll, true
	case FieldTS:
		return d.TS, true
	case FieldTTL:
		if d.TTL == nil {
			return nil, false
		}
		return *d.TTL, true
	}
	v, ok := d.Data[field]
	return v, ok
}

// Clone returns a deep copy, so the caller may modify Data freely.
func (d Document) Clone() Document {
	out := d
	if d.TTL != nil {
		ttl := *d.TTL
		out.TTL = &ttl
	}
	if d.Data != nil {
		out.Data = CloneValue(d.Data).(map[string]any)
	}
	return out
}

// Reference returns the DocumentReference pointing at d.
func (d Document) Reference() DocumentReference {
	return DocumentReference{ID: d.ID, Coll: d.Coll}
}

// SplitFields separates the reserved keys from domain fields. Reserved
// keys other than id, ttl and name are dropped.
func SplitFields(f Fields) (id string, ttl *TimeStub, hasTTL bool, data map[string]any) {
	data = make(map[string]any, len(f))
	for k, v := range f {
		switch k {
		case FieldID:
			id, _ = v.(string)
		case FieldTTL:
			hasTTL = true
			ttl = toTimeStubPtr(v)
		case FieldColl, FieldTS:
		default:
			data[k] = v
		}
	}
	return id, ttl, hasTTL, data
}

func toTimeStubPtr(v any) *TimeStub {
	switch t := v.(type) {
	case TimeStub:
		return &t
	case *TimeStub:
		return t
	case string:
		ts, err := ParseTimeStub(t)
		if err != nil {
			return nil
		}
		return &ts
	}
	if tm, ok := asTime(v); ok {
		ts := NewTimeStub(tm)
		return &ts
	}
	return nil
}

// Page is one batch of a remote result set. After is the continuation
// cursor, empty when there are no further pages.
type Page struct {
	Data  []Document
	After string
}

// EventType is the kind of a change-feed event.
type EventType string

const (
	EventAdd    EventType = "add"
	EventUpdate EventType = "update"
	EventRemove EventType = "remove"
	EventStatus EventType = "status"
	EventError  EventType = "error"
)

// Event is one change-feed notification.
type Event struct {
	Type   EventType
	Doc    Document
	Cursor string
	Error  string
}

// Merge returns a new map holding base overlaid with patch.
func Merge(base, patch map[string]any) map[string]any {
	out := maps.Clone(base)
	if out == nil {
		out = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}
