package models

import (
	"fmt"
	"sort"

	"github.com/Etesie/fauna-typed/pkg/constants"
)

// Field declares one stored field of a collection.
type Field struct {
	Signature string
}

// ComputedField declares a field the service derives from Body.
type ComputedField struct {
	Body      string
	Signature string
}

// Collection is a collection definition as stored in the system
// collection "Collection".
type Collection struct {
	Name           string
	Named          bool
	Fields         map[string]Field
	ComputedFields map[string]ComputedField
	HistoryDays    int64
	TTLDays        *int64
}

// Signature returns the parsed signature of a stored field.
func (c Collection) Signature(field string) (Signature, bool) {
	f, ok := c.Fields[field]
	if !ok {
		return Signature{}, false
	}
	return ParseSignature(f.Signature), true
}

// FieldNames returns the declared stored field names in sorted order.
func (c Collection) FieldNames() []string {
	out := make([]string, 0, len(c.Fields))
	for k := range c.Fields {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ComputedDefaults returns placeholder values for every computed field.
func (c Collection) ComputedDefaults() map[string]any {
	if len(c.ComputedFields) == 0 {
		return nil
	}
	out := make(map[string]any, len(c.ComputedFields))
	for k, f := range c.ComputedFields {
		out[k] = DefaultComputedValue(f.Signature)
	}
	return out
}

// systemCollections are the service's own collections. Their documents
// are identified by name.
var systemCollections = map[string]bool{
	constants.SystemCollection: true,
	"Function":                 true,
	"Role":                     true,
	"AccessProvider":           true,
}

// IsSystemCollection reports whether name is one of the service's own
// collections.
func IsSystemCollection(name string) bool {
	return systemCollections[name]
}

// CollectionFromDocument parses a definition out of a document of the
// system collection.
func CollectionFromDocument(doc Document) (Collection, error) {
	name, _ := doc.Data[FieldName].(string)
	if name == "" {
		return Collection{}, fmt.Errorf("%w: collection definition without name", constants.ErrMalformed)
	}
	named, _ := doc.Data["named"].(bool)
	c := Collection{
		Name:           name,
		Named:          named || IsSystemCollection(name),
		Fields:         map[string]Field{},
		ComputedFields: map[string]ComputedField{},
	}
	if raw, ok := doc.Data["fields"].(map[string]any); ok {
		for k, v := range raw {
			m, ok := v.(map[string]any)
			if !ok {
				return Collection{}, fmt.Errorf("%w: field %q of %s", constants.ErrMalformed, k, name)
			}
			sig, _ := m["signature"].(string)
			c.Fields[k] = Field{Signature: sig}
		}
	}
	if raw, ok := doc.Data["computed_fields"].(map[string]any); ok {
		for k, v := range raw {
			m, ok := v.(map[string]any)
			if !ok {
				return Collection{}, fmt.Errorf("%w: computed field %q of %s", constants.ErrMalformed, k, name)
			}
			body, _ := m["body"].(string)
			sig, _ := m["signature"].(string)
			c.ComputedFields[k] = ComputedField{Body: body, Signature: sig}
		}
	}
	if n, ok := Normalize(doc.Data["history_days"]).(int64); ok {
		c.HistoryDays = n
	}
	if n, ok := Normalize(doc.Data["ttl_days"]).(int64); ok {
		c.TTLDays = &n
	}
	return c, nil
}

// ToDocument renders c as a document of the system collection.
func (c Collection) ToDocument() Document {
	fields := make(map[string]any, len(c.Fields))
	for k, f := range c.Fields {
		fields[k] = map[string]any{"signature": f.Signature}
	}
	data := map[string]any{
		FieldName:      c.Name,
		"fields":       fields,
		"history_days": c.HistoryDays,
	}
	if len(c.ComputedFields) > 0 {
		computed := make(map[string]any, len(c.ComputedFields))
		for k, f := range c.ComputedFields {
			computed[k] = map[string]any{"body": f.Body, "signature": f.Signature}
		}
		data["computed_fields"] = computed
	}
	if c.TTLDays != nil {
		data["ttl_days"] = *c.TTLDays
	}
	if c.Named {
		data["named"] = true
	}
	return Document{Coll: Module{Name: constants.SystemCollection}, TS: Now(), Data: data}
}
