// Package schema validates document payloads against the field table of
// a collection definition. The definition is compiled into a JSON Schema
// once and reused for every payload of that collection.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/Etesie/fauna-typed/pkg/constants"
	"github.com/Etesie/fauna-typed/pkg/models"
)

// Validator checks documents of one collection.
type Validator struct {
	coll   string
	schema *jsonschema.Schema
}

// Compile builds a Validator from def. Fields whose signature cannot be
// expressed are accepted without constraint.
func Compile(def models.Collection) (*Validator, error) {
	url := "mem://" + def.Name + ".json"
	c := jsonschema.NewCompiler()
	c.DefaultDraft(jsonschema.Draft2020)
	if err := c.AddResource(url, Document(def)); err != nil {
		return nil, fmt.Errorf("schema for %s: %w", def.Name, err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema for %s: %w", def.Name, err)
	}
	return &Validator{coll: def.Name, schema: sch}, nil
}

// Validate reports a constants.ErrMalformed error when doc does not
// satisfy the definition.
func (v *Validator) Validate(doc models.Document) error {
	if doc.Coll.Name != "" && doc.Coll.Name != v.coll {
		return fmt.Errorf("%w: document of %s validated as %s", constants.ErrMalformed, doc.Coll.Name, v.coll)
	}
	err := v.schema.Validate(Instance(doc.Data))
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if errors.As(err, &verr) {
		return fmt.Errorf("%w: %s %s: %s", constants.ErrMalformed, v.coll, doc.ID, firstLine(verr.Error()))
	}
	return fmt.Errorf("%w: %s %s: %v", constants.ErrMalformed, v.coll, doc.ID, err)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Document returns the JSON Schema of a document's domain fields.
func Document(def models.Collection) map[string]any {
	props := make(map[string]any, len(def.Fields))
	required := []any{}
	for _, name := range def.FieldNames() {
		sig, _ := def.Signature(name)
		props[name] = Signature(sig)
		if !sig.Optional {
			required = append(required, name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// Signature returns the JSON Schema accepted for values of sig.
func Signature(sig models.Signature) map[string]any {
	s := baseSignature(sig)
	if sig.Optional {
		return map[string]any{"anyOf": []any{s, map[string]any{"type": "null"}}}
	}
	return s
}

func baseSignature(sig models.Signature) map[string]any {
	switch sig.Kind {
	case models.KindRef:
		return map[string]any{
			"type":     "object",
			"required": []any{"id"},
			"properties": map[string]any{
				"id":   map[string]any{"type": "string"},
				"coll": map[string]any{"const": sig.Name},
			},
		}
	case models.KindArray:
		return map[string]any{"type": "array", "items": Signature(*sig.Elem)}
	case models.KindObject:
		props := make(map[string]any, len(sig.Props))
		required := []any{}
		for k, p := range sig.Props {
			props[k] = Signature(p)
			if !p.Optional {
				required = append(required, k)
			}
		}
		return map[string]any{"type": "object", "properties": props, "required": required}
	case models.KindUnion:
		variants := make([]any, len(sig.Variants))
		for i, v := range sig.Variants {
			variants[i] = Signature(v)
		}
		return map[string]any{"anyOf": variants}
	}
	switch sig.Name {
	case "String", "Time", "Date", "ID", "Bytes", "UUID":
		return map[string]any{"type": "string"}
	case "Int", "Long":
		return map[string]any{"type": "integer"}
	case "Number", "Double":
		return map[string]any{"type": "number"}
	case "Boolean":
		return map[string]any{"type": "boolean"}
	case "Null":
		return map[string]any{"type": "null"}
	case "Object", "Struct":
		return map[string]any{"type": "object"}
	}
	return map[string]any{}
}

// Instance converts cached values into the JSON data model the validator
// understands: stubs become strings and references become {id, coll}.
func Instance(v any) any {
	switch t := v.(type) {
	case models.TimeStub:
		return t.String()
	case models.DateStub:
		return t.String()
	case models.Module:
		return t.Name
	case models.DocumentReference:
		return map[string]any{"id": t.ID, "coll": t.Coll.Name}
	case models.NullDocument:
		return nil
	case models.Document:
		return map[string]any{"id": t.ID, "coll": t.Coll.Name}
	case models.Referencer:
		r := t.Reference()
		if r.ID == "" {
			return nil
		}
		return map[string]any{"id": r.ID, "coll": r.Coll.Name}
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Instance(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Instance(e)
		}
		return out
	}
	n := models.Normalize(v)
	switch n.(type) {
	case nil, bool, string, int64, float64:
		return n
	case []any, map[string]any:
		return Instance(n)
	}
	return fmt.Sprint(v)
}
