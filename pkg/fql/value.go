package fql

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/Etesie/fauna-typed/pkg/models"
)

// Expr is anything that renders to an FQL expression.
type Expr interface {
	FQL() string
}

// Raw is a literal FQL fragment.
type Raw string

func (r Raw) FQL() string { return string(r) }

// Value renders a Go value as an FQL literal.
func Value(v any) string {
	var b strings.Builder
	writeValue(&b, v)
	return b.String()
}

func writeValue(b *strings.Builder, v any) {
	switch t := v.(type) {
	case nil:
		b.WriteString("null")
	case Expr:
		b.WriteString(t.FQL())
	case bool:
		b.WriteString(strconv.FormatBool(t))
	case int64:
		b.WriteString(strconv.FormatInt(t, 10))
	case float64:
		b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
	case string:
		b.WriteString(quote(t))
	case models.TimeStub:
		b.WriteString("Time(" + quote(t.String()) + ")")
	case models.DateStub:
		b.WriteString("Date(" + quote(t.String()) + ")")
	case models.Module:
		b.WriteString(t.Name)
	case models.DocumentReference:
		b.WriteString(refExpr(t.Coll.Name, t.ID))
	case models.NullDocument:
		b.WriteString("null")
	case models.Document:
		b.WriteString(refExpr(t.Coll.Name, t.ID))
	case models.Referencer:
		r := t.Reference()
		if r.ID == "" {
			b.WriteString("null")
			return
		}
		b.WriteString(refExpr(r.Coll.Name, r.ID))
	case map[string]any:
		writeObject(b, t)
	case []any:
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteString(", ")
			}
			writeValue(b, e)
		}
		b.WriteByte(']')
	default:
		if n := models.Normalize(v); reflect.TypeOf(n) != reflect.TypeOf(v) {
			writeValue(b, n)
			return
		}
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Slice {
			items := make([]any, rv.Len())
			for i := range items {
				items[i] = rv.Index(i).Interface()
			}
			writeValue(b, items)
			return
		}
		// Anything else goes through its JSON form so strings inside it
		// are quoted like every other string.
		raw, err := json.Marshal(v)
		if err != nil {
			b.WriteString("null")
			return
		}
		var tree any
		if err := json.Unmarshal(raw, &tree); err != nil {
			b.WriteString("null")
			return
		}
		writeValue(b, tree)
	}
}

// writeObject renders keys in sorted order so the output is stable.
func writeObject(b *strings.Builder, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	writeOrderedObject(b, keys, m)
}

func writeOrderedObject(b *strings.Builder, keys []string, m map[string]any) {
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(quote(k))
		b.WriteByte(':')
		writeValue(b, m[k])
	}
	b.WriteByte('}')
}

func refExpr(coll, id string) string {
	return coll + ".byId(" + quote(id) + ")"
}

// quote renders s as a single-quoted string literal. Single-quoted
// strings are never interpolated, so s cannot inject code.
func quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\u%04x`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

// Path renders a field path such as "address.city" against param.
func Path(param, field string) string {
	var b strings.Builder
	b.WriteString(param)
	for _, part := range strings.Split(field, ".") {
		if isIdent(part) {
			b.WriteByte('.')
			b.WriteString(part)
			continue
		}
		b.WriteString("[" + quote(part) + "]")
	}
	return b.String()
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
