package fql

import (
	"strings"

	"github.com/Etesie/fauna-typed/pkg/models"
)

// Predicate filters documents. Match evaluates it against a cached
// document; Cond renders the same test as an FQL boolean expression over
// the variable param.
type Predicate interface {
	Match(doc models.Document) bool
	Cond(param string) string
}

// Lambda renders p as the FQL function passed to where and firstWhere.
func Lambda(p Predicate) string {
	return "(doc) => " + p.Cond("doc")
}

type comparison struct {
	field string
	op    string
	value any
}

func Eq(field string, v any) Predicate  { return comparison{field, "==", models.Normalize(v)} }
func Ne(field string, v any) Predicate  { return comparison{field, "!=", models.Normalize(v)} }
func Lt(field string, v any) Predicate  { return comparison{field, "<", models.Normalize(v)} }
func Lte(field string, v any) Predicate { return comparison{field, "<=", models.Normalize(v)} }
func Gt(field string, v any) Predicate  { return comparison{field, ">", models.Normalize(v)} }
func Gte(field string, v any) Predicate { return comparison{field, ">=", models.Normalize(v)} }

func (c comparison) Cond(param string) string {
	return Path(param, c.field) + " " + c.op + " " + Value(c.value)
}

func (c comparison) Match(doc models.Document) bool {
	got, _ := Lookup(doc, c.field)
	switch c.op {
	case "==":
		return models.EqualValues(got, c.value)
	case "!=":
		return !models.EqualValues(got, c.value)
	}
	if got == nil || c.value == nil {
		return false
	}
	r := models.CompareValues(got, c.value)
	switch c.op {
	case "<":
		return r < 0
	case "<=":
		return r <= 0
	case ">":
		return r > 0
	default:
		return r >= 0
	}
}

type junction struct {
	op    string
	preds []Predicate
}

// And matches when every predicate matches. An empty And matches all.
func And(preds ...Predicate) Predicate { return junction{"&&", preds} }

// Or matches when any predicate matches. An empty Or matches none.
func Or(preds ...Predicate) Predicate { return junction{"||", preds} }

func (j junction) Cond(param string) string {
	if len(j.preds) == 0 {
		if j.op == "&&" {
			return "true"
		}
		return "false"
	}
	parts := make([]string, len(j.preds))
	for i, p := range j.preds {
		parts[i] = p.Cond(param)
	}
	return "(" + strings.Join(parts, " "+j.op+" ") + ")"
}

func (j junction) Match(doc models.Document) bool {
	for _, p := range j.preds {
		m := p.Match(doc)
		if j.op == "&&" && !m {
			return false
		}
		if j.op == "||" && m {
			return true
		}
	}
	return j.op == "&&"
}

type not struct{ p Predicate }

func Not(p Predicate) Predicate { return not{p} }

func (n not) Cond(param string) string      { return "!(" + n.p.Cond(param) + ")" }
func (n not) Match(doc models.Document) bool { return !n.p.Match(doc) }

type fn struct {
	fql   string
	match func(models.Document) bool
}

// Func pairs a hand-written FQL function, e.g. "(u) => u.age > 18", with
// its local equivalent.
func Func(fql string, match func(models.Document) bool) Predicate {
	return fn{fql: fql, match: match}
}

func (f fn) Cond(param string) string      { return "(" + f.fql + ")(" + param + ")" }
func (f fn) Match(doc models.Document) bool { return f.match(doc) }

// Lookup resolves a dotted field path against doc.
func Lookup(doc models.Document, field string) (any, bool) {
	head, rest, nested := strings.Cut(field, ".")
	v, ok := doc.Get(head)
	for ok && nested {
		m, isMap := v.(map[string]any)
		if !isMap {
			return nil, false
		}
		head, rest, nested = strings.Cut(rest, ".")
		v, ok = m[head]
	}
	return v, ok
}
